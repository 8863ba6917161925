// Package vostest provides a scripted VOS for tests.
package vostest

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"

	"github.com/josephlewis42/jobsh/core/vos"
)

// FirstPID is the pid assigned to the first process started by a TestOS.
const FirstPID = 1000

// Program simulates an executable. It's called when the process starts and
// may finish it immediately with Exit or Signal, or leave it running.
type Program func(p *Process)

// Process is a simulated child process.
type Process struct {
	PID        int
	Path       string
	Argv       []string
	Dir        string
	Background bool

	// IgnoreTerm makes the process survive SIGTERM.
	IgnoreTerm bool

	owner   *TestOS
	status  vos.ProcStatus
	reaped  bool
	signals []unix.Signal
	done    chan struct{}
}

// Exit terminates the process with the given exit code.
func (p *Process) Exit(code int) {
	p.owner.finish(p, vos.ProcStatus{State: vos.ProcExited, Code: code})
}

// Signal terminates the process as if killed by sig.
func (p *Process) Signal(sig unix.Signal) {
	p.owner.finish(p, vos.ProcStatus{State: vos.ProcSignaled, Code: int(sig)})
}

// Stdout returns the writer the process would print to.
func (p *Process) Stdout() *bytes.Buffer {
	return p.owner.StdoutBuf
}

// TestOS is a deterministic VOS with scripted processes, an in-memory
// filesystem and captured output.
type TestOS struct {
	afero.Fs
	*vos.MapEnv
	vos.VIO

	StdinBuf  *bytes.Buffer
	StdoutBuf *bytes.Buffer
	StderrBuf *bytes.Buffer

	// Programs maps a program's base name to its behavior. Programs without an
	// entry exit 0 immediately.
	Programs map[string]Program
	// StartErr, if set, fails every StartProcess call.
	StartErr error

	PTY     vos.PTY
	Host    string
	User    string
	PID     int
	mu      sync.Mutex
	cwd     string
	nextPID int
	procs   map[int]*Process
	started []*Process
	hostErr error
}

var _ vos.VOS = (*TestOS)(nil)

// NewTestOS creates a TestOS with a home directory at /home/user and a few
// executables under /bin.
func NewTestOS() *TestOS {
	stdin, stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}, &bytes.Buffer{}
	t := &TestOS{
		Fs:        afero.NewMemMapFs(),
		MapEnv:    vos.NewMapEnvFromEnvList([]string{"HOME=/home/user", "USER=user", "PATH=/usr/bin:/bin"}),
		VIO:       vos.NewVIOAdapter(stdin, stdout, stderr),
		StdinBuf:  stdin,
		StdoutBuf: stdout,
		StderrBuf: stderr,
		Programs:  make(map[string]Program),
		Host:      "testhost",
		User:      "user",
		PID:       42,
		cwd:       "/home/user",
		nextPID:   FirstPID,
		procs:     make(map[int]*Process),
	}

	for _, dir := range []string{"/home/user", "/tmp", "/bin", "/usr/bin"} {
		_ = t.Fs.MkdirAll(dir, 0755)
	}
	for _, name := range []string{"true", "false", "sleep", "sh", "cat"} {
		t.AddExecutable(path.Join("/bin", name))
	}
	return t
}

// AddExecutable creates an executable file at the path.
func (t *TestOS) AddExecutable(name string) {
	_ = afero.WriteFile(t.Fs, name, []byte("#!/bin/true\n"), 0755)
}

// SetHostnameError makes Hostname fail.
func (t *TestOS) SetHostnameError(err error) {
	t.hostErr = err
}

func (t *TestOS) abs(name string) string {
	if path.IsAbs(name) {
		return path.Clean(name)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return path.Join(t.cwd, name)
}

// Stat resolves relative paths against the working directory.
func (t *TestOS) Stat(name string) (os.FileInfo, error) {
	return t.Fs.Stat(t.abs(name))
}

func (t *TestOS) Hostname() (string, error) {
	return t.Host, t.hostErr
}

func (t *TestOS) Username() string {
	return t.User
}

func (t *TestOS) GetPTY() vos.PTY {
	return t.PTY
}

func (t *TestOS) Getpid() int {
	return t.PID
}

func (t *TestOS) Getwd() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cwd, nil
}

func (t *TestOS) Chdir(dir string) error {
	resolved := t.abs(dir)
	fi, err := t.Fs.Stat(resolved)
	switch {
	case err != nil:
		return &fs.PathError{Op: "chdir", Path: dir, Err: unix.ENOENT}
	case !fi.IsDir():
		return &fs.PathError{Op: "chdir", Path: dir, Err: unix.ENOTDIR}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.cwd = resolved
	return nil
}

func (t *TestOS) StartProcess(name string, argv []string, attr *vos.ProcAttr) (int, error) {
	if t.StartErr != nil {
		return 0, &fs.PathError{Op: "fork/exec", Path: name, Err: t.StartErr}
	}
	if attr == nil {
		attr = &vos.ProcAttr{}
	}

	t.mu.Lock()
	p := &Process{
		PID:        t.nextPID,
		Path:       name,
		Argv:       append([]string(nil), argv...),
		Dir:        attr.Dir,
		Background: attr.Background,
		owner:      t,
		status:     vos.ProcStatus{State: vos.ProcRunning},
		done:       make(chan struct{}),
	}
	t.nextPID++
	t.procs[p.PID] = p
	t.started = append(t.started, p)
	program, ok := t.Programs[path.Base(name)]
	t.mu.Unlock()

	if ok {
		program(p)
	} else {
		p.Exit(0)
	}
	return p.PID, nil
}

func (t *TestOS) finish(p *Process, st vos.ProcStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p.status.Terminal() {
		return
	}
	p.status = st
	close(p.done)
}

func (t *TestOS) Wait(pid int) (vos.ProcStatus, error) {
	t.mu.Lock()
	p, ok := t.procs[pid]
	if !ok || p.reaped {
		t.mu.Unlock()
		return vos.ProcStatus{State: vos.ProcNotFound}, unix.ECHILD
	}
	t.mu.Unlock()

	<-p.done

	t.mu.Lock()
	defer t.mu.Unlock()
	if p.reaped {
		return vos.ProcStatus{State: vos.ProcNotFound}, unix.ECHILD
	}
	p.reaped = true
	return p.status, nil
}

func (t *TestOS) WaitNonblocking(pid int) vos.ProcStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.procs[pid]
	switch {
	case !ok || p.reaped:
		return vos.ProcStatus{State: vos.ProcNotFound}
	case !p.status.Terminal():
		return p.status
	default:
		p.reaped = true
		return p.status
	}
}

func (t *TestOS) Kill(pid int, sig unix.Signal) error {
	t.mu.Lock()
	p, ok := t.procs[pid]
	if !ok {
		t.mu.Unlock()
		return nil
	}
	p.signals = append(p.signals, sig)
	ignore := p.IgnoreTerm
	t.mu.Unlock()

	switch {
	case sig == unix.SIGKILL, sig == unix.SIGTERM && !ignore:
		p.Signal(sig)
	}
	return nil
}

// Process returns the simulated process with the pid.
func (t *TestOS) Process(pid int) *Process {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.procs[pid]
}

// Started returns every process started so far, in start order.
func (t *TestOS) Started() []*Process {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Process(nil), t.started...)
}

// Signals returns the signals delivered to the pid.
func (t *TestOS) Signals(pid int) []unix.Signal {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.procs[pid]; ok {
		return append([]unix.Signal(nil), p.signals...)
	}
	return nil
}

// Reaped reports whether the pid has been collected by a wait.
func (t *TestOS) Reaped(pid int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.procs[pid]
	return ok && p.reaped
}

// Output returns everything written to stdout followed by stderr.
func (t *TestOS) Output() string {
	return t.StdoutBuf.String() + t.StderrBuf.String()
}

// Cmdline renders argv the way a test would type it.
func (p *Process) Cmdline() string {
	return strings.Join(p.Argv, " ")
}

func (p *Process) String() string {
	return fmt.Sprintf("[%d] %s", p.PID, p.Cmdline())
}
