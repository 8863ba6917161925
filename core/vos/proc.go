package vos

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrNotFound is the error resulting if a path search failed to find an executable file.
var ErrNotFound = exec.ErrNotFound

// ProcState is the coarse state of a child process as seen by a wait.
type ProcState int

const (
	// ProcRunning means the child exists and has not terminated.
	ProcRunning ProcState = iota
	// ProcExited means the child exited normally, Code holds the exit status.
	ProcExited
	// ProcSignaled means the child was killed by a signal, Code holds the signal.
	ProcSignaled
	// ProcNotFound means there's no such child, it was already reaped or never
	// belonged to this process.
	ProcNotFound
)

var procStateNames = []string{"Running", "Exited", "Signaled", "NotFound"}

func (s ProcState) String() string {
	if s < 0 || int(s) >= len(procStateNames) {
		return fmt.Sprintf("ProcState(%d)", int(s))
	}
	return procStateNames[s]
}

// ProcStatus is the result of waiting on a child process.
type ProcStatus struct {
	State ProcState
	Code  int
}

// Terminal returns true if the status is final.
func (p ProcStatus) Terminal() bool {
	return p.State == ProcExited || p.State == ProcSignaled
}

// ExitCode converts the status into a shell exit status.
func (p ProcStatus) ExitCode() int {
	switch p.State {
	case ProcExited:
		return p.Code
	case ProcSignaled:
		return 128 + p.Code
	case ProcNotFound:
		return 127
	default:
		return 0
	}
}

func (p ProcStatus) String() string {
	switch p.State {
	case ProcExited:
		return fmt.Sprintf("exit status %d", p.Code)
	case ProcSignaled:
		return fmt.Sprintf("signal %d", p.Code)
	default:
		return p.State.String()
	}
}

// ProcAttr holds the attributes used to start a new process.
type ProcAttr struct {
	// Dir is the working directory of the child.
	Dir string
	// Env holds the child's environment in "key=value" form.
	Env []string
	// Background places the child in its own process group so terminal
	// generated signals aren't delivered to it.
	Background bool
}

// VProc controls child processes.
type VProc interface {
	Getpid() int

	// StartProcess starts a child and returns its pid. The child inherits the
	// shell's standard streams.
	StartProcess(name string, argv []string, attr *ProcAttr) (int, error)

	// Wait blocks until the child terminates, EINTR is retried.
	Wait(pid int) (ProcStatus, error)

	// WaitNonblocking checks a child without blocking. If the child terminated
	// it's reaped and its final status is returned.
	WaitNonblocking(pid int) ProcStatus

	// Kill sends a signal to the child, a child that no longer exists isn't
	// an error.
	Kill(pid int, sig unix.Signal) error
}

func findExecutable(vos VOS, file string) error {
	d, err := vos.Stat(file)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case err != nil:
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0111 != 0 {
		return nil
	}
	return fs.ErrPermission
}

// LookPath searches for an executable named file in the directories named by
// the PATH environment variable. If file contains a slash, it is tried directly
// and the PATH is not consulted. The result may be an absolute path or a path
// relative to the current directory.
//
// If the only match isn't executable fs.ErrPermission is returned.
func LookPath(vos VOS, file string) (string, error) {
	if strings.Contains(file, "/") {
		err := findExecutable(vos, file)
		if err == nil {
			return file, nil
		}
		return "", err
	}

	var firstErr error = ErrNotFound
	path := vos.Getenv(EnvPath)
	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		path := filepath.Join(dir, file)
		err := findExecutable(vos, path)
		if err == nil {
			return path, nil
		}
		if errors.Is(err, fs.ErrPermission) && firstErr == ErrNotFound {
			firstErr = err
		}
	}
	return "", firstErr
}
