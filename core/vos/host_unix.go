//go:build unix

package vos

import (
	"errors"
	"os"
	"os/user"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// HostOS implements VOS on top of the real operating system.
type HostOS struct {
	VFS
	VIO
}

var _ VOS = (*HostOS)(nil)

// NewHostOS creates a VOS backed by the running process.
func NewHostOS() *HostOS {
	return &HostOS{
		VFS: afero.NewOsFs(),
		VIO: NewStdIO(),
	}
}

func (*HostOS) Hostname() (string, error) {
	return os.Hostname()
}

func (*HostOS) Getwd() (string, error) {
	return os.Getwd()
}

func (*HostOS) Chdir(dir string) error {
	return os.Chdir(dir)
}

func (h *HostOS) Username() string {
	if name := h.Getenv(EnvUser); name != "" {
		return name
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "user"
}

func (*HostOS) GetPTY() PTY {
	pty := PTY{
		Term:  os.Getenv("TERM"),
		IsPTY: isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd()),
	}
	if !pty.IsPTY {
		return pty
	}
	if ws, err := unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ); err == nil {
		pty.Width = int(ws.Col)
		pty.Height = int(ws.Row)
	}
	return pty
}

// UserHomeDir implements VEnv.UserHomeDir, $HOME takes precedence over the
// user database.
func (*HostOS) UserHomeDir() (string, error) {
	if home := os.Getenv(EnvHome); home != "" {
		return home, nil
	}
	if u, err := user.Current(); err == nil && u.HomeDir != "" {
		return u.HomeDir, nil
	}
	return "", ErrNoHome
}

func (*HostOS) Unsetenv(key string) error {
	return os.Unsetenv(key)
}

func (*HostOS) Setenv(key, value string) error {
	if err := checkEnvKey(key); err != nil {
		return err
	}
	return os.Setenv(key, value)
}

func (*HostOS) LookupEnv(key string) (string, bool) {
	return os.LookupEnv(key)
}

func (*HostOS) Getenv(key string) string {
	return os.Getenv(key)
}

func (*HostOS) ExpandEnv(s string) string {
	return os.ExpandEnv(s)
}

func (*HostOS) Environ() []string {
	return os.Environ()
}

func (*HostOS) Getpid() int {
	return os.Getpid()
}

func (*HostOS) StartProcess(name string, argv []string, attr *ProcAttr) (int, error) {
	if attr == nil {
		attr = &ProcAttr{}
	}
	env := attr.Env
	if env == nil {
		env = os.Environ()
	}

	proc, err := os.StartProcess(name, argv, &os.ProcAttr{
		Dir:   attr.Dir,
		Env:   env,
		Files: []*os.File{os.Stdin, os.Stdout, os.Stderr},
		Sys:   &syscall.SysProcAttr{Setpgid: attr.Background},
	})
	if err != nil {
		return 0, err
	}

	// The child is reaped with wait4 by pid, the runtime handle isn't needed.
	pid := proc.Pid
	_ = proc.Release()
	return pid, nil
}

func (*HostOS) Wait(pid int) (ProcStatus, error) {
	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(pid, &ws, 0, nil)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.ECHILD):
			return ProcStatus{State: ProcNotFound}, err
		case err != nil:
			return ProcStatus{State: ProcNotFound}, err
		}

		if st := statusFromWait(ws); st.Terminal() {
			return st, nil
		}
	}
}

func (*HostOS) WaitNonblocking(pid int) ProcStatus {
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case err != nil:
			return ProcStatus{State: ProcNotFound}
		case wpid == 0:
			return ProcStatus{State: ProcRunning}
		default:
			return statusFromWait(ws)
		}
	}
}

func (*HostOS) Kill(pid int, sig unix.Signal) error {
	if err := unix.Kill(pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}

func statusFromWait(ws unix.WaitStatus) ProcStatus {
	switch {
	case ws.Exited():
		return ProcStatus{State: ProcExited, Code: ws.ExitStatus()}
	case ws.Signaled():
		return ProcStatus{State: ProcSignaled, Code: int(ws.Signal())}
	default:
		return ProcStatus{State: ProcRunning}
	}
}
