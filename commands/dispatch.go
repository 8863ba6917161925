package commands

import (
	"errors"
	"fmt"
	"io/fs"

	"golang.org/x/sys/unix"

	"github.com/josephlewis42/jobsh/core/vos"
)

// CommandKind tells builtins apart from programs run in a child process.
type CommandKind int

const (
	Builtin CommandKind = iota
	External
)

func (k CommandKind) String() string {
	if k == Builtin {
		return "builtin"
	}
	return "external"
}

// Classify returns how name would be run.
func Classify(name string) CommandKind {
	if _, ok := AllBuiltins[name]; ok {
		return Builtin
	}
	return External
}

// Dispatch runs a parsed command. The status is only meaningful, and ok only
// true, for builtins and foreground commands; a background launch leaves $?
// alone.
func (s *Shell) Dispatch(args []string, background bool) (status int, ok bool) {
	if len(args) == 0 {
		return 0, false
	}

	if builtin, found := AllBuiltins[args[0]]; found {
		// Builtins always run in the shell, a trailing & is ignored.
		return builtin.Main(s, args), true
	}

	if background {
		s.background(args)
		return 0, false
	}
	return s.foreground(args), true
}

// spawn resolves and starts args[0], reporting failures. The returned
// status is only set when the process couldn't be started.
func (s *Shell) spawn(args []string, background bool) (pid int, status int, err error) {
	path, err := vos.LookPath(s.VirtualOS, args[0])
	switch {
	case errors.Is(err, vos.ErrNotFound):
		fmt.Fprintf(s.VirtualOS.Stderr(), "%s: command not found\n", args[0])
		status = 127
	case errors.Is(err, fs.ErrPermission):
		fmt.Fprintf(s.VirtualOS.Stderr(), "%s: permission denied\n", args[0])
		status = 126
	case err != nil:
		s.printError(fmt.Sprintf("%s: %v", args[0], err))
		status = 127
	}

	if err == nil {
		pid, err = s.VirtualOS.StartProcess(path, args, &vos.ProcAttr{
			Dir:        s.cwd,
			Env:        s.VirtualOS.Environ(),
			Background: background,
		})
		if err != nil {
			s.printError(fmt.Sprintf("%s: %v", args[0], err))
			status = 126
			if errors.Is(err, fs.ErrNotExist) {
				status = 127
			}
		}
	}

	if err != nil {
		s.Log.Printf("spawning %q: %v\n", args, err)
		if logErr := s.Events.SpawnFailed(args, status, err); logErr != nil {
			s.Log.Printf("recording spawn failure: %v\n", logErr)
		}
		return 0, status, err
	}
	return pid, 0, nil
}

// foreground runs args and waits for it.
func (s *Shell) foreground(args []string) int {
	pid, status, err := s.spawn(args, false)
	if err != nil {
		return status
	}

	st, err := s.VirtualOS.Wait(pid)
	if err != nil {
		s.printError(fmt.Sprintf("%s: wait: %v", args[0], err))
		return 1
	}
	return st.ExitCode()
}

// background starts args in its own process group and records it as a job.
func (s *Shell) background(args []string) {
	pid, _, err := s.spawn(args, true)
	if err != nil {
		return
	}

	if err := s.reaper.Add(pid); err != nil {
		// Untracked children would never be reaped.
		_ = s.VirtualOS.Kill(pid, unix.SIGKILL)
		_, _ = s.VirtualOS.Wait(pid)
		s.printError(fmt.Sprintf("%s: %v", args[0], err))
		return
	}

	fmt.Fprintf(s.VirtualOS.Stdout(), "[Process %d] Started in background\n", pid)
	if err := s.Events.JobStarted(pid, args); err != nil {
		s.Log.Printf("recording job %d: %v\n", pid, err)
	}
}
