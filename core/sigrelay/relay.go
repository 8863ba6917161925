// Package sigrelay turns asynchronously delivered signals into pending event
// flags and job table transitions.
//
// The relay goroutine is the only code that observes raw signals. It's held
// to the rules of a signal handler: it sets flags, performs lock-free job
// transitions and writes fixed messages, nothing else.
package sigrelay

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/josephlewis42/jobsh/core/jobs"
)

// ErrRegistration is returned when a handler can't be installed, the shell
// can't run safely without it.
var ErrRegistration = errors.New("signal handler registration failed")

// Signals lists the signals the relay handles.
var Signals = []os.Signal{unix.SIGINT, unix.SIGTSTP, unix.SIGCHLD}

// SuspendNotice is written to stderr when a suspend is requested.
const SuspendNotice = "\nShell suspension disabled. Use 'exit' to quit.\n"

var suspendNotice = []byte(SuspendNotice)

// Relay forwards signals to the interactive loop.
type Relay struct {
	flags  *Flags
	jobs   *jobs.Table
	waiter jobs.Waiter
	stderr io.Writer

	notifier Notifier
	sigc     chan os.Signal
	done     chan struct{}
	stopped  chan struct{}
}

// New creates a relay that raises events in flags and collects terminated
// children tracked in table.
func New(flags *Flags, table *jobs.Table, waiter jobs.Waiter, stderr io.Writer) *Relay {
	return &Relay{
		flags:  flags,
		jobs:   table,
		waiter: waiter,
		stderr: stderr,
		sigc:   make(chan os.Signal, 16),
	}
}

// Start installs handlers for every signal in Signals and starts relaying.
// Any failure unregisters the handlers installed so far and wraps
// ErrRegistration.
func (r *Relay) Start(n Notifier) error {
	if r.notifier != nil {
		return fmt.Errorf("%w: already started", ErrRegistration)
	}

	for _, sig := range Signals {
		if err := n.Notify(r.sigc, sig); err != nil {
			n.Stop(r.sigc)
			return fmt.Errorf("%w: %s: %v", ErrRegistration, signalName(sig), err)
		}
	}

	r.notifier = n
	r.done = make(chan struct{})
	r.stopped = make(chan struct{})
	go r.run()
	return nil
}

// Stop uninstalls the handlers and waits for the relay goroutine to exit.
func (r *Relay) Stop() {
	if r.notifier == nil {
		return
	}
	r.notifier.Stop(r.sigc)
	close(r.done)
	<-r.stopped
	r.notifier = nil
}

func (r *Relay) run() {
	defer close(r.stopped)
	for {
		select {
		case sig := <-r.sigc:
			r.Handle(sig)
		case <-r.done:
			return
		}
	}
}

// Handle processes one signal.
func (r *Relay) Handle(sig os.Signal) {
	switch sig {
	case unix.SIGINT:
		r.flags.Raise(Interrupt)

	case unix.SIGTSTP:
		r.flags.Raise(Suspend)
		if r.stderr != nil {
			_, _ = r.stderr.Write(suspendNotice)
		}

	case unix.SIGCHLD:
		// Collect until a pass finds nothing new.
		for r.jobs.ReapAll(r.waiter) > 0 {
		}
	}
}

func signalName(sig os.Signal) string {
	if s, ok := sig.(unix.Signal); ok {
		if name := unix.SignalName(s); name != "" {
			return name
		}
	}
	return sig.String()
}
