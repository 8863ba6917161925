package sigrelay

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Notifier routes OS signals to a channel.
type Notifier interface {
	Notify(c chan<- os.Signal, sig ...os.Signal) error
	Stop(c chan<- os.Signal)
}

// OSNotifier delivers real process signals.
type OSNotifier struct{}

var _ Notifier = OSNotifier{}

func (OSNotifier) Notify(c chan<- os.Signal, sig ...os.Signal) error {
	if len(sig) == 0 {
		return fmt.Errorf("no signals given")
	}
	for _, s := range sig {
		if sys, ok := s.(syscall.Signal); !ok || sys <= 0 {
			return fmt.Errorf("unsupported signal %v", s)
		}
	}
	signal.Notify(c, sig...)
	return nil
}

func (OSNotifier) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}
