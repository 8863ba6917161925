package sigrelay

import (
	"strings"
	"sync/atomic"
)

// Event is a bit in the pending event set.
type Event uint32

const (
	// Interrupt is raised by SIGINT or ^C at the prompt.
	Interrupt Event = 1 << iota
	// Suspend is raised by SIGTSTP.
	Suspend
)

func (e Event) String() string {
	var names []string
	if e&Interrupt != 0 {
		names = append(names, "interrupt")
	}
	if e&Suspend != 0 {
		names = append(names, "suspend")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Flags is a set of pending events shared between the relay and the
// interactive loop. The zero value has nothing pending.
type Flags struct {
	v atomic.Uint32
}

// Raise marks the events pending.
func (f *Flags) Raise(e Event) {
	for {
		old := f.v.Load()
		if old&uint32(e) == uint32(e) || f.v.CompareAndSwap(old, old|uint32(e)) {
			return
		}
	}
}

// Take clears the events and reports whether any of them were pending.
func (f *Flags) Take(e Event) bool {
	for {
		old := f.v.Load()
		if old&uint32(e) == 0 {
			return false
		}
		if f.v.CompareAndSwap(old, old&^uint32(e)) {
			return true
		}
	}
}

// Pending reports whether any of the events are pending without clearing them.
func (f *Flags) Pending(e Event) bool {
	return f.v.Load()&uint32(e) != 0
}
