package jobs

import (
	"sort"
	"sync/atomic"

	"github.com/josephlewis42/jobsh/core/vos"
)

// DefaultCapacity is the number of jobs a table holds when no capacity is
// configured.
const DefaultCapacity = 64

// Waiter checks a child's status without blocking.
type Waiter interface {
	WaitNonblocking(pid int) vos.ProcStatus
}

// Entry is a snapshot of one background job.
type Entry struct {
	// Position is the 1-based job number in insertion order.
	Position int
	PID      int
	Status   vos.ProcStatus
}

// Table is a fixed capacity set of background jobs.
//
// Lookups and state transitions are lock free so the signal relay can record
// terminated children while the interactive loop reads the table. Add is only
// called from the interactive loop, which keeps pids unique.
type Table struct {
	slots []slot
	seq   atomic.Uint64
}

// NewTable creates a table that holds up to capacity jobs.
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Table{slots: make([]slot, capacity)}
}

// Cap returns the maximum number of jobs.
func (t *Table) Cap() int {
	return len(t.slots)
}

// Len returns the number of tracked jobs.
func (t *Table) Len() int {
	n := 0
	for i := range t.slots {
		if t.slots[i].load() != 0 {
			n++
		}
	}
	return n
}

// Add starts tracking a running job.
func (t *Table) Add(pid int) error {
	if pid <= 0 || pid > maxPID {
		return ErrInvalidPID
	}
	if i, _ := t.find(pid); i >= 0 {
		return ErrDuplicate
	}

	word := pack(pid, vos.ProcStatus{State: vos.ProcRunning})
	for i := range t.slots {
		s := &t.slots[i]
		if s.load() != 0 {
			continue
		}
		s.order.Store(t.seq.Add(1))
		if s.compareAndSwap(0, word) {
			return nil
		}
	}
	return ErrTableFull
}

// Remove stops tracking the pid. It returns false if the pid wasn't tracked.
func (t *Table) Remove(pid int) bool {
	for {
		i, word := t.find(pid)
		if i < 0 {
			return false
		}
		if t.slots[i].compareAndSwap(word, 0) {
			return true
		}
	}
}

// Lookup returns the recorded status of the pid.
func (t *Table) Lookup(pid int) (vos.ProcStatus, bool) {
	i, word := t.find(pid)
	if i < 0 {
		return vos.ProcStatus{State: vos.ProcNotFound}, false
	}
	_, st := unpack(word)
	return st, true
}

// Poll refreshes a running job's status from the OS and records it if it
// terminated. Untracked pids report ProcNotFound.
func (t *Table) Poll(pid int, w Waiter) vos.ProcStatus {
	i, word := t.find(pid)
	if i < 0 {
		return vos.ProcStatus{State: vos.ProcNotFound}
	}
	if _, st := unpack(word); st.Terminal() {
		return st
	}

	st, cur, ok := t.slots[i].collect(word, w)
	if !ok {
		// The relay is collecting it, report whatever it has recorded.
		if p, curSt := unpack(cur); cur != 0 && p == pid {
			return curSt
		}
		return vos.ProcStatus{State: vos.ProcNotFound}
	}
	return st
}

// ReapAll collects every terminated job without blocking and records its
// final status in place. It never allocates or prints so it's safe to call
// from the signal relay. It returns the number of jobs that transitioned.
func (t *Table) ReapAll(w Waiter) int {
	n := 0
	for i := range t.slots {
		s := &t.slots[i]
		word := s.load()
		if word == 0 {
			continue
		}
		if st, _, ok := s.collect(word, w); ok && st.Terminal() {
			n++
		}
	}
	return n
}

// List returns the tracked jobs in insertion order.
func (t *Table) List() []Entry {
	snap := t.snapshot()
	out := make([]Entry, len(snap))
	for i, s := range snap {
		out[i] = s.Entry
	}
	return out
}

func (t *Table) find(pid int) (int, uint64) {
	for i := range t.slots {
		word := t.slots[i].load()
		if word == 0 {
			continue
		}
		if p, _ := unpack(word); p == pid {
			return i, word
		}
	}
	return -1, 0
}

type snapshotEntry struct {
	Entry
	index int
	word  uint64
	order uint64
}

func (t *Table) snapshot() []snapshotEntry {
	var out []snapshotEntry
	for i := range t.slots {
		s := &t.slots[i]
		word := s.load()
		if word == 0 {
			continue
		}
		order := s.order.Load()
		if s.load() != word {
			// Changed underneath us, take the newer value.
			if word = s.load(); word == 0 {
				continue
			}
			order = s.order.Load()
		}
		pid, st := unpack(word)
		out = append(out, snapshotEntry{
			Entry: Entry{PID: pid, Status: st},
			index: i,
			word:  word,
			order: order,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].order < out[j].order
	})
	for i := range out {
		out[i].Position = i + 1
	}
	return out
}
