package jobs

import (
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sys/unix"

	"github.com/josephlewis42/jobsh/core/vos"
)

// DefaultGracePeriod is how long terminated jobs get to exit before they're
// killed.
const DefaultGracePeriod = 100 * time.Millisecond

// Controller is the process control the reaper needs.
type Controller interface {
	Waiter
	Wait(pid int) (vos.ProcStatus, error)
	Kill(pid int, sig unix.Signal) error
}

// Reaper reports finished background jobs and removes them from the table.
// It's run from the interactive loop, never from the signal relay.
type Reaper struct {
	Jobs *Table
	Proc Controller
	Out  io.Writer

	// OnFinish, if set, is called once for every job that leaves the table
	// with a known final status.
	OnFinish func(Entry)
	// Sleep is used to wait out the grace period, defaults to time.Sleep.
	Sleep func(time.Duration)
}

// Reap prints a notice for every job that terminated since the last call and
// removes it. A job is reported at most once, whether the relay or the
// reaper collected it. Jobs the OS no longer knows about are dropped
// silently. It returns the number of jobs reported.
func (r *Reaper) Reap() int {
	reported := 0
	for _, e := range r.Jobs.snapshot() {
		st, word, ok := r.settle(e)
		if !ok {
			continue
		}
		// Only the goroutine that clears the slot reports it.
		if !r.Jobs.slots[e.index].compareAndSwap(word, 0) {
			continue
		}
		e.Status = st
		r.report(e.Entry)
		reported++
	}
	return reported
}

// Add tracks a new background job. A finished job the relay collected but
// that hasn't been reported can hold the pid, after the OS reused it, or the
// last free slot. It's reported first so the new job can take its place.
func (r *Reaper) Add(pid int) error {
	err := r.Jobs.Add(pid)
	if errors.Is(err, ErrDuplicate) || errors.Is(err, ErrTableFull) {
		if r.Reap() > 0 {
			err = r.Jobs.Add(pid)
		}
	}
	return err
}

// settle determines the final status of a snapshot entry. ok is false if the
// job is still running, vanished or is being collected by the relay.
func (r *Reaper) settle(e snapshotEntry) (st vos.ProcStatus, word uint64, ok bool) {
	if e.Status.Terminal() {
		return e.Status, e.word, true
	}

	s := &r.Jobs.slots[e.index]
	st, cur, ok := s.collect(e.word, r.Proc)
	switch {
	case !ok:
		// The relay got there first, take its result if it's ready.
		if pid, curSt := unpack(cur); cur != 0 && pid == e.PID && curSt.Terminal() {
			return curSt, cur, true
		}
		return st, 0, false

	case st.State == vos.ProcNotFound:
		// Collected outside the table, nothing to report.
		s.compareAndSwap(cur, 0)
		return st, 0, false

	case st.Terminal() && cur != 0:
		return st, cur, true

	default:
		return st, 0, false
	}
}

func (r *Reaper) report(e Entry) {
	if r.Out != nil {
		switch e.Status.State {
		case vos.ProcSignaled:
			fmt.Fprintf(r.Out, "[Process %d] Terminated by signal %d\n", e.PID, e.Status.Code)
		default:
			fmt.Fprintf(r.Out, "[Process %d] Done (exit status: %d)\n", e.PID, e.Status.Code)
		}
	}
	if r.OnFinish != nil {
		r.OnFinish(e)
	}
}

// Shutdown asks every tracked job to terminate, waits one grace period, then
// kills whatever is left. Every job is reaped and removed before it returns.
// It returns the number of jobs that were sent SIGTERM.
func (r *Reaper) Shutdown(grace time.Duration) int {
	terminated := 0
	for _, e := range r.Jobs.List() {
		st := r.Jobs.Poll(e.PID, r.Proc)
		if st.State != vos.ProcRunning {
			r.finish(e, st)
			continue
		}
		_ = r.Proc.Kill(e.PID, unix.SIGTERM)
		terminated++
	}

	if terminated > 0 && grace > 0 {
		sleep := r.Sleep
		if sleep == nil {
			sleep = time.Sleep
		}
		sleep(grace)
	}

	for _, e := range r.Jobs.List() {
		st := r.Jobs.Poll(e.PID, r.Proc)
		if st.State == vos.ProcRunning {
			_ = r.Proc.Kill(e.PID, unix.SIGKILL)
			st, _ = r.Proc.Wait(e.PID)
		}
		r.finish(e, st)
	}
	return terminated
}

func (r *Reaper) finish(e Entry, st vos.ProcStatus) {
	if !r.Jobs.Remove(e.PID) {
		return
	}
	if st.Terminal() && r.OnFinish != nil {
		e.Status = st
		r.OnFinish(e)
	}
}
