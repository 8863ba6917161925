package jobs

import (
	"sync/atomic"

	"github.com/josephlewis42/jobsh/core/vos"
)

// A slot word packs a job into 64 bits so it can be swapped atomically:
//
//	bits 32-63: pid
//	bits 24-31: phase
//	bits  0-23: exit code or signal number
//
// The zero word is a free slot.
const (
	pidShift   = 32
	phaseShift = 24
	codeMask   = 1<<phaseShift - 1
	phaseMask  = 0xff

	maxPID = 1<<31 - 1
)

type phase uint8

const (
	phaseFree phase = iota
	phaseRunning
	phaseExited
	phaseSignaled
	// phaseCollecting marks a running job someone is waiting on. The holder
	// is the only one allowed to call wait for that pid.
	phaseCollecting
)

func pack(pid int, st vos.ProcStatus) uint64 {
	switch st.State {
	case vos.ProcExited:
		return packPhase(pid, phaseExited, st.Code)
	case vos.ProcSignaled:
		return packPhase(pid, phaseSignaled, st.Code)
	default:
		return packPhase(pid, phaseRunning, 0)
	}
}

func packPhase(pid int, p phase, code int) uint64 {
	return uint64(pid)<<pidShift | uint64(p)<<phaseShift | uint64(code)&codeMask
}

func phaseOf(word uint64) phase {
	return phase(word >> phaseShift & phaseMask)
}

// unpack decodes a slot word, a job being collected reads as running.
func unpack(word uint64) (pid int, st vos.ProcStatus) {
	pid = int(word >> pidShift)
	code := int(word & codeMask)
	switch phaseOf(word) {
	case phaseExited:
		st = vos.ProcStatus{State: vos.ProcExited, Code: code}
	case phaseSignaled:
		st = vos.ProcStatus{State: vos.ProcSignaled, Code: code}
	default:
		st = vos.ProcStatus{State: vos.ProcRunning}
	}
	return pid, st
}

// slot holds one job. word is the source of truth, order records when the
// job was added so listings keep insertion order.
type slot struct {
	word  atomic.Uint64
	order atomic.Uint64
}

func (s *slot) load() uint64 {
	return s.word.Load()
}

func (s *slot) compareAndSwap(old, new uint64) bool {
	return s.word.CompareAndSwap(old, new)
}

// collect claims a running job, checks it without blocking and records the
// outcome. ok is false if the job wasn't running or someone else holds the
// claim. A job the OS no longer knows is put back as running for the caller
// to drop.
func (s *slot) collect(word uint64, w Waiter) (st vos.ProcStatus, cur uint64, ok bool) {
	if phaseOf(word) != phaseRunning {
		return vos.ProcStatus{}, word, false
	}
	pid, _ := unpack(word)
	claimed := packPhase(pid, phaseCollecting, 0)
	if !s.compareAndSwap(word, claimed) {
		return vos.ProcStatus{}, s.load(), false
	}

	st = w.WaitNonblocking(pid)
	next := word
	if st.Terminal() {
		next = pack(pid, st)
	}
	if !s.compareAndSwap(claimed, next) {
		// Removed while we held the claim.
		return st, 0, true
	}
	return st, next, true
}
