package sigrelay

import (
	"bytes"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/josephlewis42/jobsh/core/jobs"
	"github.com/josephlewis42/jobsh/core/vos"
	"github.com/josephlewis42/jobsh/core/vos/vostest"
)

type fakeNotifier struct {
	mu      sync.Mutex
	failOn  os.Signal
	c       chan<- os.Signal
	sigs    []os.Signal
	stopped bool
}

func (f *fakeNotifier) Notify(c chan<- os.Signal, sig ...os.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range sig {
		if s == f.failOn {
			return errors.New("EINVAL")
		}
	}
	f.c = c
	f.sigs = append(f.sigs, sig...)
	return nil
}

func (f *fakeNotifier) Stop(c chan<- os.Signal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeNotifier) send(sig os.Signal) {
	f.mu.Lock()
	c := f.c
	f.mu.Unlock()
	c <- sig
}

type fixture struct {
	flags  *Flags
	table  *jobs.Table
	testOS *vostest.TestOS
	stderr *bytes.Buffer
	relay  *Relay
}

func newFixture() *fixture {
	f := &fixture{
		flags:  &Flags{},
		table:  jobs.NewTable(8),
		testOS: vostest.NewTestOS(),
		stderr: &bytes.Buffer{},
	}
	f.testOS.Programs["sleep"] = func(*vostest.Process) {}
	f.relay = New(f.flags, f.table, f.testOS, f.stderr)
	return f
}

func (f *fixture) startJob(t *testing.T) int {
	t.Helper()
	pid, err := f.testOS.StartProcess("/bin/sleep", []string{"sleep", "5"}, &vos.ProcAttr{Background: true})
	require.NoError(t, err)
	require.NoError(t, f.table.Add(pid))
	return pid
}

func TestRelay_HandleInterrupt(t *testing.T) {
	f := newFixture()

	f.relay.Handle(unix.SIGINT)

	assert.True(t, f.flags.Pending(Interrupt))
	assert.False(t, f.flags.Pending(Suspend))
	assert.Empty(t, f.stderr.String())
}

func TestRelay_HandleSuspend(t *testing.T) {
	f := newFixture()

	f.relay.Handle(unix.SIGTSTP)

	assert.True(t, f.flags.Pending(Suspend))
	assert.False(t, f.flags.Pending(Interrupt))
	assert.Equal(t, SuspendNotice, f.stderr.String())
}

func TestRelay_HandleChild(t *testing.T) {
	f := newFixture()
	exited, running := f.startJob(t), f.startJob(t)

	f.testOS.Process(exited).Exit(2)
	f.relay.Handle(unix.SIGCHLD)

	st, ok := f.table.Lookup(exited)
	assert.True(t, ok, "the reaper removes jobs, not the relay")
	assert.Equal(t, vos.ProcStatus{State: vos.ProcExited, Code: 2}, st)
	assert.True(t, f.testOS.Reaped(exited))

	st, _ = f.table.Lookup(running)
	assert.Equal(t, vos.ProcRunning, st.State)
	assert.False(t, f.testOS.Reaped(running))
	assert.Empty(t, f.stderr.String())
}

func TestRelay_Start(t *testing.T) {
	f := newFixture()
	n := &fakeNotifier{}

	require.NoError(t, f.relay.Start(n))
	defer f.relay.Stop()
	assert.Equal(t, Signals, n.sigs)

	n.send(unix.SIGINT)
	assert.Eventually(t, func() bool {
		return f.flags.Pending(Interrupt)
	}, time.Second, time.Millisecond)

	assert.ErrorIs(t, f.relay.Start(n), ErrRegistration)
}

func TestRelay_StartFailure(t *testing.T) {
	f := newFixture()
	n := &fakeNotifier{failOn: unix.SIGCHLD}

	err := f.relay.Start(n)
	assert.ErrorIs(t, err, ErrRegistration)
	assert.Contains(t, err.Error(), "SIGCHLD")
	assert.True(t, n.stopped)

	// Nothing was started so stopping is a no-op.
	f.relay.Stop()
}

func TestRelay_Stop(t *testing.T) {
	f := newFixture()
	n := &fakeNotifier{}
	require.NoError(t, f.relay.Start(n))

	f.relay.Stop()
	assert.True(t, n.stopped)
	f.relay.Stop()
}

func TestOSNotifier(t *testing.T) {
	c := make(chan os.Signal, 1)
	assert.Error(t, OSNotifier{}.Notify(c))
	assert.Error(t, OSNotifier{}.Notify(c, os.Interrupt, unix.Signal(0)))

	require.NoError(t, OSNotifier{}.Notify(c, unix.SIGUSR1))
	defer OSNotifier{}.Stop(c)

	require.NoError(t, unix.Kill(os.Getpid(), unix.SIGUSR1))
	select {
	case sig := <-c:
		assert.Equal(t, unix.SIGUSR1, sig)
	case <-time.After(5 * time.Second):
		t.Fatal("signal not delivered")
	}
}
