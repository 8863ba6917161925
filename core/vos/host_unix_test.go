//go:build unix

package vos

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func requireShell(t *testing.T) string {
	t.Helper()
	const sh = "/bin/sh"
	if _, err := os.Stat(sh); err != nil {
		t.Skipf("%s not available: %v", sh, err)
	}
	return sh
}

func TestHostOS_WaitExitStatus(t *testing.T) {
	sh := requireShell(t)
	host := NewHostOS()

	pid, err := host.StartProcess(sh, []string{"sh", "-c", "exit 3"}, &ProcAttr{})
	require.NoError(t, err)

	st, err := host.Wait(pid)
	require.NoError(t, err)
	assert.Equal(t, ProcStatus{State: ProcExited, Code: 3}, st)
	assert.Equal(t, 3, st.ExitCode())

	// Already reaped.
	assert.Equal(t, ProcNotFound, host.WaitNonblocking(pid).State)
}

func TestHostOS_KillBackground(t *testing.T) {
	sh := requireShell(t)
	host := NewHostOS()

	pid, err := host.StartProcess(sh, []string{"sh", "-c", "sleep 30"}, &ProcAttr{Background: true})
	require.NoError(t, err)

	pgid, err := unix.Getpgid(pid)
	require.NoError(t, err)
	assert.Equal(t, pid, pgid, "background children lead their own process group")

	assert.Equal(t, ProcRunning, host.WaitNonblocking(pid).State)

	require.NoError(t, host.Kill(pid, unix.SIGKILL))
	st, err := host.Wait(pid)
	require.NoError(t, err)
	assert.Equal(t, ProcStatus{State: ProcSignaled, Code: int(unix.SIGKILL)}, st)
	assert.Equal(t, 137, st.ExitCode())

	// Signaling a reaped child is not an error.
	assert.NoError(t, host.Kill(pid, unix.SIGTERM))
}

func TestHostOS_WaitNonblockingUnknown(t *testing.T) {
	host := NewHostOS()
	assert.Equal(t, ProcNotFound, host.WaitNonblocking(1).State)
}
