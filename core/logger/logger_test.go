package logger

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"
)

func newTestLogger(buf *bytes.Buffer) *SessionLogger {
	l := NewJsonLinesLogRecorder(buf)
	l.Now = func() time.Time {
		return time.Date(2006, 1, 2, 3, 4, 5, 0, time.UTC)
	}
	return l.WithSessionID("session-1")
}

func readAll(t *testing.T, buf *bytes.Buffer) []*LogEntry {
	t.Helper()
	var out []*LogEntry
	require.NoError(t, ReadJSONLinesLog(buf, func(le *LogEntry) {
		out = append(out, le)
	}))
	return out
}

func TestSessionLogger_RoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	l := newTestLogger(buf)

	require.NoError(t, l.SessionStart("user", "host", true))
	require.NoError(t, l.Command([]string{"sleep", "5"}, "external", true))
	require.NoError(t, l.JobStarted(1000, []string{"sleep", "5"}))
	require.NoError(t, l.JobFinished(1000, "Exited", 0))
	require.NoError(t, l.SpawnFailed([]string{"nope"}, 127, errors.New("not found")))
	require.NoError(t, l.SessionEnd(3))

	entries := readAll(t, buf)
	require.Len(t, entries, 6)

	first := entries[0]
	assert.Equal(t, "session-1", first.SessionID)
	assert.Equal(t, EventSessionStart, first.Type)
	assert.Equal(t, time.Date(2006, 1, 2, 3, 4, 5, 0, time.UTC).UnixMicro(), first.TimestampMicros)
	assert.Equal(t, "user", first.GetString("user"))
	assert.True(t, first.GetBool("is_pty"))

	assert.Equal(t, []string{"sleep", "5"}, entries[1].GetStrings("command"))
	assert.Equal(t, 1000, entries[2].GetInt("pid"))
	assert.Equal(t, "not found", entries[4].GetString("error"))
	assert.Equal(t, 3, entries[5].GetInt("status"))
}

func TestSessionLogger_Nil(t *testing.T) {
	var l *SessionLogger
	assert.NoError(t, l.SessionEnd(0))
	assert.Equal(t, "", l.SessionID())
}

func TestNewSession_UniqueIDs(t *testing.T) {
	l := NewJsonLinesLogRecorder(&bytes.Buffer{})
	assert.NotEqual(t, l.NewSession().SessionID(), l.NewSession().SessionID())
}

func TestReadJSONLinesLog_Invalid(t *testing.T) {
	err := ReadJSONLinesLog(bytes.NewBufferString("{}\nnot json\n"), func(*LogEntry) {})
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "line 2")
	}
}

func TestReport(t *testing.T) {
	buf := &bytes.Buffer{}
	l := newTestLogger(buf)

	l.SessionStart("user", "host", false)
	l.Command([]string{"pwd"}, "builtin", false)
	l.Command([]string{"sleep", "1"}, "external", true)
	l.Command([]string{"sleep", "2"}, "external", true)
	l.JobFinished(1000, "Exited", 0)
	l.JobFinished(1001, "Signaled", 15)
	l.SpawnFailed([]string{"nope"}, 127, errors.New("not found"))
	l.Record("mystery", nil)
	l.SessionEnd(0)

	report := NewReport()
	for _, le := range readAll(t, buf) {
		report.Update(le)
	}

	assert.Equal(t, 9, report.LogEntries)
	assert.Equal(t, 1, report.Sessions)
	assert.Equal(t, 2, report.Commands.CommandNames.Get("sleep"))
	assert.Equal(t, 1, report.Commands.Kinds.Get("builtin"))
	assert.Equal(t, 2, report.Commands.Background)
	assert.Equal(t, 1, report.Jobs.Outcomes.Get("Signaled", "15"))
	assert.Equal(t, 1, report.SpawnFailures.Get("nope", "127"))
	assert.Equal(t, 1, report.ExitStatuses.Get("0"))
	assert.Equal(t, 1, report.InvalidEntries.Get("mystery"))

	_, err := yaml.Marshal(report)
	assert.NoError(t, err)
}

func TestSessionIndex(t *testing.T) {
	buf := &bytes.Buffer{}
	first := newTestLogger(buf)
	second := first.Logger.WithSessionID("session-2")

	first.SessionStart("alice", "web", true)
	first.Command([]string{"sleep", "1"}, "external", true)
	first.JobStarted(1000, []string{"sleep", "1"})
	second.SessionStart("bob", "db", false)
	first.Command([]string{"sleep", "2"}, "external", true)
	first.JobStarted(1001, []string{"sleep", "2"})
	first.JobFinished(1000, "Exited", 0)
	first.SessionEnd(4)

	idx := NewSessionIndex()
	for _, le := range readAll(t, buf) {
		idx.Update(le)
	}

	status := 4
	assert.True(t, idx.Has("session-2"))
	assert.False(t, idx.Has("session-3"))
	assert.Equal(t, []SessionSummary{
		{
			ID:             "session-1",
			User:           "alice",
			Host:           "web",
			StartMicros:    1136171045000000,
			Commands:       2,
			BackgroundJobs: 2,
			RunningJobs:    1,
			ExitStatus:     &status,
			running:        map[int]bool{1001: true},
		},
		{
			ID:          "session-2",
			User:        "bob",
			Host:        "db",
			StartMicros: 1136171045000000,
			running:     map[int]bool{},
		},
	}, idx.List())

	_, err := yaml.Marshal(idx.List())
	assert.NoError(t, err)
}
