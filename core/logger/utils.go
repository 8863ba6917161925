package logger

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Event types.
const (
	EventSessionStart = "session_start"
	EventCommand      = "command"
	EventJobStarted   = "job_started"
	EventJobFinished  = "job_finished"
	EventSpawnFailed  = "spawn_failed"
	EventSessionEnd   = "session_end"
)

const (
	keyTimestamp = "timestamp_micros"
	keySession   = "session_id"
	keyType      = "type"
	keyFields    = "fields"
)

// LogRecorder is a callback that stores events in an external datastore.
type LogRecorder func(le *structpb.Struct) error

// Logger captures shell session events.
type Logger struct {
	Record LogRecorder
	// Now is the clock used for timestamps, defaults to time.Now.
	Now func() time.Time
}

// NewJsonLinesLogRecorder creates a Logger that exports logs in newline
// delimited JSON object format.
func NewJsonLinesLogRecorder(w io.Writer) *Logger {
	var mu sync.Mutex
	return &Logger{
		Record: func(le *structpb.Struct) error {
			entry, err := protojson.Marshal(le)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			_, err = fmt.Fprintln(w, string(entry))
			return err
		},
	}
}

func (l *Logger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Logger) record(sessionID, eventType string, fields map[string]interface{}) error {
	payload, err := structpb.NewStruct(fields)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", eventType, err)
	}

	le := &structpb.Struct{Fields: map[string]*structpb.Value{
		keyTimestamp: structpb.NewNumberValue(float64(l.now().UnixMicro())),
		keySession:   structpb.NewStringValue(sessionID),
		keyType:      structpb.NewStringValue(eventType),
		keyFields:    structpb.NewStructValue(payload),
	}}
	return l.Record(le)
}

// NewSession creates a logger with attached session ID.
func (l *Logger) NewSession() *SessionLogger {
	return l.WithSessionID(uuid.NewString())
}

// WithSessionID creates a logger with the given session ID.
func (l *Logger) WithSessionID(id string) *SessionLogger {
	return &SessionLogger{Logger: l, sessionID: id}
}

// SessionLogger logs events with a shared session ID. A nil SessionLogger
// discards everything.
type SessionLogger struct {
	*Logger
	sessionID string
}

// SessionID returns the ID attached to every event.
func (l *SessionLogger) SessionID() string {
	if l == nil {
		return ""
	}
	return l.sessionID
}

// Record logs an event of the given type.
func (l *SessionLogger) Record(eventType string, fields map[string]interface{}) error {
	if l == nil || l.Logger == nil || l.Logger.Record == nil {
		return nil
	}
	return l.record(l.sessionID, eventType, fields)
}

// SessionStart records the start of an interactive session.
func (l *SessionLogger) SessionStart(user, host string, isPTY bool) error {
	return l.Record(EventSessionStart, map[string]interface{}{
		"user":   user,
		"host":   host,
		"is_pty": isPTY,
	})
}

// Command records a dispatched command line. kind is "builtin" or
// "external".
func (l *SessionLogger) Command(argv []string, kind string, background bool) error {
	return l.Record(EventCommand, map[string]interface{}{
		"command":    toList(argv),
		"kind":       kind,
		"background": background,
	})
}

// JobStarted records a new background job.
func (l *SessionLogger) JobStarted(pid int, argv []string) error {
	return l.Record(EventJobStarted, map[string]interface{}{
		"pid":     pid,
		"command": toList(argv),
	})
}

// JobFinished records a background job's final state.
func (l *SessionLogger) JobFinished(pid int, state string, code int) error {
	return l.Record(EventJobFinished, map[string]interface{}{
		"pid":   pid,
		"state": state,
		"code":  code,
	})
}

// SpawnFailed records an external command that couldn't be started.
func (l *SessionLogger) SpawnFailed(argv []string, status int, err error) error {
	return l.Record(EventSpawnFailed, map[string]interface{}{
		"command": toList(argv),
		"status":  status,
		"error":   err.Error(),
	})
}

// SessionEnd records the shell's exit status.
func (l *SessionLogger) SessionEnd(status int) error {
	return l.Record(EventSessionEnd, map[string]interface{}{
		"status": status,
	})
}

func toList(strs []string) []interface{} {
	out := make([]interface{}, len(strs))
	for i, s := range strs {
		out[i] = s
	}
	return out
}
