package logger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// LogEntry is a decoded event.
type LogEntry struct {
	TimestampMicros int64
	SessionID       string
	Type            string
	Fields          map[string]interface{}
}

// GetString returns a string field, or "" if it's missing.
func (le *LogEntry) GetString(key string) string {
	s, _ := le.Fields[key].(string)
	return s
}

// GetInt returns a numeric field, or 0 if it's missing.
func (le *LogEntry) GetInt(key string) int {
	f, _ := le.Fields[key].(float64)
	return int(f)
}

// GetBool returns a boolean field.
func (le *LogEntry) GetBool(key string) bool {
	b, _ := le.Fields[key].(bool)
	return b
}

// GetStrings returns a list field as strings.
func (le *LogEntry) GetStrings(key string) []string {
	list, _ := le.Fields[key].([]interface{})
	var out []string
	for _, v := range list {
		out = append(out, fmt.Sprint(v))
	}
	return out
}

// ReadJSONLinesLog parses a newline delimited JSON log.
func ReadJSONLinesLog(r io.Reader, handler func(le *LogEntry)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var raw structpb.Struct
		if err := protojson.Unmarshal([]byte(line), &raw); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}

		entry := raw.AsMap()
		le := &LogEntry{}
		if ts, ok := entry[keyTimestamp].(float64); ok {
			le.TimestampMicros = int64(ts)
		}
		le.SessionID, _ = entry[keySession].(string)
		le.Type, _ = entry[keyType].(string)
		le.Fields, _ = entry[keyFields].(map[string]interface{})
		handler(le)
	}
	return scanner.Err()
}

// NewReport creates an empty report.
func NewReport() *Report {
	return &Report{
		Jobs: JobReport{
			Outcomes: NewPathCounter("state", "code"),
		},
		SpawnFailures: NewPathCounter("command", "status"),
	}
}

// Report holds statistics about the logged events.
type Report struct {
	LogEntries     int        `json:"log_entries"`
	Sessions       int        `json:"sessions"`
	InvalidEntries StrCounter `json:"unknown_log_entries,omitempty"`

	Commands      CommandReport `json:"command_report"`
	Jobs          JobReport     `json:"job_report"`
	ExitStatuses  StrCounter    `json:"exit_statuses"`
	SpawnFailures *PathCounter  `json:"spawn_failures"`
}

func (r *Report) Update(le *LogEntry) {
	r.LogEntries++

	switch le.Type {
	case EventSessionStart:
		r.Sessions++
	case EventCommand:
		r.Commands.update(le)
	case EventJobStarted:
		r.Jobs.Started++
	case EventJobFinished:
		r.Jobs.Outcomes.Increment(le.GetString("state"), fmt.Sprint(le.GetInt("code")))
	case EventSpawnFailed:
		name := ""
		if cmd := le.GetStrings("command"); len(cmd) > 0 {
			name = cmd[0]
		}
		r.SpawnFailures.Increment(name, fmt.Sprint(le.GetInt("status")))
	case EventSessionEnd:
		r.ExitStatuses.Increment(fmt.Sprint(le.GetInt("status")))
	default:
		r.InvalidEntries.Increment(le.Type)
	}
}

type CommandReport struct {
	// Name of the command
	CommandNames StrCounter `json:"command_names"`
	// Builtin or external
	Kinds      StrCounter `json:"kinds"`
	Background int        `json:"background"`
}

func (r *CommandReport) update(le *LogEntry) {
	if cmd := le.GetStrings("command"); len(cmd) > 0 {
		r.CommandNames.Increment(cmd[0])
	}
	r.Kinds.Increment(le.GetString("kind"))
	if le.GetBool("background") {
		r.Background++
	}
}

type JobReport struct {
	Started  int          `json:"started"`
	Outcomes *PathCounter `json:"outcomes"`
}

// StrCounter counts the number of strings seen.
type StrCounter struct {
	internal map[string]int
}

// Increment adds one to the given key.
func (s *StrCounter) Increment(toAdd string) {
	if s.internal == nil {
		s.internal = make(map[string]int)
	}

	s.internal[toAdd]++
}

// Get returns the count for the key.
func (s *StrCounter) Get(key string) int {
	return s.internal[key]
}

// MarshalJSON implements a custom JSON marshaler.
func (s StrCounter) MarshalJSON() ([]byte, error) {
	if s.internal == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.internal)
}

func NewPathCounter(cols ...string) *PathCounter {
	return &PathCounter{
		cols:     cols,
		internal: make(map[string]int),
	}
}

// PathCounter counts tuples of strings.
type PathCounter struct {
	cols     []string
	internal map[string]int
}

// Increment adds one to the given key.
func (ctr *PathCounter) Increment(toAdd ...string) {
	if len(toAdd) != len(ctr.cols) {
		panic("wrong number of columns to add")
	}

	ctr.internal[toKey(toAdd...)]++
}

// Get returns the count for the tuple.
func (ctr *PathCounter) Get(vals ...string) int {
	return ctr.internal[toKey(vals...)]
}

// MarshalJSON implements a custom JSON marshaler.
func (ctr *PathCounter) MarshalJSON() ([]byte, error) {
	type Count struct {
		Count  int               `json:"count"`
		Fields map[string]string `json:"event"`
		Path   string            `json:"-"`
	}

	out := []Count{}
	for k, v := range ctr.internal {
		count := Count{
			Count:  v,
			Path:   k,
			Fields: make(map[string]string),
		}

		splitPath := fromKey(k)
		for colNum, colVal := range ctr.cols {
			count.Fields[colVal] = splitPath[colNum]
		}

		out = append(out, count)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Path < out[j].Path
		}
		return out[i].Count > out[j].Count
	})

	return json.Marshal(out)
}

func toKey(vals ...string) string {
	key, _ := json.Marshal(vals)
	return string(key)
}

func fromKey(key string) (out []string) {
	json.Unmarshal([]byte(key), &out)
	return
}

// SessionSummary describes one shell session in the event log.
type SessionSummary struct {
	ID             string `json:"id"`
	User           string `json:"user,omitempty"`
	Host           string `json:"host,omitempty"`
	StartMicros    int64  `json:"start_micros"`
	Commands       int    `json:"commands"`
	BackgroundJobs int    `json:"background_jobs"`
	// RunningJobs counts jobs started without a recorded finish.
	RunningJobs int  `json:"running_jobs"`
	ExitStatus  *int `json:"exit_status,omitempty"`

	running map[int]bool
}

// SessionIndex groups events by session.
type SessionIndex struct {
	order []string
	byID  map[string]*SessionSummary
}

// NewSessionIndex creates an empty index.
func NewSessionIndex() *SessionIndex {
	return &SessionIndex{byID: make(map[string]*SessionSummary)}
}

func (idx *SessionIndex) get(id string, ts int64) *SessionSummary {
	if s, ok := idx.byID[id]; ok {
		return s
	}
	s := &SessionSummary{ID: id, StartMicros: ts, running: make(map[int]bool)}
	idx.byID[id] = s
	idx.order = append(idx.order, id)
	return s
}

// Update adds the event to its session.
func (idx *SessionIndex) Update(le *LogEntry) {
	s := idx.get(le.SessionID, le.TimestampMicros)

	switch le.Type {
	case EventSessionStart:
		s.User = le.GetString("user")
		s.Host = le.GetString("host")
		s.StartMicros = le.TimestampMicros
	case EventCommand:
		s.Commands++
	case EventJobStarted:
		s.BackgroundJobs++
		s.running[le.GetInt("pid")] = true
	case EventJobFinished:
		delete(s.running, le.GetInt("pid"))
	case EventSessionEnd:
		status := le.GetInt("status")
		s.ExitStatus = &status
	}
	s.RunningJobs = len(s.running)
}

// Has reports whether the session appears in the log.
func (idx *SessionIndex) Has(id string) bool {
	_, ok := idx.byID[id]
	return ok
}

// List returns the sessions in the order they first appear.
func (idx *SessionIndex) List() []SessionSummary {
	out := make([]SessionSummary, 0, len(idx.order))
	for _, id := range idx.order {
		out = append(out, *idx.byID[id])
	}
	return out
}
