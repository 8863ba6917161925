package commands

import (
	"errors"
	"fmt"
	"io"
	"log"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/josephlewis42/jobsh/core/config"
	"github.com/josephlewis42/jobsh/core/jobs"
	"github.com/josephlewis42/jobsh/core/logger"
	"github.com/josephlewis42/jobsh/core/shell"
	"github.com/josephlewis42/jobsh/core/sigrelay"
	"github.com/josephlewis42/jobsh/core/vos"
)

const (
	EnvOldPWD     = "OLDPWD"
	DefaultPrompt = `\u@\h:\w\$ `

	defaultUser = "user"
	defaultHost = "localhost"

	// maxReadErrors consecutive read failures are treated as end of input.
	maxReadErrors = 100
)

// LoopState is a state of the interactive loop.
type LoopState int

const (
	// StateIdle checks pending signal events and reaps finished jobs.
	StateIdle LoopState = iota
	// StateReading blocks for one line of input.
	StateReading
	// StateDispatching runs the line that was read.
	StateDispatching
	// StateTerminating stops background jobs and prints the exit status.
	StateTerminating
	// StateDone means the loop has finished.
	StateDone
)

var loopStateNames = []string{"Idle", "Reading", "Dispatching", "Terminating", "Done"}

func (s LoopState) String() string {
	if s < 0 || int(s) >= len(loopStateNames) {
		return fmt.Sprintf("LoopState(%d)", int(s))
	}
	return loopStateNames[s]
}

// Shell is an interactive session. It owns the session state and is only
// used from one goroutine; the job table and flags are shared with the
// signal relay.
type Shell struct {
	VirtualOS vos.VOS
	Input     LineReader
	Config    *config.Configuration
	Jobs      *jobs.Table
	Flags     *sigrelay.Flags
	Events    *logger.SessionLogger
	Log       *log.Logger

	reaper *jobs.Reaper
	colors *ColorPrinter

	state      LoopState
	started    bool
	line       string
	readErrors int

	running  bool
	lastRet  int
	exitCode int
	cwd      string
	prevDir  string
	prompt   string
	history  []string
	aliases  map[string]string
}

// NewShell creates a shell reading from input. A nil configuration uses the
// defaults.
func NewShell(virtualOS vos.VOS, input LineReader, cfg *config.Configuration) *Shell {
	if cfg == nil {
		cfg = config.Default()
	}

	s := &Shell{
		VirtualOS: virtualOS,
		Input:     input,
		Config:    cfg,
		Jobs:      jobs.NewTable(cfg.MaxJobs),
		Flags:     &sigrelay.Flags{},
		Log:       log.New(io.Discard, "", 0),
		colors:    NewColorPrinter(cfg.Color, virtualOS),
		state:     StateIdle,
		running:   true,
		aliases:   make(map[string]string),
	}

	s.reaper = &jobs.Reaper{
		Jobs:     s.Jobs,
		Proc:     virtualOS,
		Out:      virtualOS.Stdout(),
		OnFinish: s.jobFinished,
	}

	s.refresh()
	return s
}

// Run steps the loop until it's done and returns the exit status.
func (s *Shell) Run() int {
	for s.Step() != StateDone {
	}
	return s.exitCode
}

// Step runs the current state once and returns the next one.
func (s *Shell) Step() LoopState {
	s.start()

	switch s.state {
	case StateIdle:
		s.state = s.idle()
	case StateReading:
		s.state = s.reading()
	case StateDispatching:
		s.state = s.dispatching()
	case StateTerminating:
		s.state = s.terminating()
	}
	return s.state
}

func (s *Shell) start() {
	if s.started {
		return
	}
	s.started = true

	w := s.VirtualOS.Stdout()
	if s.Config.Banner {
		fmt.Fprintln(w, s.colors.Sprintf(ColorBoldCyan, "=== jobsh ==="))
		fmt.Fprintln(w, "Type 'help' for commands or 'exit' to quit.")
		fmt.Fprintln(w)
	}

	user, host := s.identity()
	if err := s.Events.SessionStart(user, host, s.VirtualOS.GetPTY().IsPTY); err != nil {
		s.Log.Printf("recording session start: %v\n", err)
	}
}

func (s *Shell) idle() LoopState {
	s.reaper.Reap()

	if s.Flags.Take(sigrelay.Interrupt) {
		fmt.Fprintln(s.VirtualOS.Stdout())
		return StateIdle
	}
	if s.Flags.Take(sigrelay.Suspend) {
		fmt.Fprintln(s.VirtualOS.Stdout(), "Use 'exit' to quit the shell.")
		return StateIdle
	}
	if !s.running {
		return StateTerminating
	}
	return StateReading
}

func (s *Shell) reading() LoopState {
	line, err := s.Input.ReadLine(s.prompt)
	switch {
	case err == nil:
		s.readErrors = 0
		s.line = line
		return StateDispatching

	case errors.Is(err, io.EOF):
		fmt.Fprintln(s.VirtualOS.Stdout())
		s.running = false
		s.exitCode = 0
		return StateTerminating

	case errors.Is(err, ErrInterrupted):
		s.Flags.Raise(sigrelay.Interrupt)
		return StateIdle

	default:
		s.readErrors++
		s.printError(fmt.Sprintf("read error: %v", err))
		if s.readErrors >= maxReadErrors {
			s.running = false
			return StateTerminating
		}
		return StateIdle
	}
}

// dispatching runs one line. A panic is reported and the loop continues.
func (s *Shell) dispatching() (next LoopState) {
	line := s.line
	s.line = ""

	defer func() {
		if r := recover(); r != nil {
			s.Log.Printf("panic running %q: %v\n%s", line, r, debug.Stack())
			s.printError(fmt.Sprintf("Shell error: %v", r))
			next = StateIdle
			if !s.running {
				next = StateTerminating
			}
		}
	}()

	if err := s.runLine(line); err != nil {
		s.printError(err.Error())
	}
	if !s.running {
		return StateTerminating
	}
	return StateIdle
}

func (s *Shell) runLine(line string) error {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	s.addHistory(line)

	args, background, err := shell.ParseLine(line, s.lookupVar)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}

	args, err = s.expandAlias(args)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}

	kind := Classify(args[0])
	if err := s.Events.Command(args, kind.String(), background && kind == External); err != nil {
		s.Log.Printf("recording command: %v\n", err)
	}

	if status, ok := s.Dispatch(args, background); ok {
		s.lastRet = status
	}
	s.refresh()
	return nil
}

func (s *Shell) terminating() LoopState {
	w := s.VirtualOS.Stdout()
	fmt.Fprintln(w, "Cleaning up shell resources...")
	if s.Jobs.Len() > 0 {
		fmt.Fprintln(w, "Terminating background processes...")
		s.reaper.Shutdown(s.Config.GracePeriodDuration())
	}
	fmt.Fprintf(w, "Shell exited with status: %d\n", s.exitCode)

	if err := s.Events.SessionEnd(s.exitCode); err != nil {
		s.Log.Printf("recording session end: %v\n", err)
	}
	return StateDone
}

// exit stops the loop with the status in args, 0 if there's none.
func (s *Shell) exit(args []string) int {
	code := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			s.printError(fmt.Sprintf("Invalid exit code: %s", args[0]))
			n = 1
		}
		code = n
	}

	s.lastRet = code
	s.exitCode = code
	s.running = false
	return code
}

func (s *Shell) jobFinished(e jobs.Entry) {
	if err := s.Events.JobFinished(e.PID, e.Status.State.String(), e.Status.Code); err != nil {
		s.Log.Printf("recording job %d: %v\n", e.PID, err)
	}
}

func (s *Shell) lookupVar(name string) string {
	switch name {
	case "?":
		return strconv.Itoa(s.lastRet)
	case "$":
		return strconv.Itoa(s.VirtualOS.Getpid())
	default:
		return s.VirtualOS.Getenv(name)
	}
}

// expandAlias replaces an aliased first word, aliases aren't expanded
// recursively.
func (s *Shell) expandAlias(args []string) ([]string, error) {
	value, ok := s.aliases[args[0]]
	if !ok {
		return args, nil
	}
	expanded, err := shell.Parse(value, s.lookupVar)
	if err != nil {
		return nil, fmt.Errorf("alias %s: %w", args[0], err)
	}
	return append(expanded, args[1:]...), nil
}

func (s *Shell) addHistory(line string) {
	s.history = append(s.history, line)
	if limit := s.Config.HistoryLimit; limit > 0 && len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.Input.AppendHistory(line)
}

// refresh re-reads the working directory and recomputes the prompt.
func (s *Shell) refresh() {
	if cwd, err := s.VirtualOS.Getwd(); err != nil {
		s.printError(fmt.Sprintf("getwd: %v", err))
	} else {
		s.cwd = cwd
		_ = s.VirtualOS.Setenv(vos.EnvPWD, cwd)
	}
	s.prompt = s.renderPrompt()
}

func (s *Shell) identity() (user, host string) {
	user = s.VirtualOS.Username()
	if user == "" {
		user = defaultUser
	}

	host, err := s.VirtualOS.Hostname()
	if err != nil || host == "" {
		host = defaultHost
	}
	// Like \h, only the first component.
	host = strings.SplitN(host, ".", 2)[0]
	return user, host
}

func (s *Shell) renderPrompt() string {
	prompt := s.Config.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}

	user, host := s.identity()
	pwd := s.cwd
	if home, err := s.VirtualOS.UserHomeDir(); err == nil && home != "/" {
		if pwd == home || strings.HasPrefix(pwd, home+"/") {
			pwd = "~" + strings.TrimPrefix(pwd, home)
		}
	}

	sign := "$"
	if user == "root" {
		sign = "#"
	}

	return strings.NewReplacer(
		`\u`, user,
		`\h`, host,
		`\w`, pwd,
		`\$`, sign,
	).Replace(prompt)
}

// printError reports a recoverable error on stderr.
func (s *Shell) printError(msg string) {
	label := s.colors.Sprintf(ColorBoldRed, "error:")
	fmt.Fprintf(s.VirtualOS.Stderr(), "%s: %s %s\n", s.Config.ErrorPrefix, label, msg)
}

// Complete suggests builtins and aliases for the first word of a line.
func (s *Shell) Complete(line string) []string {
	if strings.ContainsAny(line, " \t") {
		return nil
	}
	var out []string
	for _, name := range BuiltinNames() {
		if strings.HasPrefix(name, line) {
			out = append(out, name)
		}
	}
	for name := range s.aliases {
		if strings.HasPrefix(name, line) {
			out = append(out, name)
		}
	}
	return out
}

// Close releases the input.
func (s *Shell) Close() error {
	return s.Input.Close()
}

// State returns the state the next Step will run.
func (s *Shell) State() LoopState { return s.state }

// Running is false once exit was requested or input ended.
func (s *Shell) Running() bool { return s.running }

// LastStatus is the status of the last builtin or foreground command, $?.
func (s *Shell) LastStatus() int { return s.lastRet }

// ExitCode is the status the shell exits with.
func (s *Shell) ExitCode() int { return s.exitCode }

// Cwd is the working directory as of the last refresh.
func (s *Shell) Cwd() string { return s.cwd }

// Prompt is the rendered prompt.
func (s *Shell) Prompt() string { return s.prompt }
