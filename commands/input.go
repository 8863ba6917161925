package commands

import (
	"errors"

	"github.com/peterh/liner"
)

// ErrInterrupted is returned by a LineReader when the user aborts the line
// with ^C.
var ErrInterrupted = errors.New("interrupted")

// LineReader reads command lines.
type LineReader interface {
	// ReadLine shows the prompt and returns one line without its newline.
	// It returns io.EOF at the end of input.
	ReadLine(prompt string) (string, error)
	AppendHistory(line string)
	ClearHistory()
	Close() error
}

// TerminalReader reads lines with editing and in-memory history.
//
// The terminal is only in raw mode while a prompt is showing so foreground
// children get the terminal the way the user's shell set it up.
type TerminalReader struct {
	state    *liner.State
	cooked   liner.ModeApplier
	uncooked liner.ModeApplier
}

var _ LineReader = (*TerminalReader)(nil)

// NewTerminalReader takes over the terminal attached to stdin.
func NewTerminalReader() *TerminalReader {
	cooked, _ := liner.TerminalMode()

	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	state.SetTabCompletionStyle(liner.TabPrints)

	uncooked, _ := liner.TerminalMode()

	t := &TerminalReader{
		state:    state,
		cooked:   cooked,
		uncooked: uncooked,
	}
	applyMode(t.cooked)
	return t
}

func applyMode(m liner.ModeApplier) {
	if m != nil {
		_ = m.ApplyMode()
	}
}

func (t *TerminalReader) ReadLine(prompt string) (string, error) {
	applyMode(t.uncooked)
	defer applyMode(t.cooked)

	line, err := t.state.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", ErrInterrupted
	}
	return line, err
}

func (t *TerminalReader) AppendHistory(line string) {
	t.state.AppendHistory(line)
}

func (t *TerminalReader) ClearHistory() {
	t.state.ClearHistory()
}

// SetCompleter completes the first word of a line.
func (t *TerminalReader) SetCompleter(complete func(prefix string) []string) {
	t.state.SetCompleter(liner.Completer(complete))
}

func (t *TerminalReader) Close() error {
	return t.state.Close()
}
