// Package shell turns a command line into an argument list.
//
// Quoting follows the POSIX token recognition rules:
// https://pubs.opengroup.org/onlinepubs/9699919799/utilities/V3_chap02.html
package shell

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/anmitsu/go-shlex"
)

// BackgroundMarker is the trailing token that runs a command in the
// background.
const BackgroundMarker = "&"

// ErrSyntax is returned for lines that can't be tokenized.
var ErrSyntax = errors.New("syntax error")

// Lookup resolves a variable name, "?" is the last exit status.
type Lookup func(name string) string

// Parse expands and tokenizes a command line. Comments are dropped, $NAME,
// ${NAME} and $? are substituted outside single quotes and a leading ~ is
// replaced with $HOME. An empty or comment-only line yields no arguments.
func Parse(line string, lookup Lookup) ([]string, error) {
	if lookup == nil {
		lookup = func(string) string { return "" }
	}
	return split(expand(line, lookup))
}

// ParseLine is Parse for a full command line. An unquoted trailing
// BackgroundMarker, alone or attached to the last word, is removed and
// reported as background.
func ParseLine(line string, lookup Lookup) (args []string, background bool, err error) {
	if lookup == nil {
		lookup = func(string) string { return "" }
	}
	expanded, background := cutBackground(expand(line, lookup))
	args, err = split(expanded)
	return args, background, err
}

func split(line string) ([]string, error) {
	args, err := shlex.Split(line, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, strings.ToLower(err.Error()))
	}
	return args, nil
}

// cutBackground strips the marker if it ends the expanded line outside of
// quotes and isn't escaped.
func cutBackground(line string) (string, bool) {
	trimmed := strings.TrimRightFunc(line, unicode.IsSpace)
	if !strings.HasSuffix(trimmed, BackgroundMarker) {
		return line, false
	}
	end := len(trimmed) - len(BackgroundMarker)

	// Quotes and backslashes are ASCII so a byte scan is safe.
	var quote byte
	for i := 0; i < end; i++ {
		c := trimmed[i]
		switch {
		case quote == '\'':
			if c == '\'' {
				quote = 0
			}
		case c == '\\':
			if i+1 == end {
				return line, false
			}
			i++
		case quote == '"':
			if c == '"' {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		}
	}
	if quote != 0 {
		return line, false
	}
	return trimmed[:end], true
}

func expand(line string, lookup Lookup) string {
	var out strings.Builder
	runes := []rune(line)
	var quote rune
	wordStart := true

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote == '\'':
			if r == '\'' {
				quote = 0
			}
			out.WriteRune(r)

		case r == '\\':
			out.WriteRune(r)
			if i+1 < len(runes) {
				i++
				out.WriteRune(runes[i])
			}

		case r == '$':
			name, n := varName(runes[i+1:])
			if n == 0 {
				out.WriteRune(r)
				break
			}
			writeQuoted(&out, lookup(name), quote == '"')
			i += n

		case quote == '"':
			if r == '"' {
				quote = 0
			}
			out.WriteRune(r)

		case r == '\'' || r == '"':
			quote = r
			out.WriteRune(r)

		case wordStart && r == '#':
			return out.String()

		case wordStart && r == '~' && (i+1 == len(runes) || runes[i+1] == '/' || unicode.IsSpace(runes[i+1])):
			if home := lookup("HOME"); home != "" {
				writeQuoted(&out, home, false)
			} else {
				out.WriteRune(r)
			}

		default:
			out.WriteRune(r)
		}

		wordStart = quote == 0 && unicode.IsSpace(r)
	}
	return out.String()
}

// varName reads the variable reference following a '$' and returns its name
// and the number of runes consumed, zero if it isn't a reference.
func varName(rest []rune) (string, int) {
	if len(rest) == 0 {
		return "", 0
	}

	switch r := rest[0]; {
	case r == '?' || r == '$':
		return string(r), 1
	case r == '{':
		for i := 1; i < len(rest); i++ {
			if rest[i] == '}' {
				if i == 1 {
					return "", 0
				}
				return string(rest[1:i]), i + 1
			}
		}
		return "", 0
	case r == '_' || unicode.IsLetter(r):
		n := 1
		for n < len(rest) && (rest[n] == '_' || unicode.IsLetter(rest[n]) || unicode.IsDigit(rest[n])) {
			n++
		}
		return string(rest[:n]), n
	default:
		return "", 0
	}
}

// writeQuoted writes a substituted value so the tokenizer keeps it literal.
// Unquoted values are still split on whitespace.
func writeQuoted(out *strings.Builder, value string, inDouble bool) {
	for _, r := range value {
		switch {
		case r == '\\' || r == '"':
			out.WriteRune('\\')
		case !inDouble && (r == '\'' || r == '&'):
			out.WriteRune('\\')
		}
		out.WriteRune(r)
	}
}
