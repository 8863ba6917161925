package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// AllBuiltins holds all registered shell builtins.
var AllBuiltins = make(map[string]ShellBuiltin)

var builtinUsage = make(map[string]string)

type ShellBuiltin interface {
	Main(s *Shell, args []string) int
}

type ShellBuiltinFunc func(s *Shell, args []string) int

func (f ShellBuiltinFunc) Main(s *Shell, args []string) int {
	return f(s, args)
}

var _ ShellBuiltin = (ShellBuiltinFunc)(nil)

func addBuiltin(name, usage string, fn ShellBuiltinFunc) {
	AllBuiltins[name] = fn
	builtinUsage[name] = usage
}

// BuiltinNames lists the builtins alphabetically.
func BuiltinNames() []string {
	var out []string
	for name := range AllBuiltins {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Cd is the cd shell builtin.
func Cd(s *Shell, args []string) int {
	w := s.VirtualOS.Stderr()

	var target string
	switch len(args) {
	case 1:
		home, err := s.VirtualOS.UserHomeDir()
		if err != nil {
			fmt.Fprintf(w, "cd: %v\n", err)
			return 1
		}
		target = home
	case 2:
		target = args[1]
		if target == "-" {
			if s.prevDir == "" {
				fmt.Fprintln(w, "cd: OLDPWD not set")
				return 1
			}
			target = s.prevDir
			fmt.Fprintln(s.VirtualOS.Stdout(), target)
		}
	default:
		fmt.Fprintln(w, "cd: too many arguments")
		return 1
	}

	if err := s.VirtualOS.Chdir(target); err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			err = pathErr.Err
		}
		fmt.Fprintf(w, "cd: %s: %v\n", target, err)
		return 1
	}

	old := s.cwd
	s.refresh()
	if old != "" {
		s.prevDir = old
		_ = s.VirtualOS.Setenv(EnvOldPWD, old)
	}
	return 0
}

// Pwd prints the working directory.
func Pwd(s *Shell, args []string) int {
	cmd := &SimpleCommand{
		Use:   "pwd",
		Short: "Print the name of the current working directory.",
	}

	return cmd.Run(s, args, func() int {
		wd, err := s.VirtualOS.Getwd()
		if err != nil {
			fmt.Fprintf(s.VirtualOS.Stderr(), "pwd: %v\n", err)
			return 1
		}
		fmt.Fprintln(s.VirtualOS.Stdout(), wd)
		return 0
	})
}

// Help lists the builtins, or describes one of them.
func Help(s *Shell, args []string) int {
	w := s.VirtualOS.Stdout()

	if len(args) > 1 {
		status := 0
		for _, name := range args[1:] {
			usage, ok := builtinUsage[name]
			if !ok {
				fmt.Fprintf(s.VirtualOS.Stderr(), "help: no help topics match `%s'\n", name)
				status = 1
				continue
			}
			fmt.Fprintln(w, usage)
		}
		return status
	}

	fmt.Fprintln(w, "These shell commands are defined internally.")
	fmt.Fprintln(w, "Type `help name' to find out more about the command `name'.")
	fmt.Fprintln(w, "Other commands are looked up in PATH, end a line with & to run it in the background.")
	fmt.Fprintln(w)
	for _, name := range BuiltinNames() {
		fmt.Fprintf(w, "  %s\n", builtinUsage[name])
	}
	return 0
}

// Jobs lists the background jobs in the order they were started.
func Jobs(s *Shell, args []string) int {
	cmd := &SimpleCommand{
		Use:   "jobs [-p] [--color=WHEN]",
		Short: "Display the status of background jobs.",
	}

	opts := cmd.Flags()
	pidsOnly := opts.Bool('p', "list only process IDs")
	colors := NewColorPrinter(s.Config.Color, s.VirtualOS)
	colors.Init(opts, s.VirtualOS)

	return cmd.Run(s, args, func() int {
		w := s.VirtualOS.Stdout()
		entries := s.Jobs.List()

		if *pidsOnly {
			for _, e := range entries {
				fmt.Fprintln(w, e.PID)
			}
			return 0
		}

		if len(entries) == 0 {
			fmt.Fprintln(w, "No active background jobs.")
			return 0
		}

		fmt.Fprintln(w, "Active background jobs:")
		for _, e := range entries {
			state := colors.Sprintf(ColorBoldGreen, "Running")
			if e.Status.Terminal() {
				state = colors.Sprintf(ColorBoldBlue, "Done")
			}
			fmt.Fprintf(w, "[%d] %d %s\n", e.Position, e.PID, state)
		}
		return 0
	})
}

// History shows or clears the command history.
func History(s *Shell, args []string) int {
	cmd := &SimpleCommand{
		Use:   "history [-c] [N]",
		Short: "Display the last N history entries (default 20) or clear them.",
	}

	opts := cmd.Flags()
	clearAll := opts.Bool('c', "clear the history by deleting all entries")

	return cmd.Run(s, args, func() int {
		w := s.VirtualOS.Stdout()

		if *clearAll {
			s.history = nil
			s.Input.ClearHistory()
			return 0
		}

		count := 20
		if rest := opts.Args(); len(rest) > 0 {
			n, err := strconv.Atoi(rest[0])
			if err != nil || n < 0 {
				fmt.Fprintf(s.VirtualOS.Stderr(), "history: %s: numeric argument required\n", rest[0])
				return 1
			}
			count = n
		}

		if len(s.history) == 0 {
			fmt.Fprintln(w, "No commands in history.")
			return 0
		}

		start := 0
		if len(s.history) > count {
			start = len(s.history) - count
		}
		fmt.Fprintln(w, "Command history:")
		for i := start; i < len(s.history); i++ {
			fmt.Fprintf(w, "  %2d  %s\n", i+1, s.history[i])
		}
		return 0
	})
}

var (
	unescapeOctal   = regexp.MustCompile(`\\0[0-7][0-7]?[0-7]?`)
	unescapeHex     = regexp.MustCompile(`\\x[0-9a-fA-F][0-9a-fA-F]?`)
	unescapeReplace = strings.NewReplacer(
		`\n`, "\n", // newline
		`\r`, "\r", // carriage return
		`\t`, "\t", // horizontal tab
		`\\`, `\`, // backslash literal
		`\b`, "\b", // backspace
		`\a`, "\a", // alert
		`\f`, "\f", // form feed
		`\v`, "\v", // vertical tab
	)
)

func unescape(s string) string {
	s = unescapeReplace.Replace(s)
	s = unescapeOctal.ReplaceAllStringFunc(s, func(arg string) string {
		out, err := strconv.ParseUint(arg[2:], 8, 8)
		if err != nil {
			return arg
		}
		return string([]byte{byte(out)})
	})
	s = unescapeHex.ReplaceAllStringFunc(s, func(arg string) string {
		out, err := strconv.ParseUint(arg[2:], 16, 8)
		if err != nil {
			return arg
		}
		return string([]byte{byte(out)})
	})
	return s
}

// Echo implements a limited echo.
func Echo(s *Shell, args []string) int {
	cmd := &SimpleCommand{
		Use:   "echo [-ne] [ARG] ...",
		Short: "Display a line of text.",
	}

	opts := cmd.Flags()
	noNewline := opts.Bool('n', "do not output the trailing newline")
	escaped := opts.Bool('e', "interpret backslash escapes")

	return cmd.Run(s, args, func() int {
		w := s.VirtualOS.Stdout()
		for i, arg := range opts.Args() {
			if i > 0 {
				fmt.Fprint(w, " ")
			}
			if *escaped {
				arg = unescape(arg)
			}
			fmt.Fprint(w, arg)
		}

		if !*noNewline {
			fmt.Fprintln(w)
		}
		return 0
	})
}

// Export sets environment variables, or lists them.
func Export(s *Shell, args []string) int {
	w := s.VirtualOS.Stdout()

	if len(args) == 1 {
		env := s.VirtualOS.Environ()
		sort.Strings(env)
		for _, kv := range env {
			k, v, _ := strings.Cut(kv, "=")
			fmt.Fprintf(w, "export %s='%s'\n", k, v)
		}
		return 0
	}

	status := 0
	for _, arg := range args[1:] {
		k, v, hasValue := strings.Cut(arg, "=")
		if !hasValue {
			// Already in the environment, nothing to do.
			if _, ok := s.VirtualOS.LookupEnv(k); ok {
				continue
			}
			fmt.Fprintf(s.VirtualOS.Stderr(), "export: invalid argument: %s\n", arg)
			status = 1
			continue
		}

		if err := s.VirtualOS.Setenv(k, v); err != nil {
			fmt.Fprintf(s.VirtualOS.Stderr(), "export: %s: %v\n", arg, err)
			status = 1
		}
	}
	return status
}

// Unset removes environment variables.
func Unset(s *Shell, args []string) int {
	cmd := &SimpleCommand{
		Use:   "unset [-v] NAME...",
		Short: "Unset environment variables.",
	}

	opts := cmd.Flags()
	opts.Bool('v', "treat NAME as a variable")

	return cmd.Run(s, args, func() int {
		names := opts.Args()
		if len(names) == 0 {
			fmt.Fprintln(s.VirtualOS.Stderr(), "unset: usage: unset [-v] NAME...")
			return 1
		}

		status := 0
		for _, name := range names {
			if err := s.VirtualOS.Unsetenv(name); err != nil {
				fmt.Fprintf(s.VirtualOS.Stderr(), "unset: %s: %v\n", name, err)
				status = 1
			}
		}
		return status
	})
}

// Alias defines or shows command aliases.
func Alias(s *Shell, args []string) int {
	w := s.VirtualOS.Stdout()

	if len(args) == 1 {
		var names []string
		for name := range s.aliases {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "alias %s='%s'\n", name, s.aliases[name])
		}
		return 0
	}

	status := 0
	for _, arg := range args[1:] {
		name, value, hasValue := strings.Cut(arg, "=")
		switch {
		case name == "":
			fmt.Fprintf(s.VirtualOS.Stderr(), "alias: %s: invalid alias name\n", arg)
			status = 1
		case hasValue:
			s.aliases[name] = value
		default:
			value, ok := s.aliases[name]
			if !ok {
				fmt.Fprintf(s.VirtualOS.Stderr(), "alias: %s: not found\n", name)
				status = 1
				continue
			}
			fmt.Fprintf(w, "alias %s='%s'\n", name, value)
		}
	}
	return status
}

// Unalias removes command aliases.
func Unalias(s *Shell, args []string) int {
	if len(args) == 1 {
		fmt.Fprintln(s.VirtualOS.Stderr(), "unalias: usage: unalias NAME...")
		return 1
	}

	status := 0
	for _, name := range args[1:] {
		if _, ok := s.aliases[name]; !ok {
			fmt.Fprintf(s.VirtualOS.Stderr(), "unalias: %s: not found\n", name)
			status = 1
			continue
		}
		delete(s.aliases, name)
	}
	return status
}

// Exit quits the shell.
func Exit(s *Shell, args []string) int {
	return s.exit(args[1:])
}

func init() {
	addBuiltin("cd", "cd [DIR|-]  change the working directory", Cd)
	addBuiltin("pwd", "pwd  print the working directory", Pwd)
	addBuiltin("help", "help [NAME]  show help for builtins", Help)
	addBuiltin("jobs", "jobs [-p]  list background jobs", Jobs)
	addBuiltin("history", "history [-c] [N]  show or clear command history", History)
	addBuiltin("echo", "echo [-ne] [ARG...]  write arguments to stdout", Echo)
	addBuiltin("export", "export [NAME=VALUE...]  set or list environment variables", Export)
	addBuiltin("unset", "unset NAME...  remove environment variables", Unset)
	addBuiltin("alias", "alias [NAME[=VALUE]...]  define or show aliases", Alias)
	addBuiltin("unalias", "unalias NAME...  remove aliases", Unalias)
	addBuiltin("exit", "exit [N]  exit the shell with status N", Exit)
}

// BuiltinUsage returns the one line usage of a builtin.
func BuiltinUsage(name string) string {
	return builtinUsage[name]
}
