package commands

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	getopt "github.com/pborman/getopt/v2"

	"github.com/josephlewis42/jobsh/core/config"
	"github.com/josephlewis42/jobsh/core/vos"
)

type SimpleCommand struct {
	// Use holds a one line usage string
	Use string
	// Short holds a one line description of the command.
	Short string
	// ShowHelp sets whether help is displayed or not.
	// If this is non-nil when Run() is called, then the default help flag isn't
	// added.
	ShowHelp *bool

	flags *getopt.Set
}

// Flags gets the command's flag set.
func (s *SimpleCommand) Flags() *getopt.Set {
	if s.flags == nil {
		s.flags = getopt.New()
	}

	return s.flags
}

// PrintHelp writes help for the command to the given writer.
func (s *SimpleCommand) PrintHelp(w io.Writer) {
	fmt.Fprint(w, "usage: ")
	fmt.Fprintln(w, s.Use)
	fmt.Fprintln(w, s.Short)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	s.Flags().PrintOptions(w)
}

// Run the command, if flag parsing was successful call the callback.
func (s *SimpleCommand) Run(sh *Shell, args []string, callback func() int) int {
	opts := s.Flags()

	// Add help flag if not overridden.
	if s.ShowHelp == nil {
		s.ShowHelp = opts.BoolLong("help", 'h', "show this help and exit")
	}

	if err := opts.Getopt(args, nil); err != nil {
		sh.Log.Printf("invalid invocation of %q: %v\n", args, err)
		sh.printError(err.Error())
		s.PrintHelp(sh.VirtualOS.Stderr())
		return 1
	}

	if *s.ShowHelp {
		s.PrintHelp(sh.VirtualOS.Stdout())
		return 0
	}

	return callback()
}

var (
	ColorBoldBlue  = color.New(color.FgBlue, color.Bold)
	ColorBoldGreen = color.New(color.FgGreen, color.Bold)
	ColorBoldCyan  = color.New(color.FgCyan, color.Bold)
	ColorBoldRed   = color.New(color.FgRed, color.Bold)
)

// ColorPrinter decides whether output gets colored.
type ColorPrinter struct {
	value  *string
	virtOS vos.VOS
}

// NewColorPrinter creates a printer using mode, one of auto, always or
// never.
func NewColorPrinter(mode string, virtOS vos.VOS) *ColorPrinter {
	return &ColorPrinter{value: &mode, virtOS: virtOS}
}

// Init adds a --color flag that overrides the printer's mode.
func (c *ColorPrinter) Init(flags *getopt.Set, virtOS vos.VOS) {
	c.virtOS = virtOS
	def := config.ColorAuto
	if c.value != nil {
		def = *c.value
	}
	c.value = flags.EnumLong(
		"color",
		rune(0), // No short flag.
		[]string{config.ColorAlways, config.ColorAuto, config.ColorNever},
		def,
		"colorize the output (always|auto|never)")
}

func (c *ColorPrinter) ShouldColor() bool {
	switch {
	case c.value == nil || *c.value == config.ColorNever:
		return false
	case *c.value == config.ColorAlways:
		return true
	default:
		return c.virtOS.GetPTY().IsPTY
	}
}

func (c *ColorPrinter) Sprintf(col *color.Color, format string, a ...interface{}) string {
	if c.ShouldColor() {
		// Decided here rather than by the package level NoColor.
		forced := *col
		forced.EnableColor()
		return forced.Sprintf(format, a...)
	}
	return fmt.Sprintf(format, a...)
}
