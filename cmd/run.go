package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/josephlewis42/jobsh/commands"
	"github.com/josephlewis42/jobsh/core/logger"
	"github.com/josephlewis42/jobsh/core/sigrelay"
	"github.com/josephlewis42/jobsh/core/vos"
)

// runShell runs an interactive session on the host and exits the process
// with the session's status.
func runShell(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}

	diag := log.New(io.Discard, "", 0)
	if debug {
		diag = log.New(cmd.ErrOrStderr(), "[jobsh] ", 0)
	}

	logFd, err := cfg.OpenEventLog()
	if err != nil {
		return err
	}

	hostOS := vos.NewHostOS()
	input := commands.NewTerminalReader()

	sh := commands.NewShell(hostOS, input, cfg)
	sh.Log = diag
	if logFd != nil {
		sh.Events = logger.NewJsonLinesLogRecorder(logFd).NewSession()
		diag.Printf("Recording events to %s\n", logFd.Name())
	}
	input.SetCompleter(sh.Complete)

	relay := sigrelay.New(sh.Flags, sh.Jobs, hostOS, hostOS.Stderr())
	if err := relay.Start(sigrelay.OSNotifier{}); err != nil {
		sh.Close()
		fmt.Fprintf(cmd.ErrOrStderr(), "jobsh: %v\n", err)
		os.Exit(1)
	}

	code := sh.Run()

	relay.Stop()
	if err := sh.Close(); err != nil {
		diag.Printf("closing input: %v\n", err)
	}
	if logFd != nil {
		logFd.Close()
	}
	os.Exit(code)
	return nil
}
