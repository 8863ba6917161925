package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/josephlewis42/jobsh/core/logger"
)

var reportSession string

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Explore the shell event log.",
}

// readEvents feeds every event in the configured log to handler.
func readEvents(cmd *cobra.Command, handler func(le *logger.LogEntry)) error {
	config, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}

	fd, err := config.ReadEventLog()
	if err != nil {
		return err
	}
	defer fd.Close()

	return logger.ReadJSONLinesLog(fd, handler)
}

func printYAML(cmd *cobra.Command, v interface{}) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

var reportCommand = &cobra.Command{
	Use:   "report",
	Short: "Show a report of commands, job outcomes and exit statuses.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		report := logger.NewReport()
		sessions := logger.NewSessionIndex()
		err := readEvents(cmd, func(le *logger.LogEntry) {
			sessions.Update(le)
			if reportSession == "" || le.SessionID == reportSession {
				report.Update(le)
			}
		})
		if err != nil {
			return err
		}

		if reportSession != "" && !sessions.Has(reportSession) {
			return fmt.Errorf("no events for session %q", reportSession)
		}
		return printYAML(cmd, report)
	},
}

var sessionsCommand = &cobra.Command{
	Use:   "sessions",
	Short: "List shell sessions with their job counts and exit status.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		sessions := logger.NewSessionIndex()
		if err := readEvents(cmd, sessions.Update); err != nil {
			return err
		}
		return printYAML(cmd, sessions.List())
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(reportCommand)
	eventsCmd.AddCommand(sessionsCommand)

	reportCommand.Flags().StringVar(&reportSession, "session", "", "only report on the session with this ID")
}
