package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/josephlewis42/jobsh/core/config"
)

// initCmd writes a default configuration
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default shell configuration to the --config directory.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		logger := log.New(cmd.ErrOrStderr(), "", 0)

		return config.Initialize(cfgPath, logger)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
