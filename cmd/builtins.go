package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/josephlewis42/jobsh/commands"
)

var builtinsCmd = &cobra.Command{
	Use:   "builtins",
	Short: "Show the commands built into the shell.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range commands.BuiltinNames() {
			fmt.Fprintln(cmd.OutOrStdout(), commands.BuiltinUsage(name))
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(builtinsCmd)
}
