package cmd

import (
	"errors"
	"io/fs"
	"log"

	"github.com/spf13/cobra"

	"github.com/josephlewis42/jobsh/core/config"
)

var (
	cfgPath string
	debug   bool
)

// loadConfig reads the configuration from --config. If allowDefault is set
// and no configuration exists the built-in defaults are used.
func loadConfig(cmd *cobra.Command, allowDefault bool) (*config.Configuration, error) {
	configuration, err := config.Load(cfgPath)

	if errors.Is(err, fs.ErrNotExist) {
		if allowDefault && !cmd.Flags().Changed("config") {
			return config.Default(), nil
		}
		log.Println("Couldn't load config: did you run init?")
	}

	return configuration, err
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "jobsh",
	Short: "Interactive shell with background job control",
	Long: `An interactive shell that runs programs in the foreground or, with a
trailing &, in the background and reports when background jobs finish.`,
	Args: cobra.ExactArgs(0),
	RunE: runShell,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".", "config path")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "write diagnostic logs to stderr")
}
