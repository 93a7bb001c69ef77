package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	// build time date
	buildDate = "unknown"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	prettyLog  bool
	pluginsDir string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "hookhost",
		Short: "Plugin runtime host",
		Long: `hookhost boots plugins from a directory, isolates each one in its own
worker process, and routes import, export, filter and model change hooks to
them over a newline-delimited JSON event stream.`,
		Version:       fmt.Sprintf("%s (built: %s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		// Default to serve when no subcommand is provided
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags)
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to hookhost.yaml config file")
	rootCmd.PersistentFlags().BoolVar(&flags.prettyLog, "pretty", false, "Use pretty-printed logs instead of JSON")
	rootCmd.PersistentFlags().StringVar(&flags.pluginsDir, "plugins-dir", "", "Directory containing plugins (overrides config file)")

	rootCmd.AddCommand(newServeCmd(flags))
	rootCmd.AddCommand(newListCmd(flags))
	rootCmd.AddCommand(newCallCmd(flags))
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newInfoCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
