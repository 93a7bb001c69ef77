package main

import (
	"encoding/json"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dorcha-inc/hookhost/internal/config"
	"github.com/dorcha-inc/hookhost/internal/core"
)

// newConfigCmd creates the config command and its get/set/list subcommands
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change hookhost configuration",
		Long: `Show or change configuration values. Values come from, in increasing
precedence: defaults, ~/.hookhost/config.yaml, ./hookhost.yaml, and HOOKHOST_*
environment variables.`,
	}

	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigListCmd())

	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print a configuration value and where it came from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			val, err := config.GetConfigValue(args[0])
			if err != nil {
				return err
			}
			core.MustFprintf(cmd.OutOrStdout(), "%v (%s)\n", val.Value, val.Source)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Save a configuration value",
		Long: `Save a configuration value to ./hookhost.yaml when it exists, otherwise to
~/.hookhost/config.yaml.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.SetConfigValue(args[0], args[1]); err != nil {
				return err
			}
			core.MustFprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
			return nil
		},
	}
}

func newConfigListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every configuration value with its source",
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := config.ListConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(values)
			}

			keys := make([]string, 0, len(values))
			for key := range values {
				keys = append(keys, key)
			}
			slices.Sort(keys)

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			core.MustFprintf(w, "KEY\tVALUE\tSOURCE\n")
			for _, key := range keys {
				core.MustFprintf(w, "%s\t%v\t%s\n", key, values[key].Value, values[key].Source)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}
