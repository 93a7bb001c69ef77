package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dorcha-inc/hookhost/internal/plugin"
)

// newListCmd creates the list command
func newListCmd(flags *globalFlags) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Boot plugins and list their capabilities",
		Long: `Boot every plugin under the plugins directory, list the ones that loaded
with their version and capabilities, then shut them down.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if err := initLogger(cfg, flags.prettyLog); err != nil {
				return err
			}
			defer zap.L().Sync() //nolint:errcheck // Ignore sync errors on stderr

			rt := newRuntime(cfg)
			defer func() {
				if err := rt.close(); err != nil {
					zap.L().Warn("Failed to shut down plugins", zap.Error(err))
				}
			}()
			if err := rt.boot(cmd.Context()); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			snapshots := rt.manager.List()

			if jsonOutput {
				if snapshots == nil {
					snapshots = []plugin.Snapshot{}
				}
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(snapshots)
			}

			if len(snapshots) == 0 {
				_, err := fmt.Fprintf(out, "No plugins found in %s\n", cfg.PluginsDir)
				return err
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			if _, err := fmt.Fprintln(w, "NAME\tVERSION\tSTATE\tCAPABILITIES"); err != nil {
				return fmt.Errorf("failed to write header: %w", err)
			}
			for _, s := range snapshots {
				capabilities := strings.Join(s.Descriptor.CapabilityNames(), ",")
				if capabilities == "" {
					capabilities = "-"
				}
				if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Descriptor.Name, s.Descriptor.Version, s.State, capabilities); err != nil {
					return fmt.Errorf("failed to write row: %w", err)
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}
