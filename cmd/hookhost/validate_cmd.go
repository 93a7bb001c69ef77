package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dorcha-inc/hookhost/internal/manifest"
	"github.com/dorcha-inc/hookhost/internal/tui"
)

// newValidateCmd creates the validate command
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate PLUGIN-DIR...",
		Short: "Validate plugin manifests without starting the plugins",
		Long: `Load and validate the manifest of each plugin directory: required fields,
version syntax, the host version requirement, and that the entrypoint exists
and can be executed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			var errs []error
			for _, dir := range args {
				m, err := manifest.LoadAndValidate(dir)
				if err != nil {
					errs = append(errs, err)
					if _, werr := fmt.Fprintf(out, "%s %s: %v\n", tui.FailureSymbol, dir, err); werr != nil {
						return werr
					}
					continue
				}
				if _, err := fmt.Fprintf(out, "%s %s %s\n", tui.SuccessSymbol, m.Name, m.Version); err != nil {
					return err
				}
			}
			if len(errs) > 0 {
				return fmt.Errorf("%d of %d plugins failed validation: %w", len(errs), len(args), errors.Join(errs...))
			}
			return nil
		},
	}
}
