package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dorcha-inc/hookhost/internal/core"
	"github.com/dorcha-inc/hookhost/internal/manifest"
	"github.com/dorcha-inc/hookhost/internal/tui"
)

const defaultInfoWidth = 80

// newInfoCmd creates the info command
func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info PLUGIN-DIR",
		Short: "Show a plugin's manifest and README",
		Long: `Show the manifest of a plugin directory followed by its README.md, rendered
as markdown when stdout is a color terminal.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}

			doc, err := pluginInfoMarkdown(m)
			if err != nil {
				return err
			}

			rendered, err := tui.RenderMarkdown(doc, tui.Default().TerminalWidth(defaultInfoWidth))
			if err != nil {
				return fmt.Errorf("failed to render plugin info: %w", err)
			}
			core.MustFprintf(cmd.OutOrStdout(), "%s", rendered)
			return nil
		},
	}
}

// pluginInfoMarkdown builds the info document for m.
func pluginInfoMarkdown(m *manifest.Manifest) (string, error) {
	var b strings.Builder

	version := m.Version
	if version == "" {
		version = "unversioned"
	}
	fmt.Fprintf(&b, "# %s (%s)\n\n", m.Name, version)
	if m.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", m.Description)
	}

	fmt.Fprintf(&b, "- **Directory:** `%s`\n", m.Dir)
	command, args := m.Command()
	fmt.Fprintf(&b, "- **Command:** `%s`\n", strings.TrimSpace(command+" "+strings.Join(args, " ")))
	if m.HostVersion != "" {
		fmt.Fprintf(&b, "- **Requires host:** `%s` (this host: `%s`)\n", m.HostVersion, core.HostVersion)
	}

	// #nosec G304 -- README.md is read from the plugin directory named by the user
	readme, err := os.ReadFile(filepath.Join(m.Dir, "README.md"))
	switch {
	case err == nil:
		fmt.Fprintf(&b, "\n%s\n", strings.TrimSpace(string(readme)))
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("failed to read README.md: %w", err)
	}

	return b.String(), nil
}
