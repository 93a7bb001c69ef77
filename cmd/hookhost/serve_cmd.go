package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// reloader is the part of the plugin manager driven by SIGHUP.
type reloader interface {
	ReloadAll(ctx context.Context) error
}

// newServeCmd creates the serve command
func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Boot plugins and serve the event stream on stdio",
		Long: `Boot every plugin under the plugins directory and serve newline-delimited
event envelopes on stdin/stdout. This is the default command when no subcommand
is specified.

Send SIGHUP to rescan the plugins directory and reload every plugin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags)
		},
	}
}

func runServe(cmd *cobra.Command, flags *globalFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	if err := initLogger(cfg, flags.prettyLog); err != nil {
		return err
	}
	defer zap.L().Sync() //nolint:errcheck // Ignore sync errors on stderr, they're not critical and common in test environments

	rt := newRuntime(cfg)

	ctx, cancel := setupSignalHandling(cmd.Context(), rt.manager)
	defer cancel()

	if err := rt.boot(ctx); err != nil {
		return errors.Join(err, rt.close())
	}

	zap.L().Info("Serving event stream on stdio",
		zap.String("plugins_dir", cfg.PluginsDir),
		zap.String("window", cfg.WindowLabel))

	serveErr := rt.host.ServeStream(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	if errors.Is(serveErr, context.Canceled) {
		zap.L().Info("Server context canceled, exiting gracefully")
		serveErr = nil
	}
	if serveErr != nil {
		serveErr = fmt.Errorf("server error: %w", serveErr)
	}
	return errors.Join(serveErr, rt.close())
}

// setupSignalHandling reloads plugins on SIGHUP and cancels the returned
// context on SIGINT or SIGTERM.
func setupSignalHandling(ctx context.Context, plugins reloader) (context.Context, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigChan:
				switch sig {
				case syscall.SIGHUP:
					zap.L().Info("Received SIGHUP, reloading plugins")
					if err := plugins.ReloadAll(ctx); err != nil {
						zap.L().Error("Failed to reload", zap.Error(err))
					} else {
						zap.L().Info("Successfully reloaded plugins")
					}
				case syscall.SIGINT, syscall.SIGTERM:
					zap.L().Info("Received shutdown signal")
					cancel()
					return
				}
			}
		}
	}()

	return ctx, cancel
}
