package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dorcha-inc/hookhost/internal/bridge"
	"github.com/dorcha-inc/hookhost/internal/config"
	"github.com/dorcha-inc/hookhost/internal/core"
	"github.com/dorcha-inc/hookhost/internal/host"
	"github.com/dorcha-inc/hookhost/internal/plugin"
	"github.com/dorcha-inc/hookhost/internal/tui"
	"github.com/dorcha-inc/hookhost/internal/worker"
)

// pluginLauncher starts plugin workers. nil means real subprocesses; tests swap it.
var pluginLauncher worker.Launcher

// runtime is the wired set of components behind every command that talks to plugins.
type runtime struct {
	cfg     *config.Config
	manager *plugin.Manager
	bridge  *bridge.Bridge
	host    *host.Host
}

// loadConfig loads configuration and applies command line overrides.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if flags.pluginsDir != "" {
		if err := cfg.SetPluginsDir(flags.pluginsDir); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// initLogger initializes the global logger. The --pretty flag wins over the config.
func initLogger(cfg *config.Config, prettyLog bool) error {
	opts := cfg.LogOptions()
	opts.Pretty = opts.Pretty || prettyLog
	if err := core.Init(opts); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func newRuntime(cfg *config.Config) *runtime {
	manager := plugin.NewManager(plugin.Options{
		PluginsDir:       cfg.PluginsDir,
		BootTimeout:      cfg.BootTimeout(),
		CallTimeout:      cfg.CallTimeout(),
		MaxParallelBoots: cfg.MaxParallelBoots,
		Launcher:         pluginLauncher,
	})
	b := bridge.New(bridge.Options{
		WindowLabel:      cfg.WindowLabel,
		SubscriberBuffer: cfg.SubscriberBuffer,
		DeliveryTimeout:  cfg.DeliveryTimeout(),
		Plugins:          manager,
	})
	h := host.New(host.Options{
		Plugins: manager,
		Toaster: tui.Default(),
		Models:  b,
	})
	return &runtime{cfg: cfg, manager: manager, bridge: b, host: h}
}

// boot discovers every plugin under the plugins directory. Plugins that fail
// to load are reported and skipped.
func (r *runtime) boot(ctx context.Context) error {
	tui.Progress(fmt.Sprintf("Booting plugins from %s", r.cfg.PluginsDir))

	dirs, err := plugin.ScanPluginDirs(r.cfg.PluginsDir)
	if err != nil {
		tui.ProgressFailure("Failed to scan plugins directory")
		return err
	}

	descriptors, err := r.manager.Discover(ctx, dirs)
	if err != nil {
		tui.ProgressFailure(fmt.Sprintf("Booted %d of %d plugins", len(descriptors), len(dirs)))
		zap.L().Warn("Some plugins failed to boot", zap.Error(err))
		return nil
	}
	tui.ProgressSuccess(fmt.Sprintf("Booted %d plugins", len(descriptors)))
	return nil
}

// close stops the host, the bridge and every plugin worker, in that order.
func (r *runtime) close() error {
	r.host.Close()
	r.bridge.Close()
	if err := r.manager.Shutdown(); err != nil {
		return fmt.Errorf("failed to shut down plugins: %w", err)
	}
	return nil
}
