package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const invalidValue = "invalid"

// isolate points the user config at a temp home and moves into an empty
// working directory so no real config leaks into the test.
func isolate(t *testing.T) (home string, cwd string) {
	t.Helper()
	home = t.TempDir()
	cwd = t.TempDir()
	t.Setenv("HOOKHOST_HOME", home)
	t.Chdir(cwd)
	return home, cwd
}

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	// #nosec G301 -- test directory permissions are acceptable for temporary test files
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	// #nosec G306 -- test file permissions are acceptable for temporary test files
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadConfig_Defaults(t *testing.T) {
	home, _ := isolate(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, DefaultPluginsDirName), cfg.PluginsDir)
	assert.Equal(t, DefaultCallTimeoutMs, cfg.CallTimeoutMs)
	assert.Equal(t, DefaultBootTimeoutMs, cfg.BootTimeoutMs)
	assert.Equal(t, DefaultMaxParallelBoots, cfg.MaxParallelBoots)
	assert.Equal(t, DefaultWindowLabel, cfg.WindowLabel)
	assert.Equal(t, DefaultSubscriberBuffer, cfg.SubscriberBuffer)
	assert.Equal(t, DefaultDeliveryTimeoutMs, cfg.DeliveryTimeoutMs)
	assert.Equal(t, LogFormatJSON, cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.LogFile)
}

func TestConfig_Durations(t *testing.T) {
	cfg := &Config{CallTimeoutMs: 1500, BootTimeoutMs: 200, DeliveryTimeoutMs: 5}

	assert.Equal(t, 1500*time.Millisecond, cfg.CallTimeout())
	assert.Equal(t, 200*time.Millisecond, cfg.BootTimeout())
	assert.Equal(t, 5*time.Millisecond, cfg.DeliveryTimeout())
}

func TestConfig_LogOptions(t *testing.T) {
	cfg := &Config{LogFormat: LogFormatPretty, LogLevel: "debug", LogFile: "/tmp/hookhost.log"}
	opts := cfg.LogOptions()

	assert.True(t, opts.Pretty)
	assert.Equal(t, "debug", opts.Level)
	assert.Equal(t, "/tmp/hookhost.log", opts.File)

	cfg.LogFormat = LogFormatJSON
	assert.False(t, cfg.LogOptions().Pretty)
}

// TestLoadConfig_ProjectConfig tests that a relative plugins_dir resolves against the project directory
func TestLoadConfig_ProjectConfig(t *testing.T) {
	_, cwd := isolate(t)
	writeFile(t, filepath.Join(cwd, "hookhost.yaml"), "plugins_dir: ./my-plugins\ncall_timeout_ms: 5000\n")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	expected, err := filepath.EvalSymlinks(cwd)
	require.NoError(t, err)
	actual, err := filepath.EvalSymlinks(filepath.Dir(cfg.PluginsDir))
	require.NoError(t, err)
	assert.Equal(t, expected, actual)
	assert.Equal(t, "my-plugins", filepath.Base(cfg.PluginsDir))
	assert.Equal(t, 5000, cfg.CallTimeoutMs)
}

func TestLoadConfig_WithSpecificPath(t *testing.T) {
	isolate(t)
	configPath := filepath.Join(t.TempDir(), "custom.yaml")
	writeFile(t, configPath, "boot_timeout_ms: 1234\nmax_parallel_boots: 8\nplugins_dir: plugins\n")

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, 1234, cfg.BootTimeoutMs)
	assert.Equal(t, 8, cfg.MaxParallelBoots)
	assert.Equal(t, filepath.Join(filepath.Dir(configPath), "plugins"), cfg.PluginsDir)
}

// TestLoadConfig_ProjectConfigPrecedence tests that project values override user values key by key
func TestLoadConfig_ProjectConfigPrecedence(t *testing.T) {
	home, cwd := isolate(t)
	writeFile(t, filepath.Join(home, "config.yaml"), "call_timeout_ms: 7000\nwindow_label: user-window\n")
	writeFile(t, filepath.Join(cwd, "hookhost.yaml"), "call_timeout_ms: 9000\n")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.CallTimeoutMs)
	assert.Equal(t, "user-window", cfg.WindowLabel)
}

// TestLoadConfig_UserRelativePluginsDir tests that a relative plugins_dir from the user config resolves under the home directory
func TestLoadConfig_UserRelativePluginsDir(t *testing.T) {
	home, _ := isolate(t)
	writeFile(t, filepath.Join(home, "config.yaml"), "plugins_dir: extra\n")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "extra"), cfg.PluginsDir)
}

func TestLoadConfig_EnvironmentVariableOverride(t *testing.T) {
	isolate(t)
	t.Setenv("HOOKHOST_CALL_TIMEOUT_MS", "42")
	t.Setenv("HOOKHOST_LOG_LEVEL", "debug")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.CallTimeoutMs)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_InvalidConfigFile(t *testing.T) {
	isolate(t)
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	isolate(t)
	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, configPath, "call_timeout_ms: [unterminated\n")

	_, err := LoadConfig(configPath)
	require.Error(t, err)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	isolate(t)
	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, configPath, "log_format: "+invalidValue+"\n")

	_, err := LoadConfig(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_format must be one of")
}

func TestSetPluginsDir(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.SetPluginsDir("relative/plugins"))
	assert.True(t, filepath.IsAbs(cfg.PluginsDir))
	assert.Equal(t, "plugins", filepath.Base(cfg.PluginsDir))
}

func TestSetPluginsDir_Empty(t *testing.T) {
	cfg := &Config{}
	err := cfg.SetPluginsDir("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be empty")
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		return &Config{
			CallTimeoutMs:     1,
			BootTimeoutMs:     1,
			MaxParallelBoots:  1,
			SubscriberBuffer:  0,
			DeliveryTimeoutMs: 0,
		}
	}

	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "call timeout", mutate: func(cfg *Config) { cfg.CallTimeoutMs = 0 }, wantErr: "call_timeout_ms must be at least 1"},
		{name: "boot timeout", mutate: func(cfg *Config) { cfg.BootTimeoutMs = -5 }, wantErr: "boot_timeout_ms must be at least 1"},
		{name: "parallel boots", mutate: func(cfg *Config) { cfg.MaxParallelBoots = 0 }, wantErr: "max_parallel_boots must be at least 1"},
		{name: "subscriber buffer", mutate: func(cfg *Config) { cfg.SubscriberBuffer = -1 }, wantErr: "subscriber_buffer cannot be negative"},
		{name: "delivery timeout", mutate: func(cfg *Config) { cfg.DeliveryTimeoutMs = -1 }, wantErr: "delivery_timeout_ms cannot be negative"},
		{name: "log format", mutate: func(cfg *Config) { cfg.LogFormat = invalidValue }, wantErr: "log_format must be one of"},
		{name: "log level", mutate: func(cfg *Config) { cfg.LogLevel = invalidValue }, wantErr: "log_level must be one of"},
		{name: "pretty debug", mutate: func(cfg *Config) { cfg.LogFormat = LogFormatPretty; cfg.LogLevel = "debug" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetConfigValue(t *testing.T) {
	_, cwd := isolate(t)
	writeFile(t, filepath.Join(cwd, "hookhost.yaml"), "window_label: editor\n")

	val, err := GetConfigValue("window_label")
	require.NoError(t, err)
	assert.Equal(t, "editor", val.Value)
	assert.Equal(t, "project", val.Source)

	val, err = GetConfigValue("call_timeout_ms")
	require.NoError(t, err)
	assert.Equal(t, DefaultCallTimeoutMs, val.Value)
	assert.Equal(t, "default", val.Source)
}

func TestGetConfigValue_UnknownKey(t *testing.T) {
	isolate(t)
	_, err := GetConfigValue("no_such_key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
}

func TestGetConfigValue_Sources(t *testing.T) {
	home, _ := isolate(t)
	writeFile(t, filepath.Join(home, "config.yaml"), "log_level: warn\n")
	t.Setenv("HOOKHOST_SUBSCRIBER_BUFFER", "3")

	val, err := GetConfigValue("log_level")
	require.NoError(t, err)
	assert.Equal(t, "user", val.Source)

	val, err = GetConfigValue("subscriber_buffer")
	require.NoError(t, err)
	assert.Equal(t, "env", val.Source)
}

func TestSetConfigValue_ProjectConfig(t *testing.T) {
	_, cwd := isolate(t)
	projectPath := filepath.Join(cwd, "hookhost.yaml")
	writeFile(t, projectPath, "window_label: editor\n")

	require.NoError(t, SetConfigValue("call_timeout_ms", "2500"))

	data, err := os.ReadFile(projectPath) // #nosec G304 -- test reads its own temp file
	require.NoError(t, err)
	var saved Config
	require.NoError(t, yaml.Unmarshal(data, &saved))
	assert.Equal(t, 2500, saved.CallTimeoutMs)
	assert.Equal(t, "editor", saved.WindowLabel)
	assert.Empty(t, saved.LogLevel, "defaults are not written back")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 2500, cfg.CallTimeoutMs)
}

func TestSetConfigValue_UserConfig(t *testing.T) {
	home, _ := isolate(t)

	require.NoError(t, SetConfigValue("log_format", "pretty"))

	val, err := GetConfigValue("log_format")
	require.NoError(t, err)
	assert.Equal(t, "pretty", val.Value)
	assert.Equal(t, "user", val.Source)
	assert.FileExists(t, filepath.Join(home, "config.yaml"))
}

func TestSetConfigValue_Rejected(t *testing.T) {
	home, _ := isolate(t)

	err := SetConfigValue("max_parallel_boots", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_parallel_boots must be at least 1")
	assert.NoFileExists(t, filepath.Join(home, "config.yaml"))

	err = SetConfigValue("no_such_key", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
}

func TestListConfig(t *testing.T) {
	isolate(t)

	values, err := ListConfig()
	require.NoError(t, err)

	for _, key := range []string{
		"plugins_dir", "call_timeout_ms", "boot_timeout_ms", "max_parallel_boots",
		"window_label", "subscriber_buffer", "delivery_timeout_ms",
		"log_format", "log_level", "log_file",
	} {
		require.Contains(t, values, key)
		assert.Equal(t, "default", values[key].Source, key)
	}
}

func TestGetUserConfigPath(t *testing.T) {
	home, _ := isolate(t)
	path, err := GetUserConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "config.yaml"), path)
}

func TestGetProjectConfigPath(t *testing.T) {
	isolate(t)
	cwd, err := os.Getwd()
	require.NoError(t, err)

	path, err := GetProjectConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "hookhost.yaml"), path)
}
