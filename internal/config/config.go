// Package config provides configuration management for hookhost, including
// loading configuration with precedence, environment variable overrides,
// and get/set/list operations for configuration values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dorcha-inc/hookhost/internal/core"
)

const (
	DefaultPluginsDirName    = "plugins"
	DefaultCallTimeoutMs     = 30000
	DefaultBootTimeoutMs     = 10000
	DefaultMaxParallelBoots  = 4
	DefaultWindowLabel       = "main"
	DefaultSubscriberBuffer  = 64
	DefaultDeliveryTimeoutMs = 250

	// EnvPrefix prefixes every environment override, e.g. HOOKHOST_CALL_TIMEOUT_MS.
	EnvPrefix = "HOOKHOST"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

func ValidLogLevels() map[LogLevel]struct{} {
	return map[LogLevel]struct{}{
		LogLevelDebug: {},
		LogLevelInfo:  {},
		LogLevelWarn:  {},
		LogLevelError: {},
		LogLevelFatal: {},
	}
}

func IsValidLogLevel(level LogLevel) bool {
	_, ok := ValidLogLevels()[level]
	return ok
}

type LogFormat string

const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

func ValidLogFormats() map[LogFormat]struct{} {
	return map[LogFormat]struct{}{
		LogFormatPretty: {},
		LogFormatJSON:   {},
	}
}

func IsValidLogFormat(format LogFormat) bool {
	_, ok := ValidLogFormats()[format]
	return ok
}

// Config is the hookhost configuration: where plugins live, how long the
// host waits on them, how model events fan out, and how it logs.
type Config struct {
	PluginsDir       string `yaml:"plugins_dir,omitempty" mapstructure:"plugins_dir"`               // directory scanned for plugin subdirectories
	CallTimeoutMs    int    `yaml:"call_timeout_ms,omitempty" mapstructure:"call_timeout_ms"`       // default deadline for a hook call
	BootTimeoutMs    int    `yaml:"boot_timeout_ms,omitempty" mapstructure:"boot_timeout_ms"`       // deadline for the hello handshake
	MaxParallelBoots int    `yaml:"max_parallel_boots,omitempty" mapstructure:"max_parallel_boots"` // plugins started concurrently during discovery

	WindowLabel       string `yaml:"window_label,omitempty" mapstructure:"window_label"`               // label of the window this host serves
	SubscriberBuffer  int    `yaml:"subscriber_buffer,omitempty" mapstructure:"subscriber_buffer"`     // backlog before a stalled subscriber is reported
	DeliveryTimeoutMs int    `yaml:"delivery_timeout_ms,omitempty" mapstructure:"delivery_timeout_ms"` // stall before a lagging subscriber is reported

	LogFormat LogFormat `yaml:"log_format,omitempty" mapstructure:"log_format"` // "pretty" or "json"
	LogLevel  string    `yaml:"log_level,omitempty" mapstructure:"log_level"`   // "debug", "info", "warn", "error", "fatal"
	LogFile   string    `yaml:"log_file,omitempty" mapstructure:"log_file"`     // optional log file path
}

func (cfg *Config) CallTimeout() time.Duration {
	return time.Duration(cfg.CallTimeoutMs) * time.Millisecond
}

func (cfg *Config) BootTimeout() time.Duration {
	return time.Duration(cfg.BootTimeoutMs) * time.Millisecond
}

func (cfg *Config) DeliveryTimeout() time.Duration {
	return time.Duration(cfg.DeliveryTimeoutMs) * time.Millisecond
}

// LogOptions converts the logging keys for core.Init.
func (cfg *Config) LogOptions() core.LogOptions {
	return core.LogOptions{
		Pretty: cfg.LogFormat == LogFormatPretty,
		Level:  cfg.LogLevel,
		File:   cfg.LogFile,
	}
}

// SetPluginsDir updates the plugins directory.
// A relative pluginsDir is resolved against the current working directory.
func (cfg *Config) SetPluginsDir(pluginsDir string) error {
	if pluginsDir == "" {
		return fmt.Errorf("plugins directory cannot be empty")
	}

	absPluginsDir, err := filepath.Abs(pluginsDir)
	if err != nil {
		return fmt.Errorf("failed to resolve plugins directory path: %w", err)
	}
	cfg.PluginsDir = absPluginsDir
	return nil
}

// ConfigValue represents a configuration value with its source
type ConfigValue struct {
	Value  any    `json:"value"`
	Source string `json:"source"` // "env", "project", "user", or "default"
}

// GetUserConfigPath returns the path to the user-specific config file (~/.hookhost/config.yaml)
func GetUserConfigPath() (string, error) {
	home, err := core.GetHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get hookhost home directory: %w", err)
	}
	return filepath.Join(home, "config.yaml"), nil
}

// GetProjectConfigPath returns the path to the project-specific config file (./hookhost.yaml)
// relative to the current working directory
func GetProjectConfigPath() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}
	return filepath.Join(cwd, "hookhost.yaml"), nil
}

// setupViper configures Viper with defaults, config file locations, and environment variables
// If configPath is provided (non-empty), loads from that specific path instead of using precedence
func setupViper(configPath string) error {
	viper.Reset()
	setViperDefaults()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		return nil
	}

	// user config first, project config merged over it
	userPath, userErr := GetUserConfigPath()
	if userErr == nil {
		if _, userStatErr := os.Stat(userPath); userStatErr == nil {
			viper.SetConfigFile(userPath)
			if userReadErr := viper.ReadInConfig(); userReadErr != nil {
				zap.L().Debug("Failed to read user config file", zap.String("path", userPath), zap.Error(userReadErr))
			}
		}
	}

	projectPath, projectErr := GetProjectConfigPath()
	if projectErr == nil {
		if _, projectStatErr := os.Stat(projectPath); projectStatErr == nil {
			viper.SetConfigFile(projectPath)
			if projectReadErr := viper.MergeInConfig(); projectReadErr != nil {
				zap.L().Debug("Failed to merge project config file", zap.String("path", projectPath), zap.Error(projectReadErr))
			}
		}
	}

	return nil
}

func setViperDefaults() {
	viper.SetDefault("plugins_dir", "")
	viper.SetDefault("call_timeout_ms", DefaultCallTimeoutMs)
	viper.SetDefault("boot_timeout_ms", DefaultBootTimeoutMs)
	viper.SetDefault("max_parallel_boots", DefaultMaxParallelBoots)

	viper.SetDefault("window_label", DefaultWindowLabel)
	viper.SetDefault("subscriber_buffer", DefaultSubscriberBuffer)
	viper.SetDefault("delivery_timeout_ms", DefaultDeliveryTimeoutMs)

	viper.SetDefault("log_format", "json")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_file", "")
}

// LoadConfig loads configuration with precedence: project config > user config > defaults
// Environment variables override config file values
// If configPath is provided, loads from that specific path instead
func LoadConfig(configPath string) (*Config, error) {
	if err := setupViper(configPath); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var configFileDir string
	if configPath != "" {
		configFileDir = filepath.Dir(configPath)
	} else {
		projectPath, err := GetProjectConfigPath()
		if err == nil {
			if _, err := os.Stat(projectPath); err == nil {
				configFileDir = filepath.Dir(projectPath)
			}
		}
	}

	if err := postProcessConfig(cfg, configFileDir); err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// postProcessConfig resolves the plugins directory. An unset plugins_dir
// means ~/.hookhost/plugins. A relative one is taken relative to the config
// file that set it, or to ~/.hookhost when only the user config exists.
func postProcessConfig(cfg *Config, configFileDir string) error {
	pluginsDir := cfg.PluginsDir

	if pluginsDir == "" {
		home, err := core.GetHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get hookhost home directory: %w", err)
		}
		pluginsDir = filepath.Join(home, DefaultPluginsDirName)
		zap.L().Debug("plugins_dir not set in config, using global plugins directory", zap.String("plugins_dir", pluginsDir))
	}

	if !filepath.IsAbs(pluginsDir) {
		base := configFileDir
		if base == "" {
			home, err := core.GetHomeDir()
			if err != nil {
				return fmt.Errorf("failed to get hookhost home directory: %w", err)
			}
			base = home
		}
		pluginsDir = filepath.Clean(filepath.Join(base, pluginsDir))
	}

	if err := cfg.SetPluginsDir(pluginsDir); err != nil {
		return fmt.Errorf("failed to set plugins directory: %w", err)
	}
	return nil
}

func validateConfig(cfg *Config) error {
	if cfg.CallTimeoutMs < 1 {
		return fmt.Errorf("call_timeout_ms must be at least 1, got %d", cfg.CallTimeoutMs)
	}
	if cfg.BootTimeoutMs < 1 {
		return fmt.Errorf("boot_timeout_ms must be at least 1, got %d", cfg.BootTimeoutMs)
	}
	if cfg.MaxParallelBoots < 1 {
		return fmt.Errorf("max_parallel_boots must be at least 1, got %d", cfg.MaxParallelBoots)
	}
	if cfg.SubscriberBuffer < 0 {
		return fmt.Errorf("subscriber_buffer cannot be negative, got %d", cfg.SubscriberBuffer)
	}
	if cfg.DeliveryTimeoutMs < 0 {
		return fmt.Errorf("delivery_timeout_ms cannot be negative, got %d", cfg.DeliveryTimeoutMs)
	}

	if cfg.LogFormat != "" && !IsValidLogFormat(cfg.LogFormat) {
		return fmt.Errorf("log_format must be one of: %s, got '%s'", core.JoinMapKeys(ValidLogFormats()), cfg.LogFormat)
	}
	if cfg.LogLevel != "" && !IsValidLogLevel(LogLevel(cfg.LogLevel)) {
		return fmt.Errorf("log_level must be one of: %s, got '%s'", core.JoinMapKeys(ValidLogLevels()), cfg.LogLevel)
	}

	return nil
}

// fileSetsKey reports whether the config file at path exists and sets key.
func fileSetsKey(path string, key string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return false
	}
	return v.IsSet(key)
}

func getValueSource(key string) string {
	envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
	if os.Getenv(envKey) != "" {
		return "env"
	}

	if projectPath, err := GetProjectConfigPath(); err == nil && fileSetsKey(projectPath, key) {
		return "project"
	}
	if userPath, err := GetUserConfigPath(); err == nil && fileSetsKey(userPath, key) {
		return "user"
	}

	return "default"
}

// GetConfigValue retrieves a configuration value by key, checking environment variables first
// Returns the value and its source ("env", "project", "user", or "default")
func GetConfigValue(key string) (*ConfigValue, error) {
	if err := setupViper(""); err != nil {
		return nil, err
	}

	value := viper.Get(key)
	if value == nil {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}

	return &ConfigValue{Value: value, Source: getValueSource(key)}, nil
}

// SetConfigValue sets a configuration value and saves it to the project config
// when one exists, otherwise to the user config.
func SetConfigValue(key, value string) error {
	if err := setupViper(""); err != nil {
		return err
	}
	if viper.Get(key) == nil {
		return fmt.Errorf("unknown config key: %s", key)
	}

	var configPath string
	if projectPath, err := GetProjectConfigPath(); err == nil {
		if _, statErr := os.Stat(projectPath); statErr == nil {
			configPath = projectPath
		}
	}

	if configPath == "" {
		userPath, userErr := GetUserConfigPath()
		if userErr != nil {
			return fmt.Errorf("failed to get user config path: %w", userErr)
		}
		// #nosec G301 -- config directory permissions 0755 are acceptable for user config directory
		if err := os.MkdirAll(filepath.Dir(userPath), 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		configPath = userPath
	}

	// Only the file's own keys are written back, so defaults stay defaults.
	fileViper := viper.New()
	fileViper.SetConfigFile(configPath)
	fileViper.SetConfigType("yaml")
	if _, err := os.Stat(configPath); err == nil {
		if err := fileViper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to load existing config: %w", err)
		}
	}
	fileViper.Set(key, value)

	cfg := &Config{}
	if err := fileViper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// validate against the fully merged view before touching the file
	merged := &Config{}
	viper.Set(key, value)
	if err := viper.Unmarshal(merged); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateConfig(merged); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// #nosec G306 -- config file permissions 0644 are acceptable for user config files
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	zap.L().Debug("Config value saved", zap.String("key", key), zap.String("path", configPath))
	return nil
}

// ListConfig returns all configuration keys and values with their sources
func ListConfig() (map[string]*ConfigValue, error) {
	if err := setupViper(""); err != nil {
		return nil, err
	}

	result := make(map[string]*ConfigValue)
	for key, value := range viper.AllSettings() {
		if _, ok := value.(map[string]any); ok {
			continue
		}
		result[key] = &ConfigValue{Value: value, Source: getValueSource(key)}
	}

	return result, nil
}
