package core

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogOptions controls how the global logger is built.
type LogOptions struct {
	Pretty bool   // development encoder with colored levels
	Level  string // debug, info, warn, error, fatal; empty means info
	File   string // optional file path, written in addition to stderr
}

// Init initializes zap's global logger
// After calling this, we use zap.L() directly.
func Init(opts LogOptions) error {
	var config zap.Config

	if opts.Pretty {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if opts.Level != "" {
		level, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		config.Level = zap.NewAtomicLevelAt(level)
	}

	// stdout belongs to the host event stream in serve mode, so logs never go there
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}
	if opts.File != "" {
		config.OutputPaths = append(config.OutputPaths, opts.File)
	}

	logger, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	zap.ReplaceGlobals(logger)
	return nil
}

// LogHookCall logs a plugin hook invocation using zap's global logger
func LogHookCall(plugin string, hook string, duration float64, err error) {
	fields := []zap.Field{
		zap.String("plugin", plugin),
		zap.String("hook", hook),
		zap.Float64("duration_seconds", duration),
		zap.Bool("success", err == nil),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		zap.L().Error("Hook call failed", fields...)
		return
	}

	zap.L().Info("Hook call completed successfully", fields...)
}

// LogHostRequest logs a host event request using zap's global logger
func LogHostRequest(payloadType string, duration float64, err error) {
	fields := []zap.Field{
		zap.String("type", payloadType),
		zap.Float64("duration_seconds", duration),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		zap.L().Error("Host request failed", fields...)
		return
	}

	zap.L().Debug("Host request completed successfully", fields...)
}
