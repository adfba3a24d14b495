// Package logging builds the zap loggers used by the ledger, the relayer and
// the HTTP servers.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ProductionStage selects JSON output and suppresses stacktraces below error
const ProductionStage = "production"

// Config holds configuration for the logger
type Config struct {
	Level   string `yaml:"level" default:"info"`
	Stage   string `yaml:"stage" default:"development"`
	JSON    bool   `yaml:"json"`
	Color   bool   `yaml:"color" default:"true"`
	Service string `yaml:"service" default:"permitledger"`
}

// ParseLevel maps a level name to a zap level. Unknown names are an error.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// New builds a logger: JSON structured output in production (or when JSON is
// set), human-readable console output otherwise.
func New(cfg Config) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	production := cfg.Stage == ProductionStage || cfg.JSON

	var zapConfig zap.Config
	if production {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.TimeKey = "timestamp"
		zapConfig.EncoderConfig.MessageKey = "message"
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

		fields := map[string]interface{}{"stage": cfg.Stage}
		if cfg.Service != "" {
			fields["service"] = cfg.Service
		}
		zapConfig.InitialFields = fields
	} else {
		zapConfig = zap.NewDevelopmentConfig()
		if cfg.Color {
			zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zapConfig.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	}

	zapConfig.Level = zap.NewAtomicLevelAt(level)
	zapConfig.DisableStacktrace = production && level > zapcore.DebugLevel

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// Must is like New but panics on error. Intended for main packages.
func Must(cfg Config) *zap.Logger {
	logger, err := New(cfg)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	return logger
}
