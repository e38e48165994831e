package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LoggerConfig struct {
	Debug bool
}

// NewLogger builds a production JSON zap logger. Debug lowers the level to debug and
// enables caller/stacktrace annotations on warnings.
func NewLogger(cfg *LoggerConfig, options ...zap.Option) (*zap.Logger, error) {
	if cfg == nil {
		cfg = &LoggerConfig{}
	}

	mostlyProductionConfig := zap.NewProductionConfig()
	mostlyProductionConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	mostlyProductionConfig.EncoderConfig.TimeKey = "time"

	if cfg.Debug {
		mostlyProductionConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		options = append(options, zap.AddStacktrace(zapcore.WarnLevel))
	} else {
		mostlyProductionConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return mostlyProductionConfig.Build(options...)
}

// NewNopLogger returns a logger that discards everything. Handy in tests.
func NewNopLogger() *zap.Logger {
	return zap.NewNop()
}
