// Package logging wires the process-wide structured logger.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process-wide sugared logger. Console encoding, not JSON,
// so transcripts stay readable next to wire-protocol dumps.
func New(debug bool) *zap.SugaredLogger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		// Build only fails on a malformed config; ours is a literal above.
		panic(err)
	}
	return logger.Sugar()
}

// Noop returns a logger that discards everything, for tests that don't care
// about log output but still need to satisfy a *zap.SugaredLogger parameter.
func Noop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
