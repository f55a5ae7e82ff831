// Package logx constructs the single structured logger used across the
// plugin. Every package takes a *zap.SugaredLogger via constructor
// injection rather than reaching for a package-level global.
package logx

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-style logger tagged with the configured
// output glyph (the prefix the hook author sees in their terminal).
func New(glyph string, debug bool) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	if glyph == "" {
		glyph = ">"
	}
	return logger.Sugar().With("glyph", glyph)
}

// Nop returns a logger that discards everything, for tests that don't
// care about log output.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
