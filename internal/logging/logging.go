// Package logging builds the zap.SugaredLogger handed to internal/explorer
// and internal/refine. The teacher has no structured logging at all (it's
// fmt.Println throughout kripke/engine.go and model_checker.go); this is
// grounded on other_examples' octoreflex main.go's buildLogger instead,
// which picks between zap's development and production presets by format
// name and layers an explicit level on top.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.SugaredLogger at the given level ("debug", "info",
// "warn", "error") and format ("console" for human-readable development
// output, anything else for production JSON). quiet suppresses everything
// below warn regardless of level, matching the --quiet CLI flag.
func New(level, format string, quiet bool) (*zap.SugaredLogger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if quiet && zapLevel < zapcore.WarnLevel {
		zapLevel = zapcore.WarnLevel
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// Nop returns a logger that discards everything, for callers (tests,
// library embedders) that don't want log output at all.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
