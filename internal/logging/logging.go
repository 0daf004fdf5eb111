// Package logging builds the daemon's structured logger. Grounded on
// miketth-hyprboard's main.go newLogger: a zap.Config built from a
// development preset, ISO8601 timestamps, stdout output, adapted here to
// take its level from the daemon's own config instead of a single debug
// flag.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the subset of *zap.SugaredLogger the rest of the daemon
// depends on; any value satisfying it also satisfies the narrower
// devicemgr.Logger and ipcserver.Logger.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// New builds a *zap.SugaredLogger writing ISO8601-stamped lines to
// stdout at the given level ("debug", "info", "warn", "error").
func New(level string) (*zap.SugaredLogger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stdout"}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}

	return logger.Sugar(), nil
}
