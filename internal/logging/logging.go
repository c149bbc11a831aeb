// Package logging wires the proxy's --log-level flag to a structured,
// leveled zap logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel maps the CLI/env spelling (off|error|warn|info|debug|trace) to
// a zapcore.Level. zap has no "off" or "trace" level of its own: "off" is
// approximated by a level above Fatal so nothing is ever enabled, and
// "trace" maps to zap's lowest (Debug) level since zap does not distinguish
// a level below debug.
func ParseLevel(s string) (zapcore.Level, error) {
	switch s {
	case "off":
		return zapcore.Level(zapcore.FatalLevel + 1), nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "trace":
		return zapcore.DebugLevel, nil
	default:
		return 0, fmt.Errorf("logging: unknown log level %q", s)
	}
}

// New builds a production-style JSON logger enabled at level.
func New(level zapcore.Level) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}
