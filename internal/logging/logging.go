// Package logging builds the process logger.
package logging

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels used with logr's V().
const (
	DEFAULT = 0
	VERBOSE = 1
	DEBUG   = 2
)

// New returns a zap-backed logr.Logger at level, plus a flush func to defer.
// Development mode switches to the console encoder with caller info.
//
// logr V(n) maps to zap level -n, so DebugLevel also enables V(1) traces.
func New(level zapcore.Level, development bool) (logr.Logger, func(), error) {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	if level == zapcore.DebugLevel {
		level = zapcore.Level(-DEBUG)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	z, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return logr.Discard(), func() {}, err
	}
	return zapr.NewLogger(z), func() { _ = z.Sync() }, nil
}
