// Package logger builds the structured logger used throughout
// savestate. Every subsystem logs through a *zap.SugaredLogger rather
// than the standard library logger, so a caller embedding the store
// gets the same field-based, leveled output its own services use.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-profile logger tagged with the given
// service name. It never fails in practice (zap's production config
// only errors on a broken sink), so any error is swallowed in favor
// of a no-op logger — a store should never refuse to open because
// logging could not be configured.
func New(service string) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	base, err := cfg.Build()
	if err != nil {
		base = zap.NewNop()
	}

	return base.Named(service).Sugar()
}

// Noop returns a logger that discards everything, used by tests and
// by callers who construct an engine without supplying a logger.
func Noop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
