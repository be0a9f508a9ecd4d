// Package options provides functional options for constructing a
// savestate engine configuration, the library-facing counterpart to
// internal/config's YAML-driven CLI configuration.
package options

import (
	"time"

	"go.uber.org/zap"
)

// Options holds every tunable the engine accepts, assembled by
// applying a sequence of Option functions over NewDefaultOptions.
type Options struct {
	VerifyChecksum bool
	BatchSize      int
	SyncInterval   time.Duration
	Logger         *zap.SugaredLogger
}

// Option mutates an Options value in place.
type Option func(*Options)

// WithVerifyChecksum enables full-record CRC-32 verification on every
// Get.
func WithVerifyChecksum(verify bool) Option {
	return func(o *Options) { o.VerifyChecksum = verify }
}

// WithBatchSize sets the buffered-byte threshold that triggers an
// automatic flush+sync on append.
func WithBatchSize(bytes int) Option {
	return func(o *Options) { o.BatchSize = bytes }
}

// WithSyncInterval sets the maximum time allowed between syncs,
// independent of buffer size.
func WithSyncInterval(d time.Duration) Option {
	return func(o *Options) { o.SyncInterval = d }
}

// WithLogger overrides the structured logger used by the engine and
// storage layer. Defaults to a no-op logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(o *Options) { o.Logger = log }
}

// NewDefaultOptions returns the baseline Options a Store is
// constructed from before any Option is applied.
func NewDefaultOptions() Options {
	return Options{
		VerifyChecksum: false,
		BatchSize:      64 * 1024,
		SyncInterval:   5 * time.Second,
		Logger:         zap.NewNop().Sugar(),
	}
}

// Apply folds opts over NewDefaultOptions and returns the result.
func Apply(opts ...Option) Options {
	o := NewDefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
