// Package savestate is the public entry point for the embedded,
// log-structured key-value store: a mapping-shaped interface over a
// single append-only file, durable up to the last fsynced byte and
// resilient to truncation or bit-level corruption of individual
// records.
//
// Store treats keys and values strictly as byte strings — it is the
// degenerate "dbm mode" collaborator sitting above the engine; object
// serialization, if a caller wants one, is the caller's job.
package savestate

import (
	"iter"
	"strings"

	"github.com/go-savestate/savestate/internal/engine"
	saverrors "github.com/go-savestate/savestate/pkg/errors"
	"github.com/go-savestate/savestate/pkg/options"
)

// Mode selects the open-mode permissions: r (read-only, must exist),
// w (read-write, must exist), c (read-write, created if missing), or
// n (read-write, always created and truncated).
type Mode = engine.Mode

const (
	ModeRead      = engine.ModeRead
	ModeReadWrite = engine.ModeReadWrite
	ModeCreate    = engine.ModeCreate
	ModeNew       = engine.ModeNew
)

// ParseMode parses the single-letter mode names r/w/c/n.
func ParseMode(s string) (Mode, error) {
	return engine.ParseMode(s)
}

// Option configures a Store at Open time. See the pkg/options package
// for the available options.
type Option = options.Option

var (
	WithVerifyChecksum = options.WithVerifyChecksum
	WithBatchSize      = options.WithBatchSize
	WithSyncInterval   = options.WithSyncInterval
	WithLogger         = options.WithLogger
)

// fileSuffix is appended to any path that does not already end in it,
// a cosmetic convention rather than a format requirement (spec §6).
const fileSuffix = ".savestate"

func withSuffix(path string) string {
	if strings.HasSuffix(path, fileSuffix) {
		return path
	}
	return path + fileSuffix
}

// Store is a single open savestate file.
type Store struct {
	eng *engine.Engine
}

// Open opens or creates the file at path (appending the .savestate
// suffix if not already present) according to mode, recovering its
// keydir from any existing content.
func Open(path string, mode Mode, opts ...Option) (*Store, error) {
	o := options.Apply(opts...)

	eng, err := engine.Open(withSuffix(path), mode, engine.Config{
		VerifyChecksum: o.VerifyChecksum,
		BatchSize:      o.BatchSize,
		SyncInterval:   o.SyncInterval,
		Logger:         o.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &Store{eng: eng}, nil
}

// Get returns the value stored for key, or pkg/errors.NotFound.
func (s *Store) Get(key []byte) ([]byte, error) { return s.eng.Get(key) }

// Set stores key/value, overwriting any existing value for key.
func (s *Store) Set(key, value []byte) error { return s.eng.Put(key, value) }

// Delete removes key, or fails with pkg/errors.NotFound.
func (s *Store) Delete(key []byte) error { return s.eng.Delete(key) }

// Contains reports whether key is currently live.
func (s *Store) Contains(key []byte) bool { return s.eng.Contains(key) }

// Len returns the number of live keys.
func (s *Store) Len() int { return s.eng.Len() }

// Keys iterates live keys in insertion order.
func (s *Store) Keys() iter.Seq[[]byte] { return s.eng.Keys() }

// ReverseKeys iterates live keys in reverse insertion order.
func (s *Store) ReverseKeys() iter.Seq[[]byte] { return s.eng.ReverseKeys() }

// Values iterates live values in insertion order. Each value is read
// from disk as the sequence is consumed; none are cached.
func (s *Store) Values() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for _, v := range s.eng.Items() {
			if !yield(v) {
				return
			}
		}
	}
}

// Items iterates live key/value pairs in insertion order.
func (s *Store) Items() iter.Seq2[[]byte, []byte] { return s.eng.Items() }

// ReverseItems iterates live key/value pairs in reverse insertion
// order.
func (s *Store) ReverseItems() iter.Seq2[[]byte, []byte] { return s.eng.ReverseItems() }

// Pop returns and removes the value for key, or fails with
// pkg/errors.NotFound.
func (s *Store) Pop(key []byte) ([]byte, error) { return s.eng.Pop(key) }

// PopItem removes and returns the most recently inserted live pair,
// or fails with pkg/errors.Empty.
func (s *Store) PopItem() (key, value []byte, err error) { return s.eng.PopItem() }

// SetDefault returns key's current value, or stores and returns def
// if key is not live.
func (s *Store) SetDefault(key, def []byte) ([]byte, error) { return s.eng.SetDefault(key, def) }

// Update applies every key/value pair in kvs.
func (s *Store) Update(kvs map[string][]byte) error { return s.eng.Update(kvs) }

// Clear deletes every live key.
func (s *Store) Clear() error { return s.eng.Clear() }

// Copy writes a dense copy of the store's live contents to newPath.
// Fails with pkg/errors.InvalidArgument if newPath resolves to the
// current file.
func (s *Store) Copy(newPath string) error { return s.eng.Copy(withSuffix(newPath)) }

// Sync forces all buffered and OS-cached data to stable storage.
func (s *Store) Sync() error { return s.eng.Sync() }

// Compact rewrites the file to contain exactly one record per live
// key and atomically swaps it into place.
func (s *Store) Compact() error { return s.eng.Compact() }

// Close syncs and releases the underlying file descriptor without
// compacting (see CloseCompacting). Afterwards Get, Set, Delete, Copy,
// Sync, Compact and Close fail with pkg/errors.AlreadyClosed, as do the
// operations built on them once they reach one of those calls;
// Contains, Len, Keys and ReverseKeys keep answering from the in-memory
// index. Satisfies io.Closer.
func (s *Store) Close() error { return s.eng.Close(false) }

// CloseCompacting is Close but runs compaction first; a compaction
// failure is combined with any close-time error rather than one
// shadowing the other, and the descriptor is released either way.
func (s *Store) CloseCompacting() error { return s.eng.Close(true) }

// Path returns the on-disk path a given caller-supplied path would
// resolve to, after the .savestate suffix convention is applied. It
// performs no I/O.
func Path(path string) string { return withSuffix(path) }

// IsNotFound reports whether err is (or wraps) pkg/errors.NotFound.
func IsNotFound(err error) bool { return saverrors.Of(err) == saverrors.KindNotFound }
