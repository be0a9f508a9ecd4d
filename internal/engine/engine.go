// Package engine implements the storage engine façade: it enforces
// open-mode permissions and routes reads, writes, and deletes through
// the record codec, the file I/O layer, and the keydir, per spec.md
// §4.5. Recovery (recovery.go) and compaction (compactor.go) live
// alongside it because both need access to the engine's unexported
// file and keydir fields.
package engine

import (
	"iter"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/go-savestate/savestate/internal/keydir"
	"github.com/go-savestate/savestate/internal/record"
	"github.com/go-savestate/savestate/internal/storage"
	saverrors "github.com/go-savestate/savestate/pkg/errors"
)

// Config bundles the tunable behavior of an Engine: whether reads
// verify checksums, and the storage layer's buffering knobs.
type Config struct {
	VerifyChecksum bool
	BatchSize      int
	SyncInterval   time.Duration
	Logger         *zap.SugaredLogger
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
	return c
}

// RecoveryReport summarizes what the loader found at Open, for
// observability only — no invariant or operation depends on it.
type RecoveryReport struct {
	RecordsLoaded      int
	TombstonesSeen     int
	SalvageAttempted   int
	ChecksumMismatches int
	TruncatedTo        int64 // end of the valid prefix when a partial or unsalvageable tail was found (the file is cut there only in writable modes); -1 otherwise
}

// Engine is the storage engine façade.
type Engine struct {
	mu     sync.Mutex
	path   string
	mode   Mode
	cfg    Config
	file   *storage.File
	kd     *keydir.KeyDir
	closed atomic.Bool
	report RecoveryReport
}

// Open opens or creates the file at path according to mode and
// returns a ready Engine, its keydir already recovered from any
// existing content.
func Open(path string, mode Mode, cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()

	info, statErr := os.Stat(path)
	exists := statErr == nil
	if statErr != nil && !os.IsNotExist(statErr) {
		return nil, saverrors.IO("stat "+path, statErr)
	}

	switch mode {
	case ModeRead, ModeReadWrite:
		if !exists {
			return nil, saverrors.NotFound
		}
	case ModeCreate:
		// created below if missing
	case ModeNew:
		// always (re)created, truncated below
	}

	flag := os.O_RDWR | os.O_APPEND
	if mode == ModeRead {
		flag = os.O_RDONLY
	}
	if mode == ModeCreate || mode == ModeNew {
		flag |= os.O_CREATE
	}
	if mode == ModeNew {
		flag |= os.O_TRUNC
	}

	f, err := storage.Open(path, flag, 0o644, storage.Config{
		BatchSize:    cfg.BatchSize,
		SyncInterval: cfg.SyncInterval,
		Logger:       cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	kd := keydir.New()
	e := &Engine{path: path, mode: mode, cfg: cfg, file: f, kd: kd}

	if exists || mode == ModeNew {
		_ = info // size already reflected in storage.File
		report, recErr := recover_(f, kd, mode.Writable(), cfg.Logger)
		if recErr != nil {
			_ = f.Close()
			return nil, recErr
		}
		e.report = report
		cfg.Logger.Infow("engine: recovered",
			"path", path, "records", report.RecordsLoaded, "tombstones", report.TombstonesSeen)
	}

	return e, nil
}

// RecoveryReport returns the summary produced by Open's recovery
// pass.
func (e *Engine) RecoveryReport() RecoveryReport {
	return e.report
}

func (e *Engine) checkOpen() error {
	if e.closed.Load() {
		return saverrors.AlreadyClosed
	}
	return nil
}

func (e *Engine) checkWritable() error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if !e.mode.Writable() {
		return saverrors.ReadOnly
	}
	return nil
}

// Get returns the value stored for key, reading it positionally from
// disk. If the engine verifies checksums, the full record is read and
// its CRC-32 checked before the value is returned.
func (e *Engine) Get(key []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	entry, ok := e.kd.Get(string(key))
	if !ok {
		return nil, saverrors.NotFound
	}

	if !e.cfg.VerifyChecksum {
		return e.file.ReadAt(entry.Offset, entry.Size)
	}

	recordStart := entry.Offset - int64(record.HeaderSize) - int64(len(key))
	full, err := e.file.ReadAt(recordStart, uint32(record.HeaderSize+len(key))+entry.Size+record.ChecksumSize)
	if err != nil {
		return nil, err
	}
	if err := record.Verify(full); err != nil {
		return nil, err
	}
	h := record.DecodeHeader(full[:record.HeaderSize])
	return record.Value(full, h), nil
}

// Put stores key/value, appending a fresh record and updating the
// keydir to point at it.
func (e *Engine) Put(key, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkWritable(); err != nil {
		return err
	}

	buf, checksum, err := record.Encode(key, value)
	if err != nil {
		return err
	}

	offset, err := e.file.Append(buf)
	if err != nil {
		return err
	}

	valueOffset := offset + int64(record.HeaderSize) + int64(len(key))
	e.kd.Put(string(key), keydir.Entry{
		Offset:   valueOffset,
		Size:     uint32(len(value)),
		Checksum: checksum,
	})

	e.cfg.Logger.Debugw("engine: put", "key", string(key), "offset", offset, "value_size", len(value))
	return nil
}

// Delete removes key, appending a tombstone and dropping the keydir
// entry. Returns pkg/errors.NotFound if the key is not live.
func (e *Engine) Delete(key []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkWritable(); err != nil {
		return err
	}

	if !e.kd.Contains(string(key)) {
		return saverrors.NotFound
	}

	buf, _, err := record.EncodeTombstone(key)
	if err != nil {
		return err
	}
	if _, err := e.file.Append(buf); err != nil {
		return err
	}

	e.kd.Remove(string(key))
	e.cfg.Logger.Debugw("engine: delete", "key", string(key))
	return nil
}

// Contains reports whether key is live, a pure keydir lookup.
func (e *Engine) Contains(key []byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.kd.Contains(string(key))
}

// Len returns the number of live keys.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.kd.Len()
}

// Keys yields every live key in forward insertion order.
func (e *Engine) Keys() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		e.mu.Lock()
		snapshot := e.kd.Keys()
		e.mu.Unlock()
		for _, k := range snapshot {
			if !yield([]byte(k)) {
				return
			}
		}
	}
}

// ReverseKeys yields every live key in reverse insertion order.
func (e *Engine) ReverseKeys() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		e.mu.Lock()
		snapshot := make([]string, 0, e.kd.Len())
		e.kd.EachReverse(func(key string, _ keydir.Entry) bool {
			snapshot = append(snapshot, key)
			return true
		})
		e.mu.Unlock()
		for _, k := range snapshot {
			if !yield([]byte(k)) {
				return
			}
		}
	}
}

// Items yields every live key/value pair in forward insertion order.
// Each value is fetched from disk at iteration time and never cached.
func (e *Engine) Items() iter.Seq2[[]byte, []byte] {
	return e.items(false)
}

// ReverseItems yields every live key/value pair in reverse insertion
// order.
func (e *Engine) ReverseItems() iter.Seq2[[]byte, []byte] {
	return e.items(true)
}

func (e *Engine) items(reverse bool) iter.Seq2[[]byte, []byte] {
	return func(yield func([]byte, []byte) bool) {
		keys := e.snapshotKeys(reverse)
		for _, k := range keys {
			v, err := e.Get([]byte(k))
			if err != nil {
				// Key was deleted concurrently with iteration (or by
				// a prior step of this same iteration via Pop); skip
				// it rather than surfacing an error the caller has no
				// way to act on mid-range.
				continue
			}
			if !yield([]byte(k), v) {
				return
			}
		}
	}
}

func (e *Engine) snapshotKeys(reverse bool) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !reverse {
		return e.kd.Keys()
	}
	keys := make([]string, 0, e.kd.Len())
	e.kd.EachReverse(func(key string, _ keydir.Entry) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// Pop returns and removes the value for key, failing with
// pkg/errors.NotFound if it is absent.
func (e *Engine) Pop(key []byte) ([]byte, error) {
	v, err := e.Get(key)
	if err != nil {
		return nil, err
	}
	if err := e.Delete(key); err != nil {
		return nil, err
	}
	return v, nil
}

// PopItem removes and returns the most recently inserted live
// key/value pair, failing with pkg/errors.Empty if the keydir is
// empty.
func (e *Engine) PopItem() ([]byte, []byte, error) {
	e.mu.Lock()
	key, _, ok := e.kd.Last()
	e.mu.Unlock()

	if !ok {
		return nil, nil, saverrors.Empty
	}

	v, err := e.Pop([]byte(key))
	if err != nil {
		return nil, nil, err
	}
	return []byte(key), v, nil
}

// SetDefault returns the current value for key, or stores and returns
// def if key is not live.
func (e *Engine) SetDefault(key, def []byte) ([]byte, error) {
	v, err := e.Get(key)
	if err == nil {
		return v, nil
	}
	if saverrors.Of(err) != saverrors.KindNotFound {
		return nil, err
	}
	if err := e.Put(key, def); err != nil {
		return nil, err
	}
	return def, nil
}

// Update applies every key/value pair in kvs via Put, in map
// iteration order.
func (e *Engine) Update(kvs map[string][]byte) error {
	for k, v := range kvs {
		if err := e.Put([]byte(k), v); err != nil {
			return err
		}
	}
	return nil
}

// Clear deletes every live key.
func (e *Engine) Clear() error {
	for {
		e.mu.Lock()
		key, _, ok := e.kd.Last()
		e.mu.Unlock()
		if !ok {
			return nil
		}
		if err := e.Delete([]byte(key)); err != nil {
			return err
		}
	}
}

// Copy writes a dense copy of the engine's live contents to newPath.
// The current engine continues to refer to its original file. Fails
// with pkg/errors.InvalidArgument if newPath resolves to the current
// path.
func (e *Engine) Copy(newPath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkOpen(); err != nil {
		return err
	}
	if samePath(newPath, e.path) {
		return saverrors.InvalidArgument
	}

	buf, _, err := e.buildCompactedImageLocked()
	if err != nil {
		return err
	}
	return writeAtomic(newPath, buf)
}

// Sync delegates to the file I/O layer.
func (e *Engine) Sync() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen(); err != nil {
		return err
	}
	return e.file.Sync()
}

// Compact rewrites the engine's file to contain exactly one record
// per live key and swaps it into place atomically. See compactor.go.
func (e *Engine) Compact() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkWritable(); err != nil {
		return err
	}
	return e.compactLocked()
}

// Close optionally compacts, then syncs and releases the file
// descriptor. Afterwards Get, Put, Delete, Copy, Sync, Compact and
// Close fail with pkg/errors.AlreadyClosed, as do the operations built
// on them once they reach one of those calls; Contains, Len, Keys and
// ReverseKeys keep answering from the in-memory keydir. A compaction
// failure is combined with any
// close-time error rather than one shadowing the other, and the
// descriptor is released regardless of whether compaction succeeded.
func (e *Engine) Close(compact bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return saverrors.AlreadyClosed
	}

	var compactErr error
	if compact && e.mode.Writable() {
		compactErr = e.compactLocked()
	}

	closeErr := e.file.Close()
	e.closed.Store(true)

	return multierr.Combine(compactErr, closeErr)
}

func samePath(a, b string) bool {
	ra, errA := filepath.Abs(a)
	rb, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return ra == rb
}
