// Package storage is the file I/O layer: buffered append writes,
// positional reads that are aware of not-yet-flushed data, sync,
// truncate, and the reopen used after an atomic compaction swap.
package storage

import (
	"bufio"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	saverrors "github.com/go-savestate/savestate/pkg/errors"
)

// Config tunes the buffering and auto-flush behavior of a File.
type Config struct {
	// BatchSize is the buffered-byte threshold that triggers an
	// automatic flush+sync on Append.
	BatchSize int

	// SyncInterval is the maximum time allowed to pass since the last
	// sync before Append forces one, independent of buffer size.
	SyncInterval time.Duration

	Logger *zap.SugaredLogger
}

const (
	defaultBatchSize    = 64 * 1024
	defaultSyncInterval = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = defaultSyncInterval
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
	return c
}

// File is a single append-only log file plus its write buffer.
type File struct {
	mu           sync.Mutex
	path         string
	file         *os.File
	buffer       *bufio.Writer
	flushedSize  int64
	lastSyncTime time.Time
	cfg          Config
}

// Open opens path with the given os.OpenFile flags and wraps it in a
// buffered File. The caller is responsible for choosing flags
// appropriate to the engine's open mode.
func Open(path string, flag int, perm os.FileMode, cfg Config) (*File, error) {
	cfg = cfg.withDefaults()

	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, saverrors.IO("open "+path, err)
	}

	size, err := fileSize(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	cfg.Logger.Debugw("storage: opened file", "path", path, "size", size)

	return &File{
		path:         path,
		file:         f,
		buffer:       bufio.NewWriterSize(f, cfg.BatchSize),
		flushedSize:  size,
		lastSyncTime: time.Now(),
		cfg:          cfg,
	}, nil
}

func fileSize(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, saverrors.IO("stat", err)
	}
	return info.Size(), nil
}

// Path returns the file's current path on disk.
func (f *File) Path() string {
	return f.path
}

// Size returns the file's logical length, flushed bytes plus whatever
// is still sitting in the write buffer.
func (f *File) Size() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushedSize + int64(f.buffer.Buffered())
}

// Append writes data to the buffered writer and returns the absolute
// offset it will occupy once flushed. Offsets returned by successive
// calls are monotonically increasing and contiguous.
func (f *File) Append(data []byte) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	offset := f.flushedSize + int64(f.buffer.Buffered())
	// The buffer holds BatchSize bytes, so it only spills to the file on
	// its own during a write that reaches the threshold, and such a
	// write is always followed by a flush+sync that re-reads the size.
	pending := f.buffer.Buffered() + len(data)

	if _, err := f.buffer.Write(data); err != nil {
		return 0, saverrors.IO("append", err)
	}

	if pending >= f.cfg.BatchSize || time.Since(f.lastSyncTime) >= f.cfg.SyncInterval {
		if err := f.flushAndSyncLocked(); err != nil {
			return 0, err
		}
	}

	return offset, nil
}

// ReadAt reads length bytes starting at offset. If the requested
// range has not yet been flushed, the buffer is flushed first so the
// positional read can see it.
func (f *File) ReadAt(offset int64, length uint32) ([]byte, error) {
	f.mu.Lock()
	if offset+int64(length) > f.flushedSize {
		if err := f.flushAndSyncLocked(); err != nil {
			f.mu.Unlock()
			return nil, err
		}
	}
	f.mu.Unlock()

	if offset+int64(length) > f.flushedSize {
		return nil, saverrors.ShortRead
	}

	buf := make([]byte, length)
	n, err := f.file.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, saverrors.IO("read_at", err)
	}
	if n != int(length) {
		return nil, saverrors.ShortRead
	}
	return buf, nil
}

// Sync flushes the write buffer and forces the OS to persist the file
// durably.
func (f *File) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushAndSyncLocked()
}

func (f *File) flushAndSyncLocked() error {
	if err := f.buffer.Flush(); err != nil {
		return saverrors.IO("flush", err)
	}
	size, err := fileSize(f.file)
	if err != nil {
		return err
	}
	f.flushedSize = size
	if err := f.file.Sync(); err != nil {
		return saverrors.IO("fsync", err)
	}
	f.lastSyncTime = time.Now()
	return nil
}

// Truncate shortens the file to length, used by recovery to drop a
// trailing partial or corrupted record.
func (f *File) Truncate(length int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.buffer.Flush(); err != nil {
		return saverrors.IO("flush before truncate", err)
	}
	if err := f.file.Truncate(length); err != nil {
		return saverrors.IO("truncate", err)
	}
	f.flushedSize = length
	f.cfg.Logger.Infow("storage: truncated trailing garbage", "path", f.path, "length", length)
	return nil
}

// Reopen closes the current descriptor and reopens the same path,
// picking up whatever content now lives there. Used by the compactor
// after the new file has been atomically swapped into place.
func (f *File) Reopen(flag int, perm os.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.file.Close(); err != nil {
		f.cfg.Logger.Warnw("storage: error closing file before reopen", "error", err)
	}

	nf, err := os.OpenFile(f.path, flag, perm)
	if err != nil {
		return saverrors.IO("reopen "+f.path, err)
	}

	size, err := fileSize(nf)
	if err != nil {
		_ = nf.Close()
		return err
	}

	f.file = nf
	f.buffer = bufio.NewWriterSize(nf, f.cfg.BatchSize)
	f.flushedSize = size
	f.lastSyncTime = time.Now()
	return nil
}

// Close flushes and syncs the buffer, then releases the descriptor.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	flushErr := f.flushAndSyncLocked()
	closeErr := f.file.Close()
	if closeErr != nil {
		closeErr = saverrors.IO("close", closeErr)
	}

	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
