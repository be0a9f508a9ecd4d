package engine

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/go-savestate/savestate/internal/keydir"
	"github.com/go-savestate/savestate/internal/record"
	saverrors "github.com/go-savestate/savestate/pkg/errors"
)

// buildCompactedImageLocked walks the keydir in iteration order,
// reads each live value through the storage layer, and encodes a
// fresh record for it into an in-memory buffer. It returns the buffer
// and the new offset each key's value will occupy once that buffer
// becomes the file. The caller holds e.mu.
func (e *Engine) buildCompactedImageLocked() ([]byte, map[string]keydir.Entry, error) {
	var buf bytes.Buffer
	newEntries := make(map[string]keydir.Entry, e.kd.Len())

	var readErr error
	e.kd.Each(func(key string, entry keydir.Entry) bool {
		value, err := e.file.ReadAt(entry.Offset, entry.Size)
		if err != nil {
			readErr = err
			return false
		}

		recordBuf, checksum, err := record.Encode([]byte(key), value)
		if err != nil {
			readErr = err
			return false
		}

		newOffset := int64(buf.Len()) + int64(record.HeaderSize) + int64(len(key))
		buf.Write(recordBuf)

		newEntries[key] = keydir.Entry{
			Offset:   newOffset,
			Size:     uint32(len(value)),
			Checksum: checksum,
		}
		return true
	})

	if readErr != nil {
		return nil, nil, readErr
	}
	return buf.Bytes(), newEntries, nil
}

// compactLocked implements spec.md §4.6: build the dense image, swap
// it into place atomically, and update the keydir and file descriptor
// to point at the new file. The caller holds e.mu. If any step before
// the atomic write completes fails, the original file and keydir are
// left completely untouched.
func (e *Engine) compactLocked() error {
	buf, newEntries, err := e.buildCompactedImageLocked()
	if err != nil {
		return err
	}

	if err := writeAtomic(e.path, buf); err != nil {
		return err
	}

	flag := os.O_RDWR | os.O_APPEND
	if !e.mode.Writable() {
		flag = os.O_RDONLY
	}
	if err := e.file.Reopen(flag, 0o644); err != nil {
		return err
	}

	for key, entry := range newEntries {
		e.kd.Put(key, entry)
	}

	e.cfg.Logger.Infow("engine: compacted", "path", e.path, "live_keys", len(newEntries), "bytes", len(buf))
	return nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil && !os.IsExist(err) {
		return saverrors.IO("mkdir", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return saverrors.IO("atomic replace "+path, err)
	}
	return nil
}
