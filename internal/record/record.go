// Package record implements the on-disk record format: a self
// delimiting, big-endian, CRC-32 protected key/value frame. It knows
// nothing about files or offsets; it only encodes and decodes bytes.
package record

import (
	"encoding/binary"
	"hash/crc32"

	saverrors "github.com/go-savestate/savestate/pkg/errors"
)

const (
	// HeaderSize is the length in bytes of the key_size/value_size
	// prefix that begins every record.
	HeaderSize = 8

	// ChecksumSize is the length in bytes of the trailing CRC-32.
	ChecksumSize = 4

	// MinRecordLen is the smallest number of bytes a well-formed
	// record can occupy: an 8-byte header plus a 4-byte checksum with
	// no key or value bytes. Recovery uses this as the structural
	// floor when deciding whether a tail is a partial header; it is
	// not a writer constraint (a real write always has a non-empty
	// key).
	MinRecordLen = HeaderSize + ChecksumSize

	// TombstoneSentinel is the value_size that marks a deletion
	// record. No value bytes follow a tombstone.
	TombstoneSentinel uint32 = 0xFFFFFFFF
)

// Header is the decoded first 8 bytes of a record.
type Header struct {
	KeySize     uint32
	ValueSize   uint32
	IsTombstone bool
}

// Len returns the total on-disk length of the record this header
// describes, header through trailing checksum inclusive.
func (h Header) Len() int {
	n := HeaderSize + int(h.KeySize) + ChecksumSize
	if !h.IsTombstone {
		n += int(h.ValueSize)
	}
	return n
}

// Encode assembles a live record from key and value bytes: header,
// key, value, then a CRC-32 over everything preceding it. It fails
// with pkg/errors.InvalidKey if key is empty.
func Encode(key, value []byte) ([]byte, uint32, error) {
	if len(key) == 0 {
		return nil, 0, saverrors.InvalidKey
	}

	buf := make([]byte, HeaderSize+len(key)+len(value)+ChecksumSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(key)))
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(value)))
	copy(buf[HeaderSize:], key)
	copy(buf[HeaderSize+len(key):], value)

	crc := crc32.ChecksumIEEE(buf[:HeaderSize+len(key)+len(value)])
	binary.BigEndian.PutUint32(buf[len(buf)-ChecksumSize:], crc)

	return buf, crc, nil
}

// EncodeTombstone assembles a deletion record: header with the
// tombstone sentinel in place of value_size, key bytes, then a CRC-32
// over everything preceding it. No value bytes are written.
func EncodeTombstone(key []byte) ([]byte, uint32, error) {
	if len(key) == 0 {
		return nil, 0, saverrors.InvalidKey
	}

	buf := make([]byte, HeaderSize+len(key)+ChecksumSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(key)))
	binary.BigEndian.PutUint32(buf[4:8], TombstoneSentinel)
	copy(buf[HeaderSize:], key)

	crc := crc32.ChecksumIEEE(buf[:HeaderSize+len(key)])
	binary.BigEndian.PutUint32(buf[len(buf)-ChecksumSize:], crc)

	return buf, crc, nil
}

// DecodeHeader reads the key_size/value_size prefix from the first 8
// bytes of buf. Callers use the result to know how many more bytes to
// read before the record can be fully decoded.
func DecodeHeader(buf []byte) Header {
	keySize := binary.BigEndian.Uint32(buf[0:4])
	valueSize := binary.BigEndian.Uint32(buf[4:8])
	return Header{
		KeySize:     keySize,
		ValueSize:   valueSize,
		IsTombstone: valueSize == TombstoneSentinel,
	}
}

// Verify recomputes the CRC-32 over a full record's header+key+value
// and compares it to the trailing 4 bytes, returning
// pkg/errors.ChecksumMismatch on a mismatch.
func Verify(full []byte) error {
	if len(full) < MinRecordLen {
		return saverrors.Wrap(saverrors.KindChecksumMismatch, "record shorter than minimum length", nil)
	}

	body := full[:len(full)-ChecksumSize]
	want := binary.BigEndian.Uint32(full[len(full)-ChecksumSize:])
	got := crc32.ChecksumIEEE(body)

	if got != want {
		return saverrors.ChecksumMismatch
	}
	return nil
}

// Key extracts the key bytes from a fully read record given its
// already-decoded header.
func Key(full []byte, h Header) []byte {
	return full[HeaderSize : HeaderSize+int(h.KeySize)]
}

// Value extracts the value bytes from a fully read record given its
// already-decoded header. Returns nil for a tombstone.
func Value(full []byte, h Header) []byte {
	if h.IsTombstone {
		return nil
	}
	start := HeaderSize + int(h.KeySize)
	return full[start : start+int(h.ValueSize)]
}
