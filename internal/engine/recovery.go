package engine

import (
	"go.uber.org/zap"

	"github.com/go-savestate/savestate/internal/keydir"
	"github.com/go-savestate/savestate/internal/record"
	"github.com/go-savestate/savestate/internal/storage"
)

// recover_ implements spec.md §4.4: scan the file from offset 0,
// building the keydir. A record whose framing fits the file but whose
// checksum doesn't match is still applied to the keydir, so the
// corruption is surfaced by a verifying Get later rather than silently
// dropped. Only a record whose framing overruns the file — a
// genuinely truncated tail, or mid-file corruption of the size fields
// themselves — triggers salvage, which byte-scans forward for the
// next record that verifies. The trailing underscore avoids shadowing
// the built-in recover.
func recover_(f *storage.File, kd *keydir.KeyDir, writable bool, log *zap.SugaredLogger) (RecoveryReport, error) {
	report := RecoveryReport{TruncatedTo: -1}

	length := f.Size()
	pos := int64(0)

	for pos < length {
		if length-pos < record.MinRecordLen {
			report.TruncatedTo = pos
			break
		}

		header, err := readHeaderAt(f, pos)
		if err != nil {
			return report, err
		}
		recordLen := int64(header.Len())

		if pos+recordLen > length {
			log.Warnw("engine: record framing overruns file, attempting salvage", "offset", pos)
			report.SalvageAttempted++
			nextPos, salvaged, salvageErr := salvage(f, pos+1, length)
			if salvageErr != nil {
				return report, salvageErr
			}
			if !salvaged {
				report.TruncatedTo = pos
				break
			}
			pos = nextPos
			continue
		}

		full, err := f.ReadAt(pos, uint32(recordLen))
		if err != nil {
			return report, err
		}

		if verifyErr := record.Verify(full); verifyErr != nil {
			log.Warnw("engine: checksum mismatch, keeping record live for verify-on-read", "offset", pos)
			report.ChecksumMismatches++
		}

		applyRecord(kd, full, header, pos, &report)
		pos += recordLen
	}

	if report.TruncatedTo >= 0 && writable {
		if err := f.Truncate(report.TruncatedTo); err != nil {
			return report, err
		}
	}

	return report, nil
}

func readHeaderAt(f *storage.File, pos int64) (record.Header, error) {
	raw, err := f.ReadAt(pos, record.HeaderSize)
	if err != nil {
		return record.Header{}, err
	}
	return record.DecodeHeader(raw), nil
}

func applyRecord(kd *keydir.KeyDir, full []byte, h record.Header, pos int64, report *RecoveryReport) {
	key := string(record.Key(full, h))

	if h.IsTombstone {
		kd.Remove(key)
		report.TombstonesSeen++
		return
	}

	valueOffset := pos + int64(record.HeaderSize) + int64(h.KeySize)
	kd.Put(key, keydir.Entry{
		Offset:   valueOffset,
		Size:     h.ValueSize,
		Checksum: decodeChecksum(full),
	})
	report.RecordsLoaded++
}

func decodeChecksum(full []byte) uint32 {
	tail := full[len(full)-record.ChecksumSize:]
	return uint32(tail[0])<<24 | uint32(tail[1])<<16 | uint32(tail[2])<<8 | uint32(tail[3])
}

// salvage scans forward one byte at a time from start, trying to
// reinterpret each position as a record header, until a full
// candidate record verifies or EOF is reached. It returns the
// position at which the first record that verifies begins.
func salvage(f *storage.File, start, length int64) (int64, bool, error) {
	for pos := start; pos+record.MinRecordLen <= length; pos++ {
		header, err := readHeaderAt(f, pos)
		if err != nil {
			return 0, false, err
		}
		recordLen := int64(header.Len())
		if pos+recordLen > length {
			continue
		}

		full, err := f.ReadAt(pos, uint32(recordLen))
		if err != nil {
			return 0, false, err
		}
		if err := record.Verify(full); err == nil {
			// The main recovery loop re-reads and applies this record
			// through the normal path once it resumes at pos.
			return pos, true, nil
		}
	}
	return 0, false, nil
}
