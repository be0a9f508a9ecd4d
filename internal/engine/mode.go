package engine

import "fmt"

// Mode selects the open-mode permissions of spec.md §4.5's table.
type Mode int

const (
	// ModeRead requires the file to exist; reads only.
	ModeRead Mode = iota
	// ModeReadWrite requires the file to exist; reads and writes.
	ModeReadWrite
	// ModeCreate creates the file if missing, never truncates.
	ModeCreate
	// ModeNew always creates the file, truncating it to zero length
	// if it already exists.
	ModeNew
)

// String renders the single-letter mode name used by spec.md §4.5.
func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "r"
	case ModeReadWrite:
		return "w"
	case ModeCreate:
		return "c"
	case ModeNew:
		return "n"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses the single-letter mode names r/w/c/n.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "r":
		return ModeRead, nil
	case "w":
		return ModeReadWrite, nil
	case "c":
		return ModeCreate, nil
	case "n":
		return ModeNew, nil
	default:
		return 0, fmt.Errorf("savestate: unknown mode %q, want one of r, w, c, n", s)
	}
}

// Writable reports whether this mode permits Put/Delete/Compact/etc.
func (m Mode) Writable() bool {
	return m != ModeRead
}
