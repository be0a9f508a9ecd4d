// Package errors defines the catchable error kinds the savestate engine
// can return, in the spirit of a tagged, wrapped error rather than a
// grab-bag of sentinel values declared ad hoc across packages.
package errors

import goerrors "errors"

// Kind categorizes an Error programmatically, the way a status code
// categorizes an HTTP response.
type Kind string

const (
	// KindNotFound is returned when a path is missing in a mode that
	// requires it to exist, or when a key is missing from the keydir.
	KindNotFound Kind = "NOT_FOUND"

	// KindAlreadyClosed is returned for any operation attempted after
	// Close.
	KindAlreadyClosed Kind = "ALREADY_CLOSED"

	// KindReadOnly is returned for a mutating operation against an
	// engine opened in mode r.
	KindReadOnly Kind = "READ_ONLY"

	// KindInvalidKey is returned when an empty key is supplied to a
	// write.
	KindInvalidKey Kind = "INVALID_KEY"

	// KindInvalidArgument is returned for caller-input violations that
	// are not about the key itself, such as Copy targeting the
	// current path.
	KindInvalidArgument Kind = "INVALID_ARGUMENT"

	// KindChecksumMismatch is returned when a record's stored CRC-32
	// does not match its recomputed CRC-32.
	KindChecksumMismatch Kind = "CHECKSUM_MISMATCH"

	// KindShortRead is returned when the file is shorter than the
	// keydir claims.
	KindShortRead Kind = "SHORT_READ"

	// KindIO is returned for any underlying OS failure.
	KindIO Kind = "IO_ERROR"

	// KindEmpty is returned by PopItem when the keydir is empty.
	KindEmpty Kind = "EMPTY"
)

// Error is a Kind-tagged error that optionally wraps an underlying
// cause, such as the *fs.PathError behind an IO failure.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New builds an Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

// Unwrap lets errors.Is/errors.As see through to the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same Kind, so callers
// can write errors.Is(err, errors.NotFound) against a sentinel.
func (e *Error) Is(target error) bool {
	var other *Error
	if !goerrors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// Sentinel values for errors.Is comparisons against a bare Kind, e.g.
// errors.Is(err, errors.NotFound).
var (
	NotFound         = &Error{Kind: KindNotFound, Message: "not found"}
	AlreadyClosed    = &Error{Kind: KindAlreadyClosed, Message: "store already closed"}
	ReadOnly         = &Error{Kind: KindReadOnly, Message: "store opened read-only"}
	InvalidKey       = &Error{Kind: KindInvalidKey, Message: "invalid key"}
	InvalidArgument  = &Error{Kind: KindInvalidArgument, Message: "invalid argument"}
	ChecksumMismatch = &Error{Kind: KindChecksumMismatch, Message: "checksum mismatch"}
	ShortRead        = &Error{Kind: KindShortRead, Message: "short read"}
	Empty            = &Error{Kind: KindEmpty, Message: "empty"}
)

// IO wraps an OS-level failure as a KindIO error.
func IO(message string, cause error) *Error {
	return Wrap(KindIO, message, cause)
}

// Of reports the Kind of err, or "" if err is not an *Error (nor wraps
// one).
func Of(err error) Kind {
	var e *Error
	if goerrors.As(err, &e) {
		return e.Kind
	}
	return ""
}
