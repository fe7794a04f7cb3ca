// Package coorderr defines the error taxonomy shared by every layer of the
// coordination core (session, store, cache, lock manager, coordination
// manager): one typed error, one error-category enum, factory functions
// per category.
package coorderr

import "fmt"

// Code categorizes a coordination-core error.
type Code int

const (
	// SessionTerminated indicates the session in question is no longer
	// alive (ended or lease-expired). Always terminal for that session.
	SessionTerminated Code = iota

	// EntryNotFound indicates the requested entry is absent, possibly due
	// to a concurrent delete.
	EntryNotFound

	// DuplicateEntry indicates a create on an already-existing path.
	DuplicateEntry

	// StorageUnavailable indicates a transient backend failure that may be
	// retried at the caller's discretion.
	StorageUnavailable

	// Cancelled indicates the caller's cancellation signal fired.
	Cancelled

	// Invariant indicates an internal consistency breach: a bug, or a
	// backend that violated the CAS contract. Always fatal.
	Invariant
)

// String renders the code's name for logging.
func (c Code) String() string {
	switch c {
	case SessionTerminated:
		return "session_terminated"
	case EntryNotFound:
		return "entry_not_found"
	case DuplicateEntry:
		return "duplicate_entry"
	case StorageUnavailable:
		return "storage_unavailable"
	case Cancelled:
		return "cancelled"
	case Invariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// Error is the typed error returned by every coordination-core operation.
type Error struct {
	Code    Code
	Message string
	Path    string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is makes errors.Is(err, target) report true when target is an *Error
// with the same Code, whatever its message or path. To test an error
// against a bare Code, use the package-level Is helper or CodeOf.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == other.Code
}

// CodeOf extracts the Code from err, returning (code, true) if err is (or
// wraps) a *Error, else (0, false).
func CodeOf(err error) (Code, bool) {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Code, true
	}
	return 0, false
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// New constructs an *Error with the given code, message and optional path.
func New(code Code, message, path string) *Error {
	return &Error{Code: code, Message: message, Path: path}
}

// NewSessionTerminated builds a SessionTerminated error.
func NewSessionTerminated(path string) *Error {
	return &Error{Code: SessionTerminated, Message: "session is no longer alive", Path: path}
}

// NewEntryNotFound builds an EntryNotFound error.
func NewEntryNotFound(path string) *Error {
	return &Error{Code: EntryNotFound, Message: "entry not found", Path: path}
}

// NewDuplicateEntry builds a DuplicateEntry error.
func NewDuplicateEntry(path string) *Error {
	return &Error{Code: DuplicateEntry, Message: "entry already exists", Path: path}
}

// NewStorageUnavailable builds a StorageUnavailable error wrapping cause.
func NewStorageUnavailable(path string, cause error) *Error {
	msg := "storage backend unavailable"
	if cause != nil {
		msg = msg + ": " + cause.Error()
	}
	return &Error{Code: StorageUnavailable, Message: msg, Path: path}
}

// NewCancelled builds a Cancelled error.
func NewCancelled(path string) *Error {
	return &Error{Code: Cancelled, Message: "operation cancelled", Path: path}
}

// NewInvariant builds an Invariant error describing the broken invariant.
func NewInvariant(path, message string) *Error {
	return &Error{Code: Invariant, Message: message, Path: path}
}
