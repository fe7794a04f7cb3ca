package store

import (
	"context"

	"github.com/marmos91/coordcore/pkg/session"
)

// EntryStore is the conditional-update contract over StoredEntry records.
// Every mutating method is a single linearizable operation keyed by
// escaped path.
type EntryStore interface {
	// GetEntry returns the current record for path, or a *coorderr.Error
	// with code EntryNotFound.
	GetEntry(ctx context.Context, path string) (*StoredEntry, error)

	// CASEntry atomically replaces the record at desired.Path with desired
	// if the current record equals expected (nil expected means "path must
	// not currently exist"). It returns the record as it stands after the
	// operation: desired on success, or the actual current record on a lost
	// race (the caller compares by StorageVersion/pointer identity to tell
	// success from a lost race, never by error).
	CASEntry(ctx context.Context, desired, expected *StoredEntry) (*StoredEntry, error)

	// DeleteEntry removes the record at path if its current state equals
	// expected. Returns false (no error) if the current record no longer
	// equals expected — a CAS miss, not a failure.
	DeleteEntry(ctx context.Context, path string, expected *StoredEntry) (bool, error)

	// ScanEntries returns every entry for which predicate returns true (nil
	// predicate matches everything). Backends may materialize the full
	// result before returning; the core's working set (live tree entries)
	// is assumed to fit in memory for a single scan.
	ScanEntries(ctx context.Context, predicate func(*StoredEntry) bool) ([]*StoredEntry, error)
}

// SessionStore is the conditional-update contract over StoredSession
// records.
type SessionStore interface {
	// GetSession returns the current record for id, or a *coorderr.Error
	// with code EntryNotFound if no record exists.
	GetSession(ctx context.Context, id session.ID) (*StoredSession, error)

	// CASSession atomically replaces the record for desired.SessionID with
	// desired if the current record equals expected (nil expected means
	// "must not currently exist"). Return semantics mirror CASEntry.
	CASSession(ctx context.Context, desired, expected *StoredSession) (*StoredSession, error)

	// DeleteSession removes the record for id if its current state equals
	// expected. Returns false (no error) on a CAS miss.
	DeleteSession(ctx context.Context, id session.ID, expected *StoredSession) (bool, error)

	// ScanSessions returns every known session record.
	ScanSessions(ctx context.Context) ([]*StoredSession, error)
}

// Store is the full database contract the coordination core is built on:
// a small capability set — read, cas_update, scan, delete — over the two
// record types it persists.
type Store interface {
	EntryStore
	SessionStore
}
