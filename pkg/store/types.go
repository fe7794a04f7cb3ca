// Package store defines the conditional-update key-value contract the
// coordination core is built on, plus the two record types it persists
// through that contract, and ships three
// implementations: an in-memory store (pkg/store/memory), a BadgerDB-backed
// store (pkg/store/badger) and a PostgreSQL-backed store (pkg/store/postgres).
package store

import (
	"time"

	"github.com/marmos91/coordcore/pkg/session"
)

// StoredEntry is the durable record for one path in the coordination tree.
//
// storage_version is the CAS discriminator: every successful update (via
// Store.CASEntry) increments it by exactly one.
type StoredEntry struct {
	Path           string // escaped path, primary key
	Value          []byte
	CreationTime   time.Time
	LastWriteTime  time.Time
	WriteLock      session.ID // None if unheld
	ReadLocks      []session.ID
	StorageVersion uint64
	EphemeralOwner session.ID // None if not ephemeral
	Children       []string   // immediate child segment names
}

// Clone returns a deep copy safe for the caller to mutate.
func (e *StoredEntry) Clone() *StoredEntry {
	if e == nil {
		return nil
	}
	out := *e
	out.Value = append([]byte(nil), e.Value...)
	out.ReadLocks = append([]session.ID(nil), e.ReadLocks...)
	out.Children = append([]string(nil), e.Children...)
	return &out
}

// HasReadLock reports whether id currently holds a read lock on the entry.
func (e *StoredEntry) HasReadLock(id session.ID) bool {
	for _, r := range e.ReadLocks {
		if r.Equal(id) {
			return true
		}
	}
	return false
}

// WithReadLock returns a clone with id added to ReadLocks (no-op if already
// present).
func (e *StoredEntry) WithReadLock(id session.ID) *StoredEntry {
	clone := e.Clone()
	if clone.HasReadLock(id) {
		return clone
	}
	clone.ReadLocks = append(clone.ReadLocks, id)
	return clone
}

// WithoutReadLock returns a clone with id removed from ReadLocks.
func (e *StoredEntry) WithoutReadLock(id session.ID) *StoredEntry {
	clone := e.Clone()
	out := clone.ReadLocks[:0]
	for _, r := range clone.ReadLocks {
		if !r.Equal(id) {
			out = append(out, r)
		}
	}
	clone.ReadLocks = out
	return clone
}

// StoredSession is the durable record of one leased session.
type StoredSession struct {
	SessionID      session.ID
	LeaseEnd       time.Time
	IsEnded        bool
	StorageVersion uint64
	EntryPaths     []string // escaped paths this session owns locks/ephemerals on
}

// Clone returns a deep copy safe for the caller to mutate.
func (s *StoredSession) Clone() *StoredSession {
	if s == nil {
		return nil
	}
	out := *s
	out.EntryPaths = append([]string(nil), s.EntryPaths...)
	return &out
}

// IsAlive reports whether the session is not ended and its lease has not
// yet expired, as of now.
func (s *StoredSession) IsAlive(now time.Time) bool {
	return s != nil && !s.IsEnded && s.LeaseEnd.After(now)
}

// HasEntry reports whether path is present in EntryPaths.
func (s *StoredSession) HasEntry(path string) bool {
	for _, p := range s.EntryPaths {
		if p == path {
			return true
		}
	}
	return false
}

// WithEntry returns a clone with path added to EntryPaths (no-op if already
// present).
func (s *StoredSession) WithEntry(path string) *StoredSession {
	clone := s.Clone()
	if clone.HasEntry(path) {
		return clone
	}
	clone.EntryPaths = append(clone.EntryPaths, path)
	return clone
}

// WithoutEntry returns a clone with path removed from EntryPaths.
func (s *StoredSession) WithoutEntry(path string) *StoredSession {
	clone := s.Clone()
	out := clone.EntryPaths[:0]
	for _, p := range clone.EntryPaths {
		if p != path {
			out = append(out, p)
		}
	}
	clone.EntryPaths = out
	return clone
}
