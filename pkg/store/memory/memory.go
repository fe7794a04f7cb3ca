// Package memory implements an in-memory store.Store.
//
// This is the store used by unit tests and single-process embeddings of the
// coordination core. It has no durability: restart loses all state.
//
// Thread Safety: Store is safe for concurrent use by multiple goroutines,
// using a mutex-protected-map pattern throughout.
package memory

import (
	"context"
	"reflect"
	"sync"

	"github.com/marmos91/coordcore/pkg/coorderr"
	"github.com/marmos91/coordcore/pkg/session"
	"github.com/marmos91/coordcore/pkg/store"
)

// Store is an in-memory, mutex-guarded implementation of store.Store.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*store.StoredEntry
	sessions map[string]*store.StoredSession
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		entries:  make(map[string]*store.StoredEntry),
		sessions: make(map[string]*store.StoredSession),
	}
}

var _ store.Store = (*Store)(nil)

// GetEntry returns a clone of the current record for path.
func (s *Store) GetEntry(ctx context.Context, path string) (*store.StoredEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, coorderr.NewCancelled(path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[path]
	if !ok {
		return nil, coorderr.NewEntryNotFound(path)
	}
	return e.Clone(), nil
}

// CASEntry implements the compare-and-swap contract described on
// store.EntryStore.
func (s *Store) CASEntry(ctx context.Context, desired, expected *store.StoredEntry) (*store.StoredEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, coorderr.NewCancelled(desired.Path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.entries[desired.Path]
	if !entryEquals(current, expected) {
		if current == nil {
			return nil, nil
		}
		return current.Clone(), nil
	}

	s.entries[desired.Path] = desired.Clone()
	return desired.Clone(), nil
}

// DeleteEntry removes the record at path if it equals expected.
func (s *Store) DeleteEntry(ctx context.Context, path string, expected *store.StoredEntry) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, coorderr.NewCancelled(path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.entries[path]
	if !entryEquals(current, expected) {
		return false, nil
	}
	delete(s.entries, path)
	return true, nil
}

// ScanEntries returns every entry matching predicate (nil matches all).
func (s *Store) ScanEntries(ctx context.Context, predicate func(*store.StoredEntry) bool) ([]*store.StoredEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, coorderr.NewCancelled("")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*store.StoredEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if predicate == nil || predicate(e) {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

// GetSession returns a clone of the current record for id.
func (s *Store) GetSession(ctx context.Context, id session.ID) (*store.StoredSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, coorderr.NewCancelled(id.String())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id.Key()]
	if !ok {
		return nil, coorderr.NewEntryNotFound(id.String())
	}
	return rec.Clone(), nil
}

// CASSession implements the compare-and-swap contract described on
// store.SessionStore.
func (s *Store) CASSession(ctx context.Context, desired, expected *store.StoredSession) (*store.StoredSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, coorderr.NewCancelled(desired.SessionID.String())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.sessions[desired.SessionID.Key()]
	if !sessionEquals(current, expected) {
		if current == nil {
			return nil, nil
		}
		return current.Clone(), nil
	}

	s.sessions[desired.SessionID.Key()] = desired.Clone()
	return desired.Clone(), nil
}

// DeleteSession removes the record for id if it equals expected.
func (s *Store) DeleteSession(ctx context.Context, id session.ID, expected *store.StoredSession) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, coorderr.NewCancelled(id.String())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.sessions[id.Key()]
	if !sessionEquals(current, expected) {
		return false, nil
	}
	delete(s.sessions, id.Key())
	return true, nil
}

// ScanSessions returns every known session record.
func (s *Store) ScanSessions(ctx context.Context) ([]*store.StoredSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, coorderr.NewCancelled("")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*store.StoredSession, 0, len(s.sessions))
	for _, rec := range s.sessions {
		out = append(out, rec.Clone())
	}
	return out, nil
}

func entryEquals(current, expected *store.StoredEntry) bool {
	if current == nil || expected == nil {
		return current == nil && expected == nil
	}
	return reflect.DeepEqual(current, expected)
}

func sessionEquals(current, expected *store.StoredSession) bool {
	if current == nil || expected == nil {
		return current == nil && expected == nil
	}
	return reflect.DeepEqual(current, expected)
}
