// Package coordination is the thin public facade: get/set/create/delete
// over paths, each implemented as a sequence of lock-manager and storage
// operations preserving the data model's invariants.
// This package holds no state of its own beyond references to the layers
// below it.
package coordination

import (
	"context"
	"log/slog"
	"time"

	"github.com/marmos91/coordcore/pkg/cache"
	"github.com/marmos91/coordcore/pkg/coorderr"
	"github.com/marmos91/coordcore/pkg/lockmgr"
	"github.com/marmos91/coordcore/pkg/path"
	"github.com/marmos91/coordcore/pkg/session"
	"github.com/marmos91/coordcore/pkg/store"
)

// Entry is the caller-facing view of a stored entry: everything a client
// is allowed to see, with lock-holder identities rendered as strings
// rather than the internal session.ID representation.
type Entry struct {
	Path           string
	Value          []byte
	CreationTime   time.Time
	LastWriteTime  time.Time
	WriteLocked    bool
	ReadLockCount  int
	Ephemeral      bool
	Children       []string
	StorageVersion uint64
}

func toEntry(e *store.StoredEntry) *Entry {
	if e == nil {
		return nil
	}
	return &Entry{
		Path:           e.Path,
		Value:          append([]byte(nil), e.Value...),
		CreationTime:   e.CreationTime,
		LastWriteTime:  e.LastWriteTime,
		WriteLocked:    !e.WriteLock.IsNone(),
		ReadLockCount:  len(e.ReadLocks),
		Ephemeral:      !e.EphemeralOwner.IsNone(),
		Children:       append([]string(nil), e.Children...),
		StorageVersion: e.StorageVersion,
	}
}

// Manager orchestrates the lock manager, cache, session manager, and entry
// storage to implement the public coordination surface.
type Manager struct {
	backend      store.EntryStore
	cache        *cache.Cache
	locks        *lockmgr.Manager
	sessions     *session.Manager
	logger       *slog.Logger
	maxValueSize int
}

// New creates a Manager. maxValueSize caps the size of a value accepted by
// CreateEntry/SetValue; zero means unlimited.
func New(backend store.EntryStore, c *cache.Cache, locks *lockmgr.Manager, sessions *session.Manager, maxValueSize int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{backend: backend, cache: c, locks: locks, sessions: sessions, maxValueSize: maxValueSize, logger: logger}
}

// GetEntry returns the entry at p, preferring the local cache and falling
// back to a storage read on a miss. Returns a coorderr.EntryNotFound error
// if no entry exists. The root path is the one exception: it always
// exists conceptually, so a miss there materializes an empty root entry
// instead of reporting not-found.
func (m *Manager) GetEntry(ctx context.Context, p path.Path) (*Entry, error) {
	key := p.Escaped()
	cached := m.cache.GetEntry(key)
	if snap, _ := cached.Snapshot(); snap != nil {
		return toEntry(snap), nil
	}

	fresh, err := m.backend.GetEntry(ctx, key)
	if coorderr.Is(err, coorderr.EntryNotFound) && p.IsRoot() {
		fresh, err = m.ensureRoot(ctx, key)
	}
	if err != nil {
		return nil, err
	}
	_, version := cached.Snapshot()
	cached.Update(version, fresh)
	return toEntry(fresh), nil
}

// ensureRoot materializes an empty root entry if none exists yet, so that
// GetEntry and the first CreateEntry under the root have something to
// read and lock. Safe under concurrent callers: a lost CAS race just
// means another caller won it, and the loser re-reads the winner's entry.
func (m *Manager) ensureRoot(ctx context.Context, key string) (*store.StoredEntry, error) {
	now := time.Now()
	seed := &store.StoredEntry{
		Path:           key,
		CreationTime:   now,
		LastWriteTime:  now,
		StorageVersion: 1,
	}
	created, err := m.backend.CASEntry(ctx, seed, nil)
	if err != nil {
		return nil, err
	}
	if created != nil {
		return created, nil
	}
	return m.backend.GetEntry(ctx, key)
}

// GetChildren returns the immediate child segment names of p.
func (m *Manager) GetChildren(ctx context.Context, p path.Path) ([]string, error) {
	entry, err := m.GetEntry(ctx, p)
	if err != nil {
		return nil, err
	}
	return entry.Children, nil
}

// CreateEntry creates a new entry at p with the given value, under the
// parent's write lock. The parent must already exist.
// If ephemeralOwner is not session.None, the entry is deleted when that
// session ends.
func (m *Manager) CreateEntry(ctx context.Context, caller session.ID, p path.Path, value []byte, ephemeralOwner session.ID) (*Entry, error) {
	if p.IsRoot() {
		return nil, coorderr.NewInvariant(p.Escaped(), "cannot create the root entry")
	}
	if m.maxValueSize > 0 && len(value) > m.maxValueSize {
		return nil, coorderr.NewInvariant(p.Escaped(), "value exceeds configured max_value_size")
	}
	parent, _ := p.Parent()
	parentKey := parent.Escaped()
	key := p.Escaped()
	name := p.Name()

	if parent.IsRoot() {
		if _, err := m.ensureRoot(ctx, parentKey); err != nil {
			return nil, err
		}
	}

	parentEntry, err := m.locks.AcquireWriteLock(ctx, parentKey, caller)
	if err != nil {
		return nil, err
	}
	if parentEntry == nil {
		return nil, coorderr.NewEntryNotFound(parentKey)
	}
	defer func() {
		if releaseErr := m.locks.ReleaseWriteLock(context.Background(), parentEntry, caller); releaseErr != nil {
			m.logger.Warn("failed to release parent write lock after create", "path", parentKey, "error", releaseErr)
		}
	}()

	now := time.Now()
	desired := &store.StoredEntry{
		Path:           key,
		Value:          append([]byte(nil), value...),
		CreationTime:   now,
		LastWriteTime:  now,
		EphemeralOwner: ephemeralOwner,
		StorageVersion: 1,
	}
	created, err := m.backend.CASEntry(ctx, desired, nil)
	if err != nil {
		return nil, err
	}
	if created.StorageVersion != desired.StorageVersion || !created.CreationTime.Equal(desired.CreationTime) {
		// A CAS with a nil expected that loses the race returns the
		// already-existing record rather than an error; surface that as
		// a duplicate instead of silently reporting our desired value as
		// though it were now stored.
		return nil, coorderr.NewDuplicateEntry(key)
	}

	desiredParent := parentEntry.Clone()
	if !containsString(desiredParent.Children, name) {
		desiredParent.Children = append(desiredParent.Children, name)
	}
	desiredParent.LastWriteTime = now
	desiredParent.StorageVersion = parentEntry.StorageVersion + 1
	updatedParent, err := m.backend.CASEntry(ctx, desiredParent, parentEntry)
	if err != nil {
		return nil, err
	}
	if updatedParent.StorageVersion != desiredParent.StorageVersion {
		return nil, coorderr.NewInvariant(parentKey, "lost cas race updating parent children while holding its write lock")
	}
	parentEntry = updatedParent

	if !ephemeralOwner.IsNone() {
		// An entry with a non-none ephemeral_owner must be discoverable
		// from that session's entry_paths, so it gets cleaned up (or
		// reclaimed, see EnterGracePeriod) when the owning session ends.
		if err := m.sessions.AddEntry(ctx, ephemeralOwner, key); err != nil {
			return nil, err
		}
	}

	m.cache.Invalidate(key)
	return toEntry(desired), nil
}

// SetValue overwrites the value at p under its write lock.
func (m *Manager) SetValue(ctx context.Context, caller session.ID, p path.Path, value []byte) (*Entry, error) {
	if m.maxValueSize > 0 && len(value) > m.maxValueSize {
		return nil, coorderr.NewInvariant(p.Escaped(), "value exceeds configured max_value_size")
	}
	key := p.Escaped()

	entry, err := m.locks.AcquireWriteLock(ctx, key, caller)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, coorderr.NewEntryNotFound(key)
	}
	defer func() {
		if releaseErr := m.locks.ReleaseWriteLock(context.Background(), entry, caller); releaseErr != nil {
			m.logger.Warn("failed to release write lock after set_value", "path", key, "error", releaseErr)
		}
	}()

	desired := entry.Clone()
	desired.Value = append([]byte(nil), value...)
	desired.LastWriteTime = time.Now()
	desired.StorageVersion = entry.StorageVersion + 1

	updated, err := m.backend.CASEntry(ctx, desired, entry)
	if err != nil {
		return nil, err
	}
	if updated.StorageVersion != desired.StorageVersion {
		return nil, coorderr.NewInvariant(key, "lost cas race updating value while holding write lock")
	}
	entry = updated

	return toEntry(entry), nil
}

// DeleteEntry removes the entry at p under its write lock, detaching it
// from its parent's children set. If recursive is false and p has
// children, the call fails with an Invariant error rather than silently
// deleting a subtree.
func (m *Manager) DeleteEntry(ctx context.Context, caller session.ID, p path.Path, recursive bool) error {
	key := p.Escaped()

	entry, err := m.locks.AcquireWriteLock(ctx, key, caller)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil // already gone
	}

	releaseHeld := true
	defer func() {
		if releaseHeld {
			if releaseErr := m.locks.ReleaseWriteLock(context.Background(), entry, caller); releaseErr != nil {
				m.logger.Warn("failed to release write lock after delete", "path", key, "error", releaseErr)
			}
		}
	}()

	if len(entry.Children) > 0 {
		if !recursive {
			return coorderr.NewInvariant(key, "entry has children; recursive delete not requested")
		}
		for _, child := range append([]string(nil), entry.Children...) {
			if err := m.DeleteEntry(ctx, caller, p.Child(child), recursive); err != nil {
				return err
			}
		}
		entry, err = m.backend.GetEntry(ctx, key)
		if coorderr.Is(err, coorderr.EntryNotFound) {
			releaseHeld = false
			return nil
		}
		if err != nil {
			return err
		}
	}

	if _, err := m.backend.DeleteEntry(ctx, key, entry); err != nil {
		return err
	}

	if parent, ok := p.Parent(); ok {
		if err := m.detachChild(ctx, parent, p.Name()); err != nil {
			m.logger.Warn("failed to detach deleted entry from parent", "parent", parent.Escaped(), "child", p.Name(), "error", err)
		}
	}

	m.cache.Forget(key)
	releaseHeld = false
	return nil
}

// detachChild removes name from parent's children set, retrying on a lost
// CAS race. It deliberately does not take the parent's local write mutex:
// a recursive delete may already hold it for an ancestor several levels up
// the same call stack, and the local mutex is not reentrant. The CAS retry
// loop is the only correctness requirement here: no global lock is
// acquired in this path, so local-before-global ordering doesn't apply.
func (m *Manager) detachChild(ctx context.Context, parent path.Path, name string) error {
	parentKey := parent.Escaped()

	for {
		current, err := m.backend.GetEntry(ctx, parentKey)
		if coorderr.Is(err, coorderr.EntryNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !containsString(current.Children, name) {
			return nil
		}

		desired := current.Clone()
		desired.Children = removeString(desired.Children, name)
		desired.StorageVersion = current.StorageVersion + 1

		updated, err := m.backend.CASEntry(ctx, desired, current)
		if err != nil {
			return err
		}
		if updated.StorageVersion != desired.StorageVersion {
			continue
		}
		return nil
	}
}

// ReapSession deletes every entry that id owned ephemerally, then clears
// each path from id's session record so an ended, empty session can be
// garbage collected. Intended to be driven by session.Manager's
// termination notifications; safe to call more than once for the same id,
// since DeleteEntry and the session store's RemoveEntry are both
// idempotent against a path that is already gone.
func (m *Manager) ReapSession(ctx context.Context, id session.ID) error {
	paths, err := m.sessions.GetEntries(ctx, id)
	if err != nil {
		return err
	}
	for _, escaped := range paths {
		if err := m.DeleteEntry(ctx, id, path.Parse(escaped), false); err != nil {
			m.logger.Warn("failed to delete ephemeral entry on session reap", "session", id.String(), "path", escaped, "error", err)
		}
		if err := m.sessions.RemoveEntry(ctx, id, escaped); err != nil {
			m.logger.Warn("failed to clear reaped entry from session record", "session", id.String(), "path", escaped, "error", err)
		}
	}
	return nil
}

func containsString(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

func removeString(ss []string, v string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
