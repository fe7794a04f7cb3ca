// Package waitmgr implements "wait until lock free", combining the
// lock-wait directory, exchange notifications, and session-termination
// detection so that a waiter never blocks past a holder's lease expiry,
// even if no release notification ever arrives.
package waitmgr

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/marmos91/coordcore/internal/waitdir"
	"github.com/marmos91/coordcore/pkg/coorderr"
	"github.com/marmos91/coordcore/pkg/exchange"
	"github.com/marmos91/coordcore/pkg/session"
	"github.com/marmos91/coordcore/pkg/store"
)

// pollInterval bounds how long a waiter can block without any exchange
// notification or termination signal before re-reading storage itself.
// This is the livelock backstop: correctness never depends on a
// notification arriving, only latency does.
const pollInterval = 2 * time.Second

// CacheInvalidator is called when a release notification (local or
// cross-process) means a cached snapshot for path is no longer trustworthy.
type CacheInvalidator func(path string)

// Manager resolves write/read lock waits over a store.EntryStore, using a
// session.Manager to determine holder liveness and an exchange.Transport
// (optional) to learn about releases observed by peers.
type Manager struct {
	backend  store.EntryStore
	sessions *session.Manager
	logger   *slog.Logger

	writeDir *waitdir.Directory
	readDir  *waitdir.Directory

	invalidate CacheInvalidator

	blocked       atomic.Int64
	staleCleanups atomic.Int64
}

// New creates a Manager. Call AttachTransport to wire in cross-process
// notifications, and SetCacheInvalidator to wire in cache coherence.
func New(backend store.EntryStore, sessions *session.Manager, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		backend:  backend,
		sessions: sessions,
		logger:   logger,
		writeDir: waitdir.New(),
		readDir:  waitdir.New(),
	}
}

// SetCacheInvalidator registers the callback driven by incoming
// notifications, local or remote.
func (m *Manager) SetCacheInvalidator(fn CacheInvalidator) {
	m.invalidate = fn
}

// AttachTransport subscribes to t so peer-observed releases drive this
// manager's wait directories and cache invalidation.
func (m *Manager) AttachTransport(t exchange.Transport) {
	t.Subscribe(m.HandleNotification)
}

// HandleNotification processes a release notification, whether it
// originated locally (lockmgr calls it on each release) or was delivered
// by a transport.
func (m *Manager) HandleNotification(n exchange.Notification) {
	if m.invalidate != nil {
		m.invalidate(n.Path)
	}
	switch n.Kind {
	case exchange.WriteLockReleased:
		m.writeDir.Notify(n.Path)
	case exchange.ReadLockReleased:
		m.readDir.Notify(n.Path)
	}
}

// WaitForWriteLockRelease loops: read the fresh entry, return it once its
// write lock is free (or held by the calling session when allowWriteLock),
// cleaning up after dead holders and otherwise waiting on a release signal
// bounded by pollInterval. Returns (nil, nil) if the entry was concurrently
// deleted.
func (m *Manager) WaitForWriteLockRelease(ctx context.Context, path string, caller session.ID, allowWriteLock bool) (*store.StoredEntry, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, coorderr.NewCancelled(path)
		}

		entry, err := m.backend.GetEntry(ctx, path)
		if coorderr.Is(err, coorderr.EntryNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		if entry.WriteLock.IsNone() || (allowWriteLock && entry.WriteLock.Equal(caller)) {
			return entry, nil
		}

		holder := entry.WriteLock
		alive, err := m.sessions.IsAlive(ctx, holder)
		if err != nil {
			return nil, err
		}
		if !alive {
			if err := m.cleanupWriteLock(ctx, entry, holder); err != nil {
				return nil, err
			}
			continue
		}

		if err := m.awaitRelease(ctx, m.writeDir, path, holder); err != nil {
			return nil, err
		}
	}
}

// WaitForReadLocksRelease loops until every read-lock holder other than
// caller has released. Returns (nil, nil) if the entry was concurrently
// deleted.
func (m *Manager) WaitForReadLocksRelease(ctx context.Context, path string, caller session.ID) (*store.StoredEntry, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, coorderr.NewCancelled(path)
		}

		entry, err := m.backend.GetEntry(ctx, path)
		if coorderr.Is(err, coorderr.EntryNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		holder, ok := firstBlockingReader(entry, caller)
		if !ok {
			return entry, nil
		}

		alive, err := m.sessions.IsAlive(ctx, holder)
		if err != nil {
			return nil, err
		}
		if !alive {
			if err := m.cleanupReadLock(ctx, entry, holder); err != nil {
				return nil, err
			}
			continue
		}

		if err := m.awaitRelease(ctx, m.readDir, path, holder); err != nil {
			return nil, err
		}
	}
}

// Blocked reports how many callers are currently blocked inside
// awaitRelease, across both the write-lock and read-lock directories.
func (m *Manager) Blocked() int64 {
	return m.blocked.Load()
}

// StaleCleanups reports how many dead-holder locks this manager has
// cleaned up so far.
func (m *Manager) StaleCleanups() int64 {
	return m.staleCleanups.Load()
}

func firstBlockingReader(entry *store.StoredEntry, caller session.ID) (session.ID, bool) {
	for _, r := range entry.ReadLocks {
		if !r.Equal(caller) {
			return r, true
		}
	}
	return session.None, false
}

// awaitRelease blocks until the path's wait directory fires, the holder's
// session terminates, the poll interval elapses, or ctx is cancelled —
// whichever comes first. It never returns an error purely because the
// holder is still live; it's a bounded wait, not a verdict.
func (m *Manager) awaitRelease(ctx context.Context, dir *waitdir.Directory, path string, holder session.ID) error {
	notifyCh := dir.Register(path)
	defer dir.Cancel(path, notifyCh)

	m.blocked.Add(1)
	defer m.blocked.Add(-1)

	termCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	termCh := make(chan struct{})
	go func() {
		defer close(termCh)
		_ = m.sessions.WaitForTermination(termCtx, holder)
	}()

	timer := time.NewTimer(pollInterval)
	defer timer.Stop()

	select {
	case <-notifyCh:
	case <-termCh:
	case <-timer.C:
	case <-ctx.Done():
		return coorderr.NewCancelled(path)
	}
	return nil
}

// cleanupWriteLock clears a dead holder's write lock. Idempotent and safe
// across racing observers: a CAS loss just means someone else already
// cleaned it up.
func (m *Manager) cleanupWriteLock(ctx context.Context, entry *store.StoredEntry, holder session.ID) error {
	if !entry.WriteLock.Equal(holder) {
		return nil
	}
	desired := entry.Clone()
	desired.WriteLock = session.None
	desired.StorageVersion = entry.StorageVersion + 1

	updated, err := m.backend.CASEntry(ctx, desired, entry)
	if err != nil {
		return err
	}
	if updated != nil && updated.StorageVersion == desired.StorageVersion {
		m.staleCleanups.Add(1)
		m.logger.Info("cleaned stale write lock", "path", entry.Path, "holder", holder.String())
	}
	return nil
}

// cleanupReadLock removes a dead holder from read_locks.
func (m *Manager) cleanupReadLock(ctx context.Context, entry *store.StoredEntry, holder session.ID) error {
	if !entry.HasReadLock(holder) {
		return nil
	}
	desired := entry.WithoutReadLock(holder)
	desired.StorageVersion = entry.StorageVersion + 1

	updated, err := m.backend.CASEntry(ctx, desired, entry)
	if err != nil {
		return err
	}
	if updated != nil && updated.StorageVersion == desired.StorageVersion {
		m.staleCleanups.Add(1)
		m.logger.Info("cleaned stale read lock", "path", entry.Path, "holder", holder.String())
	}
	return nil
}
