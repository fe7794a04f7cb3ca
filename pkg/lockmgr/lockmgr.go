// Package lockmgr implements the two-level lock manager: a local binary
// write mutex and local read semaphore per path backing a
// global write/read lock recorded in storage, with the storage-version CAS
// loop doing the actual arbitration across processes.
package lockmgr

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/marmos91/coordcore/internal/metrics"
	"github.com/marmos91/coordcore/internal/waitmgr"
	"github.com/marmos91/coordcore/pkg/cache"
	"github.com/marmos91/coordcore/pkg/coorderr"
	"github.com/marmos91/coordcore/pkg/exchange"
	"github.com/marmos91/coordcore/pkg/session"
	"github.com/marmos91/coordcore/pkg/store"
)

// stuckWaiterThreshold bounds how long a single acquire call's CAS loop may
// spin (lost races plus re-waits) before it's logged as suspicious. This is
// not a deadlock detector — path-scoped locks can't deadlock across paths
// — it only flags a caller that keeps losing the race or keeps re-reading
// a path that never seems to settle.
const stuckWaiterThreshold = 10 * time.Second

// Manager is the lock manager. It owns no storage of its own beyond the
// process-local cache; global lock state is entirely in the backend.
type Manager struct {
	backend   store.EntryStore
	cache     *cache.Cache
	waits     *waitmgr.Manager
	transport exchange.Transport
	metrics   *metrics.Metrics
	logger    *slog.Logger

	heldWriteLocks atomic.Int64
	heldReadLocks  atomic.Int64
}

// New creates a Manager. transport may be nil (no cross-process broadcast,
// e.g. single-process embedded use); m may be nil (no metrics).
func New(backend store.EntryStore, c *cache.Cache, waits *waitmgr.Manager, transport exchange.Transport, m *metrics.Metrics, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		backend:   backend,
		cache:     c,
		waits:     waits,
		transport: transport,
		metrics:   m,
		logger:    logger,
	}
}

// Stats is a point-in-time snapshot of this manager's lock accounting,
// read through Snapshot. Neither coordd's metrics endpoint nor coordctl
// status reports it.
type Stats struct {
	HeldWriteLocks int64
	HeldReadLocks  int64
	WaitersBlocked int64
	StaleCleanups  int64
}

// Snapshot returns the current Stats.
func (m *Manager) Snapshot() Stats {
	return Stats{
		HeldWriteLocks: m.heldWriteLocks.Load(),
		HeldReadLocks:  m.heldReadLocks.Load(),
		WaitersBlocked: m.waits.Blocked(),
		StaleCleanups:  m.waits.StaleCleanups(),
	}
}

// AcquireLocalWriteLock takes path's local write mutex, reporting whether
// it was acquired without blocking.
func (m *Manager) AcquireLocalWriteLock(path string) bool {
	entry := m.cache.GetEntry(path)
	if entry.WriteMu.TryLock() {
		return true
	}
	entry.WriteMu.Lock()
	return false
}

// ReleaseLocalWriteLock releases path's local write mutex.
func (m *Manager) ReleaseLocalWriteLock(path string) {
	m.cache.GetEntry(path).WriteMu.Unlock()
}

// AcquireLocalReadLock takes path's local read semaphore, reporting whether
// it was acquired without blocking.
func (m *Manager) AcquireLocalReadLock(path string) bool {
	entry := m.cache.GetEntry(path)
	if entry.ReadSem.TryLock() {
		return true
	}
	entry.ReadSem.Lock()
	return false
}

// ReleaseLocalReadLock releases path's local read semaphore.
func (m *Manager) ReleaseLocalReadLock(path string) {
	m.cache.GetEntry(path).ReadSem.Unlock()
}

// AcquireWriteLock runs the global write-lock CAS loop. It
// takes the local write mutex first and keeps it held until
// ReleaseWriteLock (or until an error or a nil result releases it); the
// CAS loop starts from the entry as read from storage, not from the cache.
// Returns (nil, nil) if the entry was concurrently deleted.
func (m *Manager) AcquireWriteLock(ctx context.Context, path string, caller session.ID) (*store.StoredEntry, error) {
	local := m.cache.GetEntry(path)
	local.WriteMu.Lock()

	waitStart := time.Now()
	defer func() { m.metrics.ObserveWaitDuration(metrics.KindWrite, time.Since(waitStart)) }()

	result, err := m.runWriteLockCAS(ctx, path, caller)
	if err != nil {
		local.WriteMu.Unlock()
		return nil, err
	}
	if result == nil {
		local.WriteMu.Unlock()
		return nil, nil
	}

	// Holder now. Drain concurrent readers before returning.
	drained, err := m.waits.WaitForReadLocksRelease(ctx, path, caller)
	if err != nil {
		// Best-effort release of the global lock we just took.
		// "on any exception after acquiring the global lock, release it
		// before propagating".
		_ = m.releaseWriteLockBestEffort(context.Background(), result, caller)
		local.WriteMu.Unlock()
		return nil, err
	}
	if drained == nil {
		// Entry deleted while draining readers; nothing left to hold.
		local.WriteMu.Unlock()
		return nil, nil
	}

	m.metrics.ObserveLockAcquire(metrics.KindWrite, metrics.StatusGranted)
	m.heldWriteLocks.Add(1)
	m.metrics.SetActiveLocks(metrics.KindWrite, float64(m.heldWriteLocks.Load()))
	return drained, nil
}

// runWriteLockCAS implements the loop described by "Global write-lock
// CAS loop": wait for the write lock to free, then try to claim it,
// retrying on a lost race.
func (m *Manager) runWriteLockCAS(ctx context.Context, path string, caller session.ID) (*store.StoredEntry, error) {
	waitStart := time.Now()
	for {
		if time.Since(waitStart) > stuckWaiterThreshold {
			m.logger.Warn("write lock acquisition stuck", "path", path, "session", caller.String(), "waited", time.Since(waitStart))
		}

		current, err := m.waits.WaitForWriteLockRelease(ctx, path, caller, false)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, nil
		}

		desired := current.Clone()
		desired.WriteLock = caller
		desired.StorageVersion = current.StorageVersion + 1

		updated, err := m.backend.CASEntry(ctx, desired, current)
		if err != nil {
			return nil, err
		}
		if updated.StorageVersion != desired.StorageVersion {
			continue // lost the race; loop re-reads via WaitForWriteLockRelease
		}
		return desired, nil
	}
}

// ReleaseWriteLock runs the global write-lock release algorithm, then
// releases the local write mutex. entry must be the record
// last returned by AcquireWriteLock for the same path and caller.
//
// Never fails on a user-visible error: a lock already gone (e.g. cleaned
// up as stale) is treated as success, since release is idempotent.
// Session-termination errors propagate to the caller; other storage
// failures propagate too, and the caller (typically the session owner) is
// responsible for treating them as fatal to the session.
func (m *Manager) ReleaseWriteLock(ctx context.Context, entry *store.StoredEntry, caller session.ID) error {
	path := entry.Path
	local := m.cache.GetEntry(path)
	defer local.WriteMu.Unlock()

	if err := m.releaseWriteLockBestEffort(ctx, entry, caller); err != nil {
		return err
	}
	m.heldWriteLocks.Add(-1)
	m.metrics.SetActiveLocks(metrics.KindWrite, float64(m.heldWriteLocks.Load()))
	return nil
}

func (m *Manager) releaseWriteLockBestEffort(ctx context.Context, entry *store.StoredEntry, caller session.ID) error {
	path := entry.Path
	local := m.cache.GetEntry(path)
	start := entry

	for {
		if start == nil {
			m.broadcast(ctx, exchange.WriteLockReleased, path)
			m.cache.Invalidate(path)
			m.metrics.ObserveLockRelease(metrics.KindWrite, metrics.ReasonExplicit)
			return nil
		}
		if !start.WriteLock.Equal(caller) {
			return nil // idempotent: already released, e.g. by stale-lock cleanup
		}

		_, snapVersion := local.Snapshot()
		desired := start.Clone()
		desired.WriteLock = session.None
		desired.StorageVersion = start.StorageVersion + 1

		updated, err := m.backend.CASEntry(ctx, desired, start)
		if err != nil {
			return err
		}
		if updated.StorageVersion != desired.StorageVersion {
			fresh, err := m.backend.GetEntry(ctx, path)
			if coorderr.Is(err, coorderr.EntryNotFound) {
				start = nil
				continue
			}
			if err != nil {
				return err
			}
			start = fresh
			continue
		}

		if desired.HasReadLock(caller) {
			local.Update(snapVersion, desired)
		} else {
			local.Invalidate()
		}
		break
	}

	m.broadcast(ctx, exchange.WriteLockReleased, path)
	m.metrics.ObserveLockRelease(metrics.KindWrite, metrics.ReasonExplicit)
	return nil
}

// AcquireReadLock runs the global read-lock CAS loop: takes the
// local read semaphore for the lifetime of the read lock, and briefly takes
// the local write mutex just to mutate read_locks. Returns (nil, nil) if
// the entry was concurrently deleted.
func (m *Manager) AcquireReadLock(ctx context.Context, path string, caller session.ID) (result *store.StoredEntry, err error) {
	local := m.cache.GetEntry(path)
	local.ReadSem.Lock()
	defer func() {
		if err != nil || result == nil {
			local.ReadSem.Unlock()
		}
	}()

	local.WriteMu.Lock()
	defer local.WriteMu.Unlock()

	start := time.Now()
	defer func() { m.metrics.ObserveWaitDuration(metrics.KindRead, time.Since(start)) }()

	waitStart := time.Now()
	for {
		if time.Since(waitStart) > stuckWaiterThreshold {
			m.logger.Warn("read lock acquisition stuck", "path", path, "session", caller.String(), "waited", time.Since(waitStart))
		}

		// Own write lock is compatible with taking a read lock.
		current, werr := m.waits.WaitForWriteLockRelease(ctx, path, caller, true)
		if werr != nil {
			return nil, werr
		}
		if current == nil {
			return nil, nil
		}

		desired := current.Clone()
		if !desired.HasReadLock(caller) {
			desired.ReadLocks = append(desired.ReadLocks, caller)
		}
		desired.StorageVersion = current.StorageVersion + 1

		updated, cerr := m.backend.CASEntry(ctx, desired, current)
		if cerr != nil {
			return nil, cerr
		}
		if updated.StorageVersion != desired.StorageVersion {
			continue
		}

		m.metrics.ObserveLockAcquire(metrics.KindRead, metrics.StatusGranted)
		m.heldReadLocks.Add(1)
		m.metrics.SetActiveLocks(metrics.KindRead, float64(m.heldReadLocks.Load()))
		return desired, nil
	}
}

// ReleaseReadLock removes caller from entry.ReadLocks and, once committed,
// releases both the local write mutex (briefly taken) and the local read
// semaphore held since acquisition.
func (m *Manager) ReleaseReadLock(ctx context.Context, entry *store.StoredEntry, caller session.ID) (*store.StoredEntry, error) {
	path := entry.Path
	local := m.cache.GetEntry(path)
	defer local.ReadSem.Unlock()

	local.WriteMu.Lock()
	defer local.WriteMu.Unlock()

	start := entry
	for {
		if start == nil {
			m.broadcast(ctx, exchange.ReadLockReleased, path)
			m.cache.Invalidate(path)
			m.metrics.ObserveLockRelease(metrics.KindRead, metrics.ReasonExplicit)
			m.heldReadLocks.Add(-1)
			m.metrics.SetActiveLocks(metrics.KindRead, float64(m.heldReadLocks.Load()))
			return nil, nil
		}
		if !start.HasReadLock(caller) {
			return start, nil // idempotent
		}

		_, snapVersion := local.Snapshot()
		desired := start.WithoutReadLock(caller)
		desired.StorageVersion = start.StorageVersion + 1

		updated, err := m.backend.CASEntry(ctx, desired, start)
		if err != nil {
			return nil, err
		}
		if updated.StorageVersion != desired.StorageVersion {
			fresh, err := m.backend.GetEntry(ctx, path)
			if coorderr.Is(err, coorderr.EntryNotFound) {
				start = nil
				continue
			}
			if err != nil {
				return nil, err
			}
			start = fresh
			continue
		}

		local.Update(snapVersion, desired)
		m.broadcast(ctx, exchange.ReadLockReleased, path)
		m.metrics.ObserveLockRelease(metrics.KindRead, metrics.ReasonExplicit)
		m.heldReadLocks.Add(-1)
		m.metrics.SetActiveLocks(metrics.KindRead, float64(m.heldReadLocks.Load()))
		return desired, nil
	}
}

// broadcast notifies local waiters immediately and, if a transport is
// attached, fans the release out to peers. Transport failures are logged
// and otherwise ignored: notification is best-effort by design, and
// waiters always have the poll-interval backstop.
func (m *Manager) broadcast(ctx context.Context, kind exchange.Kind, path string) {
	m.waits.HandleNotification(exchange.Notification{Kind: kind, Path: path})

	if m.transport == nil {
		return
	}
	var err error
	switch kind {
	case exchange.WriteLockReleased:
		err = m.transport.NotifyWriteLockReleased(ctx, path)
	case exchange.ReadLockReleased:
		err = m.transport.NotifyReadLockReleased(ctx, path)
	}
	if err != nil {
		m.logger.Warn("failed to broadcast lock release", "path", path, "kind", kind.String(), "error", err)
	}
}
