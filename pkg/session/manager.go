// Package session implements leased liveness tracking: the authoritative
// record of which sessions are alive and which paths they own, with
// async waits for session termination.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/marmos91/coordcore/internal/waitdir"
	"github.com/marmos91/coordcore/pkg/coorderr"
	"github.com/marmos91/coordcore/pkg/store"
)

// Manager is the authoritative tracker of session liveness and ownership.
// It is backed by a store.SessionStore and runs a background sweep loop
// that discovers lease expiry even when no caller happens to touch the
// expired session.
type Manager struct {
	backend store.SessionStore
	logger  *slog.Logger
	waiters *waitdir.Directory

	mu      sync.Mutex
	known   map[string]time.Time // session key -> lease_end, for alive sessions only
	stop    chan struct{}
	stopped chan struct{}

	grace graceWindow
}

// NewManager creates a Manager over backend. Call Start to begin the
// background sweep loop.
func NewManager(backend store.SessionStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		backend: backend,
		logger:  logger,
		waiters: waitdir.New(),
		known:   make(map[string]time.Time),
	}
}

// Start begins the background sweep loop, using a stop/stopped channel
// pair to signal shutdown. Safe to call once; a second call is a no-op
// until Stop.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.stop != nil {
		m.mu.Unlock()
		return
	}
	m.stop = make(chan struct{})
	m.stopped = make(chan struct{})
	stop := m.stop
	stopped := m.stopped
	m.mu.Unlock()

	go m.sweepLoop(stop, stopped)
}

// Stop ends the background sweep loop and blocks until it exits.
func (m *Manager) Stop() {
	m.mu.Lock()
	stop := m.stop
	stopped := m.stopped
	m.stop = nil
	m.stopped = nil
	m.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-stopped
}

// TryBegin creates a fresh session record. It succeeds only if no record
// exists yet for id.
func (m *Manager) TryBegin(ctx context.Context, id ID, leaseEnd time.Time) (bool, error) {
	desired := &store.StoredSession{
		SessionID:      id,
		LeaseEnd:       leaseEnd,
		StorageVersion: 1,
	}
	result, err := m.backend.CASSession(ctx, desired, nil)
	if err != nil {
		return false, err
	}
	if result == nil {
		return false, nil
	}
	created := result.StorageVersion == 1 && result.LeaseEnd.Equal(leaseEnd) && !result.IsEnded
	if created {
		m.trackAlive(id, leaseEnd)
	}
	return created, nil
}

// Update renews id's lease. leaseEnd must not move backwards.
func (m *Manager) Update(ctx context.Context, id ID, leaseEnd time.Time) error {
	current, err := m.backend.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if !current.IsAlive(time.Now()) {
		return coorderr.NewSessionTerminated(id.String())
	}
	if leaseEnd.Before(current.LeaseEnd) {
		leaseEnd = current.LeaseEnd
	}

	desired := current.Clone()
	desired.LeaseEnd = leaseEnd
	desired.StorageVersion = current.StorageVersion + 1

	updated, err := m.backend.CASSession(ctx, desired, current)
	if err != nil {
		return err
	}
	if updated.StorageVersion != desired.StorageVersion {
		// Lost the race; caller may retry. Not a SessionTerminated error
		// unless the winner ended the session, which the next call will see.
		return coorderr.NewInvariant(id.String(), "lost cas race updating session lease")
	}
	m.trackAlive(id, leaseEnd)
	return nil
}

// End marks id as ended. The record is deleted immediately if it owns no
// entries; otherwise it is left as a tombstone until RemoveEntry clears the
// last path.
func (m *Manager) End(ctx context.Context, id ID) error {
	current, err := m.backend.GetSession(ctx, id)
	if coorderr.Is(err, coorderr.EntryNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if current.IsEnded {
		m.forget(id)
		return nil
	}

	desired := current.Clone()
	desired.IsEnded = true
	desired.StorageVersion = current.StorageVersion + 1

	if len(desired.EntryPaths) == 0 {
		if _, err := m.backend.DeleteSession(ctx, id, current); err != nil {
			return err
		}
		m.forget(id)
		m.waiters.Notify(id.Key())
		return nil
	}

	if _, err := m.backend.CASSession(ctx, desired, current); err != nil {
		return err
	}
	m.forget(id)
	m.waiters.Notify(id.Key())
	return nil
}

// IsAlive reports whether id currently has a non-ended, non-expired record.
func (m *Manager) IsAlive(ctx context.Context, id ID) (bool, error) {
	rec, err := m.backend.GetSession(ctx, id)
	if coorderr.Is(err, coorderr.EntryNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.IsAlive(time.Now()), nil
}

// AddEntry records that id owns a lock or ephemeral entry at path.
func (m *Manager) AddEntry(ctx context.Context, id ID, path string) error {
	for {
		current, err := m.backend.GetSession(ctx, id)
		if err != nil {
			return err
		}
		if !current.IsAlive(time.Now()) {
			return coorderr.NewSessionTerminated(id.String())
		}
		if current.HasEntry(path) {
			return nil
		}

		desired := current.WithEntry(path)
		desired.StorageVersion = current.StorageVersion + 1

		updated, err := m.backend.CASSession(ctx, desired, current)
		if err != nil {
			return err
		}
		if updated.StorageVersion == desired.StorageVersion {
			return nil
		}
		// lost race, retry with fresh state
	}
}

// RemoveEntry removes path from id's owned set. If id is ended and this was
// its last path, the record is deleted.
func (m *Manager) RemoveEntry(ctx context.Context, id ID, path string) error {
	for {
		current, err := m.backend.GetSession(ctx, id)
		if coorderr.Is(err, coorderr.EntryNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !current.HasEntry(path) {
			return nil
		}

		desired := current.WithoutEntry(path)
		desired.StorageVersion = current.StorageVersion + 1

		if current.IsEnded && len(desired.EntryPaths) == 0 {
			if _, err := m.backend.DeleteSession(ctx, id, current); err != nil {
				return err
			}
			return nil
		}

		updated, err := m.backend.CASSession(ctx, desired, current)
		if err != nil {
			return err
		}
		if updated.StorageVersion == desired.StorageVersion {
			return nil
		}
		// lost race, retry with fresh state
	}
}

// GetEntries returns the set of paths id currently owns.
func (m *Manager) GetEntries(ctx context.Context, id ID) ([]string, error) {
	rec, err := m.backend.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.EntryPaths, nil
}

// ListSessions returns every currently alive session id.
func (m *Manager) ListSessions(ctx context.Context) ([]ID, error) {
	all, err := m.backend.ScanSessions(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	out := make([]ID, 0, len(all))
	for _, rec := range all {
		if rec.IsAlive(now) {
			out = append(out, rec.SessionID)
		}
	}
	return out, nil
}

// WaitForTermination blocks until id becomes not-alive, or ctx is
// cancelled. It returns immediately if id is already not-alive or unknown.
func (m *Manager) WaitForTermination(ctx context.Context, id ID) error {
	alive, err := m.IsAlive(ctx, id)
	if err != nil {
		return err
	}
	if !alive {
		return nil
	}

	ch := m.waiters.Register(id.Key())
	defer m.waiters.Cancel(id.Key(), ch)

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return coorderr.NewCancelled(id.String())
	}
}

// WaitForAnyTermination blocks until any currently-known alive session
// becomes not-alive, returning that session's id.
func (m *Manager) WaitForAnyTermination(ctx context.Context) (ID, error) {
	ids, err := m.ListSessions(ctx)
	if err != nil {
		return None, err
	}

	type result struct {
		id  ID
		err error
	}
	resultCh := make(chan result, len(ids))
	innerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, id := range ids {
		go func(id ID) {
			err := m.WaitForTermination(innerCtx, id)
			resultCh <- result{id: id, err: err}
		}(id)
	}

	if len(ids) == 0 {
		<-ctx.Done()
		return None, coorderr.NewCancelled("")
	}

	r := <-resultCh
	return r.id, r.err
}

func (m *Manager) trackAlive(id ID, leaseEnd time.Time) {
	m.mu.Lock()
	m.known[id.Key()] = leaseEnd
	m.mu.Unlock()
}

func (m *Manager) forget(id ID) {
	m.mu.Lock()
	delete(m.known, id.Key())
	m.mu.Unlock()
}

// sweepLoop resets a single timer to the earliest known lease_end, a
// "one timer, reset to next deadline" idiom that avoids polling every
// tracked session on each tick.
func (m *Manager) sweepLoop(stop, stopped chan struct{}) {
	defer close(stopped)

	timer := time.NewTimer(m.nextDeadline())
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.C:
			m.sweepOnce()
			timer.Reset(m.nextDeadline())
		}
	}
}

func (m *Manager) nextDeadline() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.known) == 0 {
		return time.Second
	}

	earliest := time.Time{}
	for _, leaseEnd := range m.known {
		if earliest.IsZero() || leaseEnd.Before(earliest) {
			earliest = leaseEnd
		}
	}

	d := time.Until(earliest)
	if d < 0 {
		d = 0
	}
	return d
}

func (m *Manager) sweepOnce() {
	ctx := context.Background()
	now := time.Now()

	m.mu.Lock()
	keys := make([]string, 0, len(m.known))
	for k, leaseEnd := range m.known {
		if !leaseEnd.After(now) {
			keys = append(keys, k)
		}
	}
	m.mu.Unlock()

	for _, key := range keys {
		id := ID{bytes: key}
		alive, err := m.IsAlive(ctx, id)
		if err != nil {
			m.logger.Warn("session sweep failed to check liveness", "session", id.String(), "error", err)
			continue
		}
		if !alive {
			m.forget(id)
			m.waiters.Notify(id.Key())
		}
	}
}
