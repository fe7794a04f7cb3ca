package session

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/coordcore/pkg/coorderr"
	"github.com/marmos91/coordcore/pkg/store"
)

// GraceState is the state of a Manager's post-restart reclaim window. A
// session's "reclaim" is proving it already owned its entry_paths before
// the restart, so it can resume without losing its ephemeral entries and
// locks to the normal try_begin path.
type GraceState int

const (
	// GraceNormal is the default state: try_begin behaves normally, no
	// reclaim window is open.
	GraceNormal GraceState = iota
	// GraceActive means ReclaimSession is open for the expected set of
	// session ids, so one of them can resume without a fresh try_begin.
	// Other Manager calls, TryBegin included, do not check the window.
	GraceActive
)

func (s GraceState) String() string {
	if s == GraceActive {
		return "active"
	}
	return "normal"
}

type graceWindow struct {
	mu sync.Mutex

	state    GraceState
	graceEnd time.Time
	duration time.Duration

	expected  map[string]bool
	reclaimed map[string]bool

	timer      *time.Timer
	onGraceEnd func()
}

// EnterGracePeriod opens a reclaim window of duration for expected, the set
// of session ids known (from persisted entries) to have owned locks before
// this process started. While active, ReclaimSession succeeds for any id in
// expected even though no live session record exists yet for it. The window
// closes when duration elapses, when every expected id has reclaimed, or
// when ExitGracePeriod is called explicitly.
func (m *Manager) EnterGracePeriod(expected []ID, duration time.Duration) {
	m.grace.mu.Lock()
	defer m.grace.mu.Unlock()

	if m.grace.state == GraceActive {
		return
	}

	m.grace.state = GraceActive
	m.grace.duration = duration
	m.grace.graceEnd = time.Now().Add(duration)
	m.grace.expected = make(map[string]bool, len(expected))
	for _, id := range expected {
		m.grace.expected[id.Key()] = true
	}
	m.grace.reclaimed = make(map[string]bool)

	m.logger.Info("entering session grace period", "duration", duration, "expected_sessions", len(expected))

	if m.grace.timer != nil {
		m.grace.timer.Stop()
	}
	m.grace.timer = time.AfterFunc(duration, m.exitGracePeriodInternal)
}

// ExitGracePeriod ends the reclaim window immediately. Safe to call when no
// window is open.
func (m *Manager) ExitGracePeriod() {
	m.grace.mu.Lock()
	if m.grace.state == GraceNormal {
		m.grace.mu.Unlock()
		return
	}
	if m.grace.timer != nil {
		m.grace.timer.Stop()
		m.grace.timer = nil
	}
	m.grace.state = GraceNormal
	m.grace.mu.Unlock()

	m.logger.Info("session grace period ended")
}

func (m *Manager) exitGracePeriodInternal() {
	m.grace.mu.Lock()
	if m.grace.state == GraceNormal {
		m.grace.mu.Unlock()
		return
	}
	reclaimed, expected := len(m.grace.reclaimed), len(m.grace.expected)
	m.grace.state = GraceNormal
	m.grace.timer = nil
	m.grace.mu.Unlock()

	m.logger.Info("session grace period ended", "reclaimed_sessions", reclaimed, "expected_sessions", expected)
}

// InGracePeriod reports whether a reclaim window is currently open.
func (m *Manager) InGracePeriod() bool {
	m.grace.mu.Lock()
	defer m.grace.mu.Unlock()
	return m.grace.state == GraceActive
}

// ReclaimSession resumes id with a fresh lease, bypassing try_begin's
// "must not already exist" restriction, but only while id is in the open
// grace window's expected set. Once every expected id has reclaimed (or
// been given up on), the window closes early.
func (m *Manager) ReclaimSession(ctx context.Context, id ID, leaseEnd time.Time) error {
	m.grace.mu.Lock()
	if m.grace.state != GraceActive || !m.grace.expected[id.Key()] {
		m.grace.mu.Unlock()
		return coorderr.NewInvariant(id.String(), "no open grace window for this session")
	}
	m.grace.mu.Unlock()

	existing, err := m.backend.GetSession(ctx, id)
	if coorderr.Is(err, coorderr.EntryNotFound) {
		desired := &store.StoredSession{SessionID: id, LeaseEnd: leaseEnd, StorageVersion: 1}
		if _, err := m.backend.CASSession(ctx, desired, nil); err != nil {
			return err
		}
	} else if err != nil {
		return err
	} else {
		desired := existing.Clone()
		desired.LeaseEnd = leaseEnd
		desired.IsEnded = false
		desired.StorageVersion = existing.StorageVersion + 1
		if _, err := m.backend.CASSession(ctx, desired, existing); err != nil {
			return err
		}
	}
	m.trackAlive(id, leaseEnd)

	m.grace.mu.Lock()
	m.grace.reclaimed[id.Key()] = true
	allReclaimed := len(m.grace.reclaimed) >= len(m.grace.expected)
	m.grace.mu.Unlock()

	if allReclaimed {
		m.exitGracePeriodInternal()
	}
	return nil
}
