package waitmgr

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/coordcore/pkg/exchange"
	"github.com/marmos91/coordcore/pkg/session"
	"github.com/marmos91/coordcore/pkg/store"
	"github.com/marmos91/coordcore/pkg/store/memory"
)

func notificationFor(path string) exchange.Notification {
	return exchange.Notification{Kind: exchange.WriteLockReleased, Path: path}
}

func newTestSetup(t *testing.T) (*Manager, *memory.Store, *session.Manager) {
	t.Helper()
	backend := memory.New()
	sessions := session.NewManager(backend, nil)
	return New(backend, sessions, nil), backend, sessions
}

func TestWaitForWriteLockReleaseReturnsImmediatelyWhenFree(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, backend, _ := newTestSetup(t)

	_, err := backend.CASEntry(ctx, &store.StoredEntry{Path: "/a", StorageVersion: 1}, nil)
	if err != nil {
		t.Fatalf("seed entry: %v", err)
	}

	entry, err := m.WaitForWriteLockRelease(ctx, "/a", session.None, false)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if entry.Path != "/a" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestWaitForWriteLockReleaseReturnsNilOnDeletedEntry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _, _ := newTestSetup(t)

	entry, err := m.WaitForWriteLockRelease(ctx, "/missing", session.None, false)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected nil for deleted entry, got %+v", entry)
	}
}

func TestWaitForWriteLockReleaseCleansUpDeadHolder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, backend, sessions := newTestSetup(t)

	holder := session.FromBytes([]byte("dead"))
	// Holder session never begun -> IsAlive is false, triggering cleanup.
	seed, err := backend.CASEntry(ctx, &store.StoredEntry{
		Path:           "/a",
		WriteLock:      holder,
		StorageVersion: 1,
	}, nil)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	_ = seed
	_ = sessions

	entry, err := m.WaitForWriteLockRelease(ctx, "/a", session.None, false)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !entry.WriteLock.IsNone() {
		t.Fatalf("expected write lock cleaned, got %+v", entry)
	}
}

func TestWaitForWriteLockReleaseUnblocksOnNotification(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, backend, sessions := newTestSetup(t)

	holder := session.FromBytes([]byte("holder"))
	if _, err := sessions.TryBegin(ctx, holder, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("try begin: %v", err)
	}
	entry, err := backend.CASEntry(ctx, &store.StoredEntry{
		Path:           "/a",
		WriteLock:      holder,
		StorageVersion: 1,
	}, nil)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	done := make(chan *store.StoredEntry, 1)
	go func() {
		got, err := m.WaitForWriteLockRelease(ctx, "/a", session.None, false)
		if err != nil {
			t.Error(err)
			return
		}
		done <- got
	}()

	time.Sleep(20 * time.Millisecond)

	released := entry.Clone()
	released.WriteLock = session.None
	released.StorageVersion = entry.StorageVersion + 1
	if _, err := backend.CASEntry(ctx, released, entry); err != nil {
		t.Fatalf("release: %v", err)
	}
	m.HandleNotification(notificationFor("/a"))

	select {
	case got := <-done:
		if !got.WriteLock.IsNone() {
			t.Fatalf("expected free write lock, got %+v", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("wait never unblocked")
	}
}
