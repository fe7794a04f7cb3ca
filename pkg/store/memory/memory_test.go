package memory

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/coordcore/pkg/session"
	"github.com/marmos91/coordcore/pkg/store"
)

func TestCASEntry_CreateThenLostRace(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()

	desired := &store.StoredEntry{Path: "/a", StorageVersion: 1}
	got, err := s.CASEntry(ctx, desired, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got.StorageVersion != 1 {
		t.Fatalf("got version %d, want 1", got.StorageVersion)
	}

	// A second create with expected=nil should lose the race and return the
	// current record.
	again, err := s.CASEntry(ctx, &store.StoredEntry{Path: "/a", StorageVersion: 9}, nil)
	if err != nil {
		t.Fatalf("lost race: %v", err)
	}
	if again.StorageVersion != 1 {
		t.Fatalf("expected lost race to return current version 1, got %d", again.StorageVersion)
	}
}

func TestCASEntry_UpdateChain(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()

	v1, _ := s.CASEntry(ctx, &store.StoredEntry{Path: "/a", StorageVersion: 1}, nil)

	v2 := v1.Clone()
	v2.StorageVersion = 2
	v2.Value = []byte("hello")

	updated, err := s.CASEntry(ctx, v2, v1)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.StorageVersion != 2 || string(updated.Value) != "hello" {
		t.Fatalf("unexpected updated record: %+v", updated)
	}

	// Using the stale v1 as expected again must lose the race.
	stale, err := s.CASEntry(ctx, &store.StoredEntry{Path: "/a", StorageVersion: 3}, v1)
	if err != nil {
		t.Fatalf("stale cas: %v", err)
	}
	if stale.StorageVersion != 2 {
		t.Fatalf("expected lost race to surface version 2, got %d", stale.StorageVersion)
	}
}

func TestDeleteEntry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()

	entry, _ := s.CASEntry(ctx, &store.StoredEntry{Path: "/a", StorageVersion: 1}, nil)

	ok, err := s.DeleteEntry(ctx, "/a", &store.StoredEntry{Path: "/a", StorageVersion: 2})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok {
		t.Fatal("delete with stale expected should report false, not delete")
	}

	ok, err = s.DeleteEntry(ctx, "/a", entry)
	if err != nil || !ok {
		t.Fatalf("delete with correct expected failed: ok=%v err=%v", ok, err)
	}

	if _, err := s.GetEntry(ctx, "/a"); err == nil {
		t.Fatal("expected entry to be gone")
	}
}

func TestSessionCASAndScan(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	id := session.FromBytes([]byte("sess-1"))

	rec := &store.StoredSession{SessionID: id, LeaseEnd: time.Now().Add(time.Minute), StorageVersion: 1}
	if _, err := s.CASSession(ctx, rec, nil); err != nil {
		t.Fatalf("create session: %v", err)
	}

	all, err := s.ScanSessions(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("scan = %v, %v", all, err)
	}

	ok, err := s.DeleteSession(ctx, id, rec)
	if err != nil || !ok {
		t.Fatalf("delete session: ok=%v err=%v", ok, err)
	}
}
