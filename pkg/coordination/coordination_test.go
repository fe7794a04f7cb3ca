package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/coordcore/internal/waitmgr"
	"github.com/marmos91/coordcore/pkg/cache"
	"github.com/marmos91/coordcore/pkg/coorderr"
	"github.com/marmos91/coordcore/pkg/lockmgr"
	"github.com/marmos91/coordcore/pkg/path"
	"github.com/marmos91/coordcore/pkg/session"
	"github.com/marmos91/coordcore/pkg/store"
	"github.com/marmos91/coordcore/pkg/store/memory"
)

func newTestCoordination(t *testing.T) (*Manager, session.ID) {
	t.Helper()
	backend := memory.New()
	sessions := session.NewManager(backend, nil)
	waits := waitmgr.New(backend, sessions, nil)
	locks := lockmgr.New(backend, cache.New(), waits, nil, nil, nil)
	m := New(backend, cache.New(), locks, sessions, 0, nil)

	caller := session.FromBytes([]byte("caller"))
	ok, err := sessions.TryBegin(context.Background(), caller, time.Now().Add(time.Minute))
	if err != nil || !ok {
		t.Fatalf("begin session: ok=%v err=%v", ok, err)
	}

	// Seed the root so children can be created under it.
	if _, err := backend.CASEntry(context.Background(), &store.StoredEntry{
		Path:           path.Root.Escaped(),
		StorageVersion: 1,
	}, nil); err != nil {
		t.Fatalf("seed root: %v", err)
	}

	return m, caller
}

func TestCreateGetDeleteRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, caller := newTestCoordination(t)
	p := path.New("a")

	if _, err := m.CreateEntry(ctx, caller, p, []byte("v1"), session.None); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := m.GetEntry(ctx, p)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Value) != "v1" {
		t.Fatalf("expected value v1, got %q", got.Value)
	}

	if err := m.DeleteEntry(ctx, caller, p, false); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := m.GetEntry(ctx, p); !coorderr.Is(err, coorderr.EntryNotFound) {
		t.Fatalf("expected EntryNotFound after delete, got %v", err)
	}
}

func TestCreateEntryRegistersAsParentChild(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, caller := newTestCoordination(t)
	p := path.New("a")

	if _, err := m.CreateEntry(ctx, caller, p, nil, session.None); err != nil {
		t.Fatalf("create: %v", err)
	}

	children, err := m.GetChildren(ctx, path.Root)
	if err != nil {
		t.Fatalf("get children: %v", err)
	}
	if len(children) != 1 || children[0] != "a" {
		t.Fatalf("expected root to have child \"a\", got %v", children)
	}
}

func TestSetValueUpdatesStorageVersion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, caller := newTestCoordination(t)
	p := path.New("a")

	created, err := m.CreateEntry(ctx, caller, p, []byte("v1"), session.None)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := m.SetValue(ctx, caller, p, []byte("v2"))
	if err != nil {
		t.Fatalf("set value: %v", err)
	}
	if string(updated.Value) != "v2" {
		t.Fatalf("expected v2, got %q", updated.Value)
	}
	if updated.StorageVersion <= created.StorageVersion {
		t.Fatalf("expected storage version to advance, got %d -> %d", created.StorageVersion, updated.StorageVersion)
	}
}

func TestDeleteWithChildrenRequiresRecursive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, caller := newTestCoordination(t)

	if _, err := m.CreateEntry(ctx, caller, path.New("a"), nil, session.None); err != nil {
		t.Fatalf("create a: %v", err)
	}
	if _, err := m.CreateEntry(ctx, caller, path.New("a", "b"), nil, session.None); err != nil {
		t.Fatalf("create a/b: %v", err)
	}

	if err := m.DeleteEntry(ctx, caller, path.New("a"), false); !coorderr.Is(err, coorderr.Invariant) {
		t.Fatalf("expected Invariant error for non-recursive delete with children, got %v", err)
	}

	if err := m.DeleteEntry(ctx, caller, path.New("a"), true); err != nil {
		t.Fatalf("recursive delete: %v", err)
	}
	if _, err := m.GetEntry(ctx, path.New("a", "b")); !coorderr.Is(err, coorderr.EntryNotFound) {
		t.Fatalf("expected child gone after recursive delete, got %v", err)
	}
}

func TestCreateEphemeralEntryTracksSessionOwnership(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, caller := newTestCoordination(t)
	p := path.New("tmp")

	if _, err := m.CreateEntry(ctx, caller, p, nil, caller); err != nil {
		t.Fatalf("create ephemeral: %v", err)
	}

	entry, err := m.GetEntry(ctx, p)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !entry.Ephemeral {
		t.Fatal("expected entry to be marked ephemeral")
	}
}
