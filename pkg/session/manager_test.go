package session

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/coordcore/pkg/store/memory"
)

func TestTryBeginAndEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := memory.New()
	m := NewManager(backend, nil)

	id := FromBytes([]byte("s1"))
	ok, err := m.TryBegin(ctx, id, time.Now().Add(time.Minute))
	if err != nil || !ok {
		t.Fatalf("try begin: ok=%v err=%v", ok, err)
	}

	again, err := m.TryBegin(ctx, id, time.Now().Add(time.Minute))
	if err != nil || again {
		t.Fatalf("second try begin should fail: ok=%v err=%v", again, err)
	}

	alive, err := m.IsAlive(ctx, id)
	if err != nil || !alive {
		t.Fatalf("expected alive: %v %v", alive, err)
	}

	if err := m.End(ctx, id); err != nil {
		t.Fatalf("end: %v", err)
	}

	alive, err = m.IsAlive(ctx, id)
	if err != nil || alive {
		t.Fatalf("expected not alive after end: %v %v", alive, err)
	}
}

func TestAddRemoveEntryKeepsTombstoneUntilEmpty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := memory.New()
	m := NewManager(backend, nil)

	id := FromBytes([]byte("s2"))
	if _, err := m.TryBegin(ctx, id, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("try begin: %v", err)
	}
	if err := m.AddEntry(ctx, id, "/a"); err != nil {
		t.Fatalf("add entry: %v", err)
	}

	if err := m.End(ctx, id); err != nil {
		t.Fatalf("end: %v", err)
	}

	entries, err := m.GetEntries(ctx, id)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected tombstone to retain entry: %v %v", entries, err)
	}

	if err := m.RemoveEntry(ctx, id, "/a"); err != nil {
		t.Fatalf("remove entry: %v", err)
	}

	if _, err := backend.GetSession(ctx, id); err == nil {
		t.Fatal("expected session record to be gone after last entry removed")
	}
}

func TestWaitForTerminationCompletesOnEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := memory.New()
	m := NewManager(backend, nil)

	id := FromBytes([]byte("s3"))
	if _, err := m.TryBegin(ctx, id, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("try begin: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- m.WaitForTermination(ctx, id)
	}()

	time.Sleep(20 * time.Millisecond)
	if err := m.End(ctx, id); err != nil {
		t.Fatalf("end: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("wait returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("wait for termination never completed")
	}
}

func TestWaitForTerminationOnUnknownIDReturnsImmediately(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewManager(memory.New(), nil)

	if err := m.WaitForTermination(ctx, FromBytes([]byte("ghost"))); err != nil {
		t.Fatalf("expected immediate return, got %v", err)
	}
}
