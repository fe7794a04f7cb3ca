package session

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/coordcore/pkg/coorderr"
	"github.com/marmos91/coordcore/pkg/store/memory"
)

func TestReclaimSessionOutsideGraceWindowFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewManager(memory.New(), nil)
	id := FromBytes([]byte("s1"))

	err := m.ReclaimSession(ctx, id, time.Now().Add(time.Minute))
	if !coorderr.Is(err, coorderr.Invariant) {
		t.Fatalf("expected Invariant error outside grace window, got %v", err)
	}
}

func TestReclaimSessionRestoresAliveness(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewManager(memory.New(), nil)
	id := FromBytes([]byte("s1"))

	m.EnterGracePeriod([]ID{id}, time.Minute)
	if !m.InGracePeriod() {
		t.Fatal("expected grace period to be active")
	}

	if err := m.ReclaimSession(ctx, id, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("reclaim: %v", err)
	}

	alive, err := m.IsAlive(ctx, id)
	if err != nil || !alive {
		t.Fatalf("expected reclaimed session to be alive: %v %v", alive, err)
	}

	// All expected sessions reclaimed -> window closes early.
	if m.InGracePeriod() {
		t.Fatal("expected grace period to close once all expected sessions reclaimed")
	}
}

func TestReclaimSessionForUnexpectedIDFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewManager(memory.New(), nil)
	expected := FromBytes([]byte("expected"))
	other := FromBytes([]byte("other"))

	m.EnterGracePeriod([]ID{expected}, time.Minute)

	if err := m.ReclaimSession(ctx, other, time.Now().Add(time.Minute)); !coorderr.Is(err, coorderr.Invariant) {
		t.Fatalf("expected Invariant error for unexpected session, got %v", err)
	}
}
