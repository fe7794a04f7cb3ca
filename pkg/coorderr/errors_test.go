package coorderr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	t.Parallel()

	t.Run("with path", func(t *testing.T) {
		t.Parallel()
		err := New(EntryNotFound, "entry not found", "/a/b")
		assert.Contains(t, err.Error(), "entry_not_found")
		assert.Contains(t, err.Error(), "entry not found")
		assert.Contains(t, err.Error(), "/a/b")
	})

	t.Run("without path", func(t *testing.T) {
		t.Parallel()
		err := New(Invariant, "version skipped", "")
		assert.NotContains(t, err.Error(), "()")
	})
}

func TestIs(t *testing.T) {
	t.Parallel()

	err := NewSessionTerminated("/x")
	assert.True(t, Is(err, SessionTerminated))
	assert.False(t, Is(err, EntryNotFound))

	wrapped := fmt.Errorf("context: %w", wrapErr{err})
	code, ok := CodeOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, SessionTerminated, code)
}

// wrapErr is a minimal Unwrap-capable wrapper used only to exercise CodeOf's
// unwrap chain without pulling in fmt.Errorf's %w for the inner value.
type wrapErr struct{ err error }

func (w wrapErr) Error() string { return w.err.Error() }
func (w wrapErr) Unwrap() error { return w.err }
