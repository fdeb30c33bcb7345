package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allBackings = []Backing{BackingDoubly, BackingSingly, BackingArray}

// newTestStack builds a stack with the given backing or fails the test.
func newTestStack(t *testing.T, backing Backing, items ...string) Stack[string] {
	t.Helper()
	s, err := New(backing, items...)
	require.NoError(t, err)
	return s
}

func TestStack_New(t *testing.T) {
	for _, backing := range allBackings {
		t.Run(string(backing), func(t *testing.T) {
			empty := newTestStack(t, backing)
			assert.True(t, empty.IsEmpty())
			assert.Equal(t, 0, empty.Len())

			s := newTestStack(t, backing, "A", "B", "C")
			assert.False(t, s.IsEmpty())
			assert.Equal(t, 3, s.Len())
			top, found := s.Peek()
			assert.True(t, found)
			assert.Equal(t, "C", top, "The last pushed item should be on top")
		})
	}

	t.Run("unknown backing", func(t *testing.T) {
		_, err := New[string]("deque")
		assert.Error(t, err)
	})
}

func TestStack_PushPeekPop(t *testing.T) {
	for _, backing := range allBackings {
		t.Run(string(backing), func(t *testing.T) {
			s := newTestStack(t, backing)
			s.Push("A")
			s.Push("B")
			top, found := s.Peek()
			assert.True(t, found)
			assert.Equal(t, "B", top)
			assert.Equal(t, 2, s.Len(), "Peek must not remove the item")

			for _, expected := range []string{"B", "A"} {
				got, err := s.Pop()
				assert.NoError(t, err)
				assert.Equal(t, expected, got)
			}
			assert.True(t, s.IsEmpty())

			_, found = s.Peek()
			assert.False(t, found)
			_, err := s.Pop()
			assert.ErrorIs(t, err, ErrEmptyStack)
		})
	}
}

func TestStack_Duplicates(t *testing.T) {
	for _, backing := range allBackings {
		t.Run(string(backing), func(t *testing.T) {
			// Popping a value that also appears deeper in the stack must only remove the top copy.
			s := newTestStack(t, backing, "x", "y", "x")
			for _, expected := range []string{"x", "y", "x"} {
				got, err := s.Pop()
				require.NoError(t, err)
				assert.Equal(t, expected, got)
			}
			assert.True(t, s.IsEmpty())
		})
	}
}

func TestStack_String(t *testing.T) {
	for _, backing := range allBackings {
		t.Run(string(backing), func(t *testing.T) {
			s := newTestStack(t, backing)
			assert.Equal(t, "Stack(0 items, top=<nil>)", s.String())
			s.Push("A")
			s.Push("B")
			assert.Equal(t, "Stack(2 items, top=B)", s.String())
		})
	}
}

func TestArray_PopReleasesSlot(t *testing.T) {
	s := NewArray("A", "B")
	_, err := s.Pop()
	require.NoError(t, err)
	assert.Equal(t, "", s.items[:2][1], "Popped slot should be zeroed")
}
