package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cand(id string) Candidate {
	return Candidate{ID: id, URL: "https://images.test/" + id}
}

func ids(items []Candidate) []string {
	out := make([]string, len(items))
	for i, c := range items {
		out[i] = c.ID
	}
	return out
}

func TestBuffer_AppendRejectsDuplicatesAndOverflow(t *testing.T) {
	t.Parallel()
	b := NewBuffer(3)

	assert.True(t, b.Append(cand("a")))
	assert.True(t, b.Append(cand("b")))
	assert.False(t, b.Append(cand("a")))
	assert.True(t, b.Append(cand("c")))
	assert.True(t, b.Full())
	assert.False(t, b.Append(cand("d")))

	assert.Equal(t, []string{"a", "b", "c"}, ids(b.Items()))
	assert.True(t, b.Contains("b"))
	assert.False(t, b.Contains("d"))
}

func TestBuffer_PopFront(t *testing.T) {
	t.Parallel()
	b := NewBuffer(2)

	_, ok := b.PopFront()
	assert.False(t, ok)

	b.Append(cand("a"))
	b.Append(cand("b"))

	head, ok := b.Front()
	require.True(t, ok)
	assert.Equal(t, "a", head.ID)

	next, ok := b.At(1)
	require.True(t, ok)
	assert.Equal(t, "b", next.ID)
	_, ok = b.At(2)
	assert.False(t, ok)

	head, ok = b.PopFront()
	require.True(t, ok)
	assert.Equal(t, "a", head.ID)
	assert.False(t, b.Contains("a"))
	assert.Equal(t, 1, b.Len())

	// A popped id may be appended again; dedup against judged ids is the
	// scheduler's concern.
	assert.True(t, b.Append(cand("a")))
	assert.Equal(t, []string{"b", "a"}, ids(b.Items()))
}

func TestBuffer_ItemsIsCopy(t *testing.T) {
	t.Parallel()
	b := NewBuffer(2)
	b.Append(cand("a"))

	items := b.Items()
	items[0].ID = "mutated"

	head, _ := b.Front()
	assert.Equal(t, "a", head.ID)
}

func TestBuffer_Reset(t *testing.T) {
	t.Parallel()
	b := NewBuffer(2)
	b.Append(cand("a"))
	b.Append(cand("b"))

	b.Reset()
	assert.Equal(t, 0, b.Len())
	assert.False(t, b.Contains("a"))
	assert.True(t, b.Append(cand("a")))
}

func TestNewBuffer_MinimumCapacity(t *testing.T) {
	t.Parallel()
	b := NewBuffer(0)
	assert.Equal(t, 1, b.Cap())
	assert.True(t, b.Append(cand("a")))
	assert.False(t, b.Append(cand("b")))
}

func TestState_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "empty", StateEmpty.String())
	assert.Equal(t, "filling", StateFilling.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "partial", StatePartial.String())
	assert.Equal(t, "State(9)", State(9).String())
}
