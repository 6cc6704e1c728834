package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/swipe/feed"
)

func candidate(id string) feed.Candidate {
	return feed.Candidate{ID: id, URL: "https://images.test/" + id, Source: "test"}
}

func TestMemory_MarkSeenIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	seen, err := m.IsSeen(ctx, "a")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, m.MarkSeen(ctx, candidate("a")))
	require.NoError(t, m.MarkSeen(ctx, candidate("a")))

	seen, err = m.IsSeen(ctx, "a")
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, m.UnmarkSeen(ctx, "a"))
	seen, err = m.IsSeen(ctx, "a")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestMemory_FavoritesNewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	m := NewMemory(WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}))

	require.NoError(t, m.AddFavorite(ctx, candidate("a")))
	require.NoError(t, m.AddFavorite(ctx, candidate("b")))
	require.NoError(t, m.AddFavorite(ctx, candidate("c")))
	// Re-favoriting keeps the original timestamp.
	require.NoError(t, m.AddFavorite(ctx, candidate("a")))

	favs, err := m.Favorites(ctx)
	require.NoError(t, err)
	require.Len(t, favs, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{favs[0].ID, favs[1].ID, favs[2].ID})
	assert.Equal(t, base.Add(time.Minute), favs[2].CreatedAt)
}

func TestMemory_FavoritesSameTimestampUsesInsertionOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(WithClock(func() time.Time { return fixed }))

	for _, id := range []string{"x", "y", "z"} {
		require.NoError(t, m.AddFavorite(ctx, candidate(id)))
	}
	favs, err := m.Favorites(ctx)
	require.NoError(t, err)
	require.Len(t, favs, 3)
	assert.Equal(t, "z", favs[0].ID)
	assert.Equal(t, "x", favs[2].ID)
}

func TestMemory_RemoveFavorite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.AddFavorite(ctx, candidate("a")))
	ok, err := m.IsFavorite(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, m.RemoveFavorite(ctx, "a"))
	ok, err = m.IsFavorite(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, m.RemoveFavorite(ctx, "a"), ErrNotFound)
}

func TestMemory_Clear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.MarkSeen(ctx, candidate("a")))
	require.NoError(t, m.AddFavorite(ctx, candidate("a")))
	require.NoError(t, m.Clear(ctx))

	seen, err := m.IsSeen(ctx, "a")
	require.NoError(t, err)
	assert.False(t, seen)
	favs, err := m.Favorites(ctx)
	require.NoError(t, err)
	assert.Empty(t, favs)
}

func TestMemory_CanceledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemory()

	_, err := m.IsSeen(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, m.MarkSeen(ctx, candidate("a")), context.Canceled)
}
