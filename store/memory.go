package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/meigma/swipe/feed"
)

// Memory is an in-process decision store. It is safe for concurrent use.
type Memory struct {
	mu        sync.RWMutex
	seen      map[string]struct{}
	favorites map[string]favoriteEntry
	seq       uint64
	now       func() time.Time
}

type favoriteEntry struct {
	Favorite
	seq uint64
}

var _ Store = (*Memory)(nil)

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock sets the clock used to timestamp favorites.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory returns an empty store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		seen:      make(map[string]struct{}),
		favorites: make(map[string]favoriteEntry),
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(m)
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// IsSeen reports whether id has been judged.
func (m *Memory) IsSeen(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.seen[id]
	return ok, nil
}

// MarkSeen records c as judged. Marking an already seen id is a no-op.
func (m *Memory) MarkSeen(ctx context.Context, c feed.Candidate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[c.ID] = struct{}{}
	return nil
}

// UnmarkSeen forgets the judgement for id.
func (m *Memory) UnmarkSeen(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, id)
	return nil
}

// AddFavorite records c as a favorite. Favoriting an existing favorite keeps
// its original timestamp.
func (m *Memory) AddFavorite(ctx context.Context, c feed.Candidate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.favorites[c.ID]; ok {
		return nil
	}
	m.seq++
	m.favorites[c.ID] = favoriteEntry{
		Favorite: Favorite{Candidate: c, CreatedAt: m.now().UTC()},
		seq:      m.seq,
	}
	return nil
}

// IsFavorite reports whether id is a favorite.
func (m *Memory) IsFavorite(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.favorites[id]
	return ok, nil
}

// RemoveFavorite deletes the favorite id. It returns ErrNotFound if id is
// not a favorite.
func (m *Memory) RemoveFavorite(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.favorites[id]; !ok {
		return ErrNotFound
	}
	delete(m.favorites, id)
	return nil
}

// Favorites returns all favorites, newest first.
func (m *Memory) Favorites(ctx context.Context) ([]Favorite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	entries := make([]favoriteEntry, 0, len(m.favorites))
	for _, e := range m.favorites {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].seq > entries[j].seq
	})
	out := make([]Favorite, len(entries))
	for i, e := range entries {
		out[i] = e.Favorite
	}
	return out, nil
}

// Clear removes every decision.
func (m *Memory) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.seen)
	clear(m.favorites)
	return nil
}
