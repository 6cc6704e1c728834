// Package store provides decision stores for the feed and the favorites
// export consumed by external widgets.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/meigma/swipe/feed"
)

// ErrNotFound is returned when a requested favorite does not exist.
var ErrNotFound = errors.New("store: not found")

// Favorite is a favorited candidate and the time it was favorited.
type Favorite struct {
	feed.Candidate
	CreatedAt time.Time
}

// Store is a decision store that also manages favorites.
type Store interface {
	feed.DecisionStore
	UnmarkSeen(ctx context.Context, id string) error
	IsFavorite(ctx context.Context, id string) (bool, error)
	RemoveFavorite(ctx context.Context, id string) error
	Favorites(ctx context.Context) ([]Favorite, error)
	Clear(ctx context.Context) error
}
