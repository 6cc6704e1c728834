// Package badger provides a persistent decision store backed by BadgerDB.
//
// Key namespace:
//
//	seen:<id>  JSON seenRecord
//	fav:<id>   JSON favoriteRecord
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/meigma/swipe/feed"
	"github.com/meigma/swipe/store"
)

const (
	prefixSeen     = "seen:"
	prefixFavorite = "fav:"
)

type seenRecord struct {
	ID     string    `json:"id"`
	URL    string    `json:"url"`
	Source string    `json:"source,omitempty"`
	SeenAt time.Time `json:"seenAt"`
}

type favoriteRecord struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists decisions in BadgerDB. It is safe for concurrent use.
type Store struct {
	db  *badgerdb.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to timestamp decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open opens or creates a store in dir.
func Open(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("badger: dir is empty")
	}
	return open(badgerdb.DefaultOptions(dir), opts)
}

// OpenInMemory opens a store that keeps everything in memory.
func OpenInMemory(opts ...Option) (*Store, error) {
	return open(badgerdb.DefaultOptions("").WithInMemory(true), opts)
}

func open(dbOpts badgerdb.Options, opts []Option) (*Store, error) {
	db, err := badgerdb.Open(dbOpts.WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func keySeen(id string) []byte     { return []byte(prefixSeen + id) }
func keyFavorite(id string) []byte { return []byte(prefixFavorite + id) }

// IsSeen reports whether id has been judged.
func (s *Store) IsSeen(ctx context.Context, id string) (bool, error) {
	return s.exists(ctx, keySeen(id))
}

// MarkSeen records c as judged. Marking an already seen id keeps the
// original record.
func (s *Store) MarkSeen(ctx context.Context, c feed.Candidate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		key := keySeen(c.ID)
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}
		val, err := json.Marshal(seenRecord{ID: c.ID, URL: c.URL, Source: c.Source, SeenAt: s.now().UTC()})
		if err != nil {
			return err
		}
		return txn.Set(key, val)
	})
}

// UnmarkSeen forgets the judgement for id.
func (s *Store) UnmarkSeen(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(keySeen(id))
	})
}

// AddFavorite records c as a favorite. Favoriting an existing favorite keeps
// its original timestamp.
func (s *Store) AddFavorite(ctx context.Context, c feed.Candidate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		key := keyFavorite(c.ID)
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}
		val, err := json.Marshal(favoriteRecord{ID: c.ID, URL: c.URL, Source: c.Source, CreatedAt: s.now().UTC()})
		if err != nil {
			return err
		}
		return txn.Set(key, val)
	})
}

// IsFavorite reports whether id is a favorite.
func (s *Store) IsFavorite(ctx context.Context, id string) (bool, error) {
	return s.exists(ctx, keyFavorite(id))
}

// RemoveFavorite deletes the favorite id. It returns store.ErrNotFound if id
// is not a favorite.
func (s *Store) RemoveFavorite(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		key := keyFavorite(id)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				return store.ErrNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
}

// Favorites returns all favorites, newest first.
func (s *Store) Favorites(ctx context.Context) ([]store.Favorite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var favs []store.Favorite
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefixFavorite)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec favoriteRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				favs = append(favs, store.Favorite{
					Candidate: feed.Candidate{ID: rec.ID, URL: rec.URL, Source: rec.Source},
					CreatedAt: rec.CreatedAt,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(favs, func(i, j int) bool {
		if !favs[i].CreatedAt.Equal(favs[j].CreatedAt) {
			return favs[i].CreatedAt.After(favs[j].CreatedAt)
		}
		return strings.Compare(favs[i].ID, favs[j].ID) < 0
	})
	return favs, nil
}

// Clear removes every decision.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.DropAll()
}

func (s *Store) exists(ctx context.Context, key []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var found bool
	err := s.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(key)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}
