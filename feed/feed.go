// Package feed maintains a lookahead buffer of unseen candidates and warms
// their images ahead of display.
//
// A Scheduler owns one Buffer. It tops the buffer up from a Discovery source,
// skipping candidates that are already buffered or that the DecisionStore
// reports as seen, and after every change sweeps the buffer from head to tail
// asking a Prefetcher to warm each image.
package feed

import (
	"context"
	"errors"
)

// Candidate is one discoverable item before a decision is recorded.
type Candidate struct {
	ID     string
	URL    string
	Source string
}

// Discovery produces candidates one at a time. A returned candidate may
// already have been seen.
type Discovery interface {
	Next(ctx context.Context) (Candidate, error)
}

// DecisionStore records user decisions. Writes must be idempotent.
type DecisionStore interface {
	IsSeen(ctx context.Context, id string) (bool, error)
	MarkSeen(ctx context.Context, c Candidate) error
	AddFavorite(ctx context.Context, c Candidate) error
}

// Prefetcher warms an image cache. Failures are the prefetcher's concern.
type Prefetcher interface {
	Prefetch(ctx context.Context, url string, sizeHint int)
}

// Connectivity reports whether discovery calls should be attempted.
type Connectivity interface {
	Online() bool
}

var (
	// ErrDiscovery wraps failures of the discovery source.
	ErrDiscovery = errors.New("feed: discovery failed")

	// ErrExhausted is returned when a fill used its attempt budget without
	// reaching the target depth, typically because the remote pool only
	// returns items that are already buffered or seen.
	ErrExhausted = errors.New("feed: discovery exhausted")

	// ErrEmpty is returned by Decide when the buffer has no current item.
	ErrEmpty = errors.New("feed: buffer is empty")

	// ErrClosed is returned by operations on a closed Scheduler.
	ErrClosed = errors.New("feed: scheduler closed")
)
