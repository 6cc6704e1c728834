package swipe

import (
	"github.com/meigma/swipe/cache"
	"github.com/meigma/swipe/feed"
	"github.com/meigma/swipe/store"
)

// --- Re-exports from feed ---

// Candidate is one discoverable image before a decision is recorded.
type Candidate = feed.Candidate

// Snapshot is a point-in-time view of the lookahead buffer.
type Snapshot = feed.Snapshot

// State describes the lookahead buffer relative to its target depth.
type State = feed.State

// State constants.
const (
	StateEmpty   = feed.StateEmpty
	StateFilling = feed.StateFilling
	StateReady   = feed.StateReady
	StatePartial = feed.StatePartial
)

// --- Re-exports from store ---

// Favorite is a favorited candidate and the time it was favorited.
type Favorite = store.Favorite

// DecisionStore persists seen and favorite decisions.
type DecisionStore = store.Store

// --- Re-exports from cache ---

// CacheStats is a snapshot of image pipeline counters.
type CacheStats = cache.Stats
