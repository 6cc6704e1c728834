// Package cache provides a tiered image cache for remotely hosted images.
//
// A Pipeline resolves an image through three tiers in order: an in-process
// memory tier of decoded images, a persistent disk tier of encoded bytes, and
// finally the network. Concurrent requests for the same key share a single
// in-flight fetch-and-decode.
//
// Tier implementations live in the memory and disk subpackages; this package
// only defines the contracts the pipeline depends on.
package cache

import (
	"context"
	"image"

	swipehttp "github.com/meigma/swipe/http"
)

// MemoryTier holds decoded images bounded by an estimated byte cost.
//
// Implementations must be safe for concurrent use and must not perform I/O.
type MemoryTier interface {
	// Get returns the image for key and marks it recently used.
	Get(key Key) (image.Image, bool)

	// Put stores img under key, replacing any previous entry.
	// Cost is the estimated size of img in bytes.
	Put(key Key, img image.Image, cost int64)

	// Clear removes every entry.
	Clear()
}

// DiskTier holds encoded image bytes on local storage.
//
// Disk is a best-effort layer: callers treat every error as a miss or a
// dropped write. Implementations must be safe for concurrent use.
type DiskTier interface {
	// Load returns the stored bytes for key and refreshes its recency.
	Load(key Key) ([]byte, bool)

	// Store writes data under key and enforces the size budget.
	Store(key Key, data []byte) error

	// Clear removes every entry. A missing backing store is not an error.
	Clear() error
}

// Fetcher retrieves the raw bytes of a remote resource in a single attempt.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*swipehttp.Response, error)
}

// Connectivity reports whether network requests should be attempted.
type Connectivity interface {
	Online() bool
}
