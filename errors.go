package swipe

import (
	"github.com/meigma/swipe/cache"
	"github.com/meigma/swipe/cache/disk"
	"github.com/meigma/swipe/connectivity"
	"github.com/meigma/swipe/feed"
	swipehttp "github.com/meigma/swipe/http"
	"github.com/meigma/swipe/imaging"
	"github.com/meigma/swipe/store"
)

// Errors re-exported from the image pipeline.
var (
	// ErrNetwork is returned when a resource fetch fails in transport, times
	// out or receives a non-2xx status.
	ErrNetwork = swipehttp.ErrNetwork

	// ErrDecode is returned when fetched bytes are not a decodable image.
	ErrDecode = imaging.ErrDecode

	// ErrInvalidMedia is returned when a fetched resource could not be decoded.
	ErrInvalidMedia = cache.ErrInvalidMedia

	// ErrDisk matches disk tier failures. The pipeline never surfaces it.
	ErrDisk = disk.ErrDisk

	// ErrOffline is returned when work needing the network is attempted
	// while the connectivity signal reports offline.
	ErrOffline = connectivity.ErrOffline
)

// Errors re-exported from the feed.
var (
	// ErrDiscovery is returned when the discovery source fails.
	ErrDiscovery = feed.ErrDiscovery

	// ErrExhausted is returned when a fill used its attempt budget without
	// reaching the target depth.
	ErrExhausted = feed.ErrExhausted

	// ErrEmpty is returned by Decide when nothing is buffered.
	ErrEmpty = feed.ErrEmpty

	// ErrClosed is returned by operations on a closed Client.
	ErrClosed = feed.ErrClosed
)

// ErrNotFound is returned when a favorite does not exist.
var ErrNotFound = store.ErrNotFound

// NetworkError describes a failed resource fetch.
type NetworkError = swipehttp.NetworkError

// DecodeError describes malformed or unsupported image data.
type DecodeError = imaging.DecodeError
