package swipe

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/meigma/swipe/cache"
	"github.com/meigma/swipe/cache/disk"
	"github.com/meigma/swipe/cache/memory"
	"github.com/meigma/swipe/connectivity"
	"github.com/meigma/swipe/feed"
	swipehttp "github.com/meigma/swipe/http"
)

// Option configures a Client.
type Option func(*Client) error

// Defaults applied by NewClient.
const (
	DefaultMemoryCacheCost    = memory.DefaultMaxCost
	DefaultMemoryCacheEntries = memory.DefaultMaxEntries
	DefaultDiskCacheSize      = disk.DefaultMaxBytes
	DefaultTargetDepth        = feed.DefaultTargetDepth
	DefaultMaxAttempts        = feed.DefaultMaxAttempts
	DefaultFetchTimeout       = swipehttp.DefaultTimeout
	DefaultUserAgent          = "swipe/1.0"
)

// --- Caching Options ---

// WithCacheDir enables the disk tier in dir with the size limit set by
// [WithDiskCacheSize] ([DefaultDiskCacheSize] unless set).
func WithCacheDir(dir string) Option {
	return func(c *Client) error {
		if dir == "" {
			return errors.New("cache dir is empty")
		}
		c.cacheDir = dir
		return nil
	}
}

// WithDiskCacheSize sets the disk tier budget in bytes. Use 0 for no limit.
func WithDiskCacheSize(n int64) Option {
	return func(c *Client) error {
		if n < 0 {
			return errors.New("disk cache size must be non-negative")
		}
		c.diskMaxBytes = n
		return nil
	}
}

// WithMemoryCacheLimits sets the memory tier budgets: maxCost in decoded
// bytes and maxEntries in images. A maxEntries of zero disables the count
// ceiling. A non-positive maxCost or a negative maxEntries keeps the default.
func WithMemoryCacheLimits(maxCost int64, maxEntries int) Option {
	return func(c *Client) error {
		if maxCost > 0 {
			c.memoryMaxCost = maxCost
		}
		if maxEntries >= 0 {
			c.memoryMaxEntries = maxEntries
		}
		return nil
	}
}

// WithMemoryCache sets a custom memory tier, overriding the memory limits.
func WithMemoryCache(tier cache.MemoryTier) Option {
	return func(c *Client) error {
		c.memory = tier
		return nil
	}
}

// WithDiskCache sets a custom disk tier, overriding [WithCacheDir].
func WithDiskCache(tier cache.DiskTier) Option {
	return func(c *Client) error {
		c.disk = tier
		return nil
	}
}

// --- Transport Options ---

// WithFetcher sets the resource fetcher, overriding the fetch options below.
func WithFetcher(f cache.Fetcher) Option {
	return func(c *Client) error {
		c.fetcher = f
		return nil
	}
}

// WithHTTPClient sets the HTTP client used for resource fetches and
// discovery calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) error {
		if client == nil {
			return errors.New("http client is nil")
		}
		c.httpClient = client
		return nil
	}
}

// WithFetchTimeout sets the per-resource fetch timeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d < 0 {
			return errors.New("fetch timeout must be non-negative")
		}
		c.fetchTimeout = d
		return nil
	}
}

// WithUserAgent sets the User-Agent header for resource fetches.
func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		c.userAgent = ua
		return nil
	}
}

// --- Discovery Options ---

// WithDiscovery sets the candidate source, overriding the discovery options
// below.
func WithDiscovery(d feed.Discovery) Option {
	return func(c *Client) error {
		c.discovery = d
		return nil
	}
}

// WithDiscoveryEndpoint sets the discovery endpoint URL.
func WithDiscoveryEndpoint(endpoint string) Option {
	return func(c *Client) error {
		c.discoveryEndpoint = endpoint
		return nil
	}
}

// WithDiscoveryRateLimit limits discovery calls to r per second.
func WithDiscoveryRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) error {
		if r <= 0 {
			return errors.New("discovery rate must be positive")
		}
		c.discoveryRate = r
		c.discoveryBurst = burst
		return nil
	}
}

// --- Feed Options ---

// WithDecisionStore sets the decision store, overriding [WithStateDir].
// The client does not close a store passed this way.
func WithDecisionStore(s DecisionStore) Option {
	return func(c *Client) error {
		c.decisions = s
		return nil
	}
}

// WithStateDir persists decisions in a database under dir. Without it, or
// [WithDecisionStore], decisions are kept in memory only.
func WithStateDir(dir string) Option {
	return func(c *Client) error {
		if dir == "" {
			return errors.New("state dir is empty")
		}
		c.stateDir = dir
		return nil
	}
}

// WithTargetDepth sets how many candidates are kept buffered ahead.
func WithTargetDepth(n int) Option {
	return func(c *Client) error {
		if n < 1 {
			return errors.New("target depth must be positive")
		}
		c.targetDepth = n
		return nil
	}
}

// WithMaxAttempts bounds the discovery calls of a single fill.
func WithMaxAttempts(n int) Option {
	return func(c *Client) error {
		if n < 1 {
			return errors.New("max attempts must be positive")
		}
		c.maxAttempts = n
		return nil
	}
}

// WithSizeHint sets the initial size hint used when prefetching.
func WithSizeHint(n int) Option {
	return func(c *Client) error {
		if n < 0 {
			return errors.New("size hint must be non-negative")
		}
		c.sizeHint = n
		return nil
	}
}

// --- Observability Options ---

// WithConnectivity sets the signal consulted before network work.
func WithConnectivity(s connectivity.Signal) Option {
	return func(c *Client) error {
		c.conn = s
		return nil
	}
}

// WithLogger sets a logger for the client and its components.
// If nil, a discard logger is used (default behavior).
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// WithMetricsRegisterer registers cache and feed metrics with r.
func WithMetricsRegisterer(r prometheus.Registerer) Option {
	return func(c *Client) error {
		c.registerer = r
		return nil
	}
}
