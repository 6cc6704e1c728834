package swipe

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/meigma/swipe/cache"
	"github.com/meigma/swipe/cache/disk"
	"github.com/meigma/swipe/cache/memory"
	"github.com/meigma/swipe/connectivity"
	"github.com/meigma/swipe/discovery"
	"github.com/meigma/swipe/feed"
	"github.com/meigma/swipe/imaging"
	swipehttp "github.com/meigma/swipe/http"
	"github.com/meigma/swipe/store"
	"github.com/meigma/swipe/store/badger"
)

// Client provides the feed and the image cache behind a browsing session.
//
// Client owns one image pipeline and one lookahead scheduler; the scheduler
// warms images through the pipeline. Create one Client per process or
// session. Client is safe for concurrent use.
type Client struct {
	// Configuration collected from options.
	cacheDir          string
	diskMaxBytes      int64
	memoryMaxCost     int64
	memoryMaxEntries  int
	httpClient        *http.Client
	fetchTimeout      time.Duration
	userAgent         string
	discoveryEndpoint string
	discoveryRate     rate.Limit
	discoveryBurst    int
	stateDir          string
	targetDepth       int
	maxAttempts       int
	sizeHint          int
	registerer        prometheus.Registerer

	// Components.
	memory    cache.MemoryTier
	disk      cache.DiskTier
	fetcher   cache.Fetcher
	discovery feed.Discovery
	decisions DecisionStore
	conn      connectivity.Signal
	logger    *slog.Logger

	pipeline  *cache.Pipeline
	scheduler *feed.Scheduler

	closeOnce sync.Once
	closeErr  error
	closers   []func() error
}

// NewClient creates a client with the given options.
//
// Without [WithCacheDir] the disk tier is disabled. Without [WithStateDir]
// or [WithDecisionStore] decisions are kept in memory. Discovery starts on
// the first call to [Client.Start].
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		diskMaxBytes:     DefaultDiskCacheSize,
		memoryMaxCost:    DefaultMemoryCacheCost,
		memoryMaxEntries: DefaultMemoryCacheEntries,
		fetchTimeout:     DefaultFetchTimeout,
		userAgent:        DefaultUserAgent,
		targetDepth:      DefaultTargetDepth,
		maxAttempts:      DefaultMaxAttempts,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.conn == nil {
		c.conn = connectivity.Always{}
	}
	if err := c.build(); err != nil {
		_ = c.closeAll()
		return nil, err
	}
	return c, nil
}

func (c *Client) build() error {
	var (
		cacheMetrics *cache.Metrics
		feedMetrics  *feed.Metrics
		err          error
	)
	if c.registerer != nil {
		if cacheMetrics, err = cache.NewMetrics(c.registerer); err != nil {
			return fmt.Errorf("register cache metrics: %w", err)
		}
		if feedMetrics, err = feed.NewMetrics(c.registerer); err != nil {
			return fmt.Errorf("register feed metrics: %w", err)
		}
	}

	if c.memory == nil {
		c.memory = memory.New(
			memory.WithMaxCost(c.memoryMaxCost),
			memory.WithMaxEntries(c.memoryMaxEntries),
		)
	}
	if c.disk == nil && c.cacheDir != "" {
		dc, err := disk.New(c.cacheDir, disk.WithMaxBytes(c.diskMaxBytes))
		if err != nil {
			return fmt.Errorf("open disk cache: %w", err)
		}
		c.disk = dc
	}
	if c.fetcher == nil {
		fetchOpts := []swipehttp.Option{
			swipehttp.WithTimeout(c.fetchTimeout),
			swipehttp.WithUserAgent(c.userAgent),
		}
		if c.httpClient != nil {
			fetchOpts = append(fetchOpts, swipehttp.WithClient(c.httpClient))
		}
		c.fetcher = swipehttp.NewFetcher(fetchOpts...)
	}
	if c.discovery == nil {
		discOpts := []discovery.Option{discovery.WithLogger(c.logger)}
		if c.discoveryEndpoint != "" {
			discOpts = append(discOpts, discovery.WithEndpoint(c.discoveryEndpoint))
		}
		if c.httpClient != nil {
			discOpts = append(discOpts, discovery.WithHTTPClient(c.httpClient))
		}
		if c.discoveryRate > 0 {
			discOpts = append(discOpts, discovery.WithRateLimit(c.discoveryRate, c.discoveryBurst))
		}
		d, err := discovery.New(discOpts...)
		if err != nil {
			return fmt.Errorf("create discovery client: %w", err)
		}
		c.discovery = d
	}
	if c.decisions == nil {
		if c.stateDir != "" {
			db, err := badger.Open(c.stateDir)
			if err != nil {
				return fmt.Errorf("open decision store: %w", err)
			}
			c.decisions = db
			c.closers = append(c.closers, db.Close)
		} else {
			c.decisions = store.NewMemory()
		}
	}

	pipeline, err := cache.NewPipeline(c.memory, c.disk, c.fetcher,
		cache.WithLogger(c.logger),
		cache.WithConnectivity(c.conn),
		cache.WithMetrics(cacheMetrics),
	)
	if err != nil {
		return err
	}
	c.pipeline = pipeline
	c.closers = append(c.closers, pipeline.Close)

	scheduler, err := feed.NewScheduler(c.discovery, c.decisions, pipeline,
		feed.WithTargetDepth(c.targetDepth),
		feed.WithMaxAttempts(c.maxAttempts),
		feed.WithSizeHint(c.sizeHint),
		feed.WithConnectivity(c.conn),
		feed.WithLogger(c.logger),
		feed.WithMetrics(feedMetrics),
	)
	if err != nil {
		return err
	}
	c.scheduler = scheduler
	c.closers = append(c.closers, scheduler.Close)
	return nil
}

// --- Images ---

// Image returns the image at url, downsampled so its longer edge is at most
// sizeHint pixels when sizeHint > 0.
func (c *Client) Image(ctx context.Context, url string, sizeHint int) (image.Image, error) {
	return c.pipeline.Image(ctx, url, sizeHint)
}

// Prefetch warms the caches for url, ignoring failures.
func (c *Client) Prefetch(ctx context.Context, url string, sizeHint int) {
	c.pipeline.Prefetch(ctx, url, sizeHint)
}

// CacheStats returns pipeline counters.
func (c *Client) CacheStats() CacheStats {
	return c.pipeline.Stats()
}

// ClearMemoryCache empties the memory tier.
func (c *Client) ClearMemoryCache() {
	c.pipeline.ClearMemory()
}

// ClearDiskCache empties the disk tier.
func (c *Client) ClearDiskCache() {
	c.pipeline.ClearDisk()
}

// ClearCaches empties both tiers.
func (c *Client) ClearCaches() {
	c.pipeline.ClearAll()
}

// --- Feed ---

// Start fills the lookahead buffer. It is equivalent to [Client.Reload].
func (c *Client) Start(ctx context.Context) error {
	return c.scheduler.Reload(ctx)
}

// Reload cancels background work and refills the lookahead buffer.
func (c *Client) Reload(ctx context.Context) error {
	return c.scheduler.Reload(ctx)
}

// Current returns the candidate on display.
func (c *Client) Current() (Candidate, bool) {
	return c.scheduler.Current()
}

// Next returns the candidate after the current one.
func (c *Client) Next() (Candidate, bool) {
	return c.scheduler.Next()
}

// Snapshot returns the lookahead buffer state.
func (c *Client) Snapshot() Snapshot {
	return c.scheduler.Snapshot()
}

// Decide records a decision on the current candidate and moves to the next.
// favorite true accepts it, false rejects it; either way it is never shown
// again.
func (c *Client) Decide(ctx context.Context, favorite bool) (Candidate, error) {
	return c.scheduler.Decide(ctx, favorite)
}

// SetSizeHint updates the display size used for prefetching.
func (c *Client) SetSizeHint(n int) {
	c.scheduler.SetSizeHint(n)
}

// --- Favorites ---

// Favorites returns all favorites, newest first.
func (c *Client) Favorites(ctx context.Context) ([]Favorite, error) {
	return c.decisions.Favorites(ctx)
}

// RemoveFavorite removes a favorite. The candidate stays seen.
func (c *Client) RemoveFavorite(ctx context.Context, id string) error {
	return c.decisions.RemoveFavorite(ctx, id)
}

// ExportFavorites writes all favorites to path in the widget JSON format.
func (c *Client) ExportFavorites(ctx context.Context, path string) error {
	favs, err := c.decisions.Favorites(ctx)
	if err != nil {
		return err
	}
	return store.WriteFavoritesFile(path, favs)
}

// SaveImage writes the favorite's image at native size to path, encoded as
// JPEG when opaque and PNG otherwise. The image is served from the caches
// when present. An unknown id returns an error matching [ErrNotFound].
func (c *Client) SaveImage(ctx context.Context, id, path string) error {
	favs, err := c.decisions.Favorites(ctx)
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(favs, func(f Favorite) bool { return f.ID == id })
	if idx < 0 {
		return fmt.Errorf("save image %s: %w", id, ErrNotFound)
	}
	img, err := c.pipeline.Image(ctx, favs[idx].URL, 0)
	if err != nil {
		return fmt.Errorf("save image %s: %w", id, err)
	}
	format, err := imaging.WriteFile(path, img)
	if err != nil {
		return fmt.Errorf("save image %s: %w", id, err)
	}
	c.logger.Debug("saved image", "id", id, "path", path, "format", string(format))
	return nil
}

// Reset forgets every decision, empties both caches and the lookahead
// buffer. Call [Client.Start] to begin again.
func (c *Client) Reset(ctx context.Context) error {
	c.scheduler.Reset()
	if err := c.decisions.Clear(ctx); err != nil {
		return fmt.Errorf("clear decisions: %w", err)
	}
	c.pipeline.ClearAll()
	c.logger.Info("reset all decisions and caches")
	return nil
}

// Close stops background work, waits for pending disk writes and closes the
// decision store if the client opened it.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.closeAll()
	})
	return c.closeErr
}

func (c *Client) closeAll() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
