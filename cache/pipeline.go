package cache

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/swipe/connectivity"
	"github.com/meigma/swipe/imaging"
)

// ErrInvalidMedia is returned when a resource was fetched successfully but
// could not be decoded as an image.
var ErrInvalidMedia = errors.New("cache: invalid media")

// Codec decodes fetched bytes and re-encodes decoded images for disk.
type Codec interface {
	Decode(data []byte, maxDim int) (image.Image, error)
	Encode(img image.Image, src []byte) ([]byte, imaging.Format)
}

type imagingCodec struct{}

func (imagingCodec) Decode(data []byte, maxDim int) (image.Image, error) {
	return imaging.Decode(data, maxDim)
}

func (imagingCodec) Encode(img image.Image, src []byte) ([]byte, imaging.Format) {
	return imaging.Encode(img, src)
}

// Stats is a point-in-time snapshot of pipeline counters.
type Stats struct {
	MemoryHits int64
	DiskHits   int64
	Fetches    int64
	Coalesced  int64
	Failures   int64
}

// Pipeline resolves images through the memory tier, the disk tier and the
// network, in that order.
//
// For a given key at most one load is in flight: concurrent callers attach
// to it instead of issuing duplicate requests. The shared load is detached
// from any single caller's cancellation; a caller whose context ends stops
// waiting without affecting the others.
//
// Disk writes happen in the background and their failures are absorbed.
// Pipeline is safe for concurrent use.
type Pipeline struct {
	memory  MemoryTier
	disk    DiskTier // nil disables the disk tier
	fetcher Fetcher
	codec   Codec
	conn    Connectivity
	logger  *slog.Logger
	metrics *Metrics

	group    singleflight.Group
	writesMu sync.RWMutex // write-held while waiting so no write starts mid-wait
	writes   conc.WaitGroup

	memoryHits atomic.Int64
	diskHits   atomic.Int64
	fetches    atomic.Int64
	coalesced  atomic.Int64
	failures   atomic.Int64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. If nil, a discard logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithConnectivity sets the signal consulted before network fetches.
func WithConnectivity(c Connectivity) Option {
	return func(p *Pipeline) {
		p.conn = c
	}
}

// WithMetrics sets the Prometheus metrics to record into.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithCodec replaces the image codec.
func WithCodec(c Codec) Option {
	return func(p *Pipeline) {
		p.codec = c
	}
}

// NewPipeline creates a Pipeline. disk may be nil to run memory-only.
func NewPipeline(memory MemoryTier, disk DiskTier, fetcher Fetcher, opts ...Option) (*Pipeline, error) {
	if memory == nil {
		return nil, errors.New("cache: memory tier is nil")
	}
	if fetcher == nil {
		return nil, errors.New("cache: fetcher is nil")
	}
	p := &Pipeline{
		memory:  memory,
		disk:    disk,
		fetcher: fetcher,
		codec:   imagingCodec{},
		conn:    connectivity.Always{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	if p.codec == nil {
		p.codec = imagingCodec{}
	}
	if p.conn == nil {
		p.conn = connectivity.Always{}
	}
	return p, nil
}

// Image returns the image at url, downsampled so its longer edge is at most
// sizeHint pixels when sizeHint > 0.
//
// Decode failures after a successful fetch return an error matching
// ErrInvalidMedia. When the connectivity signal reports offline and the image
// is not cached, Image fails with connectivity.ErrOffline without a request.
func (p *Pipeline) Image(ctx context.Context, url string, sizeHint int) (image.Image, error) {
	if url == "" {
		return nil, errors.New("cache: empty url")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := NewKey(url, sizeHint)

	// Fast path, avoids singleflight overhead.
	if img, ok := p.memory.Get(key); ok {
		p.memoryHits.Add(1)
		p.metrics.request(resultMemory)
		return img, nil
	}

	var leader atomic.Bool
	ch := p.group.DoChan(key.String(), func() (any, error) {
		leader.Store(true)
		return p.load(context.WithoutCancel(ctx), key, sizeHint)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if !leader.Load() {
			p.coalesced.Add(1)
			p.metrics.coalesced()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		img, _ := res.Val.(image.Image) //nolint:errcheck // type assertion always succeeds when err is nil
		return img, nil
	}
}

// Prefetch warms the tiers for url. The result and any failure are discarded.
func (p *Pipeline) Prefetch(ctx context.Context, url string, sizeHint int) {
	if _, err := p.Image(ctx, url, sizeHint); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		p.logger.Debug("prefetch failed", "url", url, "size_hint", sizeHint, "error", err)
	}
}

func (p *Pipeline) load(ctx context.Context, key Key, sizeHint int) (image.Image, error) {
	// Double-check: the previous flight for this key may have just
	// populated memory between our lookup and acquiring the flight.
	if img, ok := p.memory.Get(key); ok {
		p.memoryHits.Add(1)
		p.metrics.request(resultMemory)
		return img, nil
	}

	if img, ok := p.loadDisk(key, sizeHint); ok {
		p.diskHits.Add(1)
		p.metrics.request(resultDisk)
		return img, nil
	}

	if !p.conn.Online() {
		p.failures.Add(1)
		p.metrics.request(resultError)
		return nil, fmt.Errorf("load %s: %w", key.URL, connectivity.ErrOffline)
	}

	p.fetches.Add(1)
	start := time.Now()
	resp, err := p.fetcher.Fetch(ctx, key.URL)
	p.metrics.fetchDuration(time.Since(start).Seconds())
	if err != nil {
		p.failures.Add(1)
		p.metrics.request(resultError)
		return nil, err
	}

	img, err := p.codec.Decode(resp.Data, sizeHint)
	if err != nil {
		p.failures.Add(1)
		p.metrics.request(resultError)
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidMedia, key.URL, err)
	}

	p.memory.Put(key, img, imaging.Cost(img))
	p.storeAsync(key, img, resp.Data)
	p.metrics.request(resultFetch)
	return img, nil
}

func (p *Pipeline) loadDisk(key Key, sizeHint int) (image.Image, bool) {
	if p.disk == nil {
		return nil, false
	}
	data, ok := p.disk.Load(key)
	if !ok {
		return nil, false
	}
	img, err := p.codec.Decode(data, sizeHint)
	if err != nil {
		// Treat a corrupt entry as a miss; the fetch path overwrites it.
		p.logger.Warn("undecodable disk entry", "url", key.URL, "variant", key.Variant, "error", err)
		p.metrics.diskError()
		return nil, false
	}
	p.memory.Put(key, img, imaging.Cost(img))
	return img, true
}

func (p *Pipeline) storeAsync(key Key, img image.Image, src []byte) {
	if p.disk == nil {
		return
	}
	p.writesMu.RLock()
	defer p.writesMu.RUnlock()
	p.writes.Go(func() {
		data, format := p.codec.Encode(img, src)
		if len(data) == 0 {
			return
		}
		if err := p.disk.Store(key, data); err != nil {
			p.metrics.diskError()
			p.logger.Debug("disk store failed", "url", key.URL, "error", err)
			return
		}
		p.logger.Debug("stored image", "url", key.URL, "variant", key.Variant, "format", string(format), "bytes", len(data))
	})
}

// ClearMemory empties the memory tier.
func (p *Pipeline) ClearMemory() {
	p.memory.Clear()
}

// ClearDisk empties the disk tier. Failures are logged, not returned.
func (p *Pipeline) ClearDisk() {
	if p.disk == nil {
		return
	}
	p.Flush()
	if err := p.disk.Clear(); err != nil {
		p.metrics.diskError()
		p.logger.Warn("disk clear failed", "error", err)
	}
}

// ClearAll empties both tiers.
func (p *Pipeline) ClearAll() {
	p.ClearMemory()
	p.ClearDisk()
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		MemoryHits: p.memoryHits.Load(),
		DiskHits:   p.diskHits.Load(),
		Fetches:    p.fetches.Load(),
		Coalesced:  p.coalesced.Load(),
		Failures:   p.failures.Load(),
	}
}

// Flush waits for pending background disk writes.
func (p *Pipeline) Flush() {
	p.writesMu.Lock()
	defer p.writesMu.Unlock()
	p.writes.Wait()
}

// Close waits for pending background disk writes.
func (p *Pipeline) Close() error {
	p.Flush()
	return nil
}
