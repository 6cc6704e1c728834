package cache_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/swipe/cache"
	"github.com/meigma/swipe/cache/disk"
	"github.com/meigma/swipe/cache/memory"
	"github.com/meigma/swipe/connectivity"
	swipehttp "github.com/meigma/swipe/http"
	"github.com/meigma/swipe/imaging"
	"github.com/meigma/swipe/internal/testutil"
)

const catURL = "https://images.test/cat.png"

func newPipeline(t *testing.T, mem cache.MemoryTier, dt cache.DiskTier, f cache.Fetcher, opts ...cache.Option) *cache.Pipeline {
	t.Helper()
	p, err := cache.NewPipeline(mem, dt, f, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestImage_FetchPopulatesTiers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fetcher := testutil.NewMockFetcher(map[string][]byte{catURL: testutil.PNG(t, 20, 10, false)})
	mem := memory.New()
	dt := testutil.NewMockDisk()
	p := newPipeline(t, mem, dt, fetcher)

	img, err := p.Image(ctx, catURL, 0)
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())

	p.Flush()
	assert.Equal(t, 1, mem.Len())
	assert.Equal(t, 1, dt.Len())
	_, ok := dt.Load(cache.NewKey(catURL, 0))
	assert.True(t, ok)

	again, err := p.Image(ctx, catURL, 0)
	require.NoError(t, err)
	assert.Same(t, img, again)
	assert.Equal(t, int64(1), fetcher.Total())
	assert.Equal(t, cache.Stats{MemoryHits: 1, Fetches: 1}, p.Stats())
}

func TestImage_DiskHitSkipsNetwork(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dt := testutil.NewMockDisk()
	first := newPipeline(t, memory.New(), dt,
		testutil.NewMockFetcher(map[string][]byte{catURL: testutil.PNG(t, 20, 10, false)}))
	_, err := first.Image(ctx, catURL, 0)
	require.NoError(t, err)
	first.Flush()

	fetcher := testutil.NewMockFetcher(nil)
	mem := memory.New()
	second := newPipeline(t, mem, dt, fetcher)

	img, err := second.Image(ctx, catURL, 0)
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())
	assert.Equal(t, int64(0), fetcher.Total())
	assert.Equal(t, int64(1), second.Stats().DiskHits)
	assert.Equal(t, 1, mem.Len(), "disk hits are promoted to memory")
}

func TestImage_ConcurrentRequestsCoalesce(t *testing.T) {
	t.Parallel()
	const n = 16
	fetcher := testutil.NewMockFetcher(map[string][]byte{catURL: testutil.PNG(t, 8, 8, false)})
	fetcher.Gate = make(chan struct{})
	fetcher.Started = make(chan string, n)
	p := newPipeline(t, memory.New(), testutil.NewMockDisk(), fetcher)

	var g errgroup.Group
	for range n {
		g.Go(func() error {
			_, err := p.Image(context.Background(), catURL, 64)
			return err
		})
	}
	<-fetcher.Started
	close(fetcher.Gate)
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, fetcher.Calls(catURL))
	stats := p.Stats()
	assert.Equal(t, int64(1), stats.Fetches)
	assert.Equal(t, int64(n-1), stats.Coalesced+stats.MemoryHits)
}

func TestImage_VariantsAreDistinct(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fetcher := testutil.NewMockFetcher(map[string][]byte{catURL: testutil.PNG(t, 40, 20, false)})
	mem := memory.New()
	p := newPipeline(t, mem, testutil.NewMockDisk(), fetcher)

	full, err := p.Image(ctx, catURL, 0)
	require.NoError(t, err)
	small, err := p.Image(ctx, catURL, 10)
	require.NoError(t, err)

	assert.Equal(t, 40, full.Bounds().Dx())
	assert.Equal(t, 10, small.Bounds().Dx())
	assert.Equal(t, 5, small.Bounds().Dy())
	assert.Equal(t, 2, fetcher.Calls(catURL))
	assert.Equal(t, 2, mem.Len())
}

func TestImage_InvalidMedia(t *testing.T) {
	t.Parallel()
	fetcher := testutil.NewMockFetcher(map[string][]byte{catURL: []byte("<html>nope</html>")})
	mem := memory.New()
	dt := testutil.NewMockDisk()
	p := newPipeline(t, mem, dt, fetcher)

	_, err := p.Image(context.Background(), catURL, 0)
	require.ErrorIs(t, err, cache.ErrInvalidMedia)
	require.ErrorIs(t, err, imaging.ErrDecode)

	p.Flush()
	assert.Equal(t, 0, mem.Len())
	assert.Equal(t, 0, dt.Len())
	assert.Equal(t, int64(1), p.Stats().Failures)
}

func TestImage_NetworkError(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, memory.New(), nil, testutil.NewMockFetcher(nil))

	_, err := p.Image(context.Background(), catURL, 0)
	require.ErrorIs(t, err, swipehttp.ErrNetwork)
	var ne *swipehttp.NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, 404, ne.StatusCode)
}

func TestImage_OfflineFailsFastButServesCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dt := testutil.NewMockDisk()
	online := newPipeline(t, memory.New(), dt,
		testutil.NewMockFetcher(map[string][]byte{catURL: testutil.PNG(t, 8, 8, false)}))
	_, err := online.Image(ctx, catURL, 0)
	require.NoError(t, err)
	online.Flush()

	fetcher := testutil.NewMockFetcher(map[string][]byte{"https://images.test/other.png": testutil.PNG(t, 8, 8, false)})
	conn := connectivity.NewStatic(false)
	p := newPipeline(t, memory.New(), dt, fetcher, cache.WithConnectivity(conn))

	_, err = p.Image(ctx, "https://images.test/other.png", 0)
	require.ErrorIs(t, err, connectivity.ErrOffline)
	assert.Equal(t, int64(0), fetcher.Total())

	_, err = p.Image(ctx, catURL, 0)
	require.NoError(t, err, "cached images are served offline")

	conn.Set(true)
	_, err = p.Image(ctx, "https://images.test/other.png", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fetcher.Total())
}

func TestImage_CallerCancelDoesNotAffectOthers(t *testing.T) {
	t.Parallel()
	fetcher := testutil.NewMockFetcher(map[string][]byte{catURL: testutil.PNG(t, 8, 8, false)})
	fetcher.Gate = make(chan struct{})
	fetcher.Started = make(chan string, 1)
	p := newPipeline(t, memory.New(), nil, fetcher)

	ctx1, cancel1 := context.WithCancel(context.Background())
	errs1 := make(chan error, 1)
	go func() {
		_, err := p.Image(ctx1, catURL, 0)
		errs1 <- err
	}()
	<-fetcher.Started

	errs2 := make(chan error, 1)
	go func() {
		_, err := p.Image(context.Background(), catURL, 0)
		errs2 <- err
	}()

	cancel1()
	require.ErrorIs(t, <-errs1, context.Canceled)

	close(fetcher.Gate)
	require.NoError(t, <-errs2)
	assert.Equal(t, 1, fetcher.Calls(catURL))
}

func TestImage_CanceledBeforeStart(t *testing.T) {
	t.Parallel()
	fetcher := testutil.NewMockFetcher(map[string][]byte{catURL: testutil.PNG(t, 8, 8, false)})
	p := newPipeline(t, memory.New(), nil, fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Image(ctx, catURL, 0)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), fetcher.Total())

	_, err = p.Image(context.Background(), "", 0)
	require.Error(t, err)
}

func TestPrefetch_SwallowsErrors(t *testing.T) {
	t.Parallel()
	fetcher := testutil.NewMockFetcher(map[string][]byte{catURL: testutil.PNG(t, 8, 8, false)})
	mem := memory.New()
	p := newPipeline(t, mem, nil, fetcher)

	p.Prefetch(context.Background(), "https://images.test/missing.png", 0)
	assert.Equal(t, 0, mem.Len())

	p.Prefetch(context.Background(), catURL, 0)
	assert.Equal(t, 1, mem.Len())
}

func TestImage_DiskFailuresAbsorbed(t *testing.T) {
	t.Parallel()
	metrics, err := cache.NewMetrics(nil)
	require.NoError(t, err)
	dt := testutil.NewMockDisk()
	dt.Fail.Store(true)
	fetcher := testutil.NewMockFetcher(map[string][]byte{catURL: testutil.PNG(t, 8, 8, false)})
	p := newPipeline(t, memory.New(), dt, fetcher, cache.WithMetrics(metrics))

	_, err = p.Image(context.Background(), catURL, 0)
	require.NoError(t, err)
	p.Flush()
	assert.Equal(t, int64(1), dt.Stores())
	assert.InDelta(t, 1, promtestutil.ToFloat64(metrics.DiskErrors), 0)
	assert.InDelta(t, 1, promtestutil.ToFloat64(metrics.Requests.WithLabelValues("fetch")), 0)

	p.ClearDisk()
	assert.InDelta(t, 2, promtestutil.ToFloat64(metrics.DiskErrors), 0)
}

func TestImage_CorruptDiskEntryRefetched(t *testing.T) {
	t.Parallel()
	dt := testutil.NewMockDisk()
	require.NoError(t, dt.Store(cache.NewKey(catURL, 0), []byte("garbage")))
	fetcher := testutil.NewMockFetcher(map[string][]byte{catURL: testutil.PNG(t, 8, 8, false)})
	p := newPipeline(t, memory.New(), dt, fetcher)

	_, err := p.Image(context.Background(), catURL, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fetcher.Total())

	p.Flush()
	data, ok := dt.Load(cache.NewKey(catURL, 0))
	require.True(t, ok)
	_, err = imaging.Decode(data, 0)
	require.NoError(t, err, "corrupt entry is overwritten")
}

func TestClearAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fetcher := testutil.NewMockFetcher(map[string][]byte{catURL: testutil.PNG(t, 8, 8, false)})
	mem := memory.New()
	dt := testutil.NewMockDisk()
	p := newPipeline(t, mem, dt, fetcher)

	_, err := p.Image(ctx, catURL, 0)
	require.NoError(t, err)
	p.ClearAll()
	assert.Equal(t, 0, mem.Len())
	assert.Equal(t, 0, dt.Len())

	_, err = p.Image(ctx, catURL, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), fetcher.Total())

	p.ClearMemory()
	assert.Equal(t, 0, mem.Len())
	p.Flush()
	assert.Equal(t, 1, dt.Len())
}

func TestPipeline_WithDiskCache(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "images")
	dc, err := disk.New(dir)
	require.NoError(t, err)
	fetcher := testutil.NewMockFetcher(map[string][]byte{catURL: testutil.JPEG(t, 32, 16)})
	p := newPipeline(t, memory.New(), dc, fetcher)

	_, err = p.Image(context.Background(), catURL, 8)
	require.NoError(t, err)
	p.Flush()

	_, err = os.Stat(filepath.Join(dir, disk.FileName(cache.NewKey(catURL, 8))))
	require.NoError(t, err)
	assert.Positive(t, dc.SizeBytes())
}

func TestNewPipeline_Validation(t *testing.T) {
	t.Parallel()
	_, err := cache.NewPipeline(nil, nil, testutil.NewMockFetcher(nil))
	require.Error(t, err)
	_, err = cache.NewPipeline(memory.New(), nil, nil)
	require.Error(t, err)

	p, err := cache.NewPipeline(memory.New(), nil, testutil.NewMockFetcher(nil),
		nil,
		cache.WithLogger(nil),
		cache.WithCodec(nil),
		cache.WithConnectivity(nil),
	)
	require.NoError(t, err)
	_, err = p.Image(context.Background(), catURL, 0)
	assert.True(t, errors.Is(err, swipehttp.ErrNetwork))
}
