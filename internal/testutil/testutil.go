// Package testutil provides fakes and fixtures shared by package tests.
package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/meigma/swipe/cache"
	"github.com/meigma/swipe/feed"
	swipehttp "github.com/meigma/swipe/http"
)

// PNG returns a w x h PNG. Transparent images have a fully transparent
// top-left pixel.
func PNG(tb testing.TB, w, h int, transparent bool) []byte {
	tb.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	if transparent {
		img.Set(0, 0, color.NRGBA{})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		tb.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

// JPEG returns an opaque w x h JPEG.
func JPEG(tb testing.TB, w, h int) []byte {
	tb.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x40, A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		tb.Fatalf("jpeg.Encode() error = %v", err)
	}
	return buf.Bytes()
}

// MockFetcher serves fixed bodies by URL and counts fetches.
type MockFetcher struct {
	mu     sync.Mutex
	bodies map[string][]byte
	calls  map[string]int
	total  atomic.Int64

	// Gate, when non-nil, blocks every fetch until it is closed.
	Gate chan struct{}
	// Started, when non-nil, receives the URL of every fetch as it begins.
	Started chan string
}

// NewMockFetcher returns a fetcher that serves bodies.
func NewMockFetcher(bodies map[string][]byte) *MockFetcher {
	if bodies == nil {
		bodies = make(map[string][]byte)
	}
	return &MockFetcher{bodies: bodies, calls: make(map[string]int)}
}

// Set registers the body served for url.
func (f *MockFetcher) Set(url string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[url] = body
}

// Fetch implements cache.Fetcher. Unknown URLs fail with a 404 NetworkError.
func (f *MockFetcher) Fetch(ctx context.Context, url string) (*swipehttp.Response, error) {
	f.total.Add(1)
	f.mu.Lock()
	f.calls[url]++
	body, ok := f.bodies[url]
	f.mu.Unlock()

	if f.Started != nil {
		f.Started <- url
	}
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return nil, &swipehttp.NetworkError{URL: url, Err: ctx.Err()}
		}
	}
	if !ok {
		return nil, &swipehttp.NetworkError{URL: url, StatusCode: 404, Err: errors.New("not found")}
	}
	return &swipehttp.Response{Data: body, StatusCode: 200}, nil
}

// Calls returns the number of fetches of url.
func (f *MockFetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// Total returns the number of fetches of any URL.
func (f *MockFetcher) Total() int64 {
	return f.total.Load()
}

// MockDisk implements cache.DiskTier in memory.
type MockDisk struct {
	mu     sync.RWMutex
	data   map[cache.Key][]byte
	stores atomic.Int64

	// Fail makes every Store and Clear return an error.
	Fail atomic.Bool
}

// NewMockDisk constructs an empty in-memory disk tier.
func NewMockDisk() *MockDisk {
	return &MockDisk{data: make(map[cache.Key][]byte)}
}

// Load implements cache.DiskTier.
func (d *MockDisk) Load(key cache.Key) ([]byte, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	data, ok := d.data[key]
	return data, ok
}

// Store implements cache.DiskTier.
func (d *MockDisk) Store(key cache.Key, data []byte) error {
	d.stores.Add(1)
	if d.Fail.Load() {
		return errors.New("mock disk: write failed")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data[key] = append([]byte(nil), data...)
	return nil
}

// Clear implements cache.DiskTier.
func (d *MockDisk) Clear() error {
	if d.Fail.Load() {
		return errors.New("mock disk: clear failed")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data = make(map[cache.Key][]byte)
	return nil
}

// Len returns the number of stored entries.
func (d *MockDisk) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.data)
}

// Stores returns the number of Store calls.
func (d *MockDisk) Stores() int64 {
	return d.stores.Load()
}

// ScriptedDiscovery returns candidates for a fixed sequence of ids, then
// fails with ErrScriptDone. Candidate URLs are derived from the id.
type ScriptedDiscovery struct {
	mu    sync.Mutex
	ids   []string
	next  int
	calls int

	// BeforeCall, when set, runs before each call with the 1-based call number.
	BeforeCall func(call int)
	// Repeat cycles through ids forever instead of failing at the end.
	Repeat bool
}

// ErrScriptDone is returned once a ScriptedDiscovery runs out of ids.
var ErrScriptDone = errors.New("script exhausted")

// NewScriptedDiscovery returns a discovery that yields ids in order.
func NewScriptedDiscovery(ids ...string) *ScriptedDiscovery {
	return &ScriptedDiscovery{ids: ids}
}

// Next implements feed.Discovery.
func (d *ScriptedDiscovery) Next(ctx context.Context) (feed.Candidate, error) {
	d.mu.Lock()
	d.calls++
	call := d.calls
	hook := d.BeforeCall
	d.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if err := ctx.Err(); err != nil {
		return feed.Candidate{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.next >= len(d.ids) {
		if !d.Repeat || len(d.ids) == 0 {
			return feed.Candidate{}, ErrScriptDone
		}
		d.next = 0
	}
	id := d.ids[d.next]
	d.next++
	return Candidate(id), nil
}

// Calls returns how many times Next was called.
func (d *ScriptedDiscovery) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Candidate returns the candidate the fakes use for id.
func Candidate(id string) feed.Candidate {
	return feed.Candidate{ID: id, URL: fmt.Sprintf("https://images.test/%s.jpg", id), Source: "test"}
}

// RecordingPrefetcher records prefetched URLs in order.
type RecordingPrefetcher struct {
	mu   sync.Mutex
	urls []string

	// Block, when non-nil, makes each Prefetch wait until it is closed or
	// the context ends.
	Block chan struct{}
}

// Prefetch implements feed.Prefetcher.
func (p *RecordingPrefetcher) Prefetch(ctx context.Context, url string, sizeHint int) {
	p.mu.Lock()
	p.urls = append(p.urls, url)
	p.mu.Unlock()
	if p.Block != nil {
		select {
		case <-p.Block:
		case <-ctx.Done():
		}
	}
}

// URLs returns the prefetched URLs in call order.
func (p *RecordingPrefetcher) URLs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.urls...)
}
