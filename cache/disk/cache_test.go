package disk

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/meigma/swipe/cache"
)

func testKey(name string) cache.Key {
	return cache.NewKey("https://example.com/"+name, 0)
}

func TestCacheStoreLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	content := []byte("hello")
	key := testKey("a.jpg")
	if err := c.Store(key, content); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	got, ok := c.Load(key)
	if !ok {
		t.Fatal("Load() ok = false, want true")
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("Load() content = %q, want %q", got, content)
	}

	path := filepath.Join(dir, FileName(key))
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected cache file at %s: %v", path, err)
	}
	if !strings.HasSuffix(path, ".img") || len(filepath.Base(path)) != 64+len(".img") {
		t.Fatalf("unexpected file name %s", filepath.Base(path))
	}
}

func TestCacheVariantFiles(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	url := "https://example.com/cat.jpg"
	full := cache.NewKey(url, 0)
	thumb := cache.NewKey(url, 128)
	if FileName(full) == FileName(thumb) {
		t.Fatal("variants must map to distinct files")
	}

	if err := c.Store(thumb, []byte("thumb")); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if _, ok := c.Load(full); ok {
		t.Fatal("Load(full) ok = true, want false")
	}
}

func TestCacheLoadMissing(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got, ok := c.Load(testKey("missing")); ok {
		t.Fatalf("Load() ok = true, want false (content %q)", got)
	}
}

func TestCacheLoadTouchesModTime(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	touched := time.Now().Add(time.Hour).Truncate(time.Second)
	c.now = func() time.Time { return touched }

	key := testKey("touch")
	if err := c.Store(key, []byte("x")); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if _, ok := c.Load(key); !ok {
		t.Fatal("Load() ok = false, want true")
	}

	info, err := os.Stat(filepath.Join(dir, FileName(key)))
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if !info.ModTime().Equal(touched) {
		t.Fatalf("ModTime() = %v, want %v", info.ModTime(), touched)
	}
}

func TestCacheEvictsOldestFirst(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir, WithMaxBytes(250))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	base := time.Now().Truncate(time.Second)
	c.now = func() time.Time { return base.Add(-time.Hour) }

	payload := bytes.Repeat([]byte("x"), 100)
	k1, k2, k3 := testKey("1"), testKey("2"), testKey("3")

	mustStore(t, c, k1, payload)
	setModTime(t, dir, k1, base.Add(-3*time.Hour))
	mustStore(t, c, k2, payload)
	setModTime(t, dir, k2, base.Add(-2*time.Hour))

	// Touch k1 so k2 becomes the least recently used entry.
	if _, ok := c.Load(k1); !ok {
		t.Fatal("Load(k1) ok = false, want true")
	}

	mustStore(t, c, k3, payload)

	if _, ok := c.Load(k2); ok {
		t.Fatal("k2 should have been evicted")
	}
	for _, k := range []cache.Key{k1, k3} {
		if _, ok := c.Load(k); !ok {
			t.Fatalf("%s should have survived eviction", k.URL)
		}
	}

	size, err := dirSize(dir)
	if err != nil {
		t.Fatalf("dirSize() error = %v", err)
	}
	if size > 250 {
		t.Fatalf("dir size = %d, want <= 250", size)
	}
	if c.SizeBytes() != size {
		t.Fatalf("SizeBytes() = %d, want %d", c.SizeBytes(), size)
	}
}

func TestCacheSettlesUnderBudget(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	const budget = 1000
	c, err := New(dir, WithMaxBytes(budget))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	payload := bytes.Repeat([]byte("y"), 64)
	for i := range 50 {
		mustStore(t, c, testKey(fmt.Sprintf("%d", i)), payload)
	}

	size, err := dirSize(dir)
	if err != nil {
		t.Fatalf("dirSize() error = %v", err)
	}
	if size > budget {
		t.Fatalf("dir size = %d, want <= %d", size, budget)
	}
	// The most recent write always survives its own prune.
	if _, ok := c.Load(testKey("49")); !ok {
		t.Fatal("most recent entry should survive")
	}
}

func TestCacheOversizedEntryNotRetained(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	const budget = 100
	c, err := New(dir, WithMaxBytes(budget))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	small := testKey("small")
	mustStore(t, c, small, bytes.Repeat([]byte("s"), 40))
	key := testKey("big")
	mustStore(t, c, key, bytes.Repeat([]byte("p"), 30))

	if err := c.Store(key, make([]byte, 500)); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if _, ok := c.Load(key); ok {
		t.Fatal("oversized entry should not be retained")
	}
	if _, ok := c.Load(small); !ok {
		t.Fatal("unrelated entry should survive")
	}
	size, err := dirSize(dir)
	if err != nil {
		t.Fatalf("dirSize() error = %v", err)
	}
	if size != 40 {
		t.Fatalf("dir size = %d, want 40", size)
	}
}

func TestCacheConcurrentStores(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir, WithMaxBytes(2048))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	payload := bytes.Repeat([]byte("z"), 128)
	var wg sync.WaitGroup
	for g := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 25 {
				// Errors are tolerated here: concurrent eviction is best-effort.
				_ = c.Store(testKey(fmt.Sprintf("%d-%d", g, i)), payload)
			}
		}()
	}
	wg.Wait()

	if _, err := c.Prune(c.MaxBytes()); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	size, err := dirSize(dir)
	if err != nil {
		t.Fatalf("dirSize() error = %v", err)
	}
	if size > 2048 {
		t.Fatalf("dir size = %d, want <= 2048", size)
	}
}

func TestCacheClear(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "images")
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	mustStore(t, c, testKey("a"), []byte("a"))

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, ok := c.Load(testKey("a")); ok {
		t.Fatal("Load() after Clear ok = true, want false")
	}

	// Clearing a directory that vanished underneath the cache is not an error.
	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("RemoveAll() error = %v", err)
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear() on missing dir error = %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("Clear() should recreate dir: %v", err)
	}
	if c.SizeBytes() != 0 {
		t.Fatalf("SizeBytes() = %d, want 0", c.SizeBytes())
	}
}

func TestCacheIgnoresForeignFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), bytes.Repeat([]byte("n"), 500), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	c, err := New(dir, WithMaxBytes(100))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.SizeBytes() != 0 {
		t.Fatalf("SizeBytes() = %d, want 0", c.SizeBytes())
	}
	mustStore(t, c, testKey("a"), []byte("a"))
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Fatalf("foreign file should not be pruned: %v", err)
	}
}

func TestNewEmptyDir(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("New() error = nil, want error")
	}
	if _, err := New(t.TempDir(), WithMaxBytes(-1)); err == nil {
		t.Fatal("New() with negative max error = nil, want error")
	}
}

func mustStore(t *testing.T, c *Cache, key cache.Key, data []byte) {
	t.Helper()
	if err := c.Store(key, data); err != nil {
		t.Fatalf("Store(%s) error = %v", key.URL, err)
	}
}

func setModTime(t *testing.T, dir string, key cache.Key, mt time.Time) {
	t.Helper()
	if err := os.Chtimes(filepath.Join(dir, FileName(key)), mt, mt); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}
}
