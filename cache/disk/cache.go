// Package disk provides the persistent tier of encoded image bytes.
//
// Entries are flat files named by the SHA-256 digest of the cache key.
// File modification time is the recency signal: loads touch it and eviction
// removes the oldest files first. Size accounting scans the directory, so it
// is approximate under concurrent writers; racing writes may be lost but are
// never observed half-written.
package disk

import (
	_ "crypto/sha256" // register the canonical digest algorithm
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/swipe/cache"
)

const (
	// DefaultMaxBytes is the default size budget for the tier.
	DefaultMaxBytes int64 = 250 << 20 // 250 MB

	defaultDirPerm = 0o700
	entryExt       = ".img"
	tempPrefix     = ".tmp-"
)

// ErrDisk wraps every error returned by Cache.
var ErrDisk = errors.New("disk: cache error")

// Cache implements cache.DiskTier using the local filesystem.
// The cache is safe for concurrent use.
type Cache struct {
	dir      string       // root directory for cached files
	dirPerm  os.FileMode  // permissions for the cache directory
	maxBytes int64        // maximum cache size (0 = unlimited)
	bytes    atomic.Int64 // size observed by the most recent scan
	pruneMu  sync.Mutex   // serializes prune operations
	now      func() time.Time
}

// Interface compliance.
var _ cache.DiskTier = (*Cache)(nil)

// Option configures a disk cache.
type Option func(*Cache)

// WithDirPerm sets the directory permissions used for the cache directory.
func WithDirPerm(mode os.FileMode) Option {
	return func(c *Cache) {
		c.dirPerm = mode
	}
}

// WithMaxBytes sets the maximum cache size in bytes.
// Values < 0 are invalid. Use 0 to disable the limit.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) {
		c.maxBytes = n
	}
}

// New creates a disk-backed cache rooted at dir.
func New(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("cache dir is empty")
	}
	c := &Cache{
		dir:      dir,
		dirPerm:  defaultDirPerm,
		maxBytes: DefaultMaxBytes,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	if c.maxBytes < 0 {
		return nil, errors.New("max bytes must be >= 0")
	}
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return nil, err
	}
	size, err := dirSize(dir)
	if err != nil {
		return nil, err
	}
	c.bytes.Store(size)
	return c, nil
}

// Dir returns the backing directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Load returns the stored bytes for key and touches the file's modification
// time. Failure to touch is ignored.
func (c *Cache) Load(key cache.Key) ([]byte, bool) {
	path := c.path(key)
	data, err := os.ReadFile(path) //nolint:gosec // path is derived from a digest, not user input
	if err != nil {
		return nil, false
	}
	now := c.now()
	_ = os.Chtimes(path, now, now)
	return data, true
}

// Store writes data under key, replacing any previous entry, then evicts the
// least recently touched entries while the directory exceeds the budget.
// Entries larger than the whole budget are not retained; any previous entry
// for key is removed instead.
func (c *Cache) Store(key cache.Key, data []byte) error {
	if c.maxBytes > 0 && int64(len(data)) > c.maxBytes {
		return c.Delete(key)
	}
	path := c.path(key)
	if err := os.MkdirAll(c.dir, c.dirPerm); err != nil {
		return fmt.Errorf("%w: store %s: %w", ErrDisk, key.URL, err)
	}

	tmp, err := os.CreateTemp(c.dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("%w: store %s: %w", ErrDisk, key.URL, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: store %s: %w", ErrDisk, key.URL, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: store %s: %w", ErrDisk, key.URL, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: store %s: %w", ErrDisk, key.URL, err)
	}

	if c.maxBytes <= 0 {
		c.bytes.Add(int64(len(data)))
		return nil
	}
	if _, err := c.prune(c.maxBytes, path); err != nil {
		return fmt.Errorf("%w: prune: %w", ErrDisk, err)
	}
	return nil
}

// Delete removes the entry for key. Missing entries are a no-op.
func (c *Cache) Delete(key cache.Key) error {
	if err := os.Remove(c.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: delete %s: %w", ErrDisk, key.URL, err)
	}
	return nil
}

// Clear removes the backing directory and recreates it empty.
func (c *Cache) Clear() error {
	c.pruneMu.Lock()
	defer c.pruneMu.Unlock()

	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("%w: clear: %w", ErrDisk, err)
	}
	if err := os.MkdirAll(c.dir, c.dirPerm); err != nil {
		return fmt.Errorf("%w: clear: %w", ErrDisk, err)
	}
	c.bytes.Store(0)
	return nil
}

// MaxBytes returns the configured cache size limit (0 = unlimited).
func (c *Cache) MaxBytes() int64 {
	return c.maxBytes
}

// SizeBytes returns the cache size observed by the most recent scan.
func (c *Cache) SizeBytes() int64 {
	return c.bytes.Load()
}

// Prune removes the least recently touched entries until the cache is at or
// below targetBytes. It scans the whole directory and returns the bytes freed.
func (c *Cache) Prune(targetBytes int64) (int64, error) {
	return c.prune(targetBytes, "")
}

func (c *Cache) prune(targetBytes int64, keep string) (int64, error) {
	if targetBytes < 0 {
		targetBytes = 0
	}
	c.pruneMu.Lock()
	defer c.pruneMu.Unlock()

	freed, remaining, err := pruneDir(c.dir, targetBytes, keep)
	if err != nil {
		return 0, err
	}
	c.bytes.Store(remaining)
	return freed, nil
}

func (c *Cache) path(key cache.Key) string {
	return filepath.Join(c.dir, FileName(key))
}

// FileName returns the name of the file that stores key.
func FileName(key cache.Key) string {
	return digest.FromString(key.String()).Encoded() + entryExt
}
