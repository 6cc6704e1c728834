// Package memory provides the in-process tier of decoded images.
package memory

import (
	"container/list"
	"image"
	"sync"

	"github.com/meigma/swipe/cache"
)

// Default limits.
const (
	DefaultMaxCost    int64 = 64 << 20 // 64 MB
	DefaultMaxEntries       = 80
)

// Cache is a least-recently-used cache of decoded images bounded by total
// cost and, optionally, by entry count. A hit or a put makes an entry the
// most recently used. It is safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	maxCost    int64
	maxEntries int
	cost       int64
	entries    map[cache.Key]*list.Element
	order      *list.List // front = most recently used
}

type entry struct {
	key  cache.Key
	img  image.Image
	cost int64
}

// Interface compliance.
var _ cache.MemoryTier = (*Cache)(nil)

// Option configures a Cache.
type Option func(*Cache)

// WithMaxCost sets the total cost budget in bytes.
func WithMaxCost(n int64) Option {
	return func(c *Cache) {
		c.maxCost = n
	}
}

// WithMaxEntries sets the entry count ceiling. Zero disables the ceiling.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		c.maxEntries = n
	}
}

// New creates an empty Cache. A non-positive cost budget falls back to
// DefaultMaxCost.
func New(opts ...Option) *Cache {
	c := &Cache{
		maxCost:    DefaultMaxCost,
		maxEntries: DefaultMaxEntries,
		entries:    make(map[cache.Key]*list.Element),
		order:      list.New(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	if c.maxCost <= 0 {
		c.maxCost = DefaultMaxCost
	}
	if c.maxEntries < 0 {
		c.maxEntries = 0
	}
	return c
}

// Get returns the image stored under key.
func (c *Cache) Get(key cache.Key) (image.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*entry).img, true //nolint:errcheck // type is guaranteed by Put
}

// Put stores img under key, replacing any existing entry, then evicts least
// recently used entries until both limits hold. An image whose cost alone
// exceeds the budget is not retained.
func (c *Cache) Put(key cache.Key, img image.Image, cost int64) {
	if img == nil {
		return
	}
	if cost < 0 {
		cost = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem)
	}
	if cost > c.maxCost {
		return
	}

	elem := c.order.PushFront(&entry{key: key, img: img, cost: cost})
	c.entries[key] = elem
	c.cost += cost

	for c.overLimitLocked() {
		oldest := c.order.Back()
		if oldest == nil || oldest == elem {
			break
		}
		c.removeLocked(oldest)
	}
}

// Remove deletes the entry for key if present.
func (c *Cache) Remove(key cache.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem)
	}
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[cache.Key]*list.Element)
	c.order.Init()
	c.cost = 0
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Cost returns the total cost of retained entries.
func (c *Cache) Cost() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cost
}

// MaxCost returns the configured cost budget.
func (c *Cache) MaxCost() int64 {
	return c.maxCost
}

func (c *Cache) overLimitLocked() bool {
	if c.cost > c.maxCost {
		return true
	}
	return c.maxEntries > 0 && c.order.Len() > c.maxEntries
}

func (c *Cache) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry) //nolint:errcheck // type is guaranteed by Put
	c.order.Remove(elem)
	delete(c.entries, e.key)
	c.cost -= e.cost
}
