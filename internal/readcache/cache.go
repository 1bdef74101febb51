// Package readcache memoizes list pages on the client side. Every entry
// shares one freshness watermark: a page is served from memory only while
// the most recent fetch is younger than the TTL. Any mutation clears the
// whole cache.
package readcache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

const DefaultTTL = 5 * time.Minute

// Key identifies one list page.
type Key struct {
	Page   int
	Limit  int
	Filter string
}

func (k Key) String() string {
	return fmt.Sprintf("%d-%d-%s", k.Page, k.Limit, k.Filter)
}

type Options[V any] struct {
	TTL time.Duration
	Now func() time.Time
	// Clone copies a value on its way out of the cache so callers cannot
	// edit the stored snapshot. Nil hands out the stored value as is.
	Clone func(V) V
}

// FetchFn loads a page from the source of truth.
type FetchFn[V any] func(ctx context.Context) (V, error)

// Cache is safe for concurrent use.
type Cache[V any] struct {
	entries *xsync.MapOf[Key, V]
	// lastFetch holds unix nanoseconds of the latest Put, 0 when never set.
	lastFetch atomic.Int64
	// generation counts Clears; a fetch started before a Clear is not stored.
	generation atomic.Uint64
	// mu orders writes against Clear. Reads do not take it.
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	clone func(V) V
}

func New[V any](opts Options[V]) *Cache[V] {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache[V]{
		entries: xsync.NewMapOf[Key, V](),
		ttl:     opts.TTL,
		now:     opts.Now,
		clone:   opts.Clone,
	}
}

// Get returns the cached value for key while the watermark is fresh.
func (c *Cache[V]) Get(key Key) (V, bool) {
	var zero V
	if !c.fresh() {
		return zero, false
	}
	value, ok := c.entries.Load(key)
	if !ok {
		return zero, false
	}
	return c.copyOut(value), true
}

// Put stores value and moves the watermark to now.
func (c *Cache[V]) Put(key Key, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(key, value)
}

// Clear drops every entry and resets the watermark. Clearing an empty cache
// is a no-op.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation.Add(1)
	c.entries.Clear()
	c.lastFetch.Store(0)
}

// Len reports the number of stored entries, fresh or not.
func (c *Cache[V]) Len() int {
	return c.entries.Size()
}

// GetOrFetch serves key from memory when fresh unless force is set; otherwise
// it calls fetch and stores a successful result. Fetch errors are returned
// and nothing is cached. A result whose fetch overlapped a Clear is returned
// but not stored, so a page read before a mutation never outlives it.
func (c *Cache[V]) GetOrFetch(ctx context.Context, key Key, force bool, fetch FetchFn[V]) (V, error) {
	if !force {
		if value, ok := c.Get(key); ok {
			return value, nil
		}
	}
	generation := c.generation.Load()
	value, err := fetch(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	c.mu.Lock()
	if c.generation.Load() == generation {
		c.store(key, value)
	}
	c.mu.Unlock()
	return c.copyOut(value), nil
}

// store requires c.mu.
func (c *Cache[V]) store(key Key, value V) {
	c.entries.Store(key, value)
	c.lastFetch.Store(c.now().UnixNano())
}

func (c *Cache[V]) copyOut(value V) V {
	if c.clone == nil {
		return value
	}
	return c.clone(value)
}

func (c *Cache[V]) fresh() bool {
	last := c.lastFetch.Load()
	if last == 0 {
		return false
	}
	return c.now().Sub(time.Unix(0, last)) < c.ttl
}
