package cache

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/lucas-albers-lz4/respimg/pkg/log"
	"golang.org/x/sync/singleflight"
)

// Stats counts cache outcomes since the Cache was created.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Cache fronts a Store with single-flight computation: concurrent requests for
// one key share a single compute, requests for different keys never wait on
// each other.
type Cache struct {
	store  Store
	group  singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64

	mu      sync.Mutex
	touched map[string]struct{}
}

// New returns a Cache over store. A nil store means an in-memory store.
func New(store Store) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Cache{store: store, touched: make(map[string]struct{})}
}

type outcome struct {
	entry *Entry
	hit   bool
}

// Do returns the entry for key, calling compute on a miss and storing its result.
// hit reports whether the entry came from the store. Store failures degrade to
// recomputation and are logged; only compute errors are returned.
func (c *Cache) Do(ctx context.Context, key string, compute func(context.Context) (*Entry, error)) (entry *Entry, hit bool, err error) {
	c.touch(key)
	v, err, _ := c.group.Do(key, func() (any, error) {
		e, ok, getErr := c.store.Get(key)
		if getErr != nil {
			log.Warn("Cache lookup failed, recomputing", "key", key, "error", getErr)
		}
		if ok && e != nil {
			c.hits.Add(1)
			return outcome{entry: e, hit: true}, nil
		}

		c.misses.Add(1)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if e.Digest == "" {
			e.Digest = Digest(e.Data)
		}
		if putErr := c.store.Put(key, e); putErr != nil {
			log.Warn("Failed to store cache entry", "key", key, "error", putErr)
		}
		return outcome{entry: e}, nil
	})
	if err != nil {
		return nil, false, err
	}
	o := v.(outcome)
	return o.entry, o.hit, nil
}

// Compute runs compute without consulting or filling the store. It is counted as
// a miss. Use it for outputs that cannot be keyed reliably.
func (c *Cache) Compute(ctx context.Context, compute func(context.Context) (*Entry, error)) (*Entry, error) {
	c.misses.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	if e.Digest == "" {
		e.Digest = Digest(e.Data)
	}
	return e, nil
}

func (c *Cache) touch(key string) {
	c.mu.Lock()
	c.touched[key] = struct{}{}
	c.mu.Unlock()
}

// Prune evicts every entry not requested through Do since the previous Prune and
// returns how many were evicted. It only affects stores implementing Evicter;
// persistent stores are left alone.
func (c *Cache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	keep := c.touched
	c.touched = make(map[string]struct{})
	ev, ok := c.store.(Evicter)
	if !ok {
		return 0
	}
	return ev.Retain(keep)
}

// Stats returns the current hit and miss counts.
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}
