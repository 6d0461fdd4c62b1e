// Package cache is the request cache shared by all views. Entries are keyed
// by logical query identity (operation plus parameters), de-duplicated while
// in flight and refetched once older than their stale time.
package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

var (
	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cw_cache_hits_total",
		Help: "Request cache hits by operation.",
	}, []string{"op"})
	cacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cw_cache_misses_total",
		Help: "Request cache misses by operation.",
	}, []string{"op"})
)

// Operation names used as the first part of a key.
const (
	OpProcessingRecords = "processingRecords"
	OpProcessingRecord  = "processingRecord"
	OpHistoryItems      = "historyItems"
	OpAccessItems       = "accessItems"
	OpTos               = "tos"
	OpAuthItems         = "authItems"
	OpIdentifiers       = "identifiers"
	OpEnroll            = "enroll"
)

// Key identifies a query. Params are part of the identity.
type Key struct {
	Op     string
	Params map[string]string
}

func NewKey(op string, kv ...string) Key {
	k := Key{Op: op}
	if len(kv) > 1 {
		k.Params = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			k.Params[kv[i]] = kv[i+1]
		}
	}
	return k
}

// String renders the key with params in a stable order.
func (k Key) String() string {
	if len(k.Params) == 0 {
		return k.Op
	}
	names := make([]string, 0, len(k.Params))
	for n := range k.Params {
		names = append(names, n)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString(k.Op)
	for _, n := range names {
		b.WriteByte('|')
		b.WriteString(n)
		b.WriteByte('=')
		b.WriteString(k.Params[n])
	}
	return b.String()
}

type entry struct {
	value     any
	fetchedAt time.Time
	gen       uint64
}

// Cache is safe for concurrent use.
type Cache struct {
	lru   *expirable.LRU[string, entry]
	group singleflight.Group
	now   func() time.Time

	mu   sync.Mutex
	gen  uint64
	ops  map[string]uint64
	keys map[string]uint64
}

// New creates a cache holding at most size entries, each evicted after ttl.
func New(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 256
	}
	return &Cache{
		lru: expirable.NewLRU[string, entry](size, nil, ttl),
		now:  time.Now,
		ops:  map[string]uint64{},
		keys: map[string]uint64{},
	}
}

// SetClock replaces the time source.
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}

// GetOrFetch returns the cached value for key when it is younger than
// staleTime, otherwise runs fetch. Concurrent callers of the same key share
// one fetch. A result whose key was invalidated with Invalidate,
// InvalidateOp or Purge while the fetch was in flight is returned to its
// caller but not stored.
func GetOrFetch[T any](ctx context.Context, c *Cache, key Key, staleTime time.Duration, fetch func(ctx context.Context) (T, error)) (T, error) {
	id := key.String()
	if e, ok := c.lru.Get(id); ok && c.fresh(key.Op, id, e, staleTime) {
		if v, ok := e.value.(T); ok {
			cacheHitsTotal.WithLabelValues(key.Op).Inc()
			return v, nil
		}
	}
	cacheMissesTotal.WithLabelValues(key.Op).Inc()

	startGen := c.generation(key.Op, id)
	res, err, _ := c.group.Do(id, func() (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if c.generation(key.Op, id) == startGen {
			c.lru.Add(id, entry{value: v, fetchedAt: c.now(), gen: startGen})
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := res.(T)
	return v, nil
}

// Peek returns a cached value regardless of staleness.
func Peek[T any](c *Cache, key Key) (T, bool) {
	var zero T
	e, ok := c.lru.Get(key.String())
	if !ok {
		return zero, false
	}
	v, ok := e.value.(T)
	return v, ok
}

// Invalidate drops one key. Later reads refetch.
func (c *Cache) Invalidate(key Key) {
	id := key.String()
	c.mu.Lock()
	c.keys[id]++
	c.mu.Unlock()
	c.lru.Remove(id)
	c.group.Forget(id)
}

// InvalidateOp drops every key of an operation regardless of params.
func (c *Cache) InvalidateOp(op string) {
	c.mu.Lock()
	c.ops[op]++
	c.mu.Unlock()
	for _, id := range c.lru.Keys() {
		if id == op || strings.HasPrefix(id, op+"|") {
			c.lru.Remove(id)
			c.group.Forget(id)
		}
	}
}

// Purge drops everything, e.g. when the session ends.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.gen++
	c.mu.Unlock()
	c.lru.Purge()
}

func (c *Cache) Len() int {
	return c.lru.Len()
}

// generation changes whenever the cache is purged, the operation is
// invalidated or the key itself is invalidated.
func (c *Cache) generation(op, id string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen<<32 + c.ops[op] + c.keys[id]
}

func (c *Cache) fresh(op, id string, e entry, staleTime time.Duration) bool {
	if e.gen != c.generation(op, id) {
		return false
	}
	if staleTime <= 0 {
		return false
	}
	return c.now().Sub(e.fetchedAt) < staleTime
}
