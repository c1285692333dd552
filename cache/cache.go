package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// Backend is the storage a TTL cache sits on. The default is an in-process
// LRU, which is correct for single-instance deployments; a shared store can
// be swapped in for multi-instance setups. Correctness never depends on
// cross-instance consistency: entries are read-through and lazily expired.
type Backend interface {
	Get(key string) (any, bool)
	Add(key string, value any)
	Remove(key string)
}

type lruBackend struct {
	inner *lru.Cache
}

// NewLRUBackend creates an in-process LRU backend bounded to size entries.
func NewLRUBackend(size int) (Backend, error) {
	inner, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &lruBackend{inner: inner}, nil
}

func (b *lruBackend) Get(key string) (any, bool) { return b.inner.Get(key) }
func (b *lruBackend) Add(key string, value any)  { b.inner.Add(key, value) }
func (b *lruBackend) Remove(key string)          { b.inner.Remove(key) }

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTL is a small generation-check-then-overwrite cache: Set stamps an expiry,
// Get drops entries past it. Entries are never invalidated on write upstream.
type TTL[V any] struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
}

// NewTTL wraps a backend with a fixed time-to-live. A ttl of zero or less
// disables expiry.
func NewTTL[V any](backend Backend, ttl time.Duration) *TTL[V] {
	return &TTL[V]{
		backend: backend,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached value if present and not expired.
func (c *TTL[V]) Get(key string) (V, bool) {
	var zero V
	raw, ok := c.backend.Get(key)
	if !ok {
		return zero, false
	}
	ent, ok := raw.(entry[V])
	if !ok {
		c.backend.Remove(key)
		return zero, false
	}
	if c.ttl > 0 && c.now().After(ent.expiresAt) {
		c.backend.Remove(key)
		return zero, false
	}
	return ent.value, true
}

// Set stores a value with a fresh expiry stamp.
func (c *TTL[V]) Set(key string, value V) {
	c.backend.Add(key, entry[V]{value: value, expiresAt: c.now().Add(c.ttl)})
}
