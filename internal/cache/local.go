package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// DefaultMaxEntries bounds the in-memory cache. Reference images are resized
// to at most 500px before upload, so entries are tens of kilobytes.
const DefaultMaxEntries = 512

type localEntry struct {
	envelope json.RawMessage
	expires  time.Time
}

// LocalCache implements Cache in process memory.
// This is suitable for single-instance deployments.
type LocalCache struct {
	mu         sync.Mutex
	entries    map[string]localEntry
	order      []string // insertion order, oldest first
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewLocalCache creates a new in-memory cache.
// Zero values select DefaultTTL and DefaultMaxEntries.
func NewLocalCache(ttl time.Duration, maxEntries int) *LocalCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &LocalCache{
		entries:    make(map[string]localEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get retrieves an envelope, dropping it if expired.
func (c *LocalCache) Get(_ context.Context, token string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[token]
	if !ok {
		return nil, nil
	}
	if c.now().After(e.expires) {
		// left in place; Set overwrites it or eviction removes it
		return nil, nil
	}
	return e.envelope, nil
}

// Set stores an envelope, evicting the oldest entries when full.
func (c *LocalCache) Set(_ context.Context, token string, envelope json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[token]; !exists {
		c.order = append(c.order, token)
	}
	c.entries[token] = localEntry{
		envelope: append(json.RawMessage(nil), envelope...),
		expires:  c.now().Add(c.ttl),
	}

	for len(c.entries) > c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	return nil
}

// Len returns the number of stored entries, expired ones included
func (c *LocalCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close is a no-op for local cache.
func (c *LocalCache) Close() error {
	return nil
}
