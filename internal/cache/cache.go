// Package cache stores resolved reference-image envelopes so repeated
// getRefImage lookups do not cost two backend round trips each.
// Supports an in-memory backend and Redis for multi-instance deployments.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// DefaultTTL is how long a resolved reference stays cached.
// Reference uploads are immutable once complete, so this only bounds memory.
const DefaultTTL = 6 * time.Hour

// Cache defines the interface for reference envelope storage.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the cached envelope for token.
	// Returns nil, nil on a miss.
	Get(ctx context.Context, token string) (json.RawMessage, error)

	// Set stores the envelope for token.
	Set(ctx context.Context, token string, envelope json.RawMessage) error

	// Close releases any resources held by the cache.
	Close() error
}

// Noop is a Cache that never stores anything
type Noop struct{}

func (Noop) Get(context.Context, string) (json.RawMessage, error) { return nil, nil }
func (Noop) Set(context.Context, string, json.RawMessage) error   { return nil }
func (Noop) Close() error                                         { return nil }
