package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers request keys that were already applied
type IdempotencyStore interface {
	// MarkProcessed records key for ttl.
	// Returns true if the key was newly marked, false if it was already present
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Forget drops key so the request can be applied again
	Forget(ctx context.Context, key string) error

	// Close releases resources held by the store
	Close() error
}
