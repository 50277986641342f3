package port

import (
	"context"
	"time"
)

type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency removes the key again (for rollback on failure)
	ReleaseIdempotency(ctx context.Context, key string) error
}

// ReferenceCache stores reference lists as JSON. Stock figures never go through it.
type ReferenceCache interface {
	// GetJSON decodes the cached value into dest, returns false on a miss
	GetJSON(ctx context.Context, key string, dest any) (bool, error)

	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}
