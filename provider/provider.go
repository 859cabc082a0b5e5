// Package provider defines the byte-store contract the cache reads through.
package provider

import (
	"context"
	"time"
)

// Provider is a TTL-capable byte store shared by all process instances.
//
// Get returns (nil, false, nil) on a miss; an error means the store could not
// be reached and must never be reported as a miss. Set with ttl <= 0 stores
// without expiry (logical-expiry entries rely on this). Del is idempotent.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Close(ctx context.Context) error
}
