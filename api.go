package surgecache

import (
	"context"
	"fmt"
	"time"

	c "github.com/unkn0wn-root/surgecache/codec"
	"github.com/unkn0wn-root/surgecache/lock"
	pr "github.com/unkn0wn-root/surgecache/provider"
)

// LoadFunc fetches an entity from the backing store.
// found=false means confirmed absent; an error means the store was unreachable.
type LoadFunc[V any] func(ctx context.Context, id string) (v V, found bool, err error)

// Strategy selects how a Reader handles misses and expiry. The choice is a
// deployment decision per entity type, not a per-request branch.
type Strategy int

const (
	// PassThrough loads inline on every miss. Absent ids are tombstoned with
	// a short TTL. Concurrent misses all reach the backing store; pick this
	// only where staleness is intolerable and the herd is acceptable.
	PassThrough Strategy = iota

	// MutexGuarded serializes the rebuild behind a distributed try-lock with
	// bounded retries, so a miss storm loads the backing store once.
	MutexGuarded

	// LogicalExpire never blocks the read path: entries carry an application
	// expiry, expired reads return the stale value and schedule at most one
	// background rebuild per key. Entries must be pre-warmed with Warm.
	LogicalExpire
)

// Reader is the cache-aside read path for one entity namespace.
type Reader[V any] interface {
	// Get resolves id through the cache. Returns ErrNotFound for absent ids
	// (including tombstone hits), ErrLockUnavailable when the rebuild lock
	// stayed contended past the retry ceiling, or a *StoreError.
	Get(ctx context.Context, id string) (V, error)

	// Warm loads id from the backing store and installs it in the cache.
	// Under LogicalExpire this is how entries come into existence.
	Warm(ctx context.Context, id string) error

	// Invalidate drops the cache entry for id. Call after updating the
	// backing store; the next read rebuilds.
	Invalidate(ctx context.Context, id string) error
}

// Options tune a Reader. Namespace, Provider, Codec and Load are required;
// MutexGuarded and LogicalExpire additionally need Lock, and LogicalExpire
// needs a Rebuilder.
type Options[V any] struct {
	Namespace string // cache key prefix, e.g. "cache:shop"
	Provider  pr.Provider
	Codec     c.Codec[V]
	Load      LoadFunc[V]
	Strategy  Strategy

	Logger  Logger        // nil => NopLogger
	TTL     time.Duration // positive hits; 0 => 30m
	NullTTL time.Duration // tombstones; 0 => 2m; keep short to bound junk

	Lock        *lock.Mutex
	LockTTL     time.Duration // rebuild lock expiry; 0 => 10s
	MaxRetries  int           // MutexGuarded lock attempts; 0 => 5
	BaseBackoff time.Duration // MutexGuarded first backoff; 0 => 50ms

	LogicalTTL time.Duration // LogicalExpire freshness horizon; 0 => 10m
	Rebuilder  *Rebuilder
}

// New builds the Reader for opts.Strategy.
func New[V any](opts Options[V]) (Reader[V], error) {
	if opts.Namespace == "" {
		return nil, fmt.Errorf("surgecache: namespace is required")
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("surgecache: provider is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("surgecache: codec is required")
	}
	if opts.Load == nil {
		return nil, fmt.Errorf("surgecache: load func is required")
	}

	b := base[V]{
		ns:       opts.Namespace,
		provider: opts.Provider,
		codec:    opts.Codec,
		load:     opts.Load,
		log:      coalesce[Logger](opts.Logger, NopLogger{}),
		ttl:      coalesce[time.Duration](opts.TTL, 30*time.Minute),
		nullTTL:  coalesce[time.Duration](opts.NullTTL, 2*time.Minute),
	}

	switch opts.Strategy {
	case PassThrough:
		return &passReader[V]{base: b}, nil
	case MutexGuarded:
		if opts.Lock == nil {
			return nil, fmt.Errorf("surgecache: mutex strategy requires a lock")
		}
		return &mutexReader[V]{
			base:        b,
			lock:        opts.Lock,
			lockTTL:     coalesce[time.Duration](opts.LockTTL, 10*time.Second),
			maxRetries:  coalesce[int](opts.MaxRetries, 5),
			baseBackoff: coalesce[time.Duration](opts.BaseBackoff, 50*time.Millisecond),
		}, nil
	case LogicalExpire:
		if opts.Lock == nil {
			return nil, fmt.Errorf("surgecache: logical strategy requires a lock")
		}
		if opts.Rebuilder == nil {
			return nil, fmt.Errorf("surgecache: logical strategy requires a rebuilder")
		}
		return &logicalReader[V]{
			base:       b,
			lock:       opts.Lock,
			lockTTL:    coalesce[time.Duration](opts.LockTTL, 10*time.Second),
			logicalTTL: coalesce[time.Duration](opts.LogicalTTL, 10*time.Minute),
			rebuilder:  opts.Rebuilder,
		}, nil
	default:
		return nil, fmt.Errorf("surgecache: unknown strategy %d", opts.Strategy)
	}
}
