package surgecache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/surgecache/internal/wire"
	"github.com/unkn0wn-root/surgecache/lock"
)

// mutexReader rebuilds behind a distributed try-lock so a miss storm reaches
// the backing store once. Callers in the same process additionally collapse
// onto one flight per id before touching the lock at all.
type mutexReader[V any] struct {
	base[V]

	lock        *lock.Mutex
	lockTTL     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	sf          singleflight.Group
}

func (r *mutexReader[V]) Get(ctx context.Context, id string) (V, error) {
	var zero V

	// fast path: no flight needed on a plain hit
	key := r.key(id)
	e, ok, err := r.fetch(ctx, key)
	if err != nil {
		return zero, err
	}
	if ok {
		if e.Kind == wire.KindTombstone {
			return zero, ErrNotFound
		}
		return r.decode(ctx, key, e.Payload)
	}

	v, err, _ := r.sf.Do(id, func() (any, error) {
		return r.rebuild(ctx, id)
	})
	if err != nil {
		return zero, err
	}
	return v.(V), nil
}

// rebuild retries the lock with exponential backoff up to maxRetries, then
// gives up with ErrLockUnavailable instead of waiting forever. Each attempt
// re-checks the cache first: the previous holder usually filled it.
func (r *mutexReader[V]) rebuild(ctx context.Context, id string) (V, error) {
	var zero V
	key := r.key(id)
	lockKey := r.lockKey(id)

	backoff := r.baseBackoff
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		if attempt > 0 {
			e, ok, err := r.fetch(ctx, key)
			if err != nil {
				return zero, err
			}
			if ok {
				if e.Kind == wire.KindTombstone {
					return zero, ErrNotFound
				}
				return r.decode(ctx, key, e.Payload)
			}
		}

		token, acquired, err := r.lock.TryAcquire(ctx, lockKey, r.lockTTL)
		if err != nil {
			return zero, &StoreError{Op: "lock", Key: lockKey, Err: err}
		}
		if !acquired {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		v, err := r.rebuildLocked(ctx, id, key)
		if relErr := r.lock.Release(ctx, lockKey, token); relErr != nil {
			r.log.Warn("lock release failed", Fields{"key": lockKey, "err": relErr})
		}
		return v, err
	}

	r.log.Warn("lock contended past retry ceiling", Fields{"key": lockKey, "attempts": r.maxRetries})
	return zero, ErrLockUnavailable
}

// rebuildLocked runs under the lock: double-check the cache (another holder
// may have just filled it), then load and write value-or-tombstone.
func (r *mutexReader[V]) rebuildLocked(ctx context.Context, id, key string) (V, error) {
	var zero V

	e, ok, err := r.fetch(ctx, key)
	if err != nil {
		return zero, err
	}
	if ok {
		if e.Kind == wire.KindTombstone {
			return zero, ErrNotFound
		}
		return r.decode(ctx, key, e.Payload)
	}
	return r.fill(ctx, id)
}

func (r *mutexReader[V]) Warm(ctx context.Context, id string) error {
	_, err := r.fill(ctx, id)
	return err
}

func (r *mutexReader[V]) Invalidate(ctx context.Context, id string) error {
	key := r.key(id)
	if err := r.provider.Del(ctx, key); err != nil {
		return &StoreError{Op: "del", Key: key, Err: err}
	}
	return nil
}
