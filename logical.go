package surgecache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/surgecache/internal/wire"
	"github.com/unkn0wn-root/surgecache/lock"
)

// logicalReader never blocks a read on a rebuild. Entries are stored without
// a store TTL and carry an application expiry instead; an expired read hands
// back the stale value and, if it wins the per-key lock, schedules exactly
// one background refresh. Cold ids are not built here - Warm them first.
type logicalReader[V any] struct {
	base[V]

	lock       *lock.Mutex
	lockTTL    time.Duration
	logicalTTL time.Duration
	rebuilder  *Rebuilder
}

func (r *logicalReader[V]) Get(ctx context.Context, id string) (V, error) {
	var zero V
	key := r.key(id)

	e, ok, err := r.fetch(ctx, key)
	if err != nil {
		return zero, err
	}
	if !ok {
		// never built; this strategy assumes pre-warmed entries
		return zero, ErrNotFound
	}
	if e.Kind == wire.KindTombstone {
		return zero, ErrNotFound
	}

	v, err := r.decode(ctx, key, e.Payload)
	if err != nil {
		return zero, err
	}
	if !e.Expired(time.Now()) {
		return v, nil
	}

	// Stale. Serve it regardless; opportunistically kick off the rebuild.
	lockKey := r.lockKey(id)
	token, acquired, lockErr := r.lock.TryAcquire(ctx, lockKey, r.lockTTL)
	if lockErr != nil {
		// fail closed: stale beats blocking on a broken lock store
		r.log.Warn("lock acquire failed; serving stale", Fields{"key": lockKey, "err": lockErr})
		return v, nil
	}
	if !acquired {
		// someone else is already rebuilding this key
		return v, nil
	}

	submitted := r.rebuilder.Submit(func() {
		r.refresh(id, key, lockKey, token)
	})
	if !submitted {
		// queue saturated: nothing will run the task, so free the lock now
		if relErr := r.lock.Release(ctx, lockKey, token); relErr != nil {
			r.log.Warn("lock release failed", Fields{"key": lockKey, "err": relErr})
		}
		r.log.Warn("rebuild dropped (scheduler saturated)", Fields{"key": key})
	}
	return v, nil
}

// refresh is the background rebuild task. It must release the submitter's
// lock on every path or future rebuilds of the key starve until the TTL.
func (r *logicalReader[V]) refresh(id, key, lockKey, token string) {
	ctx := context.Background()
	defer func() {
		if relErr := r.lock.Release(ctx, lockKey, token); relErr != nil {
			r.log.Warn("lock release failed", Fields{"key": lockKey, "err": relErr})
		}
	}()

	v, found, err := r.load(ctx, id)
	if err != nil {
		// isolated to the worker; the reader already got the stale value
		r.log.Error("rebuild load failed", Fields{"key": key, "err": err})
		return
	}
	if !found {
		// entity vanished from the backing store; drop the stale entry
		if err := r.provider.Del(ctx, key); err != nil {
			r.log.Error("rebuild delete failed", Fields{"key": key, "err": err})
		}
		return
	}
	if err := r.write(ctx, key, v); err != nil {
		r.log.Error("rebuild write failed", Fields{"key": key, "err": err})
	}
}

// Warm installs id with a fresh logical expiry. ErrNotFound if the backing
// store has no such entity.
func (r *logicalReader[V]) Warm(ctx context.Context, id string) error {
	v, found, err := r.load(ctx, id)
	if err != nil {
		return &StoreError{Op: "load", Key: id, Err: err}
	}
	if !found {
		return ErrNotFound
	}
	return r.write(ctx, r.key(id), v)
}

func (r *logicalReader[V]) write(ctx context.Context, key string, v V) error {
	payload, err := r.codec.Encode(v)
	if err != nil {
		return err
	}
	entry := wire.EncodeLogical(time.Now().Add(r.logicalTTL), payload)
	if err := r.provider.Set(ctx, key, entry, 0); err != nil { // no store TTL
		return &StoreError{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (r *logicalReader[V]) Invalidate(ctx context.Context, id string) error {
	key := r.key(id)
	if err := r.provider.Del(ctx, key); err != nil {
		return &StoreError{Op: "del", Key: key, Err: err}
	}
	return nil
}
