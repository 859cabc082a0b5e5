package surgecache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/surgecache/codec"
	"github.com/unkn0wn-root/surgecache/internal/util"
	"github.com/unkn0wn-root/surgecache/internal/wire"
	pr "github.com/unkn0wn-root/surgecache/provider"
)

type base[V any] struct {
	ns       string
	provider pr.Provider
	codec    c.Codec[V]
	load     LoadFunc[V]
	log      Logger
	ttl      time.Duration
	nullTTL  time.Duration
}

func (b *base[V]) key(id string) string     { return util.CacheKey(b.ns, id) }
func (b *base[V]) lockKey(id string) string { return util.LockKey(b.ns, id) }

// fetch reads and decodes the cache entry at key. ok=false is a miss.
// Corrupt entries are deleted and reported as a miss (self-heal).
func (b *base[V]) fetch(ctx context.Context, key string) (wire.Entry, bool, error) {
	raw, ok, err := b.provider.Get(ctx, key)
	if err != nil {
		return wire.Entry{}, false, &StoreError{Op: "get", Key: key, Err: err}
	}
	if !ok {
		return wire.Entry{}, false, nil
	}
	e, err := wire.Decode(raw)
	if err != nil {
		_ = b.provider.Del(ctx, key)
		b.log.Warn("self-healed corrupt entry", Fields{"key": key})
		return wire.Entry{}, false, nil
	}
	return e, true, nil
}

func (b *base[V]) decode(ctx context.Context, key string, payload []byte) (V, error) {
	v, err := b.codec.Decode(payload)
	if err != nil {
		// undecodable payload behaves like a corrupt entry
		_ = b.provider.Del(ctx, key)
		b.log.Warn("self-healed undecodable entry", Fields{"key": key})
		var zero V
		return zero, ErrNotFound
	}
	return v, nil
}

// fill loads id from the backing store and writes the outcome to the cache:
// a value with the normal TTL, or a short-TTL tombstone for absent ids.
func (b *base[V]) fill(ctx context.Context, id string) (V, error) {
	var zero V
	key := b.key(id)

	v, found, err := b.load(ctx, id)
	if err != nil {
		return zero, &StoreError{Op: "load", Key: id, Err: err}
	}
	if !found {
		if err := b.provider.Set(ctx, key, wire.EncodeTombstone(), b.nullTTL); err != nil {
			return zero, &StoreError{Op: "set", Key: key, Err: err}
		}
		return zero, ErrNotFound
	}

	payload, err := b.codec.Encode(v)
	if err != nil {
		return zero, err
	}
	if err := b.provider.Set(ctx, key, wire.EncodeValue(payload), b.ttl); err != nil {
		return zero, &StoreError{Op: "set", Key: key, Err: err}
	}
	return v, nil
}

// passReader loads inline on every miss. Many concurrent misses each reach
// the backing store; tombstones still bound penetration.
type passReader[V any] struct {
	base[V]
}

func (r *passReader[V]) Get(ctx context.Context, id string) (V, error) {
	var zero V
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
	return r.fill(ctx, id)
}

func (r *passReader[V]) Warm(ctx context.Context, id string) error {
	_, err := r.fill(ctx, id)
	return err
}

func (r *passReader[V]) Invalidate(ctx context.Context, id string) error {
	key := r.key(id)
	if err := r.provider.Del(ctx, key); err != nil {
		return &StoreError{Op: "del", Key: key, Err: err}
	}
	return nil
}
