// Package lock implements a TTL-bounded advisory mutex on the shared store.
//
// Ownership is carried by an opaque per-acquisition token: Release deletes the
// key only when the stored token still matches, so a holder whose lock expired
// and was re-acquired by someone else cannot release it out from under them.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Client is the slice of the redis API the mutex needs.
// redis.UniversalClient satisfies it.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	redis.Scripter
}

// compare-and-delete: only the token holder may remove the marker.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type Mutex struct {
	c Client
}

func New(c Client) *Mutex {
	return &Mutex{c: c}
}

// TryAcquire sets a marker at key iff absent, expiring after ttl.
// ok is true iff this call created the marker. A store error fails closed:
// ok=false with the error set, never a claimed acquisition.
func (m *Mutex) TryAcquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error) {
	token = uuid.NewString()
	ok, err = m.c.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// Release deletes the marker iff it still holds token. Releasing a lock that
// already expired (and possibly changed hands) is a silent no-op.
func (m *Mutex) Release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, m.c, []string{key}, token).Err()
}
