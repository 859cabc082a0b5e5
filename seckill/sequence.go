package seckill

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter is the shared atomic-increment primitive behind id generation.
// redis.UniversalClient satisfies it.
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
}

const (
	// seconds since the epoch below form the id's time segment
	idEpochSecond = 1640995200 // 2022-01-01T00:00:00Z
	counterBits   = 32
)

// Sequencer mints globally unique int64 ids: a coarse time segment in the
// high bits, a shared per-day counter in the low 32. Ids are strictly
// increasing within a segment and need no coordination beyond the counter
// increment. The counter key rotates daily, which both bounds its magnitude
// and makes per-day issuance countable.
type Sequencer struct {
	c Counter

	// highest segment handed out; a regressed clock is clamped to it so the
	// counter dimension alone keeps ids unique through the regression
	lastSegment atomic.Int64
}

func NewSequencer(c Counter) *Sequencer {
	return &Sequencer{c: c}
}

// NextID returns the next id for namespace. Never returns the same id twice
// for one namespace, anywhere.
func (s *Sequencer) NextID(ctx context.Context, namespace string) (int64, error) {
	now := time.Now().UTC()

	seg := now.Unix() - idEpochSecond
	for {
		last := s.lastSegment.Load()
		if seg <= last {
			seg = last
			break
		}
		if s.lastSegment.CompareAndSwap(last, seg) {
			break
		}
	}

	day := now.Format("2006:01:02")
	count, err := s.c.Incr(ctx, "icr:"+namespace+":"+day).Result()
	if err != nil {
		return 0, fmt.Errorf("seckill: sequence incr: %w", err)
	}

	return seg<<counterBits | count, nil
}
