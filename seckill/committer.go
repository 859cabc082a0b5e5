package seckill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unkn0wn-root/surgecache"
)

// Committer durably persists admitted reservations. Idempotent on
// (user, voucher): a conflict at write time means the order is already there
// and is reported as success. Transient store failures are retried here -
// retrying is the commit step's job, never the admission step's.
type Committer struct {
	store      Store
	log        surgecache.Logger
	maxRetries int
	backoff    time.Duration
}

type CommitterConfig struct {
	Store      Store
	Logger     surgecache.Logger
	MaxRetries int           // 0 => 3
	Backoff    time.Duration // first retry delay; 0 => 100ms
}

func NewCommitter(cfg CommitterConfig) (*Committer, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("seckill: store is required")
	}
	c := &Committer{
		store:      cfg.Store,
		log:        cfg.Logger,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
	}
	if c.log == nil {
		c.log = surgecache.NopLogger{}
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 3
	}
	if c.backoff <= 0 {
		c.backoff = 100 * time.Millisecond
	}
	return c, nil
}

// Commit inserts o. The admission layer already filtered duplicates; the
// uniqueness re-check here is defense in depth against reservation-marker
// loss in the shared store.
func (c *Committer) Commit(ctx context.Context, o Order) error {
	backoff := c.backoff
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		exists, err := c.store.OrderExists(ctx, o.UserID, o.VoucherID)
		if err != nil {
			lastErr = err
			continue
		}
		if exists {
			return nil // already committed
		}

		err = c.store.InsertOrder(ctx, o)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrOrderConflict) {
			return nil // lost the race to an earlier commit of the same reservation
		}
		lastErr = err
		c.log.Warn("order commit failed; retrying", surgecache.Fields{
			"order": o.ID, "user": o.UserID, "voucher": o.VoucherID, "err": err,
		})
	}

	return fmt.Errorf("seckill: commit order %d: %w", o.ID, lastErr)
}
