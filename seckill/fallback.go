package seckill

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/unkn0wn-root/surgecache"
	"github.com/unkn0wn-root/surgecache/lock"
)

// TxAdmitter is the store-bound fallback: sale-window validation, duplicate
// check, conditional decrement and insert against the backing store, all
// serialized per user by a distributed lock. Slower than the script path but
// durable before the caller ever hears "admitted".
type TxAdmitter struct {
	store   Store
	lock    *lock.Mutex
	seq     *Sequencer
	lockTTL time.Duration
	now     func() time.Time
	log     surgecache.Logger
}

type TxConfig struct {
	Store     Store
	Lock      *lock.Mutex
	Sequencer *Sequencer
	LockTTL   time.Duration    // 0 => 10s
	Now       func() time.Time // tests only; nil => time.Now
	Logger    surgecache.Logger
}

func NewTxAdmitter(cfg TxConfig) (*TxAdmitter, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("seckill: store is required")
	}
	if cfg.Lock == nil {
		return nil, fmt.Errorf("seckill: lock is required")
	}
	if cfg.Sequencer == nil {
		return nil, fmt.Errorf("seckill: sequencer is required")
	}
	a := &TxAdmitter{
		store:   cfg.Store,
		lock:    cfg.Lock,
		seq:     cfg.Sequencer,
		lockTTL: cfg.LockTTL,
		now:     cfg.Now,
		log:     cfg.Logger,
	}
	if a.lockTTL <= 0 {
		a.lockTTL = 10 * time.Second
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.log == nil {
		a.log = surgecache.NopLogger{}
	}
	return a, nil
}

func userLockKey(userID int64) string {
	return "lock:order:" + strconv.FormatInt(userID, 10)
}

func (a *TxAdmitter) Admit(ctx context.Context, voucherID, userID int64) (Decision, error) {
	v, found, err := a.store.LoadVoucher(ctx, voucherID)
	if err != nil {
		return Decision{}, fmt.Errorf("seckill: load voucher %d: %w", voucherID, err)
	}
	if !found {
		return Decision{}, ErrVoucherNotFound
	}

	now := a.now()
	if now.Before(v.BeginTime) {
		return Decision{Code: SaleNotStarted}, nil
	}
	if now.After(v.EndTime) {
		return Decision{Code: SaleEnded}, nil
	}

	// One admission attempt per user at a time. A held lock means a second
	// in-flight attempt by the same user: reject, don't queue.
	lockKey := userLockKey(userID)
	token, acquired, err := a.lock.TryAcquire(ctx, lockKey, a.lockTTL)
	if err != nil {
		return Decision{}, fmt.Errorf("seckill: acquire %s: %w", lockKey, err)
	}
	if !acquired {
		return Decision{Code: Duplicate}, nil
	}

	d, err := a.admitLocked(ctx, voucherID, userID)
	if relErr := a.lock.Release(ctx, lockKey, token); relErr != nil {
		a.log.Warn("lock release failed", surgecache.Fields{"key": lockKey, "err": relErr})
	}
	return d, err
}

func (a *TxAdmitter) admitLocked(ctx context.Context, voucherID, userID int64) (Decision, error) {
	exists, err := a.store.OrderExists(ctx, userID, voucherID)
	if err != nil {
		return Decision{}, fmt.Errorf("seckill: order lookup: %w", err)
	}
	if exists {
		return Decision{Code: Duplicate}, nil
	}

	ok, err := a.store.DecrementStockIfPositive(ctx, voucherID)
	if err != nil {
		return Decision{}, fmt.Errorf("seckill: decrement stock: %w", err)
	}
	if !ok {
		return Decision{Code: NoStock}, nil
	}

	orderID, err := a.seq.NextID(ctx, "order")
	if err != nil {
		return Decision{}, err
	}

	err = a.store.InsertOrder(ctx, Order{
		ID:        orderID,
		UserID:    userID,
		VoucherID: voucherID,
		CreatedAt: a.now(),
	})
	if errors.Is(err, ErrOrderConflict) {
		// uniqueness held where the pre-check raced; nothing was oversold
		return Decision{Code: Duplicate}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("seckill: insert order: %w", err)
	}

	a.log.Debug("admitted", surgecache.Fields{"voucher": voucherID, "user": userID, "order": orderID})
	return Decision{Code: Admitted, OrderID: orderID}, nil
}
