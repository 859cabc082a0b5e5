// Package seckill arbitrates a limited-inventory flash sale: an atomic
// stock-and-duplicate admission check, collision-free order ids, and an
// idempotent durable commit. No oversell, at most one order per (user,
// voucher), under arbitrary concurrent demand.
//
// Two Admitter implementations exist behind one interface. ScriptAdmitter
// decides in a single Redis script against pre-primed stock (fast path,
// durability deferred to the committer). TxAdmitter decides against the
// backing store under a per-user lock (slower, durable before admission).
// Which one runs is a deployment choice, not a runtime branch.
package seckill

import (
	"context"
	"errors"
	"time"
)

// Code is the admission outcome. Rejections are business results reported
// verbatim to the caller, not system errors.
type Code int

const (
	Admitted Code = iota
	NoStock
	Duplicate
	SaleNotStarted
	SaleEnded
)

func (c Code) String() string {
	switch c {
	case Admitted:
		return "admitted"
	case NoStock:
		return "no_stock"
	case Duplicate:
		return "duplicate"
	case SaleNotStarted:
		return "sale_not_started"
	case SaleEnded:
		return "sale_ended"
	default:
		return "unknown"
	}
}

// Decision is the admission verdict. OrderID is set only when Code==Admitted.
type Decision struct {
	Code    Code
	OrderID int64
}

// Voucher is a limited-inventory sale item. Stock is decremented only by
// admission; replenishment is administrative and out of scope.
type Voucher struct {
	ID        int64
	Stock     int64
	BeginTime time.Time
	EndTime   time.Time
}

// Order is the durable record of an admitted purchase. Never mutated or
// deleted after creation.
type Order struct {
	ID        int64
	UserID    int64
	VoucherID int64
	CreatedAt time.Time
}

var (
	// ErrOrderConflict: an order for this (user, voucher) already exists.
	// At commit time this means already-successful, not failure.
	ErrOrderConflict = errors.New("seckill: order already exists")

	// ErrVoucherNotFound: the voucher id is unknown to the backing store.
	ErrVoucherNotFound = errors.New("seckill: voucher not found")
)

// Store is the relational backing store, the source of truth for stock and
// order uniqueness. DecrementStockIfPositive must be a conditional update
// (`stock = stock - 1 WHERE ... AND stock > 0`); a read-then-write split
// reopens the oversell race. InsertOrder returns ErrOrderConflict when the
// (user, voucher) uniqueness invariant would be violated.
type Store interface {
	LoadVoucher(ctx context.Context, voucherID int64) (Voucher, bool, error)
	DecrementStockIfPositive(ctx context.Context, voucherID int64) (bool, error)
	OrderExists(ctx context.Context, userID, voucherID int64) (bool, error)
	InsertOrder(ctx context.Context, o Order) error
}

// Admitter answers, atomically, whether (voucher, user) may purchase.
// No intermediate state is ever observable by a concurrent caller.
type Admitter interface {
	Admit(ctx context.Context, voucherID, userID int64) (Decision, error)
}
