package seckill

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/surgecache/lock"
)

func openVoucher(id, stock int64) Voucher {
	return Voucher{
		ID:        id,
		Stock:     stock,
		BeginTime: time.Now().Add(-time.Hour),
		EndTime:   time.Now().Add(time.Hour),
	}
}

func newTxAdmitter(t *testing.T, st Store, lc *fakeLockClient, now func() time.Time) *TxAdmitter {
	t.Helper()
	a, err := NewTxAdmitter(TxConfig{
		Store:     st,
		Lock:      lock.New(lc),
		Sequencer: NewSequencer(newFakeCounter()),
		Now:       now,
	})
	require.NoError(t, err)
	return a
}

func TestTxNoOversell(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.putVoucher(openVoucher(7, 3))
	a := newTxAdmitter(t, st, newFakeLockClient(), nil)

	const callers = 10
	var wg sync.WaitGroup
	decisions := make([]Decision, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := a.Admit(ctx, 7, int64(1000+i))
			require.NoError(t, err)
			decisions[i] = d
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, d := range decisions {
		if d.Code == Admitted {
			admitted++
		} else {
			assert.Equal(t, NoStock, d.Code)
		}
	}
	assert.Equal(t, 3, admitted)
	assert.Equal(t, 3, st.orderCount(), "persisted orders must equal admissions")
	assert.EqualValues(t, 0, st.stock(7))
}

func TestTxDuplicateUser(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.putVoucher(openVoucher(7, 10))
	a := newTxAdmitter(t, st, newFakeLockClient(), nil)

	d, err := a.Admit(ctx, 7, 42)
	require.NoError(t, err)
	require.Equal(t, Admitted, d.Code)

	d, err = a.Admit(ctx, 7, 42)
	require.NoError(t, err)
	assert.Equal(t, Duplicate, d.Code)
	assert.Equal(t, 1, st.orderCount())
	assert.EqualValues(t, 9, st.stock(7))
}

func TestTxConcurrentSameUser(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.putVoucher(openVoucher(7, 10))
	a := newTxAdmitter(t, st, newFakeLockClient(), nil)

	const attempts = 6
	var wg sync.WaitGroup
	decisions := make([]Decision, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := a.Admit(ctx, 7, 42)
			require.NoError(t, err)
			decisions[i] = d
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, d := range decisions {
		if d.Code == Admitted {
			admitted++
		} else {
			assert.Equal(t, Duplicate, d.Code)
		}
	}
	assert.LessOrEqual(t, admitted, 1, "at most one concurrent admission per user")
	assert.Equal(t, admitted, st.orderCount())
}

func TestTxSaleWindow(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.putVoucher(Voucher{
		ID:        7,
		Stock:     10,
		BeginTime: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	})

	early := func() time.Time { return time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC) }
	late := func() time.Time { return time.Date(2026, 9, 1, 13, 0, 0, 0, time.UTC) }
	open := func() time.Time { return time.Date(2026, 9, 1, 11, 0, 0, 0, time.UTC) }

	d, err := newTxAdmitter(t, st, newFakeLockClient(), early).Admit(ctx, 7, 42)
	require.NoError(t, err)
	assert.Equal(t, SaleNotStarted, d.Code)

	d, err = newTxAdmitter(t, st, newFakeLockClient(), late).Admit(ctx, 7, 42)
	require.NoError(t, err)
	assert.Equal(t, SaleEnded, d.Code)

	d, err = newTxAdmitter(t, st, newFakeLockClient(), open).Admit(ctx, 7, 42)
	require.NoError(t, err)
	assert.Equal(t, Admitted, d.Code)
}

func TestTxVoucherNotFound(t *testing.T) {
	ctx := context.Background()
	a := newTxAdmitter(t, newMemStore(), newFakeLockClient(), nil)

	_, err := a.Admit(ctx, 404, 42)
	assert.ErrorIs(t, err, ErrVoucherNotFound)
}

func TestTxLockReleasedAfterAdmission(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.putVoucher(openVoucher(7, 10))
	lc := newFakeLockClient()
	a := newTxAdmitter(t, st, lc, nil)

	_, err := a.Admit(ctx, 7, 42)
	require.NoError(t, err)
	assert.False(t, lc.held("lock:order:42"), "per-user lock left behind")
}
