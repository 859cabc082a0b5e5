package seckill

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisErr satisfies the redis.Error interface so Script.Run treats the
// missing-script reply as a server error and falls back to Eval.
type redisErr string

func (e redisErr) Error() string { return string(e) }
func (e redisErr) RedisError()   {}

const errNoScript = redisErr("NOSCRIPT No matching script")

// memStore is an in-memory backing store with the same atomicity guarantees
// the real one provides: conditional decrement and unique (user, voucher).
type memStore struct {
	mu       sync.Mutex
	vouchers map[int64]Voucher
	orders   map[[2]int64]Order
}

var _ Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		vouchers: make(map[int64]Voucher),
		orders:   make(map[[2]int64]Order),
	}
}

func (s *memStore) putVoucher(v Voucher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vouchers[v.ID] = v
}

func (s *memStore) LoadVoucher(_ context.Context, voucherID int64) (Voucher, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vouchers[voucherID]
	return v, ok, nil
}

func (s *memStore) DecrementStockIfPositive(_ context.Context, voucherID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vouchers[voucherID]
	if !ok || v.Stock <= 0 {
		return false, nil
	}
	v.Stock--
	s.vouchers[voucherID] = v
	return true, nil
}

func (s *memStore) OrderExists(_ context.Context, userID, voucherID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.orders[[2]int64{userID, voucherID}]
	return ok, nil
}

func (s *memStore) InsertOrder(_ context.Context, o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := [2]int64{o.UserID, o.VoucherID}
	if _, ok := s.orders[k]; ok {
		return ErrOrderConflict
	}
	s.orders[k] = o
	return nil
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *memStore) stock(voucherID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vouchers[voucherID].Stock
}

// fakeCounter is a shared atomic-increment stand-in for the sequencer.
type fakeCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeCounter() *fakeCounter { return &fakeCounter{counts: make(map[string]int64)} }

func (f *fakeCounter) Incr(_ context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

// fakeLockClient gives TxAdmitter real SETNX/compare-and-delete semantics.
type fakeLockClient struct {
	mu sync.Mutex
	m  map[string]lockEntry
}

type lockEntry struct {
	token string
	exp   time.Time
}

func newFakeLockClient() *fakeLockClient { return &fakeLockClient{m: make(map[string]lockEntry)} }

func (f *fakeLockClient) SetNX(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.m[key]; ok && time.Now().Before(e.exp) {
		return redis.NewBoolResult(false, nil)
	}
	f.m[key] = lockEntry{token: value.(string), exp: time.Now().Add(ttl)}
	return redis.NewBoolResult(true, nil)
}

func (f *fakeLockClient) Eval(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.m[keys[0]]; ok && e.token == args[0].(string) {
		delete(f.m, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (f *fakeLockClient) EvalSha(_ context.Context, _ string, _ []string, _ ...interface{}) *redis.Cmd {
	return redis.NewCmdResult(nil, errNoScript)
}

func (f *fakeLockClient) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeLockClient) EvalShaRO(ctx context.Context, sha string, keys []string, args ...interface{}) *redis.Cmd {
	return f.EvalSha(ctx, sha, keys, args...)
}

func (f *fakeLockClient) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeLockClient) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func (f *fakeLockClient) held(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.m[key]
	return ok && time.Now().Before(e.exp)
}

// fakeSeckillRedis interprets the admission scripts with the same atomicity
// Redis gives them: one mutex around the whole decision.
type fakeSeckillRedis struct {
	mu     sync.Mutex
	kv     map[string]int64
	sets   map[string]map[string]bool
	stream map[string][]map[string]interface{}
}

func newFakeSeckillRedis() *fakeSeckillRedis {
	return &fakeSeckillRedis{
		kv:     make(map[string]int64),
		sets:   make(map[string]map[string]bool),
		stream: make(map[string][]map[string]interface{}),
	}
}

func (f *fakeSeckillRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case int64:
		f.kv[key] = v
	case int:
		f.kv[key] = int64(v)
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return redis.NewStatusResult("", err)
		}
		f.kv[key] = n
	default:
		return redis.NewStatusResult("", errors.New("unsupported value type"))
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeSeckillRedis) Eval(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	stockKey, orderKey := keys[0], keys[1]
	user := args[0].(string)

	stock, ok := f.kv[stockKey]
	if !ok || stock <= 0 {
		return redis.NewCmdResult(int64(1), nil)
	}
	if f.sets[orderKey][user] {
		return redis.NewCmdResult(int64(2), nil)
	}
	f.kv[stockKey] = stock - 1
	if f.sets[orderKey] == nil {
		f.sets[orderKey] = make(map[string]bool)
	}
	f.sets[orderKey][user] = true

	if len(keys) == 3 {
		f.stream[keys[2]] = append(f.stream[keys[2]], map[string]interface{}{
			"userId":    args[0],
			"voucherId": args[1],
			"id":        args[2],
		})
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (f *fakeSeckillRedis) EvalSha(_ context.Context, _ string, _ []string, _ ...interface{}) *redis.Cmd {
	return redis.NewCmdResult(nil, errNoScript)
}

func (f *fakeSeckillRedis) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeSeckillRedis) EvalShaRO(ctx context.Context, sha string, keys []string, args ...interface{}) *redis.Cmd {
	return f.EvalSha(ctx, sha, keys, args...)
}

func (f *fakeSeckillRedis) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeSeckillRedis) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func (f *fakeSeckillRedis) stockOf(key string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kv[key]
}

func (f *fakeSeckillRedis) reservations(orderKey string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sets[orderKey])
}

func (f *fakeSeckillRedis) streamLen(stream string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stream[stream])
}
