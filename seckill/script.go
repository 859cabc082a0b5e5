package seckill

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/surgecache"
)

// RedisClient is the slice of the redis API the script admitter needs.
// redis.UniversalClient satisfies it.
type RedisClient interface {
	redis.Scripter
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// The whole check-and-reserve runs server-side so no interleaving is
// observable: stock check, duplicate check, decrement and reservation marker
// are one indivisible unit. 0 = admitted, 1 = no stock, 2 = duplicate.
var admitScript = redis.NewScript(`
local stock = tonumber(redis.call('get', KEYS[1]))
if stock == nil or stock <= 0 then
	return 1
end
if redis.call('sismember', KEYS[2], ARGV[1]) == 1 then
	return 2
end
redis.call('incrby', KEYS[1], -1)
redis.call('sadd', KEYS[2], ARGV[1])
return 0
`)

// Same decision, plus enqueue the reservation for the async committer.
var admitEnqueueScript = redis.NewScript(`
local stock = tonumber(redis.call('get', KEYS[1]))
if stock == nil or stock <= 0 then
	return 1
end
if redis.call('sismember', KEYS[2], ARGV[1]) == 1 then
	return 2
end
redis.call('incrby', KEYS[1], -1)
redis.call('sadd', KEYS[2], ARGV[1])
redis.call('xadd', KEYS[3], '*', 'userId', ARGV[1], 'voucherId', ARGV[2], 'id', ARGV[3])
return 0
`)

// ScriptAdmitter decides admission in one atomic Redis script. Stock must be
// primed into the shared store when the voucher is published; the reservation
// marker alone prevents double admission even if the durable write lags.
type ScriptAdmitter struct {
	c      RedisClient
	seq    *Sequencer
	stream string // "" => caller commits synchronously
	log    surgecache.Logger
}

type ScriptConfig struct {
	Client    RedisClient
	Sequencer *Sequencer
	// Stream, when set, receives every admitted reservation for OrderWorker
	// to drain. Empty means the caller persists the order itself.
	Stream string
	Logger surgecache.Logger
}

func NewScriptAdmitter(cfg ScriptConfig) (*ScriptAdmitter, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("seckill: redis client is required")
	}
	if cfg.Sequencer == nil {
		return nil, fmt.Errorf("seckill: sequencer is required")
	}
	log := cfg.Logger
	if log == nil {
		log = surgecache.NopLogger{}
	}
	return &ScriptAdmitter{c: cfg.Client, seq: cfg.Sequencer, stream: cfg.Stream, log: log}, nil
}

func stockKey(voucherID int64) string {
	return "seckill:stock:" + strconv.FormatInt(voucherID, 10)
}

func orderSetKey(voucherID int64) string {
	return "seckill:order:" + strconv.FormatInt(voucherID, 10)
}

// Prime seeds the shared store with the voucher's remaining stock. Call when
// the voucher is published, before any admission traffic.
func (a *ScriptAdmitter) Prime(ctx context.Context, voucherID, stock int64) error {
	return a.c.Set(ctx, stockKey(voucherID), stock, 0).Err()
}

func (a *ScriptAdmitter) Admit(ctx context.Context, voucherID, userID int64) (Decision, error) {
	orderID, err := a.seq.NextID(ctx, "order")
	if err != nil {
		return Decision{}, err
	}

	user := strconv.FormatInt(userID, 10)
	voucher := strconv.FormatInt(voucherID, 10)

	var cmd *redis.Cmd
	if a.stream != "" {
		cmd = admitEnqueueScript.Run(ctx, a.c,
			[]string{stockKey(voucherID), orderSetKey(voucherID), a.stream},
			user, voucher, strconv.FormatInt(orderID, 10))
	} else {
		cmd = admitScript.Run(ctx, a.c,
			[]string{stockKey(voucherID), orderSetKey(voucherID)},
			user)
	}

	res, err := cmd.Int64()
	if err != nil {
		return Decision{}, fmt.Errorf("seckill: admit script: %w", err)
	}
	switch res {
	case 0:
		a.log.Debug("admitted", surgecache.Fields{"voucher": voucherID, "user": userID, "order": orderID})
		return Decision{Code: Admitted, OrderID: orderID}, nil
	case 1:
		return Decision{Code: NoStock}, nil
	case 2:
		return Decision{Code: Duplicate}, nil
	default:
		return Decision{}, fmt.Errorf("seckill: admit script returned %d", res)
	}
}
