package seckill

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/surgecache"
)

// StreamClient is the slice of the redis stream API the worker needs.
// redis.UniversalClient satisfies it.
type StreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// OrderWorker drains admitted reservations off the stream the script admitter
// feeds and commits each one durably. Entries are acked only after a
// successful commit; anything left pending is replayed before new entries are
// taken again, so a crash between admit and commit loses nothing.
type OrderWorker struct {
	c         StreamClient
	committer *Committer
	stream    string
	group     string
	consumer  string
	block     time.Duration
	log       surgecache.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

type WorkerConfig struct {
	Client    StreamClient
	Committer *Committer
	Stream    string // must match ScriptConfig.Stream
	Group     string // consumer group; defaults to "g1"
	Consumer  string // consumer name within the group; defaults to "c1"
	Block     time.Duration // read block window; 0 => 2s
	Logger    surgecache.Logger
}

func NewOrderWorker(cfg WorkerConfig) (*OrderWorker, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("seckill: redis client is required")
	}
	if cfg.Committer == nil {
		return nil, fmt.Errorf("seckill: committer is required")
	}
	if cfg.Stream == "" {
		return nil, fmt.Errorf("seckill: stream is required")
	}
	w := &OrderWorker{
		c:         cfg.Client,
		committer: cfg.Committer,
		stream:    cfg.Stream,
		group:     cfg.Group,
		consumer:  cfg.Consumer,
		block:     cfg.Block,
		log:       cfg.Logger,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if w.group == "" {
		w.group = "g1"
	}
	if w.consumer == "" {
		w.consumer = "c1"
	}
	if w.block <= 0 {
		w.block = 2 * time.Second
	}
	if w.log == nil {
		w.log = surgecache.NopLogger{}
	}
	return w, nil
}

// Start creates the consumer group if needed and begins draining.
func (w *OrderWorker) Start(ctx context.Context) error {
	err := w.c.XGroupCreateMkStream(ctx, w.stream, w.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("seckill: create group %s: %w", w.group, err)
	}
	go w.run()
	return nil
}

// Stop halts intake and waits for the current batch to finish.
func (w *OrderWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}

func (w *OrderWorker) run() {
	defer close(w.done)
	ctx := context.Background()

	for {
		select {
		case <-w.stop:
			return
		default:
		}

		streams, err := w.c.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    w.group,
			Consumer: w.consumer,
			Streams:  []string{w.stream, ">"},
			Count:    10,
			Block:    w.block,
		}).Result()
		if err == redis.Nil {
			continue // nothing new within the block window
		}
		if err != nil {
			w.log.Error("stream read failed", surgecache.Fields{"stream": w.stream, "err": err})
			select {
			case <-w.stop:
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if w.handleBatch(ctx, streams) {
			w.drainPending(ctx)
		}
	}
}

// handleBatch commits and acks each message; reports whether any commit
// failed and was left pending.
func (w *OrderWorker) handleBatch(ctx context.Context, streams []redis.XStream) (failed bool) {
	for _, s := range streams {
		for _, msg := range s.Messages {
			if err := w.handle(ctx, msg); err != nil {
				failed = true
			}
		}
	}
	return failed
}

func (w *OrderWorker) handle(ctx context.Context, msg redis.XMessage) error {
	o, err := parseOrder(msg.Values)
	if err != nil {
		// poison entry: ack it away, it will never commit
		w.log.Error("unparseable reservation; discarding", surgecache.Fields{"id": msg.ID, "err": err})
		_ = w.c.XAck(ctx, w.stream, w.group, msg.ID).Err()
		return nil
	}

	if err := w.committer.Commit(ctx, o); err != nil {
		w.log.Error("reservation commit failed; left pending", surgecache.Fields{"id": msg.ID, "err": err})
		return err
	}
	return w.c.XAck(ctx, w.stream, w.group, msg.ID).Err()
}

// drainPending replays this consumer's unacked entries until none remain.
func (w *OrderWorker) drainPending(ctx context.Context) {
	for {
		select {
		case <-w.stop:
			return
		default:
		}

		streams, err := w.c.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    w.group,
			Consumer: w.consumer,
			Streams:  []string{w.stream, "0"},
			Count:    10,
		}).Result()
		if err == redis.Nil {
			return
		}
		if err != nil {
			w.log.Error("pending read failed", surgecache.Fields{"stream": w.stream, "err": err})
			return
		}

		empty := true
		for _, s := range streams {
			if len(s.Messages) > 0 {
				empty = false
			}
		}
		if empty {
			return
		}

		if w.handleBatch(ctx, streams) {
			select {
			case <-w.stop:
				return
			case <-time.After(20 * time.Millisecond):
			}
		}
	}
}

func parseOrder(values map[string]interface{}) (Order, error) {
	user, err := fieldInt64(values, "userId")
	if err != nil {
		return Order{}, err
	}
	voucher, err := fieldInt64(values, "voucherId")
	if err != nil {
		return Order{}, err
	}
	id, err := fieldInt64(values, "id")
	if err != nil {
		return Order{}, err
	}
	return Order{ID: id, UserID: user, VoucherID: voucher, CreatedAt: time.Now()}, nil
}

func fieldInt64(values map[string]interface{}, key string) (int64, error) {
	raw, ok := values[key]
	if !ok {
		return 0, fmt.Errorf("missing field %q", key)
	}
	s, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("field %q is %T, want string", key, raw)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", key, err)
	}
	return n, nil
}
