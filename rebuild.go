package surgecache

import (
	"sync"
)

// OverflowPolicy decides what Submit does when the rebuild queue is full.
type OverflowPolicy int

const (
	// Drop rejects the task; Submit returns false. The reader already served
	// the stale value and the lock TTL frees the key for a later attempt.
	Drop OverflowPolicy = iota
	// Block waits for queue space. Only sensible for warm-up tooling, never
	// on a request path.
	Block
)

// Rebuilder is a bounded pool of background workers draining cache-refresh
// tasks. It is constructed explicitly and injected - there is no ambient
// process-wide pool.
type Rebuilder struct {
	q      chan func()
	wg     sync.WaitGroup
	once   sync.Once
	policy OverflowPolicy
	log    Logger
}

// NewRebuilder starts workers goroutines consuming a queue of qlen tasks.
// workers <= 0 defaults to 10, qlen <= 0 to 256.
func NewRebuilder(workers, qlen int, policy OverflowPolicy, log Logger) *Rebuilder {
	if workers <= 0 {
		workers = 10
	}
	if qlen <= 0 {
		qlen = 256
	}
	if log == nil {
		log = NopLogger{}
	}

	r := &Rebuilder{q: make(chan func(), qlen), policy: policy, log: log}
	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer r.wg.Done()
			for task := range r.q {
				r.run(task)
			}
		}()
	}
	return r
}

func (r *Rebuilder) run(task func()) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("rebuild task panic", Fields{"panic": p})
		}
	}()
	task()
}

// Submit enqueues a task. Under Drop it returns false when the queue is full;
// under Block it waits. Tasks are fire-and-forget: failures stay in the
// worker and are never surfaced to the read path that scheduled them.
// Must not be called after Close.
func (r *Rebuilder) Submit(task func()) bool {
	if r.policy == Block {
		r.q <- task
		return true
	}
	select {
	case r.q <- task:
		return true
	default:
		return false
	}
}

// Close stops intake and waits for queued tasks to finish.
func (r *Rebuilder) Close() {
	r.once.Do(func() {
		close(r.q)
		r.wg.Wait()
	})
}
