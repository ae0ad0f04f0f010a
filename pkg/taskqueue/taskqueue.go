package taskqueue

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// ProcessFunc is invoked by a worker for each dequeued item. A
// non-nil error triggers the retry-with-backoff path.
type ProcessFunc[J any] func(ctx context.Context, item *QueueItem[J]) error

// EnqueueStrategy controls Insert's behavior when the queue is full.
type EnqueueStrategy int

const (
	// BestEffort forwards straight to the core and reports whether it
	// landed (Inserted or Updated).
	BestEffort EnqueueStrategy = iota
	// Block retries until capacity frees or the queue shuts down.
	Block
)

// Config parameterizes a TaskQueue.
type Config[J any] struct {
	MaxSize         int
	MaxFail         uint32
	ChannelCapacity int
	MaxConcurrency  int64
	Strategy        EnqueueStrategy
	AgingInterval   time.Duration // 0 disables aging
	Process         ProcessFunc[J]
}

// TaskQueue wraps a PriorityQueueCore with a dispatcher/worker pipeline:
// the dispatcher pops ready items and hands them to a bounded pool of
// workers that invoke Process and reinsert failures with exponential
// backoff. Ported from original_source/apps/scheduler/queue/src/lib.rs.
type TaskQueue[J any] struct {
	core           *PriorityQueueCore[J]
	process        ProcessFunc[J]
	maxFail        uint32
	strategy       EnqueueStrategy
	maxConcurrency int64

	sem *semaphore.Weighted
	ch  chan *QueueItem[J]

	newItem        chan struct{}
	capacityFreed  chan struct{}
	shutdown       chan struct{}
	shutdownOnce   sync.Once
	wg             sync.WaitGroup
	log            zerolog.Logger
}

// New builds and starts a TaskQueue: its dispatcher and worker
// goroutines run until Shutdown is called.
func New[J any](cfg Config[J], log zerolog.Logger) *TaskQueue[J] {
	if cfg.ChannelCapacity <= 0 {
		cfg.ChannelCapacity = 1
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	tq := &TaskQueue[J]{
		core:           NewCore[J](cfg.MaxSize, cfg.AgingInterval),
		process:        cfg.Process,
		maxFail:        cfg.MaxFail,
		strategy:       cfg.Strategy,
		maxConcurrency: cfg.MaxConcurrency,
		sem:            semaphore.NewWeighted(cfg.MaxConcurrency),
		ch:             make(chan *QueueItem[J], cfg.ChannelCapacity),
		newItem:        make(chan struct{}, 1),
		capacityFreed:  make(chan struct{}, 1),
		shutdown:       make(chan struct{}),
		log:            log,
	}

	tq.wg.Add(2)
	go tq.dispatchLoop()
	go tq.workerLoop()
	return tq
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Insert is the producer entry point: insert(key, payload, priority) -> bool.
func (tq *TaskQueue[J]) Insert(key string, payload J, priority uint8) bool {
	switch tq.strategy {
	case Block:
		for {
			res := tq.core.InsertJob(key, payload, priority)
			switch res {
			case Inserted, Updated:
				signal(tq.newItem)
				return true
			case Unchanged:
				return true
			case Dropped:
				select {
				case <-tq.capacityFreed:
				case <-tq.shutdown:
					return false
				}
			}
		}
	default: // BestEffort
		res := tq.core.InsertJob(key, payload, priority)
		ok := res == Inserted || res == Updated
		if ok {
			signal(tq.newItem)
		}
		return ok
	}
}

// pollInterval is the dispatcher's safety-net re-check period: it
// covers the case where the head of the heap has a future
// retry_ready_at (backoff/aging) and nothing else triggers a new-item
// signal before that time arrives.
const pollInterval = 50 * time.Millisecond

func (tq *TaskQueue[J]) dispatchLoop() {
	defer tq.wg.Done()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		var item *QueueItem[J]
		var ok bool
		if tq.core.agingInterval > 0 {
			item, ok = tq.core.PopWithAging()
		} else {
			item, ok = tq.core.Pop()
		}

		if ok {
			select {
			case tq.ch <- item:
				signal(tq.capacityFreed)
			case <-tq.shutdown:
				return
			}
			continue
		}

		select {
		case <-tq.newItem:
		case <-ticker.C:
		case <-tq.shutdown:
			return
		}
	}
}

func (tq *TaskQueue[J]) workerLoop() {
	defer tq.wg.Done()
	for {
		select {
		case item, ok := <-tq.ch:
			if !ok {
				return
			}
			if err := tq.sem.Acquire(context.Background(), 1); err != nil {
				return
			}
			tq.wg.Add(1)
			go tq.runOne(item)
		case <-tq.shutdown:
			return
		}
	}
}

func (tq *TaskQueue[J]) runOne(item *QueueItem[J]) {
	defer tq.wg.Done()
	defer tq.sem.Release(1)

	err := tq.process(context.Background(), item)
	if err == nil {
		return
	}

	item.FailCount++
	if item.FailCount <= tq.maxFail {
		backoff := calculateBackoff(item.FailCount)
		retryAt := time.Now().Add(backoff)
		// The prior Pop removed this key, so this reinsert follows the
		// core's ordinary insert rules: normally Inserted; if a producer
		// re-added the key meanwhile, the existing entry is kept unless
		// this priority is higher; on a full core the eviction rule
		// applies and the retry can be Dropped.
		tq.core.Insert(item.Key, item.Payload, item.Priority, retryAt)
		signal(tq.newItem)
		return
	}

	tq.log.Error().Str("key", item.Key).Uint32("fail_count", item.FailCount).
		Msg("job abandoned after exceeding max_fail")
}

// calculateBackoff mirrors original_source's calculate_backoff:
// min(2^fail_count, 300) seconds, plus jitter in [0, 1000) ms.
func calculateBackoff(failCount uint32) time.Duration {
	secs := math.Pow(2, float64(failCount))
	if secs > 300 {
		secs = 300
	}
	jitter := time.Duration(rand.IntN(1000)) * time.Millisecond
	return time.Duration(secs*float64(time.Second)) + jitter
}

// Shutdown signals the dispatcher and workers to stop, then waits for
// all in-flight permits to be returned before returning.
func (tq *TaskQueue[J]) Shutdown() {
	tq.shutdownOnce.Do(func() { close(tq.shutdown) })
	_ = tq.sem.Acquire(context.Background(), tq.maxConcurrency)
	tq.wg.Wait()
}

// Len reports the number of jobs currently tracked by the underlying core.
func (tq *TaskQueue[J]) Len() int { return tq.core.Len() }

// MaxSize reports the underlying core's capacity.
func (tq *TaskQueue[J]) MaxSize() int { return tq.core.MaxSize() }
