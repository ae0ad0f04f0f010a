// Package taskqueue implements the priority-aging queue (C4) and the
// dispatcher/worker pipeline built around it (C5), generic over a job
// payload type J.
package taskqueue

import (
	"container/heap"
	"sort"
	"sync"
	"time"
)

// QueueItem is one logical job tracked by the queue. key uniquely
// identifies it; reinserting the same key with a strictly higher
// priority updates it in place.
type QueueItem[J any] struct {
	Key          string
	Payload      J
	Priority     uint8
	InsertedAt   time.Time
	RetryReadyAt time.Time
	Seq          uint64
	FailCount    uint32
}

// InsertResult is the outcome of a PriorityQueueCore.Insert call.
type InsertResult int

const (
	Inserted InsertResult = iota
	Updated
	Unchanged
	Dropped
)

func (r InsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// PriorityQueueCore is a bounded concurrent map plus a binary heap
// ordered by (priority, Reverse(retry_ready_at), inserted_at, seq, key).
// It is safe for concurrent use: observers never see a key in the map
// without an up-to-date heap entry, nor a heap entry whose key has been
// removed (stale heap entries are tolerated and filtered at pop time).
//
// Ported from original_source/apps/scheduler/queue/src/priority_queue_core.rs.
type PriorityQueueCore[J any] struct {
	mu            sync.Mutex
	items         map[string]*QueueItem[J]
	h             entryHeap
	heapIndex     map[string]heapEntry
	maxSize       int
	agingInterval time.Duration // 0 disables aging; pop_with_aging degrades to pop.
	nextSeq       uint64
}

// NewCore builds a core with the given capacity. An agingInterval of 0
// disables aging (PopWithAging degrades to Pop).
func NewCore[J any](maxSize int, agingInterval time.Duration) *PriorityQueueCore[J] {
	return &PriorityQueueCore[J]{
		items:         make(map[string]*QueueItem[J]),
		heapIndex:     make(map[string]heapEntry),
		maxSize:       maxSize,
		agingInterval: agingInterval,
	}
}

// Len returns the number of live items.
func (q *PriorityQueueCore[J]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsEmpty reports whether the queue holds no live items.
func (q *PriorityQueueCore[J]) IsEmpty() bool {
	return q.Len() == 0
}

// MaxSize returns the queue's configured capacity.
func (q *PriorityQueueCore[J]) MaxSize() int { return q.maxSize }

func saturatingAddU8(a uint8, b int) uint8 {
	sum := int(a) + b
	if sum > 255 {
		return 255
	}
	if sum < 0 {
		return 0
	}
	return uint8(sum)
}

// InsertJob is the common producer entry point: insert a job ready
// immediately (retry_ready_at = now). Used by C5's insert(key, payload,
// priority).
func (q *PriorityQueueCore[J]) InsertJob(key string, payload J, priority uint8) InsertResult {
	return q.Insert(key, payload, priority, time.Time{})
}

// Insert applies spec.md §4.4's exact insert semantics. A zero
// retryReadyAt means "ready now".
func (q *PriorityQueueCore[J]) Insert(key string, payload J, priority uint8, retryReadyAt time.Time) InsertResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	if retryReadyAt.IsZero() {
		retryReadyAt = now
	}

	if existing, ok := q.items[key]; ok {
		if priority <= existing.Priority {
			return Unchanged
		}
		oldEntry := q.heapIndex[key]
		q.removeHeapEntryLocked(oldEntry)

		existing.Payload = payload
		existing.Priority = priority
		newEntry := heapEntry{
			priority:     priority,
			retryReadyAt: existing.RetryReadyAt,
			insertedAt:   existing.InsertedAt,
			seq:          existing.Seq,
			key:          key,
		}
		heap.Push(&q.h, newEntry)
		q.heapIndex[key] = newEntry
		return Updated
	}

	if len(q.items) < q.maxSize {
		q.insertNewLocked(key, payload, priority, now, retryReadyAt)
		return Inserted
	}

	minKey, minEntry, found := q.minPriorityEntryLocked()
	if !found || priority <= minEntry.priority {
		return Dropped
	}
	delete(q.items, minKey)
	q.removeHeapEntryLocked(minEntry)
	delete(q.heapIndex, minKey)
	q.insertNewLocked(key, payload, priority, now, retryReadyAt)
	return Inserted
}

func (q *PriorityQueueCore[J]) insertNewLocked(key string, payload J, priority uint8, insertedAt, retryReadyAt time.Time) {
	seq := q.nextSeq
	q.nextSeq++
	item := &QueueItem[J]{
		Key:          key,
		Payload:      payload,
		Priority:     priority,
		InsertedAt:   insertedAt,
		RetryReadyAt: retryReadyAt,
		Seq:          seq,
	}
	q.items[key] = item
	entry := heapEntry{priority: priority, retryReadyAt: retryReadyAt, insertedAt: insertedAt, seq: seq, key: key}
	heap.Push(&q.h, entry)
	q.heapIndex[key] = entry
}

// minPriorityEntryLocked finds the current (non-stale) heap entry with
// the lowest priority, tie-broken by lowest seq then key for determinism.
func (q *PriorityQueueCore[J]) minPriorityEntryLocked() (string, heapEntry, bool) {
	keys := make([]string, 0, len(q.heapIndex))
	for k := range q.heapIndex {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var minKey string
	var minEntry heapEntry
	found := false
	for _, k := range keys {
		e := q.heapIndex[k]
		if !found || e.priority < minEntry.priority ||
			(e.priority == minEntry.priority && e.seq < minEntry.seq) {
			minKey = k
			minEntry = e
			found = true
		}
	}
	return minKey, minEntry, found
}

func (q *PriorityQueueCore[J]) removeHeapEntryLocked(e heapEntry) {
	for i := 0; i < q.h.Len(); i++ {
		if q.h[i] == e {
			heap.Remove(&q.h, i)
			return
		}
	}
}

// Pop returns the next ready item, or (nil, false) if the heap is
// empty or its head is not yet eligible (retry_ready_at > now). Stale
// heap entries left behind by eviction/update are skipped transparently.
func (q *PriorityQueueCore[J]) Pop() (*QueueItem[J], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked(time.Now())
}

func (q *PriorityQueueCore[J]) popLocked(now time.Time) (*QueueItem[J], bool) {
	for q.h.Len() > 0 {
		top := q.h[0]
		if top.retryReadyAt.After(now) {
			return nil, false
		}
		heap.Pop(&q.h)
		current, ok := q.heapIndex[top.key]
		if !ok || current != top {
			continue // stale: a newer entry for this key (or none) exists
		}
		item, ok := q.items[top.key]
		if !ok {
			continue
		}
		delete(q.items, top.key)
		delete(q.heapIndex, top.key)
		return item, true
	}
	return nil, false
}

// PopWithAging implements spec.md §4.4's aging pop: among ready entries,
// it picks the one maximizing (effective_priority, then smaller seq),
// where effective_priority = base_priority + saturating(age/interval).
// If aging is disabled it degrades to Pop.
func (q *PriorityQueueCore[J]) PopWithAging() (*QueueItem[J], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.agingInterval <= 0 {
		return q.popLocked(time.Now())
	}

	now := time.Now()
	bestIdx := -1
	var bestEntry heapEntry
	var bestEffective uint8

	for i := 0; i < q.h.Len(); i++ {
		e := q.h[i]
		if e.retryReadyAt.After(now) {
			continue
		}
		current, ok := q.heapIndex[e.key]
		if !ok || current != e {
			continue
		}
		age := now.Sub(e.insertedAt)
		ageBuckets := int(age / q.agingInterval)
		effective := saturatingAddU8(e.priority, ageBuckets)

		if bestIdx == -1 ||
			effective > bestEffective ||
			(effective == bestEffective && e.seq < bestEntry.seq) {
			bestIdx = i
			bestEntry = e
			bestEffective = effective
		}
	}

	if bestIdx == -1 {
		return nil, false
	}
	heap.Remove(&q.h, bestIdx)
	delete(q.heapIndex, bestEntry.key)
	item, ok := q.items[bestEntry.key]
	if !ok {
		return nil, false
	}
	delete(q.items, bestEntry.key)
	return item, true
}

// PeekTopK returns up to k ready items without removing them, ordered
// highest priority first.
func (q *PriorityQueueCore[J]) PeekTopK(k int) []*QueueItem[J] {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	entries := make([]heapEntry, 0, q.h.Len())
	for i := 0; i < q.h.Len(); i++ {
		e := q.h[i]
		if e.retryReadyAt.After(now) {
			continue
		}
		current, ok := q.heapIndex[e.key]
		if !ok || current != e {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].less(entries[j]) })

	if k > len(entries) {
		k = len(entries)
	}
	out := make([]*QueueItem[J], 0, k)
	for _, e := range entries[:k] {
		if item, ok := q.items[e.key]; ok {
			out = append(out, item)
		}
	}
	return out
}
