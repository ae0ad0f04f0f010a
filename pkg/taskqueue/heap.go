package taskqueue

import "time"

// heapEntry is one immutable slot in the binary heap: ordered by
// (priority, Reverse(retryReadyAt), insertedAt, seq, key) to match
// original_source's HeapEntry tuple exactly. Because entries are
// immutable, any mutation to a key evicts its old entry and pushes a
// new one; heapIndex on the queue tracks which entry is current so
// stale ones can be recognized and skipped at pop time.
type heapEntry struct {
	priority     uint8
	retryReadyAt time.Time
	insertedAt   time.Time
	seq          uint64
	key          string
}

// less implements the same ordering as the tuple
// (priority, Reverse(retry_ready_at), inserted_at, seq, key):
// higher priority first; on a tie, the entry ready sooner (smaller
// retryReadyAt) first; on a further tie, inserted earlier first; then
// lower seq first; key breaks any remaining tie deterministically.
func (e heapEntry) less(o heapEntry) bool {
	if e.priority != o.priority {
		return e.priority > o.priority
	}
	if !e.retryReadyAt.Equal(o.retryReadyAt) {
		return e.retryReadyAt.Before(o.retryReadyAt)
	}
	if !e.insertedAt.Equal(o.insertedAt) {
		return e.insertedAt.Before(o.insertedAt)
	}
	if e.seq != o.seq {
		return e.seq < o.seq
	}
	return e.key < o.key
}

// entryHeap is a container/heap.Interface over []heapEntry.
type entryHeap []heapEntry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].less(h[j]) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(heapEntry)) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
