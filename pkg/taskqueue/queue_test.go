package taskqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAndPop(t *testing.T) {
	q := NewCore[string](10, 0)
	require.Equal(t, Inserted, q.InsertJob("a", "a", 5))
	require.Equal(t, Inserted, q.InsertJob("b", "b", 10))
	require.Equal(t, Inserted, q.InsertJob("c", "c", 7))

	first, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", first.Key)

	second, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "c", second.Key)

	third, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", third.Key)

	_, ok = q.Pop()
	assert.False(t, ok)
}

// TestQueueOrdering is testable property #1: for distinct ready-now
// items, Pop returns them in descending priority, ties broken by
// ascending seq.
func TestQueueOrdering(t *testing.T) {
	q := NewCore[int](10, 0)
	q.InsertJob("a", 1, 3)
	q.InsertJob("b", 2, 3)
	q.InsertJob("c", 3, 9)
	q.InsertJob("d", 4, 1)

	var popped []*QueueItem[int]
	for {
		item, ok := q.Pop()
		if !ok {
			break
		}
		popped = append(popped, item)
	}
	require.Len(t, popped, 4)
	for i := 1; i < len(popped); i++ {
		assert.GreaterOrEqual(t, popped[i-1].Priority, popped[i].Priority)
		if popped[i-1].Priority == popped[i].Priority {
			assert.LessOrEqual(t, popped[i-1].Seq, popped[i].Seq)
		}
	}
	assert.Equal(t, "c", popped[0].Key)
	assert.Equal(t, "a", popped[1].Key)
	assert.Equal(t, "b", popped[2].Key)
	assert.Equal(t, "d", popped[3].Key)
}

// TestInsertFullQueue is testable property #2: capacity never exceeded;
// a new key with priority <= current min when full is Dropped.
func TestInsertFullQueue(t *testing.T) {
	q := NewCore[string](2, 0)
	require.Equal(t, Inserted, q.InsertJob("a", "a", 5))
	require.Equal(t, Inserted, q.InsertJob("b", "b", 10))
	assert.Equal(t, Dropped, q.InsertJob("c", "c", 3))
	assert.Equal(t, 2, q.Len())
}

// TestInsertFullQueueEviction is testable property #2's other half:
// inserting with higher priority than the current min evicts exactly
// the minimum-priority key.
func TestInsertFullQueueEviction(t *testing.T) {
	q := NewCore[string](2, 0)
	q.InsertJob("a", "a", 5)
	q.InsertJob("b", "b", 10)
	assert.Equal(t, Inserted, q.InsertJob("c", "c", 7))
	assert.Equal(t, 2, q.Len())

	item, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", item.Key)
	item, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, "c", item.Key)
}

// TestInsertUpdate is testable property #3.
func TestInsertUpdate(t *testing.T) {
	q := NewCore[string](10, 0)
	require.Equal(t, Inserted, q.InsertJob("a", "a", 5))
	assert.Equal(t, Unchanged, q.InsertJob("a", "a2", 5))
	assert.Equal(t, Unchanged, q.InsertJob("a", "a2", 3))
	assert.Equal(t, Updated, q.InsertJob("a", "a3", 8))
	assert.Equal(t, 1, q.Len())

	item, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, uint8(8), item.Priority)
}

// TestPopWithAging is testable property #4.
func TestPopWithAging(t *testing.T) {
	q := NewCore[string](10, 200*time.Millisecond)
	q.InsertJob("a", "a", 5)
	time.Sleep(10 * time.Millisecond)
	q.InsertJob("b", "b", 10)

	// Before much aging has happened, b (higher raw priority) wins.
	item, ok := q.PopWithAging()
	require.True(t, ok)
	assert.Equal(t, "b", item.Key)

	q2 := NewCore[string](10, 50*time.Millisecond)
	q2.InsertJob("a", "a", 5)
	time.Sleep(220 * time.Millisecond) // ~4 aging intervals: effective 5+4=9
	q2.InsertJob("b", "b", 7)          // newer, raw priority above a's base 5

	item2, ok := q2.PopWithAging()
	require.True(t, ok)
	assert.Equal(t, "a", item2.Key)
}

func TestPeekTopK(t *testing.T) {
	q := NewCore[string](10, 0)
	q.InsertJob("a", "a", 5)
	q.InsertJob("b", "b", 10)
	q.InsertJob("c", "c", 7)

	top := q.PeekTopK(2)
	require.Len(t, top, 2)
	assert.Equal(t, "b", top[0].Key)
	assert.Equal(t, "c", top[1].Key)
	assert.Equal(t, 3, q.Len()) // peek does not remove
}

func TestPopRespectsRetryReadyAt(t *testing.T) {
	q := NewCore[string](10, 0)
	future := time.Now().Add(time.Hour)
	q.Insert("a", "a", 5, future)

	_, ok := q.Pop()
	assert.False(t, ok)
}
