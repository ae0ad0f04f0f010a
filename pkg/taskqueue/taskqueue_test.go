package taskqueue

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// TestCalculateBackoff is testable property #5.
func TestCalculateBackoff(t *testing.T) {
	for n := uint32(1); n <= 8; n++ {
		d := calculateBackoff(n)
		lower := time.Duration(1<<n) * time.Second
		upper := lower + time.Second
		assert.GreaterOrEqual(t, d, lower)
		assert.Less(t, d, upper)
	}
	for _, n := range []uint32{9, 10, 20} {
		d := calculateBackoff(n)
		assert.GreaterOrEqual(t, d, 300*time.Second)
		assert.Less(t, d, 301*time.Second)
	}
}

// TestTaskQueueInsert exercises a basic successful run.
func TestTaskQueueInsert(t *testing.T) {
	var processed atomic.Int32
	done := make(chan struct{})
	tq := New(Config[string]{
		MaxSize:         10,
		MaxFail:         3,
		ChannelCapacity: 4,
		MaxConcurrency:  2,
		Strategy:        BestEffort,
		Process: func(ctx context.Context, item *QueueItem[string]) error {
			processed.Add(1)
			close(done)
			return nil
		},
	}, testLogger())
	defer tq.Shutdown()

	ok := tq.Insert("job-1", "payload", 5)
	require.True(t, ok)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("process function never ran")
	}
	assert.Equal(t, int32(1), processed.Load())
}

// TestTaskQueueRetryCap is testable property #6: a process_fn that
// always fails is invoked exactly max_fail+1 times before abandonment.
func TestTaskQueueRetryCap(t *testing.T) {
	var calls atomic.Int32
	const maxFail = 3
	allCalls := make(chan struct{}, 16)

	tq := New(Config[string]{
		MaxSize:         10,
		MaxFail:         maxFail,
		ChannelCapacity: 4,
		MaxConcurrency:  1,
		Strategy:        BestEffort,
		Process: func(ctx context.Context, item *QueueItem[string]) error {
			calls.Add(1)
			allCalls <- struct{}{}
			return errors.New("always fails")
		},
	}, testLogger())
	defer tq.Shutdown()

	tq.Insert("flaky", "payload", 5)

	for i := 0; i < maxFail+1; i++ {
		select {
		case <-allCalls:
		// The third failure backs off 8s plus up to 1s of jitter.
		case <-time.After(10 * time.Second):
			t.Fatalf("timed out waiting for call %d", i+1)
		}
	}

	// No 5th call should show up within a reasonable window.
	select {
	case <-allCalls:
		t.Fatal("process_fn invoked more than max_fail+1 times")
	case <-time.After(400 * time.Millisecond):
	}
	assert.Equal(t, int32(maxFail+1), calls.Load())
}

// TestTaskQueueBlockEnqueueStrategy is testable property for the Block
// strategy: Insert blocks while the queue is full and succeeds once
// capacity frees up.
func TestTaskQueueBlockEnqueueStrategy(t *testing.T) {
	release := make(chan struct{})
	var wg sync.WaitGroup

	tq := New(Config[string]{
		MaxSize:         1,
		MaxFail:         0,
		ChannelCapacity: 1,
		MaxConcurrency:  1,
		Strategy:        Block,
		Process: func(ctx context.Context, item *QueueItem[string]) error {
			<-release
			return nil
		},
	}, testLogger())
	defer tq.Shutdown()

	require.True(t, tq.Insert("first", "p", 5))
	// Give the dispatcher a moment to pull "first" into the channel/worker.
	time.Sleep(50 * time.Millisecond)
	// Dispatched items leave the core. While "first" holds the only
	// permit, "second" waits in the worker for a permit, "third" sits in
	// the channel buffer and "fourth" in the dispatcher's pending send;
	// "fifth" then fills the core itself.
	require.True(t, tq.Insert("second", "p", 5))
	time.Sleep(50 * time.Millisecond)
	require.True(t, tq.Insert("third", "p", 5))
	time.Sleep(50 * time.Millisecond)
	require.True(t, tq.Insert("fourth", "p", 5))
	time.Sleep(50 * time.Millisecond)
	require.True(t, tq.Insert("fifth", "p", 5))

	wg.Add(1)
	blockedReturned := make(chan bool, 1)
	go func() {
		defer wg.Done()
		blockedReturned <- tq.Insert("sixth", "p", 5)
	}()

	select {
	case <-blockedReturned:
		t.Fatal("Insert returned before capacity freed")
	case <-time.After(200 * time.Millisecond):
	}

	close(release)
	select {
	case ok := <-blockedReturned:
		assert.True(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatal("blocked Insert never returned after capacity freed")
	}
	wg.Wait()
}
