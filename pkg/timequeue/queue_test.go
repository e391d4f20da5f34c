package timequeue

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestQueue_TryDequeueRespectsReleaseTime verifies TryDequeue reports false
// while the top entry's release time is still in the future, then yields it
// once the clock catches up.
func TestQueue_TryDequeueRespectsReleaseTime(t *testing.T) {
	var clock atomic.Int64
	q := NewWithClock[string](clock.Load)

	q.Enqueue("a", 100)
	_, ok := q.TryDequeue()
	assert.False(t, ok, "entry must not release before its time")

	clock.Store(100)
	v, ok := q.TryDequeue()
	assert.True(t, ok)
	assert.Equal(t, "a", v)
}

// TestQueue_OrdersByReleaseTimeNotInsertion verifies earliest-release
// ordering regardless of enqueue order.
func TestQueue_OrdersByReleaseTimeNotInsertion(t *testing.T) {
	var clock atomic.Int64
	clock.Store(1000)
	q := NewWithClock[int](clock.Load)

	q.Enqueue(3, 300)
	q.Enqueue(1, 100)
	q.Enqueue(2, 200)

	for want := 1; want <= 3; want++ {
		v, ok := q.TryDequeue()
		assert.True(t, ok)
		assert.Equal(t, want, v)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok, "queue should be drained")
}

// TestQueue_DequeueBlocksUntilEligible verifies the blocking dequeue wakes
// on its own once the top entry's release time passes on the wall clock.
func TestQueue_DequeueBlocksUntilEligible(t *testing.T) {
	q := New[string]()
	release := time.Now().Add(30 * time.Millisecond).UnixNano()
	q.Enqueue("later", release)

	start := time.Now()
	v, ok := q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, "later", v)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond, "dequeue must not release early")
}

// TestQueue_ShutdownReleasesWaiters verifies Shutdown unblocks a pending
// Dequeue with the null sentinel and that later dequeues also report it.
func TestQueue_ShutdownReleasesWaiters(t *testing.T) {
	q := New[int]()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Dequeue()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Shutdown()

	select {
	case ok := <-done:
		assert.False(t, ok, "shutdown must release the waiter with the null sentinel")
	case <-time.After(time.Second):
		t.Fatal("Dequeue still blocked after Shutdown")
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok)
	q.Enqueue(1, 0)
	assert.Equal(t, 0, q.Len(), "entries enqueued after shutdown are dropped")
}
