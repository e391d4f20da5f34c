// Package timequeue provides a time-release priority queue: every entry
// carries an absolute release time, and dequeueing only yields entries
// whose release time has been reached. Used for pacing outbound worker
// actions so nothing is transmitted long before its dispatch window opens.
//
// Contract (spec section 5): Dequeue blocks until the minimum release time
// is <= now AND the queue is non-empty; TryDequeue is non-blocking and
// reports false if the top entry is not yet eligible; Shutdown releases all
// waiters, after which every dequeue returns the zero value and false. The
// queue guarantees earliest-release ordering but no FIFO among entries
// sharing a release time. The original busy-spins on a version counter;
// this implementation uses a condition variable with a timed wake to the
// next release instant, per the redesign note in spec section 9.
package timequeue

import (
	"container/heap"
	"sync"
	"time"
)

type entry[T any] struct {
	value   T
	release int64
	index   int
}

type entryHeap[T any] []*entry[T]

func (h entryHeap[T]) Len() int           { return len(h) }
func (h entryHeap[T]) Less(i, j int) bool { return h[i].release < h[j].release }

func (h entryHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap[T]) Push(x any) {
	e := x.(*entry[T])
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap[T]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Queue is a time-release priority queue of T. Safe for concurrent use.
type Queue[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond
	h    entryHeap[T]
	down bool
	now  func() int64
}

// New constructs a queue releasing against the wall clock.
func New[T any]() *Queue[T] {
	return NewWithClock[T](func() int64 { return time.Now().UnixNano() })
}

// NewWithClock constructs a queue with an injected nanosecond clock, for
// deterministic tests.
func NewWithClock[T any](now func() int64) *Queue[T] {
	q := &Queue[T]{now: now}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds v with the given absolute release time (ns). A release time
// in the past makes v immediately eligible. Entries enqueued after Shutdown
// are dropped.
func (q *Queue[T]) Enqueue(v T, releaseAt int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.down {
		return
	}
	heap.Push(&q.h, &entry[T]{value: v, release: releaseAt})
	q.cond.Broadcast()
}

// Dequeue blocks until an entry whose release time has been reached is
// available, then removes and returns it. Returns the zero value and false
// once the queue has been shut down.
func (q *Queue[T]) Dequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.down {
			var zero T
			return zero, false
		}
		if len(q.h) > 0 {
			wait := q.h[0].release - q.now()
			if wait <= 0 {
				return heap.Pop(&q.h).(*entry[T]).value, true
			}
			timer := time.AfterFunc(time.Duration(wait), q.cond.Broadcast)
			q.cond.Wait()
			timer.Stop()
			continue
		}
		q.cond.Wait()
	}
}

// TryDequeue removes and returns the earliest eligible entry without
// blocking; false if the queue is empty, shut down, or the top entry's
// release time is still in the future.
func (q *Queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.down || len(q.h) == 0 || q.h[0].release > q.now() {
		var zero T
		return zero, false
	}
	return heap.Pop(&q.h).(*entry[T]).value, true
}

// Shutdown releases every blocked Dequeue; all subsequent dequeues return
// the zero value and false. Entries still queued are discarded.
func (q *Queue[T]) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.down = true
	q.h = nil
	q.cond.Broadcast()
}

// Len reports the number of queued entries, eligible or not.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}
