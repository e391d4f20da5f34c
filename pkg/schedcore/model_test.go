package schedcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestModel(batchSizes []int) *Model {
	return NewModel(1, batchSizes, 4, 10, 0.99, 18_000_000 /* 18ms */, 1380)
}

func primeEstimate(m *Model, batch int, ns int64) {
	// Fill the window so Estimate(batch) returns exactly ns at default clock.
	for i := 0; i < 10; i++ {
		m.AddMeasurement(batch, ns, m.defaultClock)
	}
}

// TestModel_TryDequeue_EmptyQueueReturnsNoneWithoutMutation covers spec
// section 8's "empty queue" boundary behavior.
func TestModel_TryDequeue_EmptyQueueReturnsNoneWithoutMutation(t *testing.T) {
	m := newTestModel([]int{1, 2, 4})
	primeEstimate(m, 1, 1_000_000)

	action, ok := m.TryDequeue(0, 4, 5_000_000, 1380, 0)
	assert.False(t, ok)
	assert.Nil(t, action)
	assert.Equal(t, 0, m.QueueLen())
}

// TestModel_TryDequeue_PastDeadlineDropsViaTimeout covers spec section 8's
// "queue of 1 with deadline in the past" boundary behavior: try_dequeue
// drops it via timeout() and returns none.
func TestModel_TryDequeue_PastDeadlineDropsViaTimeout(t *testing.T) {
	m := newTestModel([]int{1, 2, 4})
	primeEstimate(m, 1, 1_000_000)

	var fired Response
	count := 0
	r := &Request{ID: "r1", ModelID: 1, Deadline: 5, Arrival: 0, Callback: func(resp Response) {
		count++
		fired = resp
	}}
	m.Enqueue(r)

	action, ok := m.TryDequeue(10, 4, 5_000_000, 1380, 100)
	assert.False(t, ok)
	assert.Nil(t, action)
	assert.Equal(t, 0, m.QueueLen())
	assert.Equal(t, 1, count)
	assert.Equal(t, StatusDeadlineExceeded, fired.Status)
}

// TestModel_TryDequeue_SingleSizeLadderAlwaysDispatchesOne covers spec
// section 8: "Batch size ladder with only {1}: scheduler always dispatches
// size 1."
func TestModel_TryDequeue_SingleSizeLadderAlwaysDispatchesOne(t *testing.T) {
	m := newTestModel([]int{1})
	primeEstimate(m, 1, 1_000_000)

	r := &Request{ID: "r1", ModelID: 1, Deadline: 1_000_000_000, Arrival: 0}
	m.Enqueue(r)

	action, ok := m.TryDequeue(0, 1, 5_000_000, 1380, 0)
	assert.True(t, ok)
	assert.Equal(t, 1, action.BatchSize)
	assert.Len(t, action.Requests, 1)
}

// TestModel_TryDequeue_ShrinksBatchWhenDeadlineTight verifies the batch
// size shrinks toward 1 when a larger batch's exec time would blow the
// earliest deadline in the candidate window (spec section 4.4 step 3).
func TestModel_TryDequeue_ShrinksBatchWhenDeadlineTight(t *testing.T) {
	m := newTestModel([]int{1, 2, 4})
	primeEstimate(m, 1, 1_000_000)  // 1ms
	primeEstimate(m, 2, 2_000_000)  // 2ms
	primeEstimate(m, 4, 10_000_000) // 10ms, too slow for the tight deadline below

	buffer := int64(1_000_000)
	// Four requests queued; the 4th has a near-term deadline that only
	// batch size 1 or 2 can meet.
	base := int64(0)
	for i, dl := range []int64{20_000_000, 20_000_000, 20_000_000, 4_000_000} {
		m.Enqueue(&Request{ID: string(rune('a' + i)), ModelID: 1, Arrival: base, Deadline: dl})
	}

	action, ok := m.TryDequeue(0, 4, buffer, 1380, 0)
	assert.True(t, ok)
	assert.LessOrEqual(t, action.BatchSize, 2)
}

// TestModel_BatchLookup_RespectsMaxAllowableExecTime verifies a batch size
// whose estimate exceeds max_allowable_exec_time (18ms) is never offered,
// matching spec section 8's backpressure scenario.
func TestModel_BatchLookup_RespectsMaxAllowableExecTime(t *testing.T) {
	m := newTestModel([]int{1, 2, 4})
	primeEstimate(m, 1, 30_000_000) // 30ms, over the 18ms cap
	primeEstimate(m, 2, 2_000_000)
	primeEstimate(m, 4, 4_000_000)

	_, found := m.BatchLookup(1, 1380)
	assert.False(t, found, "batch size 1 must be refused once its estimate exceeds max_allowable_exec_time")

	b, found := m.BatchLookup(4, 1380)
	assert.True(t, found)
	assert.Equal(t, 4, b)
}
