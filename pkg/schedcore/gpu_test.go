package schedcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGpuState_TryLoadSucceedsWhenPagesExactlyFit covers spec section 8's
// boundary: free_pages == model.num_weights_pages must load without
// eviction.
func TestGpuState_TryLoadSucceedsWhenPagesExactlyFit(t *testing.T) {
	wt := NewWorkTracker(int64(100 * time.Millisecond))
	wt.RegisterGPU(1)
	wt.AddRequest(9, int64(50*time.Millisecond)) // enough pending demand to clear the load threshold

	g := NewGpuState(1, 4, 1380)
	m := newTestModel([]int{1})
	m.NumWeightsPages = 4
	m.AddLoadMeasurement(int64(2 * time.Millisecond))
	m.ID = 9

	action, needed, ok := g.TryLoad(0, wt, func(id int) *Model {
		if id == 9 {
			return m
		}
		return nil
	})
	require.True(t, ok)
	assert.Zero(t, needed)
	assert.Equal(t, 9, action.ModelID)
	assert.Equal(t, 0, g.FreePages)
	assert.Equal(t, 1, g.LoadingCount())

	inst := g.instanceFor(9)
	assert.True(t, inst.Loading)
	assert.False(t, inst.Loaded)
}

// TestGpuState_TryLoadReportsShortfallAndRollsBack verifies a candidate
// needing more pages than are free is rolled back (so the WorkTracker can
// offer it again next cycle) and the shortfall is reported for eviction.
func TestGpuState_TryLoadReportsShortfallAndRollsBack(t *testing.T) {
	wt := NewWorkTracker(int64(100 * time.Millisecond))
	wt.RegisterGPU(1)
	wt.AddRequest(9, int64(50*time.Millisecond))

	g := NewGpuState(1, 4, 1380)
	m := newTestModel([]int{1})
	m.NumWeightsPages = 8
	m.ID = 9

	_, needed, ok := g.TryLoad(0, wt, func(int) *Model { return m })
	assert.False(t, ok)
	assert.Equal(t, 8, needed)
	assert.Equal(t, 4, g.FreePages, "pages must not be reserved for a load that did not start")
	assert.Zero(t, g.LoadingCount())

	// The rollback cleared the WorkTracker's loading bit, so the candidate
	// is still offered once pages have been evicted.
	modelID, ok := wt.LoadModel(1, true)
	assert.True(t, ok)
	assert.Equal(t, 9, modelID)
}

// TestGpuState_CheckPendingDiscardsStaleVersion verifies a strategy pinned
// to an outdated instance version is discarded rather than dispatched
// (spec section 3's stale-action rule).
func TestGpuState_CheckPendingDiscardsStaleVersion(t *testing.T) {
	g := NewGpuState(1, 8, 1380)
	m := newTestModel([]int{1})
	primeEstimate(m, 1, 1_000_000)
	m.Enqueue(&Request{ID: "r", ModelID: 1, Deadline: 1_000_000_000})

	inst := g.instanceFor(1)
	inst.Loaded = true
	inst.Version = 2

	g.Strategies.Push(&InferStrategy{Priority: 0, Deadline: 100, ModelID: 1, BatchSize: 1, InstanceVersion: 1})

	dispatched := 0
	g.CheckPending(0, 10_000_000, 5_000_000, 3_000_000, map[int]*Model{1: m}, func(*InferAction) { dispatched++ })
	assert.Zero(t, dispatched)
	assert.Zero(t, g.Strategies.Len(), "the stale strategy must be consumed, not left queued")
	assert.Equal(t, 1, m.QueueLen(), "the request stays queued for a fresh strategy")
}

// TestGpuState_CheckPendingSetsDispatchWindow verifies the earliest/latest
// window of a dispatched InferAction per spec sections 4.5/4.6:
// earliest = reserved start, latest = min(deadline - buffer, start + latest_delta).
func TestGpuState_CheckPendingSetsDispatchWindow(t *testing.T) {
	g := NewGpuState(1, 8, 1380)
	m := newTestModel([]int{1})
	primeEstimate(m, 1, 5_000_000) // 5ms

	now := int64(1_000_000)
	deadline := now + 100_000_000
	m.Enqueue(&Request{ID: "r", ModelID: 1, Arrival: now, Deadline: deadline})

	inst := g.instanceFor(1)
	inst.Loaded = true

	g.Strategies.Push(&InferStrategy{Priority: now, Deadline: deadline, ModelID: 1, BatchSize: 1, InstanceVersion: 0})

	var action *InferAction
	g.CheckPending(now, 10_000_000, 5_000_000, 3_000_000, map[int]*Model{1: m}, func(a *InferAction) { action = a })
	require.NotNil(t, action)

	// Exec was idle since t=0, so the start clamps to now, not the stale
	// availableAt.
	assert.Equal(t, now, action.Earliest)
	assert.Equal(t, now+3_000_000, action.Latest, "start + latest_delta binds before deadline - buffer here")
	assert.Equal(t, now+5_000_000, g.Exec.AvailableAt(), "dispatch must reserve exec time")
}
