package schedcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestWorkerTracker_ScheduleAdvancesAvailableAt verifies Schedule returns
// max(available_at, earliest_start) and reserves duration past it, per
// spec section 4.2.
func TestWorkerTracker_ScheduleAdvancesAvailableAt(t *testing.T) {
	var wt WorkerTracker

	start := wt.Schedule(10, 0)
	assert.Equal(t, int64(0), start)
	assert.Equal(t, int64(10), wt.AvailableAt())

	// Next job, earliest_start before available_at: starts at available_at.
	start = wt.Schedule(5, 3)
	assert.Equal(t, int64(10), start)
	assert.Equal(t, int64(15), wt.AvailableAt())

	// Next job, earliest_start after available_at: starts at earliest_start.
	start = wt.Schedule(2, 100)
	assert.Equal(t, int64(100), start)
	assert.Equal(t, int64(102), wt.AvailableAt())
}

// TestWorkerTracker_AddLoadMovesAvailableAtWithoutReservation verifies
// AddLoad advances the timeline without returning a start time.
func TestWorkerTracker_AddLoadMovesAvailableAtWithoutReservation(t *testing.T) {
	var wt WorkerTracker
	wt.AddLoad(50)
	assert.Equal(t, int64(50), wt.AvailableAt())
	wt.AddLoad(10)
	assert.Equal(t, int64(60), wt.AvailableAt())
}
