package estimator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSlidingWindow_EmptyReturnsZero verifies an estimator with no samples
// never reports a nonzero estimate.
func TestSlidingWindow_EmptyReturnsZero(t *testing.T) {
	w := New(10, 0.99)
	assert.Equal(t, int64(0), w.Estimate())
	assert.Equal(t, 0, w.Len())
}

// TestSlidingWindow_MaxPercentileIsMaxOfWindow verifies the default
// percentile (0.99) behaves as effectively max-of-window for a small
// window, per spec section 4.1.
func TestSlidingWindow_MaxPercentileIsMaxOfWindow(t *testing.T) {
	w := New(5, 0.99)
	for _, s := range []int64{10, 50, 20, 5, 30} {
		w.Add(s)
	}
	assert.Equal(t, int64(50), w.Estimate())
}

// TestSlidingWindow_EvictsOldestOnceFull verifies the window holds only the
// last Size samples.
func TestSlidingWindow_EvictsOldestOnceFull(t *testing.T) {
	w := New(3, 0.99)
	w.Add(100)
	w.Add(1)
	w.Add(2)
	w.Add(3) // evicts the 100
	assert.Equal(t, 3, w.Len())
	assert.Equal(t, int64(3), w.Estimate())
}

// TestSlidingWindow_MedianPercentile verifies a lower percentile picks an
// interior rank, not the max.
func TestSlidingWindow_MedianPercentile(t *testing.T) {
	w := New(4, 0.5)
	for _, s := range []int64{1, 2, 3, 4} {
		w.Add(s)
	}
	assert.Equal(t, int64(3), w.Estimate())
}
