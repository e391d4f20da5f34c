// Package estimator provides percentile estimation over a bounded window of
// scalar samples, used for per-(model,batch size) execution time and
// per-model weights-load time estimates.
package estimator

import "sort"

// SlidingWindow keeps the last Size samples of a scalar and estimates a
// configured percentile over them. Not safe for concurrent use; callers in
// this repo confine it to the scheduler's single run-loop goroutine.
//
// Grounded on original_source/src/clockwork/controller/infer_and_load_scheduler.h
// (util::SlidingWindow, estimate_window_size=10, estimate_percentile=0.99).
type SlidingWindow struct {
	samples    []int64
	size       int
	percentile float64
	next       int
	full       bool
}

// New creates a SlidingWindow holding up to size samples, estimating at the
// given percentile (0.99 means effectively max-of-window).
func New(size int, percentile float64) *SlidingWindow {
	if size <= 0 {
		size = 10
	}
	if percentile <= 0 || percentile > 1 {
		percentile = 0.99
	}
	return &SlidingWindow{
		samples:    make([]int64, 0, size),
		size:       size,
		percentile: percentile,
	}
}

// Add records a new sample, evicting the oldest once the window is full.
func (w *SlidingWindow) Add(sample int64) {
	if len(w.samples) < w.size {
		w.samples = append(w.samples, sample)
		return
	}
	w.samples[w.next] = sample
	w.next = (w.next + 1) % w.size
	w.full = true
}

// Estimate returns the sample at the configured percentile, or 0 if no
// samples have been recorded yet.
func (w *SlidingWindow) Estimate() int64 {
	n := len(w.samples)
	if n == 0 {
		return 0
	}
	sorted := make([]int64, n)
	copy(sorted, w.samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(w.percentile * float64(n))
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

// Len returns the number of samples currently held.
func (w *SlidingWindow) Len() int {
	return len(w.samples)
}
