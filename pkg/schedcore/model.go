package schedcore

import (
	"github.com/clockworkgo/controller/pkg/estimator"
)

// Model is the per-model scheduler state shared across every GPU that could
// host it: its request queue, batch-size ladder, and exec/load estimators.
//
// Grounded on original_source/src/clockwork/controller/infer_and_load_scheduler.h
// (Model, BatchedModel).
type Model struct {
	ID int

	// BatchSizes is ascending, each typically a power of two (spec section
	// 3's "Model" invariant).
	BatchSizes []int

	NumWeightsPages int

	queue []*Request

	execEstimators map[int]*estimator.SlidingWindow // batch size -> estimator
	loadEstimator  *estimator.SlidingWindow

	maxAllowableExecNS int64
	defaultClock       int

	instances map[int]*ModelInstance // gpu id -> instance
}

// ModelInstance is one GPU's residency record for a Model: whether it's
// loaded, loading, or evicted, and a version counter that invalidates
// in-flight InferStrategy entries when residency changes.
type ModelInstance struct {
	ModelID int
	GPUID   int
	Loaded  bool
	Loading bool
	Version int
}

// NewModel constructs per-model scheduler state. batchSizes must be
// ascending and non-empty (enforced at bootstrap, see bootstrap.go).
func NewModel(id int, batchSizes []int, numWeightsPages int, estimateWindow int, estimatePercentile float64, maxAllowableExecNS int64, defaultClock int) *Model {
	m := &Model{
		ID:                 id,
		BatchSizes:         batchSizes,
		NumWeightsPages:    numWeightsPages,
		execEstimators:     make(map[int]*estimator.SlidingWindow, len(batchSizes)),
		loadEstimator:      estimator.New(estimateWindow, estimatePercentile),
		maxAllowableExecNS: maxAllowableExecNS,
		defaultClock:       defaultClock,
		instances:          make(map[int]*ModelInstance),
	}
	for _, b := range batchSizes {
		m.execEstimators[b] = estimator.New(estimateWindow, estimatePercentile)
	}
	return m
}

// Estimate returns the exec-time estimate for batchSize at currentClock,
// scaling the percentile sample from default_clock to current_clock.
func (m *Model) Estimate(batchSize int, currentClock int) int64 {
	w, ok := m.execEstimators[batchSize]
	if !ok || currentClock <= 0 {
		return 0
	}
	sample := w.Estimate()
	if sample == 0 {
		return 0
	}
	return sample * int64(m.defaultClock) / int64(currentClock)
}

// AddMeasurement records an observed exec duration for batchSize, scaling
// it from the clock it was measured at back to default_clock so later
// estimates at any clock rate are comparable.
func (m *Model) AddMeasurement(batchSize int, durationNS int64, clock int) {
	w, ok := m.execEstimators[batchSize]
	if !ok || clock <= 0 {
		return
	}
	w.Add(durationNS * int64(m.defaultClock) / int64(clock))
}

// LoadEstimate and AddLoadMeasurement mirror Estimate/AddMeasurement for
// weights-load duration.
func (m *Model) LoadEstimate() int64 { return m.loadEstimator.Estimate() }

func (m *Model) AddLoadMeasurement(durationNS int64) { m.loadEstimator.Add(durationNS) }

// Enqueue appends a Request to the model's FIFO.
func (m *Model) Enqueue(r *Request) {
	m.queue = append(m.queue, r)
}

// QueueLen reports the number of requests currently queued.
func (m *Model) QueueLen() int { return len(m.queue) }

// BatchLookup returns the largest supported batch size b <= n such that
// Estimate(b) <= max_allowable_exec_time, and whether any such size exists.
func (m *Model) BatchLookup(n, currentClock int) (int, bool) {
	best := 0
	found := false
	for _, b := range m.BatchSizes {
		if b > n {
			break
		}
		if m.Estimate(b, currentClock) <= m.maxAllowableExecNS {
			best = b
			found = true
		}
	}
	return best, found
}

// nextSmaller returns the largest supported batch size strictly less than b,
// or 0 if none exists.
func (m *Model) nextSmaller(b int) int {
	best := 0
	for _, candidate := range m.BatchSizes {
		if candidate < b && candidate > best {
			best = candidate
		}
	}
	return best
}

// TryDequeue implements spec section 4.4's try_dequeue: drop expired
// requests from the queue head, then attempt to pop a batch that can meet
// its deadline given gpuFreeAt. bufferNS and currentClock come from the
// caller's config/clock state. Returns the constructed InferAction (which
// holds the requests it consumed) and whether dequeue succeeded.
func (m *Model) TryDequeue(gpuFreeAt int64, strategyBatchSize int, bufferNS int64, currentClock int, now int64) (*InferAction, bool) {
	// Step 1: drop requests that can't meet their deadline even at batch
	// size 1, regardless of strategy.
	estimate1 := m.Estimate(1, currentClock)
	for len(m.queue) > 0 {
		head := m.queue[0]
		if head.Deadline < gpuFreeAt+estimate1+bufferNS {
			head.timeout(now)
			m.queue = m.queue[1:]
			continue
		}
		break
	}

	n := len(m.queue)
	if n == 0 {
		return nil, false
	}

	want := strategyBatchSize
	if want > n {
		want = n
	}
	b, found := m.BatchLookup(want, currentClock)
	if !found {
		return nil, false
	}

	for b > 0 {
		if b > n {
			b = m.nextSmaller(b)
			continue
		}
		duration := m.Estimate(b, currentClock)
		// earliest deadline among the first b requests (queue order, FIFO,
		// but deadlines needn't be monotone if priorities differ).
		dStar := m.queue[0].Deadline
		for i := 1; i < b; i++ {
			if m.queue[i].Deadline < dStar {
				dStar = m.queue[i].Deadline
			}
		}
		if gpuFreeAt+duration+bufferNS <= dStar {
			batch := make([]*Request, b)
			copy(batch, m.queue[:b])
			m.queue = m.queue[b:]
			action := NewInferAction(m.ID, batch, b, gpuFreeAt, duration)
			return action, true
		}
		b = m.nextSmaller(b)
	}
	return nil, false
}
