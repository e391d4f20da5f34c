package schedcore

import "container/heap"

// InferStrategy is a speculative dispatch plan: "try batch size BatchSize
// on this instance no earlier than Priority". Strategies are ephemeral —
// synthesized whenever new work arrives for a resident model, consumed or
// discarded during GpuState.CheckPending.
//
// Grounded on original_source/src/clockwork/controller/infer_and_load_scheduler.h
// (InferStrategy).
type InferStrategy struct {
	Priority  int64 // dispatch-no-earlier-than time; smaller dispatches first
	Deadline  int64 // tie-break: earlier deadline first
	ModelID   int
	GPUID     int
	BatchSize int
	// InstanceVersion pins the ModelInstance.Version this strategy was
	// synthesized against; it's discarded if the instance's version has
	// since changed (reload, eviction).
	InstanceVersion int

	index int // heap.Interface bookkeeping
}

// strategyHeap is a min-heap ordered by Priority, tie-broken by Deadline,
// one per GPU (spec section 4.5).
type strategyHeap []*InferStrategy

func (h strategyHeap) Len() int { return len(h) }

func (h strategyHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].Deadline < h[j].Deadline
}

func (h strategyHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *strategyHeap) Push(x any) {
	s := x.(*InferStrategy)
	s.index = len(*h)
	*h = append(*h, s)
}

func (h *strategyHeap) Pop() any {
	old := *h
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	s.index = -1
	*h = old[:n-1]
	return s
}

// StrategyQueue wraps strategyHeap behind heap.Interface bookkeeping so
// GpuState doesn't need to know about container/heap directly.
type StrategyQueue struct {
	h strategyHeap
}

func NewStrategyQueue() *StrategyQueue {
	return &StrategyQueue{}
}

func (q *StrategyQueue) Push(s *InferStrategy) {
	heap.Push(&q.h, s)
}

// Peek returns the top (smallest priority) strategy without removing it.
func (q *StrategyQueue) Peek() *InferStrategy {
	if len(q.h) == 0 {
		return nil
	}
	return q.h[0]
}

// Pop removes and returns the top strategy.
func (q *StrategyQueue) Pop() *InferStrategy {
	if len(q.h) == 0 {
		return nil
	}
	return heap.Pop(&q.h).(*InferStrategy)
}

func (q *StrategyQueue) Len() int { return len(q.h) }
