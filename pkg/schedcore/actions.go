package schedcore

import "sync/atomic"

var actionSeq int64

// nextActionID hands out unique monotonically-assigned action ids (spec
// section 4.6), safe to call from the single run-loop goroutine or from
// RPC completion callbacks arriving off the network goroutines.
func nextActionID() int64 {
	return atomic.AddInt64(&actionSeq, 1)
}

// ActionExpectations is the earliest/latest dispatch window every action
// type carries, used by the worker link to fill out the wire message and
// by the worker itself to drop stale actions.
type ActionExpectations struct {
	Earliest int64
	Latest   int64
}

// InferAction carries a batched inference dispatch: one or more Requests
// bound to a single worker call. Each request's Demand is surrendered by
// its completion callback, so the action only owns the requests themselves.
//
// Grounded on original_source/src/clockwork/controller/infer_and_load_scheduler.h
// (InferAction).
type InferAction struct {
	ID        int64
	ModelID   int
	GPUID     int
	BatchSize int
	Requests  []*Request

	Start    int64 // gpu_free_at at schedule time
	Duration int64 // estimate(batch_size)

	ActionExpectations
}

// NewInferAction constructs an InferAction for a popped batch; Start and
// Duration reflect the GpuState's reservation via exec.Schedule.
func NewInferAction(modelID int, requests []*Request, batchSize int, start, duration int64) *InferAction {
	return &InferAction{
		ID:        nextActionID(),
		ModelID:   modelID,
		BatchSize: batchSize,
		Requests:  requests,
		Start:     start,
		Duration:  duration,
	}
}

// InputBytes concatenates the constituent requests' inputs in order, the
// batched payload sent to the worker.
func (a *InferAction) InputBytes() []byte {
	var total int
	for _, r := range a.Requests {
		total += len(r.Input)
	}
	out := make([]byte, 0, total)
	for _, r := range a.Requests {
		out = append(out, r.Input...)
	}
	return out
}

// Complete handles a successful InferResult: splits output across
// constituent requests by even offset and fires each request's callback
// (success if still within deadline, else an SLO-violation deadline
// callback).
func (a *InferAction) Complete(now int64, outputBytes []byte) {
	n := len(a.Requests)
	if n == 0 {
		return
	}
	chunk := len(outputBytes) / n
	for i, r := range a.Requests {
		lo := i * chunk
		hi := lo + chunk
		if i == n-1 {
			hi = len(outputBytes)
		}
		var out []byte
		if lo < len(outputBytes) && hi <= len(outputBytes) {
			out = outputBytes[lo:hi]
		}
		if now <= r.Deadline {
			r.fire(StatusSuccess, out, now, "")
		} else {
			r.fire(StatusDeadlineExceeded, nil, now, "slo violation: result arrived after deadline")
		}
	}
}

// Fail handles an errored or dropped InferResult: every constituent request
// is failed with status. The work still counts as completed demand-wise;
// each request's callback surrenders its own Demand.
func (a *InferAction) Fail(now int64, status, message string) {
	for _, r := range a.Requests {
		r.fire(status, nil, now, message)
	}
}

// LoadWeightsAction dispatches a weights load for modelID onto gpuID.
//
// Grounded on original_source/src/clockwork/controller/infer_and_load_scheduler.h
// (LoadWeightsAction).
type LoadWeightsAction struct {
	ID      int64
	ModelID int
	GPUID   int
	ActionExpectations
}

func NewLoadWeightsAction(modelID, gpuID int, earliest, latest int64) *LoadWeightsAction {
	return &LoadWeightsAction{
		ID:      nextActionID(),
		ModelID: modelID,
		GPUID:   gpuID,
		ActionExpectations: ActionExpectations{Earliest: earliest, Latest: latest},
	}
}

// EvictWeightsAction frees modelID's weights pages on gpuID.
//
// Grounded on original_source/src/clockwork/controller/infer_and_load_scheduler.h
// (EvictWeightsAction).
type EvictWeightsAction struct {
	ID      int64
	ModelID int
	GPUID   int
	ActionExpectations
}

func NewEvictWeightsAction(modelID, gpuID int, earliest, latest int64) *EvictWeightsAction {
	return &EvictWeightsAction{
		ID:                 nextActionID(),
		ModelID:            modelID,
		GPUID:              gpuID,
		ActionExpectations: ActionExpectations{Earliest: earliest, Latest: latest},
	}
}
