package schedcore

// WorkerTracker models a single-queue resource: one GPU's exec stream, or
// its weights-copy stream. Every GpuState owns exactly two (exec,
// loadweights). All calls are serialized by the scheduler's single run-loop
// goroutine — no internal locking.
//
// Grounded on original_source/src/clockwork/controller/infer_and_load_scheduler.h
// (util::WorkerTracker, referenced by GPU::exec / GPU::loadweights).
type WorkerTracker struct {
	availableAt int64 // earliest time the resource will next be idle
}

// Schedule reserves duration ns of this resource no earlier than
// earliestStart, returning the start time actually assigned.
func (t *WorkerTracker) Schedule(durationNS, earliestStartNS int64) int64 {
	start := t.availableAt
	if earliestStartNS > start {
		start = earliestStartNS
	}
	t.availableAt = start + durationNS
	return start
}

// AddLoad moves availableAt forward without reserving a specific job — used
// to account for load that bypasses normal scheduling (e.g. warmup).
func (t *WorkerTracker) AddLoad(loadNS int64) {
	t.availableAt += loadNS
}

// AvailableAt returns the earliest instant this resource is next free.
func (t *WorkerTracker) AvailableAt() int64 {
	return t.availableAt
}
