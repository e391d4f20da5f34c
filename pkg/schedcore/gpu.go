package schedcore

import "time"

// defaultLoadSlackNS bounds a LoadWeightsAction's dispatch window when the
// load-time estimator has no samples yet.
const defaultLoadSlackNS = int64(100 * time.Millisecond)

// pendingLoad records an in-flight weights load: the instant the loadweights
// stream expects to finish, and the instance version the load will produce.
type pendingLoad struct {
	ModelID     int
	AvailableAt int64
	Version     int
}

// GpuState is a single GPU's dispatch state: its two serialized resource
// timelines (exec, loadweights), resident-page accounting, and pending
// InferStrategy heap.
//
// Grounded on original_source/src/clockwork/controller/infer_and_load_scheduler.h
// (GPU).
type GpuState struct {
	ID int

	Exec        WorkerTracker
	LoadWeights WorkerTracker

	TotalPages int
	FreePages  int
	ClockRate  int // current reported clock; default_clock when unknown

	Strategies *StrategyQueue

	// instances tracks every model that currently has (or is gaining) a
	// foothold on this GPU, including ones that are only `loading`.
	instances map[int]*ModelInstance

	// loading is the pending-loads queue: at most one entry at a time, so a
	// GPU never has two weights transfers racing for the same pages.
	loading []pendingLoad

	// evicting tracks models with an in-flight EvictWeights action, and
	// PendingEvictPages the pages those actions will return; both keep
	// evictPages from over-evicting while results are still outbound.
	evicting          map[int]bool
	PendingEvictPages int

	// EvictionRequired is the bootstrap-configured escape hatch (spec
	// section 4.5/SPEC_FULL "eviction_required"): when true, eviction
	// may pick a resident model that still has outstanding demand, not
	// just an empty/idle one.
	EvictionRequired bool
}

func NewGpuState(id, totalPages, defaultClock int) *GpuState {
	return &GpuState{
		ID:         id,
		TotalPages: totalPages,
		FreePages:  totalPages,
		ClockRate:  defaultClock,
		Strategies: NewStrategyQueue(),
		instances:  make(map[int]*ModelInstance),
		evicting:   make(map[int]bool),
	}
}

func (g *GpuState) instanceFor(modelID int) *ModelInstance {
	inst, ok := g.instances[modelID]
	if !ok {
		inst = &ModelInstance{ModelID: modelID, GPUID: g.ID}
		g.instances[modelID] = inst
	}
	return inst
}

// LoadingCount reports how many weights loads are currently in flight.
func (g *GpuState) LoadingCount() int { return len(g.loading) }

func (g *GpuState) removePendingLoad(modelID int) {
	for i, pl := range g.loading {
		if pl.ModelID == modelID {
			g.loading = append(g.loading[:i], g.loading[i+1:]...)
			return
		}
	}
}

// SynthesizeStrategies enqueues an InferStrategy for every supported batch
// size of a resident model, per spec section 4.5's priority formula:
// priority = max(arrival + slo - buffer - estimate(b), gpu_free_at).
func (g *GpuState) SynthesizeStrategies(model *Model, arrival, deadline, sloNS, bufferNS int64) {
	inst, ok := g.instances[model.ID]
	if !ok || !inst.Loaded {
		return
	}
	freeAt := g.Exec.AvailableAt()
	for _, b := range model.BatchSizes {
		est := model.Estimate(b, g.ClockRate)
		priority := arrival + sloNS - bufferNS - est
		if freeAt > priority {
			priority = freeAt
		}
		g.Strategies.Push(&InferStrategy{
			Priority:        priority,
			Deadline:        deadline,
			ModelID:         model.ID,
			GPUID:           g.ID,
			BatchSize:       b,
			InstanceVersion: inst.Version,
		})
	}
}

// CheckPending is the dispatch loop body (spec section 4.5): drain the
// strategy heap up to scheduleAheadNS of lookahead, dequeuing a batch for
// the first strategy that still resolves against its model's queue.
// onDispatch is called for every InferAction successfully constructed.
func (g *GpuState) CheckPending(now, scheduleAheadNS, bufferNS, latestDeltaNS int64, models map[int]*Model, onDispatch func(*InferAction)) {
	for {
		s := g.Strategies.Peek()
		if s == nil {
			return
		}
		if s.Priority > now+scheduleAheadNS {
			return
		}
		g.Strategies.Pop()

		inst, ok := g.instances[s.ModelID]
		if !ok || !inst.Loaded || inst.Version != s.InstanceVersion {
			continue
		}
		model, ok := models[s.ModelID]
		if !ok {
			continue
		}
		freeAt := g.Exec.AvailableAt()
		if freeAt < now {
			freeAt = now
		}
		action, ok := model.TryDequeue(freeAt, s.BatchSize, bufferNS, g.ClockRate, now)
		if !ok {
			continue
		}
		action.GPUID = g.ID
		start := g.Exec.Schedule(action.Duration, freeAt)
		action.Start = start
		action.Earliest = start
		oldestDeadline := action.Requests[0].Deadline
		for _, r := range action.Requests {
			if r.Deadline < oldestDeadline {
				oldestDeadline = r.Deadline
			}
		}
		latest := oldestDeadline - bufferNS
		if alt := start + latestDeltaNS; alt < latest {
			latest = alt
		}
		action.Latest = latest
		onDispatch(action)
	}
}

// TryLoad attempts to start a weights load on this GPU. On success it
// reserves the candidate's pages, marks the instance loading, and returns
// the constructed LoadWeightsAction. When the WorkTracker's candidate needs
// more pages than are free, the load is rolled back and neededPages reports
// how many the caller must evict toward; ok=false either way.
func (g *GpuState) TryLoad(now int64, wt *WorkTracker, model func(int) *Model) (action *LoadWeightsAction, neededPages int, ok bool) {
	if len(g.loading) > 0 {
		return nil, 0, false
	}
	modelID, ok := wt.LoadModel(g.ID, g.FreePages <= 0)
	if !ok {
		return nil, 0, false
	}
	m := model(modelID)
	if m == nil {
		wt.LoadModelComplete(g.ID, modelID, false)
		return nil, 0, false
	}
	if g.FreePages < m.NumWeightsPages {
		wt.LoadModelComplete(g.ID, modelID, false)
		return nil, m.NumWeightsPages, false
	}
	g.FreePages -= m.NumWeightsPages

	inst := g.instanceFor(modelID)
	inst.Loaded = false
	inst.Loading = true

	est := m.LoadEstimate()
	start := g.LoadWeights.Schedule(est, now)
	slack := 2 * est
	if slack <= 0 {
		slack = defaultLoadSlackNS
	}
	g.loading = append(g.loading, pendingLoad{ModelID: modelID, AvailableAt: g.LoadWeights.AvailableAt(), Version: inst.Version + 1})
	return NewLoadWeightsAction(modelID, g.ID, start, start+slack), 0, true
}
