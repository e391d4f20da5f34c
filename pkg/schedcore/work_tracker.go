package schedcore

import (
	"container/heap"
	"sync"
)

// WorkTracker is the global demand/capacity balancer: it tracks outstanding
// work per model (in ns of reference-clock exec time) against per-GPU
// capacity, and advises load/evict decisions.
//
// Grounded on original_source/src/clockwork/controller/infer_and_load_scheduler.h
// (WorkTracker2). The header declares this shape but not distributeWork's or
// checkRequests' bodies; the proportional-split and promotion behavior below
// is this repo's resolution of that gap, recorded in DESIGN.md.
//
// Concurrency: a single mutex serializes all mutation, matching the header's
// "single atomic flag" note. Callers must not hold it across a blocking call.
type WorkTracker struct {
	mu sync.Mutex

	slotNS int64 // slo_ns, the per-GPU capacity reference (default 100ms)

	models map[int]*modelState
	gpus   map[int]*gpuState

	seqno int64
}

type modelState struct {
	id int

	gpuCount int
	gpus     map[int]bool
	loading  map[int]bool

	outstanding int64
	completed   int64

	allocations map[int]int64       // gpu -> share of outstanding
	entries     map[int]*modelEntry // gpu -> heap handle

	// pending holds demand accrued before the model resides on any GPU,
	// released into allocations once distributeWork finds a home for it.
	pending int64
	seqno   int64
}

type gpuState struct {
	id          int
	outstanding int64
	modelCount  int
	order       modelHeap
}

// modelEntry is one GPU's heap handle for one resident (or pending) model.
type modelEntry struct {
	modelID    int
	allocation int64
	completed  int64
	gpuCount   int
	seqno      int64
	index      int // heap.Interface bookkeeping

	// preference is spec section 4.3's tie-breaking hint, recorded (not
	// used as a second CompareModelPriority key: the header never writes
	// it either) as the entry's most recent touch order, surfaced to
	// telemetry consumers via WorkTracker.GPUModelPreferences.
	preference int64
}

func (e *modelEntry) isEmpty() bool { return e.allocation == 0 }

func (e *modelEntry) priority() float64 {
	if e.gpuCount == 0 {
		return 0
	}
	return float64(e.allocation) - float64(e.completed)/float64(e.gpuCount)
}

// modelHeap orders entries per spec section 4.3's CompareModelPriority:
// non-empty beats empty; among non-empty, larger priority first; among
// empty, larger (more recent) seqno first.
type modelHeap []*modelEntry

func (h modelHeap) Len() int { return len(h) }

func (h modelHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	ae, be := a.isEmpty(), b.isEmpty()
	if ae != be {
		return !ae // non-empty sorts first
	}
	if !ae {
		return a.priority() > b.priority()
	}
	return a.seqno > b.seqno
}

func (h modelHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *modelHeap) Push(x any) {
	e := x.(*modelEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *modelHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// NewWorkTracker constructs a tracker with the given per-GPU capacity
// reference (spec section 6's slo, default 100ms expressed in ns).
func NewWorkTracker(slotNS int64) *WorkTracker {
	return &WorkTracker{
		slotNS: slotNS,
		models: make(map[int]*modelState),
		gpus:   make(map[int]*gpuState),
	}
}

// RegisterGPU must be called once per GPU before it participates in
// load/evict decisions.
func (t *WorkTracker) RegisterGPU(gpuID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.gpus[gpuID]; !ok {
		t.gpus[gpuID] = &gpuState{id: gpuID}
	}
}

func (t *WorkTracker) modelFor(modelID int) *modelState {
	m, ok := t.models[modelID]
	if !ok {
		m = &modelState{
			id:          modelID,
			gpus:        make(map[int]bool),
			loading:     make(map[int]bool),
			allocations: make(map[int]int64),
			entries:     make(map[int]*modelEntry),
		}
		t.models[modelID] = m
	}
	return m
}

// AddRequest charges sizeNS to model's outstanding work and redistributes it
// across the model's resident GPUs (or leaves it pending if the model has
// no home yet). Returns a Demand handle to be surrendered via
// RequestCompleted exactly once.
func (t *WorkTracker) AddRequest(modelID int, sizeNS int64) *Demand {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.modelFor(modelID)
	m.outstanding += sizeNS
	t.seqno++
	m.seqno = t.seqno
	t.distributeWork(m, sizeNS)
	return &Demand{ModelID: modelID, SizeNS: sizeNS}
}

// distributeWork splits delta (newly charged work) evenly across the model's
// current GPUs, giving any remainder to one of them, or banks it as pending
// if the model isn't resident anywhere yet.
func (t *WorkTracker) distributeWork(m *modelState, delta int64) {
	if m.gpuCount == 0 {
		m.pending += delta
		return
	}
	share := delta / int64(m.gpuCount)
	remainder := delta - share*int64(m.gpuCount)
	first := true
	for gpuID := range m.gpus {
		add := share
		if first {
			add += remainder // give the remainder to one GPU, deterministic enough for accounting
			first = false
		}
		m.allocations[gpuID] += add
		g := t.gpus[gpuID]
		if g != nil {
			g.outstanding += add
		}
		t.refreshEntry(m, gpuID)
	}
}

func (t *WorkTracker) refreshEntry(m *modelState, gpuID int) {
	g, ok := t.gpus[gpuID]
	if !ok {
		return
	}
	e, ok := m.entries[gpuID]
	if !ok {
		e = &modelEntry{modelID: m.id}
		m.entries[gpuID] = e
		heap.Push(&g.order, e)
	}
	e.allocation = m.allocations[gpuID]
	e.completed = m.completed
	e.gpuCount = m.gpuCount
	e.seqno = m.seqno
	e.preference = m.seqno
	heap.Fix(&g.order, e.index)
}

// GPUModelPreferences returns the current tie-break preference hint for
// every model resident (or pending residency) on gpuID, keyed by model id.
// Read-only diagnostic surfaced to telemetry; not consulted by
// CompareModelPriority.
func (t *WorkTracker) GPUModelPreferences(gpuID int) map[int]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	g, ok := t.gpus[gpuID]
	if !ok {
		return nil
	}
	out := make(map[int]int64, len(g.order))
	for _, e := range g.order {
		out[e.modelID] = e.preference
	}
	return out
}

// RequestCompleted surrenders a Demand handle, subtracting its size from the
// model's outstanding work (and each GPU's allocation proportionally) and
// crediting completed work.
func (t *WorkTracker) RequestCompleted(d *Demand) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.models[d.ModelID]
	if !ok {
		return
	}
	m.outstanding -= d.SizeNS
	if m.outstanding < 0 {
		m.outstanding = 0
	}
	m.completed += d.SizeNS

	if m.gpuCount == 0 {
		m.pending -= d.SizeNS
		if m.pending < 0 {
			m.pending = 0
		}
		return
	}

	share := d.SizeNS / int64(m.gpuCount)
	remainder := d.SizeNS - share*int64(m.gpuCount)
	first := true
	for gpuID := range m.gpus {
		sub := share
		if first {
			sub += remainder
			first = false
		}
		m.allocations[gpuID] -= sub
		if m.allocations[gpuID] < 0 {
			m.allocations[gpuID] = 0
		}
		g := t.gpus[gpuID]
		if g != nil {
			g.outstanding -= sub
			if g.outstanding < 0 {
				g.outstanding = 0
			}
		}
		t.refreshEntry(m, gpuID)
	}
}

// loadThreshold is the minimum demand a model must carry to be worth
// loading onto a free GPU. The header doesn't specify a constant; this repo
// uses slo/10, a tenth of one capacity slot, so a GPU isn't sent to load a
// model for a single small in-flight request.
func (t *WorkTracker) loadThreshold() int64 {
	return t.slotNS / 10
}

// candidatePriority estimates the priority a model would have if loaded
// onto one more GPU: its outstanding work spread across its current
// footprint plus the candidate GPU. For a model with zero residency the
// outstanding work is exactly its banked pending demand, so the same
// formula covers both the first load and replication onto further GPUs.
func (m *modelState) candidatePriority() float64 {
	denom := float64(m.gpuCount + 1)
	return float64(m.outstanding)/denom - float64(m.completed)/denom
}

// LoadModel chooses the highest-priority model not yet resident on gpuID
// whose demand clears loadThreshold. A model already resident elsewhere is
// still a candidate — a busy model replicates onto additional GPUs to
// absorb demand, with its outstanding work judged per the share the new
// GPU would take. requiresEviction is informational only here; the caller
// (GpuState) is responsible for freeing pages first. Returns (-1, false)
// if nothing is worth loading.
func (t *WorkTracker) LoadModel(gpuID int, requiresEviction bool) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	best := -1
	bestPriority := float64(0)
	found := false

	for modelID, m := range t.models {
		if m.gpus[gpuID] || m.loading[gpuID] {
			continue
		}
		if m.outstanding/int64(m.gpuCount+1) < t.loadThreshold() {
			continue
		}
		p := m.candidatePriority()
		if !found || p > bestPriority {
			found = true
			best = modelID
			bestPriority = p
		}
	}
	if !found {
		return -1, false
	}
	t.models[best].loading[gpuID] = true
	return best, true
}

// LoadModelComplete reports the outcome of a LoadModel-advised load. On
// success the model becomes resident on gpuID and its pending demand is
// folded into normal per-GPU allocation accounting.
func (t *WorkTracker) LoadModelComplete(gpuID, modelID int, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.modelFor(modelID)
	delete(m.loading, gpuID)
	if !success {
		return
	}

	m.gpus[gpuID] = true
	m.gpuCount++
	g, ok := t.gpus[gpuID]
	if ok {
		g.modelCount++
	}

	pending := m.pending
	m.pending = 0
	if pending > 0 {
		t.distributeWork(m, pending)
	} else {
		t.refreshEntry(m, gpuID)
	}
}

// EvictModel returns the lowest-priority resident model on gpuID that isn't
// currently loading, preferring an empty (zero-allocation) resident if any
// exists (matching the heap's empty-last-to-evict-never ordering: within
// this repo, "lowest priority" means the tail of the per-GPU heap).
//
// allowNonEmpty mirrors the original's GPU::eviction_required: unless set,
// a model still carrying outstanding demand (a non-empty entry) is never
// offered, so a busy/pinned model can't be evicted out from under itself.
// exclude (may be nil) names models already mid-eviction, so repeated calls
// within one batch-eviction sweep don't pick the same candidate twice.
func (t *WorkTracker) EvictModel(gpuID int, allowNonEmpty bool, exclude map[int]bool) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	g, ok := t.gpus[gpuID]
	if !ok || len(g.order) == 0 {
		return -1, false
	}

	order := modelHeap(g.order)
	worstIdx := -1
	for i, e := range order {
		m := t.models[e.modelID]
		if m == nil || m.loading[gpuID] || exclude[e.modelID] {
			continue
		}
		if !allowNonEmpty && !e.isEmpty() {
			continue
		}
		// worstIdx is the current lowest-priority candidate: keep i only if
		// i ranks after worstIdx in the heap's ordering.
		if worstIdx == -1 || order.Less(worstIdx, i) {
			worstIdx = i
		}
	}
	if worstIdx == -1 {
		return -1, false
	}
	return order[worstIdx].modelID, true
}

// RemoveModel drops a model's residency on gpuID, used after a successful
// eviction. The allocation it held there moves to the model's remaining
// resident GPUs via the usual proportional split; only when the eviction
// took the last residency is it banked as pending for the next load.
func (t *WorkTracker) RemoveModel(gpuID, modelID int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.models[modelID]
	if !ok || !m.gpus[gpuID] {
		return
	}
	delete(m.gpus, gpuID)
	m.gpuCount--
	if m.gpuCount < 0 {
		m.gpuCount = 0
	}
	freed := m.allocations[gpuID]
	delete(m.allocations, gpuID)

	if g, ok := t.gpus[gpuID]; ok {
		if e, ok := m.entries[gpuID]; ok && e.index >= 0 {
			heap.Remove(&g.order, e.index)
		}
		g.outstanding -= freed
		if g.outstanding < 0 {
			g.outstanding = 0
		}
		g.modelCount--
		if g.modelCount < 0 {
			g.modelCount = 0
		}
	}
	delete(m.entries, gpuID)

	if freed > 0 {
		if m.gpuCount > 0 {
			t.distributeWork(m, freed)
		} else {
			m.pending += freed
		}
	}
}
