// Package schedcore implements the infer-and-load scheduler: the single
// goroutine that tracks per-model demand, per-GPU capacity, and dispatches
// batched inference, weights-load, and eviction actions against deadlines.
package schedcore

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/clockworkgo/controller/pkg/config"
)

// WorkerLink is the scheduler's view of a connection to one worker: async,
// fire-and-forget sends. Results arrive later through ResultFromWorker.
// pkg/workerlink provides the real grpc-backed implementation and a fake
// for tests.
type WorkerLink interface {
	SendInfer(action *InferAction) error
	SendLoadWeights(action *LoadWeightsAction) error
	SendEvictWeights(action *EvictWeightsAction) error
}

// ClientRequest is the external-facing shape of an inbound inference
// request, the ClientInfer half of the ControllerAPI capability interface.
type ClientRequest struct {
	ID      string
	UserID  string
	ModelID int
	Input   []byte
	SLONS   int64

	Callback func(Response)
}

// WorkerResult is the external-facing shape of a completed (or errored)
// worker action, the ResultFromWorker half of the ControllerAPI capability
// interface.
type WorkerResult struct {
	ActionID int64
	WorkerID int

	// Status is "" on success; otherwise one of the error kinds in spec
	// section 7 (action-rejected, action-failed, transport, ...).
	Status  string
	Message string

	OutputBytes  []byte
	ExecStart    int64
	ExecDuration int64
	GPUClock     int

	LoadDuration int64 // for LoadWeightsResult / EvictWeightsResult
}

// ControllerAPI is the capability interface spec section 9 asks for in
// place of the source's virtual Scheduler base class: start, dispatch a
// client request, and report a worker result. Scheduler is the only
// implementation in this repository.
type ControllerAPI interface {
	Start(state *ClockworkState) error
	ClientInfer(req ClientRequest) error
	ResultFromWorker(result WorkerResult) error
}

// ActionTelemetry is one row of the per-action TSV log (spec section 6).
type ActionTelemetry struct {
	Time                       int64
	ActionID                   int64
	ActionType                 string
	Status                     string
	WorkerID                   int
	GPUID                      int
	ModelID                    int
	BatchSize                  int
	ControllerActionDurationNS int64
	WorkerExecDurationNS       int64
}

// RequestTelemetry is one row of the per-request TSV log (spec section 6).
type RequestTelemetry struct {
	Time      int64
	RequestID string
	Result    string
	UserID    string
	ModelID   int
	LatencyNS int64
}

// TelemetrySink receives every completed action and request; pkg/telemetry
// provides the TSV-file-backed implementation.
type TelemetrySink interface {
	LogAction(ActionTelemetry)
	LogRequest(RequestTelemetry)
}

type noopSink struct{}

func (noopSink) LogAction(ActionTelemetry)   {}
func (noopSink) LogRequest(RequestTelemetry) {}

// GPUSnapshot is one GPU's read-only status, used by telemetry/dashboard
// consumers that need a point-in-time view without touching scheduler
// internals directly.
type GPUSnapshot struct {
	GPUID          int
	WorkerID       int
	FreePages      int
	TotalPages     int
	ResidentModels []int
	LoadingModels  []int
	ExecQueueDepth int
	ClockRate      int

	// ModelPreferences is the WorkTracker's per-model tie-break preference
	// hint (spec section 4.3's ModelPriority.preference), keyed by model
	// id; a read-only diagnostic, not a scheduling input.
	ModelPreferences map[int]int64
}

// SchedulerSnapshot is a point-in-time view of every GPU plus outstanding
// action count, requested via Scheduler.Snapshot and served off the run
// loop goroutine (so it reflects a single consistent instant, never a
// torn read across gpus/outstanding).
type SchedulerSnapshot struct {
	Time               int64
	GPUs               []GPUSnapshot
	OutstandingActions int
}

type outstandingEntry struct {
	kind         string // "infer", "load", "evict"
	gpuID        int
	workerID     int
	dispatchedAt int64
	latest       int64

	infer *InferAction
	load  *LoadWeightsAction
	evict *EvictWeightsAction
}

// statusControllerTimeout is the internal status synthesized when a result
// fails to arrive by latest + grace (spec section 7 error kind (d)).
const statusControllerTimeout = "controller-timeout"

// Scheduler is the concrete infer-and-load ControllerAPI implementation.
// All mutable scheduling state (models, gpus, outstanding actions) is
// touched only by the single run-loop goroutine; ClientInfer and
// ResultFromWorker only push onto MPSC channels, matching spec section 5's
// threading model.
//
// Grounded on original_source/src/clockwork/controller/infer_and_load_scheduler.h
// (Scheduler) and original_source/src/controller.cpp's wiring.
type Scheduler struct {
	cfg *config.Config
	now func() int64

	models    map[int]*Model
	gpus      map[int]*GpuState
	gpuWorker map[int]int
	links     map[int]WorkerLink

	wt *WorkTracker

	requestIn  chan *Request
	resultIn   chan WorkerResult
	snapshotIn chan chan SchedulerSnapshot

	outstanding map[int64]*outstandingEntry

	telemetry TelemetrySink

	// completed/failed count terminal requests for the periodic throughput
	// line; atomics because the queue-full rejection path fires off the run
	// loop goroutine.
	completed atomic.Int64
	failed    atomic.Int64

	stop chan struct{}
	done chan struct{}
}

// NewScheduler constructs a Scheduler. nowFn defaults to a wall-clock
// nanosecond source if nil; tests supply a deterministic clock.
func NewScheduler(cfg *config.Config, nowFn func() int64) *Scheduler {
	if nowFn == nil {
		nowFn = func() int64 { return time.Now().UnixNano() }
	}
	return &Scheduler{
		cfg:         cfg,
		now:         nowFn,
		models:      make(map[int]*Model),
		gpus:        make(map[int]*GpuState),
		gpuWorker:   make(map[int]int),
		links:       make(map[int]WorkerLink),
		wt:          NewWorkTracker(cfg.SLO.Nanoseconds()),
		requestIn:   make(chan *Request, 4096),
		resultIn:    make(chan WorkerResult, 4096),
		snapshotIn:  make(chan chan SchedulerSnapshot),
		outstanding: make(map[int64]*outstandingEntry),
		telemetry:   noopSink{},
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// SetTelemetrySink installs the TSV/Prometheus sink. Must be called before
// Start.
func (s *Scheduler) SetTelemetrySink(sink TelemetrySink) {
	if sink != nil {
		s.telemetry = sink
	}
}

// RegisterWorker attaches a WorkerLink for every gpuID it owns. Must be
// called before Start.
func (s *Scheduler) RegisterWorker(workerID int, link WorkerLink, gpuIDs []int) {
	for _, g := range gpuIDs {
		s.gpuWorker[g] = workerID
	}
	s.links[workerID] = link
}

// Start validates and loads the bootstrap state, then launches the run
// loop goroutine. Implements ControllerAPI.
func (s *Scheduler) Start(state *ClockworkState) error {
	if err := state.Validate(); err != nil {
		return fmt.Errorf("bootstrap validation: %w", err)
	}

	for _, w := range state.Workers {
		for _, g := range w.GPUs {
			gs := NewGpuState(g.GPUID, g.TotalPages, g.DefaultClock)
			gs.EvictionRequired = g.EvictionRequired
			s.gpus[g.GPUID] = gs
			s.gpuWorker[g.GPUID] = w.WorkerID
			s.wt.RegisterGPU(g.GPUID)
		}
	}

	for _, mb := range state.Models {
		m := NewModel(mb.ModelID, mb.BatchSizes, mb.NumWeightsPages,
			s.cfg.EstimateWindow, s.cfg.EstimatePercentile,
			s.cfg.MaxAllowableExecTime.Nanoseconds(), s.cfg.DefaultClock)
		for i, b := range mb.BatchSizes {
			if i < len(mb.InitialExecEstimates) && mb.InitialExecEstimates[i] > 0 {
				m.AddMeasurement(b, mb.InitialExecEstimates[i], s.cfg.DefaultClock)
			}
		}
		if mb.InitialLoadEstimate > 0 {
			m.AddLoadMeasurement(mb.InitialLoadEstimate)
		}
		s.models[mb.ModelID] = m

		for _, gpuID := range mb.ResidentGPUs {
			g, ok := s.gpus[gpuID]
			if !ok {
				continue
			}
			inst := g.instanceFor(mb.ModelID)
			inst.Loaded = true
			if g.FreePages < m.NumWeightsPages {
				return fmt.Errorf("bootstrap: gpu %d has insufficient pages for resident model %d", gpuID, mb.ModelID)
			}
			g.FreePages -= m.NumWeightsPages
			s.wt.LoadModelComplete(gpuID, mb.ModelID, true)
		}
	}

	go s.run()
	return nil
}

// Stop shuts down the run loop and waits for it to exit.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// ClientInfer admits a new client request. Implements ControllerAPI;
// callers are network-reader goroutines, so this only enqueues.
func (s *Scheduler) ClientInfer(req ClientRequest) error {
	now := s.now()
	if _, ok := s.models[req.ModelID]; !ok {
		s.failed.Add(1)
		s.telemetry.LogRequest(RequestTelemetry{
			Time: now, RequestID: req.ID, Result: StatusModelNotFound,
			UserID: req.UserID, ModelID: req.ModelID,
		})
		if req.Callback != nil {
			req.Callback(Response{Status: StatusModelNotFound, Departure: now, Message: fmt.Sprintf("model %d not found", req.ModelID)})
		}
		return nil
	}
	r := &Request{
		ID:       req.ID,
		ModelID:  req.ModelID,
		Input:    req.Input,
		Arrival:  now,
		Deadline: now + req.SLONS,
	}
	// Every terminal path funnels through Request.fire exactly once, so the
	// wrapper here is the single place a request surrenders its Demand and
	// emits its telemetry row, no matter how it ends (success, SLO
	// violation, queue-head drop, disconnect, controller timeout).
	userID := req.UserID
	clientCB := req.Callback
	r.Callback = func(resp Response) {
		if d := r.demand; d != nil {
			r.demand = nil
			s.wt.RequestCompleted(d)
		}
		if resp.Status == StatusSuccess {
			s.completed.Add(1)
		} else {
			s.failed.Add(1)
		}
		s.telemetry.LogRequest(RequestTelemetry{
			Time: resp.Departure, RequestID: r.ID, Result: resp.Status,
			UserID: userID, ModelID: r.ModelID, LatencyNS: resp.Departure - r.Arrival,
		})
		if clientCB != nil {
			clientCB(resp)
		}
	}

	select {
	case s.requestIn <- r:
	default:
		// Input queue saturated: fail fast rather than block a
		// network-reader goroutine, matching spec section 5's "never
		// blocks" contract for the scheduler side; the reader itself may
		// still choose to retry.
		r.fire(StatusInternalError, nil, now, "request queue full")
	}
	return nil
}

// ResultFromWorker reports a completed (or errored) action. Implements
// ControllerAPI; callers are network-reader goroutines.
func (s *Scheduler) ResultFromWorker(result WorkerResult) error {
	select {
	case s.resultIn <- result:
	default:
		log.Printf("schedcore: result queue full, dropping result for action %d", result.ActionID)
	}
	return nil
}

// DisconnectWorker completes every outstanding action on workerID with
// "worker disconnected" and zeroes that worker's GPU state (spec section 7
// propagation rule (a)). Safe to call from any goroutine; the actual state
// mutation is marshaled onto the run loop via the result channel.
func (s *Scheduler) DisconnectWorker(workerID int) {
	s.resultIn <- WorkerResult{ActionID: -1, WorkerID: workerID, Status: "__worker_disconnected__"}
}

func (s *Scheduler) run() {
	defer close(s.done)
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	lastPrint := s.now()

	for {
		select {
		case <-s.stop:
			return
		case r := <-s.requestIn:
			s.admit(r)
			s.drainRequests()
		case res := <-s.resultIn:
			s.handleResult(res)
			s.drainResults()
		case reply := <-s.snapshotIn:
			reply <- s.buildSnapshot(s.now())
		case <-ticker.C:
			now := s.now()
			s.sweepTimeouts(now)
			for _, g := range s.gpus {
				s.runGPUCycle(g, now)
			}
			if s.cfg.PrintInterval > 0 && now-lastPrint >= s.cfg.PrintInterval.Nanoseconds() {
				s.logStatus(now, now-lastPrint)
				lastPrint = now
			}
		}
	}
}

func (s *Scheduler) drainRequests() {
	for {
		select {
		case r := <-s.requestIn:
			s.admit(r)
		default:
			return
		}
	}
}

func (s *Scheduler) drainResults() {
	for {
		select {
		case res := <-s.resultIn:
			s.handleResult(res)
		default:
			return
		}
	}
}

// admit implements run-loop step 1: charge a Demand, enqueue on the model,
// and synthesize InferStrategy entries on every resident GPU.
func (s *Scheduler) admit(r *Request) {
	m, ok := s.models[r.ModelID]
	if !ok {
		r.fire(StatusModelNotFound, nil, s.now(), fmt.Sprintf("model %d not found", r.ModelID))
		return
	}
	cost := m.Estimate(1, s.cfg.DefaultClock)
	sizeNS := int64(float64(cost) * s.cfg.RequestCostFactor)
	demand := s.wt.AddRequest(r.ModelID, sizeNS)
	r.setDemand(demand)
	m.Enqueue(r)

	for _, g := range s.gpus {
		g.SynthesizeStrategies(m, r.Arrival, r.Deadline, s.cfg.SLO.Nanoseconds(), s.cfg.Buffer.Nanoseconds())
	}
}

// resynthesize enqueues fresh strategies for the head of a model's queue on
// one GPU — spec section 4.5's "or when an action completes" half of
// strategy synthesis. Without it, requests queued while an instance was
// still loading would never dispatch.
func (s *Scheduler) resynthesize(g *GpuState, m *Model) {
	if m == nil || m.QueueLen() == 0 {
		return
	}
	head := m.queue[0]
	g.SynthesizeStrategies(m, head.Arrival, head.Deadline, s.cfg.SLO.Nanoseconds(), s.cfg.Buffer.Nanoseconds())
}

func (s *Scheduler) runGPUCycle(g *GpuState, now int64) {
	g.CheckPending(now, s.cfg.ScheduleAhead.Nanoseconds(), s.cfg.Buffer.Nanoseconds(), s.cfg.LatestDelta.Nanoseconds(), s.models, func(a *InferAction) {
		s.dispatchInfer(g, a, now)
	})

	if g.Exec.AvailableAt() > now || g.LoadWeights.AvailableAt() > now {
		return
	}

	action, needed, ok := g.TryLoad(now, s.wt, func(id int) *Model { return s.models[id] })
	if ok {
		s.dispatchLoad(g, action, now)
		return
	}
	if needed > 0 {
		s.evictPages(g, needed, now)
	}
}

// evictPages dispatches EvictWeights actions until the pages already free
// plus those in flight cover required, or no evictable resident remains
// (SPEC_FULL section 12's batch eviction; pages are credited only on each
// EvictWeightsResult per spec section 4.5).
func (s *Scheduler) evictPages(g *GpuState, required int, now int64) {
	for g.FreePages+g.PendingEvictPages < required {
		modelID, ok := s.wt.EvictModel(g.ID, g.EvictionRequired, g.evicting)
		if !ok {
			return
		}
		g.evicting[modelID] = true
		if m, ok := s.models[modelID]; ok {
			g.PendingEvictPages += m.NumWeightsPages
		}
		s.dispatchEvict(g, modelID, now)
	}
}

func (s *Scheduler) dispatchInfer(g *GpuState, action *InferAction, now int64) {
	workerID := s.gpuWorker[g.ID]
	link := s.links[workerID]
	s.outstanding[action.ID] = &outstandingEntry{kind: "infer", gpuID: g.ID, workerID: workerID, dispatchedAt: now, latest: action.Latest, infer: action}

	if link == nil {
		s.finishInfer(action.ID, WorkerResult{ActionID: action.ID, Status: StatusInternalError, Message: "no worker link registered for gpu"})
		return
	}
	if err := link.SendInfer(action); err != nil {
		s.finishInfer(action.ID, WorkerResult{ActionID: action.ID, Status: StatusWorkerDisconnected, Message: err.Error()})
	}
}

func (s *Scheduler) dispatchLoad(g *GpuState, action *LoadWeightsAction, now int64) {
	workerID := s.gpuWorker[g.ID]
	link := s.links[workerID]
	s.outstanding[action.ID] = &outstandingEntry{kind: "load", gpuID: g.ID, workerID: workerID, dispatchedAt: now, latest: action.Latest, load: action}

	if link == nil {
		s.finishLoad(action.ID, WorkerResult{ActionID: action.ID, Status: StatusInternalError})
		return
	}
	if err := link.SendLoadWeights(action); err != nil {
		s.finishLoad(action.ID, WorkerResult{ActionID: action.ID, Status: StatusWorkerDisconnected, Message: err.Error()})
	}
}

func (s *Scheduler) dispatchEvict(g *GpuState, modelID int, now int64) {
	// Eviction has no duration estimator of its own (original_source's
	// EvictWeightsAction carries no exec-time model), so unlike TryLoad's
	// load-proportional window the eviction window is "dispatch now, allow
	// latest_delta of slack", per spec section 6's `latest_delta` tolerance.
	earliest := now
	latest := now + s.cfg.LatestDelta.Nanoseconds()
	action := NewEvictWeightsAction(modelID, g.ID, earliest, latest)
	workerID := s.gpuWorker[g.ID]
	link := s.links[workerID]
	s.outstanding[action.ID] = &outstandingEntry{kind: "evict", gpuID: g.ID, workerID: workerID, dispatchedAt: now, latest: action.Latest, evict: action}

	if link == nil {
		s.finishEvict(action.ID, WorkerResult{ActionID: action.ID, Status: StatusInternalError})
		return
	}
	if err := link.SendEvictWeights(action); err != nil {
		s.finishEvict(action.ID, WorkerResult{ActionID: action.ID, Status: StatusWorkerDisconnected, Message: err.Error()})
	}
}

// handleResult implements run-loop step 2: look up the outstanding action
// by id and invoke its completion path exactly once. Unknown ids (already
// timed out and discarded) are logged and dropped.
func (s *Scheduler) handleResult(res WorkerResult) {
	if res.Status == "__worker_disconnected__" {
		s.disconnectWorkerLocked(res.WorkerID)
		return
	}

	entry, ok := s.outstanding[res.ActionID]
	if !ok {
		log.Printf("schedcore: result for unknown action %d, discarding", res.ActionID)
		return
	}
	delete(s.outstanding, res.ActionID)

	switch entry.kind {
	case "infer":
		s.completeInfer(entry, res)
	case "load":
		s.completeLoad(entry, res)
	case "evict":
		s.completeEvict(entry, res)
	}
}

// sweepTimeouts completes any outstanding action whose result has not
// arrived by latest + grace (spec section 7 error kind (d)). A late result
// arriving afterwards hits handleResult's unknown-id path and is discarded.
func (s *Scheduler) sweepTimeouts(now int64) {
	grace := s.cfg.ResultTimeoutGrace.Nanoseconds()
	if grace <= 0 {
		return
	}
	for id, entry := range s.outstanding {
		if now <= entry.latest+grace {
			continue
		}
		delete(s.outstanding, id)
		res := WorkerResult{ActionID: id, WorkerID: entry.workerID, Status: statusControllerTimeout, Message: "no result by latest + grace"}
		switch entry.kind {
		case "infer":
			s.completeInfer(entry, res)
		case "load":
			s.completeLoad(entry, res)
		case "evict":
			s.completeEvict(entry, res)
		}
	}
}

func (s *Scheduler) finishInfer(actionID int64, res WorkerResult) {
	entry, ok := s.outstanding[actionID]
	if !ok {
		return
	}
	delete(s.outstanding, actionID)
	s.completeInfer(entry, res)
}

func (s *Scheduler) finishLoad(actionID int64, res WorkerResult) {
	entry, ok := s.outstanding[actionID]
	if !ok {
		return
	}
	delete(s.outstanding, actionID)
	s.completeLoad(entry, res)
}

func (s *Scheduler) finishEvict(actionID int64, res WorkerResult) {
	entry, ok := s.outstanding[actionID]
	if !ok {
		return
	}
	delete(s.outstanding, actionID)
	s.completeEvict(entry, res)
}

// clientFacingStatus maps a worker- or controller-side action status onto
// the client protocol's vocabulary (spec section 6). An action rejected for
// arriving past `latest`, or timed out controller-side, means the request
// missed its window: deadline-exceeded, no retry (spec section 8 scenario 6).
func clientFacingStatus(actionStatus string) string {
	switch actionStatus {
	case StatusTooLate, statusControllerTimeout:
		return StatusDeadlineExceeded
	case StatusWorkerDisconnected:
		return StatusWorkerDisconnected
	default:
		return StatusInternalError
	}
}

func (s *Scheduler) completeInfer(entry *outstandingEntry, res WorkerResult) {
	action := entry.infer
	now := s.now()
	g := s.gpus[entry.gpuID]
	m := s.models[action.ModelID]

	if res.Status == "" {
		action.Complete(now, res.OutputBytes)
		if m != nil {
			m.AddMeasurement(action.BatchSize, res.ExecDuration, res.GPUClock)
		}
		if g != nil && res.GPUClock > 0 {
			g.ClockRate = res.GPUClock
		}
	} else {
		action.Fail(now, clientFacingStatus(res.Status), res.Message)
	}

	if g != nil {
		s.resynthesize(g, m)
	}

	s.telemetry.LogAction(ActionTelemetry{
		Time: now, ActionID: action.ID, ActionType: "infer",
		Status: firstNonEmpty(res.Status, StatusSuccess), WorkerID: entry.workerID,
		GPUID: entry.gpuID, ModelID: action.ModelID, BatchSize: action.BatchSize,
		ControllerActionDurationNS: now - entry.dispatchedAt, WorkerExecDurationNS: res.ExecDuration,
	})
}

func (s *Scheduler) completeLoad(entry *outstandingEntry, res WorkerResult) {
	g, ok := s.gpus[entry.gpuID]
	if !ok {
		return
	}
	now := s.now()
	inst := g.instanceFor(entry.load.ModelID)
	g.removePendingLoad(entry.load.ModelID)
	m := s.models[entry.load.ModelID]

	if res.Status == "" {
		inst.Version++
		inst.Loaded = true
		inst.Loading = false
		if m != nil {
			m.AddLoadMeasurement(res.LoadDuration)
		}
		s.wt.LoadModelComplete(entry.gpuID, entry.load.ModelID, true)
		s.resynthesize(g, m)
	} else {
		inst.Loading = false
		if m != nil {
			g.FreePages += m.NumWeightsPages
		}
		s.wt.LoadModelComplete(entry.gpuID, entry.load.ModelID, false)
	}

	s.telemetry.LogAction(ActionTelemetry{
		Time: now, ActionID: entry.load.ID, ActionType: "load_weights",
		Status: firstNonEmpty(res.Status, StatusSuccess), WorkerID: entry.workerID,
		GPUID: entry.gpuID, ModelID: entry.load.ModelID,
		ControllerActionDurationNS: now - entry.dispatchedAt, WorkerExecDurationNS: res.LoadDuration,
	})
}

func (s *Scheduler) completeEvict(entry *outstandingEntry, res WorkerResult) {
	g, ok := s.gpus[entry.gpuID]
	if !ok {
		return
	}
	now := s.now()
	inst := g.instanceFor(entry.evict.ModelID)
	inst.Loaded = false
	delete(g.evicting, entry.evict.ModelID)

	if m, ok := s.models[entry.evict.ModelID]; ok {
		g.FreePages += m.NumWeightsPages
		g.PendingEvictPages -= m.NumWeightsPages
		if g.PendingEvictPages < 0 {
			g.PendingEvictPages = 0
		}
	}
	s.wt.RemoveModel(entry.gpuID, entry.evict.ModelID)

	s.telemetry.LogAction(ActionTelemetry{
		Time: now, ActionID: entry.evict.ID, ActionType: "evict_weights",
		Status: firstNonEmpty(res.Status, StatusSuccess), WorkerID: entry.workerID,
		GPUID: entry.gpuID, ModelID: entry.evict.ModelID,
		ControllerActionDurationNS: now - entry.dispatchedAt,
	})
}

// disconnectWorkerLocked implements spec section 7 propagation rule (a):
// every outstanding action on workerID completes with "worker disconnected"
// and its GPU state is zeroed.
func (s *Scheduler) disconnectWorkerLocked(workerID int) {
	now := s.now()
	for id, entry := range s.outstanding {
		if entry.workerID != workerID {
			continue
		}
		delete(s.outstanding, id)
		switch entry.kind {
		case "infer":
			entry.infer.Fail(now, StatusWorkerDisconnected, "worker disconnected")
		case "load":
			if m, ok := s.models[entry.load.ModelID]; ok {
				if g, ok := s.gpus[entry.gpuID]; ok {
					g.FreePages += m.NumWeightsPages
				}
			}
			s.wt.LoadModelComplete(entry.gpuID, entry.load.ModelID, false)
		case "evict":
			s.wt.RemoveModel(entry.gpuID, entry.evict.ModelID)
		}
	}

	for gpuID, wID := range s.gpuWorker {
		if wID != workerID {
			continue
		}
		g, ok := s.gpus[gpuID]
		if !ok {
			continue
		}
		for modelID, inst := range g.instances {
			if inst.Loaded {
				s.wt.RemoveModel(gpuID, modelID)
			}
			inst.Loaded = false
			inst.Loading = false
			inst.Version++
		}
		g.FreePages = g.TotalPages
		g.Strategies = NewStrategyQueue()
		g.loading = nil
		g.evicting = make(map[int]bool)
		g.PendingEvictPages = 0
	}
}

// Snapshot requests a consistent point-in-time view of every GPU from the
// run loop goroutine. Safe to call from any goroutine; blocks until the run
// loop services the request (or the scheduler has already stopped, in which
// case it returns the zero value).
func (s *Scheduler) Snapshot() SchedulerSnapshot {
	reply := make(chan SchedulerSnapshot, 1)
	select {
	case s.snapshotIn <- reply:
	case <-s.done:
		return SchedulerSnapshot{}
	}
	select {
	case snap := <-reply:
		return snap
	case <-s.done:
		return SchedulerSnapshot{}
	}
}

func (s *Scheduler) buildSnapshot(now int64) SchedulerSnapshot {
	snap := SchedulerSnapshot{Time: now, OutstandingActions: len(s.outstanding)}
	for _, g := range s.gpus {
		resident := make([]int, 0, len(g.instances))
		loading := make([]int, 0, len(g.loading))
		for modelID, inst := range g.instances {
			if inst.Loaded {
				resident = append(resident, modelID)
			}
		}
		for _, pl := range g.loading {
			loading = append(loading, pl.ModelID)
		}
		snap.GPUs = append(snap.GPUs, GPUSnapshot{
			GPUID:            g.ID,
			WorkerID:         s.gpuWorker[g.ID],
			FreePages:        g.FreePages,
			TotalPages:       g.TotalPages,
			ResidentModels:   resident,
			LoadingModels:    loading,
			ExecQueueDepth:   g.Strategies.Len(),
			ClockRate:        g.ClockRate,
			ModelPreferences: s.wt.GPUModelPreferences(g.ID),
		})
	}
	return snap
}

func (s *Scheduler) logStatus(now, elapsedNS int64) {
	completed := s.completed.Swap(0)
	failed := s.failed.Swap(0)
	var goodput float64
	if elapsedNS > 0 {
		goodput = float64(completed) / (float64(elapsedNS) / 1e9)
	}
	log.Printf("schedcore: status t=%d gpus=%d models=%d outstanding=%d completed=%d failed=%d goodput=%.1f req/s",
		now, len(s.gpus), len(s.models), len(s.outstanding), completed, failed, goodput)
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
