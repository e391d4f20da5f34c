package schedcore

// Status values for a completed Request, matching the client protocol in
// spec section 6.
const (
	StatusSuccess          = "success"
	StatusDeadlineExceeded = "deadline-exceeded"
	StatusModelNotFound    = "model-not-found"
	StatusInternalError    = "internal-error"
	// StatusWorkerDisconnected is used for transport-level failures (spec
	// section 7 error kind (a)); it isn't in the client-facing vocabulary
	// list but is the status fired when a worker connection drops.
	StatusWorkerDisconnected = "worker-disconnected"
	// StatusTooLate is the worker's rejection status for an action received
	// after its `latest` window closed (spec section 7 error kind (b)).
	StatusTooLate = "too-late"
)

// Response is delivered to a Request's callback exactly once.
type Response struct {
	Status    string
	Output    []byte
	Departure int64
	Message   string
}

// Request models a single client inference request in flight. Owned by the
// model's FIFO queue until handed to an InferAction, then by the action
// until completion; the callback fires exactly once regardless of path.
//
// Grounded on original_source's RequestImpl (infer_and_load_scheduler.h).
type Request struct {
	ID      string
	ModelID int
	Input   []byte

	Arrival  int64 // ns, request entered the system
	Deadline int64 // ns, absolute SLO deadline

	Callback func(Response)

	demand    *Demand
	executing bool
	completed bool
	departure int64
}

// demand is issued once, by the run loop, when the request is admitted.
func (r *Request) setDemand(d *Demand) {
	r.demand = d
}

// fire invokes the callback exactly once; subsequent calls are no-ops. This
// is the single choke point enforcing spec invariant P2.
func (r *Request) fire(status string, output []byte, now int64, message string) {
	if r.completed {
		return
	}
	r.completed = true
	r.departure = now
	if r.Callback != nil {
		r.Callback(Response{
			Status:    status,
			Output:    output,
			Departure: now,
			Message:   message,
		})
	}
}

// timeout fires a deadline-exceeded completion without ever having been
// batched — used when a request is dropped at the head of the queue because
// there isn't enough time left to run even batch size 1 (spec section 4.4
// step 1).
func (r *Request) timeout(now int64) {
	r.fire(StatusDeadlineExceeded, nil, now, "dropped at dequeue: insufficient time before deadline")
}

// Demand is a WorkTracker handle representing outstanding work charged to a
// model, surrendered exactly once on completion.
type Demand struct {
	ModelID int
	SizeNS  int64
}
