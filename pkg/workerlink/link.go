// Package workerlink implements the controller's half of the worker
// protocol: async dispatch of Infer/LoadWeights/EvictWeights actions, with
// results reported back through a callback rather than a blocking return,
// matching the "network-writer threads driven by send queues" model in
// spec section 5.
//
// Grounded on _examples/Kunal1522-GPU-Aware-Batch-Router/pkg/router/registry.go
// (grpc.NewClient dial pattern) and poller.go (background goroutine + stop
// channel lifecycle).
package workerlink

import (
	"context"
	"log"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	v1 "github.com/clockworkgo/controller/pkg/api/v1"
	"github.com/clockworkgo/controller/pkg/schedcore"
	"github.com/clockworkgo/controller/pkg/timequeue"
)

// ResultReporter is the scheduler-side sink for completed actions. In
// production this is *schedcore.Scheduler.ResultFromWorker.
type ResultReporter interface {
	ResultFromWorker(schedcore.WorkerResult) error
}

// ConnectionHealthReporter is implemented by a reporter that also wants to
// hear about a worker going definitively unhealthy (*schedcore.Scheduler
// satisfies this via DisconnectWorker). Checked with a type assertion so a
// bare ResultReporter stub still works.
type ConnectionHealthReporter interface {
	DisconnectWorker(workerID int)
}

// failureThreshold is the number of consecutive RPC failures after which a
// Link declares its worker disconnected, matching
// _examples/Kunal1522-GPU-Aware-Batch-Router/pkg/router/registry.go's
// MarkFailed ("after 3 consecutive failures, the worker is marked
// unhealthy").
const failureThreshold = 3

// sendLead is how far ahead of an action's `earliest` the link is willing
// to put it on the wire; the worker has no use for an action long before
// its window opens, and holding it here keeps the send queue ordered by
// dispatch time. Matches the scheduler's own schedule_ahead lookahead.
const sendLead = 10 * time.Millisecond

// Link is a connection to one worker, implementing schedcore.WorkerLink.
// Send* calls enqueue onto a per-connection time-release send queue; a
// single writer goroutine drains it in dispatch order and fires each RPC on
// its own goroutine, so the scheduler's run-loop goroutine never waits and
// actions for one GPU leave in issue order (spec section 5's "network-writer
// threads driven by send queues"). Alongside per-action results, Link
// tracks consecutive RPC failures and calls DisconnectWorker once the
// worker crosses failureThreshold, the production trigger for spec section
// 7's propagation rule (a) (transport errors terminate the worker
// connection and zero its GPU state).
type Link struct {
	workerID int
	conn     *grpc.ClientConn
	client   v1.WorkerServiceClient
	reporter ResultReporter
	timeout  time.Duration

	sendQ *timequeue.Queue[func()]

	healthMu  sync.Mutex
	failCount int
	healthy   bool
}

// Dial connects to a worker at addr and returns a Link reporting results to
// reporter. timeout bounds each individual RPC (spec section 6's
// dispatch_timeout).
func Dial(workerID int, addr string, reporter ResultReporter, timeout time.Duration) (*Link, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, err
	}
	l := &Link{
		workerID: workerID,
		conn:     conn,
		client:   v1.NewWorkerServiceClient(conn),
		reporter: reporter,
		timeout:  timeout,
		sendQ:    timequeue.New[func()](),
		healthy:  true,
	}
	go l.writeLoop()
	return l, nil
}

// writeLoop is the connection's single network-writer goroutine: it pops
// sends as their release time arrives and launches the blocking RPC off
// its own goroutine so one slow reply never stalls the next send.
func (l *Link) writeLoop() {
	for {
		send, ok := l.sendQ.Dequeue()
		if !ok {
			return
		}
		go send()
	}
}

// enqueue schedules an RPC for transmission no more than sendLead before
// the action's earliest dispatch time.
func (l *Link) enqueue(earliest int64, send func()) {
	l.sendQ.Enqueue(send, earliest-sendLead.Nanoseconds())
}

// Close shuts down the send queue and tears down the underlying connection.
func (l *Link) Close() error {
	l.sendQ.Shutdown()
	return l.conn.Close()
}

// markFailed records one RPC failure. After failureThreshold consecutive
// failures it flips the link unhealthy and, if the reporter supports it,
// calls DisconnectWorker exactly once (guarded by healthy so repeated
// failures past the threshold don't re-trigger it).
func (l *Link) markFailed() {
	l.healthMu.Lock()
	l.failCount++
	trigger := l.healthy && l.failCount >= failureThreshold
	if trigger {
		l.healthy = false
	}
	l.healthMu.Unlock()

	if !trigger {
		return
	}
	log.Printf("workerlink: worker %d unhealthy after %d consecutive failures, disconnecting", l.workerID, failureThreshold)
	if dh, ok := l.reporter.(ConnectionHealthReporter); ok {
		dh.DisconnectWorker(l.workerID)
	}
}

// markHealthy resets the failure count after any successful RPC.
func (l *Link) markHealthy() {
	l.healthMu.Lock()
	l.failCount = 0
	l.healthy = true
	l.healthMu.Unlock()
}

func (l *Link) SendInfer(action *schedcore.InferAction) error {
	l.enqueue(action.Earliest, func() {
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()

		reply, err := l.client.Infer(ctx, &v1.InferRequest{
			ID:        action.ID,
			GPUID:     action.GPUID,
			ModelID:   action.ModelID,
			BatchSize: action.BatchSize,
			Earliest:  action.Earliest,
			Latest:    action.Latest,
			Input:     action.InputBytes(),
		})
		if err != nil {
			l.markFailed()
			l.reporter.ResultFromWorker(schedcore.WorkerResult{
				ActionID: action.ID, WorkerID: l.workerID,
				Status: schedcore.StatusWorkerDisconnected, Message: err.Error(),
			})
			return
		}
		l.markHealthy()
		l.reporter.ResultFromWorker(schedcore.WorkerResult{
			ActionID: reply.ID, WorkerID: l.workerID,
			Status: reply.Status, Message: reply.Message,
			OutputBytes: reply.Output, ExecStart: reply.ExecStart,
			ExecDuration: reply.ExecDuration, GPUClock: reply.GPUClock,
		})
	})
	return nil
}

func (l *Link) SendLoadWeights(action *schedcore.LoadWeightsAction) error {
	l.enqueue(action.Earliest, func() {
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()

		reply, err := l.client.LoadWeights(ctx, &v1.LoadWeightsRequest{
			ID: action.ID, GPUID: action.GPUID, ModelID: action.ModelID,
			Earliest: action.Earliest, Latest: action.Latest,
		})
		if err != nil {
			l.markFailed()
			l.reporter.ResultFromWorker(schedcore.WorkerResult{
				ActionID: action.ID, WorkerID: l.workerID,
				Status: schedcore.StatusWorkerDisconnected, Message: err.Error(),
			})
			return
		}
		l.markHealthy()
		l.reporter.ResultFromWorker(schedcore.WorkerResult{
			ActionID: reply.ID, WorkerID: l.workerID,
			Status: reply.Status, Message: reply.Message, LoadDuration: reply.Duration,
		})
	})
	return nil
}

func (l *Link) SendEvictWeights(action *schedcore.EvictWeightsAction) error {
	l.enqueue(action.Earliest, func() {
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()

		reply, err := l.client.EvictWeights(ctx, &v1.EvictWeightsRequest{
			ID: action.ID, GPUID: action.GPUID, ModelID: action.ModelID,
			Earliest: action.Earliest, Latest: action.Latest,
		})
		if err != nil {
			l.markFailed()
			l.reporter.ResultFromWorker(schedcore.WorkerResult{
				ActionID: action.ID, WorkerID: l.workerID,
				Status: schedcore.StatusWorkerDisconnected, Message: err.Error(),
			})
			return
		}
		l.markHealthy()
		l.reporter.ResultFromWorker(schedcore.WorkerResult{
			ActionID: reply.ID, WorkerID: l.workerID,
			Status: reply.Status, Message: reply.Message, LoadDuration: reply.Duration,
		})
	})
	return nil
}

var _ schedcore.WorkerLink = (*Link)(nil)
