// Package controller wires the schedcore scheduler up to the external
// interfaces spec section 6 describes: the client-facing gRPC service, the
// bootstrap fixture loader, and the dashboard feed loop. cmd/controller is a
// thin main() over this package, the same split the teacher uses between
// cmd/router/main.go and pkg/router.
package controller

import (
	"context"
	"fmt"
	"sync/atomic"

	v1 "github.com/clockworkgo/controller/pkg/api/v1"
	"github.com/clockworkgo/controller/pkg/schedcore"
)

// Server adapts schedcore.Scheduler.ClientInfer (async, callback-based) to
// the synchronous client-facing gRPC RPC spec section 6 describes.
//
// Grounded on _examples/Kunal1522-GPU-Aware-Batch-Router/pkg/router/router.go's
// Router.Infer: one RPC handler per incoming client call. The teacher's
// multi-worker retry loop doesn't apply here — that's schedcore's own
// load/evict/dispatch decision, not a per-RPC retry — so this handler is a
// single ClientInfer call plus a wait for its one callback.
type Server struct {
	sched *schedcore.Scheduler
	seq   atomic.Int64
}

func NewServer(sched *schedcore.Scheduler) *Server {
	return &Server{sched: sched}
}

// Infer implements v1.ControllerServiceServer. It blocks until the
// request's callback fires or the client's context is cancelled; a
// cancelled context does not cancel the in-flight InferAction (spec
// section 5: "no in-flight cancellation").
func (s *Server) Infer(ctx context.Context, req *v1.InferenceRequest) (*v1.InferenceResponse, error) {
	id := fmt.Sprintf("req-%d", s.seq.Add(1))
	done := make(chan schedcore.Response, 1)

	err := s.sched.ClientInfer(schedcore.ClientRequest{
		ID:      id,
		UserID:  req.UserID,
		ModelID: req.ModelID,
		Input:   req.Input,
		SLONS:   req.SLONS,
		Callback: func(r schedcore.Response) {
			done <- r
		},
	})
	if err != nil {
		return nil, err
	}

	select {
	case r := <-done:
		return &v1.InferenceResponse{
			Status:    r.Status,
			Output:    r.Output,
			Departure: r.Departure,
			Message:   r.Message,
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var _ v1.ControllerServiceServer = (*Server)(nil)
