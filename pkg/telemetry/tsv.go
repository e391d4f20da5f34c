// Package telemetry provides the async TSV action/request logs, Prometheus
// metrics, and websocket status dashboard the controller exposes.
//
// TSV column layout grounded verbatim on
// original_source/src/clockwork/telemetry/telemetry.cpp's
// RequestTelemetryFileLogger / ControllerActionTelemetryFileLogger.
package telemetry

import (
	"bufio"
	"fmt"
	"log"
	"os"

	"github.com/clockworkgo/controller/pkg/schedcore"
)

// TSVSink drains action/request telemetry on a background goroutine and
// writes two TSV files, matching spec section 5's "telemetry thread that
// drains a concurrent queue" model. Buffered channels stand in for the
// concurrent queue; callers never block on a full disk write.
type TSVSink struct {
	actions  chan schedcore.ActionTelemetry
	requests chan schedcore.RequestTelemetry

	metrics *Metrics

	done chan struct{}
}

// NewTSVSink opens actionPath/requestPath (truncating any existing file),
// writes headers, and starts the drain goroutine. metrics may be nil to
// skip Prometheus instrumentation.
func NewTSVSink(actionPath, requestPath string, metrics *Metrics) (*TSVSink, error) {
	actionFile, err := os.Create(actionPath)
	if err != nil {
		return nil, fmt.Errorf("telemetry: opening action log: %w", err)
	}
	requestFile, err := os.Create(requestPath)
	if err != nil {
		actionFile.Close()
		return nil, fmt.Errorf("telemetry: opening request log: %w", err)
	}

	s := &TSVSink{
		actions:  make(chan schedcore.ActionTelemetry, 8192),
		requests: make(chan schedcore.RequestTelemetry, 8192),
		metrics:  metrics,
		done:     make(chan struct{}),
	}
	go s.run(actionFile, requestFile)
	return s, nil
}

func (s *TSVSink) run(actionFile, requestFile *os.File) {
	defer close(s.done)
	defer actionFile.Close()
	defer requestFile.Close()

	aw := bufio.NewWriter(actionFile)
	rw := bufio.NewWriter(requestFile)
	defer aw.Flush()
	defer rw.Flush()

	fmt.Fprint(aw, "t\taction_id\taction_type\tstatus\tworker_id\tgpu_id\tmodel_id\tbatch_size\tcontroller_action_duration\tworker_exec_duration\n")
	fmt.Fprint(rw, "t\trequest_id\tresult\tuser_id\tmodel_id\tlatency\n")

	actionsOpen, requestsOpen := true, true
	for actionsOpen || requestsOpen {
		select {
		case a, ok := <-s.actions:
			if !ok {
				actionsOpen = false
				s.actions = nil
				continue
			}
			fmt.Fprintf(aw, "%d\t%d\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
				a.Time, a.ActionID, a.ActionType, a.Status, a.WorkerID, a.GPUID,
				a.ModelID, a.BatchSize, a.ControllerActionDurationNS, a.WorkerExecDurationNS)
			if s.metrics != nil {
				s.metrics.ObserveAction(a)
			}
		case r, ok := <-s.requests:
			if !ok {
				requestsOpen = false
				s.requests = nil
				continue
			}
			fmt.Fprintf(rw, "%d\t%s\t%s\t%s\t%d\t%d\n", r.Time, r.RequestID, r.Result, r.UserID, r.ModelID, r.LatencyNS)
			if s.metrics != nil {
				s.metrics.ObserveRequest(r)
			}
		}
	}
}

// LogAction implements schedcore.TelemetrySink.
func (s *TSVSink) LogAction(a schedcore.ActionTelemetry) {
	select {
	case s.actions <- a:
	default:
		log.Printf("telemetry: action log queue full, dropping action %d", a.ActionID)
	}
}

// LogRequest implements schedcore.TelemetrySink.
func (s *TSVSink) LogRequest(r schedcore.RequestTelemetry) {
	select {
	case s.requests <- r:
	default:
		log.Printf("telemetry: request log queue full, dropping request %s", r.RequestID)
	}
}

// Close drains remaining entries and closes both files.
func (s *TSVSink) Close() {
	close(s.actions)
	close(s.requests)
	<-s.done
}

var _ schedcore.TelemetrySink = (*TSVSink)(nil)
