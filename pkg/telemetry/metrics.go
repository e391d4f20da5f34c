package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clockworkgo/controller/pkg/schedcore"
)

// Metrics holds the controller's Prometheus instrumentation.
//
// Grounded on _examples/reyisjones-GPU_Orchestrator/internal/metrics/metrics.go's
// CounterVec/HistogramVec idiom (this repo has no controller-runtime
// registry to piggyback on, so NewMetrics registers directly against the
// Registerer it is given; cmd/controller passes prometheus.DefaultRegisterer).
type Metrics struct {
	ActionsTotal      *prometheus.CounterVec
	ActionDuration    *prometheus.HistogramVec
	RequestsTotal     *prometheus.CounterVec
	RequestLatency    *prometheus.HistogramVec
	OutstandingAction prometheus.Gauge
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clockwork_actions_total",
			Help: "Total number of completed worker actions by type and status.",
		}, []string{"action_type", "status"}),
		ActionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clockwork_action_duration_seconds",
			Help:    "Controller-observed duration of worker actions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"action_type"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clockwork_requests_total",
			Help: "Total number of completed client requests by result.",
		}, []string{"result"}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clockwork_request_latency_seconds",
			Help:    "End-to-end client request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"model_id"}),
		OutstandingAction: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clockwork_outstanding_actions",
			Help: "Number of actions dispatched to workers awaiting a result.",
		}),
	}
	registerer.MustRegister(m.ActionsTotal, m.ActionDuration, m.RequestsTotal, m.RequestLatency, m.OutstandingAction)
	return m
}

func (m *Metrics) ObserveAction(a schedcore.ActionTelemetry) {
	status := a.Status
	if status == "" {
		status = schedcore.StatusSuccess
	}
	m.ActionsTotal.WithLabelValues(a.ActionType, status).Inc()
	m.ActionDuration.WithLabelValues(a.ActionType).Observe(float64(a.ControllerActionDurationNS) / 1e9)
}

func (m *Metrics) ObserveRequest(r schedcore.RequestTelemetry) {
	m.RequestsTotal.WithLabelValues(r.Result).Inc()
	m.RequestLatency.WithLabelValues(strconv.Itoa(r.ModelID)).Observe(float64(r.LatencyNS) / 1e9)
}
