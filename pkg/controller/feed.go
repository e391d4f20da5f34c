package controller

import (
	"time"

	"github.com/clockworkgo/controller/pkg/schedcore"
	"github.com/clockworkgo/controller/pkg/telemetry"
)

// RunDashboardFeed polls the scheduler's snapshot at the given interval,
// pushes it to every connected dashboard client, and keeps the
// outstanding-actions gauge current, until stop is closed.
//
// Grounded on _examples/Kunal1522-GPU-Aware-Batch-Router/pkg/router/router.go's
// Router.StartPoller broadcast loop (a 500ms ticker pushing ClusterState).
func RunDashboardFeed(sched *schedcore.Scheduler, dash *telemetry.Dashboard, metrics *telemetry.Metrics, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			snap := sched.Snapshot()
			if metrics != nil {
				metrics.OutstandingAction.Set(float64(snap.OutstandingActions))
			}
			status := telemetry.Status{Time: snap.Time, OutstandingActions: snap.OutstandingActions}
			for _, g := range snap.GPUs {
				status.GPUs = append(status.GPUs, telemetry.GPUStatus{
					GPUID:            g.GPUID,
					WorkerID:         g.WorkerID,
					FreePages:        g.FreePages,
					TotalPages:       g.TotalPages,
					ResidentModels:   g.ResidentModels,
					LoadingModels:    g.LoadingModels,
					ExecQueueDepth:   g.ExecQueueDepth,
					ClockRate:        g.ClockRate,
					ModelPreferences: g.ModelPreferences,
				})
			}
			dash.Broadcast(status)
		}
	}
}
