package schedcore_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clockworkgo/controller/pkg/config"
	"github.com/clockworkgo/controller/pkg/schedcore"
	"github.com/clockworkgo/controller/pkg/workerlink"
)

func testConfig() *config.Config {
	return &config.Config{
		SLO:                  100 * time.Millisecond,
		Buffer:               5 * time.Millisecond,
		ScheduleAhead:        10 * time.Millisecond,
		LatestDelta:          3 * time.Millisecond,
		MaxAllowableExecTime: 18 * time.Millisecond,
		EstimateWindow:       10,
		EstimatePercentile:   0.99,
		DefaultClock:         1380,
		RequestCostFactor:    1.0,
		ResultTimeoutGrace:   100 * time.Millisecond,
		PrintInterval:        0, // disable status logging noise in tests
	}
}

// bootstrapOneGPU builds a one-worker/one-GPU state with a single model
// whose exec estimators are seeded at 5ms per batch size and whose load
// estimator is seeded at 2ms, the way a real bootstrap carries the
// compilation pipeline's profiled estimates.
func bootstrapOneGPU(modelID, numPages, totalPages int, batchSizes []int, resident bool) *schedcore.ClockworkState {
	resGPUs := []int{}
	if resident {
		resGPUs = []int{1}
	}
	execEst := make([]int64, len(batchSizes))
	for i := range execEst {
		execEst[i] = int64(5 * time.Millisecond)
	}
	return &schedcore.ClockworkState{
		Workers: []schedcore.WorkerState{{WorkerID: 1, GPUs: []schedcore.GPUBootstrap{{GPUID: 1, PageSize: 16 << 20, TotalPages: totalPages, DefaultClock: 1380}}}},
		Models: []schedcore.BatchedModelBootstrap{
			{ModelID: modelID, BatchSizes: batchSizes, NumWeightsPages: numPages, ResidentGPUs: resGPUs,
				InitialExecEstimates: execEst, InitialLoadEstimate: int64(2 * time.Millisecond)},
		},
	}
}

// TestScheduler_SingleModelAlreadyLoadedMeetsGoodput exercises spec section
// 8's scenario 1: a single resident model serving a steady 200 req/s open
// loop well within its exec budget should complete (almost) all requests
// with no drops.
func TestScheduler_SingleModelAlreadyLoadedMeetsGoodput(t *testing.T) {
	cfg := testConfig()
	sched := schedcore.NewScheduler(cfg, nil)
	fake := workerlink.NewFakeLink(1, sched)
	fake.Delay = time.Millisecond
	fake.ExecDuration = int64(5 * time.Millisecond)
	fake.GPUClock = 1380
	sched.RegisterWorker(1, fake, []int{1})

	state := bootstrapOneGPU(1, 2, 8, []int{1, 2, 4}, true)
	require.NoError(t, sched.Start(state))
	defer sched.Stop()

	const n = 200
	var wg sync.WaitGroup
	var success, deadlineExceeded atomic.Int64

	wg.Add(n)
	for i := 0; i < n; i++ {
		sched.ClientInfer(schedcore.ClientRequest{
			ID:      idOf(i),
			UserID:  "u",
			ModelID: 1,
			Input:   make([]byte, 64),
			SLONS:   int64(100 * time.Millisecond),
			Callback: func(r schedcore.Response) {
				if r.Status == schedcore.StatusSuccess {
					success.Add(1)
				} else if r.Status == schedcore.StatusDeadlineExceeded {
					deadlineExceeded.Add(1)
				}
				wg.Done()
			},
		})
		time.Sleep(5 * time.Millisecond) // 200 req/s arrival, per spec scenario 1
	}

	waitWithTimeout(t, &wg, 10*time.Second)

	total := success.Load() + deadlineExceeded.Load()
	assert.Equal(t, int64(n), total)
	assert.GreaterOrEqual(t, success.Load(), int64(n-5), "expected near-zero drops for a lightly loaded resident model")
}

// TestScheduler_LoadsModelOnDemand exercises spec section 8's scenario 2:
// a model with no resident instance gets loaded once demand arrives, and
// queued requests dispatch against the newly loaded instance.
func TestScheduler_LoadsModelOnDemand(t *testing.T) {
	cfg := testConfig()
	sched := schedcore.NewScheduler(cfg, nil)
	fake := workerlink.NewFakeLink(1, sched)
	fake.Delay = time.Millisecond
	fake.LoadDuration = int64(2 * time.Millisecond)
	fake.ExecDuration = int64(2 * time.Millisecond)
	sched.RegisterWorker(1, fake, []int{1})

	state := bootstrapOneGPU(1, 2, 8, []int{1, 2, 4}, false)
	require.NoError(t, sched.Start(state))
	defer sched.Stop()

	var wg sync.WaitGroup
	var success atomic.Int64
	const n = 50
	wg.Add(n)
	for i := 0; i < n; i++ {
		sched.ClientInfer(schedcore.ClientRequest{
			ID:      idOf(i),
			UserID:  "u",
			ModelID: 1,
			Input:   make([]byte, 64),
			SLONS:   int64(500 * time.Millisecond), // generous, so the load has time to land
			Callback: func(r schedcore.Response) {
				if r.Status == schedcore.StatusSuccess {
					success.Add(1)
				}
				wg.Done()
			},
		})
	}

	waitWithTimeout(t, &wg, 10*time.Second)
	assert.Greater(t, success.Load(), int64(0), "at least some requests should succeed once the model loads")

	snap := sched.Snapshot()
	require.Len(t, snap.GPUs, 1)
	assert.Contains(t, snap.GPUs[0].ResidentModels, 1)
}

// TestScheduler_EvictsIdleModelToLoadAnother exercises the load/evict
// pipeline from spec section 8's scenario 3 in miniature: a GPU that can
// only hold one model evicts the idle resident once demand shifts to a
// second model.
func TestScheduler_EvictsIdleModelToLoadAnother(t *testing.T) {
	cfg := testConfig()
	sched := schedcore.NewScheduler(cfg, nil)
	fake := workerlink.NewFakeLink(1, sched)
	fake.Delay = time.Millisecond
	fake.LoadDuration = int64(2 * time.Millisecond)
	fake.ExecDuration = int64(2 * time.Millisecond)
	sched.RegisterWorker(1, fake, []int{1})

	execEst := []int64{int64(5 * time.Millisecond)}
	state := &schedcore.ClockworkState{
		Workers: []schedcore.WorkerState{{WorkerID: 1, GPUs: []schedcore.GPUBootstrap{{GPUID: 1, PageSize: 16 << 20, TotalPages: 4, DefaultClock: 1380}}}},
		Models: []schedcore.BatchedModelBootstrap{
			{ModelID: 1, BatchSizes: []int{1}, NumWeightsPages: 4, ResidentGPUs: []int{1},
				InitialExecEstimates: execEst, InitialLoadEstimate: int64(2 * time.Millisecond)},
			{ModelID: 2, BatchSizes: []int{1}, NumWeightsPages: 4,
				InitialExecEstimates: execEst, InitialLoadEstimate: int64(2 * time.Millisecond)},
		},
	}
	require.NoError(t, sched.Start(state))
	defer sched.Stop()

	runBurst := func(modelID, n int) {
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			sched.ClientInfer(schedcore.ClientRequest{
				ID:      fmt.Sprintf("m%d-%s", modelID, idOf(i)),
				ModelID: modelID,
				Input:   make([]byte, 8),
				SLONS:   int64(500 * time.Millisecond),
				Callback: func(schedcore.Response) {
					wg.Done()
				},
			})
		}
		waitWithTimeout(t, &wg, 10*time.Second)
	}

	runBurst(1, 5) // drains model 1's demand so it becomes evictable
	runBurst(2, 5) // shifts demand to model 2, forcing evict-then-load

	assert.Eventually(t, func() bool {
		snap := sched.Snapshot()
		if len(snap.GPUs) != 1 {
			return false
		}
		resident := snap.GPUs[0].ResidentModels
		return len(resident) == 1 && resident[0] == 2
	}, 5*time.Second, 20*time.Millisecond, "model 2 should replace model 1 on the GPU")
}

// TestScheduler_WorkerDisconnectFailsOutstandingActionsNoOrphans exercises
// spec section 8's scenario 5: a worker disconnect completes every
// outstanding action with "worker disconnected" and orphans no request.
// Uses a frozen fake clock so the in-flight window is fully controlled.
func TestScheduler_WorkerDisconnectFailsOutstandingActionsNoOrphans(t *testing.T) {
	cfg := testConfig()
	var clock atomic.Int64
	clock.Store(int64(time.Hour)) // arbitrary epoch
	sched := schedcore.NewScheduler(cfg, clock.Load)
	fake := workerlink.NewFakeLink(1, sched)
	fake.Delay = time.Hour // never resolves on its own
	sched.RegisterWorker(1, fake, []int{1})

	state := bootstrapOneGPU(1, 2, 8, []int{1, 2, 4}, true)
	require.NoError(t, sched.Start(state))
	defer sched.Stop()

	var wg sync.WaitGroup
	var disconnected atomic.Int64
	// Two requests fit the exec timeline's dispatch window in every pop
	// order, so both are guaranteed in flight when the worker drops.
	const n = 2
	wg.Add(n)
	for i := 0; i < n; i++ {
		sched.ClientInfer(schedcore.ClientRequest{
			ID:      idOf(i),
			ModelID: 1,
			Input:   make([]byte, 64),
			SLONS:   int64(time.Second),
			Callback: func(r schedcore.Response) {
				if r.Status == schedcore.StatusWorkerDisconnected {
					disconnected.Add(1)
				}
				wg.Done()
			},
		})
	}

	// Admit, then step the clock into the dispatch window so every request
	// goes in flight against the hung worker.
	time.Sleep(20 * time.Millisecond)
	clock.Add(int64(985 * time.Millisecond))
	time.Sleep(50 * time.Millisecond)
	sched.DisconnectWorker(1)

	waitWithTimeout(t, &wg, 5*time.Second)
	assert.Equal(t, int64(n), disconnected.Load(), "every in-flight request must complete with worker-disconnected, none orphaned")
}

// TestScheduler_ControllerTimeoutSweepCompletesLostAction exercises spec
// section 7 error kind (d): an action whose result never arrives is
// completed once `latest + grace` passes, and its requests end
// deadline-exceeded with no retry.
func TestScheduler_ControllerTimeoutSweepCompletesLostAction(t *testing.T) {
	cfg := testConfig()
	cfg.ResultTimeoutGrace = 20 * time.Millisecond
	var clock atomic.Int64
	clock.Store(int64(time.Hour))
	sched := schedcore.NewScheduler(cfg, clock.Load)
	fake := workerlink.NewFakeLink(1, sched)
	fake.Delay = time.Hour // the result is never coming
	sched.RegisterWorker(1, fake, []int{1})

	state := bootstrapOneGPU(1, 2, 8, []int{1}, true)
	require.NoError(t, sched.Start(state))
	defer sched.Stop()

	done := make(chan schedcore.Response, 1)
	sched.ClientInfer(schedcore.ClientRequest{
		ID: "lost", ModelID: 1, Input: make([]byte, 8),
		SLONS:    int64(100 * time.Millisecond),
		Callback: func(r schedcore.Response) { done <- r },
	})

	time.Sleep(20 * time.Millisecond)
	clock.Add(int64(85 * time.Millisecond)) // into the dispatch window
	time.Sleep(50 * time.Millisecond)
	clock.Add(int64(200 * time.Millisecond)) // well past latest + grace

	select {
	case r := <-done:
		assert.Equal(t, schedcore.StatusDeadlineExceeded, r.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout sweep never completed the lost action")
	}
}

// TestScheduler_WorkerRejectsLateActionAsDeadlineExceeded exercises spec
// section 8's scenario 6: an action the worker drops for arriving past
// `latest` completes its requests as deadline-exceeded, with no retry.
func TestScheduler_WorkerRejectsLateActionAsDeadlineExceeded(t *testing.T) {
	cfg := testConfig()
	sched := schedcore.NewScheduler(cfg, nil)
	fake := workerlink.NewFakeLink(1, sched)
	fake.Delay = time.Millisecond
	fake.NextFailure = schedcore.StatusTooLate
	sched.RegisterWorker(1, fake, []int{1})

	state := bootstrapOneGPU(1, 2, 8, []int{1}, true)
	require.NoError(t, sched.Start(state))
	defer sched.Stop()

	done := make(chan schedcore.Response, 1)
	sched.ClientInfer(schedcore.ClientRequest{
		ID: "late", ModelID: 1, Input: make([]byte, 8),
		SLONS:    int64(100 * time.Millisecond),
		Callback: func(r schedcore.Response) { done <- r },
	})

	select {
	case r := <-done:
		assert.Equal(t, schedcore.StatusDeadlineExceeded, r.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("rejected action never completed its request")
	}

	snap := sched.Snapshot()
	assert.Zero(t, snap.OutstandingActions, "a rejected action must not be retried")
}

// TestScheduler_ModelNotFoundFailsImmediately verifies an unknown model id
// is rejected synchronously without entering the run loop.
func TestScheduler_ModelNotFoundFailsImmediately(t *testing.T) {
	cfg := testConfig()
	sched := schedcore.NewScheduler(cfg, nil)
	state := bootstrapOneGPU(1, 2, 8, []int{1}, true)
	require.NoError(t, sched.Start(state))
	defer sched.Stop()

	done := make(chan schedcore.Response, 1)
	sched.ClientInfer(schedcore.ClientRequest{
		ID: "x", ModelID: 999, Callback: func(r schedcore.Response) { done <- r },
	})

	select {
	case r := <-done:
		assert.Equal(t, schedcore.StatusModelNotFound, r.Status)
	case <-time.After(time.Second):
		t.Fatal("callback never fired")
	}
}

func idOf(i int) string {
	return fmt.Sprintf("req-%d", i)
}

func waitWithTimeout(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for all callbacks")
	}
}
