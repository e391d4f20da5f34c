package workerlink

import (
	"time"

	"github.com/clockworkgo/controller/pkg/schedcore"
)

// FakeLink simulates a worker in-process for tests: every Send* call
// completes after Delay on its own goroutine (ExecDuration/LoadDuration are
// only the durations reported in the result), reporting success unless
// NextFailure holds a queued failure.
type FakeLink struct {
	WorkerID int
	Reporter ResultReporter

	Delay        time.Duration
	ExecDuration int64
	GPUClock     int
	LoadDuration int64

	// NextFailure, if non-empty, is consumed by the next Send* call instead
	// of succeeding.
	NextFailure string

	// OutputSize controls the reply's output_bytes length per request; 0
	// means echo an empty payload sized to the concatenated input.
	OutputSize int
}

func NewFakeLink(workerID int, reporter ResultReporter) *FakeLink {
	return &FakeLink{WorkerID: workerID, Reporter: reporter, Delay: time.Millisecond}
}

func (f *FakeLink) SendInfer(action *schedcore.InferAction) error {
	go func() {
		time.Sleep(f.Delay)
		if f.NextFailure != "" {
			status := f.NextFailure
			f.NextFailure = ""
			f.Reporter.ResultFromWorker(schedcore.WorkerResult{ActionID: action.ID, WorkerID: f.WorkerID, Status: status})
			return
		}
		size := len(action.InputBytes())
		if f.OutputSize > 0 {
			size = f.OutputSize * len(action.Requests)
		}
		out := make([]byte, size)
		f.Reporter.ResultFromWorker(schedcore.WorkerResult{
			ActionID: action.ID, WorkerID: f.WorkerID,
			OutputBytes: out, ExecDuration: f.ExecDuration, GPUClock: f.gpuClock(),
		})
	}()
	return nil
}

func (f *FakeLink) SendLoadWeights(action *schedcore.LoadWeightsAction) error {
	go func() {
		time.Sleep(f.Delay)
		if f.NextFailure != "" {
			status := f.NextFailure
			f.NextFailure = ""
			f.Reporter.ResultFromWorker(schedcore.WorkerResult{ActionID: action.ID, WorkerID: f.WorkerID, Status: status})
			return
		}
		f.Reporter.ResultFromWorker(schedcore.WorkerResult{ActionID: action.ID, WorkerID: f.WorkerID, LoadDuration: f.LoadDuration})
	}()
	return nil
}

func (f *FakeLink) SendEvictWeights(action *schedcore.EvictWeightsAction) error {
	go func() {
		time.Sleep(f.Delay)
		if f.NextFailure != "" {
			status := f.NextFailure
			f.NextFailure = ""
			f.Reporter.ResultFromWorker(schedcore.WorkerResult{ActionID: action.ID, WorkerID: f.WorkerID, Status: status})
			return
		}
		f.Reporter.ResultFromWorker(schedcore.WorkerResult{ActionID: action.ID, WorkerID: f.WorkerID})
	}()
	return nil
}

func (f *FakeLink) gpuClock() int {
	if f.GPUClock != 0 {
		return f.GPUClock
	}
	return 1380
}

var _ schedcore.WorkerLink = (*FakeLink)(nil)
