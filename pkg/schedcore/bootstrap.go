package schedcore

import "fmt"

// WorkerState describes one worker's GPUs as reported at bootstrap. Address
// is the worker's gRPC endpoint; it isn't part of spec section 6's
// Bootstrap fields but is the practical detail cmd/controller needs to dial
// workerlink.Dial without a second side-channel config list.
type WorkerState struct {
	WorkerID int            `json:"worker_id"`
	Address  string         `json:"address"`
	GPUs     []GPUBootstrap `json:"gpus"`
}

// GPUBootstrap describes a single GPU's static capacity as reported in the
// ClockworkState the controller receives on start (spec section 6
// "Bootstrap").
type GPUBootstrap struct {
	GPUID        int    `json:"gpu_id"`
	PageSize     uint64 `json:"page_size"`
	TotalPages   int    `json:"total_pages"`
	DefaultClock int    `json:"default_clock"`

	// EvictionRequired mirrors the original's GPU::eviction_required: when
	// true, try_load is permitted to evict a resident model that still
	// has outstanding demand, not just an empty/idle one. Operators set
	// this to force-enable eviction on a GPU hosting a pinned/critical
	// model that would otherwise never clear.
	EvictionRequired bool `json:"eviction_required"`
}

// BatchedModelBootstrap describes one loaded model as reported at bootstrap,
// including which GPUs it's already resident on.
type BatchedModelBootstrap struct {
	ModelID         int   `json:"model_id"`
	BatchSizes      []int `json:"batch_sizes"`
	NumWeightsPages int   `json:"num_weights_pages"`
	ResidentGPUs    []int `json:"resident_gpus"` // GPUs this model is already loaded on

	// InitialExecEstimates seeds the per-batch exec-time estimators, one
	// entry per batch size in BatchSizes order, measured at the GPU's
	// default clock. InitialLoadEstimate seeds the weights-load estimator.
	// Both come from the compilation pipeline's profiling run; zero entries
	// leave the estimator cold until real measurements arrive.
	InitialExecEstimates []int64 `json:"initial_exec_estimates,omitempty"`
	InitialLoadEstimate  int64   `json:"initial_load_estimate,omitempty"`
}

// ClockworkState is the full bootstrap payload: every worker, its GPUs, and
// every loaded model. Deserialized from a JSON fixture at controller
// startup; the (out-of-scope) worker-side executor and compilation
// pipeline are what would produce this in a full deployment.
type ClockworkState struct {
	Workers []WorkerState           `json:"workers"`
	Models  []BatchedModelBootstrap `json:"models"`
}

// Validate checks the invariants spec section 6 requires before bootstrap
// can populate scheduler state: every model has >=1 supported batch size,
// batch sizes ascending, and every GPU's page count is positive.
func (s *ClockworkState) Validate() error {
	for _, w := range s.Workers {
		for _, g := range w.GPUs {
			if g.TotalPages <= 0 {
				return fmt.Errorf("worker %d gpu %d: total pages must be > 0, got %d", w.WorkerID, g.GPUID, g.TotalPages)
			}
		}
	}
	for _, m := range s.Models {
		if len(m.BatchSizes) == 0 {
			return fmt.Errorf("model %d: must have at least one supported batch size", m.ModelID)
		}
		for i := 1; i < len(m.BatchSizes); i++ {
			if m.BatchSizes[i] <= m.BatchSizes[i-1] {
				return fmt.Errorf("model %d: batch sizes must be strictly ascending, got %v", m.ModelID, m.BatchSizes)
			}
		}
		if m.NumWeightsPages <= 0 {
			return fmt.Errorf("model %d: weights page count must be > 0", m.ModelID)
		}
		if len(m.InitialExecEstimates) > 0 && len(m.InitialExecEstimates) != len(m.BatchSizes) {
			return fmt.Errorf("model %d: got %d initial exec estimates for %d batch sizes", m.ModelID, len(m.InitialExecEstimates), len(m.BatchSizes))
		}
	}
	return nil
}
