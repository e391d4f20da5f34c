// Package v1 defines the controller's wire protocol: the client-facing
// InferenceRequest/Response RPC and the worker-facing Infer/LoadWeights/
// EvictWeights RPCs (spec section 6 "External interfaces").
//
// Messages travel as plain Go structs marshaled by codec.go's JSON codec
// rather than protoc-generated types — see DESIGN.md's "Wire layer" entry
// for why.
package v1

// InferenceRequest is the client protocol's request message.
type InferenceRequest struct {
	UserID  string `json:"user_id"`
	ModelID int    `json:"model_id"`
	Input   []byte `json:"input_bytes"`
	SLONS   int64  `json:"slo_ns"`
}

// InferenceResponse is the client protocol's response message.
type InferenceResponse struct {
	Status    string `json:"status"`
	Output    []byte `json:"output_bytes"`
	Departure int64  `json:"departure_time"`
	Message   string `json:"message,omitempty"`
}

// InferRequest dispatches a batched inference action to a worker.
type InferRequest struct {
	ID        int64  `json:"id"`
	GPUID     int    `json:"gpu_id"`
	ModelID   int    `json:"model_id"`
	BatchSize int    `json:"batch_size"`
	Earliest  int64  `json:"earliest"`
	Latest    int64  `json:"latest"`
	Input     []byte `json:"input_bytes"`
}

// InferReply is either an InferResult or an ErrorResult depending on Status.
type InferReply struct {
	ID           int64  `json:"id"`
	Status       string `json:"status"` // "" on success
	Message      string `json:"message,omitempty"`
	ExecStart    int64  `json:"exec_start"`
	ExecDuration int64  `json:"exec_duration"`
	GPUClock     int    `json:"gpu_clock"`
	Output       []byte `json:"output_bytes"`
}

// LoadWeightsRequest dispatches a weights-load action to a worker.
type LoadWeightsRequest struct {
	ID       int64 `json:"id"`
	GPUID    int   `json:"gpu_id"`
	ModelID  int   `json:"model_id"`
	Earliest int64 `json:"earliest"`
	Latest   int64 `json:"latest"`
}

// LoadWeightsReply is either a LoadWeightsResult or an ErrorResult.
type LoadWeightsReply struct {
	ID       int64  `json:"id"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration int64  `json:"duration"`
}

// EvictWeightsRequest dispatches an eviction action to a worker.
type EvictWeightsRequest struct {
	ID       int64 `json:"id"`
	GPUID    int   `json:"gpu_id"`
	ModelID  int   `json:"model_id"`
	Earliest int64 `json:"earliest"`
	Latest   int64 `json:"latest"`
}

// EvictWeightsReply is either an EvictWeightsResult or an ErrorResult.
type EvictWeightsReply struct {
	ID       int64  `json:"id"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration int64  `json:"duration"`
}
