package schedcore

// ModelDef and PageMappedModelDef mirror the external artifact schema that
// the (out of scope) model-compilation pipeline produces. Only their shape
// is consumed here — field-for-field grounded on
// original_source/include/clockwork/modeldef.h, which serializes with a
// binary "pods" codec not present in this pack's Go ecosystem; this repo
// round-trips the same fields through encoding/json instead, matching the
// teacher's own JSON-for-wire-state idiom (pkg/router/broadcast.go's
// ClusterState).
type DLTensorDef struct {
	Offset uint64  `json:"offset"`
	Size   uint64  `json:"size"`
	Shape  []int64 `json:"shape"`
}

type WorkspaceAllocDef struct {
	Offset uint64 `json:"offset"`
	Size   uint64 `json:"size"`
}

type OpDef struct {
	Inputs          []DLTensorDef       `json:"inputs"`
	SoFunction      uint32              `json:"so_function"`
	CudaFunctions   []uint32            `json:"cuda_functions"`
	WorkspaceAllocs []WorkspaceAllocDef `json:"workspace_allocs"`
}

// ModelDef is the unpaged artifact the compiler emits before page mapping.
type ModelDef struct {
	TotalMemory     uint64        `json:"total_memory"`
	WeightsMemory   uint64        `json:"weights_memory"`
	WorkspaceMemory uint64        `json:"workspace_memory"`
	SoFunctions     []string      `json:"so_functions"`
	CudaFunctions   []string      `json:"cuda_functions"`
	Ops             []OpDef       `json:"ops"`
	Inputs          []DLTensorDef `json:"inputs"`
	Outputs         []DLTensorDef `json:"outputs"`
}

type PageMappedDLTensorDef struct {
	BaseOffset uint64  `json:"base_offset"`
	Page       uint32  `json:"page"`
	PageOffset uint64  `json:"page_offset"`
	Size       uint64  `json:"size"`
	Shape      []int64 `json:"shape"`
}

type PageMappedWorkspaceAllocDef struct {
	Page       uint32 `json:"page"`
	PageOffset uint64 `json:"page_offset"`
	Size       uint64 `json:"size"`
}

type PageMappedOpDef struct {
	Inputs          []PageMappedDLTensorDef      `json:"inputs"`
	SoFunction      uint32                       `json:"so_function"`
	CudaFunctions   []uint32                     `json:"cuda_functions"`
	WorkspaceAllocs []PageMappedWorkspaceAllocDef `json:"workspace_allocs"`
}

type PageDef struct {
	BaseOffset uint64 `json:"base_offset"`
	Size       uint64 `json:"size"`
}

// PageMappedModelDef is the artifact consumed at bootstrap: weights
// pre-sliced into fixed-size GPU pages.
type PageMappedModelDef struct {
	PagedRequiredMemory   uint64            `json:"paged_required_memory"`
	MinimumRequiredMemory uint64            `json:"minimum_required_memory"`
	WeightsMemory         uint64            `json:"weights_memory"`
	SoFunctions           []string          `json:"so_functions"`
	CudaFunctions         []string          `json:"cuda_functions"`
	Ops                   []PageMappedOpDef `json:"ops"`
	Inputs                []PageMappedDLTensorDef `json:"inputs"`
	Outputs               []PageMappedDLTensorDef `json:"outputs"`
	TotalPages            uint32            `json:"total_pages"`
	ConfiguredPageSize    uint64            `json:"configured_page_size"`
	WeightsPages          []PageDef         `json:"weights_pages"`
}
