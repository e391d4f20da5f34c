package schedcore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestPageMappedModelDef_RoundTrip verifies the paged artifact format
// survives serialization intact for every field, per spec section 8.
func TestPageMappedModelDef_RoundTrip(t *testing.T) {
	def := PageMappedModelDef{
		PagedRequiredMemory:   64 << 20,
		MinimumRequiredMemory: 48 << 20,
		WeightsMemory:         32 << 20,
		SoFunctions:           []string{"fused_conv2d", "fused_dense"},
		CudaFunctions:         []string{"fused_conv2d_kernel0"},
		Ops: []PageMappedOpDef{
			{
				Inputs: []PageMappedDLTensorDef{
					{BaseOffset: 0, Page: 0, PageOffset: 128, Size: 4096, Shape: []int64{1, 3, 224, 224}},
				},
				SoFunction:    0,
				CudaFunctions: []uint32{0},
				WorkspaceAllocs: []PageMappedWorkspaceAllocDef{
					{Page: 2, PageOffset: 0, Size: 8192},
				},
			},
		},
		Inputs:             []PageMappedDLTensorDef{{Page: 0, PageOffset: 0, Size: 602112, Shape: []int64{1, 3, 224, 224}}},
		Outputs:            []PageMappedDLTensorDef{{Page: 1, PageOffset: 0, Size: 4000, Shape: []int64{1, 1000}}},
		TotalPages:         4,
		ConfiguredPageSize: 16 << 20,
		WeightsPages: []PageDef{
			{BaseOffset: 0, Size: 16 << 20},
			{BaseOffset: 16 << 20, Size: 16 << 20},
		},
	}

	data, err := json.Marshal(def)
	require.NoError(t, err)

	var got PageMappedModelDef
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, def, got)
}

// TestModelDef_RoundTrip covers the unpaged artifact the compiler emits
// before page mapping.
func TestModelDef_RoundTrip(t *testing.T) {
	def := ModelDef{
		TotalMemory:     96 << 20,
		WeightsMemory:   32 << 20,
		WorkspaceMemory: 8 << 20,
		SoFunctions:     []string{"fused_dense"},
		CudaFunctions:   []string{"fused_dense_kernel0"},
		Ops: []OpDef{
			{
				Inputs:          []DLTensorDef{{Offset: 0, Size: 4096, Shape: []int64{1, 1024}}},
				SoFunction:      0,
				CudaFunctions:   []uint32{0},
				WorkspaceAllocs: []WorkspaceAllocDef{{Offset: 0, Size: 2048}},
			},
		},
		Inputs:  []DLTensorDef{{Offset: 0, Size: 4096, Shape: []int64{1, 1024}}},
		Outputs: []DLTensorDef{{Offset: 4096, Size: 40, Shape: []int64{1, 10}}},
	}

	data, err := json.Marshal(def)
	require.NoError(t, err)

	var got ModelDef
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, def, got)
}
