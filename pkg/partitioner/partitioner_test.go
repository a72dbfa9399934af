package partitioner

import (
	"testing"

	"github.com/fleetctl/supervm/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(id string, load float64) *types.Node {
	return &types.Node{ID: id, Load: load, Status: types.NodeStatusRunning}
}

func TestPartitionRenderEvenSplit(t *testing.T) {
	task := &types.Task{
		ID:   "t1",
		Kind: types.TaskKindRender,
		Render: &types.RenderPayload{
			SceneFile:  "/s.blend",
			FrameStart: 1,
			FrameEnd:   10,
		},
	}
	nodes := []*types.Node{node("a", 0), node("b", 0), node("c", 0)}

	out, err := Partition(task, nodes)
	require.NoError(t, err)
	require.Len(t, out.Partitions, 3)

	assert.Equal(t, 1, out.Partitions[0].FrameStart)
	assert.Equal(t, 4, out.Partitions[0].FrameEnd)
	assert.Equal(t, 5, out.Partitions[1].FrameStart)
	assert.Equal(t, 7, out.Partitions[1].FrameEnd)
	assert.Equal(t, 8, out.Partitions[2].FrameStart)
	assert.Equal(t, 10, out.Partitions[2].FrameEnd)
}

func TestPartitionRenderMoreNodesThanFrames(t *testing.T) {
	task := &types.Task{
		ID:   "t1",
		Kind: types.TaskKindRender,
		Render: &types.RenderPayload{
			FrameStart: 1,
			FrameEnd:   2,
		},
	}
	nodes := []*types.Node{node("a", 0), node("b", 0), node("c", 0)}

	out, err := Partition(task, nodes)
	require.NoError(t, err)
	assert.Len(t, out.Partitions, 2)
}

func TestPartitionComputeSingleChunk(t *testing.T) {
	task := &types.Task{
		ID:   "t1",
		Kind: types.TaskKindCompute,
		Compute: &types.ComputePayload{
			InputData: []float64{5, 2, 8, 1, 9, 3, 7, 4, 6},
			Operation: types.ComputeOpSort,
			ChunkSize: 9,
		},
	}
	nodes := []*types.Node{node("a", 0)}

	out, err := Partition(task, nodes)
	require.NoError(t, err)
	require.Len(t, out.Partitions, 1)
	assert.Equal(t, 9, len(out.Partitions[0].Chunk))
	assert.Equal(t, 0, out.UnscheduledChunks)
}

func TestPartitionComputeSurplusChunksUnscheduled(t *testing.T) {
	task := &types.Task{
		ID:   "t1",
		Kind: types.TaskKindCompute,
		Compute: &types.ComputePayload{
			InputData: make([]float64, 30),
			ChunkSize: 10,
		},
	}
	nodes := []*types.Node{node("a", 0)}

	out, err := Partition(task, nodes)
	require.NoError(t, err)
	require.Len(t, out.Partitions, 1)
	assert.Equal(t, 2, out.UnscheduledChunks)
}

func TestPartitionComputeDefaultChunkSize(t *testing.T) {
	task := &types.Task{
		ID:   "t1",
		Kind: types.TaskKindCompute,
		Compute: &types.ComputePayload{
			InputData: make([]float64, 2500),
		},
	}
	nodes := []*types.Node{node("a", 0), node("b", 0), node("c", 0)}

	out, err := Partition(task, nodes)
	require.NoError(t, err)
	assert.Len(t, out.Partitions, 3)
	assert.Equal(t, 0, out.UnscheduledChunks)
}

func TestPartitionWholeUsesLeastLoadedNode(t *testing.T) {
	task := &types.Task{
		ID:      "t1",
		Kind:    types.TaskKindBrowser,
		Browser: &types.BrowserPayload{URL: "https://example.com"},
	}
	nodes := []*types.Node{node("b", 50), node("a", 10)}

	out, err := Partition(task, nodes)
	require.NoError(t, err)
	require.Len(t, out.Partitions, 1)
	assert.Equal(t, "a", out.Partitions[0].NodeID)
	assert.True(t, out.Partitions[0].Whole)
}

func TestOrderTiesBrokenByID(t *testing.T) {
	nodes := []*types.Node{node("z", 10), node("a", 10), node("m", 10)}
	ordered := Order(nodes)
	assert.Equal(t, "a", ordered[0].ID)
	assert.Equal(t, "m", ordered[1].ID)
	assert.Equal(t, "z", ordered[2].ID)
}

func TestPartitionNoEligibleNodes(t *testing.T) {
	task := &types.Task{ID: "t1", Kind: types.TaskKindRender, Render: &types.RenderPayload{FrameStart: 1, FrameEnd: 1}}
	_, err := Partition(task, nil)
	require.Error(t, err)
}
