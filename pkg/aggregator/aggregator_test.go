package aggregator

import (
	"testing"

	"github.com/fleetctl/supervm/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestAggregateRenderSortsAndSucceeds(t *testing.T) {
	outcomes := []types.PartitionOutcome{
		{NodeID: "b", Kind: types.OutcomeOK, Payload: []types.RenderFrame{{FrameNumber: 5}, {FrameNumber: 4}}},
		{NodeID: "a", Kind: types.OutcomeOK, Payload: []types.RenderFrame{{FrameNumber: 1}, {FrameNumber: 2}, {FrameNumber: 3}}},
	}

	result := Aggregate(types.TaskKindRender, outcomes, 0)

	assert.True(t, result.Success)
	assert.Equal(t, 5, result.TotalFrames)
	assert.Equal(t, "render", result.Type)
	for i := 1; i < len(result.Frames); i++ {
		assert.LessOrEqual(t, result.Frames[i-1].FrameNumber, result.Frames[i].FrameNumber)
	}
}

func TestAggregateRenderPartialFailure(t *testing.T) {
	outcomes := []types.PartitionOutcome{
		{NodeID: "a", Kind: types.OutcomeOK, Payload: []types.RenderFrame{{FrameNumber: 1}, {FrameNumber: 2}, {FrameNumber: 3}}},
		{NodeID: "b", Kind: types.OutcomeTransport, Reason: "Transport"},
	}

	result := Aggregate(types.TaskKindRender, outcomes, 0)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.TotalFrames)
	assert.Len(t, result.Failures, 1)
	assert.Equal(t, "b", result.Failures[0].NodeID)
	assert.Equal(t, "Transport", result.Failures[0].Error)
}

func TestAggregateComputeConcatenatesInInputOrder(t *testing.T) {
	outcomes := []types.PartitionOutcome{
		{NodeID: "b", Partition: types.Partition{Index: 1}, Kind: types.OutcomeOK, Payload: []float64{4, 5}},
		{NodeID: "a", Partition: types.Partition{Index: 0}, Kind: types.OutcomeOK, Payload: []float64{1, 2, 3}},
	}

	result := Aggregate(types.TaskKindCompute, outcomes, 2)

	assert.True(t, result.Success)
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, result.ProcessedData)
	assert.Equal(t, 5, result.TotalProcessed)
	assert.Equal(t, 2, result.UnscheduledChunks)
}

func TestAggregateWholeUsesFirstSuccessfulPayload(t *testing.T) {
	outcomes := []types.PartitionOutcome{
		{NodeID: "a", Kind: types.OutcomeOK, Payload: "done"},
	}

	result := Aggregate(types.TaskKindBrowser, outcomes, 0)

	assert.True(t, result.Success)
	assert.Equal(t, "done", result.Payload)
	assert.Equal(t, "browser", result.Type)
}

func TestAggregateNeverBothCompletedAndFailed(t *testing.T) {
	outcomes := []types.PartitionOutcome{
		{NodeID: "a", Kind: types.OutcomeTransport, Reason: "Transport"},
	}
	result := Aggregate(types.TaskKindCompute, outcomes, 0)
	assert.False(t, result.Success)
	assert.Equal(t, 0, result.TotalProcessed)
	assert.Len(t, result.Failures, 1)
}
