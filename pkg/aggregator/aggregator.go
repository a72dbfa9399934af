// Package aggregator combines a Dispatcher's per-partition outcomes into
// the single TaskResult a caller sees, per task kind. It never
// mutates its inputs and never talks to the network or the registry.
package aggregator

import (
	"encoding/json"
	"sort"

	"github.com/fleetctl/supervm/pkg/types"
)

// Aggregate combines outcomes for a task of the given kind. unscheduledChunks
// is carried through from the Partitioner for Compute tasks that had surplus
// input left unassigned; it is ignored for other kinds.
func Aggregate(kind types.TaskKind, outcomes []types.PartitionOutcome, unscheduledChunks int) *types.TaskResult {
	switch kind {
	case types.TaskKindRender:
		return aggregateRender(outcomes)
	case types.TaskKindCompute:
		return aggregateCompute(outcomes, unscheduledChunks)
	default:
		return aggregateWhole(kind, outcomes)
	}
}

func usageOf(o types.PartitionOutcome) types.NodeUsage {
	u := types.NodeUsage{NodeID: o.NodeID, Elapsed: o.Elapsed, OK: o.Kind == types.OutcomeOK}
	if !u.OK {
		u.Error = o.Reason
	}
	return u
}

// decodeInto round-trips a generic payload (as produced by a JSON-speaking
// WorkerClient, where a payload arrives as interface{} rather than a typed
// struct) into dst. Payloads built in-process already satisfy dst's shape
// and round-trip losslessly.
func decodeInto(payload interface{}, dst interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func aggregateRender(outcomes []types.PartitionOutcome) *types.TaskResult {
	result := &types.TaskResult{Type: "render"}

	var frames []types.RenderFrame
	for _, o := range outcomes {
		result.NodesUsed = append(result.NodesUsed, usageOf(o))
		if o.Kind != types.OutcomeOK {
			result.Failures = append(result.Failures, usageOf(o))
			continue
		}
		var partFrames []types.RenderFrame
		if err := decodeInto(o.Payload, &partFrames); err != nil {
			result.Failures = append(result.Failures, types.NodeUsage{NodeID: o.NodeID, Elapsed: o.Elapsed, OK: false, Error: "malformed frame payload"})
			continue
		}
		frames = append(frames, partFrames...)
	}

	sort.Slice(frames, func(i, j int) bool { return frames[i].FrameNumber < frames[j].FrameNumber })

	result.Frames = frames
	result.TotalFrames = len(frames)
	result.Success = result.TotalFrames > 0
	return result
}

func aggregateCompute(outcomes []types.PartitionOutcome, unscheduledChunks int) *types.TaskResult {
	result := &types.TaskResult{Type: "compute", UnscheduledChunks: unscheduledChunks}

	ordered := make([]types.PartitionOutcome, len(outcomes))
	copy(ordered, outcomes)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Partition.Index < ordered[j].Partition.Index })

	var processed []float64
	for _, o := range ordered {
		result.NodesUsed = append(result.NodesUsed, usageOf(o))
		if o.Kind != types.OutcomeOK {
			result.Failures = append(result.Failures, usageOf(o))
			continue
		}
		var chunk []float64
		if err := decodeInto(o.Payload, &chunk); err != nil {
			result.Failures = append(result.Failures, types.NodeUsage{NodeID: o.NodeID, Elapsed: o.Elapsed, OK: false, Error: "malformed chunk payload"})
			continue
		}
		processed = append(processed, chunk...)
	}

	result.ProcessedData = processed
	result.TotalProcessed = len(processed)
	result.Success = result.TotalProcessed > 0
	return result
}

func aggregateWhole(kind types.TaskKind, outcomes []types.PartitionOutcome) *types.TaskResult {
	result := &types.TaskResult{Type: string(kind)}

	for _, o := range outcomes {
		result.NodesUsed = append(result.NodesUsed, usageOf(o))
		if o.Kind != types.OutcomeOK {
			result.Failures = append(result.Failures, usageOf(o))
			continue
		}
		if !result.Success {
			result.Success = true
			result.Payload = o.Payload
		}
	}

	return result
}
