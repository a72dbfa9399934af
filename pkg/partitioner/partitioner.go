// Package partitioner turns a Task plus a candidate node list into the
// per-node Partitions the Dispatcher will send out. Partitioning is a pure
// function of (task, ordered candidate node list): it never reserves
// capacity or talks to a node — that happens in the Dispatcher.
package partitioner

import (
	"sort"

	"github.com/fleetctl/supervm/pkg/errs"
	"github.com/fleetctl/supervm/pkg/types"
)

const defaultChunkSize = 1000

// Outcome is everything Partition produces: the sub-tasks to dispatch, plus
// any input that couldn't be placed on this round (Compute's surplus
// chunks when exhaustive isn't set).
type Outcome struct {
	Partitions        []types.Partition
	UnscheduledChunks int
}

// Order returns candidates sorted ascending by load, then by id, the tie
// -break rule every Partitioner strategy shares.
func Order(candidates []*types.Node) []*types.Node {
	ordered := make([]*types.Node, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Load != ordered[j].Load {
			return ordered[i].Load < ordered[j].Load
		}
		return ordered[i].ID < ordered[j].ID
	})
	return ordered
}

// Partition dispatches to the per-kind strategy. candidates must already be
// filtered to eligible nodes; Partition itself never re-checks eligibility.
func Partition(task *types.Task, candidates []*types.Node) (Outcome, error) {
	if len(candidates) == 0 {
		return Outcome{}, errs.New(errs.NoEligibleNodes, "no eligible nodes for task")
	}

	ordered := Order(candidates)

	switch task.Kind {
	case types.TaskKindRender:
		return partitionRender(task, ordered)
	case types.TaskKindCompute:
		return partitionCompute(task, ordered)
	default:
		return partitionWhole(task, ordered)
	}
}

// partitionRender splits [frameStart, frameEnd] into N contiguous
// sub-ranges, N = min(len(nodes), frameCount). The first
// frameCount mod N ranges get one extra frame.
func partitionRender(task *types.Task, nodes []*types.Node) (Outcome, error) {
	p := task.Render
	if p == nil {
		return Outcome{}, errs.New(errs.Validation, "render task missing payload")
	}

	frameCount := p.FrameEnd - p.FrameStart + 1
	if frameCount <= 0 {
		return Outcome{}, errs.New(errs.Validation, "render frameEnd must be >= frameStart")
	}

	n := len(nodes)
	if frameCount < n {
		n = frameCount
	}

	base := frameCount / n
	extra := frameCount % n

	partitions := make([]types.Partition, 0, n)
	cursor := p.FrameStart
	for i := 0; i < n; i++ {
		size := base
		if i < extra {
			size++
		}
		partitions = append(partitions, types.Partition{
			TaskID:     task.ID,
			NodeID:     nodes[i].ID,
			Index:      i,
			FrameStart: cursor,
			FrameEnd:   cursor + size - 1,
		})
		cursor += size
	}

	return Outcome{Partitions: partitions}, nil
}

// partitionCompute splits InputData into chunks of ChunkSize (default 1000)
// and assigns up to one chunk per node, in input order, until nodes or
// chunks are exhausted. Surplus chunks beyond len(nodes) are always
// reported as UnscheduledChunks, whether or not Exhaustive is set; neither
// this Partitioner nor SuperVM dispatches them in a second round.
func partitionCompute(task *types.Task, nodes []*types.Node) (Outcome, error) {
	p := task.Compute
	if p == nil {
		return Outcome{}, errs.New(errs.Validation, "compute task missing payload")
	}

	chunkSize := p.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	var chunks [][]float64
	for start := 0; start < len(p.InputData); start += chunkSize {
		end := start + chunkSize
		if end > len(p.InputData) {
			end = len(p.InputData)
		}
		chunks = append(chunks, p.InputData[start:end])
	}

	assignable := len(chunks)
	if len(nodes) < assignable {
		assignable = len(nodes)
	}

	partitions := make([]types.Partition, 0, assignable)
	for i := 0; i < assignable; i++ {
		partitions = append(partitions, types.Partition{
			TaskID: task.ID,
			NodeID: nodes[i].ID,
			Index:  i,
			Chunk:  chunks[i],
		})
	}

	return Outcome{
		Partitions:        partitions,
		UnscheduledChunks: len(chunks) - assignable,
	}, nil
}

// partitionWhole handles Browser, FileSync, and any other kind whose
// payload travels unpartitioned to a single node: the best-placed
// candidate after ordering.
func partitionWhole(task *types.Task, nodes []*types.Node) (Outcome, error) {
	return Outcome{
		Partitions: []types.Partition{{
			TaskID: task.ID,
			NodeID: nodes[0].ID,
			Index:  0,
			Whole:  true,
		}},
	}, nil
}
