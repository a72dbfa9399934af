// Package types defines the core data model shared across the scheduler:
// nodes, tasks, partitions, and the resource shapes used to match them.
package types

import "time"

// NodeRole distinguishes how a node participates in the fleet. The core
// scheduler only ever dispatches to workers; the role exists so a single
// NodeRegistry can also track managers/bootstrap nodes reported by a
// NodeProvider without scheduling work onto them.
type NodeRole string

const (
	NodeRoleWorker  NodeRole = "worker"
	NodeRoleManager NodeRole = "manager"
)

// NodeStatus is the lifecycle state of a node as seen by HealthMonitor.
type NodeStatus string

const (
	NodeStatusPending     NodeStatus = "pending"
	NodeStatusRunning     NodeStatus = "running"
	NodeStatusUnreachable NodeStatus = "unreachable"
	NodeStatusDraining    NodeStatus = "draining"
)

// NodeCapacity is the declared, static resource capacity of a node.
type NodeCapacity struct {
	CPUCores int `json:"cpuCores"`
	MemoryMB int `json:"memoryMb"`
	GPUCount int `json:"gpuCount"`
}

// Node is a worker virtual machine known to the scheduler.
type Node struct {
	ID        string            `json:"id"`
	Label     string            `json:"label"`
	Address   string            `json:"address"`
	Role      NodeRole          `json:"role"`
	Capacity  NodeCapacity      `json:"capacity"`
	Load      float64           `json:"load"` // percent, 0-100
	Status    NodeStatus        `json:"status"`
	Labels    map[string]string `json:"labels,omitempty"`
	LastSeen  time.Time         `json:"lastSeen"`
	CreatedAt time.Time         `json:"createdAt"`
}

// AvailableCPU returns the CPU cores currently not accounted for by load,
// clamped to zero. It never reports more than the node's declared capacity.
func (n *Node) AvailableCPU() float64 {
	avail := float64(n.Capacity.CPUCores) * (1 - n.Load/100)
	if avail < 0 {
		return 0
	}
	return avail
}

// Eligible reports whether the node can currently accept a partition
// requiring the given resources, per the Eligibility definition: Running,
// load below maxLoadPct, and capacity at least the requirement.
func (n *Node) Eligible(req ResourceRequirement, maxLoadPct float64) bool {
	if n.Status != NodeStatusRunning {
		return false
	}
	if n.Load >= maxLoadPct {
		return false
	}
	return n.Capacity.CPUCores >= req.MinCPU &&
		n.Capacity.MemoryMB >= req.MinMemoryMB &&
		n.Capacity.GPUCount >= req.MinGPU
}

// ResourceRequirement is the minimum per-partition resource a task needs.
type ResourceRequirement struct {
	MinCPU      int `json:"minCpu"`
	MinMemoryMB int `json:"minMemoryMb"`
	MinGPU      int `json:"minGpu"`
}

// TaskKind selects which Partitioner and Aggregator strategy applies.
type TaskKind string

const (
	TaskKindRender    TaskKind = "render"
	TaskKindCompute   TaskKind = "compute"
	TaskKindBrowser   TaskKind = "browser"
	TaskKindFileSync  TaskKind = "filesync"
)

// TaskPriority is carried through for future preemption use; the current
// scheduler does not act on it beyond recording it.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityNormal TaskPriority = "normal"
	PriorityHigh   TaskPriority = "high"
)

// TaskStatus is the lifecycle state of a submitted task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// RenderPayload is the kind-specific body of a Render task.
type RenderPayload struct {
	SceneFile  string                 `json:"sceneFile"`
	FrameStart int                    `json:"frameStart"`
	FrameEnd   int                    `json:"frameEnd"`
	Options    map[string]interface{} `json:"options,omitempty"`
}

// ComputeOperation is the closed set of kernels a Compute worker may run.
// Dynamic/user-supplied code is rejected by validation.
type ComputeOperation string

const (
	ComputeOpSort   ComputeOperation = "sort"
	ComputeOpFilter ComputeOperation = "filter"
	ComputeOpMap    ComputeOperation = "map"
	ComputeOpReduce ComputeOperation = "reduce"
)

// ComputePayload is the kind-specific body of a Compute task.
type ComputePayload struct {
	InputData  []float64              `json:"inputData"`
	Operation  ComputeOperation       `json:"operation"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	ChunkSize  int                    `json:"chunkSize,omitempty"`
	Exhaustive bool                   `json:"exhaustive,omitempty"`
}

// BrowserPayload is the kind-specific body of a Browser task.
type BrowserPayload struct {
	URL     string                 `json:"url"`
	Actions []map[string]string    `json:"actions,omitempty"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// SyncPayload is the kind-specific body of a FileSync task.
type SyncPayload struct {
	Operation string                 `json:"operation"`
	Files     []string               `json:"files,omitempty"`
	Options   map[string]interface{} `json:"options,omitempty"`
}

// Task is a unit of work submitted to SuperVM.
type Task struct {
	ID          string              `json:"id"`
	Kind        TaskKind            `json:"kind"`
	Priority    TaskPriority        `json:"priority"`
	Requirement ResourceRequirement `json:"requirement"`

	Render  *RenderPayload  `json:"render,omitempty"`
	Compute *ComputePayload `json:"compute,omitempty"`
	Browser *BrowserPayload `json:"browser,omitempty"`
	Sync    *SyncPayload    `json:"sync,omitempty"`

	Status      TaskStatus `json:"status"`
	SubmittedAt time.Time  `json:"submittedAt"`
	StartedAt   time.Time  `json:"startedAt,omitempty"`
	EndedAt     time.Time  `json:"endedAt,omitempty"`

	Result *TaskResult `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Partition is a sub-task carved from a Task, targeted at exactly one node.
type Partition struct {
	ID       string
	TaskID   string
	NodeID   string
	Index    int // original ordering, used by order-sensitive aggregation

	// Render-specific range, inclusive.
	FrameStart int
	FrameEnd   int

	// Compute-specific chunk.
	Chunk []float64

	// Browser/FileSync/default: the whole payload travels unpartitioned.
	Whole bool
}

// PartitionOutcomeKind is the closed set of ways a partition can settle.
type PartitionOutcomeKind string

const (
	OutcomeOK          PartitionOutcomeKind = "ok"
	OutcomeTimeout      PartitionOutcomeKind = "timeout"
	OutcomeTransport     PartitionOutcomeKind = "transport"
	OutcomeWorkerError   PartitionOutcomeKind = "worker_error"
	OutcomeNoCapacity    PartitionOutcomeKind = "no_capacity"
)

// PartitionOutcome is the per-partition result the Dispatcher produces.
type PartitionOutcome struct {
	Partition Partition
	Kind      PartitionOutcomeKind
	NodeID    string
	Elapsed   time.Duration

	// Payload carries the worker's raw result for OutcomeOK; its shape
	// is kind-specific and interpreted only by the Aggregator.
	Payload interface{}
	Reason  string
}

// NodeUsage is the observability record included in every aggregate result.
type NodeUsage struct {
	NodeID  string        `json:"nodeId"`
	Elapsed time.Duration `json:"elapsedNs"`
	OK      bool          `json:"ok"`
	Error   string        `json:"error,omitempty"`
}

// RenderFrame is one rendered frame as returned by a worker.
type RenderFrame struct {
	FrameNumber int                    `json:"frameNumber"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// TaskResult is the aggregate outcome the Aggregator produces for a task.
type TaskResult struct {
	Type       string        `json:"type"` // "render" | "compute" | "browser" | "filesync"
	Success    bool          `json:"success"`
	NodesUsed  []NodeUsage   `json:"nodesUsed"`
	Failures   []NodeUsage   `json:"failures,omitempty"`

	// Render
	Frames     []RenderFrame `json:"frames,omitempty"`
	TotalFrames int          `json:"totalFrames,omitempty"`

	// Compute
	ProcessedData     []float64 `json:"processedData,omitempty"`
	TotalProcessed    int       `json:"totalProcessed,omitempty"`
	UnscheduledChunks int       `json:"unscheduledChunks,omitempty"`

	// Browser/FileSync/default
	Payload interface{} `json:"payload,omitempty"`
}
