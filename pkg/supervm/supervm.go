// Package supervm is the top-level façade: it owns the Registry, drives
// Initialize/Submit/Scale/Status, and wires Partitioner → Dispatcher →
// Aggregator → TaskStore for every submitted task.
package supervm

import (
	"context"
	"sync"
	"time"

	"github.com/fleetctl/supervm/pkg/aggregator"
	"github.com/fleetctl/supervm/pkg/dispatcher"
	"github.com/fleetctl/supervm/pkg/errs"
	"github.com/fleetctl/supervm/pkg/events"
	"github.com/fleetctl/supervm/pkg/healthmonitor"
	"github.com/fleetctl/supervm/pkg/log"
	"github.com/fleetctl/supervm/pkg/metrics"
	"github.com/fleetctl/supervm/pkg/nodeprovider"
	"github.com/fleetctl/supervm/pkg/partitioner"
	"github.com/fleetctl/supervm/pkg/registry"
	"github.com/fleetctl/supervm/pkg/resourcepool"
	"github.com/fleetctl/supervm/pkg/taskstore"
	"github.com/fleetctl/supervm/pkg/types"
	"github.com/fleetctl/supervm/pkg/workerclient"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Mode is SuperVM's own lifecycle state, distinct from any one Node's.
type Mode string

const (
	ModeInitializing Mode = "Initializing"
	ModeStarting     Mode = "Starting"
	ModeReady        Mode = "Ready"
	ModeError        Mode = "Error"
)

// DefaultMaxFanOut bounds the number of partitions a single task can fan
// out to, guarding against the unbounded per-node fan-out called out as a
// redesign target: a task never touches more than this many nodes no
// matter how large the eligible candidate set is.
const DefaultMaxFanOut = 32

// Config tunes a SuperVM instance. Zero values fall back to each
// collaborator's own defaults.
type Config struct {
	MaxLoadPct    float64
	MaxFanOut     int
	Dispatcher    dispatcher.Config
	HealthMonitor healthmonitor.Config
	TaskRetention time.Duration
}

// SuperVM is the top-level orchestration façade.
type SuperVM struct {
	mu   sync.RWMutex
	mode Mode

	registry *registry.Registry
	provider nodeprovider.NodeProvider
	worker   workerclient.WorkerClient

	dispatcher *dispatcher.Dispatcher
	health     *healthmonitor.Monitor
	store      *taskstore.Store
	broker     *events.Broker
	maxFanOut  int

	startedAt time.Time
	logger    zerolog.Logger

	perfMu          sync.Mutex
	totalTasks      int64
	totalElapsed    time.Duration
	totalComputeMs  float64
}

// New builds a SuperVM. It does not start any background activity — call
// Initialize for that.
func New(provider nodeprovider.NodeProvider, worker workerclient.WorkerClient, cfg Config) *SuperVM {
	reg := registry.New(cfg.MaxLoadPct)
	broker := events.NewBroker()
	maxFanOut := cfg.MaxFanOut
	if maxFanOut <= 0 {
		maxFanOut = DefaultMaxFanOut
	}
	return &SuperVM{
		mode:       ModeInitializing,
		registry:   reg,
		provider:   provider,
		worker:     worker,
		dispatcher: dispatcher.New(reg, worker, cfg.Dispatcher),
		health:     healthmonitor.New(reg, worker, broker, cfg.HealthMonitor),
		store:      taskstore.New(cfg.TaskRetention),
		broker:     broker,
		maxFanOut:  maxFanOut,
		logger:     log.WithComponent("supervm"),
	}
}

// Events exposes the event broker for ControlAPI's websocket stream.
func (s *SuperVM) Events() *events.Broker { return s.broker }

// Initialize bootstraps fleet membership from the NodeProvider, then starts
// the background HealthMonitor and TaskStore sweeper.
func (s *SuperVM) Initialize(ctx context.Context) error {
	s.setMode(ModeStarting)

	nodes, err := s.provider.ListNodes(ctx)
	if err != nil {
		s.setMode(ModeError)
		return errs.Wrap(errs.ProviderError, "list nodes", err)
	}

	now := time.Now()
	for _, d := range nodes {
		s.registry.Upsert(&types.Node{
			ID:        d.ID,
			Label:     d.Label,
			Address:   d.Address,
			Role:      d.Role,
			Capacity:  d.Capacity,
			Labels:    d.Labels,
			Status:    types.NodeStatusPending,
			CreatedAt: now,
		})
	}

	s.startedAt = time.Now()
	s.broker.Start()
	s.health.Start()
	s.store.Start()

	s.setMode(ModeReady)
	s.logger.Info().Int("nodes", len(nodes)).Msg("supervm initialized")
	return nil
}

// Shutdown stops background activities.
func (s *SuperVM) Shutdown() {
	s.health.Stop()
	s.store.Stop()
	s.broker.Stop()
}

func (s *SuperVM) setMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
}

func (s *SuperVM) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Submit runs one task end to end: Partitioner → Dispatcher → Aggregator →
// TaskStore. If no node is eligible at submission time
// it fails fast with NoEligibleNodes; the scheduler never queues a task for
// a future node.
func (s *SuperVM) Submit(ctx context.Context, task *types.Task) (*types.TaskResult, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Priority == "" {
		task.Priority = types.PriorityNormal
	}
	task.Status = types.TaskStatusPending
	task.SubmittedAt = time.Now()

	s.store.Insert(task)
	s.store.UpdateStatus(task.ID, types.TaskStatusRunning)
	s.broker.Publish(&events.Event{Type: events.EventTaskSubmitted, Message: "task submitted", Metadata: map[string]string{"task_id": task.ID, "kind": string(task.Kind)}})

	candidates := s.eligibleNodes(task.Requirement)
	if len(candidates) == 0 {
		err := errs.New(errs.NoEligibleNodes, "no node meets the task's resource requirement")
		s.store.SetResult(task.ID, nil, err.Error())
		s.broker.Publish(&events.Event{Type: events.EventTaskFailed, Message: err.Error(), Metadata: map[string]string{"task_id": task.ID}})
		return nil, err
	}

	outcome, err := partitioner.Partition(task, candidates)
	if err != nil {
		s.store.SetResult(task.ID, nil, err.Error())
		s.broker.Publish(&events.Event{Type: events.EventTaskFailed, Message: err.Error(), Metadata: map[string]string{"task_id": task.ID}})
		return nil, err
	}

	start := time.Now()
	partOutcomes := s.dispatcher.Dispatch(ctx, task, outcome.Partitions)
	elapsed := time.Since(start)

	result := aggregator.Aggregate(task.Kind, partOutcomes, outcome.UnscheduledChunks)

	var errMsg string
	if !result.Success {
		errMsg = "all partitions failed"
	}
	s.store.SetResult(task.ID, result, errMsg)

	finalStatus := types.TaskStatusCompleted
	finalEvent := events.EventTaskCompleted
	if errMsg != "" {
		finalStatus = types.TaskStatusFailed
		finalEvent = events.EventTaskFailed
	}
	s.broker.Publish(&events.Event{Type: finalEvent, Message: errMsg, Metadata: map[string]string{"task_id": task.ID}})

	s.recordPerf(elapsed)
	metrics.TasksTotal.WithLabelValues(string(finalStatus)).Inc()

	return result, nil
}

// eligibleNodes returns the candidate set for a task's requirement, capped
// to maxFanOut (spec §9: "bound per-task fan-out by min(|candidates|,
// MaxFanOut)"). Ordering matches the Partitioner's own tie-break (load
// ascending, then id) so capping keeps the least-loaded candidates rather
// than an arbitrary registry-order prefix.
func (s *SuperVM) eligibleNodes(req types.ResourceRequirement) []*types.Node {
	nodes := s.registry.List()
	maxLoad := s.registry.MaxLoadPct()

	eligible := make([]*types.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Eligible(req, maxLoad) {
			eligible = append(eligible, n)
		}
	}

	ordered := partitioner.Order(eligible)
	if len(ordered) > s.maxFanOut {
		ordered = ordered[:s.maxFanOut]
	}
	return ordered
}

// Scale asks the NodeProvider for delta additional nodes. It does not wait
// for them to become healthy — callers poll Status.
func (s *SuperVM) Scale(ctx context.Context, delta int, template types.NodeCapacity) error {
	if delta <= 0 {
		return errs.New(errs.Validation, "scale delta must be positive")
	}

	go func() {
		created, err := s.provider.CreateNode(context.Background(), template, delta)
		if err != nil {
			s.logger.Error().Err(err).Msg("provider failed to create nodes")
			return
		}
		now := time.Now()
		for _, d := range created {
			s.registry.Upsert(&types.Node{
				ID:        d.ID,
				Label:     d.Label,
				Address:   d.Address,
				Role:      d.Role,
				Capacity:  d.Capacity,
				Labels:    d.Labels,
				Status:    types.NodeStatusPending,
				CreatedAt: now,
			})
		}
		s.logger.Info().Int("requested", delta).Int("created", len(created)).Msg("scale request completed")
	}()

	return nil
}

// Status is the snapshot returned by the ControlAPI's status endpoint
//.
type Status struct {
	Mode        Mode
	Resources   resourcepool.Snapshot
	ActiveTasks int
	Performance Performance
}

// Performance is the running efficiency picture across all submitted tasks.
type Performance struct {
	TotalTasks      int64
	AverageElapsed  time.Duration
	TotalComputeMs  float64
	UptimeMs        float64
	EfficiencyPct   float64
}

// Status computes the current snapshot.
func (s *SuperVM) Status() Status {
	nodes := s.registry.List()
	active := len(s.store.List(taskstore.Filter{Status: types.TaskStatusRunning}))

	s.perfMu.Lock()
	total := s.totalTasks
	totalElapsed := s.totalElapsed
	totalComputeMs := s.totalComputeMs
	s.perfMu.Unlock()

	var avg time.Duration
	if total > 0 {
		avg = totalElapsed / time.Duration(total)
	}

	uptimeMs := float64(time.Since(s.startedAt).Milliseconds())
	var efficiency float64
	if uptimeMs > 0 {
		efficiency = totalComputeMs / uptimeMs
	}

	return Status{
		Mode:        s.Mode(),
		Resources:   resourcepool.From(nodes),
		ActiveTasks: active,
		Performance: Performance{
			TotalTasks:     total,
			AverageElapsed: avg,
			TotalComputeMs: totalComputeMs,
			UptimeMs:       uptimeMs,
			EfficiencyPct:  efficiency,
		},
	}
}

func (s *SuperVM) recordPerf(elapsed time.Duration) {
	s.perfMu.Lock()
	defer s.perfMu.Unlock()
	s.totalTasks++
	s.totalElapsed += elapsed
	s.totalComputeMs += float64(elapsed.Milliseconds())
}

// Registry exposes the underlying NodeRegistry for ControlAPI node
// listing/drain endpoints.
func (s *SuperVM) Registry() *registry.Registry { return s.registry }

// Tasks exposes the underlying TaskStore for ControlAPI task listing.
func (s *SuperVM) Tasks() *taskstore.Store { return s.store }

// Task looks up a single task's full record.
func (s *SuperVM) Task(id string) (*types.Task, bool) {
	return s.store.Get(id)
}
