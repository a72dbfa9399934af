// Package dispatcher reserves capacity for each Partition of a Task and
// fans the reserved Partitions out to their nodes concurrently, collecting
// one PartitionOutcome per Partition. It never decides placement — that is
// the Partitioner's job — and never interprets a payload — that is the
// Aggregator's.
package dispatcher

import (
	"context"
	"time"

	"github.com/fleetctl/supervm/pkg/log"
	"github.com/fleetctl/supervm/pkg/metrics"
	"github.com/fleetctl/supervm/pkg/registry"
	"github.com/fleetctl/supervm/pkg/types"
	"github.com/fleetctl/supervm/pkg/workerclient"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultReserveDelta is the load percentage reserved against a node
	// for the duration of one partition's dispatch.
	DefaultReserveDelta = 20.0

	// DefaultTaskDeadline bounds the whole task's dispatch.
	DefaultTaskDeadline = 5 * time.Minute
)

// Config tunes one Dispatcher instance.
type Config struct {
	ReserveDelta float64
	TaskDeadline time.Duration
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{ReserveDelta: DefaultReserveDelta, TaskDeadline: DefaultTaskDeadline}
}

// Dispatcher fans a task's partitions out to their assigned nodes.
type Dispatcher struct {
	registry *registry.Registry
	worker   workerclient.WorkerClient
	cfg      Config
	logger   zerolog.Logger
}

// New builds a Dispatcher over reg, issuing calls through worker.
func New(reg *registry.Registry, worker workerclient.WorkerClient, cfg Config) *Dispatcher {
	if cfg.ReserveDelta <= 0 {
		cfg.ReserveDelta = DefaultReserveDelta
	}
	if cfg.TaskDeadline <= 0 {
		cfg.TaskDeadline = DefaultTaskDeadline
	}
	return &Dispatcher{
		registry: reg,
		worker:   worker,
		cfg:      cfg,
		logger:   log.WithComponent("dispatcher"),
	}
}

// Dispatch reserves capacity and executes every partition concurrently,
// returning one outcome per partition in the same order they were given.
// The per-task deadline bounds the whole call: Dispatch returns only once
// every sibling has settled.
func (d *Dispatcher) Dispatch(ctx context.Context, task *types.Task, partitions []types.Partition) []types.PartitionOutcome {
	deadline := time.Now().Add(d.cfg.TaskDeadline)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	outcomes := make([]types.PartitionOutcome, len(partitions))

	g, gctx := errgroup.WithContext(ctx)
	for i, part := range partitions {
		i, part := i, part
		g.Go(func() error {
			outcomes[i] = d.dispatchOne(gctx, part, deadline)
			return nil
		})
	}
	// errgroup.Go bodies never return an error here: every failure mode is
	// captured in the outcome, not propagated, so siblings are never
	// cancelled by one partition's failure.
	_ = g.Wait()

	return outcomes
}

func (d *Dispatcher) dispatchOne(ctx context.Context, part types.Partition, deadline time.Time) types.PartitionOutcome {
	node, ok := d.registry.Get(part.NodeID)
	if !ok {
		return types.PartitionOutcome{Partition: part, Kind: types.OutcomeNoCapacity, NodeID: part.NodeID, Reason: "node no longer known"}
	}

	refusal, reserved := d.registry.TryReserve(part.NodeID, d.cfg.ReserveDelta)
	if !reserved {
		metrics.ReservationRefusals.WithLabelValues(string(refusal)).Inc()
		d.logger.Warn().Str("node_id", part.NodeID).Str("refusal", string(refusal)).Msg("reservation refused")
		return types.PartitionOutcome{Partition: part, Kind: types.OutcomeNoCapacity, NodeID: part.NodeID, Reason: string(refusal)}
	}
	defer d.registry.Release(part.NodeID, d.cfg.ReserveDelta)

	start := time.Now()
	result, err := d.worker.ExecuteTask(ctx, node.Address, part, deadline)
	elapsed := time.Since(start)
	metrics.PartitionLatency.Observe(elapsed.Seconds())

	if err != nil {
		kind, reason := classify(err)
		metrics.PartitionsDispatched.WithLabelValues(string(kind)).Inc()
		d.logger.Error().Err(err).Str("node_id", part.NodeID).Str("outcome", string(kind)).Msg("partition failed")
		return types.PartitionOutcome{Partition: part, Kind: kind, NodeID: part.NodeID, Elapsed: elapsed, Reason: reason}
	}

	metrics.PartitionsDispatched.WithLabelValues(string(types.OutcomeOK)).Inc()
	return types.PartitionOutcome{Partition: part, Kind: types.OutcomeOK, NodeID: part.NodeID, Elapsed: elapsed, Payload: result.Payload}
}
