// Package workerclient defines the contract the scheduler uses to talk to
// a worker node, plus a reference HTTP implementation. The scheduler only
// ever depends on the WorkerClient interface — the concrete
// client here is an external-collaborator reference implementation, not a
// load-bearing part of the core.
package workerclient

import (
	"context"
	"time"

	"github.com/fleetctl/supervm/pkg/types"
)

// ExecuteResult is what a worker returns for one partition's execution.
type ExecuteResult struct {
	Payload interface{}
}

// WorkerClient issues execute-task and health calls to a worker over the
// network. Implementations must respect the supplied deadline/timeout and
// distinguish transport failures from worker-reported task failures; the
// scheduler never assumes idempotency and treats any retry as its own
// explicit decision.
type WorkerClient interface {
	// ExecuteTask runs one partition on the node at addr, honoring deadline.
	ExecuteTask(ctx context.Context, addr string, partition types.Partition, deadline time.Time) (ExecuteResult, error)

	// Health queries the node at addr for its current load, honoring timeout.
	Health(ctx context.Context, addr string, timeout time.Duration) (loadPct float64, ok bool, err error)
}
