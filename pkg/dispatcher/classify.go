package dispatcher

import (
	"github.com/fleetctl/supervm/pkg/errs"
	"github.com/fleetctl/supervm/pkg/types"
)

// classify maps a WorkerClient error to the closed PartitionOutcomeKind set
// and a human-readable reason string carried in failure records.
func classify(err error) (types.PartitionOutcomeKind, string) {
	switch errs.KindOf(err) {
	case errs.Timeout:
		return types.OutcomeTimeout, "Timeout"
	case errs.Transport:
		return types.OutcomeTransport, "Transport"
	case errs.WorkerError:
		return types.OutcomeWorkerError, err.Error()
	default:
		return types.OutcomeTransport, err.Error()
	}
}
