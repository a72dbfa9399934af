package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/fleetctl/supervm/pkg/errs"
	"github.com/fleetctl/supervm/pkg/registry"
	"github.com/fleetctl/supervm/pkg/types"
	"github.com/fleetctl/supervm/pkg/workerclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWorker struct {
	execFn func(ctx context.Context, addr string, p types.Partition, deadline time.Time) (workerclient.ExecuteResult, error)
}

func (f *fakeWorker) ExecuteTask(ctx context.Context, addr string, p types.Partition, deadline time.Time) (workerclient.ExecuteResult, error) {
	return f.execFn(ctx, addr, p, deadline)
}

func (f *fakeWorker) Health(ctx context.Context, addr string, timeout time.Duration) (float64, bool, error) {
	return 0, true, nil
}

func newRegistryWithNode(id string, load float64) *registry.Registry {
	reg := registry.New(registry.DefaultMaxLoadPct)
	reg.Upsert(&types.Node{
		ID:       id,
		Address:  "http://" + id,
		Status:   types.NodeStatusRunning,
		Load:     load,
		Capacity: types.NodeCapacity{CPUCores: 4, MemoryMB: 4096},
	})
	return reg
}

func TestDispatchSuccessReleasesReservation(t *testing.T) {
	reg := newRegistryWithNode("a", 0)
	worker := &fakeWorker{
		execFn: func(ctx context.Context, addr string, p types.Partition, deadline time.Time) (workerclient.ExecuteResult, error) {
			return workerclient.ExecuteResult{Payload: "ok"}, nil
		},
	}
	d := New(reg, worker, DefaultConfig())

	task := &types.Task{ID: "t1"}
	partitions := []types.Partition{{TaskID: "t1", NodeID: "a"}}

	outcomes := d.Dispatch(context.Background(), task, partitions)
	require.Len(t, outcomes, 1)
	assert.Equal(t, types.OutcomeOK, outcomes[0].Kind)

	n, _ := reg.Get("a")
	assert.Equal(t, float64(0), n.Load)
}

func TestDispatchTransportFailureReleasesReservation(t *testing.T) {
	reg := newRegistryWithNode("b", 0)
	worker := &fakeWorker{
		execFn: func(ctx context.Context, addr string, p types.Partition, deadline time.Time) (workerclient.ExecuteResult, error) {
			return workerclient.ExecuteResult{}, errs.New(errs.Transport, "connection refused")
		},
	}
	d := New(reg, worker, DefaultConfig())

	outcomes := d.Dispatch(context.Background(), &types.Task{ID: "t1"}, []types.Partition{{TaskID: "t1", NodeID: "b"}})
	require.Len(t, outcomes, 1)
	assert.Equal(t, types.OutcomeTransport, outcomes[0].Kind)
	assert.Equal(t, "Transport", outcomes[0].Reason)

	n, _ := reg.Get("b")
	assert.Equal(t, float64(0), n.Load)
}

func TestDispatchOverloadedNodeFailsFast(t *testing.T) {
	reg := newRegistryWithNode("c", 85)
	called := false
	worker := &fakeWorker{
		execFn: func(ctx context.Context, addr string, p types.Partition, deadline time.Time) (workerclient.ExecuteResult, error) {
			called = true
			return workerclient.ExecuteResult{}, nil
		},
	}
	d := New(reg, worker, DefaultConfig())

	outcomes := d.Dispatch(context.Background(), &types.Task{ID: "t1"}, []types.Partition{{TaskID: "t1", NodeID: "c"}})
	require.Len(t, outcomes, 1)
	assert.Equal(t, types.OutcomeNoCapacity, outcomes[0].Kind)
	assert.False(t, called)
}

func TestDispatchPartialFailureIndependentPerPartition(t *testing.T) {
	reg := registry.New(registry.DefaultMaxLoadPct)
	reg.Upsert(&types.Node{ID: "a", Address: "http://a", Status: types.NodeStatusRunning, Capacity: types.NodeCapacity{CPUCores: 4}})
	reg.Upsert(&types.Node{ID: "b", Address: "http://b", Status: types.NodeStatusRunning, Capacity: types.NodeCapacity{CPUCores: 4}})

	worker := &fakeWorker{
		execFn: func(ctx context.Context, addr string, p types.Partition, deadline time.Time) (workerclient.ExecuteResult, error) {
			if p.NodeID == "b" {
				return workerclient.ExecuteResult{}, errs.New(errs.Transport, "unreachable")
			}
			return workerclient.ExecuteResult{Payload: "ok"}, nil
		},
	}
	d := New(reg, worker, DefaultConfig())

	outcomes := d.Dispatch(context.Background(), &types.Task{ID: "t1"}, []types.Partition{
		{TaskID: "t1", NodeID: "a"},
		{TaskID: "t1", NodeID: "b"},
	})

	require.Len(t, outcomes, 2)
	assert.Equal(t, types.OutcomeOK, outcomes[0].Kind)
	assert.Equal(t, types.OutcomeTransport, outcomes[1].Kind)

	na, _ := reg.Get("a")
	nb, _ := reg.Get("b")
	assert.Equal(t, float64(0), na.Load)
	assert.Equal(t, float64(0), nb.Load)
}
