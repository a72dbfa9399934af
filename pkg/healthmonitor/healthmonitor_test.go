package healthmonitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fleetctl/supervm/pkg/registry"
	"github.com/fleetctl/supervm/pkg/types"
	"github.com/fleetctl/supervm/pkg/workerclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHealthWorker struct {
	mu      sync.Mutex
	healthy map[string]bool
	load    float64
}

func (f *fakeHealthWorker) ExecuteTask(ctx context.Context, addr string, p types.Partition, deadline time.Time) (workerclient.ExecuteResult, error) {
	return workerclient.ExecuteResult{}, nil
}

func (f *fakeHealthWorker) Health(ctx context.Context, addr string, timeout time.Duration) (float64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load, f.healthy[addr], nil
}

func TestSweepMarksSuccessfulProbeRunning(t *testing.T) {
	reg := registry.New(registry.DefaultMaxLoadPct)
	reg.Upsert(&types.Node{ID: "a", Address: "a", Status: types.NodeStatusPending})

	worker := &fakeHealthWorker{healthy: map[string]bool{"a": true}, load: 33}
	m := New(reg, worker, nil, Config{SweepInterval: time.Hour, GraceMultiple: 5})

	m.sweep()

	n, ok := reg.Get("a")
	require.True(t, ok)
	assert.Equal(t, types.NodeStatusRunning, n.Status)
	assert.Equal(t, float64(33), n.Load)
}

func TestSweepMarksFailedProbeUnreachableWithoutRemoving(t *testing.T) {
	reg := registry.New(registry.DefaultMaxLoadPct)
	reg.Upsert(&types.Node{ID: "a", Address: "a", Status: types.NodeStatusRunning})

	worker := &fakeHealthWorker{healthy: map[string]bool{}}
	m := New(reg, worker, nil, Config{SweepInterval: time.Hour, GraceMultiple: 5})

	m.sweep()

	n, ok := reg.Get("a")
	require.True(t, ok)
	assert.Equal(t, types.NodeStatusUnreachable, n.Status)
}

func TestPersistentFailurePastGraceWindowRemovesNode(t *testing.T) {
	reg := registry.New(registry.DefaultMaxLoadPct)
	reg.Upsert(&types.Node{ID: "a", Address: "a", Status: types.NodeStatusRunning})

	worker := &fakeHealthWorker{healthy: map[string]bool{}}
	m := New(reg, worker, nil, Config{SweepInterval: time.Hour, GraceMultiple: 2})

	m.sweep()
	_, ok := reg.Get("a")
	require.True(t, ok)

	m.sweep()
	_, ok = reg.Get("a")
	assert.False(t, ok)
}
