package registry

import (
	"testing"
	"time"

	"github.com/fleetctl/supervm/pkg/types"
	"github.com/stretchr/testify/assert"
)

func newTestNode(id string, status types.NodeStatus, load float64) *types.Node {
	return &types.Node{
		ID:       id,
		Status:   status,
		Load:     load,
		Capacity: types.NodeCapacity{CPUCores: 4, MemoryMB: 4096},
	}
}

func TestTryReserve(t *testing.T) {
	tests := []struct {
		name        string
		node        *types.Node
		delta       float64
		wantOK      bool
		wantRefusal ReserveRefusal
	}{
		{
			name:   "reserve within bound",
			node:   newTestNode("n1", types.NodeStatusRunning, 50),
			delta:  20,
			wantOK: true,
		},
		{
			name:        "reserve exceeds bound",
			node:        newTestNode("n1", types.NodeStatusRunning, 85),
			delta:       20,
			wantOK:      false,
			wantRefusal: RefusalOverloaded,
		},
		{
			name:        "node not running",
			node:        newTestNode("n1", types.NodeStatusUnreachable, 0),
			delta:       20,
			wantOK:      false,
			wantRefusal: RefusalNotRunning,
		},
		{
			name:   "reserve exactly at bound",
			node:   newTestNode("n1", types.NodeStatusRunning, 70),
			delta:  20,
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := New(DefaultMaxLoadPct)
			reg.Upsert(tt.node)

			refusal, ok := reg.TryReserve(tt.node.ID, tt.delta)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				assert.Equal(t, tt.wantRefusal, refusal)
			}
		})
	}
}

func TestTryReserveUnknownNode(t *testing.T) {
	reg := New(DefaultMaxLoadPct)
	refusal, ok := reg.TryReserve("missing", 10)
	assert.False(t, ok)
	assert.Equal(t, RefusalUnknown, refusal)
}

func TestReleaseClampsToZero(t *testing.T) {
	reg := New(DefaultMaxLoadPct)
	reg.Upsert(newTestNode("n1", types.NodeStatusRunning, 10))

	reg.Release("n1", 50)

	n, ok := reg.Get("n1")
	assert.True(t, ok)
	assert.Equal(t, float64(0), n.Load)
}

func TestReservationsArePaired(t *testing.T) {
	reg := New(DefaultMaxLoadPct)
	reg.Upsert(newTestNode("n1", types.NodeStatusRunning, 0))

	_, ok := reg.TryReserve("n1", 20)
	assert.True(t, ok)

	n, _ := reg.Get("n1")
	assert.Equal(t, float64(20), n.Load)

	reg.Release("n1", 20)

	n, _ = reg.Get("n1")
	assert.Equal(t, float64(0), n.Load)
}

func TestListReturnsDefensiveCopy(t *testing.T) {
	reg := New(DefaultMaxLoadPct)
	reg.Upsert(newTestNode("n1", types.NodeStatusRunning, 0))

	snapshot := reg.List()
	snapshot[0].Load = 99

	n, _ := reg.Get("n1")
	assert.Equal(t, float64(0), n.Load)
}

func TestUpdateHealthRefreshesLastSeen(t *testing.T) {
	reg := New(DefaultMaxLoadPct)
	reg.Upsert(newTestNode("n1", types.NodeStatusPending, 0))

	now := time.Now()
	ok := reg.UpdateHealth("n1", 42, now)
	assert.True(t, ok)

	n, _ := reg.Get("n1")
	assert.Equal(t, types.NodeStatusRunning, n.Status)
	assert.Equal(t, float64(42), n.Load)
	assert.WithinDuration(t, now, n.LastSeen, time.Millisecond)
}

func TestMarkUnreachableDoesNotTouchLastSeen(t *testing.T) {
	reg := New(DefaultMaxLoadPct)
	n := newTestNode("n1", types.NodeStatusRunning, 10)
	seen := time.Now().Add(-time.Minute)
	n.LastSeen = seen
	reg.Upsert(n)

	ok := reg.MarkUnreachable("n1")
	assert.True(t, ok)

	got, _ := reg.Get("n1")
	assert.Equal(t, types.NodeStatusUnreachable, got.Status)
	assert.Equal(t, seen, got.LastSeen)
}

func TestSetDrainingExcludesFromEligibility(t *testing.T) {
	reg := New(DefaultMaxLoadPct)
	reg.Upsert(newTestNode("n1", types.NodeStatusRunning, 0))

	reg.SetDraining("n1", true)
	n, _ := reg.Get("n1")
	assert.Equal(t, types.NodeStatusDraining, n.Status)
	assert.False(t, n.Eligible(types.ResourceRequirement{}, DefaultMaxLoadPct))

	reg.SetDraining("n1", false)
	n, _ = reg.Get("n1")
	assert.Equal(t, types.NodeStatusRunning, n.Status)
}
