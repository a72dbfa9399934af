package resourcepool

import (
	"testing"

	"github.com/fleetctl/supervm/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestFromExcludesUnhealthyNodes(t *testing.T) {
	nodes := []*types.Node{
		{Status: types.NodeStatusRunning, Capacity: types.NodeCapacity{CPUCores: 4, MemoryMB: 1000, GPUCount: 1}, Load: 0},
		{Status: types.NodeStatusUnreachable, Capacity: types.NodeCapacity{CPUCores: 8, MemoryMB: 1000}, Load: 0},
		{Status: types.NodeStatusDraining, Capacity: types.NodeCapacity{CPUCores: 8, MemoryMB: 1000}, Load: 0},
	}

	snap := From(nodes)

	assert.Equal(t, 4, snap.TotalCPU)
	assert.Equal(t, 1000, snap.TotalMemoryMB)
	assert.Equal(t, 1, snap.TotalGPU)
	assert.Equal(t, 1, snap.HealthyNodes)
	assert.Equal(t, 3, snap.TotalNodes)
	assert.Equal(t, float64(4), snap.AvailableCPU)
}

func TestFromNeverExceedsCapacity(t *testing.T) {
	nodes := []*types.Node{
		{Status: types.NodeStatusRunning, Capacity: types.NodeCapacity{CPUCores: 4}, Load: 50},
	}

	snap := From(nodes)

	assert.Equal(t, float64(2), snap.AvailableCPU)
	assert.LessOrEqual(t, snap.AvailableCPU, float64(snap.TotalCPU))
}

func TestFromEmpty(t *testing.T) {
	snap := From(nil)
	assert.Equal(t, 0, snap.TotalNodes)
	assert.Equal(t, float64(0), snap.UtilizationPct)
}
