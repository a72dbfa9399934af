// Package resourcepool derives a read-only aggregate view of total and
// available capacity across healthy nodes. It never
// mutates the registry; it only summarizes a snapshot of it.
package resourcepool

import "github.com/fleetctl/supervm/pkg/types"

// Snapshot is the aggregate resource picture at one point in time.
type Snapshot struct {
	TotalCPU       int     `json:"totalCpu"`
	TotalMemoryMB  int     `json:"totalMemoryMb"`
	TotalGPU       int     `json:"totalGpu"`
	AvailableCPU   float64 `json:"availableCpu"`
	HealthyNodes   int     `json:"healthyNodes"`
	TotalNodes     int     `json:"totalNodes"`
	UtilizationPct float64 `json:"utilizationPct"`
}

// From computes a Snapshot over a registry list() snapshot. Only Running
// nodes contribute to totals, so ResourcePool never reports more available
// capacity than the sum over Running nodes.
func From(nodes []*types.Node) Snapshot {
	var s Snapshot
	s.TotalNodes = len(nodes)

	for _, n := range nodes {
		if n.Status != types.NodeStatusRunning {
			continue
		}
		s.HealthyNodes++
		s.TotalCPU += n.Capacity.CPUCores
		s.TotalMemoryMB += n.Capacity.MemoryMB
		s.TotalGPU += n.Capacity.GPUCount
		s.AvailableCPU += n.AvailableCPU()
	}

	if s.TotalCPU > 0 {
		used := float64(s.TotalCPU) - s.AvailableCPU
		s.UtilizationPct = (used / float64(s.TotalCPU)) * 100
	}

	return s
}
