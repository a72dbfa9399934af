// Package registry holds the NodeRegistry: the scheduler's single piece of
// mutable shared state. All mutations serialize per-registry; tryReserve and
// release are atomic with respect to each other.
package registry

import (
	"sync"
	"time"

	"github.com/fleetctl/supervm/pkg/types"
)

// ReserveRefusal is the closed set of reasons tryReserve can fail.
type ReserveRefusal string

const (
	RefusalNotRunning ReserveRefusal = "NotRunning"
	RefusalOverloaded ReserveRefusal = "Overloaded"
	RefusalUnknown    ReserveRefusal = "Unknown"
)

// DefaultMaxLoadPct is the upper bound on reserved+measured load on any node.
const DefaultMaxLoadPct = 90.0

// Registry is the canonical, concurrency-safe map of node id to node record.
type Registry struct {
	mu         sync.RWMutex
	nodes      map[string]*types.Node
	maxLoadPct float64
}

// New creates an empty Registry. maxLoadPct <= 0 uses DefaultMaxLoadPct.
func New(maxLoadPct float64) *Registry {
	if maxLoadPct <= 0 {
		maxLoadPct = DefaultMaxLoadPct
	}
	return &Registry{
		nodes:      make(map[string]*types.Node),
		maxLoadPct: maxLoadPct,
	}
}

// Upsert inserts or replaces a node record.
func (r *Registry) Upsert(node *types.Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *node
	r.nodes[node.ID] = &cp
}

// Remove deletes a node from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, id)
}

// Get returns a defensive copy of a single node.
func (r *Registry) Get(id string) (*types.Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[id]
	if !ok {
		return nil, false
	}
	cp := *n
	return &cp, true
}

// List returns a defensive copy snapshot of all known nodes.
func (r *Registry) List() []*types.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		cp := *n
		out = append(out, &cp)
	}
	return out
}

// UpdateHealth applies a HealthMonitor probe result: sets load, marks the
// node Running (a Draining node stays Draining), and refreshes last_seen.
// Called on probe success only — probe failures go through MarkUnreachable
// instead, which intentionally does not touch last_seen.
func (r *Registry) UpdateHealth(id string, load float64, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return false
	}
	n.Load = load
	if n.Status != types.NodeStatusDraining {
		n.Status = types.NodeStatusRunning
	}
	n.LastSeen = at
	return true
}

// MarkUnreachable flips a node to Unreachable without touching LastSeen.
// A Draining node keeps its Draining status.
func (r *Registry) MarkUnreachable(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return false
	}
	if n.Status == types.NodeStatusDraining {
		return true
	}
	n.Status = types.NodeStatusUnreachable
	return true
}

// SetDraining marks a node Draining, removing it from scheduling
// eligibility without treating it as failed.
func (r *Registry) SetDraining(id string, draining bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return false
	}
	if draining {
		n.Status = types.NodeStatusDraining
	} else if n.Status == types.NodeStatusDraining {
		n.Status = types.NodeStatusRunning
	}
	return true
}

// TryReserve atomically checks that the node is Running and that
// load+delta does not exceed MaxLoadPct, then applies the increment.
func (r *Registry) TryReserve(id string, deltaLoad float64) (ReserveRefusal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return RefusalUnknown, false
	}
	if n.Status != types.NodeStatusRunning {
		return RefusalNotRunning, false
	}
	if n.Load+deltaLoad > r.maxLoadPct {
		return RefusalOverloaded, false
	}
	n.Load += deltaLoad
	return "", true
}

// Release undoes a reservation. It never refuses; results below zero clamp
// to zero. Every pre-dispatch increment must be paired with exactly one
// Release.
func (r *Registry) Release(id string, deltaLoad float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return
	}
	n.Load -= deltaLoad
	if n.Load < 0 {
		n.Load = 0
	}
}

// MaxLoadPct returns the configured reservation ceiling.
func (r *Registry) MaxLoadPct() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.maxLoadPct
}
