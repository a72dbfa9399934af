// Package nodeprovider is the scheduler's one collaborator for fleet
// membership: where nodes come from, and how Scale(delta) turns into more
// of them. The scheduler never provisions a VM itself — it only asks
// a NodeProvider what exists and tells it what it wants.
package nodeprovider

import (
	"context"

	"github.com/fleetctl/supervm/pkg/types"
)

// Descriptor is what a provider reports about one node it knows about.
// It carries enough to seed a registry entry but no load/health — that is
// HealthMonitor's job once the node is registered.
type Descriptor struct {
	ID       string
	Label    string
	Address  string
	Role     types.NodeRole
	Capacity types.NodeCapacity
	Labels   map[string]string
}

// NodeProvider is the scheduler's view of fleet membership. Implementations
// back onto whatever actually owns VM lifecycle; SuperVM only ever calls
// through this interface.
type NodeProvider interface {
	// ListNodes returns the provider's current view of fleet membership.
	ListNodes(ctx context.Context) ([]Descriptor, error)

	// CreateNode asks the provider to bring up count additional worker
	// nodes matching template, and returns descriptors for the ones it
	// started. A provider may start fewer than count; callers must check
	// len(result) rather than assume it matches.
	CreateNode(ctx context.Context, template types.NodeCapacity, count int) ([]Descriptor, error)

	// DeleteNode asks the provider to tear down the given node.
	DeleteNode(ctx context.Context, id string) error
}

// StaticProvider is a reference NodeProvider backed by a fixed, in-memory
// node list — useful for tests and for running SuperVM against a fleet
// that's provisioned out of band (e.g. the hand-written JSON file passed to
// `supervm serve --nodes-file` describing a pre-existing fleet). CreateNode/DeleteNode mutate the in-memory list so
// Scale() has somewhere to land, but nothing external actually spins up a VM.
type StaticProvider struct {
	nodes  []Descriptor
	nextID func() string
}

// NewStaticProvider seeds a StaticProvider with an initial node list.
// nextID generates IDs for nodes created via CreateNode; callers typically
// pass uuid.NewString.
func NewStaticProvider(initial []Descriptor, nextID func() string) *StaticProvider {
	cp := make([]Descriptor, len(initial))
	copy(cp, initial)
	return &StaticProvider{nodes: cp, nextID: nextID}
}

func (p *StaticProvider) ListNodes(ctx context.Context) ([]Descriptor, error) {
	out := make([]Descriptor, len(p.nodes))
	copy(out, p.nodes)
	return out, nil
}

func (p *StaticProvider) CreateNode(ctx context.Context, template types.NodeCapacity, count int) ([]Descriptor, error) {
	created := make([]Descriptor, 0, count)
	for i := 0; i < count; i++ {
		d := Descriptor{
			ID:       p.nextID(),
			Label:    "scaled-node",
			Role:     types.NodeRoleWorker,
			Capacity: template,
		}
		p.nodes = append(p.nodes, d)
		created = append(created, d)
	}
	return created, nil
}

func (p *StaticProvider) DeleteNode(ctx context.Context, id string) error {
	for i, n := range p.nodes {
		if n.ID == id {
			p.nodes = append(p.nodes[:i], p.nodes[i+1:]...)
			return nil
		}
	}
	return nil
}
