// Package healthmonitor runs the periodic sweep that keeps NodeRegistry's
// view of node health current: one concurrent probe per node, status
// transitions on success/failure (a failed probe makes the node Unreachable,
// and so ineligible, at once), and a grace window after which a
// persistently-unreachable node is removed from the registry.
package healthmonitor

import (
	"context"
	"sync"
	"time"

	"github.com/fleetctl/supervm/pkg/events"
	"github.com/fleetctl/supervm/pkg/log"
	"github.com/fleetctl/supervm/pkg/metrics"
	"github.com/fleetctl/supervm/pkg/registry"
	"github.com/fleetctl/supervm/pkg/workerclient"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// DefaultSweepInterval is the cadence of the health sweep.
	DefaultSweepInterval = 30 * time.Second

	// DefaultProbeTimeout bounds a single node's Health call.
	DefaultProbeTimeout = 5 * time.Second

	// DefaultGraceMultiple is how many missed sweeps a node tolerates
	// before it is treated as persistently unreachable (5 x interval).
	DefaultGraceMultiple = 5
)

// Config tunes one Monitor instance.
type Config struct {
	SweepInterval time.Duration
	ProbeTimeout  time.Duration
	GraceMultiple int
	// ProbeRate bounds probes issued per second across the whole fleet,
	// protecting a large fleet's network from a thundering herd of
	// simultaneous health checks on every tick.
	ProbeRate  float64
	ProbeBurst int
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{
		SweepInterval: DefaultSweepInterval,
		ProbeTimeout:  DefaultProbeTimeout,
		GraceMultiple: DefaultGraceMultiple,
		ProbeRate:     50,
		ProbeBurst:    50,
	}
}

// Monitor runs the health sweep loop against a registry.
type Monitor struct {
	registry *registry.Registry
	worker   workerclient.WorkerClient
	broker   *events.Broker
	cfg      Config
	limiter  *rate.Limiter
	logger   zerolog.Logger

	mu           sync.Mutex
	missedSweeps map[string]int
	wasUnhealthy map[string]bool
	stopCh       chan struct{}
	stopOnce     sync.Once
}

// New builds a Monitor. cfg zero fields fall back to DefaultConfig values.
// broker may be nil, in which case node transitions are not published.
func New(reg *registry.Registry, worker workerclient.WorkerClient, broker *events.Broker, cfg Config) *Monitor {
	def := DefaultConfig()
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}
	if cfg.GraceMultiple <= 0 {
		cfg.GraceMultiple = def.GraceMultiple
	}
	if cfg.ProbeRate <= 0 {
		cfg.ProbeRate = def.ProbeRate
	}
	if cfg.ProbeBurst <= 0 {
		cfg.ProbeBurst = def.ProbeBurst
	}
	return &Monitor{
		registry:     reg,
		worker:       worker,
		broker:       broker,
		cfg:          cfg,
		limiter:      rate.NewLimiter(rate.Limit(cfg.ProbeRate), cfg.ProbeBurst),
		logger:       log.WithComponent("healthmonitor"),
		missedSweeps: make(map[string]int),
		wasUnhealthy: make(map[string]bool),
		stopCh:       make(chan struct{}),
	}
}

func (m *Monitor) publish(typ events.EventType, nodeID, msg string) {
	if m.broker == nil {
		return
	}
	m.broker.Publish(&events.Event{Type: typ, Message: msg, Metadata: map[string]string{"node_id": nodeID}})
}

// Start begins the background sweep loop.
func (m *Monitor) Start() {
	go m.run()
}

// Stop halts the sweep loop. Safe to call multiple times.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Monitor) run() {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopCh:
			return
		}
	}
}

// sweep fans one probe per node out as an independent goroutine; no probe
// blocks another.
func (m *Monitor) sweep() {
	nodes := m.registry.List()

	var wg sync.WaitGroup
	for _, n := range nodes {
		n := n
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.probe(n.ID, n.Address)
		}()
	}
	wg.Wait()
}

func (m *Monitor) probe(id, addr string) {
	ctx := context.Background()
	if err := m.limiter.Wait(ctx); err != nil {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	load, ok, err := m.worker.Health(probeCtx, addr, m.cfg.ProbeTimeout)
	if err != nil || !ok {
		metrics.HealthProbesTotal.WithLabelValues("failure").Inc()
		m.recordMiss(id)
		return
	}

	metrics.HealthProbesTotal.WithLabelValues("success").Inc()
	m.noteSuccess(id)
	m.registry.UpdateHealth(id, load, time.Now())
	metrics.NodeLoad.WithLabelValues(id).Set(load)
}

// noteSuccess publishes Joined on a successful probe of a node this Monitor
// has no earlier probe record for, and Recovered when a node whose last
// recorded probe failed comes back (including a node whose very first
// probes failed).
func (m *Monitor) noteSuccess(id string) {
	m.mu.Lock()
	wasDown, seen := m.wasUnhealthy[id]
	delete(m.missedSweeps, id)
	m.wasUnhealthy[id] = false
	m.mu.Unlock()

	switch {
	case !seen:
		m.publish(events.EventNodeJoined, id, "node joined")
	case wasDown:
		m.publish(events.EventNodeRecovered, id, "node recovered")
	}
}

// recordMiss flips the node Unreachable on every failed probe — a single
// miss never evicts it, it just stops being schedulable (Eligible requires
// Running). Only once misses reach GraceMultiple consecutive sweeps is the
// node actually dropped from the registry.
func (m *Monitor) recordMiss(id string) {
	m.mu.Lock()
	m.missedSweeps[id]++
	misses := m.missedSweeps[id]
	m.mu.Unlock()

	if misses >= m.cfg.GraceMultiple {
		m.logger.Warn().Str("node_id", id).Int("missed_sweeps", misses).Msg("node persistently unreachable past grace window, removing")
		m.registry.Remove(id)
		m.mu.Lock()
		delete(m.missedSweeps, id)
		delete(m.wasUnhealthy, id)
		m.mu.Unlock()
		m.publish(events.EventNodeRemoved, id, "node removed past grace window")
		return
	}

	m.mu.Lock()
	alreadyDown := m.wasUnhealthy[id]
	m.wasUnhealthy[id] = true
	m.mu.Unlock()

	m.registry.MarkUnreachable(id)
	if !alreadyDown {
		m.publish(events.EventNodeUnreachable, id, "node unreachable")
	}
}
