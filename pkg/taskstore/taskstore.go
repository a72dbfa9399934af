// Package taskstore is the scheduler's in-memory journal of submitted
// tasks: status, timing, and result/error, with a background sweeper that
// evicts terminal tasks past a retention window.
package taskstore

import (
	"sort"
	"sync"
	"time"

	"github.com/fleetctl/supervm/pkg/log"
	"github.com/fleetctl/supervm/pkg/metrics"
	"github.com/fleetctl/supervm/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultRetention is how long a terminal task stays in the store before
// the sweeper evicts it.
const DefaultRetention = time.Hour

// DefaultSweepInterval is how often the sweeper checks for eviction.
const DefaultSweepInterval = time.Minute

// Summary is the snapshot list() returns: enough for the Tasks API listing
// endpoint without leaking large result payloads.
type Summary struct {
	ID          string
	Kind        types.TaskKind
	Status      types.TaskStatus
	SubmittedAt time.Time
	StartedAt   time.Time
	EndedAt     time.Time
	Elapsed     time.Duration
}

// Filter narrows list() to tasks matching the given fields. A zero value
// for a field means "don't filter on this".
type Filter struct {
	Kind   types.TaskKind
	Status types.TaskStatus
}

// Store is the task journal. A single writer per task id is guaranteed by
// locking per-entry; list()/get() read under the entry's own lock only.
type Store struct {
	mu        sync.RWMutex
	tasks     map[string]*entry
	retention time.Duration
	logger    zerolog.Logger
	stopCh    chan struct{}
	stopOnce  sync.Once
}

type entry struct {
	mu   sync.Mutex
	task *types.Task
}

// New creates a Store. retention <= 0 uses DefaultRetention.
func New(retention time.Duration) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{
		tasks:     make(map[string]*entry),
		retention: retention,
		logger:    log.WithComponent("taskstore"),
		stopCh:    make(chan struct{}),
	}
}

// Insert records a new task in Pending status.
func (s *Store) Insert(task *types.Task) {
	cp := *task
	cp.Status = types.TaskStatusPending
	e := &entry{task: &cp}

	s.mu.Lock()
	s.tasks[task.ID] = e
	s.mu.Unlock()

	metrics.TasksSubmitted.WithLabelValues(string(task.Kind)).Inc()
}

// UpdateStatus transitions a task's status, and StartedAt on the first
// transition into Running.
func (s *Store) UpdateStatus(id string, status types.TaskStatus) bool {
	e, ok := s.entryFor(id)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if status == types.TaskStatusRunning && e.task.StartedAt.IsZero() {
		e.task.StartedAt = time.Now()
	}
	e.task.Status = status
	return true
}

// SetResult records a terminal outcome: either result (success) or errMsg
// (failure), never both, and stamps EndedAt.
func (s *Store) SetResult(id string, result *types.TaskResult, errMsg string) bool {
	e, ok := s.entryFor(id)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.task.EndedAt = time.Now()
	if errMsg != "" {
		e.task.Status = types.TaskStatusFailed
		e.task.Error = errMsg
	} else {
		e.task.Status = types.TaskStatusCompleted
		e.task.Result = result
	}

	elapsed := e.task.EndedAt.Sub(e.task.SubmittedAt)
	outcome := "success"
	if errMsg != "" {
		outcome = "failure"
	}
	metrics.TaskOutcome.WithLabelValues(string(e.task.Kind), outcome).Inc()
	metrics.TaskLatency.WithLabelValues(string(e.task.Kind)).Observe(elapsed.Seconds())
	return true
}

// Get returns a defensive copy of one task.
func (s *Store) Get(id string) (*types.Task, bool) {
	e, ok := s.entryFor(id)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := *e.task
	return &cp, true
}

// List returns summaries matching filter, newest submitted first.
func (s *Store) List(filter Filter) []Summary {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.tasks))
	for _, e := range s.tasks {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]Summary, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		t := *e.task
		e.mu.Unlock()

		if filter.Kind != "" && t.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}

		var elapsed time.Duration
		if !t.StartedAt.IsZero() {
			end := t.EndedAt
			if end.IsZero() {
				end = time.Now()
			}
			elapsed = end.Sub(t.StartedAt)
		}

		out = append(out, Summary{
			ID:          t.ID,
			Kind:        t.Kind,
			Status:      t.Status,
			SubmittedAt: t.SubmittedAt,
			StartedAt:   t.StartedAt,
			EndedAt:     t.EndedAt,
			Elapsed:     elapsed,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out
}

func (s *Store) entryFor(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.tasks[id]
	return e, ok
}

// Start begins the background eviction sweeper.
func (s *Store) Start() {
	go s.run()
}

// Stop halts the sweeper. Safe to call multiple times.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Store) run() {
	ticker := time.NewTicker(DefaultSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Store) sweep() {
	cutoff := time.Now().Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.tasks {
		e.mu.Lock()
		terminal := e.task.Status == types.TaskStatusCompleted || e.task.Status == types.TaskStatusFailed || e.task.Status == types.TaskStatusCancelled
		endedAt := e.task.EndedAt
		e.mu.Unlock()

		if terminal && !endedAt.IsZero() && endedAt.Before(cutoff) {
			delete(s.tasks, id)
			s.logger.Debug().Str("task_id", id).Msg("evicted terminal task past retention")
		}
	}
}
