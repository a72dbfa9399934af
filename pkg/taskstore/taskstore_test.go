package taskstore

import (
	"testing"
	"time"

	"github.com/fleetctl/supervm/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAndGet(t *testing.T) {
	s := New(time.Hour)
	s.Insert(&types.Task{ID: "t1", Kind: types.TaskKindRender, Status: types.TaskStatusPending, SubmittedAt: time.Now()})

	got, ok := s.Get("t1")
	require.True(t, ok)
	assert.Equal(t, types.TaskStatusPending, got.Status)
}

func TestUpdateStatusStampsStartedAtOnce(t *testing.T) {
	s := New(time.Hour)
	s.Insert(&types.Task{ID: "t1", SubmittedAt: time.Now()})

	s.UpdateStatus("t1", types.TaskStatusRunning)
	first, _ := s.Get("t1")
	started := first.StartedAt
	require.False(t, started.IsZero())

	time.Sleep(time.Millisecond)
	s.UpdateStatus("t1", types.TaskStatusRunning)
	second, _ := s.Get("t1")
	assert.Equal(t, started, second.StartedAt)
}

func TestSetResultNeverBothCompletedAndFailed(t *testing.T) {
	s := New(time.Hour)
	s.Insert(&types.Task{ID: "t1", SubmittedAt: time.Now()})

	s.SetResult("t1", nil, "worker exploded")
	task, _ := s.Get("t1")
	assert.Equal(t, types.TaskStatusFailed, task.Status)
	assert.NotEmpty(t, task.Error)
	assert.Nil(t, task.Result)
}

func TestListFiltersByKindAndStatus(t *testing.T) {
	s := New(time.Hour)
	s.Insert(&types.Task{ID: "r1", Kind: types.TaskKindRender, Status: types.TaskStatusPending, SubmittedAt: time.Now()})
	s.Insert(&types.Task{ID: "c1", Kind: types.TaskKindCompute, Status: types.TaskStatusPending, SubmittedAt: time.Now()})

	renders := s.List(Filter{Kind: types.TaskKindRender})
	require.Len(t, renders, 1)
	assert.Equal(t, "r1", renders[0].ID)
}

func TestSweepEvictsOnlyTerminalPastRetention(t *testing.T) {
	s := New(time.Millisecond)
	s.Insert(&types.Task{ID: "t1", SubmittedAt: time.Now()})
	s.SetResult("t1", &types.TaskResult{Success: true}, "")

	s.insertEndedAt("t1", time.Now().Add(-time.Hour))

	s.Insert(&types.Task{ID: "t2", SubmittedAt: time.Now().Add(-time.Hour)})
	s.UpdateStatus("t2", types.TaskStatusRunning)

	s.sweep()
	_, ok := s.Get("t1")
	assert.False(t, ok)
	_, ok = s.Get("t2")
	assert.True(t, ok)
}

// insertEndedAt is a test-only backdoor to simulate an old terminal task
// without sleeping past the retention window.
func (s *Store) insertEndedAt(id string, at time.Time) {
	e, ok := s.entryFor(id)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.task.EndedAt = at
}
