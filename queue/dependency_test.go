package queue

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Serph91P/StreamVault-sub001/modelerrors"
)

func TestAddTaskRejectsForwardReference(t *testing.T) {
	d := NewDependencyManager()
	err := d.AddTask(&Task{ID: "t1", Dependencies: []string{"missing"}})
	require.Error(t, err)
}

func TestGetReadyTasksPromotesOnlyWhenDepsComplete(t *testing.T) {
	d := NewDependencyManager()
	require.NoError(t, d.AddTask(&Task{ID: "a", Priority: PriorityNormal}))
	require.NoError(t, d.AddTask(&Task{ID: "b", Priority: PriorityNormal, Dependencies: []string{"a"}}))

	ready := d.GetReadyTasks()
	require.Len(t, ready, 1)
	require.Equal(t, "a", ready[0].ID)

	// b is not ready until a completes.
	require.Empty(t, d.GetReadyTasks())

	d.MarkRunning("a")
	d.MarkCompleted("a")
	ready = d.GetReadyTasks()
	require.Len(t, ready, 1)
	require.Equal(t, "b", ready[0].ID)
}

func TestGetReadyTasksOrdersByPriorityThenCreatedAt(t *testing.T) {
	d := NewDependencyManager()
	require.NoError(t, d.AddTask(&Task{ID: "low", Priority: PriorityLow}))
	require.NoError(t, d.AddTask(&Task{ID: "critical", Priority: PriorityCritical}))
	require.NoError(t, d.AddTask(&Task{ID: "normal", Priority: PriorityNormal}))

	ready := d.GetReadyTasks()
	require.Equal(t, []string{"critical", "normal", "low"}, []string{ready[0].ID, ready[1].ID, ready[2].ID})
}

func TestMarkFailedRetriesBeforeGivingUp(t *testing.T) {
	d := NewDependencyManager()
	require.NoError(t, d.AddTask(&Task{ID: "a", MaxRetries: 3}))

	terminal, _ := d.MarkFailed("a", "boom")
	require.False(t, terminal)
	task, ok := d.Get("a")
	require.True(t, ok)
	require.Equal(t, StatusPending, task.Status)

	d.MarkFailed("a", "boom")
	terminal, propagated := d.MarkFailed("a", "boom")
	require.True(t, terminal)
	require.Empty(t, propagated)

	task, _ = d.Get("a")
	require.Equal(t, StatusFailed, task.Status)
}

func TestMarkFailedPropagatesToDependentsWithDependenciesFailedMessage(t *testing.T) {
	d := NewDependencyManager()
	require.NoError(t, d.AddTask(&Task{ID: "metadata", MaxRetries: 1}))
	require.NoError(t, d.AddTask(&Task{ID: "remux", Dependencies: []string{"metadata"}}))
	require.NoError(t, d.AddTask(&Task{ID: "validate", Dependencies: []string{"remux"}}))

	terminal, propagated := d.MarkFailed("metadata", "ffmpeg exited 1")
	require.True(t, terminal)
	require.ElementsMatch(t, []string{"remux", "validate"}, propagated)

	remux, _ := d.Get("remux")
	require.Equal(t, StatusFailed, remux.Status)
	require.Equal(t, modelerrors.DependenciesFailedError([]string{"metadata"}).Error(), remux.ErrorMsg)

	validate, _ := d.Get("validate")
	require.Equal(t, StatusFailed, validate.Status)
}

func TestRetryFailedResetsTaskToPending(t *testing.T) {
	d := NewDependencyManager()
	require.NoError(t, d.AddTask(&Task{ID: "a", MaxRetries: 1}))
	d.MarkFailed("a", "boom")

	require.True(t, d.RetryFailed("a"))
	task, _ := d.Get("a")
	require.Equal(t, StatusPending, task.Status)
	require.Equal(t, 0, task.RetryCount)
}

func TestCancelPropagatesToDependents(t *testing.T) {
	d := NewDependencyManager()
	require.NoError(t, d.AddTask(&Task{ID: "a"}))
	require.NoError(t, d.AddTask(&Task{ID: "b", Dependencies: []string{"a"}}))

	affected := d.Cancel("a")
	require.Equal(t, []string{"b"}, affected)

	a, _ := d.Get("a")
	b, _ := d.Get("b")
	require.Equal(t, StatusCancelled, a.Status)
	require.Equal(t, StatusCancelled, b.Status)
}
