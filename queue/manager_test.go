package queue

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/Serph91P/StreamVault-sub001/config"
	"github.com/Serph91P/StreamVault-sub001/db"
	"github.com/Serph91P/StreamVault-sub001/progress"
)

func newTestManager(t *testing.T) (*Manager, sqlmock.Sqlmock, func()) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	gw := db.NewFromConn(conn, nil)
	tracker := progress.New(24 * time.Hour)
	m := NewManager(gw, tracker, NewRegistry(), nil, nil)
	return m, mock, func() { conn.Close() }
}

func TestEnqueueTaskRegistersWithDependencyManagerAndTracker(t *testing.T) {
	m, _, closeFn := newTestManager(t)
	defer closeFn()

	id, err := m.EnqueueTask("start_capture", PriorityHigh, Payload{Kind: KindStartCapture, StreamerID: 42})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	task, ok := m.dep.Get(id)
	require.True(t, ok)
	require.Equal(t, StatusPending, task.Status)

	_, ok = m.tracker.Get(id)
	require.True(t, ok)
}

func TestEnqueueRecordingPostProcessingBuildsChainedDAG(t *testing.T) {
	m, mock, closeFn := newTestManager(t)
	defer closeFn()

	for range postProcessSteps {
		mock.ExpectExec("INSERT INTO recording_processing_state").WillReturnResult(sqlmock.NewResult(1, 1))
	}

	rec := db.Recording{ID: 7, StreamID: 3, StreamerID: 42}
	taskIDs, err := m.EnqueueRecordingPostProcessing(rec, "alice")
	require.NoError(t, err)
	require.Len(t, taskIDs, len(postProcessSteps))
	require.NoError(t, mock.ExpectationsWereMet())

	for i, id := range taskIDs {
		task, ok := m.dep.Get(id)
		require.True(t, ok)
		require.Equal(t, postProcessSteps[i], task.Payload.Step)
		if i == 0 {
			require.Empty(t, task.Dependencies)
		} else {
			require.Equal(t, []string{taskIDs[i-1]}, task.Dependencies)
		}
	}
}

func TestEnqueueOrphanCheckThrottlesAtMaxInFlight(t *testing.T) {
	m, _, closeFn := newTestManager(t)
	defer closeFn()

	var ids []string
	for i := 0; i < config.MaxOrphanCheckTasksInFlight; i++ {
		id, err := m.EnqueueOrphanCheck(Payload{})
		require.NoError(t, err)
		require.NotEqual(t, SentinelOrphanCheckThrottled, id)
		ids = append(ids, id)
	}

	// A 4th concurrent enqueue must return the sentinel id and not register
	// any work with the dependency manager (spec.md §4.6, property P10).
	id, err := m.EnqueueOrphanCheck(Payload{})
	require.NoError(t, err)
	require.Equal(t, SentinelOrphanCheckThrottled, id)
	_, ok := m.dep.Get(id)
	require.False(t, ok)

	// Completing one in-flight check frees a slot for the next enqueue.
	m.finishTask(&Task{ID: ids[0], Payload: Payload{Kind: KindOrphanRecoveryCheck}}, nil)
	id, err = m.EnqueueOrphanCheck(Payload{})
	require.NoError(t, err)
	require.NotEqual(t, SentinelOrphanCheckThrottled, id)
}

func TestPromoteRunsReadyTaskThroughRegisteredHandler(t *testing.T) {
	m, _, closeFn := newTestManager(t)
	defer closeFn()

	done := make(chan struct{})
	m.registry.Register("noop", func(ctx context.Context, p Payload, progressFn func(int)) error {
		close(done)
		return nil
	})

	id, err := m.EnqueueTask("noop", PriorityNormal, Payload{Kind: KindStartCapture, StreamerName: "alice"})
	require.NoError(t, err)

	ctx := context.Background()
	m.promote(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was never invoked")
	}

	require.Eventually(t, func() bool {
		task, ok := m.dep.Get(id)
		return ok && task.Status == StatusComplete
	}, 2*time.Second, 10*time.Millisecond)
}
