package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/Serph91P/StreamVault-sub001/progress"
)

func withMockClock(t *testing.T) *clock.Mock {
	t.Helper()
	real := progress.Clock
	mock := clock.NewMock()
	mock.Set(time.Now())
	progress.Clock = mock
	t.Cleanup(func() { progress.Clock = real })
	return mock
}

func TestReapOnceCompletesStuckCapture(t *testing.T) {
	m, _, closeFn := newTestManager(t)
	defer closeFn()
	mock := withMockClock(t)

	m.tracker.Add("proc_alice", "capture", true, map[string]any{"recording_id": int64(7)})
	m.tracker.UpdateStatus("proc_alice", progress.StatusRunning, "")
	m.tracker.UpdateProgress("proc_alice", 100)

	mock.Add(10 * time.Minute)
	m.reapOnce(context.Background())

	e, ok := m.tracker.Get("proc_alice")
	require.True(t, ok)
	require.Equal(t, progress.StatusComplete, e.Status)
}

func TestReapOnceFailsOrphanCheckTaskPastMaxAge(t *testing.T) {
	m, _, closeFn := newTestManager(t)
	defer closeFn()
	mock := withMockClock(t)

	m.tracker.Add("task1", "orphan_recovery_check", false, nil)
	m.tracker.UpdateStatus("task1", progress.StatusRunning, "")

	mock.Add(5 * time.Minute)
	m.reapOnce(context.Background())

	_, ok := m.tracker.Get("task1")
	require.False(t, ok)
}

func TestReapOnceFailsStuckQueueTask(t *testing.T) {
	m, _, closeFn := newTestManager(t)
	defer closeFn()
	mock := withMockClock(t)

	m.tracker.Add("task2", "postprocess_step", false, nil)
	m.tracker.UpdateStatus("task2", progress.StatusRunning, "")

	mock.Add(15 * time.Minute)
	m.reapOnce(context.Background())

	_, ok := m.tracker.Get("task2")
	require.False(t, ok)
}

func TestReapOnceLeavesFreshTasksAlone(t *testing.T) {
	m, _, closeFn := newTestManager(t)
	defer closeFn()
	withMockClock(t)

	m.tracker.Add("task3", "postprocess_step", false, nil)
	m.tracker.UpdateStatus("task3", progress.StatusRunning, "")

	m.reapOnce(context.Background())

	e, ok := m.tracker.Get("task3")
	require.True(t, ok)
	require.Equal(t, progress.StatusRunning, e.Status)
}

func TestForceReapAndDumpTaskState(t *testing.T) {
	m, mock, closeFn := newTestManager(t)
	defer closeFn()

	m.tracker.Add("task4", "postprocess_step", false, nil)
	require.Len(t, m.DumpTaskState(), 1)

	m.ForceReap(context.Background())
	require.NoError(t, mock.ExpectationsWereMet())
}
