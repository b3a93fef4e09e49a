package progress

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func TestAddEmitsStatusNotification(t *testing.T) {
	tr := New(24 * time.Hour)
	var got []Notification
	tr.RegisterProgressCallback(func(n Notification) { got = append(got, n) })

	tr.Add("t1", "mp4_remux", false, map[string]any{"recording_id": 1})
	require.Len(t, got, 1)
	require.Equal(t, ChangeStatus, got[0].Kind)
	require.Equal(t, StatusPending, got[0].Entry.Status)
}

func TestProgressNotifiesOnlyAboveThreshold(t *testing.T) {
	tr := New(24 * time.Hour)
	tr.Add("t1", "mp4_remux", false, nil)

	var notifications []Notification
	tr.RegisterProgressCallback(func(n Notification) {
		if n.Kind == ChangeProgress {
			notifications = append(notifications, n)
		}
	})

	// Ramp 0->100 in 1pp steps: spec P11 caps this at ceil(100/5)+1 = 21 messages.
	for pct := 1; pct <= 100; pct++ {
		tr.UpdateProgress("t1", pct)
	}
	require.LessOrEqual(t, len(notifications), 21)
	require.Equal(t, 100, notifications[len(notifications)-1].Entry.Progress)
}

func TestUpdateStatusMovesToCompleted(t *testing.T) {
	tr := New(24 * time.Hour)
	tr.Add("t1", "cleanup", false, nil)
	tr.UpdateStatus("t1", StatusRunning, "")
	tr.UpdateStatus("t1", StatusComplete, "")

	stats := tr.Stats()
	require.Equal(t, 0, stats.Active)
	require.Equal(t, 1, stats.Completed)

	e, ok := tr.Get("t1")
	require.True(t, ok)
	require.Equal(t, StatusComplete, e.Status)
	require.False(t, e.CompletedAt.IsZero())
}

func TestExternalEntriesTrackedSeparately(t *testing.T) {
	tr := New(24 * time.Hour)
	tr.Add("capture-1", "capture", true, nil)
	stats := tr.Stats()
	require.Equal(t, 1, stats.External)
	require.Equal(t, 0, stats.Active)
}

func TestPruneCompletedRespectsRetention(t *testing.T) {
	mock := clock.NewMock()
	Clock = mock
	defer func() { Clock = clock.New() }()

	tr := New(time.Hour)
	tr.Add("t1", "cleanup", false, nil)
	tr.UpdateStatus("t1", StatusComplete, "")

	mock.Add(30 * time.Minute)
	require.Equal(t, 0, tr.PruneCompleted())

	mock.Add(time.Hour)
	require.Equal(t, 1, tr.PruneCompleted())
	require.Equal(t, 0, tr.Stats().Completed)
}

func TestRemoveDeletesFromAnyMap(t *testing.T) {
	tr := New(24 * time.Hour)
	tr.Add("capture-1", "capture", true, nil)
	tr.Remove("capture-1")
	_, ok := tr.Get("capture-1")
	require.False(t, ok)
}
