package recording

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestTickFinalizesWhenCaptureNoLongerActive(t *testing.T) {
	m, sup, mock, closeFn := newTestLifecycleManager(t)
	defer closeFn()
	expectStartRecording(mock, 3, 42)
	rec, err := m.StartRecording(context.Background(), 3)
	require.NoError(t, err)

	sup.Terminate("proc_alice") // simulate the child exiting on its own

	mock.ExpectExec("DELETE FROM active_recording_state").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE recordings SET status = \\$1, updated_at").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE recordings SET status = \\$1, duration_seconds").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id, stream_id, streamer_id, episode_number, status, raw_path, final_path").
		WillReturnRows(sqlmock.NewRows([]string{"id", "stream_id", "streamer_id", "episode_number", "status", "raw_path", "final_path",
			"failure_reason", "duration_seconds", "file_size_bytes", "created_at", "updated_at"}).
			AddRow(rec.ID, 3, 42, 1, "processing", rec.RawPath, "", "", 0.0, int64(0), time.Now(), time.Now()))
	for i := 0; i < 6; i++ {
		mock.ExpectExec("INSERT INTO recording_processing_state").WillReturnResult(sqlmock.NewResult(1, 1))
	}

	m.mu.Lock()
	cp := m.active[rec.ID]
	m.mu.Unlock()

	done := m.tick(rec.ID, cp)
	require.True(t, done)

	require.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, 2*time.Second, 10*time.Millisecond)

	m.mu.Lock()
	_, stillActive := m.active[rec.ID]
	m.mu.Unlock()
	require.False(t, stillActive)
}
