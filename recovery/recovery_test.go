package recovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/Serph91P/StreamVault-sub001/config"
	"github.com/Serph91P/StreamVault-sub001/db"
	"github.com/Serph91P/StreamVault-sub001/progress"
	"github.com/Serph91P/StreamVault-sub001/queue"
)

func newTestManager(t *testing.T) (*Manager, sqlmock.Sqlmock, func()) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	gw := db.NewFromConn(conn, nil)
	tracker := progress.New(24 * time.Hour)
	q := queue.NewManager(gw, tracker, queue.NewRegistry(), nil, nil)
	m := NewManager(gw, tracker, q, nil, nil)

	old := config.RecordingsRoot
	config.RecordingsRoot = t.TempDir()
	return m, mock, func() { conn.Close(); config.RecordingsRoot = old }
}

func TestRecoverActiveRecordingsFinalizesAndEnqueues(t *testing.T) {
	m, mock, closeFn := newTestManager(t)
	defer closeFn()

	rawPath := filepath.Join(config.RecordingsRoot, "alice.ts")
	require.NoError(t, os.WriteFile(rawPath, []byte("data"), 0o644))

	mock.ExpectQuery("SELECT recording_id, streamer_id, process_id, output_path, started_at, last_heartbeat").
		WillReturnRows(sqlmock.NewRows([]string{"recording_id", "streamer_id", "process_id", "output_path", "started_at", "last_heartbeat"}).
			AddRow(int64(7), int64(42), "proc_alice", rawPath, time.Now(), time.Now()))

	mock.ExpectQuery("SELECT id, stream_id, streamer_id, episode_number, status, raw_path, final_path").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "stream_id", "streamer_id", "episode_number", "status", "raw_path", "final_path",
			"failure_reason", "duration_seconds", "file_size_bytes", "created_at", "updated_at"}).
			AddRow(7, 3, 42, 1, db.RecordingStatusRecording, rawPath, "", "", 0.0, int64(0), time.Now(), time.Now()))

	mock.ExpectExec("UPDATE recordings SET status = \\$1, updated_at").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE recordings SET status = \\$1, duration_seconds").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM active_recording_state").WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery("SELECT id, username, twitch_id, display_name, created_at FROM streamers").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "twitch_id", "display_name", "created_at"}).
			AddRow(42, "alice", "t1", "Alice", time.Now()))

	for i := 0; i < 6; i++ {
		mock.ExpectExec("INSERT INTO recording_processing_state").WillReturnResult(sqlmock.NewResult(1, 1))
	}

	require.NoError(t, m.recoverActiveRecordings(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResumeIncompleteProcessingSkipsFullyTerminalDAG(t *testing.T) {
	m, mock, closeFn := newTestManager(t)
	defer closeFn()

	mock.ExpectQuery("SELECT id, stream_id, streamer_id, episode_number, status, raw_path, final_path").
		WillReturnRows(sqlmock.NewRows([]string{"id", "stream_id", "streamer_id", "episode_number", "status", "raw_path", "final_path",
			"failure_reason", "duration_seconds", "file_size_bytes", "created_at", "updated_at"}).
			AddRow(11, 4, 2, 1, db.RecordingStatusProcessing, "x.ts", "x.mp4", "", 0.0, int64(0), time.Now(), time.Now()))

	mock.ExpectQuery("SELECT recording_id, step, status, task_id, updated_at FROM recording_processing_state").
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"recording_id", "step", "status", "task_id", "updated_at"}).
			AddRow(11, "concat", db.StepCompleted, "t1", time.Now()).
			AddRow(11, "cleanup", db.StepSkipped, "", time.Now()))

	require.NoError(t, m.resumeIncompleteProcessing(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResumeIncompleteProcessingReenqueuesWhenStepsUnfinished(t *testing.T) {
	m, mock, closeFn := newTestManager(t)
	defer closeFn()

	mock.ExpectQuery("SELECT id, stream_id, streamer_id, episode_number, status, raw_path, final_path").
		WillReturnRows(sqlmock.NewRows([]string{"id", "stream_id", "streamer_id", "episode_number", "status", "raw_path", "final_path",
			"failure_reason", "duration_seconds", "file_size_bytes", "created_at", "updated_at"}).
			AddRow(12, 4, 2, 1, db.RecordingStatusProcessing, "x.ts", "", "", 0.0, int64(0), time.Now(), time.Now()))

	mock.ExpectQuery("SELECT recording_id, step, status, task_id, updated_at FROM recording_processing_state").
		WithArgs(int64(12)).
		WillReturnRows(sqlmock.NewRows([]string{"recording_id", "step", "status", "task_id", "updated_at"}).
			AddRow(12, "concat", db.StepCompleted, "t1", time.Now()).
			AddRow(12, "remux", db.StepRunning, "t2", time.Now()))

	mock.ExpectQuery("SELECT id, username, twitch_id, display_name, created_at FROM streamers").
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "twitch_id", "display_name", "created_at"}).
			AddRow(2, "bob", "t2", "Bob", time.Now()))

	for i := 0; i < 6; i++ {
		mock.ExpectExec("INSERT INTO recording_processing_state").WillReturnResult(sqlmock.NewResult(1, 1))
	}

	require.NoError(t, m.resumeIncompleteProcessing(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecoverActiveRecordingsMarksFailedWhenOutputMissing(t *testing.T) {
	m, mock, closeFn := newTestManager(t)
	defer closeFn()

	mock.ExpectQuery("SELECT recording_id, streamer_id, process_id, output_path, started_at, last_heartbeat").
		WillReturnRows(sqlmock.NewRows([]string{"recording_id", "streamer_id", "process_id", "output_path", "started_at", "last_heartbeat"}).
			AddRow(int64(9), int64(1), "proc_bob", filepath.Join(config.RecordingsRoot, "missing.ts"), time.Now(), time.Now()))

	mock.ExpectQuery("SELECT id, stream_id, streamer_id, episode_number, status, raw_path, final_path").
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "stream_id", "streamer_id", "episode_number", "status", "raw_path", "final_path",
			"failure_reason", "duration_seconds", "file_size_bytes", "created_at", "updated_at"}).
			AddRow(9, 5, 1, 2, db.RecordingStatusRecording, "missing.ts", "", "", 0.0, int64(0), time.Now(), time.Now()))

	mock.ExpectExec("UPDATE recordings SET status = \\$1, failure_reason").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM active_recording_state").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, m.recoverActiveRecordings(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
