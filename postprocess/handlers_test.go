package postprocess

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/Serph91P/StreamVault-sub001/db"
)

func TestRunStepSkipsWhenAlreadyCompleted(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	gw := db.NewFromConn(conn, nil)
	h := NewHandlers(gw, nil, nil)

	rows := sqlmock.NewRows([]string{"recording_id", "step", "status", "task_id", "updated_at"}).
		AddRow(int64(1), StepCleanup, db.StepCompleted, "", time.Now())
	mock.ExpectQuery("SELECT recording_id, step, status, task_id, updated_at FROM recording_processing_state").
		WithArgs(int64(1), StepCleanup).
		WillReturnRows(rows)

	err = h.RunStep(context.Background(), 1, StepCleanup)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStepRejectsUnknownStep(t *testing.T) {
	conn, _, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	gw := db.NewFromConn(conn, nil)
	h := NewHandlers(gw, nil, nil)

	err = h.RunStep(context.Background(), 1, "not-a-real-step")
	require.Error(t, err)
}
