package cleanup

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/Serph91P/StreamVault-sub001/db"
)

func TestDeleteExpiredSessionsReportsRowCount(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	gw := db.NewFromConn(conn, nil)

	mock.ExpectExec("DELETE FROM sessions WHERE expires_at").WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := gw.DeleteExpiredSessions(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteExpiredShareTokensReportsRowCount(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	gw := db.NewFromConn(conn, nil)

	mock.ExpectExec("DELETE FROM share_tokens WHERE expires_at").WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := gw.DeleteExpiredShareTokens(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewSupervisorWiresBothSweepers(t *testing.T) {
	conn, _, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	gw := db.NewFromConn(conn, nil)

	sup := NewSupervisor(gw)
	require.NotNil(t, sup)
}
