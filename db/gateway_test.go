package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/Serph91P/StreamVault-sub001/config"
)

func TestGetStreamerByID(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	g := NewFromConn(conn, nil)

	rows := sqlmock.NewRows([]string{"id", "username", "twitch_id", "display_name", "created_at"}).
		AddRow(int64(1), "alice", "tw-1", "Alice", time.Unix(0, 0))
	mock.ExpectQuery("SELECT id, username, twitch_id, display_name, created_at FROM streamers").
		WithArgs(int64(1)).
		WillReturnRows(rows)

	s, err := g.GetStreamerByID(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "alice", s.Username)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithRetryRetriesTransientThenSucceeds(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	config.DBRetryBaseDelay = time.Millisecond
	config.DBRetryMaxDelay = 2 * time.Millisecond
	defer func() {
		config.DBRetryBaseDelay = 500 * time.Millisecond
		config.DBRetryMaxDelay = 10 * time.Second
	}()

	g := NewFromConn(conn, nil)

	mock.ExpectQuery("SELECT id, username, twitch_id, display_name, created_at FROM streamers").
		WithArgs(int64(1)).
		WillReturnError(&pq.Error{Code: "08006"}) // connection_failure, class 08 -> transient
	rows := sqlmock.NewRows([]string{"id", "username", "twitch_id", "display_name", "created_at"}).
		AddRow(int64(1), "alice", "tw-1", "Alice", time.Unix(0, 0))
	mock.ExpectQuery("SELECT id, username, twitch_id, display_name, created_at FROM streamers").
		WithArgs(int64(1)).
		WillReturnRows(rows)

	s, err := g.GetStreamerByID(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "alice", s.Username)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithRetryNonTransientFailsImmediately(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	g := NewFromConn(conn, nil)

	mock.ExpectQuery("SELECT id, username, twitch_id, display_name, created_at FROM streamers").
		WithArgs(int64(99)).
		WillReturnError(errors.New("no such column"))

	_, err = g.GetStreamerByID(context.Background(), 99)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateShareTokenExpired(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	g := NewFromConn(conn, nil)
	mock.ExpectQuery("SELECT token, recording_id, created_at, expires_at FROM share_tokens").
		WithArgs("tok-1", config.Clock.Now()).
		WillReturnError(errors.New("sql: no rows in result set"))

	_, err = g.ValidateShareToken(context.Background(), "tok-1")
	require.Error(t, err)
}

func TestProxySettingsRoundTripsThroughCrypto(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	key, err := GenerateKey()
	require.NoError(t, err)
	crypto, err := NewCrypto(key)
	require.NoError(t, err)

	g := NewFromConn(conn, nil)
	g.SetCrypto(crypto)

	encrypted, err := crypto.Encrypt("s3cret")
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"streamer_id", "url", "username", "password"}).
		AddRow(int64(5), "http://proxy", "user", encrypted)
	mock.ExpectQuery("SELECT streamer_id, url, username, password FROM proxy_settings").
		WithArgs(int64(5)).
		WillReturnRows(rows)

	p, err := g.GetProxySettings(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, "s3cret", p.Password)
}
