package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/Serph91P/StreamVault-sub001/config"
	"github.com/Serph91P/StreamVault-sub001/metrics"
	"github.com/Serph91P/StreamVault-sub001/modelerrors"
)

// Gateway is the sole path every component uses to reach Postgres. It owns
// connection pooling (pre-ping via PingContext, periodic recycling) and
// wraps every statement in the transient-failure retry policy from retry.go.
type Gateway struct {
	sqldb   *sql.DB
	crypto  *Crypto
	metrics *metrics.CoreMetrics
}

// Open mirrors the teacher's pattern of a thin constructor that configures
// pool limits up front rather than leaving them at database/sql's defaults.
func Open(dsn string, m *metrics.CoreMetrics) (*Gateway, error) {
	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}
	sqldb.SetConnMaxLifetime(config.DBConnMaxLifetime)
	sqldb.SetMaxOpenConns(25)
	sqldb.SetMaxIdleConns(10)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqldb.PingContext(ctx); err != nil {
		return nil, modelerrors.RecoverableAtBoot("db: initial ping failed", err)
	}
	return &Gateway{sqldb: sqldb, metrics: m}, nil
}

// NewFromConn wraps a pre-opened *sql.DB, used by tests to inject sqlmock.
func NewFromConn(conn *sql.DB, m *metrics.CoreMetrics) *Gateway {
	return &Gateway{sqldb: conn, metrics: m}
}

func (g *Gateway) SetCrypto(c *Crypto) { g.crypto = c }

func (g *Gateway) Close() error { return g.sqldb.Close() }

// --- Streamer ---

func (g *Gateway) GetStreamerByID(ctx context.Context, id int64) (Streamer, error) {
	var s Streamer
	err := g.withRetry(ctx, "get_streamer_by_id", func() error {
		row := g.sqldb.QueryRowContext(ctx,
			`SELECT id, username, twitch_id, display_name, created_at FROM streamers WHERE id = $1`, id)
		return row.Scan(&s.ID, &s.Username, &s.TwitchID, &s.DisplayName, &s.CreatedAt)
	})
	if err != nil {
		return Streamer{}, err
	}
	return s, nil
}

func (g *Gateway) GetStreamerByUsername(ctx context.Context, username string) (Streamer, error) {
	var s Streamer
	err := g.withRetry(ctx, "get_streamer_by_username", func() error {
		row := g.sqldb.QueryRowContext(ctx,
			`SELECT id, username, twitch_id, display_name, created_at FROM streamers WHERE username = $1`, username)
		return row.Scan(&s.ID, &s.Username, &s.TwitchID, &s.DisplayName, &s.CreatedAt)
	})
	if err != nil {
		return Streamer{}, err
	}
	return s, nil
}

// --- Stream ---

func (g *Gateway) CreateStream(ctx context.Context, s Stream) (int64, error) {
	var id int64
	err := g.withRetry(ctx, "create_stream", func() error {
		row := g.sqldb.QueryRowContext(ctx,
			`INSERT INTO streams (streamer_id, title, category, started_at) VALUES ($1, $2, $3, $4) RETURNING id`,
			s.StreamerID, s.Title, s.Category, s.StartedAt)
		return row.Scan(&id)
	})
	return id, err
}

func (g *Gateway) SetStreamEnded(ctx context.Context, streamID int64, endedAt time.Time) error {
	return g.withRetry(ctx, "set_stream_ended", func() error {
		_, err := g.sqldb.ExecContext(ctx, `UPDATE streams SET ended_at = $1 WHERE id = $2`, endedAt, streamID)
		return err
	})
}

// GetStream is the authoritative lookup the lifecycle manager's start path
// uses to resolve stream.streamer_id itself, rather than trusting a caller-
// supplied value (spec.md §4.7: "ignore mismatched input").
func (g *Gateway) GetStream(ctx context.Context, id int64) (Stream, error) {
	var s Stream
	err := g.withRetry(ctx, "get_stream", func() error {
		row := g.sqldb.QueryRowContext(ctx,
			`SELECT id, streamer_id, title, category, language, started_at, ended_at FROM streams WHERE id = $1`, id)
		return row.Scan(&s.ID, &s.StreamerID, &s.Title, &s.Category, &s.Language, &s.StartedAt, &s.EndedAt)
	})
	if err != nil {
		return Stream{}, err
	}
	return s, nil
}

// NextEpisodeNumber assigns a monotonic per-(streamer, year-month) episode
// number (spec.md §3 Recording.episode_number), serialized by row locks on
// the streamer's recordings within the period.
func (g *Gateway) NextEpisodeNumber(ctx context.Context, streamerID int64, yyyymm string) (int, error) {
	var next int
	err := g.withRetry(ctx, "next_episode_number", func() error {
		tx, err := g.sqldb.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		row := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(episode_number), 0) FROM (SELECT episode_number FROM recordings
			 WHERE streamer_id = $1 AND to_char(created_at, 'YYYYMM') = $2 FOR UPDATE) r`,
			streamerID, yyyymm)
		var max int
		if err := row.Scan(&max); err != nil {
			return err
		}
		next = max + 1
		return tx.Commit()
	})
	return next, err
}

// --- Recording ---

func (g *Gateway) CreateRecording(ctx context.Context, r Recording) (int64, error) {
	var id int64
	err := g.withRetry(ctx, "create_recording", func() error {
		row := g.sqldb.QueryRowContext(ctx,
			`INSERT INTO recordings (stream_id, streamer_id, episode_number, status, raw_path, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $6) RETURNING id`,
			r.StreamID, r.StreamerID, r.EpisodeNumber, r.Status, r.RawPath, config.Clock.Now())
		return row.Scan(&id)
	})
	return id, err
}

func (g *Gateway) GetRecording(ctx context.Context, id int64) (Recording, error) {
	var r Recording
	err := g.withRetry(ctx, "get_recording", func() error {
		row := g.sqldb.QueryRowContext(ctx,
			`SELECT id, stream_id, streamer_id, episode_number, status, raw_path, final_path, failure_reason,
			        duration_seconds, file_size_bytes, created_at, updated_at
			 FROM recordings WHERE id = $1`, id)
		return row.Scan(&r.ID, &r.StreamID, &r.StreamerID, &r.EpisodeNumber, &r.Status,
			&r.RawPath, &r.FinalPath, &r.FailureReason, &r.DurationSeconds, &r.FileSizeBytes, &r.CreatedAt, &r.UpdatedAt)
	})
	if err != nil {
		return Recording{}, err
	}
	return r, nil
}

// SetRecordingCompletion records the final size/duration and transitions
// the recording to a terminal status (spec.md §4.7 completion path).
func (g *Gateway) SetRecordingCompletion(ctx context.Context, id int64, status RecordingStatus, durationSecs float64, fileSizeBytes int64) error {
	return g.withRetry(ctx, "set_recording_completion", func() error {
		_, err := g.sqldb.ExecContext(ctx,
			`UPDATE recordings SET status = $1, duration_seconds = $2, file_size_bytes = $3, updated_at = $4 WHERE id = $5`,
			status, durationSecs, fileSizeBytes, config.Clock.Now(), id)
		return err
	})
}

func (g *Gateway) UpdateRecordingStatus(ctx context.Context, id int64, status RecordingStatus) error {
	return g.withRetry(ctx, "update_recording_status", func() error {
		_, err := g.sqldb.ExecContext(ctx,
			`UPDATE recordings SET status = $1, updated_at = $2 WHERE id = $3`, status, config.Clock.Now(), id)
		return err
	})
}

func (g *Gateway) SetRecordingPath(ctx context.Context, id int64, finalPath string) error {
	return g.withRetry(ctx, "set_recording_path", func() error {
		_, err := g.sqldb.ExecContext(ctx,
			`UPDATE recordings SET final_path = $1, updated_at = $2 WHERE id = $3`, finalPath, config.Clock.Now(), id)
		return err
	})
}

func (g *Gateway) SetRecordingError(ctx context.Context, id int64, reason string) error {
	return g.withRetry(ctx, "set_recording_error", func() error {
		_, err := g.sqldb.ExecContext(ctx,
			`UPDATE recordings SET status = $1, failure_reason = $2, updated_at = $3 WHERE id = $4`,
			RecordingStatusFailed, reason, config.Clock.Now(), id)
		return err
	})
}

// CountActiveRecordings backs the lifecycle manager's capacity check
// (spec.md §4.7 start path, property P9): the number of recordings currently
// in the `recording` status, i.e. with a live capture subprocess.
func (g *Gateway) CountActiveRecordings(ctx context.Context) (int, error) {
	var n int
	err := g.withRetry(ctx, "count_active_recordings", func() error {
		row := g.sqldb.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM recordings WHERE status = $1`, RecordingStatusRecording)
		return row.Scan(&n)
	})
	return n, err
}

// ListRecordingsByStatus supports the recovery subsystem's startup scan
// (spec.md §4.9), which needs every recording that isn't in a clean
// terminal state to reconcile against what's on disk.
func (g *Gateway) ListRecordingsByStatus(ctx context.Context, status RecordingStatus) ([]Recording, error) {
	var out []Recording
	err := g.withRetry(ctx, "list_recordings_by_status", func() error {
		out = nil
		rows, err := g.sqldb.QueryContext(ctx,
			`SELECT id, stream_id, streamer_id, episode_number, status, raw_path, final_path, failure_reason,
			        duration_seconds, file_size_bytes, created_at, updated_at
			 FROM recordings WHERE status = $1`, status)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r Recording
			if err := rows.Scan(&r.ID, &r.StreamID, &r.StreamerID, &r.EpisodeNumber, &r.Status,
				&r.RawPath, &r.FinalPath, &r.FailureReason, &r.DurationSeconds, &r.FileSizeBytes, &r.CreatedAt, &r.UpdatedAt); err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}

// --- ActiveRecordingState ---

func (g *Gateway) UpsertActiveRecording(ctx context.Context, s ActiveRecordingState) error {
	return g.withRetry(ctx, "upsert_active_recording", func() error {
		_, err := g.sqldb.ExecContext(ctx,
			`INSERT INTO active_recording_state (recording_id, streamer_id, process_id, output_path, started_at, last_heartbeat)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (recording_id) DO UPDATE SET process_id = $3, last_heartbeat = $6`,
			s.RecordingID, s.StreamerID, s.ProcessID, s.OutputPath, s.StartedAt, s.LastHeartbeat)
		return err
	})
}

func (g *Gateway) DeleteActiveRecording(ctx context.Context, recordingID int64) error {
	return g.withRetry(ctx, "delete_active_recording", func() error {
		_, err := g.sqldb.ExecContext(ctx, `DELETE FROM active_recording_state WHERE recording_id = $1`, recordingID)
		return err
	})
}

func (g *Gateway) Heartbeat(ctx context.Context, recordingID int64, at time.Time) error {
	return g.withRetry(ctx, "heartbeat", func() error {
		_, err := g.sqldb.ExecContext(ctx,
			`UPDATE active_recording_state SET last_heartbeat = $1 WHERE recording_id = $2`, at, recordingID)
		return err
	})
}

func (g *Gateway) ListActiveRecordings(ctx context.Context) ([]ActiveRecordingState, error) {
	var out []ActiveRecordingState
	err := g.withRetry(ctx, "list_active_recordings", func() error {
		out = nil
		rows, err := g.sqldb.QueryContext(ctx,
			`SELECT recording_id, streamer_id, process_id, output_path, started_at, last_heartbeat FROM active_recording_state`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var s ActiveRecordingState
			if err := rows.Scan(&s.RecordingID, &s.StreamerID, &s.ProcessID, &s.OutputPath, &s.StartedAt, &s.LastHeartbeat); err != nil {
				return err
			}
			out = append(out, s)
		}
		return rows.Err()
	})
	return out, err
}

// --- RecordingProcessingState ---

func (g *Gateway) CreateProcessingState(ctx context.Context, recordingID int64, step string) error {
	return g.withRetry(ctx, "create_processing_state", func() error {
		_, err := g.sqldb.ExecContext(ctx,
			`INSERT INTO recording_processing_state (recording_id, step, status, updated_at)
			 VALUES ($1, $2, $3, $4) ON CONFLICT (recording_id, step) DO NOTHING`,
			recordingID, step, StepPending, config.Clock.Now())
		return err
	})
}

func (g *Gateway) GetProcessingState(ctx context.Context, recordingID int64, step string) (RecordingProcessingState, error) {
	var s RecordingProcessingState
	err := g.withRetry(ctx, "get_processing_state", func() error {
		row := g.sqldb.QueryRowContext(ctx,
			`SELECT recording_id, step, status, task_id, updated_at FROM recording_processing_state
			 WHERE recording_id = $1 AND step = $2`, recordingID, step)
		return row.Scan(&s.RecordingID, &s.Step, &s.Status, &s.TaskID, &s.UpdatedAt)
	})
	if err != nil {
		return RecordingProcessingState{}, err
	}
	return s, nil
}

func (g *Gateway) GetProcessingStatesByRecording(ctx context.Context, recordingID int64) ([]RecordingProcessingState, error) {
	var out []RecordingProcessingState
	err := g.withRetry(ctx, "get_processing_states_by_recording", func() error {
		out = nil
		rows, err := g.sqldb.QueryContext(ctx,
			`SELECT recording_id, step, status, task_id, updated_at FROM recording_processing_state WHERE recording_id = $1`,
			recordingID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var s RecordingProcessingState
			if err := rows.Scan(&s.RecordingID, &s.Step, &s.Status, &s.TaskID, &s.UpdatedAt); err != nil {
				return err
			}
			out = append(out, s)
		}
		return rows.Err()
	})
	return out, err
}

func (g *Gateway) SetStepStatus(ctx context.Context, recordingID int64, step string, status StepStatus) error {
	return g.withRetry(ctx, "set_step_status", func() error {
		_, err := g.sqldb.ExecContext(ctx,
			`UPDATE recording_processing_state SET status = $1, updated_at = $2 WHERE recording_id = $3 AND step = $4`,
			status, config.Clock.Now(), recordingID, step)
		return err
	})
}

func (g *Gateway) SetStepTaskID(ctx context.Context, recordingID int64, step, taskID string) error {
	return g.withRetry(ctx, "set_step_task_id", func() error {
		_, err := g.sqldb.ExecContext(ctx,
			`UPDATE recording_processing_state SET task_id = $1, updated_at = $2 WHERE recording_id = $3 AND step = $4`,
			taskID, config.Clock.Now(), recordingID, step)
		return err
	})
}

// --- StreamMetadata ---

func (g *Gateway) UpsertStreamMetadata(ctx context.Context, m StreamMetadata) error {
	return g.withRetry(ctx, "upsert_stream_metadata", func() error {
		_, err := g.sqldb.ExecContext(ctx,
			`INSERT INTO stream_metadata
			   (recording_id, title, category, started_at, ended_at, chapter_json,
			    vtt_path, chapter_ffmeta_path, nfo_path, thumbnail_path, segments_dir, segments_removed)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 ON CONFLICT (recording_id) DO UPDATE SET
			   title = $2, category = $3, ended_at = $5, chapter_json = $6,
			   vtt_path = $7, chapter_ffmeta_path = $8, nfo_path = $9, thumbnail_path = $10,
			   segments_dir = $11, segments_removed = $12`,
			m.RecordingID, m.Title, m.Category, m.StartedAt, m.EndedAt, m.ChapterJSON,
			m.VTTPath, m.ChapterFFMetaPath, m.NFOPath, m.ThumbnailPath, m.SegmentsDir, m.SegmentsRemoved)
		return err
	})
}

func (g *Gateway) GetStreamMetadata(ctx context.Context, recordingID int64) (StreamMetadata, error) {
	var m StreamMetadata
	err := g.withRetry(ctx, "get_stream_metadata", func() error {
		row := g.sqldb.QueryRowContext(ctx,
			`SELECT recording_id, title, category, started_at, ended_at, chapter_json,
			        vtt_path, chapter_ffmeta_path, nfo_path, thumbnail_path, segments_dir, segments_removed
			 FROM stream_metadata WHERE recording_id = $1`, recordingID)
		return row.Scan(&m.RecordingID, &m.Title, &m.Category, &m.StartedAt, &m.EndedAt, &m.ChapterJSON,
			&m.VTTPath, &m.ChapterFFMetaPath, &m.NFOPath, &m.ThumbnailPath, &m.SegmentsDir, &m.SegmentsRemoved)
	})
	if err != nil {
		return StreamMetadata{}, err
	}
	return m, nil
}

// SetSegmentsRemoved flips the segments-removed flag once the concat step
// (or its single-segment fast path) has consumed the segments (spec.md §3
// StreamMetadata, scenario S2).
func (g *Gateway) SetSegmentsRemoved(ctx context.Context, recordingID int64, removed bool) error {
	return g.withRetry(ctx, "set_segments_removed", func() error {
		_, err := g.sqldb.ExecContext(ctx,
			`UPDATE stream_metadata SET segments_removed = $1 WHERE recording_id = $2`, removed, recordingID)
		return err
	})
}

// --- ShareToken ---

func (g *Gateway) CreateShareToken(ctx context.Context, t ShareToken) error {
	return g.withRetry(ctx, "create_share_token", func() error {
		_, err := g.sqldb.ExecContext(ctx,
			`INSERT INTO share_tokens (token, recording_id, created_at, expires_at) VALUES ($1, $2, $3, $4)`,
			t.Token, t.RecordingID, t.CreatedAt, t.ExpiresAt)
		return err
	})
}

func (g *Gateway) ValidateShareToken(ctx context.Context, token string) (ShareToken, error) {
	var t ShareToken
	err := g.withRetry(ctx, "validate_share_token", func() error {
		row := g.sqldb.QueryRowContext(ctx,
			`SELECT token, recording_id, created_at, expires_at FROM share_tokens WHERE token = $1 AND expires_at > $2`,
			token, config.Clock.Now())
		return row.Scan(&t.Token, &t.RecordingID, &t.CreatedAt, &t.ExpiresAt)
	})
	if err != nil {
		// Lazy cleanup: an expired row for this token is deleted on the spot;
		// a failure here is ignored, the periodic sweep catches it later.
		_, _ = g.sqldb.ExecContext(ctx,
			`DELETE FROM share_tokens WHERE token = $1 AND expires_at <= $2`, token, config.Clock.Now())
		return ShareToken{}, modelerrors.NonRetryable("share token invalid or expired", err)
	}
	return t, nil
}

func (g *Gateway) DeleteExpiredShareTokens(ctx context.Context) (int64, error) {
	var n int64
	err := g.withRetry(ctx, "delete_expired_share_tokens", func() error {
		res, err := g.sqldb.ExecContext(ctx, `DELETE FROM share_tokens WHERE expires_at <= $1`, config.Clock.Now())
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// --- StreamerRecordingSettings ---

// GetRecordingSettings returns the operator-configured quality/codec
// preference for a streamer, falling back to sane defaults (source
// recovery -- captures must never fail merely because no row exists yet).
func (g *Gateway) GetRecordingSettings(ctx context.Context, streamerID int64) (StreamerRecordingSettings, error) {
	settings := StreamerRecordingSettings{StreamerID: streamerID, Quality: "best", CodecList: []string{"copy"}}
	err := g.withRetry(ctx, "get_recording_settings", func() error {
		var codecs string
		row := g.sqldb.QueryRowContext(ctx,
			`SELECT quality, codec_list, proxy_enabled FROM streamer_recording_settings WHERE streamer_id = $1`, streamerID)
		err := row.Scan(&settings.Quality, &codecs, &settings.ProxyEnabled)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		if codecs != "" {
			settings.CodecList = strings.Split(codecs, ",")
		}
		return nil
	})
	return settings, err
}

// --- Session ---

func (g *Gateway) CreateSession(ctx context.Context, s Session) error {
	return g.withRetry(ctx, "create_session", func() error {
		_, err := g.sqldb.ExecContext(ctx,
			`INSERT INTO sessions (id, user_id, created_at, expires_at) VALUES ($1, $2, $3, $4)`,
			s.ID, s.UserID, s.CreatedAt, s.ExpiresAt)
		return err
	})
}

func (g *Gateway) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	var n int64
	err := g.withRetry(ctx, "delete_expired_sessions", func() error {
		res, err := g.sqldb.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, config.Clock.Now())
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// --- GlobalSettings / ProxySettings ---

func (g *Gateway) GetOrCreateEncryptionKey(ctx context.Context) (string, error) {
	var keyB64 string
	err := g.withRetry(ctx, "get_or_create_encryption_key", func() error {
		row := g.sqldb.QueryRowContext(ctx, `SELECT encryption_key FROM global_settings WHERE id = 1`)
		err := row.Scan(&keyB64)
		if err == sql.ErrNoRows {
			newKey, genErr := GenerateKey()
			if genErr != nil {
				return genErr
			}
			_, err = g.sqldb.ExecContext(ctx,
				`INSERT INTO global_settings (id, encryption_key) VALUES (1, $1)`, newKey)
			keyB64 = newKey
		}
		return err
	})
	return keyB64, err
}

func (g *Gateway) GetProxySettings(ctx context.Context, streamerID int64) (ProxySettings, error) {
	var p ProxySettings
	var encPassword string
	err := g.withRetry(ctx, "get_proxy_settings", func() error {
		row := g.sqldb.QueryRowContext(ctx,
			`SELECT streamer_id, url, username, password FROM proxy_settings WHERE streamer_id = $1`, streamerID)
		return row.Scan(&p.StreamerID, &p.URL, &p.Username, &encPassword)
	})
	if err != nil {
		return ProxySettings{}, err
	}
	if g.crypto != nil && encPassword != "" {
		plain, derr := g.crypto.Decrypt(encPassword)
		if derr != nil {
			return ProxySettings{}, modelerrors.OperatorVisible("proxy_credential_decrypt_failed", "failed to decrypt proxy password", derr)
		}
		p.Password = plain
	}
	return p, nil
}

func (g *Gateway) SetProxySettings(ctx context.Context, p ProxySettings) error {
	encPassword := p.Password
	if g.crypto != nil && p.Password != "" {
		enc, err := g.crypto.Encrypt(p.Password)
		if err != nil {
			return modelerrors.OperatorVisible("proxy_credential_encrypt_failed", "failed to encrypt proxy password", err)
		}
		encPassword = enc
	}
	return g.withRetry(ctx, "set_proxy_settings", func() error {
		_, err := g.sqldb.ExecContext(ctx,
			`INSERT INTO proxy_settings (streamer_id, url, username, password) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (streamer_id) DO UPDATE SET url = $2, username = $3, password = $4`,
			p.StreamerID, p.URL, p.Username, encPassword)
		return err
	})
}
