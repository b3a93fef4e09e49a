// Package recovery implements the Recovery Subsystem (C10): a startup
// orphan scan that runs once before the recording lifecycle manager starts
// accepting new work, plus a periodic reaper that forcibly terminates tasks
// stuck past their declared thresholds. Grounded on the teacher's
// balancer rebalance-on-boot pass (single sweep, then hand off to steady
// state) and on progress.Tracker's active/external split for the reaper's
// declarative rules.
package recovery

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/Serph91P/StreamVault-sub001/config"
	"github.com/Serph91P/StreamVault-sub001/db"
	"github.com/Serph91P/StreamVault-sub001/fanout"
	"github.com/Serph91P/StreamVault-sub001/log"
	"github.com/Serph91P/StreamVault-sub001/metrics"
	"github.com/Serph91P/StreamVault-sub001/progress"
	"github.com/Serph91P/StreamVault-sub001/queue"
)

// Manager owns both recovery phases: StartupScan (run once) and the
// periodic reaper (run as a suture.Service, see reaper.go).
type Manager struct {
	gw      *db.Gateway
	tracker *progress.Tracker
	q       *queue.Manager
	hub     *fanout.Hub
	metrics *metrics.CoreMetrics
}

func NewManager(gw *db.Gateway, tracker *progress.Tracker, q *queue.Manager, hub *fanout.Hub, m *metrics.CoreMetrics) *Manager {
	return &Manager{gw: gw, tracker: tracker, q: q, hub: hub, metrics: m}
}

func (m *Manager) broadcast(msg fanout.Message) {
	if m.hub == nil {
		return
	}
	m.hub.Broadcast(msg, false)
}

// StartupScan runs once, before the lifecycle manager is opened up to new
// StartRecording calls: it reconciles durable state against the fact that
// every in-process capture died with the previous process. Any recording
// still marked "recording" in active_recording_state is finalized as a
// crash recovery; any recording stuck in "processing" with incomplete DAG
// steps has its post-processing chain re-enqueued (each step's own
// idempotency gate makes this safe even if some steps already finished).
func (m *Manager) StartupScan(ctx context.Context) error {
	if err := m.recoverActiveRecordings(ctx); err != nil {
		return err
	}
	if err := m.resumeIncompleteProcessing(ctx); err != nil {
		return err
	}
	m.scanForUnreferencedMedia(ctx)
	return nil
}

func (m *Manager) recoverActiveRecordings(ctx context.Context) error {
	states, err := m.gw.ListActiveRecordings(ctx)
	if err != nil {
		return err
	}
	for _, s := range states {
		rec, err := m.gw.GetRecording(ctx, s.RecordingID)
		if err != nil {
			log.LogError("", "recovery: could not load orphaned recording, leaving active_recording_state row in place", err, "recording_id", s.RecordingID)
			continue
		}
		if rec.Status != db.RecordingStatusRecording {
			// Already finalized by the time we got here (shouldn't happen at
			// startup, but the row may be stale from a previous partial sweep).
			_ = m.gw.DeleteActiveRecording(ctx, s.RecordingID)
			continue
		}

		info, statErr := os.Stat(s.OutputPath)
		if statErr != nil {
			_ = m.gw.SetRecordingError(ctx, rec.ID, "crash_recovery: capture output missing")
			_ = m.gw.DeleteActiveRecording(ctx, rec.ID)
			m.broadcast(fanout.Message{Type: fanout.TypeRecordingFailed, Data: fanout.RecordingEventPayload{
				RecordingID: rec.ID, StreamID: rec.StreamID, StreamerID: rec.StreamerID, Reason: "crash_recovery: capture output missing",
			}})
			continue
		}

		if err := m.gw.UpdateRecordingStatus(ctx, rec.ID, db.RecordingStatusProcessing); err != nil {
			return err
		}
		if err := m.gw.SetRecordingCompletion(ctx, rec.ID, db.RecordingStatusProcessing, 0, info.Size()); err != nil {
			return err
		}
		_ = m.gw.DeleteActiveRecording(ctx, rec.ID)
		m.broadcast(fanout.Message{Type: fanout.TypeRecordingStopped, Data: fanout.RecordingEventPayload{
			RecordingID: rec.ID, StreamID: rec.StreamID, StreamerID: rec.StreamerID, Reason: "crash_recovery",
		}})

		streamer, err := m.gw.GetStreamerByID(ctx, rec.StreamerID)
		streamerName := "unknown"
		if err == nil {
			streamerName = streamer.Username
		}
		if _, err := m.q.EnqueueRecordingPostProcessing(rec, streamerName); err != nil {
			return err
		}
		if m.metrics != nil {
			m.metrics.OrphansRecovered.Inc()
		}
		log.Log("", "recovery: recovered orphaned active recording", "recording_id", rec.ID, "output_path", s.OutputPath)
	}
	return nil
}

// resumeIncompleteProcessing re-enqueues the post-processing DAG for every
// recording stuck in "processing" whose steps aren't all terminal. Steps
// already completed or skipped are no-ops the second time through, per
// Handlers.RunStep's idempotency gate.
func (m *Manager) resumeIncompleteProcessing(ctx context.Context) error {
	recs, err := m.gw.ListRecordingsByStatus(ctx, db.RecordingStatusProcessing)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		states, err := m.gw.GetProcessingStatesByRecording(ctx, rec.ID)
		if err != nil {
			return err
		}
		if allTerminal(states) && len(states) > 0 {
			continue
		}
		streamer, err := m.gw.GetStreamerByID(ctx, rec.StreamerID)
		streamerName := "unknown"
		if err == nil {
			streamerName = streamer.Username
		}
		if _, err := m.q.EnqueueRecordingPostProcessing(rec, streamerName); err != nil {
			return err
		}
		if m.metrics != nil {
			m.metrics.OrphansRecovered.Inc()
		}
		log.Log("", "recovery: resumed incomplete post-processing", "recording_id", rec.ID)
	}
	return nil
}

func allTerminal(states []db.RecordingProcessingState) bool {
	for _, s := range states {
		if s.Status != db.StepCompleted && s.Status != db.StepSkipped {
			return false
		}
	}
	return true
}

// CheckOrphans is the queue.HandlerFunc registered under
// KindOrphanRecoveryCheck: it runs the same unreferenced-media sweep the
// startup scan does, but as a throttled, queue-scheduled task (see
// EnqueueOrphanCheck in reaper.go) rather than a one-shot boot-time pass.
func (m *Manager) CheckOrphans(ctx context.Context, _ queue.Payload, _ func(int)) error {
	m.scanForUnreferencedMedia(ctx)
	return nil
}

// scanForUnreferencedMedia walks the recordings tree for .ts/.mp4 files that
// no Recording row (in any status) claims as its raw or final path. These
// can't be auto-resumed -- there's no streamer/episode attribution left to
// recover -- so the scan only surfaces them for operator follow-up.
func (m *Manager) scanForUnreferencedMedia(ctx context.Context) {
	claimed := map[string]bool{}
	for _, status := range []db.RecordingStatus{
		db.RecordingStatusRecording, db.RecordingStatusStopped, db.RecordingStatusProcessing, db.RecordingStatusCompleted, db.RecordingStatusFailed,
	} {
		recs, err := m.gw.ListRecordingsByStatus(ctx, status)
		if err != nil {
			log.LogError("", "recovery: listing recordings for orphan media scan failed", err, "status", status)
			return
		}
		for _, r := range recs {
			if r.RawPath != "" {
				claimed[r.RawPath] = true
			}
			if r.FinalPath != "" {
				claimed[r.FinalPath] = true
			}
		}
	}

	var unreferenced []string
	_ = filepath.Walk(config.RecordingsRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".ts") && !strings.HasSuffix(path, ".mp4") {
			return nil
		}
		if !claimed[path] {
			unreferenced = append(unreferenced, path)
		}
		return nil
	})
	for _, path := range unreferenced {
		log.LogNoRequestID("recovery: unreferenced media file found on disk, no matching recording row", "path", path)
	}
}
