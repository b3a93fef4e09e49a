package recovery

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/Serph91P/StreamVault-sub001/config"
	"github.com/Serph91P/StreamVault-sub001/log"
	"github.com/Serph91P/StreamVault-sub001/progress"
	"github.com/Serph91P/StreamVault-sub001/queue"
)

// Reaper is a suture.Service running the periodic sweep over
// tracker.ActiveAndExternal(): any task violating one of the three
// declarative rules below is forced into a terminal state so it stops
// occupying a worker slot or a dashboard row forever.
type Reaper struct {
	m *Manager
}

func NewReaper(m *Manager) *Reaper { return &Reaper{m: m} }

// Serve implements suture.Service: it ticks every config.ReaperInterval
// until ctx is canceled.
func (r *Reaper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(config.ReaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.m.reapOnce(ctx)
			r.m.enqueueOrphanCheck()
		}
	}
}

// enqueueOrphanCheck submits one orphan-recovery-check task per reaper tick,
// throttled by queue.Manager.EnqueueOrphanCheck's in-flight cap (spec.md
// §4.6); a throttled tick just skips its check until a slot frees up.
func (m *Manager) enqueueOrphanCheck() {
	id, err := m.q.EnqueueOrphanCheck(queue.Payload{})
	if err != nil {
		log.LogError("", "recovery: enqueueing orphan check failed", err)
		return
	}
	if id == queue.SentinelOrphanCheckThrottled {
		log.Log("", "recovery: orphan check throttled, too many in flight")
	}
}

// ForceReap runs one reap pass immediately, outside the ticker -- used by
// an operator-facing admin endpoint to clear a known-stuck task without
// waiting for the next tick.
func (m *Manager) ForceReap(ctx context.Context) {
	m.reapOnce(ctx)
}

// DumpTaskState returns a snapshot of every active/external tracked task,
// for an admin debug endpoint to inspect what the reaper sees.
func (m *Manager) DumpTaskState() []progress.Entry {
	return m.tracker.ActiveAndExternal()
}

func (m *Manager) reapOnce(ctx context.Context) {
	now := progress.Clock.Now()
	for _, e := range m.tracker.ActiveAndExternal() {
		switch {
		case e.External && e.Progress >= 100 && e.Status == progress.StatusRunning && now.Sub(e.StartedAt) > config.StuckCaptureCompletedThreshold:
			m.reap(e, progress.StatusComplete, "stuck_capture_completed")

		case isOrphanCheckTask(e) && now.Sub(e.CreatedAt) > config.OrphanCheckTaskMaxAge:
			m.reap(e, progress.StatusFailed, "orphan_check_expired")

		case (e.Status == progress.StatusRunning || e.Status == progress.StatusPending) &&
			now.Sub(e.CreatedAt) > config.StuckTaskAgeThreshold &&
			m.isStale(ctx, e, now):
			m.reap(e, progress.StatusFailed, "stuck_task_stale_heartbeat")
		}
	}
}

func isOrphanCheckTask(e progress.Entry) bool {
	return e.TaskType == "orphan_recovery_check"
}

// isStale reports whether e has gone longer than StaleHeartbeatThreshold
// without a heartbeat. External (capture) entries have a real heartbeat in
// active_recording_state; ordinary queue tasks have no heartbeat concept, so
// their own age already satisfies the rule by the time this is consulted.
func (m *Manager) isStale(ctx context.Context, e progress.Entry, now time.Time) bool {
	if !e.External {
		return true
	}
	recordingID, _ := e.Payload["recording_id"].(int64)
	if recordingID == 0 {
		return true
	}
	states, err := m.gw.ListActiveRecordings(ctx)
	if err != nil {
		return false
	}
	for _, s := range states {
		if s.RecordingID == recordingID {
			return now.Sub(s.LastHeartbeat) > config.StaleHeartbeatThreshold
		}
	}
	return true
}

func (m *Manager) reap(e progress.Entry, outcome progress.Status, reason string) {
	m.tracker.UpdateStatus(e.ID, outcome, reason)
	if outcome == progress.StatusFailed {
		m.tracker.Remove(e.ID)
	}
	if m.metrics != nil {
		m.metrics.TasksReaped.WithLabelValues(reason).Inc()
	}
	log.Log("", "recovery: reaped task", "task_id", e.ID, "task_type", e.TaskType, "outcome", outcome, "reason", reason)
}

var _ suture.Service = (*Reaper)(nil)
