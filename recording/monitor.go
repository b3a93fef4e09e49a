package recording

import (
	"context"
	"time"

	"github.com/Serph91P/StreamVault-sub001/config"
	"github.com/Serph91P/StreamVault-sub001/fanout"
)

// monitor is the per-recording polling loop: every RecordingMonitorInterval
// it checks whether the capture child is still alive and, once it isn't,
// finalizes the recording. Each tick also republishes a recording.progress
// snapshot so the dashboard shows a live duration between tracker updates.
func (m *Manager) monitor(recordingID int64, cp *capture) {
	defer m.wg.Done()
	ticker := time.NewTicker(config.RecordingMonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cp.stopMonitor:
			return
		case <-ticker.C:
			if m.tick(recordingID, cp) {
				return
			}
		}
	}
}

// tick returns true once the recording has been finalized and its monitor
// loop should stop.
func (m *Manager) tick(recordingID int64, cp *capture) bool {
	prog, ok := m.sup.ProgressOf(cp.processID)
	if !ok || !m.sup.IsActive(cp.processID) {
		if _, stillActive := m.takeActive(recordingID); stillActive {
			m.finalize(context.Background(), recordingID, cp, "automatic")
		}
		return true
	}

	ctx := context.Background()
	_ = m.gw.Heartbeat(ctx, recordingID, config.Clock.Now())
	if !prog.HeartbeatOnly {
		// 50 is a placeholder fill level; the capture tool doesn't report a
		// real completion percentage for an open-ended stream.
		m.tracker.UpdateProgress(cp.processID, 50)
	}
	m.broadcast(fanout.Message{Type: fanout.TypeRecordingProgress, Data: fanout.RecordingProgressPayload{
		RecordingID: recordingID, StreamerID: cp.streamerID, DurationSeconds: prog.DurationSeconds,
	}})
	return false
}
