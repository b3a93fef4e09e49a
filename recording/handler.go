package recording

import (
	"context"

	"github.com/Serph91P/StreamVault-sub001/queue"
)

// StartCaptureHandler adapts StartRecording to queue.HandlerFunc so a
// start_capture task drives the same code path as a direct API call.
// progressFn is unused: capture progress is reported by monitor's
// own tracker updates, not by the queue worker that merely kicks it off.
func (m *Manager) StartCaptureHandler() queue.HandlerFunc {
	return func(ctx context.Context, payload queue.Payload, progressFn func(int)) error {
		_, err := m.StartRecording(ctx, payload.StreamID)
		return err
	}
}
