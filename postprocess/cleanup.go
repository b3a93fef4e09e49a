package postprocess

import (
	"context"
	"os"

	"github.com/Serph91P/StreamVault-sub001/db"
	"github.com/Serph91P/StreamVault-sub001/log"
	"github.com/Serph91P/StreamVault-sub001/modelerrors"
)

// Cleanup removes the raw capture (and any leftover concat parts) once the
// final asset has passed validation. It is the last step in the DAG and is
// never retried past a missing file -- a file that's already gone is success.
func (h *Handlers) Cleanup(ctx context.Context, rec db.Recording) error {
	if rec.FinalPath == "" {
		return modelerrors.NonRetryable("postprocess: recording has no final path; refusing to clean up raw capture", nil)
	}

	parts, err := findCaptureParts(rec.RawPath)
	if err != nil {
		return modelerrors.Retryable("postprocess: listing raw parts for cleanup failed", err)
	}
	for _, p := range parts {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.LogError("", "postprocess: failed to remove raw capture part", err, "path", p, "recording_id", rec.ID)
		}
	}

	if err := h.gw.SetRecordingCompletion(ctx, rec.ID, db.RecordingStatusCompleted, rec.DurationSeconds, rec.FileSizeBytes); err != nil {
		return modelerrors.Retryable("postprocess: marking recording completed failed", err)
	}
	return nil
}
