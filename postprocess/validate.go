package postprocess

import (
	"context"
	"fmt"
	"os"

	"github.com/Serph91P/StreamVault-sub001/config"
	"github.com/Serph91P/StreamVault-sub001/db"
	"github.com/Serph91P/StreamVault-sub001/ffprobe"
	"github.com/Serph91P/StreamVault-sub001/modelerrors"
)

// Validate confirms the remuxed output is a playable, appropriately sized
// file before it's handed to the media server: minimum size floor and a
// successful ffprobe pass with a non-zero duration.
func (h *Handlers) Validate(ctx context.Context, rec db.Recording) error {
	if rec.FinalPath == "" {
		return modelerrors.NonRetryable("postprocess: recording has no final path to validate", nil)
	}

	info, err := os.Stat(rec.FinalPath)
	if err != nil {
		return modelerrors.Retryable("postprocess: stat on final output failed", err)
	}
	if info.Size() < config.MinOutputFileSizeBytes {
		return modelerrors.OperatorVisible("output_too_small",
			fmt.Sprintf("postprocess: output %d bytes below minimum %d", info.Size(), config.MinOutputFileSizeBytes), nil)
	}

	prober := h.prober
	if prober == nil {
		prober = ffprobe.Probe{}
	}
	result, err := prober.Probe(ctx, rec.FinalPath)
	if err != nil {
		return modelerrors.OperatorVisible("output_unplayable", "postprocess: probe of final output failed", err)
	}
	if result.Duration <= 0 {
		return modelerrors.OperatorVisible("output_zero_duration", "postprocess: probed duration is zero", nil)
	}

	if err := h.gw.SetRecordingCompletion(ctx, rec.ID, db.RecordingStatusProcessing, result.Duration, info.Size()); err != nil {
		return modelerrors.Retryable("postprocess: persisting recording duration/size failed", err)
	}
	return nil
}
