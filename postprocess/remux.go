package postprocess

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/Serph91P/StreamVault-sub001/config"
	"github.com/Serph91P/StreamVault-sub001/db"
	"github.com/Serph91P/StreamVault-sub001/modelerrors"
)

// Remux converts the raw MPEG-TS capture into a media-server-ready MP4:
// stream copy (no re-encode), ADTS-to-ASC bitstream fix for AAC audio, and
// faststart so players can begin playback before the full file downloads.
func (h *Handlers) Remux(ctx context.Context, rec db.Recording) error {
	if rec.RawPath == "" {
		return modelerrors.NonRetryable("postprocess: recording has no raw path to remux", nil)
	}
	finalPath := strings.TrimSuffix(rec.RawPath, ".ts") + ".mp4"

	ctx, cancel := context.WithTimeout(ctx, config.RemuxTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y", "-i", rec.RawPath,
		"-c", "copy",
		"-bsf:a", "aac_adtstoasc",
		"-movflags", "+faststart",
		finalPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return modelerrors.Retryable(fmt.Sprintf("postprocess: remux failed: %s", stderr.String()), err)
	}

	return h.setFinalPath(ctx, rec.ID, finalPath)
}

func (h *Handlers) setFinalPath(ctx context.Context, recordingID int64, finalPath string) error {
	if err := h.gw.SetRecordingPath(ctx, recordingID, finalPath); err != nil {
		return modelerrors.Retryable("postprocess: persisting final path failed", err)
	}
	return nil
}
