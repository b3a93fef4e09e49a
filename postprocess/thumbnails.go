package postprocess

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Serph91P/StreamVault-sub001/db"
	"github.com/Serph91P/StreamVault-sub001/modelerrors"
)

// Thumbnail picks a single poster image for the recording (spec.md §4.8):
// an external `<base>-thumb.jpg` asset wins if present; otherwise a frame
// is extracted from the remuxed MP4 at min(10% duration, 60s), skipping
// past it via ffmpeg's blackdetect filter if that frame lands on a
// uniform/black frame. Grounded on the teacher's single exec.CommandContext
// ffmpeg-invocation shape, trimmed from the prior scrub-bar/VTT approach
// since the spec calls for exactly one thumbnail per recording.
func (h *Handlers) Thumbnail(ctx context.Context, rec db.Recording) error {
	if rec.FinalPath == "" {
		return modelerrors.NonRetryable("postprocess: recording has no final path for thumbnails", nil)
	}

	base := strings.TrimSuffix(rec.FinalPath, filepath.Ext(rec.FinalPath))
	thumbPath := base + ".jpg"

	external := base + "-thumb.jpg"
	if info, err := os.Stat(external); err == nil && info.Size() > 0 {
		if err := copyFile(external, thumbPath); err != nil {
			return modelerrors.Retryable("postprocess: copying external poster failed", err)
		}
		return h.persistThumbnailPath(ctx, rec.ID, thumbPath)
	}

	offset := thumbnailOffset(rec.DurationSeconds)
	if offset == 0 && rec.DurationSeconds == 0 && h.prober != nil {
		if probe, err := h.prober.Probe(ctx, rec.FinalPath); err == nil {
			offset = thumbnailOffset(probe.Duration)
		}
	}

	if err := extractFrameAt(ctx, rec.FinalPath, thumbPath, offset); err != nil {
		return err
	}

	if isBlackFrame(ctx, thumbPath) {
		skipTo := offset + 5
		if err := extractFrameAt(ctx, rec.FinalPath, thumbPath, skipTo); err != nil {
			return err
		}
	}

	info, err := os.Stat(thumbPath)
	if err != nil || info.Size() == 0 {
		return modelerrors.OperatorVisible("no_thumbnail_extracted", "postprocess: ffmpeg produced no usable thumbnail frame", err)
	}

	return h.persistThumbnailPath(ctx, rec.ID, thumbPath)
}

func (h *Handlers) persistThumbnailPath(ctx context.Context, recordingID int64, thumbPath string) error {
	meta, _ := h.gw.GetStreamMetadata(ctx, recordingID)
	meta.RecordingID = recordingID
	meta.ThumbnailPath = thumbPath
	if err := h.gw.UpsertStreamMetadata(ctx, meta); err != nil {
		return modelerrors.Retryable("postprocess: persisting thumbnail path failed", err)
	}
	return nil
}

// thumbnailOffset implements the documented offset policy (spec.md §4.8):
// 10% of duration, capped at 60 seconds.
func thumbnailOffset(durationSecs float64) float64 {
	offset := durationSecs * 0.1
	if offset > 60 {
		offset = 60
	}
	if offset < 0 {
		offset = 0
	}
	return offset
}

func extractFrameAt(ctx context.Context, input, output string, offsetSecs float64) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	args := []string{
		"-ss", strconv.FormatFloat(offsetSecs, 'f', 3, 64),
		"-i", input,
		"-frames:v", "1",
		"-q:v", "2",
		"-y",
		output,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return modelerrors.Retryable("postprocess: thumbnail frame extraction failed: "+stderr.String(), err)
	}
	return nil
}

var blackFrameRE = regexp.MustCompile(`black_start`)

// isBlackFrame runs ffmpeg's blackdetect filter against the extracted
// still; a black_start report means the chosen offset landed on a
// uniform/black frame and a later frame should be tried instead.
func isBlackFrame(ctx context.Context, imgPath string) bool {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	args := []string{
		"-i", imgPath,
		"-vf", "blackdetect=d=0:pic_th=0.98",
		"-f", "null", "-",
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	_ = cmd.Run()
	return blackFrameRE.MatchString(stderr.String())
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
