// Package ffprobe validates post-processed recordings and extracts the
// duration/stream metadata the metadata handler (C9) needs for chapter and
// NFO sidecar generation. Grounded on the teacher's video.Probe (retry shape
// and stream parsing), trimmed of the transcode-profile/bitrate-ladder
// concerns that don't apply to a DVR pipeline that never re-encodes.
package ffprobe

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	goffprobe "gopkg.in/vansante/go-ffprobe.v2"
)

var unsupportedVideoCodecs = []string{"mjpeg", "jpeg", "png"}

// Result is the subset of a probed file's metadata the post-processing
// pipeline consumes: enough to validate playability and to place chapter
// markers and thumbnail timestamps.
type Result struct {
	Duration   float64 // seconds
	SizeBytes  int64
	VideoCodec string
	AudioCodec string
	Width      int
	Height     int
	HasAudio   bool
}

// Prober is implemented by Probe; handlers depend on the interface so tests
// can substitute a fake instead of shelling out to ffprobe.
type Prober interface {
	Probe(ctx context.Context, path string) (Result, error)
}

type Probe struct{}

// Probe runs ffprobe against path with up to 3 retries on transient
// failures (the process not yet fully flushed to disk right after remux).
func (Probe) Probe(ctx context.Context, path string) (Result, error) {
	var data *goffprobe.ProbeData
	operation := func() error {
		probeCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()
		var err error
		data, err = goffprobe.ProbeURL(probeCtx, path, "-loglevel", "error")
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0
	if err := backoff.Retry(operation, backoff.WithMaxRetries(b, 3)); err != nil {
		return Result{}, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbeData(data)
}

func parseProbeData(data *goffprobe.ProbeData) (Result, error) {
	videoStream := data.FirstVideoStream()
	if videoStream == nil {
		return Result{}, errors.New("ffprobe: no video stream found")
	}
	for _, codec := range unsupportedVideoCodecs {
		if strings.ToLower(videoStream.CodecName) == codec {
			return Result{}, fmt.Errorf("ffprobe: video codec %s is not supported", videoStream.CodecName)
		}
	}
	if data.Format == nil {
		return Result{}, errors.New("ffprobe: format information missing")
	}

	size, err := strconv.ParseInt(data.Format.Size, 10, 64)
	if err != nil {
		size = 0
	}

	duration, err := strconv.ParseFloat(videoStream.Duration, 64)
	if err != nil {
		duration = data.Format.DurationSeconds
	}

	res := Result{
		Duration:   duration,
		SizeBytes:  size,
		VideoCodec: videoStream.CodecName,
		Width:      videoStream.Width,
		Height:     videoStream.Height,
	}
	if audio := data.FirstAudioStream(); audio != nil {
		res.HasAudio = true
		res.AudioCodec = audio.CodecName
	}
	return res, nil
}
