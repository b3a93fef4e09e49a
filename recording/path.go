// Package recording is the Recording Lifecycle Manager (C8): it owns the
// start/stop state machine for captures, derives the on-disk path template
// (spec.md §4.7/§6), and drives the per-recording monitor loop that feeds
// progress back into the tracker and, on completion, into the post-processing
// DAG. Grounded on the teacher's balancer lifecycle (start/stop with a
// capacity guard) and on lyrebirdaudio-go's stream-manager path conventions.
package recording

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Serph91P/StreamVault-sub001/config"
	"github.com/Serph91P/StreamVault-sub001/ids"
)

// episodePath is the filename stem (without extension) spec.md §4.7 defines:
//
//	Season {YYYY-MM}/{streamer} - S{YYYYMM}E{episode:02d} - {title}.ts
type episodePath struct {
	dir  string
	stem string
}

func buildEpisodePath(streamerUsername, title string, startedAt time.Time, episode int) episodePath {
	year, month, _ := startedAt.Date()
	seasonLabel := fmt.Sprintf("Season %04d-%02d", year, int(month))
	yyyymm := year*100 + int(month)
	stem := fmt.Sprintf("%s - S%06dE%02d - %s", ids.SanitizeComponent(streamerUsername), yyyymm, episode, ids.SanitizeComponent(title))
	dir := ids.JoinSafe(config.RecordingsRoot, streamerUsername, seasonLabel)
	return episodePath{dir: dir, stem: ids.SanitizeComponent(stem)}
}

// rawPath returns the path the capture tool writes to during recording.
func (p episodePath) rawPath() string {
	return filepath.Join(p.dir, p.stem+".ts")
}

// segmentsDir returns the directory a segmented capture writes
// *_partNNN.ts files into, per spec.md §6's on-disk layout.
func (p episodePath) segmentsDir() string {
	return filepath.Join(p.dir, p.stem+"_segments")
}

// resolveExistingMedia applies the path-resolution tie-break spec.md §4.7
// requires: prefer an already-remuxed MP4 over the raw TS when both exist
// (e.g. after a crash mid-cleanup), and report which one plus whether the
// raw TS is still around to remove.
func resolveExistingMedia(p episodePath) (mediaPath string, rawExists bool) {
	mp4 := filepath.Join(p.dir, p.stem+".mp4")
	ts := p.rawPath()

	mp4Info, mp4Err := os.Stat(mp4)
	_, tsErr := os.Stat(ts)
	rawExists = tsErr == nil

	if mp4Err == nil && mp4Info.Size() > 0 {
		return mp4, rawExists
	}
	return ts, rawExists
}

// ensureDir creates the season directory the recording will live in.
func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
