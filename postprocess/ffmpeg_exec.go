package postprocess

import (
	"bytes"
	"context"
	"os/exec"
)

// runFFmpeg runs ffmpeg with args in dir (empty dir means the current
// working directory) and returns captured stderr for error reporting. Used
// by steps that must invoke ffmpeg with paths relative to a specific
// directory, notably concat (spec.md §4.8: "referencing segments by name
// only (cwd = segment dir)").
func runFFmpeg(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}
