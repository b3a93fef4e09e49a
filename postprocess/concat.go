package postprocess

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/Serph91P/StreamVault-sub001/config"
	"github.com/Serph91P/StreamVault-sub001/db"
	"github.com/Serph91P/StreamVault-sub001/modelerrors"
)

// segmentsDirFor returns the `<base>_segments` directory spec.md §4.8
// defines for a segmented capture, derived from the raw TS path.
func segmentsDirFor(rawPath string) string {
	ext := filepath.Ext(rawPath)
	return strings.TrimSuffix(rawPath, ext) + "_segments"
}

var partNumberRE = regexp.MustCompile(`_part(\d{3})\.ts$`)

// listSegments returns the *_partNNN.ts files in dir, sorted numerically by
// their zero-padded part number (Design Notes: "enforce numeric partNNN at
// creation time; sort numerically, not lexicographically" -- the zero
// padding already makes lexicographic and numeric order agree, but parsing
// the number explicitly guards against a future width change).
func listSegments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	type numbered struct {
		path string
		n    int
	}
	var found []numbered
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := partNumberRE.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n := 0
		fmt.Sscanf(m[1], "%d", &n)
		found = append(found, numbered{path: filepath.Join(dir, e.Name()), n: n})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })
	out := make([]string, len(found))
	for i, f := range found {
		out[i] = f.path
	}
	return out, nil
}

// Concat implements the segment_concatenation step (spec.md §4.8): when the
// capture directory suffix is `_segments` with numbered parts, build an
// ffconcat v1.0 list (escaped single quotes, names only, cwd = segment dir)
// and stream-copy them into the canonical TS path. A single-segment capture
// takes the fast path (rename instead of invoking ffmpeg at all).
func (h *Handlers) Concat(ctx context.Context, rec db.Recording) error {
	dir := segmentsDirFor(rec.RawPath)
	parts, err := listSegments(dir)
	if err != nil {
		return modelerrors.NonRetryable("postprocess: listing segments failed", err)
	}
	if len(parts) == 0 {
		return nil
	}

	if len(parts) == 1 {
		if err := os.Rename(parts[0], rec.RawPath); err != nil {
			return modelerrors.Retryable("postprocess: fast-path segment rename failed", err)
		}
		return h.finishSegments(ctx, rec, dir)
	}

	listPath := filepath.Join(dir, "concat.ffconcat")
	var buf bytes.Buffer
	buf.WriteString("ffconcat version 1.0\n")
	for _, p := range parts {
		fmt.Fprintf(&buf, "file '%s'\n", escapeSingleQuotes(filepath.Base(p)))
	}
	if err := os.WriteFile(listPath, buf.Bytes(), 0o644); err != nil {
		return modelerrors.Retryable("postprocess: writing ffconcat list failed", err)
	}
	defer os.Remove(listPath)

	ctx, cancel := context.WithTimeout(ctx, config.ConcatTimeout)
	defer cancel()

	stderr, err := runFFmpeg(ctx, dir, "-y", "-f", "concat", "-safe", "0", "-i", filepath.Base(listPath), "-c", "copy", rec.RawPath)
	if err != nil {
		return modelerrors.Retryable(fmt.Sprintf("postprocess: concat failed: %s", stderr), err)
	}

	for _, p := range parts {
		_ = os.Remove(p)
	}
	_ = os.Remove(listPath)
	return h.finishSegments(ctx, rec, dir)
}

// finishSegments removes the now-empty segments directory and records that
// on StreamMetadata.
func (h *Handlers) finishSegments(ctx context.Context, rec db.Recording, dir string) error {
	entries, err := os.ReadDir(dir)
	if err == nil && len(entries) == 0 {
		_ = os.Remove(dir)
	}
	return h.gw.SetSegmentsRemoved(ctx, rec.ID, true)
}

func escapeSingleQuotes(s string) string {
	return strings.ReplaceAll(s, "'", `'\''`)
}

// findCaptureParts is retained for the cleanup step: it returns every raw
// input the concat/fast-path steps could have consumed, so cleanup removes
// whichever of them is still present.
func findCaptureParts(rawPath string) ([]string, error) {
	var out []string
	if _, err := os.Stat(rawPath); err == nil {
		out = append(out, rawPath)
	}
	dir := segmentsDirFor(rawPath)
	parts, err := listSegments(dir)
	if err != nil {
		return out, err
	}
	return append(out, parts...), nil
}
