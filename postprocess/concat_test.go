package postprocess

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindCapturePartsReturnsSingleFileWhenNoSegments(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "raw.ts")
	require.NoError(t, os.WriteFile(raw, []byte("x"), 0o644))

	parts, err := findCaptureParts(raw)
	require.NoError(t, err)
	require.Equal(t, []string{raw}, parts)
}

func TestFindCapturePartsIncludesSegmentsDirNumbered(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "raw.ts")
	segDir := filepath.Join(dir, "raw_segments")
	require.NoError(t, os.Mkdir(segDir, 0o755))
	part1 := filepath.Join(segDir, "raw_part001.ts")
	part2 := filepath.Join(segDir, "raw_part002.ts")
	require.NoError(t, os.WriteFile(part1, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(part2, []byte("y"), 0o644))

	parts, err := findCaptureParts(raw)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	require.Contains(t, parts, part1)
	require.Contains(t, parts, part2)
}

func TestListSegmentsOrdersNumerically(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"x_part010.ts", "x_part002.ts", "x_part001.ts"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	parts, err := listSegments(dir)
	require.NoError(t, err)
	require.Len(t, parts, 3)
	require.Equal(t, filepath.Join(dir, "x_part001.ts"), parts[0])
	require.Equal(t, filepath.Join(dir, "x_part002.ts"), parts[1])
	require.Equal(t, filepath.Join(dir, "x_part010.ts"), parts[2])
}

func TestSegmentsDirForDerivesFromRawPath(t *testing.T) {
	require.Equal(t, "/rec/alice/raw_segments", segmentsDirFor("/rec/alice/raw.ts"))
}
