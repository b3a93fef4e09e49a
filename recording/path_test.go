package recording

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Serph91P/StreamVault-sub001/config"
)

func TestBuildEpisodePathMatchesTemplate(t *testing.T) {
	old := config.RecordingsRoot
	config.RecordingsRoot = "/rec"
	defer func() { config.RecordingsRoot = old }()

	startedAt := time.Date(2025, 2, 3, 20, 0, 0, 0, time.UTC)
	p := buildEpisodePath("alice", "Hello", startedAt, 1)

	require.Equal(t, "/rec/alice/Season 2025-02", p.dir)
	require.Equal(t, "alice - S202502E01 - Hello", p.stem)
	require.Equal(t, "/rec/alice/Season 2025-02/alice - S202502E01 - Hello.ts", p.rawPath())
	require.Equal(t, "/rec/alice/Season 2025-02/alice - S202502E01 - Hello_segments", p.segmentsDir())
}

func TestResolveExistingMediaPrefersMP4OverTS(t *testing.T) {
	dir := t.TempDir()
	p := episodePath{dir: dir, stem: "alice - S202502E01 - Hello"}

	tsPath := p.rawPath()
	require.NoError(t, os.WriteFile(tsPath, []byte("ts-data"), 0o644))
	mp4Path := filepath.Join(dir, p.stem+".mp4")
	require.NoError(t, os.WriteFile(mp4Path, []byte("mp4-data"), 0o644))

	media, rawExists := resolveExistingMedia(p)
	require.Equal(t, mp4Path, media)
	require.True(t, rawExists)
}

func TestResolveExistingMediaFallsBackToTSWhenNoMP4(t *testing.T) {
	dir := t.TempDir()
	p := episodePath{dir: dir, stem: "alice - S202502E01 - Hello"}
	tsPath := p.rawPath()
	require.NoError(t, os.WriteFile(tsPath, []byte("ts-data"), 0o644))

	media, rawExists := resolveExistingMedia(p)
	require.Equal(t, tsPath, media)
	require.True(t, rawExists)
}
