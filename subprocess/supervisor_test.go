package subprocess

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFFmpegTimeExtractsDuration(t *testing.T) {
	secs, ok := parseFFmpegTime("frame=  120 fps= 30 q=-1.0 size=    1024kB time=00:01:05.50 bitrate= 128.0kbits/s")
	require.True(t, ok)
	require.InDelta(t, 65.5, secs, 0.001)
}

func TestParseFFmpegTimeIgnoresNonMatchingLines(t *testing.T) {
	_, ok := parseFFmpegTime("ffmpeg version 6.0 Copyright (c) 2000-2023")
	require.False(t, ok)
}

func TestSplitLinesKeepsPartialLineAsCarry(t *testing.T) {
	lines, rest := splitLines([]byte("line one\nline two\npartial"))
	require.Equal(t, []string{"line one", "line two"}, lines)
	require.Equal(t, "partial", string(rest))
}

func TestBuildFFmpegArgsDefaultsToCopyCodec(t *testing.T) {
	args := buildFFmpegArgs("https://example.com/stream.m3u8", "/out/file.ts", "", nil)
	require.Contains(t, args, "copy")
	require.Contains(t, args, "/out/file.ts")
}

func TestBuildFFmpegArgsUsesRequestedCodec(t *testing.T) {
	args := buildFFmpegArgs("https://example.com/stream.m3u8", "/out/file.ts", "1080p60", []string{"h264"})
	require.Contains(t, args, "h264")
	require.Contains(t, args, "1080p60")
}

func TestIsActiveFalseForUnknownProcessID(t *testing.T) {
	s := New(t.TempDir())
	require.False(t, s.IsActive("does-not-exist"))
}

func TestTerminateUnknownProcessIsNoop(t *testing.T) {
	s := New(t.TempDir())
	require.True(t, s.Terminate("does-not-exist"))
}
