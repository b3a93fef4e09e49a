package ffprobe

import (
	"testing"

	"github.com/stretchr/testify/require"
	goffprobe "gopkg.in/vansante/go-ffprobe.v2"
)

func TestRejectsWhenNoVideoStream(t *testing.T) {
	_, err := parseProbeData(&goffprobe.ProbeData{
		Streams: []*goffprobe.Stream{{CodecType: "audio"}},
	})
	require.ErrorContains(t, err, "no video stream found")
}

func TestRejectsUnsupportedCodec(t *testing.T) {
	_, err := parseProbeData(&goffprobe.ProbeData{
		Streams: []*goffprobe.Stream{{CodecType: "video", CodecName: "mjpeg"}},
	})
	require.ErrorContains(t, err, "mjpeg is not supported")
}

func TestRejectsMissingFormat(t *testing.T) {
	_, err := parseProbeData(&goffprobe.ProbeData{
		Streams: []*goffprobe.Stream{{CodecType: "video", CodecName: "h264"}},
	})
	require.ErrorContains(t, err, "format information missing")
}

func TestParsesDurationAndAudioPresence(t *testing.T) {
	res, err := parseProbeData(&goffprobe.ProbeData{
		Streams: []*goffprobe.Stream{
			{CodecType: "video", CodecName: "h264", Duration: "120.5", Width: 1920, Height: 1080},
			{CodecType: "audio", CodecName: "aac"},
		},
		Format: &goffprobe.Format{Size: "1024"},
	})
	require.NoError(t, err)
	require.Equal(t, 120.5, res.Duration)
	require.True(t, res.HasAudio)
	require.Equal(t, "aac", res.AudioCodec)
	require.Equal(t, int64(1024), res.SizeBytes)
}
