package subprocess

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRotatingWriterRotatesOnSizeLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.log")
	w, err := NewRotatingWriter(path, 16, 2)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("0123456789"))
	require.NoError(t, err)
	_, err = w.Write([]byte("0123456789"))
	require.NoError(t, err)

	_, err = os.Stat(path + ".1")
	require.NoError(t, err)
}

func TestRotatingWriterPrunesBeyondMaxFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.log")
	w, err := NewRotatingWriter(path, 8, 1)
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 3; i++ {
		_, err = w.Write([]byte("123456789"))
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	rotated := 0
	for _, e := range entries {
		if filepath.Ext(e.Name()) != "" && e.Name() != "capture.log" {
			rotated++
		}
	}
	require.LessOrEqual(t, rotated, 1)
}
