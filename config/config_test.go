package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesEnvOverride(t *testing.T) {
	defer func() { MaxConcurrentRecordings = 8 }()

	require.NoError(t, os.Setenv("STREAMVAULT_MAX_CONCURRENT_RECORDINGS", "3"))
	defer os.Unsetenv("STREAMVAULT_MAX_CONCURRENT_RECORDINGS")

	require.NoError(t, Load(""))
	require.Equal(t, 3, MaxConcurrentRecordings)
}

func TestLoadAppliesDurationOverride(t *testing.T) {
	defer func() { ReaperInterval = 30 * time.Second }()

	require.NoError(t, os.Setenv("STREAMVAULT_REAPER_INTERVAL", "45s"))
	defer os.Unsetenv("STREAMVAULT_REAPER_INTERVAL")

	require.NoError(t, Load(""))
	require.Equal(t, 45*time.Second, ReaperInterval)
}

func TestLoadWithoutOverridesKeepsDefaults(t *testing.T) {
	before := MaxConcurrentRecordings
	require.NoError(t, Load(""))
	require.Equal(t, before, MaxConcurrentRecordings)
}
