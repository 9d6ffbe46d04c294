package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReturnsScenarioDefaults(t *testing.T) {
	c := New()

	assert.Equal(t, 1, c.NumExecutors)
	assert.Equal(t, 1, c.NumParts)
	assert.Equal(t, 1000, c.NumTxns)
	assert.Equal(t, 1000, c.NumKeys)
	assert.Greater(t, c.Skew, 1.0)
}

func TestLoadWithNoConfigPathKeepsDefaultsAndParsesDurations(t *testing.T) {
	c, err := New().Load(&CommandLineArgs{})
	require.NoError(t, err)

	assert.Equal(t, 10_000_000, int(c.GCIntervalDur))
	assert.Equal(t, 20_000_000, int(c.LSMIntervalDur))
}

func TestLoadOverlaysIniFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nstore.ini")
	body := "[nstore]\nnum_parts = 4\nnum_txns = 5000\nskew = 1.2\ngc_interval = 5ms\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	c, err := New().Load(&CommandLineArgs{ConfigPath: path})
	require.NoError(t, err)

	assert.Equal(t, 4, c.NumParts)
	assert.Equal(t, 5000, c.NumTxns)
	assert.InDelta(t, 1.2, c.Skew, 1e-9)
	assert.Equal(t, "5ms", c.GCIntervalDur.String())
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nstore.ini")
	body := "[nstore]\ngc_interval = not-a-duration\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	_, err := New().Load(&CommandLineArgs{ConfigPath: path})
	assert.Error(t, err)
}
