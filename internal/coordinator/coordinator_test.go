package coordinator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Legend147/nstore/internal/config"
	"github.com/Legend147/nstore/internal/engine"
)

func testConfig(t *testing.T, kind engine.Kind) config.Config {
	t.Helper()
	cfg := *config.New()
	cfg.FSPath = filepath.Join(t.TempDir(), "data")
	cfg.NumExecutors = 2
	cfg.NumParts = 2
	cfg.NumKeys = 20
	cfg.NumTxns = 40
	cfg.SzValue = 8
	cfg.EngineKind = kind
	cfg.NVMTableSize = 1 << 20
	return cfg
}

func TestRunWALEngineReportsPositiveThroughput(t *testing.T) {
	co := New(testConfig(t, engine.KindWAL))

	report, err := co.Run(context.Background())
	require.NoError(t, err)
	assert.Greater(t, report.DurationSeconds, 0.0)
	assert.Greater(t, report.Throughput, 0.0)
}

func TestRunLSMEngineReportsPositiveThroughput(t *testing.T) {
	co := New(testConfig(t, engine.KindLSM))

	report, err := co.Run(context.Background())
	require.NoError(t, err)
	assert.Greater(t, report.DurationSeconds, 0.0)
	assert.Greater(t, report.Throughput, 0.0)
}

func TestRunRejectsUnsupportedEngineKind(t *testing.T) {
	co := New(testConfig(t, engine.KindSP))

	_, err := co.Run(context.Background())
	assert.ErrorIs(t, err, engine.ErrUnsupportedKind)
}

func TestRunWithTPCCBenchmark(t *testing.T) {
	cfg := testConfig(t, engine.KindWAL)
	cfg.BenchmarkKind = config.BenchmarkTPCC

	co := New(cfg)
	report, err := co.Run(context.Background())
	require.NoError(t, err)
	assert.Greater(t, report.DurationSeconds, 0.0)
}
