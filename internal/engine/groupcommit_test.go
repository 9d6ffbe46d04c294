package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Legend147/nstore/internal/txn"
	"github.com/Legend147/nstore/internal/undolog"
)

func TestGroupCommitFlushesPendingEntriesPeriodically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gc.log")
	log, err := undolog.New(path, undolog.Truncate)
	require.NoError(t, err)

	failures := make(chan error, 1)
	gc := NewGroupCommit(log, 5*time.Millisecond, failures)

	log.Push(undolog.Entry{Txn: txn.New(1, txn.Insert, 1, []byte("v")), After: []byte("v")})

	gc.Start()
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, gc.Stop())

	select {
	case err := <-failures:
		t.Fatalf("unexpected group-commit failure: %v", err)
	default:
	}
}

func TestGroupCommitStopFlushesFinalBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gc2.log")
	log, err := undolog.New(path, undolog.Truncate)
	require.NoError(t, err)

	failures := make(chan error, 1)
	gc := NewGroupCommit(log, time.Hour, failures) // long enough that Stop must do the flush

	gc.Start()
	log.Push(undolog.Entry{Txn: txn.New(1, txn.Insert, 1, []byte("v")), After: []byte("v")})
	require.NoError(t, gc.Stop())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
