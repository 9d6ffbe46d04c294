package undolog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Legend147/nstore/internal/txn"
)

func TestPushThenWriteFlushesAndClearsQueue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "undo.log")
	l, err := New(path, Truncate)
	require.NoError(t, err)
	defer l.Close()

	l.Push(Entry{Txn: txn.New(1, txn.Insert, 10, []byte("v")), After: []byte("v")})
	l.Push(Entry{Txn: txn.New(2, txn.Update, 10, []byte("v2")), Before: []byte("v"), After: []byte("v2")})

	require.NoError(t, l.Write())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	assert.Empty(t, l.pending)
}

func TestWriteWithNothingQueuedIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "undo.log")
	l, err := New(path, Truncate)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Write())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())
}

func TestPushIsOrderedFIFO(t *testing.T) {
	path := filepath.Join(t.TempDir(), "undo.log")
	l, err := New(path, Truncate)
	require.NoError(t, err)
	defer l.Close()

	for i := int64(0); i < 5; i++ {
		l.Push(Entry{Txn: txn.New(i, txn.Insert, uint32(i), nil)})
	}

	require.Len(t, l.pending, 5)
	for i, e := range l.pending {
		assert.Equal(t, int64(i), e.Txn.ID)
	}
}

func TestCloseFlushesPendingEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "undo.log")
	l, err := New(path, Truncate)
	require.NoError(t, err)

	l.Push(Entry{Txn: txn.New(1, txn.Delete, 7, nil), Before: []byte("gone")})
	require.NoError(t, l.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestSetPathReopensBackingFile(t *testing.T) {
	dir := t.TempDir()
	l, err := New(filepath.Join(dir, "a.log"), Truncate)
	require.NoError(t, err)
	defer l.Close()

	newPath := filepath.Join(dir, "b.log")
	require.NoError(t, l.SetPath(newPath, Truncate))

	l.Push(Entry{Txn: txn.New(1, txn.Insert, 1, []byte("x")), After: []byte("x")})
	require.NoError(t, l.Write())

	info, err := os.Stat(newPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
