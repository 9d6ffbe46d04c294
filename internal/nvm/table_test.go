package nvm

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Legend147/nstore/internal/record"
)

func TestAppendThenReadRoundTripsCompressedValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usertable")
	tbl, err := Open(path, 1<<20)
	require.NoError(t, err)
	defer tbl.Close()

	rec := record.Record{Key: 7, Value: []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")}
	addr, err := tbl.Append(rec)
	require.NoError(t, err)

	got, err := tbl.Read(addr)
	require.NoError(t, err)
	assert.Equal(t, rec.Key, got.Key)
	assert.Equal(t, rec.Value, got.Value)
}

func TestAppendEmptyValueRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usertable")
	tbl, err := Open(path, 1<<20)
	require.NoError(t, err)
	defer tbl.Close()

	addr, err := tbl.Append(record.Record{Key: 1, Value: nil})
	require.NoError(t, err)

	got, err := tbl.Read(addr)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), got.Key)
	assert.Empty(t, got.Value)
}

func TestAppendIncompressibleValueRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usertable")
	tbl, err := Open(path, 1<<20)
	require.NoError(t, err)
	defer tbl.Close()

	// Short/high-entropy values report n==0 from CompressBlock (not
	// compressible) and must fall back to verbatim storage.
	for _, v := range [][]byte{[]byte("v1"), []byte("one"), []byte("two")} {
		addr, err := tbl.Append(record.Record{Key: 1, Value: v})
		require.NoError(t, err)

		got, err := tbl.Read(addr)
		require.NoError(t, err)
		assert.Equal(t, v, got.Value)
	}
}

func TestAppendAssignsDistinctAddresses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usertable")
	tbl, err := Open(path, 1<<20)
	require.NoError(t, err)
	defer tbl.Close()

	a1, err := tbl.Append(record.Record{Key: 1, Value: []byte("one")})
	require.NoError(t, err)
	a2, err := tbl.Append(record.Record{Key: 2, Value: []byte("two")})
	require.NoError(t, err)

	assert.NotEqual(t, a1, a2)

	r1, err := tbl.Read(a1)
	require.NoError(t, err)
	r2, err := tbl.Read(a2)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), r1.Value)
	assert.Equal(t, []byte("two"), r2.Value)
}
