// Package workload implements the benchmark drivers described in
// spec.md §4.7: for a partition pid, a pre-generated Zipf key sequence
// and a pre-generated uniform write/read coin-flip sequence, replayed as
// Insert/Update/Read calls against an engine. The distribution
// generators themselves are out of scope (spec.md §1): math/rand's
// built-in Zipf generator stands in for them since nothing in the
// example pack ships a dedicated one worth adopting instead.
package workload

import (
	"context"
	"math/rand"

	"github.com/Legend147/nstore/internal/config"
	"github.com/Legend147/nstore/internal/engine"
	"github.com/Legend147/nstore/internal/txn"
)

// Benchmark is the interface the coordinator drives per partition.
type Benchmark interface {
	Load(ctx context.Context) error
	Execute(ctx context.Context) error
}

// rangeFor computes the partition's key range and per-partition
// transaction count, per spec.md §4.7.
func rangeFor(cfg *config.Config, pid int) (rangeSize, rangeOffset, rangeTxns int) {
	rangeSize = cfg.NumKeys / cfg.NumParts
	rangeOffset = pid * rangeSize
	rangeTxns = cfg.NumTxns / cfg.NumParts
	return
}

func constantValue(sz int, b byte) []byte {
	v := make([]byte, sz)
	for i := range v {
		v[i] = b
	}
	return v
}

// YCSB is a mixed read/update workload over a uniform-random key range,
// with Zipf-skewed key popularity.
type YCSB struct {
	cfg *config.Config
	pid int
	eng engine.Engine

	rangeSize   int
	rangeOffset int
	rangeTxns   int
	zipfSeq     []uint64
	uniformSeq  []float64
}

// NewYCSB builds the YCSB driver for partition pid against eng.
func NewYCSB(cfg *config.Config, pid int, eng engine.Engine) *YCSB {
	return &YCSB{cfg: cfg, pid: pid, eng: eng}
}

// Load pre-generates the Zipf and uniform sequences, then inserts a
// random value for every key of the partition's slice
// [range_offset, range_offset+range_size) of the key space [0, num_keys).
func (y *YCSB) Load(ctx context.Context) error {
	y.rangeSize, y.rangeOffset, y.rangeTxns = rangeFor(y.cfg, y.pid)

	src := rand.New(rand.NewSource(int64(y.pid) + 1))
	// math/rand.NewZipf requires s > 1; the spec allows any skew in
	// ℝ⁺, so values at or below 1 are nudged just above it rather than
	// panicking.
	skew := y.cfg.Skew
	if skew <= 1.0 {
		skew = 1.0 + 1e-6
	}
	zipf := rand.NewZipf(src, skew, 1.0, uint64(y.rangeSize-1))
	y.zipfSeq = make([]uint64, y.rangeTxns)
	y.uniformSeq = make([]float64, y.rangeTxns)
	for i := 0; i < y.rangeTxns; i++ {
		y.zipfSeq[i] = zipf.Uint64()
		y.uniformSeq[i] = src.Float64()
	}

	// Loader: each partition loads only its own slice of the shared
	// key space [0, num_keys).
	for i := 0; i < y.rangeSize; i++ {
		key := uint32(y.rangeOffset + i)
		value := randomValue(src, y.cfg.SzValue)
		t := txn.New(int64(i), txn.Insert, key, value)
		if err := y.eng.Insert(t); err != nil {
			return err
		}
	}
	return nil
}

// Execute replays the pre-generated sequences: for each i, key =
// range_offset + zipf[i] % range_size; update if uniform[i] < per_writes
// else read.
func (y *YCSB) Execute(ctx context.Context) error {
	updated := constantValue(y.cfg.SzValue, 'x')

	for i := 0; i < y.rangeTxns; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		key := uint32(y.rangeOffset) + uint32(y.zipfSeq[i])%uint32(y.rangeSize)
		if y.uniformSeq[i] < y.cfg.PerWrites {
			t := txn.New(int64(i), txn.Update, key, updated)
			_ = y.eng.Update(t) // logical errors are counted, not fatal (spec.md §7)
		} else {
			t := txn.New(int64(i), txn.Read, key, nil)
			_, _ = y.eng.Read(t)
		}
	}
	return nil
}

func randomValue(src *rand.Rand, sz int) []byte {
	v := make([]byte, sz)
	src.Read(v)
	return v
}

var _ Benchmark = (*YCSB)(nil)
