// Package nvm implements the NVM-resident table the LSM engine merges
// passive memtables into: an append-only sequence of records backed by a
// memory-mapped file, compressed with LZ4 on the way in. Grounded on
// original_source/src/lsm.cpp's table.push_back_record (returns the
// address the caller stores in nvm_index) and mapped at a fixed path
// per spec.md §6 (<fs_path>/usertable).
package nvm

import (
	"encoding/binary"

	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"

	"github.com/Legend147/nstore/internal/pmem"
	"github.com/Legend147/nstore/internal/record"
)

// Addr is the offset of a record within the table file. It is stable
// across restarts since it is a file offset, not a process address.
type Addr = pmem.Ptr

// storage flags, stored as the 13th header byte.
const (
	flagCompressed byte = 0
	// flagStored marks a value written verbatim: CompressBlock reports
	// n==0 for incompressible input (small or high-entropy values, e.g.
	// YCSB's random load values) rather than storing anything, so those
	// values are kept as-is instead of being fed to UncompressBlock.
	flagStored byte = 1
)

// Table is an append-only, LZ4-compressed record log backed by a
// pmem.Pool.
type Table struct {
	pool *pmem.Pool
}

// Open maps (or creates) the NVM table file at path, sized for size
// bytes of record storage.
func Open(path string, size int64) (*Table, error) {
	p, err := pmem.Open(path, size)
	if err != nil {
		return nil, err
	}
	return &Table{pool: p}, nil
}

// Append compresses rec.Value with LZ4, durably writes key + compressed
// length + compressed bytes, and returns the address of the new entry.
// If the value is incompressible, it is stored verbatim instead (see
// flagStored).
func (t *Table) Append(rec record.Record) (Addr, error) {
	compressed := make([]byte, lz4.CompressBlockBound(len(rec.Value)))
	n, err := compressRecord(rec.Value, compressed)
	if err != nil {
		return 0, errors.Wrap(err, "nvm: lz4 compress failed")
	}

	flag := flagCompressed
	body := compressed[:n]
	if n == 0 && len(rec.Value) > 0 {
		flag = flagStored
		body = rec.Value
	}

	// layout: key(4) | rawLen(4) | bodyLen(4) | flag(1) | body bytes
	buf := make([]byte, 13+len(body))
	binary.LittleEndian.PutUint32(buf[0:], rec.Key)
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(rec.Value)))
	binary.LittleEndian.PutUint32(buf[8:], uint32(len(body)))
	buf[12] = flag
	copy(buf[13:], body)

	ptr, err := t.pool.Reserve(len(buf))
	if err != nil {
		return 0, err
	}
	copy(t.pool.Bytes(ptr, len(buf)), buf)
	if err := t.pool.Activate(ptr); err != nil {
		return 0, err
	}
	return ptr, nil
}

func compressRecord(src, dst []byte) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}
	var c lz4.Compressor
	return c.CompressBlock(src, dst)
}

// Read returns the record stored at addr, decompressing it unless it was
// stored verbatim (flagStored).
func (t *Table) Read(addr Addr) (record.Record, error) {
	header := t.pool.Bytes(addr, 13)
	key := binary.LittleEndian.Uint32(header[0:])
	rawLen := binary.LittleEndian.Uint32(header[4:])
	bodyLen := binary.LittleEndian.Uint32(header[8:])
	flag := header[12]

	if rawLen == 0 {
		return record.Record{Key: key, Value: nil}, nil
	}

	body := t.pool.Bytes(addr+13, int(bodyLen))

	if flag == flagStored {
		value := append([]byte(nil), body...)
		return record.Record{Key: key, Value: value}, nil
	}

	raw := make([]byte, rawLen)
	n, err := lz4.UncompressBlock(body, raw)
	if err != nil {
		return record.Record{}, errors.Wrap(err, "nvm: lz4 decompress failed")
	}
	return record.Record{Key: key, Value: raw[:n]}, nil
}

// Close unmaps the table file.
func (t *Table) Close() error {
	return t.pool.Close()
}
