// Package pmem implements the persistent-memory pool: a memory-mapped file
// that hands out 8-byte-aligned reservations, publishes them durable on
// Activate, and exposes a fixed-size static area of root pointers that is
// the only entry point into the pool after a restart.
//
// Reservation/activation is grounded on original_source/misc/linux-examples
// /plist.cpp's pmemalloc_reserve/pmemalloc_activate contract. The mapping
// itself is grounded on the pack's mmap-based reference pool
// (other_examples/.../persistent_memory.go), using golang.org/x/sys/unix
// instead of the frozen syscall package.
package pmem

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/Legend147/nstore/logger"
)

// MaxPtrs is the number of root slots in the static area (spec requires
// MAX_PTRS >= 128).
const MaxPtrs = 128

var (
	// ErrPoolOpen is returned when the backing file cannot be created,
	// sized, or mapped.
	ErrPoolOpen = errors.New("pmem: pool open failed")
	// ErrAlloc is returned when a reservation does not fit in the
	// remaining heap space.
	ErrAlloc = errors.New("pmem: out of pool space")
	// ErrCorruptRoot names a static area whose Init flag is not set,
	// i.e. a pool that never finished first-time population. Open does
	// not return it; callers check StaticArea().Init() themselves.
	ErrCorruptRoot = errors.New("pmem: static area not initialized")
)

const (
	magicOffset           = 0  // uint32 magic
	initOffset            = 8  // uint32 init flag
	ptrsOffset            = 16 // MaxPtrs * 8 bytes of root pointers
	staticAreaSize        = ptrsOffset + MaxPtrs*8
	heapStart             = staticAreaSize
	poolMagic      uint32 = 0x706d656d // "pmem"
)

// Ptr is an offset into the pool's mapped region. The zero value means nil;
// it is never a valid allocation since offset 0 falls inside the header.
type Ptr uintptr

// Pool is a memory-mapped persistent heap with reserve/activate semantics.
type Pool struct {
	path string
	size int64
	data []byte
	file *os.File

	mu      sync.Mutex
	heapTop int64        // next free offset, bump allocator
	pending map[Ptr]int  // reserved-but-not-activated: ptr -> size
	free    []freeRegion // reclaimed regions available for reuse
}

type freeRegion struct {
	offset Ptr
	size   int64
}

// Open creates or opens the pool file at path, truncating it up to size if
// necessary, and maps it PROT_READ|PROT_WRITE/MAP_SHARED.
func Open(path string, size int64) (*Pool, error) {
	if size < staticAreaSize {
		size = staticAreaSize
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrap(ErrPoolOpen, err.Error())
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(ErrPoolOpen, err.Error())
	}
	if info.Size() < size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, errors.Wrap(ErrPoolOpen, err.Error())
		}
	} else {
		size = info.Size()
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(ErrPoolOpen, err.Error())
	}

	p := &Pool{
		path:    path,
		size:    size,
		data:    data,
		file:    f,
		heapTop: heapStart,
		pending: make(map[Ptr]int),
	}

	magic := binary.LittleEndian.Uint32(data[magicOffset:])
	if magic != poolMagic {
		binary.LittleEndian.PutUint32(data[magicOffset:], poolMagic)
		if err := p.msync(0, staticAreaSize); err != nil {
			p.Close()
			return nil, err
		}
		logger.Infof("pmem: initialized new pool at %s (%d bytes)", path, size)
	} else {
		logger.Infof("pmem: opened existing pool at %s (%d bytes)", path, size)
	}

	return p, nil
}

// Size returns the total mapped size of the pool.
func (p *Pool) Size() int64 { return p.size }

func (p *Pool) msync(offset, length int) error {
	if offset+length > len(p.data) {
		length = len(p.data) - offset
	}
	return unix.Msync(p.data[offset:offset+length], unix.MS_SYNC)
}

// Reserve allocates size bytes, 8-byte aligned, returning a pool offset
// that is not yet durable: it is reclaimed if the process restarts before
// Activate is called.
func (p *Pool) Reserve(size int) (Ptr, error) {
	if size <= 0 {
		size = 1
	}
	aligned := (int64(size) + 7) &^ 7

	p.mu.Lock()
	defer p.mu.Unlock()

	if off, ok := p.takeFreeLocked(aligned); ok {
		p.pending[off] = int(aligned)
		return off, nil
	}

	if p.heapTop+aligned > p.size {
		return 0, errors.Wrap(ErrAlloc, "reserve exceeds pool size")
	}

	off := Ptr(p.heapTop)
	p.heapTop += aligned
	p.pending[off] = int(aligned)
	return off, nil
}

func (p *Pool) takeFreeLocked(size int64) (Ptr, bool) {
	for i, r := range p.free {
		if r.size >= size {
			p.free = append(p.free[:i], p.free[i+1:]...)
			if r.size > size {
				p.free = append(p.free, freeRegion{offset: r.offset + Ptr(size), size: r.size - size})
			}
			return r.offset, true
		}
	}
	return 0, false
}

// Activate publishes ptr as durable. The caller must have already
// activated every pool address referenced from *ptr (spec invariant: a
// parent must never be activated before its children). Idempotent.
func (p *Pool) Activate(ptr Ptr) error {
	p.mu.Lock()
	size, pending := p.pending[ptr]
	if pending {
		delete(p.pending, ptr)
	}
	p.mu.Unlock()

	if !pending {
		// Either already activated, or not a reservation from this
		// pool instance — both are treated as a no-op per the
		// idempotence requirement.
		return nil
	}

	return p.msync(int(ptr), size)
}

// FreeAbsolute reclaims a reserved or activated allocation of size bytes
// starting at ptr, making the region available to future Reserve calls.
func (p *Pool) FreeAbsolute(ptr Ptr, size int) error {
	aligned := (int64(size) + 7) &^ 7

	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.pending, ptr)
	p.free = append(p.free, freeRegion{offset: ptr, size: aligned})
	return nil
}

// Bytes returns the raw backing slice at offset for length bytes. Callers
// use this to read/write pool-resident data directly; it is the Go
// analogue of dereferencing a pmem pointer.
func (p *Pool) Bytes(ptr Ptr, length int) []byte {
	return p.data[int(ptr) : int(ptr)+length]
}

// StaticArea is the pool's fixed-layout root-pointer region.
type StaticArea struct {
	pool *Pool
}

// StaticArea returns the pool's static area accessor.
func (p *Pool) StaticArea() *StaticArea {
	return &StaticArea{pool: p}
}

// Init reports whether the static area has completed first-time
// population (the final durable step of a cold start).
func (s *StaticArea) Init() bool {
	return binary.LittleEndian.Uint32(s.pool.data[initOffset:]) == 1
}

// SetInit marks the static area populated. This must be the last root
// write of a cold start.
func (s *StaticArea) SetInit() error {
	binary.LittleEndian.PutUint32(s.pool.data[initOffset:], 1)
	return s.pool.msync(initOffset, 4)
}

// Root returns the root pointer stored in slot i.
func (s *StaticArea) Root(i int) Ptr {
	if i < 0 || i >= MaxPtrs {
		panic("pmem: root slot out of range")
	}
	off := ptrsOffset + i*8
	return Ptr(binary.LittleEndian.Uint64(s.pool.data[off:]))
}

// SetRoot durably stores ptr in root slot i. Every object ptr transitively
// references must already be activated (spec invariant).
func (s *StaticArea) SetRoot(i int, ptr Ptr) error {
	if i < 0 || i >= MaxPtrs {
		panic("pmem: root slot out of range")
	}
	off := ptrsOffset + i*8
	binary.LittleEndian.PutUint64(s.pool.data[off:], uint64(ptr))
	return s.pool.msync(off, 8)
}

// Close flushes and unmaps the pool.
func (p *Pool) Close() error {
	if err := unix.Msync(p.data, unix.MS_SYNC); err != nil {
		logger.Warnf("pmem: msync on close failed: %v", err)
	}
	if err := unix.Munmap(p.data); err != nil {
		return errors.Wrap(err, "pmem: munmap failed")
	}
	return p.file.Close()
}
