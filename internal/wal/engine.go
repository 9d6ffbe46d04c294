// Package wal implements the primary in-place storage engine: updates
// are written directly into the pool-resident table, with an undo log
// bounding the durability window. Grounded on
// original_source/src/common/wal.h (table_access rwlock, group_commit)
// and the teacher's RedoLogManager/UndoLogManager pairing for the
// group-commit shape (server/innodb/manager).
package wal

import (
	"sync"
	"time"

	"github.com/Legend147/nstore/internal/engine"
	"github.com/Legend147/nstore/internal/pmem"
	"github.com/Legend147/nstore/internal/txn"
	"github.com/Legend147/nstore/internal/undolog"
	"github.com/Legend147/nstore/logger"
)

// Config controls the WAL engine's durability cadence.
type Config struct {
	FSPath     string
	GCInterval time.Duration
	SzValue    int
}

// slot is a pool-resident record: ptr/len describe the live pool
// allocation backing the value, so reads and in-place updates go
// through the pool rather than a volatile copy.
type slot struct {
	key uint32
	ptr pmem.Ptr
	len int
}

// Engine is the write-ahead-log storage engine.
type Engine struct {
	pool *pmem.Pool

	mu    sync.RWMutex // table_access
	table []slot
	index map[uint32]int // key -> index into table

	log *undolog.Log
	gc  *engine.GroupCommit

	failures chan error
}

// New constructs a WAL engine over pool, opening its undo log at
// cfg.FSPath/log.
func New(pool *pmem.Pool, cfg Config) (*Engine, error) {
	log, err := undolog.New(cfg.FSPath+"/log", undolog.Truncate)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		pool:     pool,
		index:    make(map[uint32]int),
		log:      log,
		failures: make(chan error, 1),
	}
	e.gc = engine.NewGroupCommit(log, cfg.GCInterval, e.failures)
	return e, nil
}

// Insert fails with ErrDuplicateKey if key is already present; otherwise
// it reserves and activates a pool allocation for the value, appends the
// slot to the table, indexes it, and pushes an undo entry with only an
// after-image.
func (e *Engine) Insert(t txn.Txn) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.index[t.Key]; ok {
		return engine.ErrDuplicateKey
	}

	ptr, err := e.pool.Reserve(len(t.Value))
	if err != nil {
		return engine.ErrAlloc
	}
	copy(e.pool.Bytes(ptr, len(t.Value)), t.Value)
	if err := e.pool.Activate(ptr); err != nil {
		return engine.ErrAlloc
	}

	e.index[t.Key] = len(e.table)
	e.table = append(e.table, slot{key: t.Key, ptr: ptr, len: len(t.Value)})
	e.log.Push(undolog.Entry{Txn: t, Before: nil, After: t.Value})
	return nil
}

// Read returns the value for key, or nil if absent. The returned slice is
// read directly out of the pool.
func (e *Engine) Read(t txn.Txn) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	i, ok := e.index[t.Key]
	if !ok {
		return nil, nil
	}
	s := e.table[i]
	return e.pool.Bytes(s.ptr, s.len), nil
}

// Update fails with ErrNotFound if key is absent; otherwise it captures
// the before-image, writes the new value in place when its length equals
// the current value's, or reserves a fresh allocation otherwise, and pushes both
// images to the undo log.
func (e *Engine) Update(t txn.Txn) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i, ok := e.index[t.Key]
	if !ok {
		return engine.ErrNotFound
	}

	s := e.table[i]
	before := append([]byte(nil), e.pool.Bytes(s.ptr, s.len)...)

	if len(t.Value) == s.len {
		copy(e.pool.Bytes(s.ptr, s.len), t.Value)
	} else {
		newPtr, err := e.pool.Reserve(len(t.Value))
		if err != nil {
			return engine.ErrAlloc
		}
		copy(e.pool.Bytes(newPtr, len(t.Value)), t.Value)
		if err := e.pool.Activate(newPtr); err != nil {
			return engine.ErrAlloc
		}
		if err := e.pool.FreeAbsolute(s.ptr, s.len); err != nil {
			logger.Warnf("wal: failed to free old allocation for key %d: %v", t.Key, err)
		}
		e.table[i] = slot{key: t.Key, ptr: newPtr, len: len(t.Value)}
	}

	e.log.Push(undolog.Entry{Txn: t, Before: before, After: t.Value})
	return nil
}

// Remove fails with ErrNotFound if key is absent; otherwise it frees the
// pool allocation, unlinks the record from the index, and pushes a
// before-only undo entry.
func (e *Engine) Remove(t txn.Txn) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i, ok := e.index[t.Key]
	if !ok {
		return engine.ErrNotFound
	}

	s := e.table[i]
	before := append([]byte(nil), e.pool.Bytes(s.ptr, s.len)...)
	if err := e.pool.FreeAbsolute(s.ptr, s.len); err != nil {
		logger.Warnf("wal: failed to free allocation for key %d: %v", t.Key, err)
	}
	delete(e.index, t.Key)
	e.log.Push(undolog.Entry{Txn: t, Before: before, After: nil})
	return nil
}

// Start launches the group-commit goroutine.
func (e *Engine) Start() {
	logger.Infof("wal: starting group commit")
	e.gc.Start()
}

// Stop shuts the group-commit goroutine down and issues a final flush.
func (e *Engine) Stop() {
	if err := e.gc.Stop(); err != nil {
		logger.Errorf("wal: final undo log flush failed: %v", err)
	}
}

// Close releases the engine's pool.
func (e *Engine) Close() error {
	return e.pool.Close()
}

// Failures delivers fatal background-thread errors to the coordinator.
func (e *Engine) Failures() <-chan error { return e.failures }

var _ engine.Engine = (*Engine)(nil)
