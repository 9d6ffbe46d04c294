// Package engine holds the types shared by the WAL and LSM engines: the
// common error sentinels, the capability interface the coordinator
// dispatches against, and the group-commit / background-loop state
// machine both engines drive their dedicated threads with.
package engine

import (
	"github.com/pkg/errors"

	"github.com/Legend147/nstore/internal/pmem"
	"github.com/Legend147/nstore/internal/undolog"
)

var (
	// ErrPoolOpen is returned when the pool backing an engine could not
	// be opened or mapped. It is the same value as pmem.ErrPoolOpen.
	ErrPoolOpen = pmem.ErrPoolOpen
	// ErrAlloc is returned when a pool allocation fails; the current
	// transaction fails but the engine continues.
	ErrAlloc = errors.New("engine: allocation failed")
	// ErrDuplicateKey is returned by Insert when the key is already
	// present.
	ErrDuplicateKey = errors.New("engine: duplicate key")
	// ErrNotFound is returned by Update/Remove when the key is absent.
	ErrNotFound = errors.New("engine: key not found")
	// ErrLogIO is returned when the undo log fails to flush; fatal to
	// the engine. It is the same value as undolog.ErrLogIO.
	ErrLogIO = undolog.ErrLogIO
	// ErrCorruptRoot names a static area whose init flag was never set.
	// No code path returns it: the coordinator treats an unset flag as a
	// cold start and sets it.
	ErrCorruptRoot = errors.New("engine: corrupt root pointer")
)
