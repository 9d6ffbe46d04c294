package engine

import (
	"github.com/pkg/errors"

	"github.com/Legend147/nstore/internal/txn"
)

// Kind names which storage engine a partition is configured to run.
type Kind int

const (
	KindWAL Kind = iota
	KindLSM
	// KindSP names the "single-pointer" / baseline engine mentioned by
	// the spec's engine-kind enum. This module does not implement a
	// distinct SP engine: none of the spec's MODULE sections describe
	// one beyond naming it in the config surface (spec.md §4.6,
	// §6), so KindSP is accepted at the config layer and rejected with
	// ErrUnsupportedKind at construction time rather than silently
	// aliased to WAL or LSM.
	KindSP
)

func (k Kind) String() string {
	switch k {
	case KindWAL:
		return "wal"
	case KindLSM:
		return "lsm"
	case KindSP:
		return "sp"
	default:
		return "unknown"
	}
}

// ErrUnsupportedKind is returned when constructing an engine of KindSP.
var ErrUnsupportedKind = errors.New("engine: unsupported engine kind")

// Engine is the capability set every storage engine implements — the
// "tagged variant" spec.md §9 calls for instead of dynamic dispatch over
// a class hierarchy.
type Engine interface {
	Insert(t txn.Txn) error
	Read(t txn.Txn) ([]byte, error)
	Update(t txn.Txn) error
	Remove(t txn.Txn) error

	// Start brings up the engine's background threads (group commit,
	// and for LSM, the merger).
	Start()
	// Stop cooperatively shuts background threads down, flushing the
	// undo log a final time before returning.
	Stop()
	// Close releases the engine's pool (and, for LSM, its NVM table).
	// It does not close the undo log's file.
	Close() error
	// Failures delivers fatal background-thread errors (ErrLogIO) to
	// the coordinator.
	Failures() <-chan error
}
