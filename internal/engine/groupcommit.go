package engine

import (
	"time"

	"github.com/Legend147/nstore/internal/undolog"
)

// GroupCommit batches undo_log.Write calls at a fixed interval instead of
// flushing on every transaction. Shared by the WAL and LSM engines (both
// name it gc_ready / a dedicated thread in original_source).
type GroupCommit struct {
	loop     *BgLoop
	log      *undolog.Log
	interval time.Duration
	failures chan<- error
}

// NewGroupCommit builds a group-commit driver over log, flushing every
// interval once Start is called.
func NewGroupCommit(log *undolog.Log, interval time.Duration, failures chan<- error) *GroupCommit {
	return &GroupCommit{
		loop:     NewBgLoop(),
		log:      log,
		interval: interval,
		failures: failures,
	}
}

// Start launches the group-commit goroutine.
func (g *GroupCommit) Start() {
	go g.loop.Run(g.interval, g.pass)
	g.loop.Start()
}

func (g *GroupCommit) pass() {
	if err := g.log.Write(); err != nil {
		select {
		case g.failures <- err:
		default:
		}
	}
}

// Stop requests the goroutine exit, waits for it, and issues the final
// undo_log.Write the controller is responsible for (spec.md §4.4/§4.5
// shutdown sequence).
func (g *GroupCommit) Stop() error {
	g.loop.Stop()
	return g.log.Write()
}
