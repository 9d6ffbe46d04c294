package engine

import (
	"sync"
	"time"
)

// BgState is the lifecycle of a dedicated background goroutine (group
// commit, or the LSM merger). A plain bool is not enough: spec.md §9
// notes the source relies on the controller setting ready=false between
// notify and join, and that a notify arriving before the loop has entered
// its wait is lost — harmless there only because the loop-head check
// still observes the flag. BgState makes that loop-head check explicit
// and gives Stop() an unambiguous "I am now stopping" transition instead
// of a single overloaded bool.
type BgState int

const (
	BgStopped BgState = iota
	BgRunning
	BgStopping
)

// BgLoop drives a periodic background task (group commit's undo_log.write,
// or the LSM merger's drain pass) between a start signal and a cooperative
// stop. It is the Go translation of the mutex+condition-variable+bool
// pattern in original_source/src/lsm.cpp's group_commit/merge methods.
type BgLoop struct {
	mu    sync.Mutex
	cond  *sync.Cond
	state BgState
	done  chan struct{}
}

// NewBgLoop constructs a stopped loop.
func NewBgLoop() *BgLoop {
	l := &BgLoop{state: BgStopped, done: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Start marks the loop running and wakes any goroutine blocked in Run's
// initial wait.
func (l *BgLoop) Start() {
	l.mu.Lock()
	l.state = BgRunning
	l.mu.Unlock()
	l.cond.Broadcast()
}

// Stop requests the loop exit and blocks until Run has returned. Safe to
// call even if the loop's goroutine has not yet entered Run.
func (l *BgLoop) Stop() {
	l.mu.Lock()
	l.state = BgStopping
	l.mu.Unlock()
	l.cond.Broadcast()
	<-l.done
}

// Run blocks until Start is called, then invokes pass repeatedly, sleeping
// interval between calls, until Stop is requested; a Stop during that
// sleep wakes the loop without waiting out the interval. pass's final
// invocation (the controller's "issue a final write() on return", spec.md
// §4.4/§4.5) is the caller's responsibility after Run returns, not Run's.
func (l *BgLoop) Run(interval time.Duration, pass func()) {
	defer close(l.done)

	l.mu.Lock()
	for l.state == BgStopped {
		l.cond.Wait()
	}
	running := l.state == BgRunning
	l.mu.Unlock()

	if !running {
		return
	}

	for {
		l.mu.Lock()
		state := l.state
		l.mu.Unlock()
		if state == BgStopping {
			return
		}

		pass()

		deadline := time.Now().Add(interval)
		timer := time.AfterFunc(interval, func() {
			l.mu.Lock()
			l.cond.Broadcast()
			l.mu.Unlock()
		})
		l.mu.Lock()
		for l.state == BgRunning && time.Now().Before(deadline) {
			l.cond.Wait()
		}
		state = l.state
		l.mu.Unlock()
		timer.Stop()
		if state == BgStopping {
			return
		}
	}
}
