package engine

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBgLoopRunsPassUntilStopped(t *testing.T) {
	l := NewBgLoop()
	var count int32

	go l.Run(2*time.Millisecond, func() { atomic.AddInt32(&count, 1) })
	l.Start()

	time.Sleep(20 * time.Millisecond)
	l.Stop()

	assert.Greater(t, atomic.LoadInt32(&count), int32(0))
}

func TestBgLoopStopBeforeStartNeverRunsPass(t *testing.T) {
	l := NewBgLoop()
	var ran int32

	go l.Run(time.Millisecond, func() { atomic.StoreInt32(&ran, 1) })

	// Stop requested before Start ever fires: Run must observe the
	// stopping transition at its head-of-loop wait and return without
	// invoking pass.
	l.Stop()

	assert.Equal(t, int32(0), atomic.LoadInt32(&ran))
}

func TestBgLoopStopIsIdempotentWithRespectToDone(t *testing.T) {
	l := NewBgLoop()
	go l.Run(time.Millisecond, func() {})
	l.Start()
	time.Sleep(5 * time.Millisecond)
	l.Stop()

	// Run has already returned and closed done; a second Stop call must
	// not hang since done is already closed.
	done := make(chan struct{})
	go func() {
		l.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second Stop call hung")
	}
}
