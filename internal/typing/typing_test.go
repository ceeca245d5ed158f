// ABOUTME: Tests for the typing presence controller
// ABOUTME: Validates immediate fire, interval refire, silent token, idempotent cleanup

package typing

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestController_StartFiresImmediately(t *testing.T) {
	var fires atomic.Int32
	c := NewController(Options{
		Notify:   func() { fires.Add(1) },
		Interval: time.Hour,
	})
	defer c.Cleanup()

	c.Start()
	assert.Equal(t, int32(1), fires.Load())
}

func TestController_RefiresOnInterval(t *testing.T) {
	var fires atomic.Int32
	c := NewController(Options{
		Notify:   func() { fires.Add(1) },
		Interval: 15 * time.Millisecond,
	})
	defer c.Cleanup()

	c.Start()
	time.Sleep(50 * time.Millisecond)
	assert.GreaterOrEqual(t, fires.Load(), int32(3))
}

func TestController_CleanupStopsLoop(t *testing.T) {
	var fires atomic.Int32
	c := NewController(Options{
		Notify:   func() { fires.Add(1) },
		Interval: 10 * time.Millisecond,
	})

	c.Start()
	c.Cleanup()
	before := fires.Load()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, before, fires.Load(), "no fires after cleanup")
}

func TestController_CleanupIdempotent(t *testing.T) {
	c := NewController(Options{Notify: func() {}, Interval: time.Hour})
	c.Start()

	c.Cleanup()
	c.Cleanup()
	c.Cleanup()
	assert.True(t, c.CleanedUp())
}

func TestController_StartAfterCleanupIsNoOp(t *testing.T) {
	var fires atomic.Int32
	c := NewController(Options{
		Notify:   func() { fires.Add(1) },
		Interval: time.Hour,
	})

	c.Cleanup()
	c.Start()
	assert.Equal(t, int32(0), fires.Load())
}

func TestController_SilentTokenKeepsLoopAlive(t *testing.T) {
	var fires atomic.Int32
	c := NewController(Options{
		Notify:      func() { fires.Add(1) },
		Interval:    10 * time.Millisecond,
		SilentToken: "<silent>",
	})
	defer c.Cleanup()

	c.Start()
	c.NotifyReplyStart("<silent>")
	time.Sleep(35 * time.Millisecond)
	assert.GreaterOrEqual(t, fires.Load(), int32(2), "silent reply must not stop typing")
}

func TestController_ReplyStartStopsLoop(t *testing.T) {
	var fires atomic.Int32
	c := NewController(Options{
		Notify:   func() { fires.Add(1) },
		Interval: 10 * time.Millisecond,
	})
	defer c.Cleanup()

	c.Start()
	c.NotifyReplyStart("real output")
	before := fires.Load()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, before, fires.Load())
}

func TestController_NilNotifyNeverFires(t *testing.T) {
	c := NewController(Options{})
	c.Start()
	c.Cleanup()
	assert.True(t, c.CleanedUp())
}
