// ABOUTME: Cooperative typing presence loop for one turn
// ABOUTME: Fires immediately then on an interval until cleanup or first output

package typing

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval applies when no typing interval is configured.
const DefaultInterval = 6 * time.Second

// Controller notifies the chat surface that the agent is working. It is a
// pure side-channel: it never influences scheduling, and it owns nothing
// but its own timer. Cleanup is idempotent and must run on every exit path
// of a turn.
type Controller struct {
	notify      func()
	interval    time.Duration
	silentToken string
	logger      *slog.Logger

	mu      sync.Mutex
	stop    chan struct{}
	started bool
	cleaned bool
}

// Options configures a Controller.
type Options struct {
	// Notify is invoked for each typing signal. Nil disables the loop.
	Notify func()
	// Interval between signals; DefaultInterval when zero or negative.
	Interval time.Duration
	// SilentToken marks replies that should never trigger typing.
	SilentToken string
	Logger      *slog.Logger
}

// NewController creates a typing controller. The loop does not run until
// Start is called.
func NewController(opts Options) *Controller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		notify:      opts.Notify,
		interval:    interval,
		silentToken: opts.SilentToken,
		logger:      logger.With("component", "typing"),
	}
}

// Start fires an immediate typing signal and begins the interval loop.
// Calling Start more than once, or after Cleanup, is a no-op.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.started || c.cleaned || c.notify == nil {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.stop = make(chan struct{})
	stop := c.stop
	c.mu.Unlock()

	c.notify()

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.notify()
			case <-stop:
				return
			}
		}
	}()
}

// NotifyReplyStart signals that output is about to be produced. Silent
// replies (matching the configured token) are ignored; anything else stops
// the loop since the surface will show real content now.
func (c *Controller) NotifyReplyStart(text string) {
	if c.silentToken != "" && text == c.silentToken {
		return
	}
	c.stopLoop()
}

// Cleanup cancels the timer. Safe to call multiple times and from any exit
// path; only the first call does work.
func (c *Controller) Cleanup() {
	c.mu.Lock()
	if c.cleaned {
		c.mu.Unlock()
		return
	}
	c.cleaned = true
	c.mu.Unlock()
	c.stopLoop()
}

// CleanedUp reports whether Cleanup has run. Used by orchestrator tests to
// assert every exit path releases the timer.
func (c *Controller) CleanedUp() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleaned
}

func (c *Controller) stopLoop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		select {
		case <-c.stop:
			// already closed
		default:
			close(c.stop)
		}
	}
}
