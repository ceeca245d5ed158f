// ABOUTME: Lane state for one session's single-flight run slot and pending queue
// ABOUTME: Owns the debounce settle slot; all fields guarded by the lane mutex

package lane

import (
	"sync"
	"time"

	"github.com/2389/coven-relay/internal/agent"
	"github.com/2389/coven-relay/internal/queue"
)

// FollowupRun is a deferred unit of work: the prompt, its routing, and the
// fully assembled run request. Created at admission time, consumed exactly
// once in enqueue order, destroyed at dequeue or abort.
type FollowupRun struct {
	Prompt     string
	Summary    string
	EnqueuedAt time.Time
	Request    *agent.RunRequest
}

// merge folds another message into this pending run (collect mode).
func (f *FollowupRun) merge(other *FollowupRun) {
	f.Prompt = f.Prompt + "\n\n" + other.Prompt
	if other.Summary != "" {
		if f.Summary != "" {
			f.Summary += " + "
		}
		f.Summary += other.Summary
	}
	f.Request.Prompt = f.Prompt
}

// settleState is the debounce slot: messages rest here until the lane has
// been quiet for the debounce window, then flush into the pending queue.
type settleState struct {
	items  []*FollowupRun
	policy queue.Policy
	timer  *time.Timer
}

// lane is the single-flight concurrency domain for one session key.
// Lanes are created on demand and never destroyed; an idle lane is simply
// zero-depth and inactive.
type lane struct {
	key string

	// slot holds one token; whoever takes it owns the run slot.
	slot chan struct{}

	mu       sync.Mutex
	pending  []*FollowupRun
	settle   *settleState
	draining bool
}

func newLane(key string) *lane {
	l := &lane{
		key:  key,
		slot: make(chan struct{}, 1),
	}
	l.slot <- struct{}{}
	return l
}

// tryAcquire takes the run slot if it is free.
func (l *lane) tryAcquire() bool {
	select {
	case <-l.slot:
		return true
	default:
		return false
	}
}

// release returns the run slot.
func (l *lane) release() {
	l.slot <- struct{}{}
}

// depth returns the number of pending items, counting the settle slot.
func (l *lane) depth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.pending)
	if l.settle != nil {
		n += len(l.settle.items)
	}
	return n
}

// clearPending drops every queued item, including any settling debounce
// slot, and returns how many were discarded.
func (l *lane) clearPending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cleared := len(l.pending)
	l.pending = nil
	if l.settle != nil {
		cleared += len(l.settle.items)
		l.settle.timer.Stop()
		l.settle = nil
	}
	return cleared
}

// pop removes and returns the oldest pending item.
func (l *lane) pop() *FollowupRun {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) == 0 {
		return nil
	}
	next := l.pending[0]
	l.pending = l.pending[1:]
	return next
}
