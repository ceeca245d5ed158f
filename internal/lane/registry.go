// ABOUTME: Run lane registry - the admission controller for agent turns
// ABOUTME: Single-flight per session lane; interrupt/steer/followup/collect semantics

package lane

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/coven-relay/internal/agent"
	"github.com/2389/coven-relay/internal/queue"
)

// Action is the admission outcome for one submitted message.
type Action int

// Admission outcomes.
const (
	// ActionStarted means the run executed in the caller's call; the
	// Decision carries its result.
	ActionStarted Action = iota
	// ActionSteered means the message was injected into the in-flight run.
	ActionSteered
	// ActionQueued means a FollowupRun was enqueued (or is settling in a
	// debounce window) for later execution.
	ActionQueued
	// ActionDropped means the message was discarded by the drop policy.
	ActionDropped
	// ActionRejected means the queue is full and the policy rejects new
	// work back to the caller with a busy signal.
	ActionRejected
)

// String returns the lowercase name of the action.
func (a Action) String() string {
	switch a {
	case ActionStarted:
		return "started"
	case ActionSteered:
		return "steered"
	case ActionQueued:
		return "queued"
	case ActionDropped:
		return "dropped"
	case ActionRejected:
		return "rejected"
	}
	return "unknown"
}

// Decision reports how a submission was admitted.
type Decision struct {
	Action Action
	// Result and Err are set for ActionStarted.
	Result *agent.RunResult
	Err    error
	// Depth is the pending queue depth after admission.
	Depth int
}

// Runner is what the registry needs from the agent-run capability.
// *agent.Tracker satisfies it.
type Runner interface {
	Run(ctx context.Context, req *agent.RunRequest) (*agent.RunResult, error)
	IsActive(sessionID string) bool
	IsStreaming(sessionID string) bool
	Abort(sessionID string) bool
	Steer(sessionID, text string) bool
}

// FollowupHandler receives the result of a deferred run executed by the
// registry's drain loop, for out-of-band delivery to the originating
// channel.
type FollowupHandler func(run *FollowupRun, result *agent.RunResult, err error)

// Registry owns every run lane. It is an explicit service object injected
// into the orchestrator: no ambient globals, so tests and multiple relay
// instances get independent lanes.
type Registry struct {
	mu     sync.Mutex
	lanes  map[string]*lane
	runner Runner
	onRun  FollowupHandler
	logger *slog.Logger
}

// NewRegistry creates a lane registry around the given runner. handler
// may be nil when deferred results need no delivery (tests).
func NewRegistry(runner Runner, handler FollowupHandler, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		lanes:  make(map[string]*lane),
		runner: runner,
		onRun:  handler,
		logger: logger.With("component", "lanes"),
	}
}

// lane returns the lane for a key, creating it on demand.
func (r *Registry) lane(key string) *lane {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lanes[key]
	if !ok {
		l = newLane(key)
		r.lanes[key] = l
	}
	return l
}

// Depth returns the pending queue depth for a lane key.
func (r *Registry) Depth(key string) int {
	return r.lane(key).depth()
}

// Submit admits one message against its lane under the resolved policy.
// Exactly one of the Decision actions results; at most one run is ever in
// flight per lane.
func (r *Registry) Submit(ctx context.Context, laneKey string, policy queue.Policy, run *FollowupRun) Decision {
	l := r.lane(laneKey)
	sessionID := run.Request.SessionID

	switch policy.Mode {
	case queue.ModeInterrupt:
		if cleared := l.clearPending(); cleared > 0 {
			aborted := r.runner.Abort(sessionID)
			r.logger.Info("interrupting lane",
				"lane", l.key, "cleared", cleared, "aborted", aborted)
		}
		// Proceed as if the lane were idle. Abort is cooperative, so the
		// slot may still be held briefly; wait for it.
		return r.runBlocking(ctx, l, run)

	case queue.ModeSteer, queue.ModeSteerBacklog:
		if r.runner.IsActive(sessionID) {
			if r.runner.Steer(sessionID, run.Prompt) {
				r.logger.Debug("steered into active run", "lane", l.key)
				return Decision{Action: ActionSteered, Depth: l.depth()}
			}
			// The run's input is already closed (or the runner cannot
			// steer). steer-backlog retains the message as a followup;
			// plain steer does the same rather than dropping it.
			return r.enqueue(l, policy, run)
		}
		return r.runOrEnqueue(ctx, l, policy, run)

	default: // followup, collect, default
		return r.runOrEnqueue(ctx, l, policy, run)
	}
}

// runOrEnqueue starts immediately when the lane is idle, otherwise queues.
func (r *Registry) runOrEnqueue(ctx context.Context, l *lane, policy queue.Policy, run *FollowupRun) Decision {
	if l.tryAcquire() {
		return r.execute(ctx, l, run)
	}
	return r.enqueue(l, policy, run)
}

// runBlocking waits for the run slot and executes. Used by interrupt mode.
func (r *Registry) runBlocking(ctx context.Context, l *lane, run *FollowupRun) Decision {
	select {
	case <-l.slot:
	case <-ctx.Done():
		return Decision{Action: ActionRejected, Err: ctx.Err()}
	}
	return r.execute(ctx, l, run)
}

// execute runs a turn while holding the lane slot, then releases and
// drains any work that queued up meanwhile.
func (r *Registry) execute(ctx context.Context, l *lane, run *FollowupRun) Decision {
	defer r.releaseAndDrain(l)
	result, err := r.runner.Run(ctx, run.Request)
	return Decision{Action: ActionStarted, Result: result, Err: err, Depth: l.depth()}
}

// enqueue admits a message into the lane's pending queue, honoring the
// debounce window, collect merging, and the cap/drop policy.
func (r *Registry) enqueue(l *lane, policy queue.Policy, run *FollowupRun) Decision {
	l.mu.Lock()

	if policy.Debounce > 0 {
		if l.settle != nil {
			// A later message restarts the window; collect merges into
			// the same slot instead of growing it.
			l.settle.timer.Reset(policy.Debounce)
			l.settle.policy = policy
			if policy.Mode == queue.ModeCollect && len(l.settle.items) > 0 {
				l.settle.items[0].merge(run)
			} else {
				l.settle.items = append(l.settle.items, run)
			}
			depth := r.depthLocked(l)
			l.mu.Unlock()
			return Decision{Action: ActionQueued, Depth: depth}
		}
		s := &settleState{items: []*FollowupRun{run}, policy: policy}
		s.timer = time.AfterFunc(policy.Debounce, func() { r.flushSettled(l) })
		l.settle = s
		depth := r.depthLocked(l)
		l.mu.Unlock()
		return Decision{Action: ActionQueued, Depth: depth}
	}

	if policy.Mode == queue.ModeCollect && len(l.pending) > 0 {
		l.pending[len(l.pending)-1].merge(run)
		depth := r.depthLocked(l)
		l.mu.Unlock()
		return Decision{Action: ActionQueued, Depth: depth}
	}

	decision := r.appendLocked(l, policy, run)
	l.mu.Unlock()
	r.drain(l)
	return decision
}

// appendLocked applies the cap/drop policy and appends. Caller holds l.mu.
func (r *Registry) appendLocked(l *lane, policy queue.Policy, run *FollowupRun) Decision {
	if policy.Cap > 0 && len(l.pending) >= policy.Cap {
		switch policy.Drop {
		case queue.DropNew:
			r.logger.Info("dropping new message, lane at capacity",
				"lane", l.key, "cap", policy.Cap)
			return Decision{Action: ActionDropped, Depth: len(l.pending)}
		case queue.DropReject:
			return Decision{Action: ActionRejected, Depth: len(l.pending)}
		default: // drop-oldest, never block the caller
			r.logger.Info("evicting oldest queued message, lane at capacity",
				"lane", l.key, "cap", policy.Cap)
			l.pending = l.pending[1:]
		}
	}
	l.pending = append(l.pending, run)
	return Decision{Action: ActionQueued, Depth: len(l.pending)}
}

func (r *Registry) depthLocked(l *lane) int {
	n := len(l.pending)
	if l.settle != nil {
		n += len(l.settle.items)
	}
	return n
}

// flushSettled moves a quiet debounce slot into the pending queue. The
// submitters were already answered with "queued" when the window opened, so
// a cap overflow here has no caller left to bounce to: the message is
// discarded and logged.
func (r *Registry) flushSettled(l *lane) {
	l.mu.Lock()
	s := l.settle
	l.settle = nil
	if s == nil {
		l.mu.Unlock()
		return
	}
	for _, item := range s.items {
		d := r.appendLocked(l, s.policy, item)
		if d.Action == ActionDropped || d.Action == ActionRejected {
			r.logger.Warn("discarding settled message, lane at capacity",
				"lane", l.key, "cap", s.policy.Cap, "summary", item.Summary)
		}
	}
	l.mu.Unlock()
	r.drain(l)
}

// drain starts a background consumer for the lane's pending queue if one
// is not already running and the run slot is free.
func (r *Registry) drain(l *lane) {
	l.mu.Lock()
	if l.draining || len(l.pending) == 0 {
		l.mu.Unlock()
		return
	}
	if !l.tryAcquire() {
		// An active run will drain on release.
		l.mu.Unlock()
		return
	}
	l.draining = true
	l.mu.Unlock()

	go r.drainLoop(l)
}

// drainLoop consumes pending runs in enqueue order while holding the slot.
// Enters holding the slot; exits with the slot released.
func (r *Registry) drainLoop(l *lane) {
	for {
		next := l.pop()
		if next == nil {
			// Exit atomically with respect to enqueue: anything queued
			// after this point sees draining=false and a free slot.
			l.mu.Lock()
			if len(l.pending) > 0 {
				l.mu.Unlock()
				continue
			}
			l.draining = false
			l.release()
			l.mu.Unlock()
			return
		}

		r.logger.Debug("running queued followup",
			"lane", l.key,
			"queued_for", time.Since(next.EnqueuedAt).Round(time.Millisecond))
		result, err := r.runner.Run(context.Background(), next.Request)
		if r.onRun != nil {
			r.onRun(next, result, err)
		}
	}
}

// releaseAndDrain returns the slot after a foreground run and hands any
// queued work to the drain loop.
func (r *Registry) releaseAndDrain(l *lane) {
	l.release()
	r.drain(l)
}
