// ABOUTME: Tracker wraps a Runner with per-session active/streaming/abort state
// ABOUTME: Abort is a cooperative cancellation request, not a synchronous kill

package agent

import (
	"context"
	"log/slog"
	"sync"
)

type runState struct {
	cancel    context.CancelFunc
	streaming bool
	aborted   bool
}

// Tracker decorates a Runner with the bookkeeping the lane manager needs:
// whether a session has a run in flight, whether it is emitting output,
// and a cooperative abort. At most one run per session id is tracked;
// enforcing single-flight is the lane manager's job.
type Tracker struct {
	mu     sync.Mutex
	runner Runner
	runs   map[string]*runState
	logger *slog.Logger
}

// NewTracker creates a Tracker around the given runner.
func NewTracker(runner Runner, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		runner: runner,
		runs:   make(map[string]*runState),
		logger: logger.With("component", "agent-tracker"),
	}
}

// Run executes one turn, tracking it under req.SessionID. The run's
// context is cancelled when Abort is called or when req.Timeout elapses.
// Results that arrive after an abort are discarded and ErrAborted is
// returned instead.
func (t *Tracker) Run(ctx context.Context, req *RunRequest) (*RunResult, error) {
	var runCtx context.Context
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	state := &runState{cancel: cancel}
	t.mu.Lock()
	t.runs[req.SessionID] = state
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		if t.runs[req.SessionID] == state {
			delete(t.runs, req.SessionID)
		}
		t.mu.Unlock()
	}()

	// Wrap output reporting so the first chunk flips streaming state.
	userOnOutput := req.OnOutput
	req.OnOutput = func(text string) {
		t.mu.Lock()
		state.streaming = true
		t.mu.Unlock()
		if userOnOutput != nil {
			userOnOutput(text)
		}
	}

	result, err := t.runner.Run(runCtx, req)

	t.mu.Lock()
	aborted := state.aborted
	t.mu.Unlock()
	if aborted {
		// Trailing output race: the run finished anyway. Discard it.
		t.logger.Debug("discarding result from aborted run", "session_id", req.SessionID)
		return nil, ErrAborted
	}
	return result, err
}

// IsActive reports whether a run is in flight for the session.
func (t *Tracker) IsActive(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.runs[sessionID]
	return ok
}

// IsStreaming reports whether the session's run has started emitting output.
func (t *Tracker) IsStreaming(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.runs[sessionID]
	return ok && state.streaming
}

// Abort requests cancellation of the session's run. Returns true when a
// run was in flight. The cancellation is cooperative; the caller must not
// assume the run has terminated when Abort returns.
func (t *Tracker) Abort(sessionID string) bool {
	t.mu.Lock()
	state, ok := t.runs[sessionID]
	if ok {
		state.aborted = true
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	state.cancel()
	t.logger.Debug("abort requested", "session_id", sessionID)
	return true
}

// Steer forwards injected input to the underlying runner when it supports
// steering and the session has a run in flight.
func (t *Tracker) Steer(sessionID, text string) bool {
	if !t.IsActive(sessionID) {
		return false
	}
	steerer, ok := t.runner.(Steerer)
	if !ok {
		return false
	}
	return steerer.Steer(sessionID, text)
}
