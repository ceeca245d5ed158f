// ABOUTME: Agent-run capability contract consumed by the scheduling core
// ABOUTME: RunRequest/RunResult types and the Runner/Steerer interfaces

package agent

import (
	"context"
	"errors"
	"time"
)

// ErrAborted is returned when a run was cancelled by an abort request.
// Abort is cooperative: a run may still deliver a trailing result after the
// abort was requested, and callers must discard it.
var ErrAborted = errors.New("agent run aborted")

// RunRequest is a fully assembled request for one agent turn.
type RunRequest struct {
	AgentID  string
	AgentDir string

	SessionID   string
	SessionKey  string
	SessionFile string

	// Provider is the chat surface the message arrived on.
	Provider string

	ModelProvider string
	Model         string
	ContextTokens int

	Prompt            string
	ExtraSystemPrompt string

	ThinkLevel     string
	VerboseLevel   string
	ReasoningLevel string
	ElevatedLevel  string

	AuthProfileID string
	WorkspaceDir  string
	Timeout       time.Duration

	// Originating channel for reply routing of deferred runs.
	OriginatingChannel string
	OriginatingTo      string

	// OnOutput is invoked for each emitted output chunk. The first call
	// marks the run as streaming.
	OnOutput func(text string)
}

// RunResult is the reply payload produced by one agent turn.
type RunResult struct {
	Texts []string
}

// Runner executes agent turns. Implemented elsewhere (an embedded agent,
// a gateway connection); the scheduling core only consumes it.
type Runner interface {
	Run(ctx context.Context, req *RunRequest) (*RunResult, error)
}

// Steerer optionally accepts additional input injected into an in-flight
// run. Runners that cannot steer simply do not implement it.
type Steerer interface {
	Steer(sessionID, text string) bool
}
