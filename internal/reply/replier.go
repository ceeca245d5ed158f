// ABOUTME: Turn orchestrator - sequences one inbound message into one outbound decision
// ABOUTME: Directive gating, session state, prompt assembly, lane submission, typing lifecycle

package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-relay/internal/agent"
	"github.com/2389/coven-relay/internal/config"
	"github.com/2389/coven-relay/internal/directive"
	"github.com/2389/coven-relay/internal/elevated"
	"github.com/2389/coven-relay/internal/lane"
	"github.com/2389/coven-relay/internal/media"
	"github.com/2389/coven-relay/internal/queue"
	"github.com/2389/coven-relay/internal/session"
	"github.com/2389/coven-relay/internal/typing"
)

const (
	elevatedRefusal  = "elevated is not available right now."
	emptyBodyRefusal = "I didn't receive any text in your message. Please resend or add a caption."
	busyRefusal      = "I'm still working on the previous message. Please try again in a moment."

	bareSessionResetPrompt = "A new session was started via /new or /reset. Say hi briefly (1-2 sentences) and ask what the user wants to do next. Do not mention internal steps, files, tools, or reasoning."
)

// Replier drives the whole inbound-message-to-outbound-decision pipeline.
// Every collaborator is injected; nothing here is ambient global state.
type Replier struct {
	cfg         *config.Config
	store       session.Store
	lanes       *lane.Registry
	transcriber media.Transcriber
	stager      *media.Stager
	aborts      *session.AbortMemory
	events      *systemEvents
	commands    CommandHandler
	logger      *slog.Logger
}

// ReplierOptions wires a Replier's collaborators.
type ReplierOptions struct {
	Config *config.Config
	Store  session.Store
	Lanes  *lane.Registry
	// Transcriber is optional; nil skips audio transcription.
	Transcriber media.Transcriber
	// Commands is optional; nil skips command handling.
	Commands CommandHandler
	Logger   *slog.Logger
}

// NewReplier creates the turn orchestrator.
func NewReplier(opts ReplierOptions) *Replier {
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "reply")
	return &Replier{
		cfg:         cfg,
		store:       opts.Store,
		lanes:       opts.Lanes,
		transcriber: opts.Transcriber,
		stager:      media.NewStager(logger),
		aborts:      session.NewAbortMemory(10*time.Minute, 1024),
		events:      newSystemEvents(),
		commands:    opts.Commands,
		logger:      logger,
	}
}

// EnqueueSystemEvent queues an out-of-band notice (subsystem status, timer
// results) for delivery as a prompt prefix on the session's next turn.
func (r *Replier) EnqueueSystemEvent(sessionKey, text string) {
	key := strings.TrimSpace(sessionKey)
	text = strings.TrimSpace(text)
	if key == "" || text == "" {
		return
	}
	r.events.add(key, text)
	r.logger.Debug("queued system event", "key", key)
}

// Resolve admits one inbound message and returns the outbound payloads.
// Zero payloads with a nil error means no reply should be sent. Only the
// agent-run capability and session-store I/O may fail the turn; every other
// step degrades gracefully.
func (r *Replier) Resolve(ctx context.Context, msg *MessageContext, opts Options) ([]Payload, error) {
	cfg := r.cfg
	sessionKey := r.sessionKey(msg)
	agentID := session.AgentIDFromKey(sessionKey)

	modelRef := cfg.DefaultModelRef()
	if opts.Heartbeat {
		modelRef = cfg.HeartbeatModelRef()
	}

	workspaceDir := r.ensureWorkspace()

	tc := typing.NewController(typing.Options{
		Notify:      opts.TypingNotify,
		Interval:    r.typingInterval(),
		SilentToken: SilentReplyToken,
		Logger:      r.logger,
	})
	defer tc.Cleanup()
	if opts.OnTypingController != nil {
		opts.OnTypingController(tc)
	}

	transcript := r.transcribe(ctx, msg)

	entry, err := r.store.Get(ctx, sessionKey)
	isNewSession := false
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			return nil, fmt.Errorf("loading session %s: %w", sessionKey, err)
		}
		entry = nil
		isNewSession = true
	}
	abortedLastRun := entry != nil && entry.AbortedLastRun

	rawBody := msg.Body
	if remainder, isReset := stripSessionReset(rawBody); isReset && msg.authorized() {
		if derr := r.store.Delete(ctx, sessionKey); derr != nil {
			r.logger.Warn("failed to reset session", "key", sessionKey, "error", derr)
		} else {
			entry = nil
			isNewSession = true
			abortedLastRun = false
		}
		msg.Body = remainder
	}
	parsed := directive.ParseMessage(msg.Body, msg.isGroup(), msg.Mentions)
	directives := parsed
	if !msg.authorized() {
		directives = parsed.WithoutControls()
	}

	providerKey := msg.providerKey()
	elevatedEnabled := cfg.Agent.Elevated.EnabledOrDefault()
	elevatedAllowed := elevatedEnabled && providerKey != "" &&
		elevated.IsApproved(providerKey, msg.sender(), cfg)
	if directives.HasElevated && (!elevatedEnabled || !elevatedAllowed) {
		return []Payload{{Text: elevatedRefusal}}, nil
	}

	levels := r.resolveLevels(directives, entry, elevatedAllowed)

	if !opts.Heartbeat {
		modelRef = cfg.ResolveModelRef(sessionModelOverride(entry))
	}

	if directives.Any() && strings.TrimSpace(directives.Cleaned) == "" {
		payloads, derr := r.handleDirectiveOnly(ctx, sessionKey, msg, directives, entry, modelRef, levels, elevatedAllowed)
		return payloads, derr
	}

	entry, modelRef, err = r.persistDirectives(ctx, sessionKey, directives, entry, modelRef, elevatedAllowed)
	if err != nil {
		return nil, err
	}

	// Echo guard: before any configuration exists, a WhatsApp message
	// whose from and to numbers differ is likely our own outbound message
	// reflected back. Never answer it.
	if cfg.IsEmpty() && providerKey == "whatsapp" &&
		msg.From != "" && msg.To != "" && msg.From != msg.To {
		r.logger.Debug("dropping cross-number message under empty config")
		return nil, nil
	}

	if entry == nil {
		abortedLastRun = r.aborts.Check(sessionKey)
	}

	if r.commands != nil {
		result, cerr := r.commands(ctx, Command{
			Provider:   providerKey,
			SessionKey: sessionKey,
			Body:       directives.Cleaned,
			IsGroup:    msg.isGroup(),
			Authorized: msg.authorized(),
			From:       msg.From,
			To:         msg.To,
		})
		if cerr != nil {
			r.logger.Warn("command handler failed, continuing", "error", cerr)
		} else if result.Handled {
			return result.Payloads, nil
		}
	}

	r.stager.Stage(workspaceDir, &msg.Media)

	baseBody := strings.TrimSpace(directives.Cleaned)
	if !msg.authorized() && baseBody == "" && directive.Parse(rawBody).Any() {
		// Unauthorized control attempt with no conversational content:
		// drop silently rather than confirm or refuse.
		return nil, nil
	}
	if isNewSession && baseBody == "" && strings.TrimSpace(rawBody) != "" {
		baseBody = bareSessionResetPrompt
	}
	if baseBody == "" {
		tc.NotifyReplyStart(emptyBodyRefusal)
		r.logger.Debug("inbound body empty after normalization, skipping run")
		return []Payload{{Text: emptyBodyRefusal}}, nil
	}

	entry, err = r.ensureSessionEntry(ctx, sessionKey, msg)
	if err != nil {
		return nil, err
	}
	sessionID := entry.SessionID

	groupIntro := r.groupIntro(msg, entry, isNewSession)
	prompt := r.assemblePrompt(promptParts{
		body:       baseBody,
		transcript: transcript,
		attachment: msg.Media,
		aborted:    abortedLastRun,
		skills:     sessionSkills(entry),
		events:     r.events.drain(sessionKey),
	})

	if levels.think == "" {
		levels.think, prompt = consumeLeadingThinkLevel(prompt)
	}

	inline := inlineQueue(directives)
	policy := queue.Resolve(cfg, providerKey, entry, inline)

	run := &lane.FollowupRun{
		Prompt:     prompt,
		Summary:    firstLine(baseBody),
		EnqueuedAt: time.Now(),
		Request: &agent.RunRequest{
			AgentID:            agentID,
			AgentDir:           cfg.Agent.Dir,
			SessionID:          sessionID,
			SessionKey:         sessionKey,
			SessionFile:        r.transcriptPath(sessionID),
			Provider:           providerKey,
			ModelProvider:      modelRef.Provider,
			Model:              modelRef.Model,
			ContextTokens:      cfg.Agent.ContextTokens,
			Prompt:             prompt,
			ExtraSystemPrompt:  groupIntro,
			ThinkLevel:         levels.think,
			VerboseLevel:       levels.verbose,
			ReasoningLevel:     levels.reasoning,
			ElevatedLevel:      levels.elevated,
			AuthProfileID:      entry.AuthProfileOverride,
			WorkspaceDir:       workspaceDir,
			Timeout:            cfg.Agent.Timeout,
			OriginatingChannel: msg.OriginatingChannel,
			OriginatingTo:      msg.OriginatingTo,
			OnOutput:           func(text string) { tc.NotifyReplyStart(text) },
		},
	}

	if (msg.ChatType != "group" || msg.WasMentioned) && !opts.Heartbeat {
		tc.Start()
	}

	decision := r.lanes.Submit(ctx, sessionKey, policy, run)
	return r.payloadsFor(ctx, sessionKey, decision)
}

// payloadsFor maps a lane decision onto the outbound reply contract.
func (r *Replier) payloadsFor(ctx context.Context, sessionKey string, d lane.Decision) ([]Payload, error) {
	switch d.Action {
	case lane.ActionStarted:
		if d.Err != nil {
			if errors.Is(d.Err, agent.ErrAborted) {
				r.noteAborted(ctx, sessionKey)
				return nil, nil
			}
			return nil, fmt.Errorf("agent run: %w", d.Err)
		}
		r.noteCompleted(ctx, sessionKey)
		return payloadsFromResult(d.Result), nil
	case lane.ActionSteered, lane.ActionQueued, lane.ActionDropped:
		// Steered and queued messages produce their output through the
		// active run or the followup handler; dropped ones produce none.
		return nil, nil
	case lane.ActionRejected:
		if d.Err != nil {
			return nil, d.Err
		}
		return []Payload{{Text: busyRefusal}}, nil
	}
	return nil, nil
}

// payloadsFromResult filters silent and empty texts out of a run result.
func payloadsFromResult(result *agent.RunResult) []Payload {
	if result == nil {
		return nil
	}
	var payloads []Payload
	for _, text := range result.Texts {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" || trimmed == SilentReplyToken {
			continue
		}
		payloads = append(payloads, Payload{Text: text})
	}
	return payloads
}

// noteAborted records an aborted run both in the session entry and the
// abort memory, so the next turn carries a recovery notice even when the
// entry was never persisted.
func (r *Replier) noteAborted(ctx context.Context, sessionKey string) {
	r.aborts.Mark(sessionKey)
	_, err := r.store.Update(ctx, sessionKey, func(e *session.Entry) error {
		e.AbortedLastRun = true
		return nil
	})
	if err != nil {
		r.logger.Warn("failed to persist abort marker", "error", err)
	}
}

// noteCompleted clears turn-scoped flags after a successful run.
func (r *Replier) noteCompleted(ctx context.Context, sessionKey string) {
	_, err := r.store.Update(ctx, sessionKey, func(e *session.Entry) error {
		e.AbortedLastRun = false
		e.SystemSent = true
		e.GroupActivationNeedsIntro = false
		return nil
	})
	if err != nil {
		r.logger.Warn("failed to persist session flags", "error", err)
	}
}

// sessionKey returns the message's pre-derived key or derives one.
func (r *Replier) sessionKey(msg *MessageContext) string {
	if key := strings.TrimSpace(msg.SessionKey); key != "" {
		return key
	}
	return session.PeerKey(r.cfg.Agent.ID, r.cfg.Session.MainKey,
		msg.Provider, msg.ChatType, msg.PeerID)
}

// ensureWorkspace resolves and creates the agent workspace directory.
// Failure is logged and the configured path returned anyway: the run
// capability surfaces its own error if the directory truly is unusable.
func (r *Replier) ensureWorkspace() string {
	dir := strings.TrimSpace(r.cfg.Agent.Workspace)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		dir = filepath.Join(home, ".coven-relay", "workspace")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.logger.Warn("failed to ensure agent workspace", "dir", dir, "error", err)
	}
	return dir
}

func (r *Replier) typingInterval() time.Duration {
	seconds := r.cfg.Agent.TypingIntervalSeconds
	if seconds <= 0 {
		seconds = r.cfg.Session.TypingIntervalSeconds
	}
	if seconds <= 0 {
		return typing.DefaultInterval
	}
	return time.Duration(seconds) * time.Second
}

// transcribe replaces the message body with an audio transcript when
// transcription is enabled and the attachment is audio. Failures are soft.
func (r *Replier) transcribe(ctx context.Context, msg *MessageContext) string {
	if r.transcriber == nil || !r.cfg.Routing.TranscribeAudio || !media.IsAudio(msg.Media.Type) {
		return ""
	}
	text, err := r.transcriber.Transcribe(ctx, msg.Media.Path, msg.Media.Type)
	if err != nil {
		r.logger.Warn("audio transcription failed, keeping original body", "error", err)
		return ""
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	msg.Body = text
	r.logger.Debug("replaced body with audio transcript")
	return text
}

// transcriptPath returns the per-session transcript file for a run.
func (r *Replier) transcriptPath(sessionID string) string {
	base := os.TempDir()
	if r.cfg.Database.Path != "" {
		base = filepath.Dir(r.cfg.Database.Path)
	}
	return filepath.Join(base, "transcripts", sessionID+".jsonl")
}

// ensureSessionEntry makes sure a session entry with a stable session id
// exists before the run is admitted, pinning the configured skill list as
// the session's snapshot on first contact.
func (r *Replier) ensureSessionEntry(ctx context.Context, key string, msg *MessageContext) (*session.Entry, error) {
	entry, err := r.store.Update(ctx, key, func(e *session.Entry) error {
		if e.SessionID == "" {
			e.SessionID = uuid.NewString()
		}
		if e.ChatType == "" && msg.ChatType != "" {
			e.ChatType = msg.ChatType
		}
		if e.SkillsSnapshot == "" && len(r.cfg.Agent.Skills) > 0 {
			e.SkillsSnapshot = strings.Join(r.cfg.Agent.Skills, "\n")
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("initializing session %s: %w", key, err)
	}
	return entry, nil
}

// levelSet is the effective level selection for one turn.
type levelSet struct {
	think     string
	verbose   string
	reasoning string
	elevated  string
}

// resolveLevels merges inline directive > session override > agent default.
// Reasoning defaults to an explicit "off"; elevated is forced off for
// unapproved senders.
func (r *Replier) resolveLevels(d directive.Directives, entry *session.Entry, elevatedAllowed bool) levelSet {
	agentCfg := r.cfg.Agent
	levels := levelSet{
		think:     firstNonEmpty(d.ThinkLevel, sessionField(entry, func(e *session.Entry) string { return e.ThinkLevel }), agentCfg.ThinkingDefault),
		verbose:   firstNonEmpty(d.VerboseLevel, sessionField(entry, func(e *session.Entry) string { return e.VerboseLevel }), agentCfg.VerboseDefault, "off"),
		reasoning: firstNonEmpty(d.ReasoningLevel, sessionField(entry, func(e *session.Entry) string { return e.ReasoningLevel }), "off"),
	}
	if elevatedAllowed {
		levels.elevated = firstNonEmpty(d.ElevatedLevel, sessionField(entry, func(e *session.Entry) string { return e.ElevatedLevel }), agentCfg.ElevatedDefault, "on")
	} else {
		levels.elevated = "off"
	}
	return levels
}

func sessionField(entry *session.Entry, get func(*session.Entry) string) string {
	if entry == nil {
		return ""
	}
	return get(entry)
}

func sessionModelOverride(entry *session.Entry) string {
	if entry == nil {
		return ""
	}
	return entry.ModelOverride
}

func sessionSkills(entry *session.Entry) string {
	if entry == nil {
		return ""
	}
	return entry.SkillsSnapshot
}

// inlineQueue converts an applied queue directive into inline overrides.
// A reset directive contributes nothing inline; it already cleared the
// session fields during persistence.
func inlineQueue(d directive.Directives) *queue.Inline {
	if !d.HasQueue || d.QueueReset {
		return nil
	}
	return &queue.Inline{
		Mode:        d.QueueMode,
		HasDebounce: d.HasDebounce,
		Debounce:    d.Debounce,
		HasCap:      d.HasCap,
		Cap:         d.Cap,
		Drop:        d.Drop,
	}
}

// stripSessionReset detects a leading /new or /reset trigger and returns
// the remainder of the body.
func stripSessionReset(body string) (string, bool) {
	trimmed := strings.TrimSpace(body)
	lower := strings.ToLower(trimmed)
	for _, token := range []string{"/new", "/reset"} {
		if lower == token {
			return "", true
		}
		if strings.HasPrefix(lower, token+" ") {
			return strings.TrimSpace(trimmed[len(token):]), true
		}
	}
	return body, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
