// ABOUTME: Tests for the turn orchestrator covering every exit path
// ABOUTME: Refusals, short-circuits, echo guard, prompt assembly, typing cleanup

package reply

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-relay/internal/agent"
	"github.com/2389/coven-relay/internal/config"
	"github.com/2389/coven-relay/internal/lane"
	"github.com/2389/coven-relay/internal/media"
	"github.com/2389/coven-relay/internal/session"
	"github.com/2389/coven-relay/internal/typing"
)

// stubRunner satisfies lane.Runner with canned replies.
type stubRunner struct {
	mu       sync.Mutex
	requests []*agent.RunRequest
	texts    []string
	err      error
	active   map[string]bool
	block    chan struct{}
	started  chan string
}

func newStubRunner() *stubRunner {
	return &stubRunner{
		texts:   []string{"ok"},
		active:  make(map[string]bool),
		started: make(chan string, 16),
	}
}

func (s *stubRunner) Run(ctx context.Context, req *agent.RunRequest) (*agent.RunResult, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.active[req.SessionID] = true
	block := s.block
	s.mu.Unlock()
	select {
	case s.started <- req.SessionID:
	default:
	}
	if block != nil {
		<-block
	}
	s.mu.Lock()
	delete(s.active, req.SessionID)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &agent.RunResult{Texts: s.texts}, nil
}

func (s *stubRunner) IsActive(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[sessionID]
}

func (s *stubRunner) IsStreaming(string) bool   { return false }
func (s *stubRunner) Abort(string) bool         { return false }
func (s *stubRunner) Steer(string, string) bool { return false }

func (s *stubRunner) calls() []*agent.RunRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*agent.RunRequest(nil), s.requests...)
}

type fixture struct {
	runner  *stubRunner
	store   *session.MemoryStore
	replier *Replier
	tc      *typing.Controller
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	runner := newStubRunner()
	store := session.NewMemoryStore()
	f := &fixture{
		runner: runner,
		store:  store,
		replier: NewReplier(ReplierOptions{
			Config: cfg,
			Store:  store,
			Lanes:  lane.NewRegistry(runner, nil, nil),
		}),
	}
	return f
}

func (f *fixture) resolve(t *testing.T, msg *MessageContext) []Payload {
	t.Helper()
	payloads, err := f.resolveWith(msg, Options{})
	require.NoError(t, err)
	return payloads
}

func (f *fixture) resolveWith(msg *MessageContext, opts Options) ([]Payload, error) {
	opts.OnTypingController = func(c *typing.Controller) { f.tc = c }
	return f.replier.Resolve(context.Background(), msg, opts)
}

func baseConfig() *config.Config {
	return &config.Config{
		Agent: config.AgentConfig{
			ID:    "main",
			Model: "anthropic/claude-sonnet-4",
		},
	}
}

func dm(body string) *MessageContext {
	return &MessageContext{
		Provider: "telegram",
		From:     "user:42",
		To:       "bot",
		Body:     body,
		ChatType: "dm",
	}
}

func TestResolve_RunsAgentAndReturnsReply(t *testing.T) {
	f := newFixture(t, baseConfig())

	payloads := f.resolve(t, dm("hello there"))

	require.Len(t, payloads, 1)
	assert.Equal(t, "ok", payloads[0].Text)
	calls := f.runner.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "hello there", calls[0].Prompt)
	assert.Equal(t, "anthropic", calls[0].ModelProvider)
	assert.Equal(t, "claude-sonnet-4", calls[0].Model)
	assert.Equal(t, "agent:main:main", calls[0].SessionKey)
	assert.True(t, f.tc.CleanedUp())
}

func TestResolve_DirectiveOnlyNeverRunsAgent(t *testing.T) {
	f := newFixture(t, baseConfig())

	payloads := f.resolve(t, dm("/think high"))

	require.Len(t, payloads, 1)
	assert.Equal(t, "Thinking level set to high.", payloads[0].Text)
	assert.Empty(t, f.runner.calls())

	entry, err := f.store.Get(context.Background(), "agent:main:main")
	require.NoError(t, err)
	assert.Equal(t, "high", entry.ThinkLevel)
	assert.True(t, f.tc.CleanedUp())
}

func TestResolve_DirectiveWithContentIsPlainText(t *testing.T) {
	f := newFixture(t, baseConfig())

	f.resolve(t, dm("/think high also please ship the release"))

	calls := f.runner.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/think high also please ship the release", calls[0].Prompt)
	assert.Empty(t, calls[0].ThinkLevel, "embedded directive must not apply")

	entry, err := f.store.Get(context.Background(), "agent:main:main")
	require.NoError(t, err)
	assert.Empty(t, entry.ThinkLevel)
}

func TestResolve_ElevatedRefusal(t *testing.T) {
	f := newFixture(t, baseConfig())

	payloads := f.resolve(t, dm("/elevated"))

	require.Len(t, payloads, 1)
	assert.Equal(t, "elevated is not available right now.", payloads[0].Text)
	assert.Empty(t, f.runner.calls())
	assert.True(t, f.tc.CleanedUp())
}

func TestResolve_ElevatedApprovedDefaultsOn(t *testing.T) {
	cfg := baseConfig()
	cfg.Agent.Elevated.AllowFrom = map[string][]string{"telegram": {"*"}}
	f := newFixture(t, cfg)

	f.resolve(t, dm("hello"))

	calls := f.runner.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "on", calls[0].ElevatedLevel)
}

func TestResolve_EmptyConfigWhatsAppEchoGuard(t *testing.T) {
	f := newFixture(t, &config.Config{})
	msg := &MessageContext{
		Provider: "whatsapp",
		From:     "whatsapp:+15550001111",
		To:       "whatsapp:+15550002222",
		Body:     "hi",
		ChatType: "dm",
	}

	payloads := f.resolve(t, msg)

	assert.Empty(t, payloads)
	assert.Empty(t, f.runner.calls())
	assert.True(t, f.tc.CleanedUp())
}

func TestResolve_EmptyBodyRefusal(t *testing.T) {
	f := newFixture(t, baseConfig())

	payloads := f.resolve(t, dm("   "))

	require.Len(t, payloads, 1)
	assert.Equal(t, emptyBodyRefusal, payloads[0].Text)
	assert.Empty(t, f.runner.calls())
	assert.True(t, f.tc.CleanedUp())
}

func TestResolve_BareSessionResetGreeting(t *testing.T) {
	f := newFixture(t, baseConfig())

	payloads := f.resolve(t, dm("/new"))

	require.Len(t, payloads, 1)
	calls := f.runner.calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "A new session was started")
}

func TestResolve_ResetWithContentKeepsContent(t *testing.T) {
	f := newFixture(t, baseConfig())
	_, err := f.store.Update(context.Background(), "agent:main:main", func(e *session.Entry) error {
		e.ThinkLevel = "high"
		return nil
	})
	require.NoError(t, err)

	f.resolve(t, dm("/reset let's start over"))

	calls := f.runner.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "let's start over", calls[0].Prompt)
	assert.Empty(t, calls[0].ThinkLevel, "reset discards session levels")
}

func TestResolve_UnauthorizedControlAttemptDroppedSilently(t *testing.T) {
	f := newFixture(t, baseConfig())
	denied := false
	msg := dm("/think high")
	msg.CommandAuthorized = &denied

	payloads := f.resolve(t, msg)

	assert.Empty(t, payloads)
	assert.Empty(t, f.runner.calls())
	_, err := f.store.Get(context.Background(), "agent:main:main")
	assert.ErrorIs(t, err, session.ErrNotFound, "masked directive never persists")
	assert.True(t, f.tc.CleanedUp())
}

func TestResolve_AgentErrorPropagatesWithTypingCleanup(t *testing.T) {
	f := newFixture(t, baseConfig())
	f.runner.err = errors.New("inference backend down")

	_, err := f.resolveWith(dm("hello"), Options{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "inference backend down")
	assert.True(t, f.tc.CleanedUp())
}

func TestResolve_AbortedRunIsSilentAndLeavesRecoveryNotice(t *testing.T) {
	f := newFixture(t, baseConfig())
	f.runner.err = agent.ErrAborted

	payloads, err := f.resolveWith(dm("first"), Options{})
	require.NoError(t, err)
	assert.Empty(t, payloads, "aborted run delivers nothing")

	f.runner.err = nil
	f.resolve(t, dm("second"))

	calls := f.runner.calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].Prompt, "aborted")
	assert.Contains(t, calls[1].Prompt, "second")
}

func TestResolve_ModelDirectivePersistsOverride(t *testing.T) {
	f := newFixture(t, baseConfig())

	payloads := f.resolve(t, dm("/model anthropic/claude-opus-4"))

	require.Len(t, payloads, 1)
	assert.Equal(t, "Model switched to anthropic/claude-opus-4.", payloads[0].Text)

	f.resolve(t, dm("hello"))
	calls := f.runner.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "claude-opus-4", calls[0].Model)
}

func TestResolve_ModelStatusAliasDoesNotPersist(t *testing.T) {
	cfg := baseConfig()
	cfg.Agent.ModelAliases = map[string]string{"opus": "anthropic/claude-opus-4"}
	f := newFixture(t, cfg)

	payloads := f.resolve(t, dm("/model status"))

	require.Len(t, payloads, 1)
	assert.Contains(t, payloads[0].Text, "Current model: anthropic/claude-sonnet-4")
	assert.Contains(t, payloads[0].Text, "opus -> anthropic/claude-opus-4")

	entry, err := f.store.Get(context.Background(), "agent:main:main")
	require.NoError(t, err)
	assert.Empty(t, entry.ModelOverride)
}

func TestResolve_StatusDirective(t *testing.T) {
	f := newFixture(t, baseConfig())

	payloads := f.resolve(t, dm("/status"))

	require.Len(t, payloads, 1)
	assert.Contains(t, payloads[0].Text, "Model: anthropic/claude-sonnet-4")
	assert.Contains(t, payloads[0].Text, "Session: agent:main:main")
	assert.Empty(t, f.runner.calls())
}

func TestResolve_SilentTokenFilteredFromReply(t *testing.T) {
	f := newFixture(t, baseConfig())
	f.runner.texts = []string{SilentReplyToken}

	payloads := f.resolve(t, dm("anything new?"))

	assert.Empty(t, payloads)
	require.Len(t, f.runner.calls(), 1)
}

func TestResolve_MediaNotePrependedToPrompt(t *testing.T) {
	f := newFixture(t, baseConfig())
	msg := dm("look at this")
	msg.Media = media.Attachment{Path: "inbox/photo.jpg", Type: "image/jpeg"}

	f.resolve(t, msg)

	calls := f.runner.calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "[media attached: inbox/photo.jpg (image/jpeg)]")
	assert.Contains(t, calls[0].Prompt, "MEDIA:https://example.com/image.jpg")
	assert.Contains(t, calls[0].Prompt, "look at this")
}

type stubTranscriber struct{ text string }

func (s stubTranscriber) Transcribe(context.Context, string, string) (string, error) {
	return s.text, nil
}

func TestResolve_AudioTranscriptReplacesBody(t *testing.T) {
	cfg := baseConfig()
	cfg.Routing.TranscribeAudio = true
	runner := newStubRunner()
	store := session.NewMemoryStore()
	replier := NewReplier(ReplierOptions{
		Config:      cfg,
		Store:       store,
		Lanes:       lane.NewRegistry(runner, nil, nil),
		Transcriber: stubTranscriber{text: "remind me to call alice"},
	})

	msg := dm("")
	msg.Media = media.Attachment{Path: "inbox/voice.ogg", Type: "audio/ogg"}
	_, err := replier.Resolve(context.Background(), msg, Options{})
	require.NoError(t, err)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.requests, 1)
	assert.Contains(t, runner.requests[0].Prompt, "remind me to call alice")
	assert.Contains(t, runner.requests[0].Prompt, "Transcript:")
}

func TestResolve_LeadingThinkTokenConsumed(t *testing.T) {
	f := newFixture(t, baseConfig())

	f.resolve(t, dm("high summarize the meeting notes"))

	calls := f.runner.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "high", calls[0].ThinkLevel)
	assert.Equal(t, "summarize the meeting notes", calls[0].Prompt)
}

func TestResolve_HeartbeatUsesHeartbeatModelAndNoTyping(t *testing.T) {
	cfg := baseConfig()
	cfg.Agent.HeartbeatModel = "anthropic/claude-haiku-4"
	f := newFixture(t, cfg)

	var typingFires int
	_, err := f.resolveWith(dm("heartbeat check"), Options{
		Heartbeat:    true,
		TypingNotify: func() { typingFires++ },
	})
	require.NoError(t, err)

	calls := f.runner.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "claude-haiku-4", calls[0].Model)
	assert.Equal(t, 0, typingFires, "heartbeat turns never type")
}

func TestResolve_GroupWithoutMentionSuppressesTyping(t *testing.T) {
	f := newFixture(t, baseConfig())
	var typingFires int
	msg := &MessageContext{
		Provider: "discord",
		From:     "user:1",
		Body:     "random chatter",
		ChatType: "group",
		PeerID:   "room-9",
	}

	_, err := f.resolveWith(msg, Options{TypingNotify: func() { typingFires++ }})
	require.NoError(t, err)

	assert.Equal(t, 0, typingFires)
	calls := f.runner.calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].ExtraSystemPrompt, SilentReplyToken,
		"first group turn carries the intro system prompt")
}

func TestResolve_QueuedWhileActiveReturnsNoPayload(t *testing.T) {
	f := newFixture(t, baseConfig())
	f.runner.block = make(chan struct{})

	done := make(chan []Payload, 1)
	go func() {
		payloads, _ := f.replier.Resolve(context.Background(), dm("first"), Options{})
		done <- payloads
	}()
	<-f.runner.started

	payloads := f.resolve(t, dm("second"))
	assert.Empty(t, payloads, "queued message answers out-of-band")

	close(f.runner.block)
	select {
	case first := <-done:
		require.Len(t, first, 1)
		assert.Equal(t, "ok", first[0].Text)
	case <-time.After(2 * time.Second):
		t.Fatal("first turn never finished")
	}
}

func TestResolve_CommandShortCircuit(t *testing.T) {
	cfg := baseConfig()
	runner := newStubRunner()
	store := session.NewMemoryStore()
	replier := NewReplier(ReplierOptions{
		Config: cfg,
		Store:  store,
		Lanes:  lane.NewRegistry(runner, nil, nil),
		Commands: func(ctx context.Context, cmd Command) (CommandResult, error) {
			if cmd.Body == "ping" {
				return CommandResult{Handled: true, Payloads: []Payload{{Text: "pong"}}}, nil
			}
			return CommandResult{}, nil
		},
	})

	payloads, err := replier.Resolve(context.Background(), dm("ping"), Options{})
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, "pong", payloads[0].Text)
	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Empty(t, runner.requests)
}

func TestResolve_SystemEventsRideNextTurnOnce(t *testing.T) {
	f := newFixture(t, baseConfig())
	f.replier.EnqueueSystemEvent("agent:main:main", "Backup finished")
	f.replier.EnqueueSystemEvent("agent:main:main", "Disk space low")

	f.resolve(t, dm("hello"))
	calls := f.runner.calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "[system] Backup finished\n[system] Disk space low")
	assert.Contains(t, calls[0].Prompt, "hello")

	f.resolve(t, dm("again"))
	calls = f.runner.calls()
	require.Len(t, calls, 2)
	assert.NotContains(t, calls[1].Prompt, "[system]", "events deliver at most once")
}

func TestResolve_SystemEventsScopedToSessionKey(t *testing.T) {
	f := newFixture(t, baseConfig())
	f.replier.EnqueueSystemEvent("agent:main:telegram:group:g-1", "group-only notice")

	f.resolve(t, dm("hello"))

	calls := f.runner.calls()
	require.Len(t, calls, 1)
	assert.NotContains(t, calls[0].Prompt, "group-only notice")
}

func TestResolve_SystemEventSurvivesDirectiveOnlyTurn(t *testing.T) {
	f := newFixture(t, baseConfig())
	f.replier.EnqueueSystemEvent("agent:main:main", "Backup finished")

	f.resolve(t, dm("/think high"))
	require.Empty(t, f.runner.calls(), "directive-only turn must not consume the event")

	f.resolve(t, dm("hello"))
	calls := f.runner.calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "[system] Backup finished")
}

func TestResolve_SkillsSnapshotPinnedOnFirstTurn(t *testing.T) {
	cfg := baseConfig()
	cfg.Agent.Skills = []string{"calendar", "email"}
	f := newFixture(t, cfg)

	f.resolve(t, dm("hello"))

	calls := f.runner.calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "Available skills:\ncalendar\nemail")

	entry, err := f.store.Get(context.Background(), "agent:main:main")
	require.NoError(t, err)
	assert.Equal(t, "calendar\nemail", entry.SkillsSnapshot)
}

func TestResolve_SkillsSnapshotNotOverwritten(t *testing.T) {
	cfg := baseConfig()
	cfg.Agent.Skills = []string{"calendar"}
	f := newFixture(t, cfg)

	_, err := f.store.Update(context.Background(), "agent:main:main", func(e *session.Entry) error {
		e.SessionID = "sid-existing"
		e.SkillsSnapshot = "archived-skill"
		return nil
	})
	require.NoError(t, err)

	f.resolve(t, dm("hello"))

	calls := f.runner.calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "Available skills:\narchived-skill")
}
