// ABOUTME: Inbound message context, reply payloads, and orchestrator options
// ABOUTME: MessageContext is owned by one call and mutated in place by staging steps

package reply

import (
	"context"
	"strings"

	"github.com/2389/coven-relay/internal/elevated"
	"github.com/2389/coven-relay/internal/media"
	"github.com/2389/coven-relay/internal/typing"
)

// SilentReplyToken marks agent output that should never be delivered to the
// chat surface. It also keeps the typing indicator from firing.
const SilentReplyToken = "NO_REPLY"

// MessageContext is one inbound message as handed over by a provider
// adapter. It is owned exclusively by the Resolve call that received it and
// is mutated in place by staging steps (transcription body replacement,
// media relocation) before being handed downstream.
type MessageContext struct {
	// Provider is the chat surface identifier ("whatsapp", "discord", ...).
	Provider string

	SenderName     string
	SenderUsername string
	SenderTag      string
	SenderE164     string
	From           string
	To             string

	Body  string
	Media media.Attachment

	// SessionKey is the pre-derived session key. When empty, the key is
	// derived from the configured agent, provider, chat type, and peer.
	SessionKey string
	PeerID     string

	// ChatType is "dm", "group", or "room".
	ChatType string

	// WasMentioned reports whether the bot was addressed in a group chat.
	WasMentioned bool
	// Mentions lists the bot's names for mention stripping in groups.
	Mentions []string

	// CommandAuthorized gates control directives and text commands.
	// Nil means authorized (the adapter did not restrict the sender).
	CommandAuthorized *bool

	MessageID string

	// OriginatingChannel/OriginatingTo route deferred replies back to the
	// surface that produced this message.
	OriginatingChannel string
	OriginatingTo      string
}

func (m *MessageContext) authorized() bool {
	return m.CommandAuthorized == nil || *m.CommandAuthorized
}

func (m *MessageContext) providerKey() string {
	return strings.ToLower(strings.TrimSpace(m.Provider))
}

func (m *MessageContext) isGroup() bool {
	return m.ChatType == "group" || m.ChatType == "room"
}

func (m *MessageContext) sender() elevated.Sender {
	return elevated.Sender{
		Name:     m.SenderName,
		Username: m.SenderUsername,
		Tag:      m.SenderTag,
		E164:     m.SenderE164,
		From:     m.From,
		To:       m.To,
	}
}

// Payload is one outbound message. Resolve returns zero payloads when no
// reply should be sent; that is not an error.
type Payload struct {
	Text string
}

// Options tunes one Resolve call.
type Options struct {
	// Heartbeat marks a timer-triggered turn: the heartbeat model override
	// applies and the typing indicator is suppressed.
	Heartbeat bool
	// TypingNotify is invoked for each typing presence signal. Nil
	// disables typing for this turn.
	TypingNotify func()
	// OnTypingController receives the turn's typing controller, for
	// adapters that need to stop it when output starts streaming.
	OnTypingController func(*typing.Controller)
}

// Command is the context handed to the text-command handler.
type Command struct {
	Provider   string
	SessionKey string
	Body       string
	IsGroup    bool
	Authorized bool
	From       string
	To         string
}

// CommandResult is the handler's verdict: Handled short-circuits the turn
// and its payloads are returned as-is.
type CommandResult struct {
	Handled  bool
	Payloads []Payload
}

// CommandHandler runs provider/text commands. A nil handler, an error, or
// Handled=false all mean "continue with the agent turn".
type CommandHandler func(ctx context.Context, cmd Command) (CommandResult, error)
