// ABOUTME: Final prompt assembly - session hints, media notes, transcript blocks
// ABOUTME: Also builds the one-time group intro system prompt

package reply

import (
	"fmt"
	"strings"

	"github.com/2389/coven-relay/internal/directive"
	"github.com/2389/coven-relay/internal/media"
	"github.com/2389/coven-relay/internal/session"
)

const abortRecoveryNotice = "Note: the previous run was aborted before it finished. Acknowledge that briefly if relevant, then continue with the new message."

// promptParts collects everything that goes into one run prompt.
type promptParts struct {
	body       string
	transcript string
	attachment media.Attachment
	aborted    bool
	skills     string
	events     []string
}

// assemblePrompt builds the final prompt text: system events, skill
// snapshot, and abort notice first, then the body, a transcript block when
// audio was transcribed, and the media note with its reply hint on top.
func (r *Replier) assemblePrompt(parts promptParts) string {
	body := parts.body
	if parts.aborted {
		body = abortRecoveryNotice + "\n\n" + body
	}
	if parts.skills != "" {
		body = "Available skills:\n" + parts.skills + "\n\n" + body
	}
	if len(parts.events) > 0 {
		lines := make([]string, 0, len(parts.events))
		for _, event := range parts.events {
			lines = append(lines, "[system] "+event)
		}
		body = strings.Join(lines, "\n") + "\n\n" + body
	}
	if parts.transcript != "" {
		body = body + "\n\nTranscript:\n" + parts.transcript
	}
	if note := media.Note(parts.attachment); note != "" {
		body = strings.TrimSpace(note + "\n" + media.ReplyHint + "\n" + body)
	}
	return body
}

// groupIntro returns the one-time system prompt injected into group chats
// on their first turn, or "" when none is needed.
func (r *Replier) groupIntro(msg *MessageContext, entry *session.Entry, isNewSession bool) string {
	if msg.ChatType != "group" {
		return ""
	}
	firstTurn := isNewSession || entry == nil || !entry.SystemSent
	needsIntro := entry != nil && entry.GroupActivationNeedsIntro
	if !firstTurn && !needsIntro {
		return ""
	}
	requireMention := true
	if r.cfg.Routing.GroupRequireMention != nil {
		requireMention = *r.cfg.Routing.GroupRequireMention
	}
	activation := "you are addressed directly"
	if !requireMention {
		activation = "your input adds value"
	}
	return fmt.Sprintf(
		"You are replying inside a group conversation. Speak only when %s; otherwise reply with exactly %s and nothing else. Keep replies short and conversational.",
		activation, SilentReplyToken)
}

// consumeLeadingThinkLevel interprets the prompt's first token as a think
// level when no level was resolved elsewhere. Returns the level (or "")
// and the prompt with a consumed token removed.
func consumeLeadingThinkLevel(prompt string) (string, string) {
	fields := strings.Fields(prompt)
	if len(fields) < 2 {
		return "", prompt
	}
	level, ok := directive.NormalizeThinkLevel(fields[0])
	if !ok {
		return "", prompt
	}
	return level, strings.TrimSpace(strings.Join(fields[1:], " "))
}
