// ABOUTME: Inline directive extraction from free-text message bodies
// ABOUTME: Pure two-phase parse - directives only apply when they are the whole message

package directive

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Directives is the parse result for one message body. It is recomputed per
// message and never persisted as-is; sticky fields are folded into the
// session entry by the orchestrator.
type Directives struct {
	// Cleaned is the body with recognized directive tokens removed.
	Cleaned string

	HasThink   bool
	ThinkLevel string

	HasVerbose   bool
	VerboseLevel string

	HasReasoning   bool
	ReasoningLevel string

	HasElevated   bool
	ElevatedLevel string

	HasStatus bool

	HasModel bool
	RawModel string

	HasQueue   bool
	QueueMode  string
	QueueReset bool

	HasQueueOptions bool
	Debounce        time.Duration
	HasDebounce     bool
	Cap             int
	HasCap          bool
	Drop            string
}

// Any reports whether at least one directive was recognized.
func (d Directives) Any() bool {
	return d.HasThink || d.HasVerbose || d.HasReasoning || d.HasElevated ||
		d.HasStatus || d.HasModel || d.HasQueue
}

var (
	thinkRe     = regexp.MustCompile(`(?i)(^|\s)/think(?::|\s+)([a-z]+)\b`)
	verboseRe   = regexp.MustCompile(`(?i)(^|\s)/verbose(?::|\s+)(on|off)\b`)
	reasoningRe = regexp.MustCompile(`(?i)(^|\s)/reasoning(?::|\s+)(on|off)\b`)
	elevatedRe  = regexp.MustCompile(`(?i)(^|\s)/elevated(?::|\s+)?(on|off)?\b`)
	statusRe    = regexp.MustCompile(`(?i)(^|\s)/status\b`)
	modelRe     = regexp.MustCompile(`(?i)(^|\s)/model(?::|\s+)(\S+)`)
	queueRe     = regexp.MustCompile(`(?i)(^|\s)/queue(?::|\s+)(default|interrupt|steer-backlog|steer|followup|collect|reset)\b`)
	queueOptRe  = regexp.MustCompile(`(?i)(^|\s)(debounce|cap|drop):(\S+)`)
)

// Parse extracts inline directives from a raw message body. It is a pure
// function: no I/O, no session state. Directive tokens are recognized
// anywhere in the body; whether they actually apply is decided by
// ParseMessage, which enforces the whole-message rule.
func Parse(body string) Directives {
	d := Directives{Cleaned: body}

	d.Cleaned = thinkRe.ReplaceAllStringFunc(d.Cleaned, func(m string) string {
		sub := thinkRe.FindStringSubmatch(m)
		if level, ok := NormalizeThinkLevel(sub[2]); ok {
			d.HasThink = true
			d.ThinkLevel = level
			return sub[1]
		}
		return m
	})
	d.Cleaned = verboseRe.ReplaceAllStringFunc(d.Cleaned, func(m string) string {
		sub := verboseRe.FindStringSubmatch(m)
		d.HasVerbose = true
		d.VerboseLevel = strings.ToLower(sub[2])
		return sub[1]
	})
	d.Cleaned = reasoningRe.ReplaceAllStringFunc(d.Cleaned, func(m string) string {
		sub := reasoningRe.FindStringSubmatch(m)
		d.HasReasoning = true
		d.ReasoningLevel = strings.ToLower(sub[2])
		return sub[1]
	})
	d.Cleaned = elevatedRe.ReplaceAllStringFunc(d.Cleaned, func(m string) string {
		sub := elevatedRe.FindStringSubmatch(m)
		d.HasElevated = true
		d.ElevatedLevel = strings.ToLower(sub[2])
		if d.ElevatedLevel == "" {
			d.ElevatedLevel = "on"
		}
		return sub[1]
	})
	d.Cleaned = statusRe.ReplaceAllStringFunc(d.Cleaned, func(m string) string {
		sub := statusRe.FindStringSubmatch(m)
		d.HasStatus = true
		return sub[1]
	})
	d.Cleaned = modelRe.ReplaceAllStringFunc(d.Cleaned, func(m string) string {
		sub := modelRe.FindStringSubmatch(m)
		d.HasModel = true
		d.RawModel = sub[2]
		return sub[1]
	})
	d.Cleaned = queueRe.ReplaceAllStringFunc(d.Cleaned, func(m string) string {
		sub := queueRe.FindStringSubmatch(m)
		d.HasQueue = true
		mode := strings.ToLower(sub[2])
		if mode == "reset" {
			d.QueueReset = true
		} else {
			d.QueueMode = mode
		}
		return sub[1]
	})
	if d.HasQueue {
		d.Cleaned = queueOptRe.ReplaceAllStringFunc(d.Cleaned, func(m string) string {
			sub := queueOptRe.FindStringSubmatch(m)
			value := strings.ToLower(sub[3])
			switch strings.ToLower(sub[2]) {
			case "debounce":
				dur, err := time.ParseDuration(value)
				if err != nil {
					return m
				}
				d.HasDebounce = true
				d.Debounce = dur
			case "cap":
				n, err := strconv.Atoi(value)
				if err != nil || n < 1 {
					return m
				}
				d.HasCap = true
				d.Cap = n
			case "drop":
				policy, ok := normalizeDropPolicy(value)
				if !ok {
					return m
				}
				d.Drop = policy
			default:
				return m
			}
			d.HasQueueOptions = true
			return sub[1]
		})
	}

	d.Cleaned = strings.TrimSpace(collapseSpaces(d.Cleaned))
	return d
}

// collapseSpaces collapses runs of horizontal whitespace left behind by
// token removal while preserving line structure.
func collapseSpaces(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(strings.Join(strings.Fields(line), " "), " ")
	}
	return strings.Join(lines, "\n")
}

// ParseMessage runs the two-phase parse. Phase one tentatively extracts
// directives; phase two checks that nothing conversational remains once
// structural prefixes and (for groups) mentions are stripped. If real
// content remains, the tentative parse is discarded and the original body
// is treated as plain text with no directives applied.
func ParseMessage(body string, isGroup bool, mentions []string) Directives {
	parsed := Parse(body)
	if !parsed.Any() {
		return parsed
	}
	leftover := StripStructuralPrefixes(parsed.Cleaned)
	if isGroup {
		leftover = StripMentions(leftover, mentions)
	}
	if strings.TrimSpace(leftover) != "" {
		return Directives{Cleaned: body}
	}
	return parsed
}

// WithoutControls returns a copy with every control directive cleared.
// Used for senders that are not authorized to issue commands; the elevated
// flag is kept so the gate can still refuse explicitly.
func (d Directives) WithoutControls() Directives {
	cleared := Directives{Cleaned: d.Cleaned, HasElevated: d.HasElevated, ElevatedLevel: d.ElevatedLevel}
	return cleared
}

func normalizeDropPolicy(value string) (string, bool) {
	switch value {
	case "drop-oldest", "oldest", "old":
		return "drop-oldest", true
	case "drop-new", "new":
		return "drop-new", true
	case "reject", "busy":
		return "reject", true
	}
	return "", false
}
