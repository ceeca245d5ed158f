// ABOUTME: Directive-only short-circuit replies and sticky directive persistence
// ABOUTME: Confirmations are synchronous; the agent never runs for a pure directive

package reply

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/2389/coven-relay/internal/config"
	"github.com/2389/coven-relay/internal/directive"
	"github.com/2389/coven-relay/internal/queue"
	"github.com/2389/coven-relay/internal/session"
)

// isModelListAlias reports whether a /model argument only asks for the
// catalog rather than switching models.
func isModelListAlias(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "status", "list":
		return true
	}
	return false
}

// handleDirectiveOnly applies a whole-message directive, persists it, and
// returns a confirmation reply without starting a run.
func (r *Replier) handleDirectiveOnly(
	ctx context.Context,
	sessionKey string,
	msg *MessageContext,
	d directive.Directives,
	entry *session.Entry,
	modelRef config.ModelRef,
	levels levelSet,
	elevatedAllowed bool,
) ([]Payload, error) {
	var lines []string
	var newOverride string
	persistModel := false

	if d.HasModel {
		if isModelListAlias(d.RawModel) {
			lines = append(lines, r.modelStatusText(modelRef))
		} else if ref, ok := config.ParseModelRef(d.RawModel, modelRef.Provider, r.cfg.Agent.ModelAliases); ok {
			newOverride = ref.Label()
			persistModel = true
			if alias := r.aliasFor(d.RawModel); alias != "" {
				lines = append(lines, fmt.Sprintf("Model switched to %s (%s).", alias, ref.Label()))
			} else {
				lines = append(lines, fmt.Sprintf("Model switched to %s.", ref.Label()))
			}
			modelRef = ref
		} else {
			lines = append(lines, fmt.Sprintf("Unknown model %q. Current model: %s.", d.RawModel, modelRef.Label()))
		}
	}
	if d.HasThink {
		lines = append(lines, fmt.Sprintf("Thinking level set to %s.", d.ThinkLevel))
	}
	if d.HasVerbose {
		lines = append(lines, fmt.Sprintf("Verbose output %s.", d.VerboseLevel))
	}
	if d.HasReasoning {
		lines = append(lines, fmt.Sprintf("Reasoning visibility %s.", d.ReasoningLevel))
	}
	if d.HasElevated && elevatedAllowed {
		lines = append(lines, fmt.Sprintf("Elevated mode %s.", d.ElevatedLevel))
	}
	if d.HasQueue {
		if d.QueueReset {
			lines = append(lines, "Queue settings reset to defaults.")
		} else {
			lines = append(lines, fmt.Sprintf("Queue mode set to %s.", d.QueueMode))
		}
	}
	if d.HasStatus {
		lines = append(lines, r.statusText(sessionKey, modelRef, levels, entry))
	}

	_, err := r.store.Update(ctx, sessionKey, func(e *session.Entry) error {
		applyStickyDirectives(e, d, elevatedAllowed)
		if persistModel {
			e.ModelOverride = newOverride
		}
		if msg.ChatType != "" && e.ChatType == "" {
			e.ChatType = msg.ChatType
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("persisting directives for %s: %w", sessionKey, err)
	}

	if len(lines) == 0 {
		return nil, nil
	}
	return []Payload{{Text: strings.Join(lines, "\n")}}, nil
}

// persistDirectives folds sticky directive fields into the session entry
// for messages that carry directives alongside nothing else persistable.
// When the message has no sticky directives the entry is returned as-is,
// without creating one.
func (r *Replier) persistDirectives(
	ctx context.Context,
	sessionKey string,
	d directive.Directives,
	entry *session.Entry,
	modelRef config.ModelRef,
	elevatedAllowed bool,
) (*session.Entry, config.ModelRef, error) {
	var newOverride string
	persistModel := false
	if d.HasModel && !isModelListAlias(d.RawModel) {
		if ref, ok := config.ParseModelRef(d.RawModel, modelRef.Provider, r.cfg.Agent.ModelAliases); ok {
			newOverride = ref.Label()
			persistModel = true
			modelRef = ref
		}
	}

	sticky := d.HasThink || d.HasVerbose || d.HasReasoning ||
		(d.HasElevated && elevatedAllowed) ||
		(d.HasQueue && d.QueueReset) || persistModel
	if !sticky {
		return entry, modelRef, nil
	}

	updated, err := r.store.Update(ctx, sessionKey, func(e *session.Entry) error {
		applyStickyDirectives(e, d, elevatedAllowed)
		if persistModel {
			e.ModelOverride = newOverride
		}
		return nil
	})
	if err != nil {
		return nil, modelRef, fmt.Errorf("persisting directives for %s: %w", sessionKey, err)
	}
	return updated, modelRef, nil
}

// applyStickyDirectives writes level and queue directives into an entry.
func applyStickyDirectives(e *session.Entry, d directive.Directives, elevatedAllowed bool) {
	if d.HasThink {
		e.ThinkLevel = d.ThinkLevel
	}
	if d.HasVerbose {
		e.VerboseLevel = d.VerboseLevel
	}
	if d.HasReasoning {
		e.ReasoningLevel = d.ReasoningLevel
	}
	if d.HasElevated && elevatedAllowed {
		e.ElevatedLevel = d.ElevatedLevel
	}
	if d.HasQueue {
		if d.QueueReset {
			e.QueueMode = ""
			e.QueueDebounce = 0
			e.QueueCap = 0
			e.QueueDrop = ""
		} else {
			e.QueueMode = d.QueueMode
			if d.HasDebounce {
				e.QueueDebounce = d.Debounce
			}
			if d.HasCap {
				e.QueueCap = d.Cap
			}
			if d.Drop != "" {
				e.QueueDrop = d.Drop
			}
		}
	}
}

// aliasFor returns the configured alias matching a raw model argument.
func (r *Replier) aliasFor(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := r.cfg.Agent.ModelAliases[key]; ok {
		return key
	}
	return ""
}

// modelStatusText lists the current model and the configured aliases.
func (r *Replier) modelStatusText(modelRef config.ModelRef) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current model: %s", modelRef.Label())
	if len(r.cfg.Agent.ModelAliases) == 0 {
		return b.String()
	}
	names := make([]string, 0, len(r.cfg.Agent.ModelAliases))
	for name := range r.cfg.Agent.ModelAliases {
		names = append(names, name)
	}
	sort.Strings(names)
	b.WriteString("\nAliases:")
	for _, name := range names {
		fmt.Fprintf(&b, "\n  %s -> %s", name, r.cfg.Agent.ModelAliases[name])
	}
	return b.String()
}

// statusText renders the /status reply for a session.
func (r *Replier) statusText(sessionKey string, modelRef config.ModelRef, levels levelSet, entry *session.Entry) string {
	policy := queue.Resolve(r.cfg, "", entry, nil)
	think := levels.think
	if think == "" {
		think = "off"
	}
	return fmt.Sprintf(
		"Model: %s\nThink: %s | Verbose: %s | Reasoning: %s | Elevated: %s\nQueue: %s (cap %d, %s)\nSession: %s",
		modelRef.Label(), think, levels.verbose, levels.reasoning, levels.elevated,
		policy.Mode, policy.Cap, policy.Drop, sessionKey)
}
