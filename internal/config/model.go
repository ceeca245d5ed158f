// ABOUTME: Model reference parsing and precedence merging
// ABOUTME: Resolves "provider/model" strings, aliases, and per-session overrides

package config

import "strings"

// DefaultProvider and DefaultModel apply when no model is configured anywhere.
const (
	DefaultProvider = "anthropic"
	DefaultModel    = "claude-sonnet-4"
)

// ModelRef identifies one model at one inference provider.
type ModelRef struct {
	Provider string
	Model    string
}

// Label returns the canonical "provider/model" form.
func (r ModelRef) Label() string {
	return r.Provider + "/" + r.Model
}

// ParseModelRef parses a raw model string into a ModelRef. Accepted forms:
// a configured alias, "provider/model", or a bare model name (which keeps
// defaultProvider). Returns false for an empty or unusable string.
func ParseModelRef(raw, defaultProvider string, aliases map[string]string) (ModelRef, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ModelRef{}, false
	}
	if resolved, ok := aliases[strings.ToLower(text)]; ok {
		text = resolved
	}
	if provider, model, ok := strings.Cut(text, "/"); ok {
		provider = strings.TrimSpace(strings.ToLower(provider))
		model = strings.TrimSpace(model)
		if provider == "" || model == "" {
			return ModelRef{}, false
		}
		return ModelRef{Provider: provider, Model: model}, true
	}
	return ModelRef{Provider: defaultProvider, Model: text}, true
}

// DefaultModelRef resolves the agent's configured default model.
func (c *Config) DefaultModelRef() ModelRef {
	if c != nil {
		if ref, ok := ParseModelRef(c.Agent.Model, DefaultProvider, c.Agent.ModelAliases); ok {
			return ref
		}
	}
	return ModelRef{Provider: DefaultProvider, Model: DefaultModel}
}

// HeartbeatModelRef resolves the model for heartbeat turns. It falls back
// to the default model when no heartbeat model is configured.
func (c *Config) HeartbeatModelRef() ModelRef {
	def := c.DefaultModelRef()
	if c == nil {
		return def
	}
	if ref, ok := ParseModelRef(c.Agent.HeartbeatModel, def.Provider, c.Agent.ModelAliases); ok {
		return ref
	}
	return def
}

// ResolveModelRef merges the session-level model override over the
// configured default. The override wins only when it parses.
func (c *Config) ResolveModelRef(sessionOverride string) ModelRef {
	def := c.DefaultModelRef()
	if ref, ok := ParseModelRef(sessionOverride, def.Provider, c.modelAliases()); ok {
		return ref
	}
	return def
}

func (c *Config) modelAliases() map[string]string {
	if c == nil {
		return nil
	}
	return c.Agent.ModelAliases
}
