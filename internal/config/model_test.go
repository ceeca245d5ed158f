// ABOUTME: Tests for model reference parsing and precedence merging
// ABOUTME: Aliases, provider/model forms, session overrides, heartbeat fallback

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseModelRef(t *testing.T) {
	ref, ok := ParseModelRef("anthropic/claude-opus-4", "anthropic", nil)
	assert.True(t, ok)
	assert.Equal(t, ModelRef{Provider: "anthropic", Model: "claude-opus-4"}, ref)

	ref, ok = ParseModelRef("claude-opus-4", "anthropic", nil)
	assert.True(t, ok)
	assert.Equal(t, "anthropic", ref.Provider)

	ref, ok = ParseModelRef("opus", "anthropic", map[string]string{"opus": "anthropic/claude-opus-4"})
	assert.True(t, ok)
	assert.Equal(t, "claude-opus-4", ref.Model)

	_, ok = ParseModelRef("", "anthropic", nil)
	assert.False(t, ok)

	_, ok = ParseModelRef("/missing-provider", "anthropic", nil)
	assert.False(t, ok)
}

func TestDefaultModelRef(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, "anthropic/claude-sonnet-4", cfg.DefaultModelRef().Label())

	cfg.Agent.Model = "openai/gpt-5"
	assert.Equal(t, "openai/gpt-5", cfg.DefaultModelRef().Label())
}

func TestHeartbeatModelRef_FallsBackToDefault(t *testing.T) {
	cfg := &Config{}
	cfg.Agent.Model = "anthropic/claude-sonnet-4"
	assert.Equal(t, "anthropic/claude-sonnet-4", cfg.HeartbeatModelRef().Label())

	cfg.Agent.HeartbeatModel = "anthropic/claude-haiku-4"
	assert.Equal(t, "anthropic/claude-haiku-4", cfg.HeartbeatModelRef().Label())
}

func TestResolveModelRef_SessionOverrideWins(t *testing.T) {
	cfg := &Config{}
	cfg.Agent.Model = "anthropic/claude-sonnet-4"

	assert.Equal(t, "anthropic/claude-sonnet-4", cfg.ResolveModelRef("").Label())
	assert.Equal(t, "anthropic/claude-opus-4", cfg.ResolveModelRef("anthropic/claude-opus-4").Label())
	assert.Equal(t, "anthropic/claude-sonnet-4", cfg.ResolveModelRef("  ").Label(),
		"unparseable override falls back to default")
}
