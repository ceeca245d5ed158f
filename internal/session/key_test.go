// ABOUTME: Tests for session key derivation and parsing
// ABOUTME: Validates stability, normalization, and group/DM suffix mapping

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAgentID(t *testing.T) {
	assert.Equal(t, "main", NormalizeAgentID(""))
	assert.Equal(t, "main", NormalizeAgentID("   "))
	assert.Equal(t, "my-agent_2", NormalizeAgentID("my-agent_2"))
	assert.Equal(t, "some-agent", NormalizeAgentID("Some Agent!"))
	assert.Equal(t, "main", NormalizeAgentID("!!!"))
}

func TestMainKey(t *testing.T) {
	assert.Equal(t, "agent:main:main", MainKey("", ""))
	assert.Equal(t, "agent:helper:work", MainKey("helper", "work"))
}

func TestPeerKey_DMMapsToMain(t *testing.T) {
	key := PeerKey("helper", "", "whatsapp", "dm", "+15551234567")

	assert.Equal(t, "agent:helper:main", key)
}

func TestPeerKey_GroupGetsOwnSuffix(t *testing.T) {
	key := PeerKey("helper", "", "WhatsApp", "group", "group-123")

	assert.Equal(t, "agent:helper:whatsapp:group:group-123", key)
}

func TestPeerKey_Stability(t *testing.T) {
	// Same physical conversation yields the same key every time
	a := PeerKey("helper", "", "telegram", "group", "g1")
	b := PeerKey("helper", "", "telegram", "group", "g1")

	assert.Equal(t, a, b)
}

func TestParseKey(t *testing.T) {
	agentID, rest, ok := ParseKey("agent:helper:whatsapp:group:g1")

	assert.True(t, ok)
	assert.Equal(t, "helper", agentID)
	assert.Equal(t, "whatsapp:group:g1", rest)
}

func TestParseKey_Invalid(t *testing.T) {
	_, _, ok := ParseKey("subagent:foo")
	assert.False(t, ok)

	_, _, ok = ParseKey("agent:only-two")
	assert.False(t, ok)

	_, _, ok = ParseKey("")
	assert.False(t, ok)
}

func TestAgentIDFromKey_Fallback(t *testing.T) {
	assert.Equal(t, "main", AgentIDFromKey("not-a-session-key"))
	assert.Equal(t, "helper", AgentIDFromKey("agent:helper:main"))
}
