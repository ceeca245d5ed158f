// ABOUTME: Session key derivation and parsing
// ABOUTME: Keys are stable across restarts: agent:<agentId>:<scopeSuffix>

package session

import (
	"regexp"
	"strings"
)

// Defaults used when no agent or main key is configured.
const (
	DefaultAgentID = "main"
	DefaultMainKey = "main"
)

var (
	safeIDRe      = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)
	invalidCharRe = regexp.MustCompile(`[^a-z0-9_-]+`)
)

// NormalizeAgentID keeps agent ids path-safe and shell-friendly. Invalid
// characters collapse to "-"; an unusable value falls back to the default.
func NormalizeAgentID(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return DefaultAgentID
	}
	if safeIDRe.MatchString(trimmed) {
		return trimmed
	}
	collapsed := invalidCharRe.ReplaceAllString(strings.ToLower(trimmed), "-")
	collapsed = strings.Trim(collapsed, "-")
	if len(collapsed) > 64 {
		collapsed = collapsed[:64]
	}
	if collapsed == "" {
		return DefaultAgentID
	}
	return collapsed
}

// MainKey builds the key for an agent's main (DM) conversation.
func MainKey(agentID, mainKey string) string {
	main := strings.TrimSpace(mainKey)
	if main == "" {
		main = DefaultMainKey
	}
	return "agent:" + NormalizeAgentID(agentID) + ":" + main
}

// PeerKey builds the key for a conversation with a specific peer. DMs map
// to the agent's main key; groups and channels get their own suffix so the
// same physical conversation always yields the same key.
func PeerKey(agentID, mainKey, provider, peerKind, peerID string) string {
	kind := strings.TrimSpace(strings.ToLower(peerKind))
	if kind == "" || kind == "dm" {
		return MainKey(agentID, mainKey)
	}
	prov := strings.TrimSpace(strings.ToLower(provider))
	if prov == "" {
		prov = "unknown"
	}
	peer := strings.TrimSpace(peerID)
	if peer == "" {
		peer = "unknown"
	}
	return "agent:" + NormalizeAgentID(agentID) + ":" + prov + ":" + kind + ":" + peer
}

// ParseKey splits a session key into agent id and scope suffix.
// Returns false for anything that is not an agent session key.
func ParseKey(key string) (agentID, rest string, ok bool) {
	raw := strings.TrimSpace(key)
	if raw == "" {
		return "", "", false
	}
	parts := strings.Split(raw, ":")
	fields := parts[:0]
	for _, p := range parts {
		if p != "" {
			fields = append(fields, p)
		}
	}
	if len(fields) < 3 || fields[0] != "agent" {
		return "", "", false
	}
	return fields[1], strings.Join(fields[2:], ":"), true
}

// AgentIDFromKey extracts the agent id from a session key, falling back to
// the default when the key does not parse.
func AgentIDFromKey(key string) string {
	if agentID, _, ok := ParseKey(key); ok {
		return agentID
	}
	return DefaultAgentID
}
