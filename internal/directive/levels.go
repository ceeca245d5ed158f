// ABOUTME: Normalization of think/verbose/reasoning/elevated level strings
// ABOUTME: Shared by the parser, orchestrator, and directive-only confirmations

package directive

import "strings"

// Think levels, weakest to strongest.
const (
	ThinkOff    = "off"
	ThinkLow    = "low"
	ThinkMedium = "medium"
	ThinkHigh   = "high"
	ThinkMax    = "max"
)

// NormalizeThinkLevel maps a raw token to a canonical think level.
func NormalizeThinkLevel(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "off", "none":
		return ThinkOff, true
	case "low", "light":
		return ThinkLow, true
	case "medium", "mid":
		return ThinkMedium, true
	case "high", "hard":
		return ThinkHigh, true
	case "max", "highest", "hardest":
		return ThinkMax, true
	}
	return "", false
}

// NormalizeToggle maps a raw token to "on"/"off".
func NormalizeToggle(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "true", "1", "yes":
		return "on", true
	case "off", "false", "0", "no":
		return "off", true
	}
	return "", false
}
