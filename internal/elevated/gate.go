// ABOUTME: Elevated-access gate authorizing privileged directives
// ABOUTME: Matches sender identity tokens against per-provider allow-lists

package elevated

import (
	"regexp"
	"strings"

	"github.com/2389/coven-relay/internal/config"
)

// Sender carries the identity fields considered when matching allow-lists.
type Sender struct {
	Name     string
	Username string
	Tag      string
	E164     string
	From     string
	To       string
}

var (
	providerSchemeRe = regexp.MustCompile(`(?i)^(whatsapp|telegram|discord|signal|imessage|webchat|user|group|channel):`)
	slugSpaceRe      = regexp.MustCompile(`[\s_]+`)
	slugInvalidRe    = regexp.MustCompile(`[^a-z0-9-]+`)
	slugDashRunRe    = regexp.MustCompile(`-{2,}`)
)

// normalizeToken trims and lowercases an identity token.
func normalizeToken(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// slugToken lowercases and collapses non-alphanumerics to single dashes,
// so "@Some User" and "some-user" compare equal.
func slugToken(value string) string {
	text := strings.ToLower(strings.TrimSpace(value))
	if text == "" {
		return ""
	}
	text = strings.TrimLeft(text, "@#")
	text = slugSpaceRe.ReplaceAllString(text, "-")
	text = slugInvalidRe.ReplaceAllString(text, "-")
	text = slugDashRunRe.ReplaceAllString(text, "-")
	return strings.Trim(text, "-")
}

// stripProviderScheme removes a leading provider scheme, e.g.
// "whatsapp:+15551234567" -> "+15551234567".
func stripProviderScheme(value string) string {
	return providerSchemeRe.ReplaceAllString(strings.TrimSpace(value), "")
}

// allowListFor resolves the provider's allow-list. Discord falls back to
// the DM allow-list only when no discord entry is explicitly configured;
// an explicitly empty list stays empty.
func allowListFor(cfg *config.Config, provider string) []string {
	if cfg == nil {
		return nil
	}
	allowFrom := cfg.Agent.Elevated.AllowFrom
	if provider == "discord" {
		if entries, explicit := allowFrom["discord"]; explicit {
			return entries
		}
		return cfg.Discord.DM.AllowFrom
	}
	return allowFrom[provider]
}

// IsApproved reports whether the sender may use elevated directives on the
// given provider. An allow-list entry of "*" approves everyone; otherwise
// approval requires an entry whose raw, scheme-stripped, normalized, or
// slugified form matches one of the sender's identity tokens. An empty or
// missing allow-list approves no one.
func IsApproved(provider string, sender Sender, cfg *config.Config) bool {
	rawAllow := allowListFor(cfg, provider)
	entries := make([]string, 0, len(rawAllow))
	for _, entry := range rawAllow {
		if trimmed := strings.TrimSpace(entry); trimmed != "" {
			entries = append(entries, trimmed)
		}
	}
	if len(entries) == 0 {
		return false
	}
	for _, entry := range entries {
		if entry == "*" {
			return true
		}
	}

	tokens := make(map[string]struct{})
	add := func(value string) {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return
		}
		tokens[trimmed] = struct{}{}
		if normalized := normalizeToken(trimmed); normalized != "" {
			tokens[normalized] = struct{}{}
		}
		if slugged := slugToken(trimmed); slugged != "" {
			tokens[slugged] = struct{}{}
		}
	}
	add(sender.Name)
	add(sender.Username)
	add(sender.Tag)
	add(sender.E164)
	add(sender.From)
	add(stripProviderScheme(sender.From))
	add(sender.To)
	add(stripProviderScheme(sender.To))

	has := func(key string) bool {
		_, ok := tokens[key]
		return ok
	}
	for _, entry := range entries {
		stripped := stripProviderScheme(entry)
		if has(entry) || has(stripped) {
			return true
		}
		if normalized := normalizeToken(stripped); normalized != "" && has(normalized) {
			return true
		}
		if slugged := slugToken(stripped); slugged != "" && has(slugged) {
			return true
		}
	}
	return false
}
