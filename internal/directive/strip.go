// ABOUTME: Structural prefix and mention stripping for inbound bodies
// ABOUTME: Used by the whole-message rule to decide if real content remains

package directive

import (
	"regexp"
	"strings"
)

var (
	// Bracketed envelope tags some surfaces prepend, e.g. "[WhatsApp] ..."
	// or "[forwarded]". Only leading tags are structural.
	structuralTagRe = regexp.MustCompile(`^\s*\[[^\]\n]{1,64}\]\s*`)
	// Quoted-reply header lines like "> earlier message".
	quoteLineRe = regexp.MustCompile(`(?m)^>\s?.*$`)
)

// StripStructuralPrefixes removes surface envelope decoration that is not
// conversational content: leading bracketed tags and quoted-reply lines.
func StripStructuralPrefixes(body string) string {
	out := body
	for {
		next := structuralTagRe.ReplaceAllString(out, "")
		if next == out {
			break
		}
		out = next
	}
	out = quoteLineRe.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

// StripMentions removes @-mentions of the given names (the bot's known
// handles) from the body. Matching is case-insensitive; the leading @ is
// optional in the configured name.
func StripMentions(body string, mentions []string) string {
	out := body
	for _, m := range mentions {
		name := strings.TrimPrefix(strings.TrimSpace(m), "@")
		if name == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)@` + regexp.QuoteMeta(name) + `\b`)
		if err != nil {
			continue
		}
		out = re.ReplaceAllString(out, "")
	}
	return strings.TrimSpace(out)
}
