// Package directive extracts structured control directives from free-text
// message bodies.
//
// Recognized tokens: /think, /verbose, /reasoning, /elevated, /status,
// /model, and /queue with debounce/cap/drop options. Parsing is pure and
// deterministic.
//
// Directives only take effect when they are the entire effective message.
// ParseMessage implements this as a two-phase parse: a tentative extraction
// followed by a check that nothing conversational remains after structural
// prefixes (and, in groups, mentions) are stripped. A line that merely
// contains a directive-looking token next to real content is plain text.
package directive
