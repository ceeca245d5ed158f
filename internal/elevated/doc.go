// Package elevated authorizes privileged directives against per-provider
// sender allow-lists.
//
// A sender is approved when any allow-list entry matches any of their
// identity tokens (name, username, tag, E.164 number, raw from/to), each
// compared raw, scheme-stripped, normalized (trim+lowercase), and slugified.
// "*" approves everyone. Discord is the one provider with a fallback: when
// no discord allow-list is explicitly configured, the discord DM allow-list
// is consulted instead. An explicitly empty list never falls back.
package elevated
