// Package config loads and validates coven-relay configuration.
//
// Configuration is a YAML file with ${ENV_VAR} expansion and duration
// strings ("30s", "2m") parsed into time.Duration at load time. The parsed
// Config is treated as an immutable snapshot: callers read it, merge
// helpers (model, queue, elevated) compute effective per-turn values, and
// nothing writes it back.
//
// Precedence for every merged concern is inline directive > session
// override > provider override > global default, implemented by explicit
// functions rather than ad-hoc map merging.
package config
