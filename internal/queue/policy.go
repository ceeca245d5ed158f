// ABOUTME: Queue policy resolution merging config, session, and inline overrides
// ABOUTME: Pure data computation - performs no admission action itself

package queue

import (
	"time"

	"github.com/2389/coven-relay/internal/config"
	"github.com/2389/coven-relay/internal/session"
)

// Mode decides what happens when a message arrives while a turn is active.
type Mode string

// Queue modes.
const (
	ModeDefault      Mode = "default"
	ModeInterrupt    Mode = "interrupt"
	ModeSteer        Mode = "steer"
	ModeSteerBacklog Mode = "steer-backlog"
	ModeFollowup     Mode = "followup"
	ModeCollect      Mode = "collect"
)

// DropPolicy decides what happens when the pending queue is at capacity.
type DropPolicy string

// Drop policies. DropOldest is the default: the caller is never blocked.
const (
	DropOldest DropPolicy = "drop-oldest"
	DropNew    DropPolicy = "drop-new"
	DropReject DropPolicy = "reject"
)

// DefaultCap bounds the pending queue when nothing is configured.
const DefaultCap = 10

// Policy is the resolved per-message execution policy.
type Policy struct {
	Mode     Mode
	Debounce time.Duration
	Cap      int
	Drop     DropPolicy
}

// Inline carries per-message overrides from an applied queue directive.
// Nil fields mean "not specified".
type Inline struct {
	Mode        string
	HasDebounce bool
	Debounce    time.Duration
	HasCap      bool
	Cap         int
	Drop        string
}

// Resolve merges queue settings into one effective policy. Precedence per
// field, independently: inline directive > session override > provider
// config > global config > built-in default.
func Resolve(cfg *config.Config, provider string, entry *session.Entry, inline *Inline) Policy {
	policy := Policy{Mode: ModeDefault, Cap: DefaultCap, Drop: DropOldest}

	apply := func(qc *config.QueueConfig) {
		if qc == nil {
			return
		}
		if mode, ok := parseMode(qc.Mode); ok {
			policy.Mode = mode
		}
		if qc.Debounce > 0 {
			policy.Debounce = qc.Debounce
		}
		if qc.Cap > 0 {
			policy.Cap = qc.Cap
		}
		if drop, ok := parseDrop(qc.Drop); ok {
			policy.Drop = drop
		}
	}

	if cfg != nil {
		apply(&cfg.Queue)
		if pc, ok := cfg.Providers[provider]; ok {
			apply(pc.Queue)
		}
	}

	if entry != nil {
		if mode, ok := parseMode(entry.QueueMode); ok {
			policy.Mode = mode
		}
		if entry.QueueDebounce > 0 {
			policy.Debounce = entry.QueueDebounce
		}
		if entry.QueueCap > 0 {
			policy.Cap = entry.QueueCap
		}
		if drop, ok := parseDrop(entry.QueueDrop); ok {
			policy.Drop = drop
		}
	}

	if inline != nil {
		if mode, ok := parseMode(inline.Mode); ok {
			policy.Mode = mode
		}
		if inline.HasDebounce {
			policy.Debounce = inline.Debounce
		}
		if inline.HasCap {
			policy.Cap = inline.Cap
		}
		if drop, ok := parseDrop(inline.Drop); ok {
			policy.Drop = drop
		}
	}

	return policy
}

func parseMode(raw string) (Mode, bool) {
	switch Mode(raw) {
	case ModeDefault, ModeInterrupt, ModeSteer, ModeSteerBacklog, ModeFollowup, ModeCollect:
		return Mode(raw), true
	}
	return "", false
}

func parseDrop(raw string) (DropPolicy, bool) {
	switch DropPolicy(raw) {
	case DropOldest, DropNew, DropReject:
		return DropPolicy(raw), true
	}
	return "", false
}
