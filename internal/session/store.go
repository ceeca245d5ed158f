// ABOUTME: Store interface and Entry type for per-session persisted state
// ABOUTME: Serialized read-modify-write per key, full parallelism across keys

package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no entry exists for a session key.
var ErrNotFound = errors.New("session not found")

// Entry is the persisted per-session record. Created on first message in a
// session, conditionally mutated on every turn, deleted only by explicit
// session reset or agent deletion.
type Entry struct {
	SessionID string

	ThinkLevel     string
	VerboseLevel   string
	ReasoningLevel string
	ElevatedLevel  string

	ModelOverride string

	QueueMode     string
	QueueDebounce time.Duration
	QueueCap      int
	QueueDrop     string

	ChatType                  string // "dm", "group", "room"
	GroupActivationNeedsIntro bool
	SystemSent                bool
	SkillsSnapshot            string

	AuthProfileOverride string
	AbortedLastRun      bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists session entries keyed by session key.
//
// Update must serialize read-modify-write cycles per key while allowing
// full parallelism across distinct keys. The mutate callback receives the
// current entry (a fresh one if none exists) and may modify it in place;
// returning an error abandons the write.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key string, entry *Entry) error
	Update(ctx context.Context, key string, mutate func(*Entry) error) (*Entry, error)
	Delete(ctx context.Context, key string) error
	Close() error
}
