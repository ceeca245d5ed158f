// ABOUTME: SQLite implementation of the session Store using modernc.org/sqlite
// ABOUTME: Provides durable per-session state with automatic schema creation

package session

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-key write serialization
}

// NewSQLiteStore creates a new SQLite store at the given path. The schema
// is created automatically; parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "session-store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("session store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			key TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			think_level TEXT NOT NULL DEFAULT '',
			verbose_level TEXT NOT NULL DEFAULT '',
			reasoning_level TEXT NOT NULL DEFAULT '',
			elevated_level TEXT NOT NULL DEFAULT '',
			model_override TEXT NOT NULL DEFAULT '',
			queue_mode TEXT NOT NULL DEFAULT '',
			queue_debounce_ms INTEGER NOT NULL DEFAULT 0,
			queue_cap INTEGER NOT NULL DEFAULT 0,
			queue_drop TEXT NOT NULL DEFAULT '',
			chat_type TEXT NOT NULL DEFAULT '',
			group_needs_intro INTEGER NOT NULL DEFAULT 0,
			system_sent INTEGER NOT NULL DEFAULT 0,
			skills_snapshot TEXT NOT NULL DEFAULT '',
			auth_profile_override TEXT NOT NULL DEFAULT '',
			aborted_last_run INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// keyLock returns the mutex serializing read-modify-write for one key.
// Locks are created on demand and live for the life of the store.
func (s *SQLiteStore) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

// Get returns the entry for a session key, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, think_level, verbose_level, reasoning_level,
			elevated_level, model_override, queue_mode, queue_debounce_ms,
			queue_cap, queue_drop, chat_type, group_needs_intro, system_sent,
			skills_snapshot, auth_profile_override, aborted_last_run,
			created_at, updated_at
		FROM sessions WHERE key = ?`, key)

	var e Entry
	var debounceMs int64
	err := row.Scan(&e.SessionID, &e.ThinkLevel, &e.VerboseLevel,
		&e.ReasoningLevel, &e.ElevatedLevel, &e.ModelOverride, &e.QueueMode,
		&debounceMs, &e.QueueCap, &e.QueueDrop, &e.ChatType,
		&e.GroupActivationNeedsIntro, &e.SystemSent, &e.SkillsSnapshot,
		&e.AuthProfileOverride, &e.AbortedLastRun, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	e.QueueDebounce = time.Duration(debounceMs) * time.Millisecond
	return &e, nil
}

// Put writes the entry for a session key, creating or replacing it.
func (s *SQLiteStore) Put(ctx context.Context, key string, entry *Entry) error {
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			key, session_id, think_level, verbose_level, reasoning_level,
			elevated_level, model_override, queue_mode, queue_debounce_ms,
			queue_cap, queue_drop, chat_type, group_needs_intro, system_sent,
			skills_snapshot, auth_profile_override, aborted_last_run,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			session_id = excluded.session_id,
			think_level = excluded.think_level,
			verbose_level = excluded.verbose_level,
			reasoning_level = excluded.reasoning_level,
			elevated_level = excluded.elevated_level,
			model_override = excluded.model_override,
			queue_mode = excluded.queue_mode,
			queue_debounce_ms = excluded.queue_debounce_ms,
			queue_cap = excluded.queue_cap,
			queue_drop = excluded.queue_drop,
			chat_type = excluded.chat_type,
			group_needs_intro = excluded.group_needs_intro,
			system_sent = excluded.system_sent,
			skills_snapshot = excluded.skills_snapshot,
			auth_profile_override = excluded.auth_profile_override,
			aborted_last_run = excluded.aborted_last_run,
			updated_at = excluded.updated_at`,
		key, entry.SessionID, entry.ThinkLevel, entry.VerboseLevel,
		entry.ReasoningLevel, entry.ElevatedLevel, entry.ModelOverride,
		entry.QueueMode, entry.QueueDebounce.Milliseconds(), entry.QueueCap,
		entry.QueueDrop, entry.ChatType, entry.GroupActivationNeedsIntro,
		entry.SystemSent, entry.SkillsSnapshot, entry.AuthProfileOverride,
		entry.AbortedLastRun, entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting session: %w", err)
	}
	return nil
}

// Update performs a serialized read-modify-write for one key. Distinct keys
// proceed in parallel.
func (s *SQLiteStore) Update(ctx context.Context, key string, mutate func(*Entry) error) (*Entry, error) {
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	entry, err := s.Get(ctx, key)
	if err == ErrNotFound {
		entry = &Entry{}
	} else if err != nil {
		return nil, err
	}
	if err := mutate(entry); err != nil {
		return nil, err
	}
	if err := s.Put(ctx, key, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Delete removes a session entry. Deleting a missing key is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
