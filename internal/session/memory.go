// ABOUTME: In-memory implementation of the session Store
// ABOUTME: Used in tests and embedded deployments without a database path

package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with an in-process map. Entries are copied
// on the way in and out so callers never share memory with the store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	locks   map[string]*sync.Mutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) keyLock(key string) *sync.Mutex {
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
func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	copied := entry
	return &copied, nil
}

// Put writes the entry for a session key.
func (s *MemoryStore) Put(_ context.Context, key string, entry *Entry) error {
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = *entry
	return nil
}

// Update performs a serialized read-modify-write for one key.
func (s *MemoryStore) Update(ctx context.Context, key string, mutate func(*Entry) error) (*Entry, error) {
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

// Delete removes a session entry.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
