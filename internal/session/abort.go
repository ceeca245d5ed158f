// ABOUTME: Thread-safe TTL memory of recently aborted conversations
// ABOUTME: Lets the next turn carry an abort-recovery notice when no entry exists yet

package session

import (
	"container/list"
	"sync"
	"time"
)

type abortRecord struct {
	timestamp time.Time
	element   *list.Element
}

// AbortMemory remembers, per abort key, that the last run was aborted.
// It covers the gap where a run is aborted before any session entry has
// been persisted. TTL-based and size-limited; oldest keys are evicted
// first via a doubly-linked list for O(1) eviction.
type AbortMemory struct {
	mu      sync.Mutex
	seen    map[string]*abortRecord
	order   *list.List
	ttl     time.Duration
	maxSize int
}

// NewAbortMemory creates an abort memory with the given TTL and capacity.
func NewAbortMemory(ttl time.Duration, maxSize int) *AbortMemory {
	return &AbortMemory{
		seen:    make(map[string]*abortRecord),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Mark records that the run for an abort key was aborted.
func (m *AbortMemory) Mark(key string) {
	if key == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if rec, exists := m.seen[key]; exists {
		rec.timestamp = now
		m.order.MoveToBack(rec.element)
		return
	}
	if len(m.seen) >= m.maxSize {
		front := m.order.Front()
		if front != nil {
			oldest, _ := front.Value.(string)
			m.order.Remove(front)
			delete(m.seen, oldest)
		}
	}
	elem := m.order.PushBack(key)
	m.seen[key] = &abortRecord{timestamp: now, element: elem}
}

// Check reports whether the key was marked within the TTL and clears it,
// so the recovery notice is delivered at most once.
func (m *AbortMemory) Check(key string) bool {
	if key == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.seen[key]
	if !ok {
		return false
	}
	m.order.Remove(rec.element)
	delete(m.seen, key)
	return time.Since(rec.timestamp) < m.ttl
}
