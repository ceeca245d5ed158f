// ABOUTME: Pending system-event buffer drained into the next turn's prompt
// ABOUTME: Events are per session key, capped, delivered at most once

package reply

import "sync"

// maxPendingEvents bounds the per-session backlog; the oldest events are
// dropped when a quiet session accumulates more.
const maxPendingEvents = 32

// systemEvents holds out-of-band notices (subsystem status, timer results)
// waiting to ride along on a session's next turn.
type systemEvents struct {
	mu      sync.Mutex
	pending map[string][]string
}

func newSystemEvents() *systemEvents {
	return &systemEvents{pending: make(map[string][]string)}
}

func (s *systemEvents) add(key, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := append(s.pending[key], text)
	if len(events) > maxPendingEvents {
		events = events[len(events)-maxPendingEvents:]
	}
	s.pending[key] = events
}

// drain removes and returns the session's pending events, oldest first.
func (s *systemEvents) drain(key string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.pending[key]
	if len(events) == 0 {
		return nil
	}
	delete(s.pending, key)
	return events
}
