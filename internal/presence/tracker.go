// Package presence tracks which end-user sessions are online and which are typing.
package presence

import "sort"

// Tracker holds the online set and the typing subset.
// It is not safe for concurrent use; callers serialize access.
type Tracker struct {
	online map[string]struct{}
	typing map[string]struct{}
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		online: make(map[string]struct{}),
		typing: make(map[string]struct{}),
	}
}

// ApplySnapshot replaces the online set wholesale. Typing flags of sessions
// absent from the snapshot are dropped.
func (t *Tracker) ApplySnapshot(sessionIDs []string) {
	online := make(map[string]struct{}, len(sessionIDs))
	for _, id := range sessionIDs {
		if id != "" {
			online[id] = struct{}{}
		}
	}
	t.online = online

	for id := range t.typing {
		if _, ok := online[id]; !ok {
			delete(t.typing, id)
		}
	}
}

// MarkOnline inserts a session. Idempotent.
func (t *Tracker) MarkOnline(sessionID string) {
	t.online[sessionID] = struct{}{}
}

// MarkOffline removes a session and clears its typing flag. Idempotent.
func (t *Tracker) MarkOffline(sessionID string) {
	delete(t.online, sessionID)
	delete(t.typing, sessionID)
}

// SetTyping records the latest typing state for a session.
func (t *Tracker) SetTyping(sessionID string, isTyping bool) {
	if isTyping {
		t.typing[sessionID] = struct{}{}
		return
	}
	delete(t.typing, sessionID)
}

// IsOnline reports whether the session is connected.
func (t *Tracker) IsOnline(sessionID string) bool {
	_, ok := t.online[sessionID]
	return ok
}

// IsTyping reports whether the session is composing.
func (t *Tracker) IsTyping(sessionID string) bool {
	_, ok := t.typing[sessionID]
	return ok
}

// Online returns the online sessions, sorted.
func (t *Tracker) Online() []string {
	return sortedKeys(t.online)
}

// Typing returns the typing sessions, sorted.
func (t *Tracker) Typing() []string {
	return sortedKeys(t.typing)
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
