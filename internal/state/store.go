// Package state owns the console's presence and conversation projections and
// applies channel events to them one at a time.
package state

import (
	"sync"

	"github.com/xiaot623/livedesk/internal/domain"
	"github.com/xiaot623/livedesk/internal/presence"
	"github.com/xiaot623/livedesk/internal/projection"
)

// Outcome reports the effect of one handled event.
type Outcome struct {
	projection.Result
	PresenceChanged bool
	Notice          string
}

// View is a consistent read-only snapshot of the whole state.
type View struct {
	Online  []string            `json:"online"`
	Typing  []string            `json:"typing"`
	Chats   []domain.Chat       `json:"chats"`
	Focused *domain.ChatDetails `json:"focused,omitempty"`
}

// Store is the state object of one operator session. Every mutation takes the
// write lock, so an event is applied to all projections before the next one.
type Store struct {
	mu        sync.RWMutex
	presence  *presence.Tracker
	projector *projection.Projector
}

// New returns an empty store remembering dedupWindow message ids per chat.
func New(dedupWindow int) *Store {
	return &Store{
		presence:  presence.NewTracker(),
		projector: projection.New(dedupWindow),
	}
}

// Handle applies one inbound event.
func (s *Store) Handle(ev domain.Event) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := ev.(type) {
	case domain.PresenceSnapshot:
		s.presence.ApplySnapshot(e.ActiveSessionIDs)
		return Outcome{PresenceChanged: true}
	case domain.SessionConnected:
		s.presence.MarkOnline(e.SessionID)
		return Outcome{PresenceChanged: true}
	case domain.SessionDisconnected:
		s.presence.MarkOffline(e.SessionID)
		return Outcome{PresenceChanged: true}
	case domain.TypingChanged:
		s.presence.SetTyping(e.SessionID, e.IsTyping)
		return Outcome{PresenceChanged: true}
	case domain.MessageReceived:
		return Outcome{Result: s.projector.ApplyMessage(e)}
	case domain.AIToggled:
		return Outcome{Result: s.projector.ApplyAIToggle(e.ChatID, e.Enabled)}
	case domain.ChatClosed:
		return Outcome{Result: s.projector.ApplyChatClosed(e.ChatID)}
	case domain.ChannelError:
		return Outcome{Notice: e.Message}
	default:
		return Outcome{}
	}
}

// SetChats replaces the conversation list with a fetched one.
func (s *Store) SetChats(chats []domain.Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projector.SetChats(chats)
}

// BeginFocus buffers messages for chatID while its transcript is fetched.
func (s *Store) BeginFocus(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projector.BeginFocus(chatID)
}

// CancelFocus stops buffering for chatID after a failed fetch.
func (s *Store) CancelFocus(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projector.CancelFocus(chatID)
}

// Focus installs the focused transcript. Refocusing the focused chat merges.
func (s *Store) Focus(details domain.ChatDetails) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projector.Focus(details)
}

// ClearFocus drops the focused transcript.
func (s *Store) ClearFocus() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projector.ClearFocus()
}

// PrependOlder merges an older page into the focus if chatID is still focused.
func (s *Store) PrependOlder(chatID string, page domain.ChatDetails) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projector.PrependOlder(chatID, page)
}

// SeedSeen warms the duplicate window of a known chat.
func (s *Store) SeedSeen(chatID string, ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projector.SeedSeen(chatID, ids)
}

// FocusedID returns the focused chat id or "".
func (s *Store) FocusedID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projector.FocusedID()
}

// Focused returns a copy of the focused transcript.
func (s *Store) Focused() (domain.ChatDetails, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projector.Focused()
}

// Chat looks up a chat in the list or the focus.
func (s *Store) Chat(chatID string) (domain.Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projector.Chat(chatID)
}

// Chats returns a copy of the conversation list.
func (s *Store) Chats() []domain.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projector.Chats()
}

// IsOnline reports whether a session is connected.
func (s *Store) IsOnline(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presence.IsOnline(sessionID)
}

// IsTyping reports whether a session is composing.
func (s *Store) IsTyping(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presence.IsTyping(sessionID)
}

// View returns a snapshot of presence, list and focus taken under one lock.
func (s *Store) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := View{
		Online: s.presence.Online(),
		Typing: s.presence.Typing(),
		Chats:  s.projector.Chats(),
	}
	if focus, ok := s.projector.Focused(); ok {
		v.Focused = &focus
	}
	return v
}
