package domain

import "time"

// Event is an inbound domain event delivered by the event channel.
// The set of implementations is closed; consumers switch on the concrete type.
type Event interface {
	isEvent()
}

// PresenceSnapshot carries the full online set, delivered once per connection.
type PresenceSnapshot struct {
	ActiveSessionIDs []string
}

// SessionConnected reports that an end-user session came online.
type SessionConnected struct {
	SessionID string
	SocketID  string
	Timestamp time.Time
}

// SessionDisconnected reports that an end-user session went away.
type SessionDisconnected struct {
	SessionID string
	Timestamp time.Time
}

// MessageReceived carries a new message for a conversation.
type MessageReceived struct {
	Kind      MessageKind
	ChatID    string
	SessionID string
	Message   Message
}

// TypingChanged reports the composing state of a session.
type TypingChanged struct {
	SessionID string
	IsTyping  bool
}

// AIToggled reports that automated replies were switched for a chat.
type AIToggled struct {
	ChatID  string
	Enabled bool
}

// ChatClosed reports that a chat was closed.
type ChatClosed struct {
	ChatID string
}

// ChannelError is a protocol-level error reported by the server. Non-fatal.
type ChannelError struct {
	Message string
}

func (PresenceSnapshot) isEvent()    {}
func (SessionConnected) isEvent()    {}
func (SessionDisconnected) isEvent() {}
func (MessageReceived) isEvent()     {}
func (TypingChanged) isEvent()       {}
func (AIToggled) isEvent()           {}
func (ChatClosed) isEvent()          {}
func (ChannelError) isEvent()        {}

// Lifecycle is a connection signal. It never mutates domain state.
type Lifecycle struct {
	State LifecycleState
	Err   error
	At    time.Time
}
