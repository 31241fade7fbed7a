// Package protocol defines the event channel wire format between the chat server and the console.
package protocol

import (
	"encoding/json"

	"github.com/xiaot623/livedesk/internal/domain"
)

// Message types from server to console
const (
	TypePresenceSnapshot    = "presence.snapshot"
	TypeSessionConnected    = "session.connected"
	TypeSessionDisconnected = "session.disconnected"
	TypeMessageUser         = "message.user"
	TypeMessageAI           = "message.ai"
	TypeMessageAdmin        = "message.admin"
	TypeTypingChanged       = "typing.changed"
	TypeAIToggled           = "ai.toggled"
	TypeChatClosed          = "chat.closed"
	TypeChannelError        = "channel.error"
)

// Message types from console to server
const (
	TypeIdentify    = "identify"
	TypeReplySend   = "reply.send"
	TypeTypingStart = "typing.start"
	TypeTypingStop  = "typing.stop"
	TypeAIToggle    = "ai.toggle"
)

// BaseMessage contains common fields for all frames.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// PresenceSnapshotMessage is sent once per connection after identify.
type PresenceSnapshotMessage struct {
	BaseMessage
	ActiveSessionIDs []string `json:"activeSessionIds"`
}

// SessionConnectedMessage announces a new end-user session.
type SessionConnectedMessage struct {
	BaseMessage
	SessionID string    `json:"sessionId"`
	SocketID  string    `json:"socketId,omitempty"`
	Timestamp Timestamp `json:"timestamp"`
}

// SessionDisconnectedMessage announces that a session left.
type SessionDisconnectedMessage struct {
	BaseMessage
	SessionID string    `json:"sessionId"`
	Timestamp Timestamp `json:"timestamp"`
}

// ChatMessage carries a message for a chat. Used for user, ai and admin messages.
type ChatMessage struct {
	BaseMessage
	domain.Message
	SessionID string `json:"sessionId"`
	ChatID    string `json:"chatId"`
}

// UnmarshalJSON decodes the embedded message timestamp leniently.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	type plain ChatMessage
	aux := struct {
		*plain
		Timestamp Timestamp `json:"timestamp"`
	}{plain: (*plain)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.Message.Timestamp = aux.Timestamp.Time
	return nil
}

// TypingChangedMessage reports composing state for a session.
type TypingChangedMessage struct {
	BaseMessage
	SessionID string `json:"sessionId"`
	IsTyping  bool   `json:"isTyping"`
}

// AIToggledMessage confirms an AI toggle.
type AIToggledMessage struct {
	BaseMessage
	ChatID  string `json:"chatId"`
	Enabled bool   `json:"enabled"`
}

// ChatClosedMessage reports that a chat was closed.
type ChatClosedMessage struct {
	BaseMessage
	ChatID string `json:"chatId"`
}

// ErrorMessage is a protocol error reported by the server.
type ErrorMessage struct {
	BaseMessage
	Message string `json:"message"`
}

// Command is an outbound operator command.
type Command interface {
	CommandType() string
	commandBase() *BaseMessage
}

func (b *BaseMessage) commandBase() *BaseMessage { return b }

// Identify is sent right after the handshake.
type Identify struct {
	BaseMessage
	OperatorID string `json:"operatorId"`
	Credential string `json:"credential"`
}

// ReplySend posts an operator reply into a chat.
type ReplySend struct {
	BaseMessage
	SessionID string `json:"sessionId"`
	ChatID    string `json:"chatId"`
	Content   string `json:"content"`
}

// TypingStart tells the end user the operator is composing.
type TypingStart struct {
	BaseMessage
	SessionID string `json:"sessionId"`
	ChatID    string `json:"chatId"`
}

// TypingStop clears the operator composing state.
type TypingStop struct {
	BaseMessage
	SessionID string `json:"sessionId"`
	ChatID    string `json:"chatId"`
}

// AIToggle asks the server to switch automated replies for a chat.
type AIToggle struct {
	BaseMessage
	ChatID  string `json:"chatId"`
	Enabled bool   `json:"enabled"`
}

func (*Identify) CommandType() string    { return TypeIdentify }
func (*ReplySend) CommandType() string   { return TypeReplySend }
func (*TypingStart) CommandType() string { return TypeTypingStart }
func (*TypingStop) CommandType() string  { return TypeTypingStop }
func (*AIToggle) CommandType() string    { return TypeAIToggle }
