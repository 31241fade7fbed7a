// Package domain defines the operator console's view of sessions, chats and messages.
package domain

import (
	"encoding/json"
	"time"
)

// Message is an immutable unit of conversation.
type Message struct {
	ID        string          `json:"id"`
	Content   string          `json:"content"`
	Sender    Sender          `json:"sender"`
	Timestamp time.Time       `json:"timestamp"`
	IsAI      bool            `json:"isAI,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// UserSession carries transport metadata of an end-user session.
// It is informational only and never used for matching.
type UserSession struct {
	SessionID string    `json:"sessionId"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Chat is one row of the conversation summary list.
type Chat struct {
	ID           string      `json:"id"`
	SessionID    string      `json:"sessionId"`
	IsActive     bool        `json:"isActive"`
	IsAIEnabled  bool        `json:"isAIEnabled"`
	MessageCount int         `json:"messageCount"`
	LastMessage  *Message    `json:"lastMessage,omitempty"`
	UserSession  UserSession `json:"userSession"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// Clone returns a copy that shares no pointers with c.
func (c Chat) Clone() Chat {
	if c.LastMessage != nil {
		m := *c.LastMessage
		c.LastMessage = &m
	}
	return c
}

// Pagination describes one page of a transcript fetch.
type Pagination struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasMore bool `json:"hasMore"`
}

// ChatDetails is a chat together with a window of its transcript.
type ChatDetails struct {
	Chat
	Messages   []Message  `json:"messages"`
	Pagination Pagination `json:"pagination"`
}

// Clone returns a deep copy of d.
func (d ChatDetails) Clone() ChatDetails {
	d.Chat = d.Chat.Clone()
	msgs := make([]Message, len(d.Messages))
	copy(msgs, d.Messages)
	d.Messages = msgs
	return d
}

// ActivityEntry is one journaled inbound event.
type ActivityEntry struct {
	EventID   string          `json:"eventId"`
	Type      string          `json:"type"`
	ChatID    string          `json:"chatId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	MessageID string          `json:"messageId,omitempty"`
	Ts        int64           `json:"ts"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// DashboardStats are upstream totals shown next to the conversation list.
type DashboardStats struct {
	TotalSessions int `json:"totalSessions"`
	TodaySessions int `json:"todaySessions"`
	TotalChats    int `json:"totalChats"`
	ActiveChats   int `json:"activeChats"`
	TotalMessages int `json:"totalMessages"`
	TodayMessages int `json:"todayMessages"`
}
