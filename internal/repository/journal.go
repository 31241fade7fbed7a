// Package repository defines the local event journal and its implementations.
package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/livedesk/internal/domain"
	"github.com/xiaot623/livedesk/internal/protocol"
)

// Journal records inbound events handled by the console.
type Journal interface {
	RecordEvent(ctx context.Context, entry *domain.ActivityEntry) error
	RecentEvents(ctx context.Context, limit int) ([]domain.ActivityEntry, error)
	RecentMessageIDs(ctx context.Context, chatID string, limit int) ([]string, error)
	Close() error
}

// NewActivityEntry builds a journal row for ev.
func NewActivityEntry(ev domain.Event, at time.Time) *domain.ActivityEntry {
	entry := &domain.ActivityEntry{
		EventID: "evt_" + uuid.New().String(),
		Ts:      at.UnixMilli(),
	}

	switch e := ev.(type) {
	case domain.PresenceSnapshot:
		entry.Type = protocol.TypePresenceSnapshot
	case domain.SessionConnected:
		entry.Type = protocol.TypeSessionConnected
		entry.SessionID = e.SessionID
	case domain.SessionDisconnected:
		entry.Type = protocol.TypeSessionDisconnected
		entry.SessionID = e.SessionID
	case domain.MessageReceived:
		entry.Type = "message." + string(e.Kind)
		entry.ChatID = e.ChatID
		entry.SessionID = e.SessionID
		entry.MessageID = e.Message.ID
	case domain.TypingChanged:
		entry.Type = protocol.TypeTypingChanged
		entry.SessionID = e.SessionID
	case domain.AIToggled:
		entry.Type = protocol.TypeAIToggled
		entry.ChatID = e.ChatID
	case domain.ChatClosed:
		entry.Type = protocol.TypeChatClosed
		entry.ChatID = e.ChatID
	case domain.ChannelError:
		entry.Type = protocol.TypeChannelError
	}

	if payload, err := json.Marshal(ev); err == nil {
		entry.Payload = payload
	}
	return entry
}
