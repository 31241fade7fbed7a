package console

import (
	"context"
	"fmt"
	"time"

	"github.com/xiaot623/livedesk/internal/domain"
	"github.com/xiaot623/livedesk/internal/repository"
	"github.com/xiaot623/livedesk/internal/state"
	"github.com/xiaot623/livedesk/pkg/logger"
)

const journalTimeout = 2 * time.Second

// handleEvent applies one channel event. Events arrive one at a time.
func (s *Service) handleEvent(ev domain.Event) {
	out := s.store.Handle(ev)
	if out.Duplicate {
		s.log.Debug("Duplicate message ignored")
		return
	}

	s.record(ev)
	s.notify(ev, out)
}

func (s *Service) record(ev domain.Event) {
	if s.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	if err := s.journal.RecordEvent(ctx, repository.NewActivityEntry(ev, time.Now())); err != nil {
		s.log.Warn("Failed to journal event", logger.Error(err))
	}
}

func (s *Service) notify(ev domain.Event, out state.Outcome) {
	switch e := ev.(type) {
	case domain.SessionConnected:
		s.notices.Add(NoticeSuccess, fmt.Sprintf("New user connected: %s...", shortID(e.SessionID)))
	case domain.MessageReceived:
		if e.Kind == domain.MessageKindUser && out.Applied() {
			s.notices.Add(NoticeInfo, fmt.Sprintf("New message from %s...", shortID(e.SessionID)))
		}
		if !out.Applied() {
			s.log.Debug("Message for unknown chat dropped", logger.String("chat_id", e.ChatID))
		}
	case domain.ChannelError:
		s.log.Warn("Channel error", logger.String("message", e.Message))
		s.notices.Add(NoticeError, out.Notice)
	}
}

func (s *Service) handleLifecycle(l domain.Lifecycle) {
	switch l.State {
	case domain.LifecycleConnected:
		s.notices.Add(NoticeSuccess, "Connected to chat server")
	case domain.LifecycleDisconnected:
		s.notices.Add(NoticeWarning, "Disconnected from chat server")
	case domain.LifecycleError:
		msg := "Connection error"
		if l.Err != nil {
			msg += ": " + l.Err.Error()
		}
		s.notices.Add(NoticeError, msg)
	}
}

// resync runs after every (re)connect. The server follows identify with a
// fresh presence snapshot; the conversation list and focus are re-fetched here.
func (s *Service) resync(ctx context.Context) {
	if err := s.RefreshChats(ctx); err != nil {
		s.log.Warn("Chat list refresh failed", logger.Error(err))
		s.notices.Add(NoticeError, "Failed to refresh chats: "+err.Error())
	}

	if chatID := s.store.FocusedID(); chatID != "" {
		if _, err := s.FocusChat(ctx, chatID); err != nil {
			s.log.Warn("Focused chat refresh failed", logger.String("chat_id", chatID), logger.Error(err))
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
