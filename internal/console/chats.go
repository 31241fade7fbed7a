package console

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/xiaot623/livedesk/internal/adapter/adminapi"
	"github.com/xiaot623/livedesk/internal/domain"
	"github.com/xiaot623/livedesk/pkg/logger"
)

// RefreshChats replaces the conversation list with the upstream one.
func (s *Service) RefreshChats(ctx context.Context) error {
	list, err := s.api.ListChats(ctx, adminapi.ListChatsParams{Page: 1, Limit: chatListLimit, Status: "all"})
	if err != nil {
		return err
	}

	s.store.SetChats(list.Chats)
	for _, chat := range list.Chats {
		s.warm(ctx, chat.ID)
	}
	s.log.Debug("Chat list refreshed", logger.Int("chats", len(list.Chats)))
	return nil
}

// FocusChat fetches the newest transcript page of a chat and focuses it.
// Messages arriving during the fetch are kept. Refocusing the focused chat
// merges the fetched page into the transcript.
func (s *Service) FocusChat(ctx context.Context, chatID string) (domain.ChatDetails, error) {
	s.store.BeginFocus(chatID)
	details, err := s.api.GetChatDetails(ctx, chatID, 1, s.cfg.API.PageSize)
	if err != nil {
		s.store.CancelFocus(chatID)
		var apiErr *adminapi.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return domain.ChatDetails{}, fmt.Errorf("%w: %s", ErrUnknownChat, chatID)
		}
		return domain.ChatDetails{}, err
	}

	s.store.Focus(*details)
	s.warm(ctx, chatID)

	focus, _ := s.store.Focused()
	return focus, nil
}

// LoadOlder fetches the next older transcript page of the focused chat.
// It returns false when there is nothing more to load.
func (s *Service) LoadOlder(ctx context.Context) (bool, error) {
	focus, ok := s.store.Focused()
	if !ok {
		return false, ErrNoFocus
	}
	if !focus.Pagination.HasMore {
		return false, nil
	}

	limit := focus.Pagination.Limit
	if limit <= 0 {
		limit = s.cfg.API.PageSize
	}
	page, err := s.api.GetChatDetails(ctx, focus.ID, focus.Pagination.Page+1, limit)
	if err != nil {
		return false, err
	}
	return s.store.PrependOlder(focus.ID, *page), nil
}

// ClearFocus drops the focused transcript.
func (s *Service) ClearFocus() {
	s.store.ClearFocus()
}

// CloseChat closes a chat upstream and applies the confirmed close locally.
func (s *Service) CloseChat(ctx context.Context, chatID string) error {
	if _, err := s.resolve(chatID); err != nil {
		return err
	}
	if err := s.api.CloseChat(ctx, chatID); err != nil {
		return err
	}
	s.handleEvent(domain.ChatClosed{ChatID: chatID})
	return nil
}

// warm seeds the duplicate window of a chat from the journal.
func (s *Service) warm(ctx context.Context, chatID string) {
	if s.journal == nil {
		return
	}
	ids, err := s.journal.RecentMessageIDs(ctx, chatID, s.cfg.Projection.DedupWindow)
	if err != nil {
		s.log.Warn("Failed to read journal", logger.String("chat_id", chatID), logger.Error(err))
		return
	}
	if len(ids) > 0 {
		s.store.SeedSeen(chatID, ids)
	}
}

func (s *Service) resolve(chatID string) (domain.Chat, error) {
	chat, ok := s.store.Chat(chatID)
	if !ok {
		return domain.Chat{}, fmt.Errorf("%w: %s", ErrUnknownChat, chatID)
	}
	return chat, nil
}
