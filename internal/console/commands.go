package console

import (
	"context"
	"fmt"

	"github.com/xiaot623/livedesk/internal/policy"
	"github.com/xiaot623/livedesk/internal/protocol"
	"github.com/xiaot623/livedesk/pkg/logger"
)

// SendReply sends an operator reply to a chat's session. The reply shows up
// in the projections only once the server echoes it back.
func (s *Service) SendReply(ctx context.Context, chatID, content string) error {
	chat, err := s.resolve(chatID)
	if err != nil {
		return err
	}

	in := policy.Input{
		Command:       protocol.TypeReplySend,
		ChatID:        chatID,
		SessionID:     chat.SessionID,
		Content:       content,
		SessionOnline: s.store.IsOnline(chat.SessionID),
		ChatActive:    chat.IsActive,
	}
	if err := s.authorize(ctx, in); err != nil {
		return err
	}
	return s.dispatcher.SendReply(chat.SessionID, chatID, content)
}

// SetTyping starts or stops the operator composing indicator for a chat.
func (s *Service) SetTyping(ctx context.Context, chatID string, typing bool) error {
	chat, err := s.resolve(chatID)
	if err != nil {
		return err
	}

	command := protocol.TypeTypingStop
	if typing {
		command = protocol.TypeTypingStart
	}
	in := policy.Input{
		Command:       command,
		ChatID:        chatID,
		SessionID:     chat.SessionID,
		SessionOnline: s.store.IsOnline(chat.SessionID),
		ChatActive:    chat.IsActive,
	}
	if err := s.authorize(ctx, in); err != nil {
		return err
	}

	if typing {
		return s.dispatcher.StartTyping(chat.SessionID, chatID)
	}
	return s.dispatcher.StopTyping(chat.SessionID, chatID)
}

// ToggleAI asks the server to switch automated replies for a chat.
func (s *Service) ToggleAI(ctx context.Context, chatID string, enabled bool) error {
	chat, err := s.resolve(chatID)
	if err != nil {
		return err
	}

	in := policy.Input{
		Command:       protocol.TypeAIToggle,
		ChatID:        chatID,
		SessionID:     chat.SessionID,
		Enabled:       enabled,
		SessionOnline: s.store.IsOnline(chat.SessionID),
		ChatActive:    chat.IsActive,
	}
	if err := s.authorize(ctx, in); err != nil {
		return err
	}
	return s.dispatcher.ToggleAI(chatID, enabled)
}

func (s *Service) authorize(ctx context.Context, in policy.Input) error {
	if s.policy == nil {
		return nil
	}

	decision, err := s.policy.Evaluate(ctx, in)
	if err != nil {
		return fmt.Errorf("policy evaluation failed: %w", err)
	}
	if !decision.Allowed() {
		s.log.Info("Command blocked",
			logger.String("command", in.Command),
			logger.String("chat_id", in.ChatID),
			logger.String("reason", decision.Reason()))
		return fmt.Errorf("%w: %s", ErrCommandBlocked, decision.Reason())
	}
	return nil
}
