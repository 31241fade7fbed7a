package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/livedesk/internal/domain"
)

var (
	// ErrUnknownType is returned for frames with an unrecognised type.
	ErrUnknownType = errors.New("unknown message type")
	// ErrInvalidPayload is returned when a frame lacks a required identifier.
	ErrInvalidPayload = errors.New("invalid payload")
)

// Encode stamps type, ts and request id on cmd and returns the JSON frame.
func Encode(cmd Command) ([]byte, error) {
	base := cmd.commandBase()
	base.Type = cmd.CommandType()
	if base.Ts == 0 {
		base.Ts = time.Now().UnixMilli()
	}
	if base.RequestID == "" {
		base.RequestID = "req_" + uuid.New().String()[:8]
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", base.Type, err)
	}
	return data, nil
}

// DecodeEvent parses one inbound frame into a domain event.
func DecodeEvent(data []byte) (domain.Event, error) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON frame: %w", err)
	}

	switch base.Type {
	case TypePresenceSnapshot:
		var msg PresenceSnapshotMessage
		if err := unmarshal(data, &msg); err != nil {
			return nil, err
		}
		ids := msg.ActiveSessionIDs
		if ids == nil {
			ids = []string{}
		}
		return domain.PresenceSnapshot{ActiveSessionIDs: ids}, nil

	case TypeSessionConnected:
		var msg SessionConnectedMessage
		if err := unmarshal(data, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, missing(base.Type, "sessionId")
		}
		return domain.SessionConnected{SessionID: msg.SessionID, SocketID: msg.SocketID, Timestamp: msg.Timestamp.Time}, nil

	case TypeSessionDisconnected:
		var msg SessionDisconnectedMessage
		if err := unmarshal(data, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, missing(base.Type, "sessionId")
		}
		return domain.SessionDisconnected{SessionID: msg.SessionID, Timestamp: msg.Timestamp.Time}, nil

	case TypeMessageUser, TypeMessageAI, TypeMessageAdmin:
		var msg ChatMessage
		if err := unmarshal(data, &msg); err != nil {
			return nil, err
		}
		if msg.ChatID == "" {
			return nil, missing(base.Type, "chatId")
		}
		if msg.ID == "" {
			return nil, missing(base.Type, "id")
		}
		kind := messageKind(base.Type)
		if !msg.Sender.Valid() {
			msg.Sender = senderFor(kind)
		}
		return domain.MessageReceived{
			Kind:      kind,
			ChatID:    msg.ChatID,
			SessionID: msg.SessionID,
			Message:   msg.Message,
		}, nil

	case TypeTypingChanged:
		var msg TypingChangedMessage
		if err := unmarshal(data, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, missing(base.Type, "sessionId")
		}
		return domain.TypingChanged{SessionID: msg.SessionID, IsTyping: msg.IsTyping}, nil

	case TypeAIToggled:
		var msg AIToggledMessage
		if err := unmarshal(data, &msg); err != nil {
			return nil, err
		}
		if msg.ChatID == "" {
			return nil, missing(base.Type, "chatId")
		}
		return domain.AIToggled{ChatID: msg.ChatID, Enabled: msg.Enabled}, nil

	case TypeChatClosed:
		var msg ChatClosedMessage
		if err := unmarshal(data, &msg); err != nil {
			return nil, err
		}
		if msg.ChatID == "" {
			return nil, missing(base.Type, "chatId")
		}
		return domain.ChatClosed{ChatID: msg.ChatID}, nil

	case TypeChannelError:
		var msg ErrorMessage
		if err := unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return domain.ChannelError{Message: msg.Message}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, base.Type)
	}
}

func unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func missing(msgType, field string) error {
	return fmt.Errorf("%w: %s requires %s", ErrInvalidPayload, msgType, field)
}

func messageKind(msgType string) domain.MessageKind {
	switch msgType {
	case TypeMessageAI:
		return domain.MessageKindAI
	case TypeMessageAdmin:
		return domain.MessageKindAdmin
	default:
		return domain.MessageKindUser
	}
}

func senderFor(kind domain.MessageKind) domain.Sender {
	switch kind {
	case domain.MessageKindAI:
		return domain.SenderAI
	case domain.MessageKindAdmin:
		return domain.SenderAdmin
	default:
		return domain.SenderUser
	}
}
