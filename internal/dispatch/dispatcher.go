// Package dispatch forwards operator commands to the event channel.
package dispatch

import (
	"errors"
	"fmt"

	"github.com/xiaot623/livedesk/internal/protocol"
	"github.com/xiaot623/livedesk/pkg/logger"
)

// ErrNotConnected signals that a command was rejected because the channel is down.
var ErrNotConnected = errors.New("command rejected: not connected")

// Sender transmits commands over the event channel.
type Sender interface {
	Connected() bool
	Send(cmd protocol.Command) error
}

// Dispatcher turns operator intents into commands. It never touches local
// state; changes arrive back as inbound events.
type Dispatcher struct {
	sender Sender
	log    *logger.Logger
}

// New creates a dispatcher over sender.
func New(sender Sender, log *logger.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, log: log.Named("dispatch")}
}

// SendReply posts an operator reply.
func (d *Dispatcher) SendReply(sessionID, chatID, content string) error {
	return d.forward(&protocol.ReplySend{SessionID: sessionID, ChatID: chatID, Content: content})
}

// StartTyping tells the end user the operator is composing.
func (d *Dispatcher) StartTyping(sessionID, chatID string) error {
	return d.forward(&protocol.TypingStart{SessionID: sessionID, ChatID: chatID})
}

// StopTyping clears the operator composing state.
func (d *Dispatcher) StopTyping(sessionID, chatID string) error {
	return d.forward(&protocol.TypingStop{SessionID: sessionID, ChatID: chatID})
}

// ToggleAI switches automated replies for a chat.
func (d *Dispatcher) ToggleAI(chatID string, enabled bool) error {
	return d.forward(&protocol.AIToggle{ChatID: chatID, Enabled: enabled})
}

func (d *Dispatcher) forward(cmd protocol.Command) error {
	if !d.sender.Connected() {
		d.log.Warn("Dropping command while disconnected", logger.String("type", cmd.CommandType()))
		return ErrNotConnected
	}

	if err := d.sender.Send(cmd); err != nil {
		// The connection may have dropped between the check and the send.
		if !d.sender.Connected() {
			return ErrNotConnected
		}
		return fmt.Errorf("failed to send %s: %w", cmd.CommandType(), err)
	}

	d.log.Debug("Command sent", logger.String("type", cmd.CommandType()))
	return nil
}
