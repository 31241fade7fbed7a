package domain

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser  Sender = "USER"
	SenderAdmin Sender = "ADMIN"
	SenderAI    Sender = "AI"
)

// Valid reports whether s is a known sender.
func (s Sender) Valid() bool {
	switch s {
	case SenderUser, SenderAdmin, SenderAI:
		return true
	}
	return false
}

// MessageKind is the channel a message event arrived on.
type MessageKind string

const (
	MessageKindUser  MessageKind = "user"
	MessageKindAI    MessageKind = "ai"
	MessageKindAdmin MessageKind = "admin"
)

// LifecycleState is a connection signal surfaced to the operator.
type LifecycleState string

const (
	LifecycleConnected    LifecycleState = "connected"
	LifecycleDisconnected LifecycleState = "disconnected"
	LifecycleError        LifecycleState = "error"
)
