package chat

import "github.com/teamforge/realtime/internal/domain"

// Wire event type tags for the messages channel.
const (
	TypeReceiveMessage = "receive_message"
	TypeMessageRead    = "message_read"
	TypeMessageError   = "message_error"
)

type ReceiveMessageEvent struct {
	Type    string              `json:"type"`
	Message *domain.ChatMessage `json:"message"`
}

type MessageReadEvent struct {
	Type    string              `json:"type"`
	Message *domain.ChatMessage `json:"message"`
}

type MessageErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
