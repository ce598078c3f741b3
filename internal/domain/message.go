package domain

import (
	"errors"
	"time"
)

const MaxMessageLen = 4096

var (
	ErrMessageEmpty   = errors.New("message content empty")
	ErrMessageTooLong = errors.New("message content too long")
)

type MessageID string

type ChatMessage struct {
	ID        MessageID `json:"id"`
	ProjectID ProjectID `json:"projectId"`
	SenderID  UserID    `json:"senderId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	ReadBy    []UserID  `json:"readBy"`
}

// ValidateContent enforces the size bounds before anything is persisted.
func ValidateContent(content string) error {
	if len(content) == 0 {
		return ErrMessageEmpty
	}
	if len(content) > MaxMessageLen {
		return ErrMessageTooLong
	}
	return nil
}
