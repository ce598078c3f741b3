// Package chat is the message channel: persist-then-broadcast fan-out
// of project chat messages.
package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/teamforge/realtime/internal/domain"
	"github.com/teamforge/realtime/internal/hub"
	"github.com/teamforge/realtime/internal/membership"
)

// MessageStore is the slice of the record store the channel needs.
type MessageStore interface {
	CreateMessage(ctx context.Context, projectID domain.ProjectID, senderID domain.UserID, content string) (*domain.ChatMessage, error)
	MarkMessageRead(ctx context.Context, messageID domain.MessageID, userID domain.UserID) (*domain.ChatMessage, error)
}

// Broadcaster is the slice of the hub the channel emits through.
type Broadcaster interface {
	Broadcast(room domain.ProjectID, payload any, exclude hub.Conn) hub.PublishResult
}

type Service struct {
	Store   MessageStore
	Members membership.Oracle
	Send    Broadcaster

	// Per-project locks serialize persist+broadcast so every room
	// member observes messages in createdAt order.
	mu    sync.Mutex
	locks map[domain.ProjectID]*sync.Mutex
}

func NewService(store MessageStore, members membership.Oracle, send Broadcaster) *Service {
	return &Service{
		Store:   store,
		Members: members,
		Send:    send,
		locks:   make(map[domain.ProjectID]*sync.Mutex),
	}
}

// SendMessage validates and persists the message, then broadcasts the
// persisted record (store-assigned id and timestamp) to the whole
// project room, sender included. Nothing is persisted or broadcast
// when validation or authorization fails.
func (s *Service) SendMessage(ctx context.Context, projectID domain.ProjectID, senderID domain.UserID, content string) (*domain.ChatMessage, error) {
	if err := domain.ValidateContent(content); err != nil {
		return nil, err
	}
	ok, err := s.Members.IsMember(ctx, projectID, senderID)
	if err != nil {
		return nil, fmt.Errorf("membership check: %w", err)
	}
	if !ok {
		return nil, membership.ErrNotMember
	}

	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	msg, err := s.Store.CreateMessage(ctx, projectID, senderID, content)
	if err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	res := s.Send.Broadcast(projectID, ReceiveMessageEvent{
		Type:    TypeReceiveMessage,
		Message: msg,
	}, nil)
	log.Debug().Str("module", "chat").Str("project", string(projectID)).Str("message", string(msg.ID)).Int("sent_to", res.SentTo).Msg("message fanned out")
	return msg, nil
}

// MarkRead appends userID to the message read-by set and returns the
// updated message. Re-acknowledging is a no-op.
func (s *Service) MarkRead(ctx context.Context, messageID domain.MessageID, userID domain.UserID) (*domain.ChatMessage, error) {
	msg, err := s.Store.MarkMessageRead(ctx, messageID, userID)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	return msg, nil
}

func (s *Service) projectLock(projectID domain.ProjectID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[projectID] = lock
	}
	return lock
}
