// Package store is the record store this layer talks to for users,
// projects and chat messages. Everything else about those records
// (full CRUD, rendering) lives outside this service.
package store

import (
	"context"
	"errors"

	"github.com/teamforge/realtime/internal/domain"
)

var ErrNotFound = errors.New("record not found")

// Store is the persistence contract consumed by the realtime layer.
type Store interface {
	// CreateMessage persists a chat message and returns it with the
	// store-assigned id and createdAt timestamp.
	CreateMessage(ctx context.Context, projectID domain.ProjectID, senderID domain.UserID, content string) (*domain.ChatMessage, error)

	// MarkMessageRead adds userID to the message read-by set.
	// Adding an already-present reader is a no-op; the updated
	// message is returned either way.
	MarkMessageRead(ctx context.Context, messageID domain.MessageID, userID domain.UserID) (*domain.ChatMessage, error)

	// FindMessage retrieves a message by id, ErrNotFound if absent.
	FindMessage(ctx context.Context, messageID domain.MessageID) (*domain.ChatMessage, error)

	// FindUser retrieves a user by id, ErrNotFound if absent.
	FindUser(ctx context.Context, userID domain.UserID) (*domain.User, error)

	// FindProject retrieves a project with its member list,
	// ErrNotFound if absent.
	FindProject(ctx context.Context, projectID domain.ProjectID) (*domain.Project, error)

	// IsProjectMember reports whether userID owns or belongs to the
	// project. The single authority used for every membership check.
	IsProjectMember(ctx context.Context, projectID domain.ProjectID, userID domain.UserID) (bool, error)

	// Provisioning operations, used at seed time and by tests.
	CreateUser(ctx context.Context, user *domain.User) error
	CreateProject(ctx context.Context, project *domain.Project) error
	AddProjectMember(ctx context.Context, projectID domain.ProjectID, userID domain.UserID) error

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	Close() error
}
