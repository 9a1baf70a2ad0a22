package repository

import (
	"context"

	"github.com/lalith-99/chatlog/internal/models"
)

// Conventions shared by every implementation:
//   - Lookups return nil, nil when the row does not exist; callers decide
//     which entity name to report.
//   - Inserts that hit a uniqueness or foreign-key constraint return an
//     error wrapping apperr.ErrConstraintViolation.
//   - List methods return an empty slice, never nil, so JSON renders [].

// ApplicationRepository stores tenants.
type ApplicationRepository interface {
	// Create inserts an application with chats_count = 0.
	Create(ctx context.Context, token, name string) (*models.Application, error)

	GetByToken(ctx context.Context, token string) (*models.Application, error)

	// UpdateName renames the application and bumps updated_at.
	UpdateName(ctx context.Context, token, name string) (*models.Application, error)

	// Delete removes the application; chats and messages go with it.
	// Reports whether a row was deleted.
	Delete(ctx context.Context, token string) (bool, error)

	// ListAfter pages through every application by ascending id.
	ListAfter(ctx context.Context, afterID int64, limit int) ([]models.Application, error)

	// SetChatsCount overwrites the cached chats_count. Only the
	// reconciliation sweep may call it.
	SetChatsCount(ctx context.Context, applicationID, count int64) error
}

// ChatRepository stores chats within an application.
type ChatRepository interface {
	Create(ctx context.Context, applicationID, number int64) (*models.Chat, error)

	GetByNumber(ctx context.Context, applicationID, number int64) (*models.Chat, error)

	// ListByApplication returns one page of chats ordered by number.
	ListByApplication(ctx context.Context, applicationID int64, limit, offset int) ([]models.Chat, error)

	// StatsByApplication counts persisted chats and finds the highest number.
	StatsByApplication(ctx context.Context, applicationID int64) (models.ScopeStats, error)

	// IDsByApplication lists chat ids so dependent stores (the search
	// index) can be cleaned up before a cascade delete.
	IDsByApplication(ctx context.Context, applicationID int64) ([]int64, error)

	// ListRefsAfter pages through every chat by ascending id.
	ListRefsAfter(ctx context.Context, afterID int64, limit int) ([]models.ChatRef, error)

	// SetMessagesCount overwrites the cached messages_count. Only the
	// reconciliation sweep may call it.
	SetMessagesCount(ctx context.Context, chatID, count int64) error
}

// MessageRepository stores messages within a chat.
type MessageRepository interface {
	Create(ctx context.Context, chatID, number int64, body string) (*models.Message, error)

	GetByNumber(ctx context.Context, chatID, number int64) (*models.Message, error)

	// ListByChat returns every message of the chat ordered by number.
	ListByChat(ctx context.Context, chatID int64) ([]models.Message, error)

	// GetByIDs loads the given messages of one chat, in no particular order.
	// Ids that belong to another chat or no longer exist are skipped.
	GetByIDs(ctx context.Context, chatID int64, ids []int64) ([]models.Message, error)

	StatsByChat(ctx context.Context, chatID int64) (models.ScopeStats, error)
}
