package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalith-99/chatlog/internal/search"
	"github.com/lalith-99/chatlog/internal/tasks"
)

// PersistChat is the worker side of AllocateChatNumber. A duplicate number
// or a vanished application comes back as apperr.ErrConstraintViolation.
func (s *Service) PersistChat(ctx context.Context, t tasks.PersistChat) error {
	chat, err := s.chats.Create(ctx, t.ApplicationID, t.Number)
	if err != nil {
		return fmt.Errorf("persist chat %d of application %d: %w", t.Number, t.ApplicationID, err)
	}
	s.logger.Info("chat persisted",
		zap.Int64("application_id", t.ApplicationID),
		zap.Int64("chat_number", chat.Number),
	)
	return nil
}

// PersistMessage inserts the message, then indexes and announces it. Only
// the insert decides the task's outcome; the index and the event stream
// catch up or not on their own.
func (s *Service) PersistMessage(ctx context.Context, t tasks.PersistMessage) error {
	msg, err := s.messages.Create(ctx, t.ChatID, t.Number, t.Body)
	if err != nil {
		return fmt.Errorf("persist message %d of chat %d: %w", t.Number, t.ChatID, err)
	}
	s.logger.Info("message persisted",
		zap.Int64("chat_id", t.ChatID),
		zap.Int64("message_number", msg.Number),
	)

	if s.index != nil {
		doc := search.Document{
			MessageID: msg.ID,
			ChatID:    msg.ChatID,
			Number:    msg.Number,
			Body:      msg.Body,
			CreatedAt: msg.CreatedAt,
		}
		if err := s.index.Upsert(ctx, doc); err != nil {
			s.metrics.IndexFailed()
			s.logger.Error("indexing failure",
				zap.Int64("chat_id", msg.ChatID),
				zap.Int64("message_number", msg.Number),
				zap.Error(err),
			)
		}
	}

	if s.events != nil {
		if err := s.events.Publish(ctx, *msg); err != nil {
			s.logger.Warn("failed to publish message event",
				zap.Int64("chat_id", msg.ChatID),
				zap.Int64("message_number", msg.Number),
				zap.Error(err),
			)
		}
	}
	return nil
}
