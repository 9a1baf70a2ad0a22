package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lalith-99/chatlog/internal/apperr"
	"github.com/lalith-99/chatlog/internal/counter"
	"github.com/lalith-99/chatlog/internal/tasks"
)

const msgBodyRequired = "Body parameter is required"

// AllocateChatNumber reserves the next chat number of the application and
// queues its persistence. The number is final once returned, even though
// the chat row does not exist yet.
func (s *Service) AllocateChatNumber(ctx context.Context, token string) (int64, error) {
	appID, err := s.applicationID(ctx, token)
	if err != nil {
		return 0, err
	}

	number, err := s.counters.Incr(ctx, counter.ChatsKey(token))
	if err != nil {
		return 0, fmt.Errorf("allocate chat number: %w", err)
	}
	s.metrics.NumberAllocated("chat")

	if err := s.tasks.EnqueuePersistChat(ctx, tasks.PersistChat{ApplicationID: appID, Number: number}); err != nil {
		s.logger.Error("enqueue failed, allocated number is orphaned",
			zap.String("token", token),
			zap.Int64("chat_number", number),
			zap.Error(err),
		)
		return 0, fmt.Errorf("enqueue chat %d: %w", number, err)
	}
	return number, nil
}

// AllocateMessageNumber reserves the next message number of the chat. A
// blank body is rejected before the counter is touched.
func (s *Service) AllocateMessageNumber(ctx context.Context, token string, chatNumber int64, body string) (int64, error) {
	chat, err := s.chat(ctx, token, chatNumber)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(body) == "" {
		return 0, apperr.InvalidArgument(msgBodyRequired)
	}

	number, err := s.counters.Incr(ctx, counter.MessagesKey(token, chatNumber))
	if err != nil {
		return 0, fmt.Errorf("allocate message number: %w", err)
	}
	s.metrics.NumberAllocated("message")

	if err := s.tasks.EnqueuePersistMessage(ctx, tasks.PersistMessage{ChatID: chat.ID, Number: number, Body: body}); err != nil {
		s.logger.Error("enqueue failed, allocated number is orphaned",
			zap.String("token", token),
			zap.Int64("chat_number", chatNumber),
			zap.Int64("message_number", number),
			zap.Error(err),
		)
		return 0, fmt.Errorf("enqueue message %d: %w", number, err)
	}
	return number, nil
}
