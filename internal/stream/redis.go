package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lalith-99/chatlog/internal/models"
)

// RedisBroker uses Redis pub/sub so every API instance sees messages
// persisted by any worker.
type RedisBroker struct {
	client redis.UniversalClient
	logger *zap.Logger
}

func NewRedisBroker(client redis.UniversalClient, logger *zap.Logger) *RedisBroker {
	return &RedisBroker{client: client, logger: logger.Named("stream")}
}

func (b *RedisBroker) Publish(ctx context.Context, msg models.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.client.Publish(ctx, channel(msg.ChatID), payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, chatID int64) (Subscription, error) {
	ps := b.client.Subscribe(ctx, channel(chatID))
	// Wait for the confirmation so events published after Subscribe
	// returns are not missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	sub := &redisSubscription{ps: ps, out: make(chan models.Message, 16)}
	go sub.pump(ctx, chatID, b.logger)
	return sub, nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	out  chan models.Message
	once sync.Once
}

func (s *redisSubscription) pump(ctx context.Context, chatID int64, logger *zap.Logger) {
	defer close(s.out)
	defer s.Close()

	in := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			var msg models.Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				logger.Warn("dropping malformed event", zap.String("channel", m.Channel), zap.Error(err))
				continue
			}
			msg.ChatID = chatID
			select {
			case s.out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *redisSubscription) C() <-chan models.Message { return s.out }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() { err = s.ps.Close() })
	return err
}
