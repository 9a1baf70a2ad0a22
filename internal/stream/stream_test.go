package stream

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lalith-99/chatlog/internal/models"
)

func exerciseBroker(t *testing.T, b Broker, chatID int64) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := b.Subscribe(ctx, chatID)
	require.NoError(t, err)

	other, err := b.Subscribe(ctx, chatID+1)
	require.NoError(t, err)
	defer other.Close()

	require.NoError(t, b.Publish(ctx, models.Message{ChatID: chatID, Number: 1, Body: "hello"}))

	select {
	case msg := <-sub.C():
		assert.Equal(t, int64(1), msg.Number)
		assert.Equal(t, "hello", msg.Body)
		assert.Equal(t, chatID, msg.ChatID)
	case <-ctx.Done():
		t.Fatal("event not delivered")
	}

	select {
	case msg := <-other.C():
		t.Fatalf("event leaked to another chat: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, sub.Close())
	assert.Eventually(t, func() bool {
		_, open := <-sub.C()
		return !open
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryBroker(t *testing.T) {
	exerciseBroker(t, NewMemoryBroker(), 1)
}

func TestMemoryBrokerClosesOnContextCancel(t *testing.T) {
	b := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := b.Subscribe(ctx, 5)
	require.NoError(t, err)

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-sub.C()
		return !open
	}, time.Second, 10*time.Millisecond)
}

func TestRedisBroker(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("requires REDIS_URL")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	exerciseBroker(t, NewRedisBroker(client, zap.NewNop()), time.Now().UnixNano())
}
