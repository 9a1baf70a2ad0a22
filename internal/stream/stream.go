// Package stream fans out "message persisted" events to live subscribers.
// Delivery is best effort: a subscriber that is not connected when a
// message is persisted never sees it and must read the chat instead.
package stream

import (
	"context"
	"strconv"

	"github.com/lalith-99/chatlog/internal/models"
)

// Broker publishes persisted messages per chat.
type Broker interface {
	Publish(ctx context.Context, msg models.Message) error

	// Subscribe follows chatID until ctx is cancelled or the subscription
	// is closed.
	Subscribe(ctx context.Context, chatID int64) (Subscription, error)
}

// Subscription delivers events on C, which is closed once the
// subscription ends.
type Subscription interface {
	C() <-chan models.Message
	Close() error
}

func channel(chatID int64) string {
	return "chatlog:chat:" + strconv.FormatInt(chatID, 10) + ":messages"
}
