// Package counter allocates per-scope sequence numbers from an external
// atomic-increment store. Two concurrent Incr calls on the same key always
// get distinct, increasing values; nothing else in the numbering path
// synchronises.
package counter

import (
	"context"
	"fmt"
)

// Store is a linearizable per-key integer counter.
type Store interface {
	// Incr atomically adds one to key (a missing key counts as 0) and
	// returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// Get returns the current value, 0 for a missing key.
	Get(ctx context.Context, key string) (int64, error)

	// RaiseTo sets key to floor if its current value is lower and reports
	// whether it changed anything. It never lowers a counter.
	RaiseTo(ctx context.Context, key string, floor int64) (bool, error)

	// DeletePrefix drops every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// ChatsKey is the per-application chat sequence.
func ChatsKey(applicationToken string) string {
	return fmt.Sprintf("app:%s:chats_counter", applicationToken)
}

// MessagesKey is the per-chat message sequence.
func MessagesKey(applicationToken string, chatNumber int64) string {
	return fmt.Sprintf("app:%s:chat:%d:messages_counter", applicationToken, chatNumber)
}

// ApplicationPrefix covers every counter owned by one application.
func ApplicationPrefix(applicationToken string) string {
	return fmt.Sprintf("app:%s:", applicationToken)
}
