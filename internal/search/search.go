// Package search keeps the full-text index of message bodies. Documents are
// keyed by message identity so re-indexing the same message overwrites the
// previous copy instead of adding a second one.
package search

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Document is the indexed form of a persisted message.
type Document struct {
	MessageID int64
	ChatID    int64
	Number    int64
	Body      string
	CreatedAt time.Time
}

// Hit is one search result in relevance order.
type Hit struct {
	MessageID int64
	Number    int64
	Score     float64
}

// Index is the search backend used by the service.
type Index interface {
	// EnsureSchema prepares the backend; it is safe to call on every start.
	EnsureSchema(ctx context.Context) error

	// Upsert writes doc, replacing any earlier copy of the same message.
	Upsert(ctx context.Context, doc Document) error

	// Search returns at most limit hits for q, restricted to chatID.
	Search(ctx context.Context, chatID int64, q string, limit int) ([]Hit, error)

	// DeleteChats drops every document belonging to the given chats.
	DeleteChats(ctx context.Context, chatIDs []int64) error
}

var documentNamespace = uuid.MustParse("9b0c7c1e-5d0a-4a53-9f55-5b7e8f0f6a10")

// DocumentID is the deterministic object id for a message.
func DocumentID(messageID int64) uuid.UUID {
	return uuid.NewSHA1(documentNamespace, []byte("message:"+strconv.FormatInt(messageID, 10)))
}
