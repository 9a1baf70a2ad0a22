package search

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.uber.org/zap"
)

// MessageClass is the Weaviate class holding message documents.
const MessageClass = "Message"

type WeaviateIndex struct {
	client *weaviate.Client
	logger *zap.Logger
}

// NewWeaviateIndex builds a client for rawURL, e.g. http://localhost:8080.
func NewWeaviateIndex(rawURL string, logger *zap.Logger) (*WeaviateIndex, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid weaviate url %q", rawURL)
	}
	client, err := weaviate.NewClient(weaviate.Config{
		Host:   u.Host,
		Scheme: u.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("weaviate client: %w", err)
	}
	return &WeaviateIndex{client: client, logger: logger.Named("search")}, nil
}

func messageClass() *models.Class {
	filterable := true
	return &models.Class{
		Class:       MessageClass,
		Description: "Chat message bodies for keyword search",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			Bm25: &models.BM25Config{B: 0.75, K1: 1.2},
		},
		Properties: []*models.Property{
			{
				Name:         "body",
				DataType:     []string{"text"},
				Tokenization: "word",
			},
			{
				Name:            "messageId",
				DataType:        []string{"int"},
				IndexFilterable: &filterable,
			},
			{
				Name:            "chatId",
				DataType:        []string{"int"},
				IndexFilterable: &filterable,
			},
			{
				Name:     "number",
				DataType: []string{"int"},
			},
			{
				Name:     "createdAt",
				DataType: []string{"date"},
			},
		},
	}
}

func (w *WeaviateIndex) EnsureSchema(ctx context.Context) error {
	if _, err := w.client.Schema().ClassGetter().WithClassName(MessageClass).Do(ctx); err == nil {
		return nil
	}
	if err := w.client.Schema().ClassCreator().WithClass(messageClass()).Do(ctx); err != nil {
		return fmt.Errorf("create %s class: %w", MessageClass, err)
	}
	w.logger.Info("weaviate class created", zap.String("class", MessageClass))
	return nil
}

func (w *WeaviateIndex) Upsert(ctx context.Context, doc Document) error {
	obj := &models.Object{
		Class: MessageClass,
		ID:    strfmt.UUID(DocumentID(doc.MessageID).String()),
		Properties: map[string]any{
			"body":      doc.Body,
			"messageId": doc.MessageID,
			"chatId":    doc.ChatID,
			"number":    doc.Number,
			"createdAt": doc.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}

	res, err := w.client.Batch().ObjectsBatcher().WithObjects(obj).Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate upsert message %d: %w", doc.MessageID, err)
	}
	for _, r := range res {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("weaviate upsert message %d: %s", doc.MessageID, r.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

func (w *WeaviateIndex) Search(ctx context.Context, chatID int64, q string, limit int) ([]Hit, error) {
	where := filters.Where().
		WithPath([]string{"chatId"}).
		WithOperator(filters.Equal).
		WithValueInt(chatID)

	bm25 := w.client.GraphQL().Bm25ArgBuilder().
		WithQuery(q).
		WithProperties("body")

	fields := []graphql.Field{
		{Name: "messageId"},
		{Name: "number"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "score"},
		}},
	}

	result, err := w.client.GraphQL().Get().
		WithClassName(MessageClass).
		WithFields(fields...).
		WithBM25(bm25).
		WithWhere(where).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate search: %s", result.Errors[0].Message)
	}

	return parseHits(result.Data), nil
}

// parseHits reads Get.Message out of a GraphQL response. Numbers arrive as
// float64 from JSON; BM25 scores arrive as strings.
func parseHits(data map[string]models.JSONObject) []Hit {
	hits := make([]Hit, 0)
	get, ok := data["Get"].(map[string]any)
	if !ok {
		return hits
	}
	objects, ok := get[MessageClass].([]any)
	if !ok {
		return hits
	}
	for _, o := range objects {
		m, ok := o.(map[string]any)
		if !ok {
			continue
		}
		id, ok := toInt64(m["messageId"])
		if !ok {
			continue
		}
		number, _ := toInt64(m["number"])
		hit := Hit{MessageID: id, Number: number}
		if add, ok := m["_additional"].(map[string]any); ok {
			hit.Score = toFloat(add["score"])
		}
		hits = append(hits, hit)
	}
	return hits
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	}
	return 0
}

func (w *WeaviateIndex) DeleteChats(ctx context.Context, chatIDs []int64) error {
	for _, id := range chatIDs {
		where := filters.Where().
			WithPath([]string{"chatId"}).
			WithOperator(filters.Equal).
			WithValueInt(id)

		resp, err := w.client.Batch().ObjectsBatchDeleter().
			WithClassName(MessageClass).
			WithWhere(where).
			WithOutput("minimal").
			Do(ctx)
		if err != nil {
			return fmt.Errorf("weaviate delete chat %d: %w", id, err)
		}
		if resp != nil && resp.Results != nil && resp.Results.Failed > 0 {
			return fmt.Errorf("weaviate delete chat %d: %d objects failed", id, resp.Results.Failed)
		}
	}
	return nil
}
