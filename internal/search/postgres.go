package search

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresIndex searches the message_search table with PostgreSQL full-text
// search. Rows cascade away with their message, so DeleteChats only matters
// when it runs before the chat rows are gone.
type PostgresIndex struct {
	pool *pgxpool.Pool
}

func NewPostgresIndex(pool *pgxpool.Pool) *PostgresIndex {
	return &PostgresIndex{pool: pool}
}

// EnsureSchema is a no-op; the table comes from the migrations.
func (p *PostgresIndex) EnsureSchema(context.Context) error { return nil }

func (p *PostgresIndex) Upsert(ctx context.Context, doc Document) error {
	query := `
		INSERT INTO message_search (message_id, chat_id, number, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (message_id) DO UPDATE
		SET chat_id = EXCLUDED.chat_id,
		    number = EXCLUDED.number,
		    body = EXCLUDED.body,
		    created_at = EXCLUDED.created_at`

	if _, err := p.pool.Exec(ctx, query, doc.MessageID, doc.ChatID, doc.Number, doc.Body, doc.CreatedAt); err != nil {
		return fmt.Errorf("index message %d: %w", doc.MessageID, err)
	}
	return nil
}

func (p *PostgresIndex) Search(ctx context.Context, chatID int64, q string, limit int) ([]Hit, error) {
	query := `
		SELECT message_id, number, ts_rank(document, query) AS score
		FROM message_search, plainto_tsquery('simple', $2) AS query
		WHERE chat_id = $1 AND document @@ query
		ORDER BY score DESC, number ASC
		LIMIT $3`

	rows, err := p.pool.Query(ctx, query, chatID, q, limit)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()

	hits := make([]Hit, 0)
	for rows.Next() {
		var h Hit
		var score float32
		if err := rows.Scan(&h.MessageID, &h.Number, &score); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		h.Score = float64(score)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hits: %w", err)
	}
	return hits, nil
}

func (p *PostgresIndex) DeleteChats(ctx context.Context, chatIDs []int64) error {
	if len(chatIDs) == 0 {
		return nil
	}
	if _, err := p.pool.Exec(ctx, `DELETE FROM message_search WHERE chat_id = ANY($1)`, chatIDs); err != nil {
		return fmt.Errorf("delete chat documents: %w", err)
	}
	return nil
}
