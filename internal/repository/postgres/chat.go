package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/chatlog/internal/models"
)

type ChatStore struct {
	pool *pgxpool.Pool
}

func NewChatStore(pool *pgxpool.Pool) *ChatStore {
	return &ChatStore{pool: pool}
}

const chatColumns = `id, application_id, number, messages_count, created_at, updated_at`

func scanChat(row pgx.Row) (*models.Chat, error) {
	var ch models.Chat
	if err := row.Scan(
		&ch.ID,
		&ch.ApplicationID,
		&ch.Number,
		&ch.MessagesCount,
		&ch.CreatedAt,
		&ch.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ch, nil
}

// Create inserts the chat under a number the counter store already handed
// out. A duplicate (application_id, number) or a vanished application is a
// constraint violation, never an upsert.
func (s *ChatStore) Create(ctx context.Context, applicationID, number int64) (*models.Chat, error) {
	query := `
		INSERT INTO chats (application_id, number, created_at, updated_at)
		VALUES ($1, $2, now(), now())
		RETURNING ` + chatColumns

	ch, err := scanChat(s.pool.QueryRow(ctx, query, applicationID, number))
	if err != nil {
		return nil, classify("insert chat", err)
	}
	return ch, nil
}

func (s *ChatStore) GetByNumber(ctx context.Context, applicationID, number int64) (*models.Chat, error) {
	query := `
		SELECT ` + chatColumns + `
		FROM chats
		WHERE application_id = $1 AND number = $2`

	ch, err := scanChat(s.pool.QueryRow(ctx, query, applicationID, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return ch, nil
}

func (s *ChatStore) ListByApplication(ctx context.Context, applicationID int64, limit, offset int) ([]models.Chat, error) {
	query := `
		SELECT ` + chatColumns + `
		FROM chats
		WHERE application_id = $1
		ORDER BY number
		LIMIT $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, query, applicationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	chats := make([]models.Chat, 0)
	for rows.Next() {
		ch, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, *ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}
	return chats, nil
}

func (s *ChatStore) StatsByApplication(ctx context.Context, applicationID int64) (models.ScopeStats, error) {
	query := `
		SELECT count(*), COALESCE(max(number), 0)
		FROM chats
		WHERE application_id = $1`

	var st models.ScopeStats
	if err := s.pool.QueryRow(ctx, query, applicationID).Scan(&st.Count, &st.MaxNumber); err != nil {
		return models.ScopeStats{}, fmt.Errorf("chat stats: %w", err)
	}
	return st, nil
}

func (s *ChatStore) IDsByApplication(ctx context.Context, applicationID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM chats WHERE application_id = $1`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("list chat ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("collect chat ids: %w", err)
	}
	if ids == nil {
		ids = make([]int64, 0)
	}
	return ids, nil
}

func (s *ChatStore) ListRefsAfter(ctx context.Context, afterID int64, limit int) ([]models.ChatRef, error) {
	query := `
		SELECT c.id, c.number, a.token
		FROM chats c
		JOIN applications a ON a.id = c.application_id
		WHERE c.id > $1
		ORDER BY c.id
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat refs: %w", err)
	}
	defer rows.Close()

	refs := make([]models.ChatRef, 0)
	for rows.Next() {
		var r models.ChatRef
		if err := rows.Scan(&r.ID, &r.Number, &r.ApplicationToken); err != nil {
			return nil, fmt.Errorf("scan chat ref: %w", err)
		}
		refs = append(refs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat refs: %w", err)
	}
	return refs, nil
}

func (s *ChatStore) SetMessagesCount(ctx context.Context, chatID, count int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE chats SET messages_count = $2 WHERE id = $1`, chatID, count)
	if err != nil {
		return fmt.Errorf("set messages_count: %w", err)
	}
	return nil
}
