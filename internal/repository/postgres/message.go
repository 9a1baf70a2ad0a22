package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/chatlog/internal/models"
)

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

const messageColumns = `id, chat_id, number, body, created_at, updated_at`

func scanMessage(row pgx.Row) (*models.Message, error) {
	var msg models.Message
	if err := row.Scan(
		&msg.ID,
		&msg.ChatID,
		&msg.Number,
		&msg.Body,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &msg, nil
}

func collectMessages(rows pgx.Rows) ([]models.Message, error) {
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

func (s *MessageStore) Create(ctx context.Context, chatID, number int64, body string) (*models.Message, error) {
	query := `
		INSERT INTO messages (chat_id, number, body, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING ` + messageColumns

	msg, err := scanMessage(s.pool.QueryRow(ctx, query, chatID, number, body))
	if err != nil {
		return nil, classify("insert message", err)
	}
	return msg, nil
}

func (s *MessageStore) GetByNumber(ctx context.Context, chatID, number int64) (*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE chat_id = $1 AND number = $2`

	msg, err := scanMessage(s.pool.QueryRow(ctx, query, chatID, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

func (s *MessageStore) ListByChat(ctx context.Context, chatID int64) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE chat_id = $1
		ORDER BY number`

	rows, err := s.pool.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return collectMessages(rows)
}

func (s *MessageStore) GetByIDs(ctx context.Context, chatID int64, ids []int64) ([]models.Message, error) {
	if len(ids) == 0 {
		return make([]models.Message, 0), nil
	}
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE chat_id = $1 AND id = ANY($2)`

	rows, err := s.pool.Query(ctx, query, chatID, ids)
	if err != nil {
		return nil, fmt.Errorf("get messages by id: %w", err)
	}
	return collectMessages(rows)
}

func (s *MessageStore) StatsByChat(ctx context.Context, chatID int64) (models.ScopeStats, error) {
	query := `
		SELECT count(*), COALESCE(max(number), 0)
		FROM messages
		WHERE chat_id = $1`

	var st models.ScopeStats
	if err := s.pool.QueryRow(ctx, query, chatID).Scan(&st.Count, &st.MaxNumber); err != nil {
		return models.ScopeStats{}, fmt.Errorf("message stats: %w", err)
	}
	return st, nil
}
