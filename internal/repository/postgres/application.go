package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/chatlog/internal/models"
)

type ApplicationStore struct {
	pool *pgxpool.Pool
}

func NewApplicationStore(pool *pgxpool.Pool) *ApplicationStore {
	return &ApplicationStore{pool: pool}
}

const applicationColumns = `id, token, name, chats_count, created_at, updated_at`

func scanApplication(row pgx.Row) (*models.Application, error) {
	var a models.Application
	if err := row.Scan(
		&a.ID,
		&a.Token,
		&a.Name,
		&a.ChatsCount,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *ApplicationStore) Create(ctx context.Context, token, name string) (*models.Application, error) {
	query := `
		INSERT INTO applications (token, name, created_at, updated_at)
		VALUES ($1, $2, now(), now())
		RETURNING ` + applicationColumns

	a, err := scanApplication(s.pool.QueryRow(ctx, query, token, name))
	if err != nil {
		return nil, classify("insert application", err)
	}
	return a, nil
}

func (s *ApplicationStore) GetByToken(ctx context.Context, token string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE token = $1`

	a, err := scanApplication(s.pool.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get application: %w", err)
	}
	return a, nil
}

func (s *ApplicationStore) UpdateName(ctx context.Context, token, name string) (*models.Application, error) {
	query := `
		UPDATE applications
		SET name = $2, updated_at = now()
		WHERE token = $1
		RETURNING ` + applicationColumns

	a, err := scanApplication(s.pool.QueryRow(ctx, query, token, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classify("update application", err)
	}
	return a, nil
}

func (s *ApplicationStore) Delete(ctx context.Context, token string) (bool, error) {
	// chats and messages are removed by ON DELETE CASCADE.
	tag, err := s.pool.Exec(ctx, `DELETE FROM applications WHERE token = $1`, token)
	if err != nil {
		return false, fmt.Errorf("delete application: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *ApplicationStore) ListAfter(ctx context.Context, afterID int64, limit int) ([]models.Application, error) {
	query := `
		SELECT ` + applicationColumns + `
		FROM applications
		WHERE id > $1
		ORDER BY id
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	apps := make([]models.Application, 0)
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applications: %w", err)
	}
	return apps, nil
}

func (s *ApplicationStore) SetChatsCount(ctx context.Context, applicationID, count int64) error {
	// Like update_column: no updated_at bump, the cached count is not a
	// user-visible edit.
	_, err := s.pool.Exec(ctx, `UPDATE applications SET chats_count = $2 WHERE id = $1`, applicationID, count)
	if err != nil {
		return fmt.Errorf("set chats_count: %w", err)
	}
	return nil
}
