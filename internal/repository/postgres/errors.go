package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lalith-99/chatlog/internal/apperr"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// classify maps integrity errors onto apperr.ErrConstraintViolation and
// wraps everything else with op.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgForeignKeyViolation, pgCheckViolation:
			return fmt.Errorf("%s: %w: %s (%s)", op, apperr.ErrConstraintViolation, pgErr.ConstraintName, pgErr.Code)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
