package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrAccountNotFound is returned when no account matches a lookup or a conditional update.
	ErrAccountNotFound = errors.New("account not found")
	// ErrDuplicateEmail is returned when the unique email constraint rejects a write.
	ErrDuplicateEmail = errors.New("email already registered")
)

const uniqueViolation = "23505"

// DBTX is the subset of pgxpool.Pool, pgx.Conn and pgx.Tx used by the repositories.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
