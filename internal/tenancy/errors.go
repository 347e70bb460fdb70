package tenancy

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ticketing-suite/ticketing/internal/access"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// NotFound maps pgx.ErrNoRows to a 404 with msg and passes other errors through.
// A row hidden by row-level security is indistinguishable from a missing one.
func NotFound(err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return access.NotFound(msg)
	}
	return err
}

// Classify maps constraint violations to client errors.
func Classify(err error, conflictMsg string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return access.Conflict(conflictMsg)
	case pgForeignKeyViolation:
		return access.BadRequest("referenced record does not exist")
	}
	return err
}
