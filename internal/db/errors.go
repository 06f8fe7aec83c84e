package db

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackgods/clinic-scheduling-engine/internal/apperr"
)

// Postgres SQLSTATE codes the engine reacts to.
const (
	CodeExclusionViolation  = "23P01"
	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"
	CodeCheckViolation      = "23514"
	CodeSerializationFail   = "40001"
)

// Classify maps a pgx error onto the apperr taxonomy. what names the entity for
// not-found messages. Errors that are already classified pass through.
func Classify(err error, what string) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(what + " not found")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case CodeExclusionViolation:
			return apperr.SlotConflict("requested time overlaps an existing booking, re-check availability")
		case CodeForeignKeyViolation:
			return apperr.NotFound("referenced record for " + what + " not found")
		case CodeCheckViolation, CodeUniqueViolation:
			return apperr.Validation(pgErr.Message)
		case CodeSerializationFail:
			return apperr.StoreUnavailable("store contention, retry", err)
		}
		return apperr.Internal("store error", err)
	}

	if isUnavailable(err) {
		return apperr.StoreUnavailable("store unavailable", err)
	}
	return apperr.Internal("store error", err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
