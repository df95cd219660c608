package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the application reacts to.
const (
	CodeForeignKeyViolation  = "23503"
	CodeUniqueViolation      = "23505"
	CodeCheckViolation       = "23514"
	CodeExclusionViolation   = "23P01"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
)

// PgError unwraps a server error from err.
func PgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// ConstraintViolation reports the SQLSTATE and constraint name of an integrity
// violation. ok is false for any other error.
func ConstraintViolation(err error) (code, constraint string, ok bool) {
	pgErr, found := PgError(err)
	if !found {
		return "", "", false
	}
	switch pgErr.Code {
	case CodeForeignKeyViolation, CodeUniqueViolation, CodeCheckViolation, CodeExclusionViolation:
		return pgErr.Code, pgErr.ConstraintName, true
	}
	return "", "", false
}

// IsTransient reports whether err is worth retrying for a read: the request
// never reached the server, or the server aborted it for concurrency reasons.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if pgconn.SafeToRetry(err) {
		return true
	}
	if pgErr, ok := PgError(err); ok {
		return pgErr.Code == CodeSerializationFailure || pgErr.Code == CodeDeadlockDetected
	}
	return false
}
