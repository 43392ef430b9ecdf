package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"tallybook/internal/core/apperror"
)

// SQLSTATE codes the repositories react to.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeQueryCanceled        = "57014"
	classConnectionException = "08"
)

// MapError converts a driver error into the AppError the domain expects.
// Missing rows become NOT_FOUND, unique violations DUPLICATE and transient
// failures STORE_UNAVAILABLE. Anything else is returned unchanged.
func MapError(err error, entity, key string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperror.AsAppError(err); ok {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NewNotFound(entity, key)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeUniqueViolation:
			return apperror.NewDuplicate(entity, constraintField(pgErr), key)
		case pgErr.Code == codeSerializationFailure,
			pgErr.Code == codeDeadlockDetected,
			pgErr.Code == codeQueryCanceled,
			strings.HasPrefix(pgErr.Code, classConnectionException):
			return apperror.NewStoreUnavailable(err)
		}
		return err
	}

	if IsTransient(err) {
		return apperror.NewStoreUnavailable(err)
	}
	return err
}

// IsTransient reports whether err is a timeout or connection failure the caller may retry.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case pgconn.Timeout(err):
		return true
	case pgconn.SafeToRetry(err):
		return true
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}

func constraintField(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	// <table>_<column>_key
	name := pgErr.ConstraintName
	if strings.HasSuffix(name, "_key") {
		name = strings.TrimSuffix(name, "_key")
		if i := strings.Index(name, "_"); i >= 0 {
			return name[i+1:]
		}
	}
	return "id"
}
