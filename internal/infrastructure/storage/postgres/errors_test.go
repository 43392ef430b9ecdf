package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"tallybook/internal/core/apperror"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"no rows", fmt.Errorf("get: %w", pgx.ErrNoRows), apperror.CodeNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "documents_number_key"}, apperror.CodeDuplicate},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, apperror.CodeStoreUnavailable},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, apperror.CodeStoreUnavailable},
		{"statement timeout", &pgconn.PgError{Code: "57014"}, apperror.CodeStoreUnavailable},
		{"connection failure", &pgconn.PgError{Code: "08006"}, apperror.CodeStoreUnavailable},
		{"deadline", fmt.Errorf("exec: %w", context.DeadlineExceeded), apperror.CodeStoreUnavailable},
		{"app error passes through", apperror.NewInsufficientStock("P1", 2, 1), apperror.CodeInsufficientStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err, "document", "D1")
			assert.True(t, apperror.HasCode(got, tt.wantCode), "got %v", got)
		})
	}
}

func TestMapError_Passthrough(t *testing.T) {
	assert.NoError(t, MapError(nil, "document", "D1"))

	plain := errors.New("syntax error")
	assert.Same(t, plain, MapError(plain, "document", "D1"))

	check := &pgconn.PgError{Code: "23514"}
	assert.Same(t, check, MapError(check, "product", "P1"))
}

func TestConstraintField(t *testing.T) {
	assert.Equal(t, "number", constraintField(&pgconn.PgError{ConstraintName: "documents_number_key"}))
	assert.Equal(t, "id", constraintField(&pgconn.PgError{ConstraintName: "documents_pkey"}))
	assert.Equal(t, "email", constraintField(&pgconn.PgError{ColumnName: "email"}))
}
