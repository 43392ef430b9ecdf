package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"tallybook/internal/core/apperror"
	"tallybook/internal/core/idempotency"
)

type idempotencyRecord struct {
	Key         string             `db:"idempotency_key"`
	Operation   string             `db:"operation"`
	RequestHash string             `db:"request_hash"`
	Status      idempotency.Status `db:"status"`
	Response    []byte             `db:"response"`
	StatusCode  int                `db:"response_status"`
	ContentType string             `db:"response_content_type"`
	CreatedAt   time.Time          `db:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at"`
	ExpiresAt   time.Time          `db:"expires_at"`
}

// IdempotencyStore keeps idempotency keys in sys_idempotency.
type IdempotencyStore struct {
	txManager *TxManager
	ttl       time.Duration
	now       func() time.Time
}

var _ idempotency.Store = (*IdempotencyStore)(nil)

// NewIdempotencyStore creates a store whose keys expire after ttl.
func NewIdempotencyStore(txManager *TxManager, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{txManager: txManager, ttl: ttl, now: time.Now}
}

// AcquireKey implements idempotency.Store.
func (s *IdempotencyStore) AcquireKey(ctx context.Context, key, operation, requestHash string) (*idempotency.Replay, error) {
	q := s.txManager.GetQuerier(ctx)
	now := s.now().UTC()

	// An expired key is free for reuse.
	if _, err := q.Exec(ctx, `
		DELETE FROM sys_idempotency WHERE idempotency_key = $1 AND expires_at < $2
	`, key, now); err != nil {
		return nil, MapError(fmt.Errorf("expire idempotency key: %w", err), "idempotency key", key)
	}

	var inserted string
	err := q.QueryRow(ctx, `
		INSERT INTO sys_idempotency (idempotency_key, operation, request_hash, status, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $5, $6)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING idempotency_key
	`, key, operation, requestHash, idempotency.StatusPending, now, now.Add(s.ttl)).Scan(&inserted)
	switch {
	case err == nil:
		return nil, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, MapError(fmt.Errorf("acquire idempotency key: %w", err), "idempotency key", key)
	}

	var rec idempotencyRecord
	if err := pgxscan.Get(ctx, q, &rec, `
		SELECT idempotency_key, operation, request_hash, status, response, response_status,
		       response_content_type, created_at, updated_at, expires_at
		FROM sys_idempotency WHERE idempotency_key = $1
	`, key); err != nil {
		if pgxscan.NotFound(err) {
			// Completed and purged between the two statements.
			return nil, apperror.NewIdempotencyConflict(key)
		}
		return nil, MapError(fmt.Errorf("load idempotency key: %w", err), "idempotency key", key)
	}

	if rec.Operation != operation || rec.RequestHash != requestHash {
		return nil, apperror.NewIdempotencyMismatch(key).
			WithDetail("stored_operation", rec.Operation).
			WithDetail("request_operation", operation)
	}

	switch rec.Status {
	case idempotency.StatusSuccess, idempotency.StatusFailed:
		return idempotency.NormalizeReplay(&idempotency.Replay{
			StatusCode:  rec.StatusCode,
			ContentType: rec.ContentType,
			Body:        rec.Response,
		}), nil
	}

	// Pending: reclaim only if the holder went quiet.
	tag, err := q.Exec(ctx, `
		UPDATE sys_idempotency SET updated_at = $1
		WHERE idempotency_key = $2 AND status = $3 AND updated_at < $4
	`, now, key, idempotency.StatusPending, now.Add(-idempotency.StaleAfter))
	if err != nil {
		return nil, MapError(fmt.Errorf("reclaim stale key: %w", err), "idempotency key", key)
	}
	if tag.RowsAffected() == 1 {
		return nil, nil
	}
	return nil, apperror.NewIdempotencyConflict(key)
}

// CompleteKey implements idempotency.Store.
func (s *IdempotencyStore) CompleteKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	return s.finish(ctx, key, idempotency.StatusSuccess, statusCode, contentType, response)
}

// FailKey implements idempotency.Store.
func (s *IdempotencyStore) FailKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	return s.finish(ctx, key, idempotency.StatusFailed, statusCode, contentType, response)
}

func (s *IdempotencyStore) finish(ctx context.Context, key string, status idempotency.Status, statusCode int, contentType string, response any) error {
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_idempotency
		SET status = $1,
		    response = $2,
		    response_status = $3,
		    response_content_type = $4,
		    updated_at = $5
		WHERE idempotency_key = $6
	`, status, idempotency.MarshalResponse(response), statusCode, contentType, s.now().UTC(), key)
	if err != nil {
		return MapError(fmt.Errorf("finish idempotency key: %w", err), "idempotency key", key)
	}
	return nil
}

// CleanupExpired removes expired idempotency records.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	tag, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		DELETE FROM sys_idempotency WHERE expires_at < $1
	`, s.now().UTC())
	if err != nil {
		return 0, MapError(err, "idempotency key", "")
	}
	return tag.RowsAffected(), nil
}
