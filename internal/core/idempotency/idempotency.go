// Package idempotency defines the store behind the X-Idempotency-Key header.
package idempotency

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"tallybook/internal/core/apperror"
)

// Status represents the state of an idempotent operation.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// StaleAfter is how long a pending key may stay untouched before another request reclaims it.
const StaleAfter = time.Minute

// Replay is the cached HTTP response for replay.
type Replay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Store manages idempotency keys.
//
// AcquireKey returns:
//   - (nil, nil) if the key was acquired and the request should run
//   - (replay, nil) if the operation already completed
//   - (nil, error) if the key is held by a concurrent request or reused for a different one
type Store interface {
	AcquireKey(ctx context.Context, key, operation, requestHash string) (*Replay, error)
	CompleteKey(ctx context.Context, key string, statusCode int, contentType string, response any) error
	FailKey(ctx context.Context, key string, statusCode int, contentType string, response any) error
}

// MarshalResponse renders a response body for storage. A marshal failure falls back
// to a minimal error body so the key stays consistent.
func MarshalResponse(response any) []byte {
	if response == nil {
		return nil
	}
	b, err := json.Marshal(response)
	if err != nil {
		b, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	return b
}

// NormalizeReplay fills defaults for records stored without status or content type.
func NormalizeReplay(r *Replay) *Replay {
	if r.StatusCode == 0 {
		r.StatusCode = http.StatusOK
	}
	if r.ContentType == "" && r.StatusCode != http.StatusNoContent {
		r.ContentType = "application/json"
	}
	return r
}

type record struct {
	operation   string
	requestHash string
	status      Status
	replay      Replay
	updatedAt   time.Time
	expiresAt   time.Time
}

// Memory is the in-process Store used by the memory storage driver.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	records map[string]*record
}

var _ Store = (*Memory)(nil)

// NewMemory creates an in-process store keeping keys for ttl.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		now:     time.Now,
		records: make(map[string]*record),
	}
}

// AcquireKey implements Store.
func (m *Memory) AcquireKey(_ context.Context, key, operation, requestHash string) (*Replay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	rec, ok := m.records[key]
	if !ok || now.After(rec.expiresAt) {
		m.records[key] = &record{
			operation:   operation,
			requestHash: requestHash,
			status:      StatusPending,
			updatedAt:   now,
			expiresAt:   now.Add(m.ttl),
		}
		return nil, nil
	}

	if rec.operation != operation || rec.requestHash != requestHash {
		return nil, apperror.NewIdempotencyMismatch(key).
			WithDetail("stored_operation", rec.operation).
			WithDetail("request_operation", operation)
	}

	switch rec.status {
	case StatusSuccess, StatusFailed:
		replay := rec.replay
		return NormalizeReplay(&replay), nil
	default:
		if now.Sub(rec.updatedAt) > StaleAfter {
			rec.updatedAt = now
			return nil, nil
		}
		return nil, apperror.NewIdempotencyConflict(key)
	}
}

// CompleteKey implements Store.
func (m *Memory) CompleteKey(_ context.Context, key string, statusCode int, contentType string, response any) error {
	m.finish(key, StatusSuccess, statusCode, contentType, response)
	return nil
}

// FailKey implements Store.
func (m *Memory) FailKey(_ context.Context, key string, statusCode int, contentType string, response any) error {
	m.finish(key, StatusFailed, statusCode, contentType, response)
	return nil
}

// CleanupExpired removes expired keys.
func (m *Memory) CleanupExpired(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var n int64
	for key, rec := range m.records {
		if now.After(rec.expiresAt) {
			delete(m.records, key)
			n++
		}
	}
	return n, nil
}

func (m *Memory) finish(key string, status Status, statusCode int, contentType string, response any) {
	body := MarshalResponse(response)

	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return
	}
	rec.status = status
	rec.replay = Replay{StatusCode: statusCode, ContentType: contentType, Body: body}
	rec.updatedAt = m.now()
}
