package document

import (
	"context"
	"encoding/json"
	"time"
)

// Mutator changes a document inside ConditionalUpdate. Returning an error aborts the write.
type Mutator func(d *Document) error

// Store persists documents. Writes are per-document; there are no multi-key transactions.
type Store interface {
	// Put inserts a new document.
	Put(ctx context.Context, d *Document) error
	Get(ctx context.Context, documentID string) (*Document, error)
	// ConditionalUpdate applies mutate to the stored document if its version still equals
	// expectedVersion, increments the version and returns the stored result.
	// A version mismatch returns CONCURRENT_MODIFICATION and writes nothing.
	ConditionalUpdate(ctx context.Context, documentID string, expectedVersion int, mutate Mutator) (*Document, error)
	Delete(ctx context.Context, documentID string) error
	// List returns matching documents ordered by documentDate, then createdAt, newest first.
	List(ctx context.Context, f ListFilter) ([]*Document, error)
}

// Auditor records document mutations. Implementations must not fail the operation.
type Auditor interface {
	Record(ctx context.Context, action string, before, after *Document) error
}

// AuditRecord is one recorded mutation. Changes holds {"before", "after"} snapshots.
type AuditRecord struct {
	Action    string          `json:"action"`
	RequestID string          `json:"requestId,omitempty"`
	Changes   json.RawMessage `json:"changes"`
	CreatedAt time.Time       `json:"createdAt"`
}

// AuditReader returns the newest audit records of a document first.
type AuditReader interface {
	History(ctx context.Context, documentID string, limit int) ([]AuditRecord, error)
}

// Audit actions.
const (
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionPayment = "payment"
	ActionCancel  = "cancel"
	ActionDelete  = "delete"
)
