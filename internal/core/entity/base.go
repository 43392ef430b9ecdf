// Package entity holds the pieces shared by stored records.
package entity

import (
	"context"
	"time"
)

// Validatable is implemented by entities that support self-validation.
// Validation checks internal invariants (without store access).
type Validatable interface {
	// Validate returns nil if valid, AppError with details otherwise.
	Validate(ctx context.Context) error
}

// Timestamps records creation and last modification time (UTC).
type Timestamps struct {
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Stamp sets CreatedAt on first call and UpdatedAt on every call.
func (t *Timestamps) Stamp(now time.Time) {
	now = now.UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
}

// Versioned is embedded by records guarded by optimistic locking.
type Versioned struct {
	// Version is incremented on each successful conditional update.
	Version int `db:"version" json:"version"`
}
