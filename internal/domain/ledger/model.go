// Package ledger is the append-mostly log of income and expense entries.
package ledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"tallybook/internal/core/apperror"
	"tallybook/internal/core/types"
)

// EntryType distinguishes money in from money out.
type EntryType string

const (
	Income  EntryType = "INCOME"
	Expense EntryType = "EXPENSE"
)

// ParseEntryType accepts the wire value in any case.
func ParseEntryType(s string) (EntryType, error) {
	switch EntryType(strings.ToUpper(strings.TrimSpace(s))) {
	case Income:
		return Income, nil
	case Expense:
		return Expense, nil
	}
	return "", apperror.NewValidation("entryType must be INCOME or EXPENSE").WithDetail("entryType", s)
}

// Entry is a single ledger line.
// Entries with RelatedDocumentID are generated by the document engine; the rest are manual.
type Entry struct {
	EntryID           string      `db:"entry_id" json:"entryId"`
	EntryType         EntryType   `db:"entry_type" json:"entryType"`
	EntryDate         types.Date  `db:"entry_date" json:"entryDate"`
	Description       string      `db:"description" json:"description"`
	Amount            types.Money `db:"amount" json:"amount"`
	CustomerID        string      `db:"customer_id" json:"customerId,omitempty"`
	RelatedDocumentID string      `db:"related_document_id" json:"relatedDocumentId,omitempty"`
	CreatedAt         time.Time   `db:"created_at" json:"createdAt"`
}

// IsManual reports whether the entry was posted by a user rather than by a document operation.
func (e *Entry) IsManual() bool {
	return e.RelatedDocumentID == ""
}

// Validate checks entry invariants.
func (e *Entry) Validate(_ context.Context) error {
	if e.EntryType != Income && e.EntryType != Expense {
		return apperror.NewValidation("entryType must be INCOME or EXPENSE").WithDetail("entryType", string(e.EntryType))
	}
	if e.EntryDate.IsZero() {
		return apperror.NewValidation("entryDate is required")
	}
	if strings.TrimSpace(e.Description) == "" {
		return apperror.NewValidation("description is required")
	}
	if !e.Amount.IsPositive() {
		return apperror.NewValidation("amount must be positive").WithDetail("amount", e.Amount.String())
	}
	return nil
}

// Filter narrows a ledger query. Both dates are inclusive.
type Filter struct {
	StartDate  types.Date
	EndDate    types.Date
	EntryType  EntryType
	CustomerID string
	Limit      int
}

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Cursor is the last-seen sort key of a page.
type Cursor struct {
	EntryDate string    `json:"d"`
	CreatedAt time.Time `json:"c"`
	EntryID   string    `json:"i"`
}

// CursorOf returns the sort key of e.
func CursorOf(e *Entry) *Cursor {
	return &Cursor{
		EntryDate: e.EntryDate.String(),
		CreatedAt: e.CreatedAt,
		EntryID:   e.EntryID,
	}
}

// Encode serializes the cursor into an opaque token.
func (c *Cursor) Encode() string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses a token produced by Encode.
func DecodeCursor(token string) (*Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, apperror.NewValidation("invalid cursor")
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil || c.EntryID == "" {
		return nil, apperror.NewValidation("invalid cursor")
	}
	return &c, nil
}

// Compare orders e relative to the cursor key: -1 before, 0 equal, 1 after.
func (c *Cursor) Compare(e *Entry) int {
	if d := strings.Compare(e.EntryDate.String(), c.EntryDate); d != 0 {
		return d
	}
	if !e.CreatedAt.Equal(c.CreatedAt) {
		if e.CreatedAt.Before(c.CreatedAt) {
			return -1
		}
		return 1
	}
	return strings.Compare(e.EntryID, c.EntryID)
}

// Less is the ledger order: entryDate, then createdAt, then entryId.
func Less(a, b *Entry) bool {
	return CursorOf(b).Compare(a) < 0
}

// Page is one slice of a ledger query.
type Page struct {
	Entries    []*Entry `json:"entries"`
	NextCursor string   `json:"nextCursor,omitempty"`
}
