package ledger

import "context"

// Store persists ledger entries.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	// Remove deletes an entry. Only used to undo an entry whose operation never committed.
	Remove(ctx context.Context, entryID string) error
	// Query returns entries matching f strictly after the cursor (nil = from the start),
	// in ledger order, at most f.Limit of them, plus the cursor of the next page or nil.
	Query(ctx context.Context, f Filter, after *Cursor) ([]*Entry, *Cursor, error)
	ListByDocument(ctx context.Context, documentID string) ([]*Entry, error)
	// ListByCustomer returns entries whose customer is customerID or whose related
	// document is one of documentIDs.
	ListByCustomer(ctx context.Context, customerID string, documentIDs []string) ([]*Entry, error)
}
