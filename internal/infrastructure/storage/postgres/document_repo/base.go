// Package document_repo provides the PostgreSQL document store.
// Items and bill details are JSONB columns so every change is a single-row write.
package document_repo

import (
	"encoding/json"
	"fmt"
	"time"

	"tallybook/internal/core/entity"
	"tallybook/internal/core/types"
	"tallybook/internal/domain/document"
)

const documentsTable = "documents"

var documentColumns = []string{
	"document_id", "number", "document_type", "customer_id", "customer_name",
	"items", "grand_total", "notes", "document_date", "status", "bill_details",
	"version", "created_at", "updated_at",
}

// documentRow is the stored shape of a document.
type documentRow struct {
	DocumentID   string      `db:"document_id"`
	Number       string      `db:"number"`
	DocumentType string      `db:"document_type"`
	CustomerID   string      `db:"customer_id"`
	CustomerName string      `db:"customer_name"`
	Items        []byte      `db:"items"`
	GrandTotal   types.Money `db:"grand_total"`
	Notes        string      `db:"notes"`
	DocumentDate types.Date  `db:"document_date"`
	Status       string      `db:"status"`
	BillDetails  []byte      `db:"bill_details"`
	Version      int         `db:"version"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func toRow(d *document.Document) (*documentRow, error) {
	items, err := json.Marshal(d.Items)
	if err != nil {
		return nil, fmt.Errorf("marshal items: %w", err)
	}
	row := &documentRow{
		DocumentID:   d.DocumentID,
		Number:       d.Number,
		DocumentType: string(d.DocumentType),
		CustomerID:   d.CustomerID,
		CustomerName: d.CustomerName,
		Items:        items,
		GrandTotal:   d.GrandTotal,
		Notes:        d.Notes,
		DocumentDate: d.DocumentDate,
		Status:       string(d.Status),
		Version:      d.Version,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	if d.BillDetails != nil {
		if row.BillDetails, err = json.Marshal(d.BillDetails); err != nil {
			return nil, fmt.Errorf("marshal bill details: %w", err)
		}
	}
	return row, nil
}

func (r *documentRow) toDocument() (*document.Document, error) {
	d := &document.Document{
		DocumentID:   r.DocumentID,
		Number:       r.Number,
		DocumentType: document.Type(r.DocumentType),
		CustomerID:   r.CustomerID,
		CustomerName: r.CustomerName,
		GrandTotal:   r.GrandTotal,
		Notes:        r.Notes,
		DocumentDate: r.DocumentDate,
		Status:       document.Status(r.Status),
		Versioned:    entity.Versioned{Version: r.Version},
		Timestamps:   entity.Timestamps{CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC()},
	}
	if err := json.Unmarshal(r.Items, &d.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items of %s: %w", r.DocumentID, err)
	}
	if len(r.BillDetails) > 0 {
		d.BillDetails = &document.BillDetails{}
		if err := json.Unmarshal(r.BillDetails, d.BillDetails); err != nil {
			return nil, fmt.Errorf("unmarshal bill details of %s: %w", r.DocumentID, err)
		}
		if d.Payments == nil {
			d.Payments = []document.Payment{}
		}
	}
	return d, nil
}

// values returns the row in documentColumns order. A nil bill_details is SQL NULL.
func (r *documentRow) values() []any {
	var bill any
	if r.BillDetails != nil {
		bill = r.BillDetails
	}
	return []any{
		r.DocumentID, r.Number, r.DocumentType, r.CustomerID, r.CustomerName,
		r.Items, r.GrandTotal, r.Notes, r.DocumentDate, r.Status, bill,
		r.Version, r.CreatedAt, r.UpdatedAt,
	}
}
