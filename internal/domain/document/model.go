// Package document owns the Quotation/Bill lifecycle and the engine that keeps
// stock, ledger and document state consistent.
package document

import (
	"fmt"
	"strings"
	"time"

	"tallybook/internal/core/apperror"
	"tallybook/internal/core/entity"
	"tallybook/internal/core/types"
	"tallybook/internal/domain/inventory"
)

// Type tags the document variant.
type Type string

const (
	TypeQuotation Type = "Quotation"
	TypeBill      Type = "Bill"
)

// ParseType accepts the wire value in any case.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quotation":
		return TypeQuotation, nil
	case "bill":
		return TypeBill, nil
	}
	return "", apperror.NewValidation("documentType must be Quotation or Bill").WithDetail("documentType", s)
}

// Status of a document. Quotations are always Active.
type Status string

const (
	StatusActive        Status = "Active"
	StatusUnpaid        Status = "Unpaid"
	StatusPartiallyPaid Status = "Partially Paid"
	StatusPaid          Status = "Paid"
	StatusCancelled     Status = "Cancelled"
)

// ParseStatus accepts "Partially Paid", "PartiallyPaid" and "partially_paid" alike.
func ParseStatus(s string) (Status, error) {
	norm := strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(s))
	for _, st := range []Status{StatusActive, StatusUnpaid, StatusPartiallyPaid, StatusPaid, StatusCancelled} {
		if strings.ReplaceAll(strings.ToLower(string(st)), " ", "") == norm {
			return st, nil
		}
	}
	return "", apperror.NewValidation("unknown status").WithDetail("status", s)
}

// PaymentTerms decide how a bill is settled.
type PaymentTerms string

const (
	PayInFull         PaymentTerms = "Pay in Full"
	PayInInstallments PaymentTerms = "Pay in Installments"
)

// ParsePaymentTerms accepts "Pay in Full", "PayInFull" and "pay_in_full" alike.
func ParsePaymentTerms(s string) (PaymentTerms, error) {
	norm := strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(s))
	switch norm {
	case "payinfull":
		return PayInFull, nil
	case "payininstallments":
		return PayInInstallments, nil
	}
	return "", apperror.NewValidation("paymentTerms must be 'Pay in Full' or 'Pay in Installments'").
		WithDetail("paymentTerms", s)
}

// Item is a priced document line. Price is copied from inventory when the line is written.
type Item struct {
	ProductID string      `json:"productId"`
	Name      string      `json:"name"`
	Quantity  int64       `json:"quantity"`
	Price     types.Money `json:"price"`
}

// Total returns quantity × price.
func (i Item) Total() types.Money {
	return types.LineTotal(i.Price, i.Quantity)
}

// Payment is one installment recorded against a bill.
type Payment struct {
	EntryID     string      `json:"entryId"`
	Amount      types.Money `json:"amount"`
	PaymentDate types.Date  `json:"paymentDate"`
	CreatedAt   time.Time   `json:"createdAt"`
	// LedgerEntryID is the Income entry posted for this payment.
	LedgerEntryID string `json:"ledgerEntryId"`
}

// BillDetails carries the fields only bills have.
type BillDetails struct {
	PaymentTerms PaymentTerms `json:"paymentTerms"`
	AmountPaid   types.Money  `json:"amountPaid"`
	Payments     []Payment    `json:"payments"`
}

// Document is a Quotation or a Bill. BillDetails is nil for quotations.
type Document struct {
	DocumentID   string      `json:"documentId"`
	Number       string      `json:"number"`
	DocumentType Type        `json:"documentType"`
	CustomerID   string      `json:"customerId"`
	CustomerName string      `json:"customerName"`
	Items        []Item      `json:"items"`
	GrandTotal   types.Money `json:"grandTotal"`
	Notes        string      `json:"notes,omitempty"`
	DocumentDate types.Date  `json:"documentDate"`
	Status       Status      `json:"status"`
	*BillDetails
	entity.Versioned
	entity.Timestamps
}

// IsBill reports whether the document is a bill.
func (d *Document) IsBill() bool {
	return d.DocumentType == TypeBill
}

// Remaining returns grandTotal − amountPaid for bills and zero otherwise.
func (d *Document) Remaining() types.Money {
	if d.BillDetails == nil {
		return types.Zero()
	}
	return d.GrandTotal.Sub(d.AmountPaid)
}

// IsOutstanding reports whether the bill still has a balance owed.
func (d *Document) IsOutstanding() bool {
	return d.IsBill() && (d.Status == StatusUnpaid || d.Status == StatusPartiallyPaid)
}

// RecomputeTotal sets GrandTotal from the items.
func (d *Document) RecomputeTotal() {
	total := types.Zero()
	for _, it := range d.Items {
		total = total.Add(it.Total())
	}
	d.GrandTotal = total
}

// Lines returns the stock movement backing the document items.
func (d *Document) Lines() []inventory.Line {
	lines := make([]inventory.Line, 0, len(d.Items))
	for _, it := range d.Items {
		lines = append(lines, inventory.Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return lines
}

// CheckPayment reports whether amount can be applied to the bill right now.
func (d *Document) CheckPayment(amount types.Money) error {
	if !d.IsBill() {
		return apperror.NewInvalidState("record payment on", string(d.DocumentType))
	}
	if d.Status != StatusUnpaid && d.Status != StatusPartiallyPaid {
		return apperror.NewInvalidState("record payment on", string(d.Status))
	}
	if !amount.IsPositive() {
		return apperror.NewValidation("amount must be positive").WithDetail("amount", amount.String())
	}
	if remaining := d.Remaining(); amount.GreaterThan(remaining) {
		return apperror.NewOverpayment(amount.String(), remaining.String())
	}
	return nil
}

// ApplyPayment appends p and moves the bill to Partially Paid or Paid.
func (d *Document) ApplyPayment(p Payment) error {
	if err := d.CheckPayment(p.Amount); err != nil {
		return err
	}
	d.Payments = append(d.Payments, p)
	d.AmountPaid = d.AmountPaid.Add(p.Amount)

	next := StatusPartiallyPaid
	if d.AmountPaid.Equal(d.GrandTotal) {
		next = StatusPaid
	}
	return d.transition(next)
}

// Cancel moves the bill to Cancelled. AmountPaid and Payments are kept as history.
func (d *Document) Cancel() error {
	if !d.IsBill() {
		return apperror.NewInvalidState("cancel", string(d.DocumentType))
	}
	if d.Status == StatusCancelled {
		return apperror.NewAlreadyCancelled(d.DocumentID)
	}
	return d.transition(StatusCancelled)
}

func (d *Document) transition(to Status) error {
	if !CanTransition(d.Status, to) {
		return apperror.NewInvalidState(fmt.Sprintf("move to %q", to), string(d.Status))
	}
	d.Status = to
	return nil
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.Items = make([]Item, len(d.Items))
	copy(c.Items, d.Items)
	if d.BillDetails != nil {
		bill := *d.BillDetails
		bill.Payments = make([]Payment, len(d.Payments))
		copy(bill.Payments, d.Payments)
		c.BillDetails = &bill
	}
	return &c
}

// ItemInput is a requested line before pricing.
type ItemInput struct {
	ProductID string
	Quantity  int64
}

func validateItems(items []ItemInput) error {
	if len(items) == 0 {
		return apperror.NewValidation("items must not be empty")
	}
	for i, it := range items {
		if strings.TrimSpace(it.ProductID) == "" {
			return apperror.NewValidation("productId is required").WithDetail("index", i)
		}
		if it.Quantity <= 0 {
			return apperror.NewValidation("quantity must be positive").
				WithDetail("index", i).
				WithDetail("productId", it.ProductID)
		}
	}
	return nil
}

// ListFilter narrows ListDocuments. Zero values mean "any".
type ListFilter struct {
	DocumentType Type
	CustomerID   string
	Statuses     []Status
	StartDate    types.Date
	EndDate      types.Date
	// Limit keeps only the N most recent documents.
	Limit int
}

// Matches reports whether d satisfies the filter. Limit is not considered.
func (f ListFilter) Matches(d *Document) bool {
	if f.DocumentType != "" && d.DocumentType != f.DocumentType {
		return false
	}
	if f.CustomerID != "" && d.CustomerID != f.CustomerID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if d.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.StartDate.IsZero() && d.DocumentDate.Before(f.StartDate) {
		return false
	}
	if !f.EndDate.IsZero() && d.DocumentDate.After(f.EndDate) {
		return false
	}
	return true
}
