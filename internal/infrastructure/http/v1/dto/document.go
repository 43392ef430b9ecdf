package dto

import (
	"strings"

	"tallybook/internal/core/types"
	"tallybook/internal/domain/document"
)

// ItemRequest is one requested document line. Prices come from inventory.
type ItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

func toItemInputs(items []ItemRequest) []document.ItemInput {
	out := make([]document.ItemInput, 0, len(items))
	for _, it := range items {
		out = append(out, document.ItemInput{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

// CreateDocumentRequest is the request body for POST /documents.
type CreateDocumentRequest struct {
	DocumentType string        `json:"documentType" binding:"required"`
	CustomerID   string        `json:"customerId" binding:"required"`
	Items        []ItemRequest `json:"items"`
	PaymentTerms string        `json:"paymentTerms"`
	Notes        string        `json:"notes"`
	DocumentDate types.Date    `json:"documentDate"`
}

// ToCommand parses wire values into an engine request.
func (r *CreateDocumentRequest) ToCommand() (document.CreateRequest, error) {
	docType, err := document.ParseType(r.DocumentType)
	if err != nil {
		return document.CreateRequest{}, err
	}
	cmd := document.CreateRequest{
		DocumentType: docType,
		CustomerID:   r.CustomerID,
		Items:        toItemInputs(r.Items),
		Notes:        r.Notes,
		DocumentDate: r.DocumentDate,
	}
	// Terms are ignored for quotations, so only bills reject bad values.
	if docType == document.TypeBill && strings.TrimSpace(r.PaymentTerms) != "" {
		if cmd.PaymentTerms, err = document.ParsePaymentTerms(r.PaymentTerms); err != nil {
			return document.CreateRequest{}, err
		}
	}
	return cmd, nil
}

// UpdateDocumentRequest is the request body for PUT /documents/:id.
type UpdateDocumentRequest struct {
	Items []ItemRequest `json:"items"`
	Notes *string       `json:"notes"`
}

// ToCommand converts DTO to an engine request.
func (r *UpdateDocumentRequest) ToCommand(documentID string) document.EditRequest {
	return document.EditRequest{
		DocumentID: documentID,
		Items:      toItemInputs(r.Items),
		Notes:      r.Notes,
	}
}

// PaymentRequest is the request body for POST /documents/:id/payment.
type PaymentRequest struct {
	Amount      types.Money `json:"amount"`
	PaymentDate types.Date  `json:"paymentDate"`
}

// DocumentListQuery holds the query parameters of GET /documents.
type DocumentListQuery struct {
	DocumentType string `form:"documentType"`
	CustomerID   string `form:"customerId"`
	// Status is a comma-separated list.
	Status    string `form:"status"`
	StartDate string `form:"startDate"`
	EndDate   string `form:"endDate"`
	Recent    int    `form:"recent"`
}

// ToFilter parses the query into a list filter.
func (q *DocumentListQuery) ToFilter() (document.ListFilter, error) {
	var (
		f   document.ListFilter
		err error
	)
	if q.DocumentType != "" {
		if f.DocumentType, err = document.ParseType(q.DocumentType); err != nil {
			return f, err
		}
	}
	f.CustomerID = strings.TrimSpace(q.CustomerID)
	for _, s := range strings.Split(q.Status, ",") {
		if strings.TrimSpace(s) == "" {
			continue
		}
		st, err := document.ParseStatus(s)
		if err != nil {
			return f, err
		}
		f.Statuses = append(f.Statuses, st)
	}
	if f.StartDate, err = ParseDate("startDate", q.StartDate); err != nil {
		return f, err
	}
	if f.EndDate, err = ParseDate("endDate", q.EndDate); err != nil {
		return f, err
	}
	f.Limit = q.Recent
	return f, nil
}
