package dto

import (
	"tallybook/internal/core/types"
	"tallybook/internal/domain/ledger"
)

// LedgerQuery holds the query parameters of GET /ledger.
type LedgerQuery struct {
	StartDate  string `form:"startDate"`
	EndDate    string `form:"endDate"`
	EntryType  string `form:"entryType"`
	CustomerID string `form:"customerId"`
	Cursor     string `form:"cursor"`
	Limit      int    `form:"limit"`
}

// ToFilter parses the query into a ledger filter.
func (q *LedgerQuery) ToFilter() (ledger.Filter, error) {
	var (
		f   ledger.Filter
		err error
	)
	if f.StartDate, err = ParseDate("startDate", q.StartDate); err != nil {
		return f, err
	}
	if f.EndDate, err = ParseDate("endDate", q.EndDate); err != nil {
		return f, err
	}
	if q.EntryType != "" {
		if f.EntryType, err = ledger.ParseEntryType(q.EntryType); err != nil {
			return f, err
		}
	}
	f.CustomerID = q.CustomerID
	f.Limit = q.Limit
	return f, nil
}

// ManualEntryRequest is the request body for POST /ledger.
type ManualEntryRequest struct {
	EntryType   string      `json:"entryType" binding:"required"`
	EntryDate   types.Date  `json:"entryDate"`
	Description string      `json:"description"`
	Amount      types.Money `json:"amount"`
	CustomerID  string      `json:"customerId"`
}

// ToCommand parses wire values into a manual entry.
func (r *ManualEntryRequest) ToCommand() (ledger.ManualEntry, error) {
	t, err := ledger.ParseEntryType(r.EntryType)
	if err != nil {
		return ledger.ManualEntry{}, err
	}
	return ledger.ManualEntry{
		EntryType:   t,
		EntryDate:   r.EntryDate,
		Description: r.Description,
		Amount:      r.Amount,
		CustomerID:  r.CustomerID,
	}, nil
}
