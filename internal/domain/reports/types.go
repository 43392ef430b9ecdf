// Package reports is the read-only aggregation layer over documents and the ledger.
package reports

import (
	"tallybook/internal/core/types"
	"tallybook/internal/domain/customer"
	"tallybook/internal/domain/document"
	"tallybook/internal/domain/ledger"
)

// DefaultTopN is the number of products returned by ProductSales when none is requested.
const DefaultTopN = 5

// CustomerDue is the outstanding balance of one customer.
type CustomerDue struct {
	CustomerID       string      `json:"customerId"`
	TotalAmountDue   types.Money `json:"totalAmountDue"`
	OutstandingBills int         `json:"outstandingBills"`
}

// CustomerWithDue is a customer row of the customers list.
type CustomerWithDue struct {
	*customer.Customer
	TotalAmountDue types.Money `json:"totalAmountDue"`
}

// Statement is a customer-scoped view of what is owed and what was paid.
type Statement struct {
	Customer         *customer.Customer   `json:"customer"`
	TotalAmountDue   types.Money          `json:"totalAmountDue"`
	OutstandingBills []*document.Document `json:"outstandingBills"`
	// PaymentHistory is ordered by createdAt, newest first.
	PaymentHistory []*ledger.Entry `json:"paymentHistory"`
}

// PeriodTotal is the income of one day (YYYY-MM-DD) or month (YYYY-MM).
type PeriodTotal struct {
	Period string      `json:"period"`
	Total  types.Money `json:"total"`
}

// SalesSummary holds income totals per day and per month, both in ascending order.
type SalesSummary struct {
	StartDate types.Date    `json:"startDate"`
	EndDate   types.Date    `json:"endDate"`
	Daily     []PeriodTotal `json:"daily"`
	Monthly   []PeriodTotal `json:"monthly"`
	Total     types.Money   `json:"total"`
}

// ProductSales is one row of the top products report.
type ProductSales struct {
	ProductID string      `json:"productId"`
	Name      string      `json:"name"`
	Quantity  int64       `json:"quantity"`
	Revenue   types.Money `json:"revenue"`
}
