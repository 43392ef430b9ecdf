package reports

import (
	"context"
	"fmt"
	"sort"

	"tallybook/internal/core/apperror"
	"tallybook/internal/core/types"
	"tallybook/internal/domain/customer"
	"tallybook/internal/domain/document"
	"tallybook/internal/domain/ledger"
)

// DocumentReader is satisfied by document.Engine.
type DocumentReader interface {
	List(ctx context.Context, f document.ListFilter) ([]*document.Document, error)
}

// LedgerReader is satisfied by ledger.Service.
type LedgerReader interface {
	Query(ctx context.Context, f ledger.Filter, cursor string) (*ledger.Page, error)
	ForCustomer(ctx context.Context, customerID string, documentIDs []string) ([]*ledger.Entry, error)
}

// CustomerReader is satisfied by customer.Service.
type CustomerReader interface {
	Get(ctx context.Context, customerID string) (*customer.Customer, error)
	List(ctx context.Context) ([]*customer.Customer, error)
}

var (
	outstanding  = []document.Status{document.StatusUnpaid, document.StatusPartiallyPaid}
	settled      = []document.Status{document.StatusPartiallyPaid, document.StatusPaid}
	notCancelled = []document.Status{document.StatusUnpaid, document.StatusPartiallyPaid, document.StatusPaid}
)

// Service computes customer balances, statements and sales analytics.
type Service struct {
	documents DocumentReader
	ledger    LedgerReader
	customers CustomerReader
}

// NewService creates a new reports service.
func NewService(documents DocumentReader, ledger LedgerReader, customers CustomerReader) *Service {
	return &Service{documents: documents, ledger: ledger, customers: customers}
}

// CustomerDue sums grandTotal − amountPaid over the customer's unpaid and partially paid bills.
func (s *Service) CustomerDue(ctx context.Context, customerID string) (*CustomerDue, error) {
	if _, err := s.customers.Get(ctx, customerID); err != nil {
		return nil, err
	}
	bills, err := s.outstandingBills(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return &CustomerDue{
		CustomerID:       customerID,
		TotalAmountDue:   sumRemaining(bills),
		OutstandingBills: len(bills),
	}, nil
}

// CustomerDues returns every customer with its outstanding balance.
func (s *Service) CustomerDues(ctx context.Context) ([]CustomerWithDue, error) {
	customers, err := s.customers.List(ctx)
	if err != nil {
		return nil, err
	}
	bills, err := s.outstandingBills(ctx, "")
	if err != nil {
		return nil, err
	}

	due := make(map[string]types.Money)
	for _, b := range bills {
		due[b.CustomerID] = due[b.CustomerID].Add(b.Remaining())
	}
	out := make([]CustomerWithDue, 0, len(customers))
	for _, c := range customers {
		out = append(out, CustomerWithDue{Customer: c, TotalAmountDue: due[c.CustomerID]})
	}
	return out, nil
}

// CustomerStatement returns outstanding bills and the full transaction history of a customer.
// History covers entries tagged with the customer and entries linked to any of its documents.
func (s *Service) CustomerStatement(ctx context.Context, customerID string) (*Statement, error) {
	cust, err := s.customers.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	docs, err := s.documents.List(ctx, document.ListFilter{CustomerID: customerID})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(docs))
	bills := make([]*document.Document, 0)
	for _, d := range docs {
		ids = append(ids, d.DocumentID)
		if d.IsOutstanding() {
			bills = append(bills, d)
		}
	}

	history, err := s.ledger.ForCustomer(ctx, customerID, ids)
	if err != nil {
		return nil, fmt.Errorf("customer history: %w", err)
	}
	sort.SliceStable(history, func(i, j int) bool {
		if !history[i].CreatedAt.Equal(history[j].CreatedAt) {
			return history[i].CreatedAt.After(history[j].CreatedAt)
		}
		return history[i].EntryID > history[j].EntryID
	})
	if history == nil {
		history = []*ledger.Entry{}
	}

	return &Statement{
		Customer:         cust,
		TotalAmountDue:   sumRemaining(bills),
		OutstandingBills: bills,
		PaymentHistory:   history,
	}, nil
}

// SalesSummary totals income per day and month. Only income linked to bills that are
// currently paid or partially paid counts; cancelled bills and manual entries do not.
func (s *Service) SalesSummary(ctx context.Context, start, end types.Date) (*SalesSummary, error) {
	if err := checkRange(start, end); err != nil {
		return nil, err
	}

	bills, err := s.documents.List(ctx, document.ListFilter{DocumentType: document.TypeBill, Statuses: settled})
	if err != nil {
		return nil, err
	}
	counted := make(map[string]bool, len(bills))
	for _, b := range bills {
		counted[b.DocumentID] = true
	}

	daily := make(map[string]types.Money)
	monthly := make(map[string]types.Money)
	total := types.Zero()
	err = s.eachEntry(ctx, ledger.Filter{StartDate: start, EndDate: end, EntryType: ledger.Income}, func(e *ledger.Entry) {
		if !counted[e.RelatedDocumentID] {
			return
		}
		day, month := e.EntryDate.String(), e.EntryDate.MonthKey()
		daily[day] = daily[day].Add(e.Amount)
		monthly[month] = monthly[month].Add(e.Amount)
		total = total.Add(e.Amount)
	})
	if err != nil {
		return nil, err
	}

	return &SalesSummary{
		StartDate: start,
		EndDate:   end,
		Daily:     sortedTotals(daily),
		Monthly:   sortedTotals(monthly),
		Total:     total,
	}, nil
}

// ProductSales ranks products by quantity sold on non-cancelled bills dated in range.
// Ties are broken by productId.
func (s *Service) ProductSales(ctx context.Context, start, end types.Date, topN int) ([]ProductSales, error) {
	if err := checkRange(start, end); err != nil {
		return nil, err
	}
	if topN < 0 {
		return nil, apperror.NewValidation("limit must not be negative")
	}
	if topN == 0 {
		topN = DefaultTopN
	}

	bills, err := s.documents.List(ctx, document.ListFilter{
		DocumentType: document.TypeBill,
		Statuses:     notCancelled,
		StartDate:    start,
		EndDate:      end,
	})
	if err != nil {
		return nil, err
	}

	byProduct := make(map[string]*ProductSales)
	for _, b := range bills {
		for _, it := range b.Items {
			row, ok := byProduct[it.ProductID]
			if !ok {
				row = &ProductSales{ProductID: it.ProductID, Name: it.Name}
				byProduct[it.ProductID] = row
			}
			row.Quantity += it.Quantity
			row.Revenue = row.Revenue.Add(it.Total())
		}
	}

	out := make([]ProductSales, 0, len(byProduct))
	for _, row := range byProduct {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].ProductID < out[j].ProductID
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}

func (s *Service) outstandingBills(ctx context.Context, customerID string) ([]*document.Document, error) {
	return s.documents.List(ctx, document.ListFilter{
		DocumentType: document.TypeBill,
		CustomerID:   customerID,
		Statuses:     outstanding,
	})
}

// eachEntry walks every page of a ledger query.
func (s *Service) eachEntry(ctx context.Context, f ledger.Filter, fn func(e *ledger.Entry)) error {
	f.Limit = ledger.MaxLimit
	cursor := ""
	for {
		page, err := s.ledger.Query(ctx, f, cursor)
		if err != nil {
			return err
		}
		for _, e := range page.Entries {
			fn(e)
		}
		if page.NextCursor == "" {
			return nil
		}
		cursor = page.NextCursor
	}
}

func checkRange(start, end types.Date) error {
	if start.IsZero() || end.IsZero() {
		return apperror.NewDateRangeRequired()
	}
	if start.After(end) {
		return apperror.NewValidation("startDate must not be after endDate")
	}
	return nil
}

func sumRemaining(bills []*document.Document) types.Money {
	total := types.Zero()
	for _, b := range bills {
		total = total.Add(b.Remaining())
	}
	return total
}

func sortedTotals(m map[string]types.Money) []PeriodTotal {
	out := make([]PeriodTotal, 0, len(m))
	for period, total := range m {
		out = append(out, PeriodTotal{Period: period, Total: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out
}
