package reports_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tallybook/internal/core/apperror"
	"tallybook/internal/core/numerator"
	"tallybook/internal/core/storecall"
	"tallybook/internal/core/types"
	"tallybook/internal/domain/customer"
	"tallybook/internal/domain/document"
	"tallybook/internal/domain/inventory"
	"tallybook/internal/domain/ledger"
	"tallybook/internal/domain/reports"
	"tallybook/internal/infrastructure/storage/memory"
)

type env struct {
	engine  *document.Engine
	ledger  *ledger.Service
	reports *reports.Service
	clock   *time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	policy := storecall.Policy{Timeout: time.Second}

	products := memory.NewProducts()
	customers := memory.NewCustomers()
	entries := memory.NewLedger()

	for _, c := range []*customer.Customer{{CustomerID: "C1", Name: "Acme"}, {CustomerID: "C2", Name: "Globex"}, {CustomerID: "C3", Name: "Initech"}} {
		require.NoError(t, customers.Create(ctx, c))
	}
	for _, p := range []*inventory.Product{
		{ProductID: "P1", Name: "Widget", Price: types.MustMoney("100"), Quantity: 100},
		{ProductID: "P2", Name: "Gadget", Price: types.MustMoney("10"), Quantity: 100},
		{ProductID: "P3", Name: "Doohickey", Price: types.MustMoney("1"), Quantity: 100},
	} {
		require.NoError(t, products.Create(ctx, p))
	}

	now := time.Date(2026, 1, 30, 9, 0, 0, 0, time.UTC)
	e := &env{clock: &now}
	clock := func() time.Time { return *e.clock }

	customerSvc := customer.NewService(customers, policy)
	e.ledger = ledger.NewService(entries, customers, policy).WithClock(clock)
	e.engine = document.NewEngine(document.Deps{
		Documents: memory.NewDocuments(),
		Inventory: inventory.NewService(products, policy),
		Ledger:    e.ledger,
		Customers: customers,
		Numbers:   numerator.NewMemory(),
		Policy:    policy,
		Clock:     clock,
	})
	e.reports = reports.NewService(e.engine, e.ledger, customerSvc)
	return e
}

func (e *env) bill(t *testing.T, customerID string, terms document.PaymentTerms, items ...document.ItemInput) *document.Document {
	t.Helper()
	d, err := e.engine.Create(context.Background(), document.CreateRequest{
		DocumentType: document.TypeBill,
		CustomerID:   customerID,
		PaymentTerms: terms,
		Items:        items,
	})
	require.NoError(t, err)
	return d
}

func (e *env) pay(t *testing.T, d *document.Document, amount string) {
	t.Helper()
	_, err := e.engine.RecordPayment(context.Background(), document.PaymentRequest{
		DocumentID: d.DocumentID,
		Amount:     types.MustMoney(amount),
	})
	require.NoError(t, err)
}

func date(t *testing.T, s string) types.Date {
	t.Helper()
	d, err := types.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestCustomerDueFollowsDocumentStatus(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	e.bill(t, "C1", document.PayInInstallments, document.ItemInput{ProductID: "P1", Quantity: 2})
	partial := e.bill(t, "C1", document.PayInInstallments, document.ItemInput{ProductID: "P2", Quantity: 5})
	e.pay(t, partial, "20")
	cancelled := e.bill(t, "C1", document.PayInInstallments, document.ItemInput{ProductID: "P1", Quantity: 1})
	_, err := e.engine.CancelOrDelete(ctx, cancelled.DocumentID)
	require.NoError(t, err)
	e.bill(t, "C1", document.PayInFull, document.ItemInput{ProductID: "P1", Quantity: 1})
	e.bill(t, "C2", document.PayInInstallments, document.ItemInput{ProductID: "P3", Quantity: 7})

	due, err := e.reports.CustomerDue(ctx, "C1")
	require.NoError(t, err)
	// 200 unpaid + (50 − 20) partially paid.
	assert.True(t, due.TotalAmountDue.Equal(types.MustMoney("230")), "got %s", due.TotalAmountDue)
	assert.Equal(t, 2, due.OutstandingBills)

	dues, err := e.reports.CustomerDues(ctx)
	require.NoError(t, err)
	require.Len(t, dues, 3)
	byID := map[string]types.Money{}
	for _, d := range dues {
		byID[d.CustomerID] = d.TotalAmountDue
	}
	assert.True(t, byID["C1"].Equal(types.MustMoney("230")))
	assert.True(t, byID["C2"].Equal(types.MustMoney("7")))
	assert.True(t, byID["C3"].IsZero())

	_, err = e.reports.CustomerDue(ctx, "nobody")
	assert.True(t, apperror.IsNotFound(err))
}

func TestCustomerStatementIncludesLinkedAndManualEntries(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	b := e.bill(t, "C1", document.PayInInstallments, document.ItemInput{ProductID: "P1", Quantity: 1})
	e.pay(t, b, "40")

	later := e.clock.Add(time.Hour)
	e.clock = &later
	_, err := e.ledger.PostManual(ctx, ledger.ManualEntry{
		EntryType:   ledger.Income,
		EntryDate:   types.NewDate(later),
		Description: "Cash deposit",
		Amount:      types.MustMoney("5"),
		CustomerID:  "C1",
	})
	require.NoError(t, err)
	_, err = e.ledger.PostManual(ctx, ledger.ManualEntry{
		EntryType:   ledger.Expense,
		EntryDate:   types.NewDate(later),
		Description: "Office supplies",
		Amount:      types.MustMoney("3"),
	})
	require.NoError(t, err)

	st, err := e.reports.CustomerStatement(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", st.Customer.Name)
	assert.True(t, st.TotalAmountDue.Equal(types.MustMoney("60")))
	require.Len(t, st.OutstandingBills, 1)
	require.Len(t, st.PaymentHistory, 2)
	assert.Equal(t, "Cash deposit", st.PaymentHistory[0].Description, "newest first")
	assert.Equal(t, b.DocumentID, st.PaymentHistory[1].RelatedDocumentID)
}

func TestSalesSummaryCountsOnlySettledBills(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	e.bill(t, "C1", document.PayInFull, document.ItemInput{ProductID: "P1", Quantity: 1})

	next := time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC)
	e.clock = &next
	partial := e.bill(t, "C2", document.PayInInstallments, document.ItemInput{ProductID: "P2", Quantity: 3})
	e.pay(t, partial, "12.50")

	cancelled := e.bill(t, "C3", document.PayInFull, document.ItemInput{ProductID: "P1", Quantity: 2})
	_, err := e.engine.CancelOrDelete(ctx, cancelled.DocumentID)
	require.NoError(t, err)

	_, err = e.ledger.PostManual(ctx, ledger.ManualEntry{
		EntryType:   ledger.Income,
		EntryDate:   types.NewDate(next),
		Description: "Walk-in sale",
		Amount:      types.MustMoney("999"),
	})
	require.NoError(t, err)

	sum, err := e.reports.SalesSummary(ctx, date(t, "2026-01-01"), date(t, "2026-02-28"))
	require.NoError(t, err)
	require.Len(t, sum.Daily, 2)
	assert.Equal(t, "2026-01-30", sum.Daily[0].Period)
	assert.True(t, sum.Daily[0].Total.Equal(types.MustMoney("100")))
	assert.Equal(t, "2026-02-02", sum.Daily[1].Period)
	assert.True(t, sum.Daily[1].Total.Equal(types.MustMoney("12.50")))
	require.Len(t, sum.Monthly, 2)
	assert.Equal(t, "2026-01", sum.Monthly[0].Period)
	assert.Equal(t, "2026-02", sum.Monthly[1].Period)
	assert.True(t, sum.Total.Equal(types.MustMoney("112.50")))

	_, err = e.reports.SalesSummary(ctx, types.Date{}, date(t, "2026-02-28"))
	assert.True(t, apperror.HasCode(err, apperror.CodeDateRangeRequired))
}

func TestProductSalesRanksByQuantity(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	e.bill(t, "C1", document.PayInInstallments,
		document.ItemInput{ProductID: "P3", Quantity: 4},
		document.ItemInput{ProductID: "P2", Quantity: 4},
	)
	e.bill(t, "C2", document.PayInFull, document.ItemInput{ProductID: "P1", Quantity: 2})
	cancelled := e.bill(t, "C3", document.PayInFull, document.ItemInput{ProductID: "P1", Quantity: 50})
	_, err := e.engine.CancelOrDelete(ctx, cancelled.DocumentID)
	require.NoError(t, err)
	_, err = e.engine.Create(ctx, document.CreateRequest{
		DocumentType: document.TypeQuotation,
		CustomerID:   "C1",
		Items:        []document.ItemInput{{ProductID: "P1", Quantity: 80}},
	})
	require.NoError(t, err)

	top, err := e.reports.ProductSales(ctx, date(t, "2026-01-01"), date(t, "2026-01-31"), 0)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "P2", top[0].ProductID, "ties broken by productId")
	assert.Equal(t, "P3", top[1].ProductID)
	assert.Equal(t, "P1", top[2].ProductID)
	assert.Equal(t, int64(2), top[2].Quantity)
	assert.True(t, top[0].Revenue.Equal(types.MustMoney("40")))

	top, err = e.reports.ProductSales(ctx, date(t, "2026-01-01"), date(t, "2026-01-31"), 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)

	top, err = e.reports.ProductSales(ctx, date(t, "2026-02-01"), date(t, "2026-02-28"), 5)
	require.NoError(t, err)
	assert.Empty(t, top)
}
