package document_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"tallybook/internal/core/apperror"
	"tallybook/internal/core/numerator"
	"tallybook/internal/core/storecall"
	"tallybook/internal/core/types"
	"tallybook/internal/domain/customer"
	"tallybook/internal/domain/document"
	"tallybook/internal/domain/events"
	"tallybook/internal/domain/inventory"
	"tallybook/internal/domain/ledger"
	"tallybook/internal/infrastructure/storage/memory"
)

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	engine    *document.Engine
	products  *memory.Products
	entries   *memory.Ledger
	docs      *memory.Documents
	customers *memory.Customers
}

type fixtureOption func(f *fixture, d *document.Deps)

func withPublisher(p events.Publisher) fixtureOption {
	return func(_ *fixture, d *document.Deps) { d.Publisher = p }
}

func withDocuments(wrap func(document.Store) document.Store) fixtureOption {
	return func(_ *fixture, d *document.Deps) { d.Documents = wrap(d.Documents) }
}

func withLedgerStore(wrap func(ledger.Store) ledger.Store) fixtureOption {
	return func(f *fixture, d *document.Deps) {
		d.Ledger = ledger.NewService(wrap(f.entries), f.customers, d.Policy).WithClock(d.Clock)
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	ctx := context.Background()
	policy := storecall.Policy{Timeout: time.Second, ReadRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	f := &fixture{
		products:  memory.NewProducts(),
		entries:   memory.NewLedger(),
		docs:      memory.NewDocuments(),
		customers: memory.NewCustomers(),
	}
	require.NoError(t, f.customers.Create(ctx, &customer.Customer{CustomerID: "C1", Name: "Acme"}))
	require.NoError(t, f.customers.Create(ctx, &customer.Customer{CustomerID: "C2", Name: "Globex"}))
	f.addProduct(t, "P1", "Widget", "100", 10)
	f.addProduct(t, "P2", "Gadget", "25.50", 1)
	f.addProduct(t, "FREE", "Sample", "0", 5)

	clock := func() time.Time { return testNow }
	deps := document.Deps{
		Documents:       f.docs,
		Inventory:       inventory.NewService(f.products, policy),
		Ledger:          ledger.NewService(f.entries, f.customers, policy).WithClock(clock),
		Customers:       f.customers,
		Numbers:         numerator.NewMemory(),
		Policy:          policy,
		ConflictRetries: 3,
		Clock:           clock,
	}
	for _, opt := range opts {
		opt(f, &deps)
	}
	f.engine = document.NewEngine(deps)
	return f
}

func (f *fixture) addProduct(t *testing.T, productID, name, price string, qty int64) {
	t.Helper()
	require.NoError(t, f.products.Create(context.Background(), &inventory.Product{
		ProductID: productID,
		Name:      name,
		Price:     types.MustMoney(price),
		Quantity:  qty,
	}))
}

func (f *fixture) stock(t *testing.T, productID string) int64 {
	t.Helper()
	p, err := f.products.Get(context.Background(), productID)
	require.NoError(t, err)
	return p.Quantity
}

func (f *fixture) linked(t *testing.T, documentID string) []*ledger.Entry {
	t.Helper()
	entries, err := f.entries.ListByDocument(context.Background(), documentID)
	require.NoError(t, err)
	return entries
}

func (f *fixture) createBill(t *testing.T, terms document.PaymentTerms, items ...document.ItemInput) *document.Document {
	t.Helper()
	doc, err := f.engine.Create(context.Background(), document.CreateRequest{
		DocumentType: document.TypeBill,
		CustomerID:   "C1",
		Items:        items,
		PaymentTerms: terms,
	})
	require.NoError(t, err)
	return doc
}

func money(s string) types.Money {
	return types.MustMoney(s)
}

func TestBillInstallmentLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	bill := f.createBill(t, document.PayInInstallments, document.ItemInput{ProductID: "P1", Quantity: 3})
	assert.Equal(t, document.StatusUnpaid, bill.Status)
	assert.Equal(t, "BILL-2026-00001", bill.Number)
	assert.True(t, bill.GrandTotal.Equal(money("300")))
	assert.True(t, bill.AmountPaid.IsZero())
	assert.Equal(t, int64(7), f.stock(t, "P1"))
	assert.Empty(t, f.linked(t, bill.DocumentID))

	bill, err := f.engine.RecordPayment(ctx, document.PaymentRequest{DocumentID: bill.DocumentID, Amount: money("150")})
	require.NoError(t, err)
	assert.Equal(t, document.StatusPartiallyPaid, bill.Status)
	assert.True(t, bill.AmountPaid.Equal(money("150")))
	entries := f.linked(t, bill.DocumentID)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.Income, entries[0].EntryType)
	assert.True(t, entries[0].Amount.Equal(money("150")))
	assert.Equal(t, entries[0].EntryID, bill.Payments[0].LedgerEntryID)

	bill, err = f.engine.RecordPayment(ctx, document.PaymentRequest{DocumentID: bill.DocumentID, Amount: money("150")})
	require.NoError(t, err)
	assert.Equal(t, document.StatusPaid, bill.Status)
	assert.True(t, bill.AmountPaid.Equal(money("300")))
	assert.Len(t, bill.Payments, 2)

	bill, err = f.engine.CancelOrDelete(ctx, bill.DocumentID)
	require.NoError(t, err)
	require.NotNil(t, bill)
	assert.Equal(t, document.StatusCancelled, bill.Status)
	assert.True(t, bill.AmountPaid.Equal(money("300")), "amount paid is kept as history")
	assert.Equal(t, int64(10), f.stock(t, "P1"))

	entries = f.linked(t, bill.DocumentID)
	var expenses []*ledger.Entry
	for _, e := range entries {
		if e.EntryType == ledger.Expense {
			expenses = append(expenses, e)
		}
	}
	require.Len(t, expenses, 1)
	assert.True(t, expenses[0].Amount.Equal(money("300")))
	assert.True(t, ledger.NetIncome(entries).IsZero())
}

func TestCreateBillInsufficientStockLeavesStockUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.engine.Create(ctx, document.CreateRequest{
		DocumentType: document.TypeBill,
		CustomerID:   "C1",
		PaymentTerms: document.PayInFull,
		Items: []document.ItemInput{
			{ProductID: "P1", Quantity: 5},
			{ProductID: "P2", Quantity: 2},
		},
	})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))
	assert.Equal(t, int64(10), f.stock(t, "P1"))
	assert.Equal(t, int64(1), f.stock(t, "P2"))

	docs, err := f.engine.List(ctx, document.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestCancelTwiceIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	bill := f.createBill(t, document.PayInFull, document.ItemInput{ProductID: "P1", Quantity: 2})
	_, err := f.engine.CancelOrDelete(ctx, bill.DocumentID)
	require.NoError(t, err)
	stockAfterCancel := f.stock(t, "P1")
	entriesAfterCancel := len(f.linked(t, bill.DocumentID))

	_, err = f.engine.CancelOrDelete(ctx, bill.DocumentID)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeAlreadyCancelled))
	assert.Equal(t, stockAfterCancel, f.stock(t, "P1"))
	assert.Len(t, f.linked(t, bill.DocumentID), entriesAfterCancel)
}

func TestQuotationDeleteRemovesDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	quo, err := f.engine.Create(ctx, document.CreateRequest{
		DocumentType: document.TypeQuotation,
		CustomerID:   "C1",
		PaymentTerms: document.PayInFull,
		Items:        []document.ItemInput{{ProductID: "P1", Quantity: 50}},
	})
	require.NoError(t, err)
	assert.Equal(t, document.StatusActive, quo.Status)
	assert.Nil(t, quo.BillDetails)
	assert.Equal(t, "QUO-2026-00001", quo.Number)
	assert.Equal(t, int64(10), f.stock(t, "P1"), "quotations never touch stock")

	deleted, err := f.engine.CancelOrDelete(ctx, quo.DocumentID)
	require.NoError(t, err)
	assert.Nil(t, deleted)

	_, err = f.engine.Get(ctx, quo.DocumentID)
	assert.True(t, apperror.IsNotFound(err))
	assert.Empty(t, f.linked(t, quo.DocumentID))
	assert.Equal(t, int64(10), f.stock(t, "P1"))
}

func TestOverpaymentIsRejectedWithoutSideEffects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	bill := f.createBill(t, document.PayInInstallments, document.ItemInput{ProductID: "P1", Quantity: 1})
	_, err := f.engine.RecordPayment(ctx, document.PaymentRequest{DocumentID: bill.DocumentID, Amount: money("40")})
	require.NoError(t, err)

	_, err = f.engine.RecordPayment(ctx, document.PaymentRequest{DocumentID: bill.DocumentID, Amount: money("60.01")})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeOverpaymentRejected))

	got, err := f.engine.Get(ctx, bill.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusPartiallyPaid, got.Status)
	assert.True(t, got.AmountPaid.Equal(money("40")))
	assert.Len(t, f.linked(t, bill.DocumentID), 1)
}

func TestRecordPaymentRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	paid := f.createBill(t, document.PayInFull, document.ItemInput{ProductID: "P1", Quantity: 1})
	quo, err := f.engine.Create(ctx, document.CreateRequest{
		DocumentType: document.TypeQuotation,
		CustomerID:   "C1",
		Items:        []document.ItemInput{{ProductID: "P1", Quantity: 1}},
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		req  document.PaymentRequest
		code string
	}{
		{"zero amount", document.PaymentRequest{DocumentID: paid.DocumentID, Amount: money("0")}, apperror.CodeValidation},
		{"negative amount", document.PaymentRequest{DocumentID: paid.DocumentID, Amount: money("-5")}, apperror.CodeValidation},
		{"paid bill", document.PaymentRequest{DocumentID: paid.DocumentID, Amount: money("1")}, apperror.CodeInvalidStateTransition},
		{"quotation", document.PaymentRequest{DocumentID: quo.DocumentID, Amount: money("1")}, apperror.CodeInvalidStateTransition},
		{"unknown document", document.PaymentRequest{DocumentID: "missing", Amount: money("1")}, apperror.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.RecordPayment(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, apperror.HasCode(err, tt.code), "got %v", err)
		})
	}
	assert.Len(t, f.linked(t, paid.DocumentID), 1)
}

func TestPayInFullPostsSingleIncome(t *testing.T) {
	f := newFixture(t)

	bill := f.createBill(t, document.PayInFull,
		document.ItemInput{ProductID: "P1", Quantity: 2},
		document.ItemInput{ProductID: "P2", Quantity: 1},
	)
	assert.Equal(t, document.StatusPaid, bill.Status)
	assert.True(t, bill.GrandTotal.Equal(money("225.50")))
	assert.True(t, bill.AmountPaid.Equal(bill.GrandTotal))
	require.Len(t, bill.Payments, 1)

	entries := f.linked(t, bill.DocumentID)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.Income, entries[0].EntryType)
	assert.True(t, entries[0].Amount.Equal(money("225.50")))
	assert.Equal(t, "C1", entries[0].CustomerID)
	assert.Equal(t, int64(8), f.stock(t, "P1"))
	assert.Equal(t, int64(0), f.stock(t, "P2"))
}

func TestZeroTotalBillIsPaidWithoutLedgerEntry(t *testing.T) {
	f := newFixture(t)

	bill := f.createBill(t, document.PayInInstallments, document.ItemInput{ProductID: "FREE", Quantity: 2})
	assert.Equal(t, document.StatusPaid, bill.Status)
	assert.True(t, bill.GrandTotal.IsZero())
	assert.Empty(t, f.linked(t, bill.DocumentID))
	assert.Equal(t, int64(3), f.stock(t, "FREE"))
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name string
		req  document.CreateRequest
		code string
	}{
		{
			name: "unknown type",
			req:  document.CreateRequest{DocumentType: "Invoice", CustomerID: "C1", Items: []document.ItemInput{{ProductID: "P1", Quantity: 1}}},
			code: apperror.CodeValidation,
		},
		{
			name: "no items",
			req:  document.CreateRequest{DocumentType: document.TypeBill, CustomerID: "C1", PaymentTerms: document.PayInFull},
			code: apperror.CodeValidation,
		},
		{
			name: "zero quantity",
			req:  document.CreateRequest{DocumentType: document.TypeBill, CustomerID: "C1", PaymentTerms: document.PayInFull, Items: []document.ItemInput{{ProductID: "P1"}}},
			code: apperror.CodeValidation,
		},
		{
			name: "bill without terms",
			req:  document.CreateRequest{DocumentType: document.TypeBill, CustomerID: "C1", Items: []document.ItemInput{{ProductID: "P1", Quantity: 1}}},
			code: apperror.CodeValidation,
		},
		{
			name: "unknown customer",
			req:  document.CreateRequest{DocumentType: document.TypeBill, CustomerID: "nobody", PaymentTerms: document.PayInFull, Items: []document.ItemInput{{ProductID: "P1", Quantity: 1}}},
			code: apperror.CodeNotFound,
		},
		{
			name: "unknown product",
			req:  document.CreateRequest{DocumentType: document.TypeBill, CustomerID: "C1", PaymentTerms: document.PayInFull, Items: []document.ItemInput{{ProductID: "P1", Quantity: 1}, {ProductID: "nope", Quantity: 1}}},
			code: apperror.CodeNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Create(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, apperror.HasCode(err, tt.code), "got %v", err)
		})
	}
	assert.Equal(t, int64(10), f.stock(t, "P1"))
}

func TestEditUnpaidBillMovesStockByDelta(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	bill := f.createBill(t, document.PayInInstallments,
		document.ItemInput{ProductID: "P1", Quantity: 3},
		document.ItemInput{ProductID: "P2", Quantity: 1},
	)
	require.Equal(t, int64(7), f.stock(t, "P1"))
	require.Equal(t, int64(0), f.stock(t, "P2"))

	notes := "revised"
	edited, err := f.engine.Edit(ctx, document.EditRequest{
		DocumentID: bill.DocumentID,
		Items:      []document.ItemInput{{ProductID: "P1", Quantity: 5}},
		Notes:      &notes,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), f.stock(t, "P1"))
	assert.Equal(t, int64(1), f.stock(t, "P2"))
	assert.True(t, edited.GrandTotal.Equal(money("500")))
	assert.Equal(t, "revised", edited.Notes)
	assert.Equal(t, bill.Version+1, edited.Version)

	_, err = f.engine.Edit(ctx, document.EditRequest{
		DocumentID: bill.DocumentID,
		Items:      []document.ItemInput{{ProductID: "P1", Quantity: 50}},
	})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))
	assert.Equal(t, int64(5), f.stock(t, "P1"))
}

func TestEditRejectedUnlessUnpaid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	bill := f.createBill(t, document.PayInInstallments, document.ItemInput{ProductID: "P1", Quantity: 2})
	_, err := f.engine.RecordPayment(ctx, document.PaymentRequest{DocumentID: bill.DocumentID, Amount: money("10")})
	require.NoError(t, err)

	_, err = f.engine.Edit(ctx, document.EditRequest{
		DocumentID: bill.DocumentID,
		Items:      []document.ItemInput{{ProductID: "P1", Quantity: 1}},
	})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidStateTransition))
	assert.Equal(t, int64(8), f.stock(t, "P1"))
}

func TestEditQuotationRepricesWithoutStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	quo, err := f.engine.Create(ctx, document.CreateRequest{
		DocumentType: document.TypeQuotation,
		CustomerID:   "C2",
		Items:        []document.ItemInput{{ProductID: "P1", Quantity: 1}},
	})
	require.NoError(t, err)

	edited, err := f.engine.Edit(ctx, document.EditRequest{
		DocumentID: quo.DocumentID,
		Items:      []document.ItemInput{{ProductID: "P2", Quantity: 4}},
	})
	require.NoError(t, err)
	assert.True(t, edited.GrandTotal.Equal(money("102")))
	assert.Equal(t, int64(1), f.stock(t, "P2"))
}

func TestConcurrentPaymentsAreNeverLost(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	bill := f.createBill(t, document.PayInInstallments, document.ItemInput{ProductID: "P1", Quantity: 1})

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.RecordPayment(ctx, document.PaymentRequest{DocumentID: bill.DocumentID, Amount: money("10")})
			if err != nil {
				assert.True(t, apperror.IsConcurrentModification(err), "unexpected error %v", err)
				return
			}
			mu.Lock()
			succeeded++
			mu.Unlock()
		}()
	}
	wg.Wait()

	got, err := f.engine.Get(ctx, bill.DocumentID)
	require.NoError(t, err)
	assert.True(t, got.AmountPaid.Equal(types.LineTotal(money("10"), int64(succeeded))))
	assert.Len(t, got.Payments, succeeded)
	assert.Len(t, f.linked(t, bill.DocumentID), succeeded, "losing writers must remove their ledger entries")
}

// conflictingStore loses every version race.
type conflictingStore struct {
	document.Store
}

func (s conflictingStore) ConditionalUpdate(_ context.Context, id string, _ int, _ document.Mutator) (*document.Document, error) {
	return nil, apperror.NewConcurrentModification("document", id)
}

func TestPersistentConflictCompensatesLedger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, withDocuments(func(s document.Store) document.Store { return conflictingStore{s} }))

	bill := f.createBill(t, document.PayInInstallments, document.ItemInput{ProductID: "P1", Quantity: 1})

	_, err := f.engine.RecordPayment(ctx, document.PaymentRequest{DocumentID: bill.DocumentID, Amount: money("50")})
	require.Error(t, err)
	assert.True(t, apperror.IsConcurrentModification(err))
	assert.True(t, apperror.IsRetryable(err))
	assert.Empty(t, f.linked(t, bill.DocumentID))

	_, err = f.engine.CancelOrDelete(ctx, bill.DocumentID)
	require.Error(t, err)
	assert.Equal(t, int64(9), f.stock(t, "P1"), "stock is restored only after the cancel commits")
}

// pausedIncome holds the first income append after it lands, until release is closed.
type pausedIncome struct {
	ledger.Store
	once    sync.Once
	reached chan struct{}
	release chan struct{}
}

func (s *pausedIncome) Append(ctx context.Context, e *ledger.Entry) error {
	if err := s.Store.Append(ctx, e); err != nil {
		return err
	}
	if e.EntryType == ledger.Income {
		s.once.Do(func() {
			close(s.reached)
			<-s.release
		})
	}
	return nil
}

func TestCancelDuringUncommittedPaymentKeepsLedgerBalanced(t *testing.T) {
	ctx := context.Background()
	gate := &pausedIncome{reached: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, withLedgerStore(func(s ledger.Store) ledger.Store {
		gate.Store = s
		return gate
	}))

	bill := f.createBill(t, document.PayInInstallments, document.ItemInput{ProductID: "P1", Quantity: 1})

	paid := make(chan error, 1)
	go func() {
		_, err := f.engine.RecordPayment(ctx, document.PaymentRequest{DocumentID: bill.DocumentID, Amount: money("100")})
		paid <- err
	}()
	<-gate.reached

	cancelled, err := f.engine.CancelOrDelete(ctx, bill.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusCancelled, cancelled.Status)
	close(gate.release)

	err = <-paid
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidStateTransition), "got %v", err)

	entries := f.linked(t, bill.DocumentID)
	assert.True(t, ledger.NetIncome(entries).IsZero(), "linked net must be zero")
	assert.Empty(t, entries, "no reversal for a payment that never committed")
	assert.Equal(t, int64(10), f.stock(t, "P1"))
}

func TestCancelReversesOnlyCommittedPayments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	bill := f.createBill(t, document.PayInInstallments, document.ItemInput{ProductID: "P1", Quantity: 1})
	_, err := f.engine.RecordPayment(ctx, document.PaymentRequest{DocumentID: bill.DocumentID, Amount: money("30")})
	require.NoError(t, err)

	// Income of a payment whose document write was lost.
	require.NoError(t, f.entries.Append(ctx, &ledger.Entry{
		EntryID:           "orphan",
		EntryType:         ledger.Income,
		EntryDate:         types.NewDate(testNow),
		Description:       "orphan",
		Amount:            money("20"),
		CustomerID:        "C1",
		RelatedDocumentID: bill.DocumentID,
		CreatedAt:         testNow,
	}))

	_, err = f.engine.CancelOrDelete(ctx, bill.DocumentID)
	require.NoError(t, err)

	var expense types.Money
	for _, e := range f.linked(t, bill.DocumentID) {
		if e.EntryType == ledger.Expense {
			expense = e.Amount
		}
	}
	assert.True(t, expense.Equal(money("30")), "got %s", expense)
}

func TestCheckUnreferencedFollowsBillStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.engine.Create(ctx, document.CreateRequest{
		DocumentType: document.TypeQuotation,
		CustomerID:   "C1",
		Items:        []document.ItemInput{{ProductID: "P2", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.NoError(t, f.engine.CheckUnreferenced(ctx, "P2"), "quotations hold no stock")

	bill := f.createBill(t, document.PayInFull, document.ItemInput{ProductID: "P1", Quantity: 1})
	err = f.engine.CheckUnreferenced(ctx, "P1")
	assert.True(t, apperror.HasCode(err, apperror.CodeProductInUse), "paid bills still return stock on cancel")

	_, err = f.engine.CancelOrDelete(ctx, bill.DocumentID)
	require.NoError(t, err)
	assert.NoError(t, f.engine.CheckUnreferenced(ctx, "P1"))
}

// flakyStore reports StoreUnavailable from ConditionalUpdate, optionally after applying the write.
type flakyStore struct {
	document.Store
	apply bool
}

func (s flakyStore) ConditionalUpdate(ctx context.Context, id string, version int, mutate document.Mutator) (*document.Document, error) {
	if s.apply {
		if _, err := s.Store.ConditionalUpdate(ctx, id, version, mutate); err != nil {
			return nil, err
		}
	}
	return nil, apperror.NewStoreUnavailable(errors.New("connection reset"))
}

func TestUnavailableStoreAfterWriteLandedKeepsPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, withDocuments(func(s document.Store) document.Store { return flakyStore{Store: s, apply: true} }))

	bill := f.createBill(t, document.PayInInstallments, document.ItemInput{ProductID: "P1", Quantity: 1})

	got, err := f.engine.RecordPayment(ctx, document.PaymentRequest{DocumentID: bill.DocumentID, Amount: money("100")})
	require.NoError(t, err)
	assert.Equal(t, document.StatusPaid, got.Status)
	assert.Len(t, f.linked(t, bill.DocumentID), 1)
}

func TestUnavailableStoreBeforeWriteCompensates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, withDocuments(func(s document.Store) document.Store { return flakyStore{Store: s} }))

	bill := f.createBill(t, document.PayInInstallments, document.ItemInput{ProductID: "P1", Quantity: 1})

	_, err := f.engine.RecordPayment(ctx, document.PaymentRequest{DocumentID: bill.DocumentID, Amount: money("100")})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeStoreUnavailable))
	assert.True(t, apperror.IsRetryable(err))
	assert.Empty(t, f.linked(t, bill.DocumentID))

	got, err := f.engine.Get(ctx, bill.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusUnpaid, got.Status)
}

type eventOfType string

func (m eventOfType) Matches(x any) bool {
	ev, ok := x.(events.Event)
	return ok && ev.Type == string(m)
}

func (m eventOfType) String() string {
	return "event of type " + string(m)
}

func TestEventsArePublished(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := events.NewMockPublisher(ctrl)
	f := newFixture(t, withPublisher(pub))

	gomock.InOrder(
		pub.EXPECT().Publish(gomock.Any(), eventOfType(events.DocumentCreated)).Return(nil),
		pub.EXPECT().Publish(gomock.Any(), eventOfType(events.LedgerEntryPosted)).Return(errors.New("broker down")),
	)

	bill := f.createBill(t, document.PayInFull, document.ItemInput{ProductID: "P1", Quantity: 1})
	assert.Equal(t, document.StatusPaid, bill.Status, "publish failures do not fail the operation")
}

func TestListDocumentsFilters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.createBill(t, document.PayInInstallments, document.ItemInput{ProductID: "P1", Quantity: 1})
	_, err := f.engine.Create(ctx, document.CreateRequest{
		DocumentType: document.TypeQuotation,
		CustomerID:   "C2",
		Items:        []document.ItemInput{{ProductID: "P1", Quantity: 1}},
		DocumentDate: types.NewDate(testNow.AddDate(0, 0, -10)),
	})
	require.NoError(t, err)
	paid := f.createBill(t, document.PayInFull, document.ItemInput{ProductID: "P1", Quantity: 1})

	bills, err := f.engine.List(ctx, document.ListFilter{DocumentType: document.TypeBill})
	require.NoError(t, err)
	assert.Len(t, bills, 2)

	unpaid, err := f.engine.List(ctx, document.ListFilter{Statuses: []document.Status{document.StatusUnpaid}})
	require.NoError(t, err)
	require.Len(t, unpaid, 1)
	assert.Equal(t, first.DocumentID, unpaid[0].DocumentID)

	recent, err := f.engine.List(ctx, document.ListFilter{Limit: 1, CustomerID: "C1"})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Contains(t, []string{first.DocumentID, paid.DocumentID}, recent[0].DocumentID)

	inRange, err := f.engine.List(ctx, document.ListFilter{
		StartDate: types.NewDate(testNow.AddDate(0, 0, -11)),
		EndDate:   types.NewDate(testNow.AddDate(0, 0, -9)),
	})
	require.NoError(t, err)
	require.Len(t, inRange, 1)
	assert.Equal(t, document.TypeQuotation, inRange[0].DocumentType)
}
