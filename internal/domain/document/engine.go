package document

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tallybook/internal/core/apperror"
	appctx "tallybook/internal/core/context"
	"tallybook/internal/core/id"
	"tallybook/internal/core/numerator"
	"tallybook/internal/core/storecall"
	"tallybook/internal/core/types"
	"tallybook/internal/domain/customer"
	"tallybook/internal/domain/events"
	"tallybook/internal/domain/inventory"
	"tallybook/internal/domain/ledger"
	"tallybook/pkg/logger"
)

var tracer = otel.Tracer("tallybook/document")

// DefaultConflictRetries is used when Deps.ConflictRetries is zero.
const DefaultConflictRetries = 3

// Deps wires the engine to its collaborators.
type Deps struct {
	Documents Store
	Inventory *inventory.Service
	Ledger    *ledger.Service
	Customers customer.Reader
	Numbers   numerator.Generator

	// Optional.
	Publisher events.Publisher
	Auditor   Auditor

	Policy          storecall.Policy
	ConflictRetries int
	Clock           func() time.Time
}

// Engine runs document operations so that stock, ledger and document state
// change together or not at all. Stores only offer per-key conditional writes,
// so each operation orders its steps as reserve stock, post ledger, flip document,
// and undoes the earlier steps when a later one fails.
type Engine struct {
	documents Store
	inventory *inventory.Service
	ledger    *ledger.Service
	customers customer.Reader
	numbers   numerator.Generator
	publisher events.Publisher
	auditor   Auditor
	policy    storecall.Policy
	retries   int
	now       func() time.Time

	handlers map[Type]typeHandler
}

// NewEngine creates a document engine.
func NewEngine(d Deps) *Engine {
	e := &Engine{
		documents: d.Documents,
		inventory: d.Inventory,
		ledger:    d.Ledger,
		customers: d.Customers,
		numbers:   d.Numbers,
		publisher: d.Publisher,
		auditor:   d.Auditor,
		policy:    d.Policy,
		retries:   d.ConflictRetries,
		now:       d.Clock,
	}
	if e.publisher == nil {
		e.publisher = events.Nop{}
	}
	if e.retries <= 0 {
		e.retries = DefaultConflictRetries
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.handlers = map[Type]typeHandler{
		TypeQuotation: &quotationHandler{e: e},
		TypeBill:      &billHandler{e: e},
	}
	return e
}

// CreateRequest is the input of Create.
type CreateRequest struct {
	DocumentType Type
	CustomerID   string
	Items        []ItemInput
	// PaymentTerms is required for bills and ignored for quotations.
	PaymentTerms PaymentTerms
	Notes        string
	// DocumentDate defaults to today.
	DocumentDate types.Date
}

// PaymentRequest is the input of RecordPayment.
type PaymentRequest struct {
	DocumentID string
	Amount     types.Money
	// PaymentDate defaults to today.
	PaymentDate types.Date
}

// EditRequest is the input of Edit. A nil Notes keeps the current notes.
type EditRequest struct {
	DocumentID string
	Items      []ItemInput
	Notes      *string
}

// Create validates the request, prices the items from inventory and stores the document.
// Bills reserve stock and, when paid in full, post their income.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (doc *Document, err error) {
	ctx, span := tracer.Start(ctx, "document.Create",
		trace.WithAttributes(attribute.String("document.type", string(req.DocumentType))))
	defer func() { endSpan(span, err) }()

	h, err := e.handler(req.DocumentType)
	if err != nil {
		return nil, err
	}
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}
	if err := h.validateCreate(req); err != nil {
		return nil, err
	}

	cust, err := e.customer(ctx, strings.TrimSpace(req.CustomerID))
	if err != nil {
		return nil, err
	}
	items, err := e.price(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	now := e.now()
	doc = &Document{
		DocumentID:   id.New(),
		DocumentType: req.DocumentType,
		CustomerID:   cust.CustomerID,
		CustomerName: cust.Name,
		Items:        items,
		Notes:        strings.TrimSpace(req.Notes),
		DocumentDate: req.DocumentDate,
	}
	if doc.DocumentDate.IsZero() {
		doc.DocumentDate = types.NewDate(now)
	}
	doc.RecomputeTotal()
	doc.Version = 1
	doc.Stamp(now)

	cfg, opts := h.numbering()
	doc.Number, err = e.numbers.GetNextNumber(ctx, cfg, opts, doc.DocumentDate.Time)
	if err != nil {
		return nil, fmt.Errorf("generate number: %w", err)
	}
	ctx = logger.WithFields(ctx, "document_id", doc.DocumentID)

	posted, err := h.create(ctx, doc, req.PaymentTerms)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "document created",
		"number", doc.Number,
		"type", doc.DocumentType,
		"status", doc.Status,
	)
	e.audit(ctx, ActionCreate, nil, doc)
	e.emit(ctx, events.New(events.DocumentCreated, events.AggregateDocument, doc.DocumentID, doc))
	e.emitEntries(ctx, posted...)
	return doc, nil
}

// RecordPayment applies an installment to a bill and posts its income.
func (e *Engine) RecordPayment(ctx context.Context, req PaymentRequest) (doc *Document, err error) {
	ctx, span := tracer.Start(ctx, "document.RecordPayment",
		trace.WithAttributes(attribute.String("document.id", req.DocumentID)))
	defer func() { endSpan(span, err) }()
	ctx = logger.WithFields(ctx, "document_id", req.DocumentID)

	if !req.Amount.IsPositive() {
		return nil, apperror.NewValidation("amount must be positive").WithDetail("amount", req.Amount.String())
	}
	if req.PaymentDate.IsZero() {
		req.PaymentDate = types.NewDate(e.now())
	}

	var (
		before *Document
		entry  *ledger.Entry
	)
	doc, err = e.withConflictRetry(ctx, req.DocumentID, func(ctx context.Context, current *Document) (*Document, error) {
		h, err := e.handler(current.DocumentType)
		if err != nil {
			return nil, err
		}
		before = current
		var updated *Document
		updated, entry, err = h.pay(ctx, current, req)
		return updated, err
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "payment recorded",
		"amount", req.Amount.String(),
		"amount_paid", doc.AmountPaid.String(),
		"status", doc.Status,
	)
	e.audit(ctx, ActionPayment, before, doc)
	e.emit(ctx, events.New(events.PaymentRecorded, events.AggregateDocument, doc.DocumentID, doc))
	e.emitEntries(ctx, entry)
	return doc, nil
}

// Edit replaces the items and notes of a quotation or an unpaid bill.
// Prices are refreshed from inventory. Bills move stock by the per-product delta.
func (e *Engine) Edit(ctx context.Context, req EditRequest) (doc *Document, err error) {
	ctx, span := tracer.Start(ctx, "document.Edit",
		trace.WithAttributes(attribute.String("document.id", req.DocumentID)))
	defer func() { endSpan(span, err) }()
	ctx = logger.WithFields(ctx, "document_id", req.DocumentID)

	if err := validateItems(req.Items); err != nil {
		return nil, err
	}

	var before *Document
	doc, err = e.withConflictRetry(ctx, req.DocumentID, func(ctx context.Context, current *Document) (*Document, error) {
		h, err := e.handler(current.DocumentType)
		if err != nil {
			return nil, err
		}
		before = current
		return h.edit(ctx, current, req)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "document updated",
		"grand_total", doc.GrandTotal.String(),
		"version", doc.Version,
	)
	e.audit(ctx, ActionUpdate, before, doc)
	e.emit(ctx, events.New(events.DocumentUpdated, events.AggregateDocument, doc.DocumentID, doc))
	return doc, nil
}

// CancelOrDelete hard-deletes a quotation (returning nil) or cancels a bill,
// offsetting its income and returning its stock.
func (e *Engine) CancelOrDelete(ctx context.Context, documentID string) (doc *Document, err error) {
	ctx, span := tracer.Start(ctx, "document.CancelOrDelete",
		trace.WithAttributes(attribute.String("document.id", documentID)))
	defer func() { endSpan(span, err) }()
	ctx = logger.WithFields(ctx, "document_id", documentID)

	var (
		before *Document
		entry  *ledger.Entry
	)
	doc, err = e.withConflictRetry(ctx, documentID, func(ctx context.Context, current *Document) (*Document, error) {
		h, err := e.handler(current.DocumentType)
		if err != nil {
			return nil, err
		}
		before = current
		var updated *Document
		updated, entry, err = h.remove(ctx, current)
		return updated, err
	})
	if err != nil {
		return nil, err
	}

	if doc == nil {
		logger.Info(ctx, "document deleted", "number", before.Number)
		e.audit(ctx, ActionDelete, before, nil)
		e.emit(ctx, events.New(events.DocumentDeleted, events.AggregateDocument, documentID,
			map[string]string{"documentId": documentID, "number": before.Number}))
		return nil, nil
	}

	logger.Info(ctx, "document cancelled", "number", doc.Number)
	e.audit(ctx, ActionCancel, before, doc)
	e.emit(ctx, events.New(events.DocumentCancelled, events.AggregateDocument, doc.DocumentID, doc))
	e.emitEntries(ctx, entry)
	return doc, nil
}

// Get returns a document by id.
func (e *Engine) Get(ctx context.Context, documentID string) (*Document, error) {
	return storecall.Read(ctx, e.policy, func(ctx context.Context) (*Document, error) {
		return e.documents.Get(ctx, documentID)
	})
}

// List returns documents matching f, newest first.
func (e *Engine) List(ctx context.Context, f ListFilter) ([]*Document, error) {
	if !f.StartDate.IsZero() && !f.EndDate.IsZero() && f.StartDate.After(f.EndDate) {
		return nil, apperror.NewValidation("startDate must not be after endDate")
	}
	if f.Limit < 0 {
		return nil, apperror.NewValidation("recent must not be negative")
	}
	docs, err := storecall.Read(ctx, e.policy, func(ctx context.Context) ([]*Document, error) {
		return e.documents.List(ctx, f)
	})
	if err != nil {
		return nil, err
	}
	SortNewestFirst(docs)
	if f.Limit > 0 && len(docs) > f.Limit {
		docs = docs[:f.Limit]
	}
	return docs, nil
}

// CheckUnreferenced fails with PRODUCT_IN_USE while a bill that is not cancelled
// lists the product, since cancelling it must be able to return the stock.
func (e *Engine) CheckUnreferenced(ctx context.Context, productID string) error {
	bills, err := e.List(ctx, ListFilter{
		DocumentType: TypeBill,
		Statuses:     []Status{StatusUnpaid, StatusPartiallyPaid, StatusPaid},
	})
	if err != nil {
		return err
	}
	for _, d := range bills {
		for _, it := range d.Items {
			if it.ProductID == productID {
				return apperror.NewProductInUse(productID, d.Number)
			}
		}
	}
	return nil
}

// SortNewestFirst orders documents by documentDate, then createdAt, newest first.
func SortNewestFirst(docs []*Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		a, b := docs[i], docs[j]
		if !a.DocumentDate.Equal(b.DocumentDate.Time) {
			return a.DocumentDate.After(b.DocumentDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.DocumentID > b.DocumentID
	})
}

func (e *Engine) handler(t Type) (typeHandler, error) {
	h, ok := e.handlers[t]
	if !ok {
		return nil, apperror.NewValidation("documentType must be Quotation or Bill").WithDetail("documentType", string(t))
	}
	return h, nil
}

// withConflictRetry re-reads the document and reruns op while it loses version races.
func (e *Engine) withConflictRetry(
	ctx context.Context,
	documentID string,
	op func(ctx context.Context, current *Document) (*Document, error),
) (*Document, error) {
	for attempt := 0; ; attempt++ {
		current, err := e.Get(ctx, documentID)
		if err != nil {
			return nil, err
		}
		doc, err := op(ctx, current)
		if err == nil || !apperror.IsConcurrentModification(err) {
			return doc, err
		}
		if attempt >= e.retries {
			logger.Warn(ctx, "giving up after version conflicts", "attempts", attempt+1)
			return nil, err
		}
		logger.Debug(ctx, "version conflict, retrying", "attempt", attempt+1)
	}
}

func (e *Engine) customer(ctx context.Context, customerID string) (*customer.Customer, error) {
	if customerID == "" {
		return nil, apperror.NewValidation("customerId is required")
	}
	return storecall.Read(ctx, e.policy, func(ctx context.Context) (*customer.Customer, error) {
		return e.customers.Get(ctx, customerID)
	})
}

// price copies name and price from the current inventory into document items.
func (e *Engine) price(ctx context.Context, in []ItemInput) ([]Item, error) {
	ids := make([]string, 0, len(in))
	for _, it := range in {
		ids = append(ids, strings.TrimSpace(it.ProductID))
	}
	products, err := e.inventory.Snapshot(ctx, ids)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(in))
	for i, it := range in {
		p := products[ids[i]]
		items = append(items, Item{
			ProductID: p.ProductID,
			Name:      p.Name,
			Quantity:  it.Quantity,
			Price:     p.Price,
		})
	}
	return items, nil
}

// update runs a conditional update under the write policy.
func (e *Engine) update(ctx context.Context, current *Document, mutate Mutator) (*Document, error) {
	now := e.now()
	return storecall.WriteValue(ctx, e.policy, func(ctx context.Context) (*Document, error) {
		return e.documents.ConditionalUpdate(ctx, current.DocumentID, current.Version, func(d *Document) error {
			if err := mutate(d); err != nil {
				return err
			}
			d.Stamp(now)
			return nil
		})
	})
}

// committed reports whether a write that failed with an unknown outcome actually landed.
// It re-reads the document and asks check. A failed re-read counts as unknown.
func (e *Engine) committed(ctx context.Context, writeErr error, documentID string, check func(d *Document) bool) (doc *Document, known bool) {
	if !apperror.HasCode(writeErr, apperror.CodeStoreUnavailable) {
		return nil, true
	}
	doc, err := e.Get(appctx.Detached(ctx), documentID)
	switch {
	case apperror.IsNotFound(err):
		return nil, true
	case err != nil:
		logger.Error(ctx, "document write outcome unknown, leaving side effects in place",
			"write_error", writeErr,
			"read_error", err,
		)
		return nil, false
	case check(doc):
		return doc, true
	}
	return nil, true
}

func (e *Engine) today() types.Date {
	return types.NewDate(e.now())
}

func (e *Engine) audit(ctx context.Context, action string, before, after *Document) {
	if e.auditor == nil {
		return
	}
	if err := e.auditor.Record(ctx, action, before, after); err != nil {
		logger.Warn(ctx, "audit record failed", "action", action, "error", err)
	}
}

func (e *Engine) emit(ctx context.Context, ev events.Event) {
	if err := e.publisher.Publish(ctx, ev); err != nil {
		logger.Warn(ctx, "event publish failed",
			"event_type", ev.Type,
			"aggregate_id", ev.AggregateID,
			"error", err,
		)
	}
}

func (e *Engine) emitEntries(ctx context.Context, entries ...*ledger.Entry) {
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		e.emit(ctx, events.New(events.LedgerEntryPosted, events.AggregateLedger, entry.EntryID, entry))
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
