package document

import (
	"context"
	"fmt"
	"strings"

	"tallybook/internal/core/apperror"
	"tallybook/internal/core/id"
	"tallybook/internal/core/numerator"
	"tallybook/internal/core/storecall"
	"tallybook/internal/core/types"
	"tallybook/internal/domain/inventory"
	"tallybook/internal/domain/ledger"
	"tallybook/pkg/logger"
)

// typeHandler holds the behaviour that differs between quotations and bills.
type typeHandler interface {
	numbering() (numerator.Config, *numerator.Options)
	validateCreate(req CreateRequest) error
	// create persists a priced, numbered document and returns the ledger entries it posted.
	create(ctx context.Context, doc *Document, terms PaymentTerms) ([]*ledger.Entry, error)
	pay(ctx context.Context, current *Document, req PaymentRequest) (*Document, *ledger.Entry, error)
	edit(ctx context.Context, current *Document, req EditRequest) (*Document, error)
	// remove returns a nil document when the document no longer exists.
	remove(ctx context.Context, current *Document) (*Document, *ledger.Entry, error)
}

// --- Quotation ---

type quotationHandler struct {
	e *Engine
}

func (h *quotationHandler) numbering() (numerator.Config, *numerator.Options) {
	return numerator.DefaultConfig("QUO"), &numerator.Options{Strategy: numerator.StrategyCached, RangeSize: 50}
}

func (h *quotationHandler) validateCreate(CreateRequest) error {
	return nil
}

func (h *quotationHandler) create(ctx context.Context, doc *Document, _ PaymentTerms) ([]*ledger.Entry, error) {
	doc.Status = StatusActive
	doc.BillDetails = nil
	return nil, storecall.Write(ctx, h.e.policy, func(ctx context.Context) error {
		return h.e.documents.Put(ctx, doc)
	})
}

func (h *quotationHandler) pay(context.Context, *Document, PaymentRequest) (*Document, *ledger.Entry, error) {
	return nil, nil, apperror.NewInvalidState("record payment on", string(TypeQuotation))
}

func (h *quotationHandler) edit(ctx context.Context, current *Document, req EditRequest) (*Document, error) {
	items, err := h.e.price(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	return h.e.update(ctx, current, func(d *Document) error {
		d.Items = items
		if req.Notes != nil {
			d.Notes = strings.TrimSpace(*req.Notes)
		}
		d.RecomputeTotal()
		return nil
	})
}

func (h *quotationHandler) remove(ctx context.Context, current *Document) (*Document, *ledger.Entry, error) {
	err := storecall.Write(ctx, h.e.policy, func(ctx context.Context) error {
		return h.e.documents.Delete(ctx, current.DocumentID)
	})
	return nil, nil, err
}

// --- Bill ---

type billHandler struct {
	e *Engine
}

func (h *billHandler) numbering() (numerator.Config, *numerator.Options) {
	return numerator.DefaultConfig("BILL"), numerator.DefaultOptions()
}

func (h *billHandler) validateCreate(req CreateRequest) error {
	switch req.PaymentTerms {
	case PayInFull, PayInInstallments:
		return nil
	case "":
		return apperror.NewValidation("paymentTerms is required for bills")
	}
	return apperror.NewValidation("paymentTerms must be 'Pay in Full' or 'Pay in Installments'").
		WithDetail("paymentTerms", string(req.PaymentTerms))
}

func (h *billHandler) create(ctx context.Context, doc *Document, terms PaymentTerms) ([]*ledger.Entry, error) {
	e := h.e
	var u undo

	lines := doc.Lines()
	if err := e.inventory.Reserve(ctx, lines); err != nil {
		return nil, err
	}
	u.push("restore stock", func(ctx context.Context) error {
		return e.inventory.Restore(ctx, lines)
	})

	doc.BillDetails = &BillDetails{
		PaymentTerms: terms,
		AmountPaid:   types.Zero(),
		Payments:     []Payment{},
	}
	doc.Status = StatusUnpaid

	var posted []*ledger.Entry
	switch {
	case !doc.GrandTotal.IsPositive():
		// Nothing is owed, and ledger amounts must be positive.
		doc.Status = StatusPaid
	case terms == PayInFull:
		entry, err := e.ledger.PostIncome(ctx, ledger.Posting{
			DocumentID:  doc.DocumentID,
			CustomerID:  doc.CustomerID,
			Amount:      doc.GrandTotal,
			Date:        doc.DocumentDate,
			Description: fmt.Sprintf("Payment for %s", doc.Number),
		})
		if err != nil {
			u.run(ctx, err)
			return nil, err
		}
		u.push("remove ledger entry", func(ctx context.Context) error {
			return e.ledger.Remove(ctx, entry.EntryID)
		})
		doc.Payments = append(doc.Payments, Payment{
			EntryID:       id.New(),
			Amount:        doc.GrandTotal,
			PaymentDate:   doc.DocumentDate,
			CreatedAt:     entry.CreatedAt,
			LedgerEntryID: entry.EntryID,
		})
		doc.AmountPaid = doc.GrandTotal
		doc.Status = StatusPaid
		posted = append(posted, entry)
	}

	err := storecall.Write(ctx, e.policy, func(ctx context.Context) error {
		return e.documents.Put(ctx, doc)
	})
	if err != nil {
		stored, known := e.committed(ctx, err, doc.DocumentID, func(*Document) bool { return true })
		if stored != nil {
			logger.Warn(ctx, "document write reported failure but landed", "error", err)
			return posted, nil
		}
		if known {
			u.run(ctx, err)
		}
		return nil, err
	}
	return posted, nil
}

func (h *billHandler) pay(ctx context.Context, current *Document, req PaymentRequest) (*Document, *ledger.Entry, error) {
	e := h.e
	if err := current.CheckPayment(req.Amount); err != nil {
		return nil, nil, err
	}

	entry, err := e.ledger.PostIncome(ctx, ledger.Posting{
		DocumentID:  current.DocumentID,
		CustomerID:  current.CustomerID,
		Amount:      req.Amount,
		Date:        req.PaymentDate,
		Description: fmt.Sprintf("Payment for %s", current.Number),
	})
	if err != nil {
		return nil, nil, err
	}

	payment := Payment{
		EntryID:       id.New(),
		Amount:        req.Amount,
		PaymentDate:   req.PaymentDate,
		CreatedAt:     entry.CreatedAt,
		LedgerEntryID: entry.EntryID,
	}
	updated, err := e.update(ctx, current, func(d *Document) error {
		return d.ApplyPayment(payment)
	})
	if err != nil {
		stored, known := e.committed(ctx, err, current.DocumentID, func(d *Document) bool {
			return d.hasPayment(payment.EntryID)
		})
		if stored != nil {
			return stored, entry, nil
		}
		if known {
			var u undo
			u.push("remove ledger entry", func(ctx context.Context) error {
				return e.ledger.Remove(ctx, entry.EntryID)
			})
			u.run(ctx, err)
		}
		return nil, nil, err
	}
	return updated, entry, nil
}

func (h *billHandler) edit(ctx context.Context, current *Document, req EditRequest) (*Document, error) {
	e := h.e
	if current.Status != StatusUnpaid {
		return nil, apperror.NewInvalidState("edit", string(current.Status))
	}
	items, err := e.price(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	next := &Document{Items: items}
	reserve, release := inventory.Delta(current.Lines(), next.Lines())

	if err := e.inventory.Reserve(ctx, reserve); err != nil {
		return nil, err
	}

	updated, err := e.update(ctx, current, func(d *Document) error {
		if d.Status != StatusUnpaid {
			return apperror.NewInvalidState("edit", string(d.Status))
		}
		d.Items = items
		if req.Notes != nil {
			d.Notes = strings.TrimSpace(*req.Notes)
		}
		d.RecomputeTotal()
		return nil
	})
	if err != nil {
		stored, known := e.committed(ctx, err, current.DocumentID, func(d *Document) bool {
			return d.Version > current.Version && sameItems(d.Items, items)
		})
		if stored != nil {
			updated = stored
		} else {
			if known {
				var u undo
				u.push("restore reserved delta", func(ctx context.Context) error {
					return e.inventory.Restore(ctx, reserve)
				})
				u.run(ctx, err)
			}
			return nil, err
		}
	}

	// Releases are unconditional increments, so they run only once the edit is committed.
	if err := e.inventory.Restore(ctx, release); err != nil {
		logger.Error(ctx, "stock release after edit failed", "error", err)
	}
	return updated, nil
}

func (h *billHandler) remove(ctx context.Context, current *Document) (*Document, *ledger.Entry, error) {
	e := h.e
	if current.Status == StatusCancelled {
		return nil, nil, apperror.NewAlreadyCancelled(current.DocumentID)
	}

	linked, err := e.ledger.ForDocument(ctx, current.DocumentID)
	if err != nil {
		return nil, nil, err
	}
	net, income := current.reversalDue(linked)
	if !income.Equal(current.AmountPaid) {
		logger.Warn(ctx, "committed payments and their ledger income disagree",
			"ledger_income", income.String(),
			"amount_paid", current.AmountPaid.String(),
		)
	}

	var (
		u     undo
		entry *ledger.Entry
	)
	if net.IsPositive() {
		entry, err = e.ledger.PostCompensation(ctx, ledger.Posting{
			DocumentID:  current.DocumentID,
			CustomerID:  current.CustomerID,
			Amount:      net,
			Date:        e.today(),
			Description: fmt.Sprintf("Reversal for cancelled %s", current.Number),
		})
		if err != nil {
			return nil, nil, err
		}
		u.push("remove compensating entry", func(ctx context.Context) error {
			return e.ledger.Remove(ctx, entry.EntryID)
		})
	}

	updated, err := e.update(ctx, current, func(d *Document) error {
		return d.Cancel()
	})
	if err != nil {
		stored, known := e.committed(ctx, err, current.DocumentID, func(d *Document) bool {
			return d.Status == StatusCancelled
		})
		if stored != nil {
			updated = stored
		} else {
			if known {
				u.run(ctx, err)
			}
			return nil, nil, err
		}
	}

	if err := e.inventory.Restore(ctx, current.Lines()); err != nil {
		logger.Error(ctx, "stock restore after cancel failed", "error", err)
	}
	return updated, entry, nil
}

// reversalDue returns the income posted by the committed payments of d less any
// reversal already linked to it, and that committed income on its own. Income of a
// payment that has not committed is left to that payment's undo. The version guard
// on the cancel keeps the two apart.
func (d *Document) reversalDue(linked []*ledger.Entry) (due, income types.Money) {
	committed := make(map[string]bool)
	if d.BillDetails != nil {
		for _, p := range d.Payments {
			committed[p.LedgerEntryID] = true
		}
	}
	var counted []*ledger.Entry
	income = types.Zero()
	for _, en := range linked {
		switch {
		case en.EntryType == ledger.Income && committed[en.EntryID]:
			income = income.Add(en.Amount)
			counted = append(counted, en)
		case en.EntryType == ledger.Expense:
			counted = append(counted, en)
		}
	}
	return ledger.NetIncome(counted), income
}

func (d *Document) hasPayment(entryID string) bool {
	if d.BillDetails == nil {
		return false
	}
	for _, p := range d.Payments {
		if p.EntryID == entryID {
			return true
		}
	}
	return false
}

func sameItems(a, b []Item) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ProductID != b[i].ProductID || a[i].Quantity != b[i].Quantity || !a[i].Price.Equal(b[i].Price) {
			return false
		}
	}
	return true
}
