package v1_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tallybook/internal/core/idempotency"
	"tallybook/internal/core/numerator"
	"tallybook/internal/core/storecall"
	"tallybook/internal/domain/customer"
	"tallybook/internal/domain/document"
	"tallybook/internal/domain/inventory"
	"tallybook/internal/domain/ledger"
	"tallybook/internal/domain/reports"
	v1 "tallybook/internal/infrastructure/http/v1"
	"tallybook/internal/infrastructure/http/v1/middleware"
	"tallybook/internal/infrastructure/storage/memory"
	"tallybook/pkg/logger"
)

type api struct {
	t      *testing.T
	router *gin.Engine
}

func newAPI(t *testing.T) *api {
	t.Helper()
	policy := storecall.Policy{Timeout: time.Second}

	customers := memory.NewCustomers()
	documents := memory.NewDocuments()
	audit := memory.NewAuditLog()
	inventorySvc := inventory.NewService(memory.NewProducts(), policy)
	customerSvc := customer.NewService(customers, policy)
	ledgerSvc := ledger.NewService(memory.NewLedger(), customers, policy)
	engine := document.NewEngine(document.Deps{
		Documents: documents,
		Inventory: inventorySvc,
		Ledger:    ledgerSvc,
		Customers: customers,
		Numbers:   numerator.NewMemory(),
		Policy:    policy,
		Auditor:   audit,
	})

	inventorySvc.WithReferences(engine)

	router := v1.NewRouter(v1.RouterConfig{
		Logger:        logger.Nop(),
		Inventory:     inventorySvc,
		Customers:     customerSvc,
		Ledger:        ledgerSvc,
		Engine:        engine,
		Reports:       reports.NewService(engine, ledgerSvc, customerSvc),
		Audit:         audit,
		Idempotency:   idempotency.NewMemory(time.Hour),
		StorageDriver: "memory",
	})
	return &api{t: t, router: router}
}

func (a *api) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (a *api) seed() {
	a.t.Helper()
	w := a.do(http.MethodPost, "/api/v1/items", map[string]any{
		"productId": "P1", "name": "Widget", "price": 100, "quantity": 10,
	})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	w = a.do(http.MethodPost, "/api/v1/customers", map[string]any{"customerId": "C1", "name": "Acme"})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
}

func (a *api) createBill(terms string, qty int) map[string]any {
	a.t.Helper()
	w := a.do(http.MethodPost, "/api/v1/documents", map[string]any{
		"documentType": "Bill",
		"customerId":   "C1",
		"paymentTerms": terms,
		"items":        []map[string]any{{"productId": "P1", "quantity": qty}},
	})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	return decode(a.t, w)
}

func TestHealth(t *testing.T) {
	a := newAPI(t)

	w := a.do(http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = a.do(http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))
}

func TestBillLifecycleOverHTTP(t *testing.T) {
	a := newAPI(t)
	a.seed()

	bill := a.createBill("Pay in Installments", 3)
	id := bill["documentId"].(string)
	assert.Equal(t, "Unpaid", bill["status"])
	assert.Equal(t, float64(300), bill["grandTotal"], "money is a JSON number")
	assert.Regexp(t, `^BILL-\d{4}-00001$`, bill["number"])

	w := a.do(http.MethodPost, "/api/v1/documents/"+id+"/payment", map[string]any{"amount": 100})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Partially Paid", decode(t, w)["status"])

	w = a.do(http.MethodPost, "/api/v1/documents/"+id+"/payment", map[string]any{"amount": 500})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode(t, w)
	assert.Equal(t, "OVERPAYMENT_REJECTED", body["code"])
	assert.Equal(t, false, body["retryable"])
	assert.NotEmpty(t, body["error"])

	w = a.do(http.MethodGet, "/api/v1/customers/C1/due", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(200), decode(t, w)["totalAmountDue"])

	w = a.do(http.MethodDelete, "/api/v1/documents/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Cancelled", decode(t, w)["status"])

	w = a.do(http.MethodDelete, "/api/v1/documents/"+id, nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_CANCELLED", decode(t, w)["code"])

	w = a.do(http.MethodGet, "/api/v1/items/P1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(10), decode(t, w)["quantity"], "stock restored")

	w = a.do(http.MethodGet, "/api/v1/ledger?startDate=2000-01-01&endDate=2100-12-31&customerId=C1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	entries := decode(t, w)["entries"].([]any)
	require.Len(t, entries, 2)
	assert.Equal(t, "INCOME", entries[0].(map[string]any)["entryType"])
	assert.Equal(t, "EXPENSE", entries[1].(map[string]any)["entryType"])
}

func TestInsufficientStockOverHTTP(t *testing.T) {
	a := newAPI(t)
	a.seed()

	w := a.do(http.MethodPost, "/api/v1/documents", map[string]any{
		"documentType": "Bill",
		"customerId":   "C1",
		"paymentTerms": "Pay in Full",
		"items":        []map[string]any{{"productId": "P1", "quantity": 11}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode(t, w)
	assert.Equal(t, "INSUFFICIENT_STOCK", body["code"])
	assert.Equal(t, "P1", body["details"].(map[string]any)["product_id"])
}

func TestProductHeldByOpenBillCannotBeDeleted(t *testing.T) {
	a := newAPI(t)
	a.seed()

	bill := a.createBill("Pay in Full", 2)
	id := bill["documentId"].(string)

	w := a.do(http.MethodDelete, "/api/v1/items/P1", nil)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "PRODUCT_IN_USE", body["code"])
	assert.Equal(t, bill["number"], body["details"].(map[string]any)["document"])

	w = a.do(http.MethodDelete, "/api/v1/documents/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do(http.MethodDelete, "/api/v1/items/P1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
}

func TestQuotationDeleteAnswersNoContent(t *testing.T) {
	a := newAPI(t)
	a.seed()

	w := a.do(http.MethodPost, "/api/v1/documents", map[string]any{
		"documentType": "Quotation",
		"customerId":   "C1",
		"items":        []map[string]any{{"productId": "P1", "quantity": 50}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["documentId"].(string)

	w = a.do(http.MethodDelete, "/api/v1/documents/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = a.do(http.MethodGet, "/api/v1/documents/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, w)["code"])

	w = a.do(http.MethodGet, "/api/v1/documents/"+id+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	history := decode(t, w)
	assert.Equal(t, float64(2), history["totalCount"])
	items := history["items"].([]any)
	assert.Equal(t, "delete", items[0].(map[string]any)["action"])
	assert.Equal(t, "create", items[1].(map[string]any)["action"])

	w = a.do(http.MethodGet, "/api/v1/documents/unknown/history", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestValidation(t *testing.T) {
	a := newAPI(t)
	a.seed()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"ledger without dates", http.MethodGet, "/api/v1/ledger", nil, http.StatusBadRequest, "DATE_RANGE_REQUIRED"},
		{"ledger reversed range", http.MethodGet, "/api/v1/ledger?startDate=2026-02-01&endDate=2026-01-01", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad date", http.MethodGet, "/api/v1/analysis/sales-summary?startDate=01/01/2026&endDate=2026-01-31", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"analysis without dates", http.MethodGet, "/api/v1/analysis/product-sales", nil, http.StatusBadRequest, "DATE_RANGE_REQUIRED"},
		{"unknown document type", http.MethodPost, "/api/v1/documents", map[string]any{"documentType": "Invoice", "customerId": "C1"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bill without terms", http.MethodPost, "/api/v1/documents", map[string]any{
			"documentType": "Bill", "customerId": "C1",
			"items": []map[string]any{{"productId": "P1", "quantity": 1}},
		}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"manual entry without description", http.MethodPost, "/api/v1/ledger", map[string]any{
			"entryType": "EXPENSE", "entryDate": "2026-01-01", "amount": 5,
		}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown customer", http.MethodGet, "/api/v1/statement/nobody", nil, http.StatusNotFound, "NOT_FOUND"},
		{"payment on missing document", http.MethodPost, "/api/v1/documents/missing/payment", map[string]any{"amount": 1}, http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := a.do(tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode(t, w)["code"])
		})
	}
}

func TestManualLedgerEntry(t *testing.T) {
	a := newAPI(t)
	a.seed()

	w := a.do(http.MethodPost, "/api/v1/ledger", map[string]any{
		"entryType":   "expense",
		"entryDate":   "2026-01-15",
		"description": "Office rent",
		"amount":      "1200.50",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	entry := decode(t, w)
	assert.Equal(t, "EXPENSE", entry["entryType"])
	assert.Nil(t, entry["relatedDocumentId"])

	w = a.do(http.MethodGet, "/api/v1/ledger?startDate=2026-01-01&endDate=2026-01-31&entryType=EXPENSE", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["entries"], 1)
}

func TestIdempotentCreateReplays(t *testing.T) {
	a := newAPI(t)
	a.seed()

	body := map[string]any{
		"documentType": "Bill",
		"customerId":   "C1",
		"paymentTerms": "Pay in Full",
		"items":        []map[string]any{{"productId": "P1", "quantity": 2}},
	}
	first := a.do(http.MethodPost, "/api/v1/documents", body, middleware.HeaderIdempotencyKey, "k-1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second := a.do(http.MethodPost, "/api/v1/documents", body, middleware.HeaderIdempotencyKey, "k-1")
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	w := a.do(http.MethodGet, "/api/v1/items/P1", nil)
	assert.Equal(t, float64(8), decode(t, w)["quantity"], "stock taken once")

	body["items"] = []map[string]any{{"productId": "P1", "quantity": 1}}
	mismatch := a.do(http.MethodPost, "/api/v1/documents", body, middleware.HeaderIdempotencyKey, "k-1")
	assert.Equal(t, http.StatusConflict, mismatch.Code)
	assert.Equal(t, "IDEMPOTENCY_CONFLICT", decode(t, mismatch)["code"])
}

func TestCustomersListCarriesDues(t *testing.T) {
	a := newAPI(t)
	a.seed()
	a.createBill("Pay in Installments", 2)

	w := a.do(http.MethodGet, "/api/v1/customers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	items := decode(t, w)["items"].([]any)
	require.Len(t, items, 1)
	row := items[0].(map[string]any)
	assert.Equal(t, "Acme", row["name"])
	assert.Equal(t, float64(200), row["totalAmountDue"])
}
