package settlement_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cargo-ledger/internal/settlement"
	"github.com/odyssey-erp/cargo-ledger/internal/testing/fixture"
)

func newSettlementRouter(t *testing.T) (http.Handler, *fixture.Harness) {
	t.Helper()
	h := fixture.New(t)
	r := chi.NewRouter()
	settlement.NewHandler(h.Logger, h.Settlement).MountRoutes(r)
	return r, h
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestInvoiceHandlerLifecycle(t *testing.T) {
	router, h := newSettlementRouter(t)
	buyer := h.Customer(t, "PT Baja Prima")
	zone := h.FreeZone(t, "Batam FZ")
	steel := h.Product(t, "Steel coil", zone.Ref(), "100")

	body := fmt.Sprintf(`{"customer_id":"%d","issue_date":"2024-05-01","items":[{"product_id":%d,"quantity":"10","unit_price":"150"}]}`, buyer.ID, steel.ID)
	rr := do(t, router, http.MethodPost, "/invoices", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var inv struct {
		ID          int64  `json:"id"`
		Number      string `json:"pi_number"`
		Status      string `json:"status"`
		Total       string `json:"total_amount"`
		Outstanding string `json:"outstanding_amount"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &inv))
	require.NotEmpty(t, inv.Number)
	require.Equal(t, "draft", inv.Status)
	require.Equal(t, "1500", inv.Total)

	rr = do(t, router, http.MethodPost, fmt.Sprintf("/invoices/%d/payments", inv.ID),
		`{"amount":"1500","payment_method":"bank_transfer","release_number":"REL-9","payment_date":"2024-05-03"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var paid struct {
		Payment struct {
			ID         int64  `json:"id"`
			NewBalance string `json:"new_balance"`
		} `json:"payment"`
		Invoice struct {
			Status string `json:"status"`
		} `json:"invoice"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &paid))
	require.Equal(t, "0", paid.Payment.NewBalance)
	require.Equal(t, "paid", paid.Invoice.Status)

	rr = do(t, router, http.MethodPut, fmt.Sprintf("/payments/%d", paid.Payment.ID), `{}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, http.MethodGet, fmt.Sprintf("/invoices/%d/payments", inv.ID), "")
	require.Equal(t, http.StatusOK, rr.Code)
	var payments []json.RawMessage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payments))
	require.Len(t, payments, 1)

	rr = do(t, router, http.MethodGet, "/invoices?status=paid&page=1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"total":1`)
}

func TestInvoiceHandlerRejections(t *testing.T) {
	router, h := newSettlementRouter(t)
	buyer := h.Customer(t, "PT Samudra")

	rr := do(t, router, http.MethodPost, "/invoices", fmt.Sprintf(`{"customer_id":%d,"items":[]}`, buyer.ID))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodPost, "/invoices", `{"customer_id":1,`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodGet, "/invoices/999", "")
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, router, http.MethodPost, "/payments", `{"amount":"500","payment_method":"cash"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodPut, "/payments/1", `{}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
}
