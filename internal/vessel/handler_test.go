package vessel_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cargo-ledger/internal/testing/fixture"
	"github.com/odyssey-erp/cargo-ledger/internal/vessel"
)

func call(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestVesselHandlerLifecycle(t *testing.T) {
	h := fixture.New(t)
	r := chi.NewRouter()
	vessel.NewHandler(h.Logger, h.Vessels).MountRoutes(r)

	rr := call(t, r, http.MethodPost, "/vessels", `{"name":"MV Sentosa","bl_number":"BL-001"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created struct {
		ID     int64  `json:"id"`
		Status string `json:"delivery_status"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Equal(t, "in_transit", created.Status)

	// bill of lading numbers are unique regardless of case
	rr = call(t, r, http.MethodPost, "/vessels", `{"name":"MV Other","bl_number":"bl-001"}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = call(t, r, http.MethodPatch, fmt.Sprintf("/vessels/%d/status", created.ID),
		`{"delivery_status":"arrived","arrival_date":"2024-06-10"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var arrived struct {
		Status      string `json:"delivery_status"`
		ArrivalDate string `json:"arrival_date"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &arrived))
	require.Equal(t, "arrived", arrived.Status)
	require.True(t, strings.HasPrefix(arrived.ArrivalDate, "2024-06-10"))

	rr = call(t, r, http.MethodPatch, fmt.Sprintf("/vessels/%d/status", created.ID), `{"delivery_status":"in_transit"}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = call(t, r, http.MethodGet, "/vessels?page=1&per_page=5", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"per_page":5`)
}

func TestVesselHandlerManifest(t *testing.T) {
	h := fixture.New(t)
	r := chi.NewRouter()
	vessel.NewHandler(h.Logger, h.Vessels).MountRoutes(r)

	zone := h.FreeZone(t, "Batam FTZ")
	ship := h.Vessel(t, "MV Lestari")
	cement := h.Product(t, "Cement", zone.Ref(), "100")

	path := fmt.Sprintf("/vessels/%d/manifest", ship.ID)
	rr := call(t, r, http.MethodPost, path, fmt.Sprintf(`{"product_id":%d,"quantity_mt":"150"}`, cement.ID))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = call(t, r, http.MethodPost, path, fmt.Sprintf(`{"product_id":%d,"quantity_mt":"60"}`, cement.ID))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = call(t, r, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var items []struct {
		Quantity string `json:"quantity_mt"`
		Status   string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &items))
	require.Len(t, items, 1)
	require.Equal(t, "60", items[0].Quantity)
	require.Equal(t, "pending", items[0].Status)

	rr = call(t, r, http.MethodGet, "/vessels/999/manifest", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}
