package catalog

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/cargo-ledger/internal/ledger"
	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the product catalog.
type Handler struct {
	logger  *slog.Logger
	service *Service
	ledger  *ledger.Service
}

// NewHandler constructs catalog handler.
func NewHandler(logger *slog.Logger, service *Service, ledgerSvc *ledger.Service) *Handler {
	return &Handler{logger: logger, service: service, ledger: ledgerSvc}
}

// MountRoutes registers product routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
		r.Get("/{id}/stock-card", h.stockCard)
		r.Get("/{id}/balances", h.balances)
	})
}

type productRequest struct {
	Name         string       `json:"name" validate:"required,max=200"`
	Category     string       `json:"category" validate:"max=100"`
	Unit         string       `json:"unit" validate:"max=20"`
	Status       Status       `json:"status" validate:"omitempty,oneof=active inactive"`
	LocationType string       `json:"location_type"`
	LocationID   *httpx.ID    `json:"location_id"`
	FreeZoneID   *httpx.ID    `json:"free_zone_id"`
	Quantity     httpx.Number `json:"quantity"`
}

type productUpdateRequest struct {
	Name     *string `json:"name" validate:"omitempty,max=200"`
	Category *string `json:"category" validate:"omitempty,max=100"`
	Unit     *string `json:"unit" validate:"omitempty,max=20"`
	Status   *Status `json:"status" validate:"omitempty,oneof=active inactive"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Search: q.Get("search"),
		Status: Status(q.Get("status")),
		Page:   httpx.PageFromRequest(r),
	}
	if lt := q.Get("location_type"); lt != "" && lt != "all" {
		kind, err := location.ParseKind(lt)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.LocationKind = kind
		if id := httpx.QueryInt64(r, "location_id"); id > 0 {
			ref := location.Ref{Kind: kind, ID: id}
			filter.Location = &ref
		}
	}
	products, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.Fail(w, h.logger, "list products", err)
		return
	}
	httpx.List(w, filter.Page, products, total)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "get product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var locID, fzID *int64
	if req.LocationID != nil {
		locID = req.LocationID.Int64Ptr()
	}
	if req.FreeZoneID != nil {
		fzID = req.FreeZoneID.Int64Ptr()
	}
	loc, err := location.Resolve(req.LocationType, locID, fzID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Create(r.Context(), CreateInput{
		Name:     req.Name,
		Category: req.Category,
		Unit:     strings.TrimSpace(req.Unit),
		Status:   req.Status,
		Location: loc,
		Quantity: req.Quantity.Decimal,
	})
	if err != nil {
		httpx.Fail(w, h.logger, "create product", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req productUpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Update(r.Context(), id, UpdateInput{
		Name:     req.Name,
		Category: req.Category,
		Unit:     req.Unit,
		Status:   req.Status,
	})
	if err != nil {
		httpx.Fail(w, h.logger, "update product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.Fail(w, h.logger, "delete product", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) stockCard(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter := ledger.StockCardFilter{ProductID: id, Limit: int(httpx.QueryInt64(r, "limit"))}
	if raw := r.URL.Query().Get("location"); raw != "" {
		ref, err := location.Parse(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.Location = &ref
	}
	entries, err := h.ledger.StockCard(r.Context(), filter)
	if err != nil {
		httpx.Fail(w, h.logger, "stock card", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) balances(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	balances, err := h.ledger.Balances(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "product balances", err)
		return
	}
	httpx.JSON(w, http.StatusOK, balances)
}
