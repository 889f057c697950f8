package movement

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/platform/httpx"
)

// IdempotencyHeader carries the client's request key on movement creation.
const IdempotencyHeader = "Idempotency-Key"

// Handler wires HTTP endpoints for movements and transportation jobs.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs movement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers movement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/movements", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/locations", h.locations)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
		r.Patch("/{id}/status", h.setStatus)
	})
}

type itemRequest struct {
	ProductID     httpx.ID     `json:"product_id"`
	InvoiceItemID httpx.ID     `json:"invoice_item_id"`
	Quantity      httpx.Number `json:"quantity_mt"`
	Unit          string       `json:"unit" validate:"max=20"`
}

type createRequest struct {
	Type             Type          `json:"type" validate:"required,oneof=inbound outbound transfer"`
	FromLocationType string        `json:"from_location_type"`
	FromLocationID   *httpx.ID     `json:"from_location_id"`
	ToLocationType   string        `json:"to_location_type"`
	ToLocationID     *httpx.ID     `json:"to_location_id"`
	VehicleID        *httpx.ID     `json:"vehicle_id"`
	InvoiceID        *httpx.ID     `json:"invoice_id"`
	ScheduledDate    *httpx.Date   `json:"scheduled_date"`
	Notes            string        `json:"notes" validate:"max=2000"`
	Items            []itemRequest `json:"items" validate:"dive"`
}

type updateRequest struct {
	VehicleID     *httpx.ID   `json:"vehicle_id"`
	ScheduledDate *httpx.Date `json:"scheduled_date"`
	Notes         *string     `json:"notes" validate:"omitempty,max=2000"`
}

type statusRequest struct {
	Status Status `json:"status" validate:"required"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Search:    q.Get("search"),
		Type:      Type(q.Get("type")),
		Status:    Status(q.Get("status")),
		InvoiceID: httpx.QueryInt64(r, "invoice_id"),
		Page:      httpx.PageFromRequest(r),
	}
	if filter.Type == "all" {
		filter.Type = ""
	}
	if filter.Status == "all" {
		filter.Status = ""
	}
	if lt := q.Get("location_type"); lt != "" && lt != "all" {
		kind, err := location.ParseKind(lt)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.LocationKind = kind
	}
	jobs, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.Fail(w, h.logger, "list movements", err)
		return
	}
	httpx.List(w, filter.Page, jobs, total)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	job, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "get movement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) locations(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.service.Endpoints(r.Context())
	if err != nil {
		httpx.Fail(w, h.logger, "movement locations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, endpoints)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := CreateInput{
		Type:           req.Type,
		VehicleID:      req.VehicleID.Int64Ptr(),
		InvoiceID:      req.InvoiceID.Int64Ptr(),
		ScheduledDate:  req.ScheduledDate.TimePtr(),
		Notes:          req.Notes,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(IdempotencyHeader)),
	}
	if req.Type != TypeOutbound {
		from, err := location.Resolve(req.FromLocationType, req.FromLocationID.Int64Ptr(), nil)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		to, err := location.Resolve(req.ToLocationType, req.ToLocationID.Int64Ptr(), nil)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		in.From, in.To = from, to
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, ItemInput{
			ProductID:     int64(it.ProductID),
			InvoiceLineID: int64(it.InvoiceItemID),
			Quantity:      it.Quantity.Decimal,
			Unit:          it.Unit,
		})
	}
	job, err := h.service.Create(r.Context(), in)
	if err != nil {
		httpx.Fail(w, h.logger, "create movement", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, job)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	job, err := h.service.Update(r.Context(), id, UpdateInput{
		VehicleID:     req.VehicleID.Int64Ptr(),
		ScheduledDate: req.ScheduledDate.TimePtr(),
		Notes:         req.Notes,
	})
	if err != nil {
		httpx.Fail(w, h.logger, "update movement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	job, err := h.service.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		httpx.Fail(w, h.logger, "set movement status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.Fail(w, h.logger, "delete movement", err)
		return
	}
	httpx.NoContent(w)
}
