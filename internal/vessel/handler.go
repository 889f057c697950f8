package vessel

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/cargo-ledger/internal/platform/httpx"
)

// Handler wires HTTP endpoints for vessels and manifests.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs vessel handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers vessel routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/vessels", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Put("/", h.update)
			r.Delete("/", h.delete)
			r.Patch("/status", h.setStatus)
			r.Get("/manifest", h.listManifest)
			r.Post("/manifest", h.addItem)
			r.Put("/manifest/{itemID}", h.updateItem)
			r.Delete("/manifest/{itemID}", h.deleteItem)
			r.Patch("/manifest/{itemID}/status", h.setItemStatus)
		})
	})
}

type vesselRequest struct {
	Name             string      `json:"name" validate:"required,max=200"`
	BLNumber         string      `json:"bl_number" validate:"max=100"`
	PortID           *httpx.ID   `json:"port_id"`
	ArrivalDate      *httpx.Date `json:"arrival_date"`
	DischargeDate    *httpx.Date `json:"discharge_date"`
	PortTransferDate *httpx.Date `json:"port_transfer_date"`
}

func (req vesselRequest) input() VesselInput {
	return VesselInput{
		Name:             req.Name,
		BLNumber:         req.BLNumber,
		PortID:           req.PortID.Int64Ptr(),
		ArrivalDate:      req.ArrivalDate.TimePtr(),
		DischargeDate:    req.DischargeDate.TimePtr(),
		PortTransferDate: req.PortTransferDate.TimePtr(),
	}
}

type statusRequest struct {
	Status           DeliveryStatus `json:"delivery_status" validate:"required"`
	Date             *httpx.Date    `json:"date"`
	ArrivalDate      *httpx.Date    `json:"arrival_date"`
	DischargeDate    *httpx.Date    `json:"discharge_date"`
	PortTransferDate *httpx.Date    `json:"port_transfer_date"`
}

// date picks the explicit date or the field matching the target status.
func (req statusRequest) date() *httpx.Date {
	if req.Date != nil && !req.Date.IsZero() {
		return req.Date
	}
	switch req.Status {
	case StatusArrived:
		return req.ArrivalDate
	case StatusDischarged:
		return req.DischargeDate
	case StatusMovedToPort:
		return req.PortTransferDate
	}
	return nil
}

type manifestRequest struct {
	ProductID       httpx.ID       `json:"product_id"`
	DischargePortID *httpx.ID      `json:"discharge_port_id"`
	Quantity        httpx.Number   `json:"quantity_mt"`
	BLNumber        string         `json:"bl_number" validate:"max=100"`
	ArrivalDate     *httpx.Date    `json:"arrival_date"`
	Status          ManifestStatus `json:"status"`
}

func (req manifestRequest) input() ManifestInput {
	return ManifestInput{
		ProductID:       int64(req.ProductID),
		DischargePortID: req.DischargePortID.Int64Ptr(),
		Quantity:        req.Quantity.Decimal,
		BLReference:     req.BLNumber,
		ArrivalDate:     req.ArrivalDate.TimePtr(),
		Status:          req.Status,
	}
}

type itemStatusRequest struct {
	Status ManifestStatus `json:"status" validate:"required"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Search: q.Get("search"), Status: DeliveryStatus(q.Get("status")), Page: httpx.PageFromRequest(r)}
	if filter.Status == "all" {
		filter.Status = ""
	}
	vessels, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.Fail(w, h.logger, "list vessels", err)
		return
	}
	httpx.List(w, filter.Page, vessels, total)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "get vessel", err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req vesselRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.Create(r.Context(), req.input())
	if err != nil {
		httpx.Fail(w, h.logger, "create vessel", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, v)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req vesselRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.Update(r.Context(), id, req.input())
	if err != nil {
		httpx.Fail(w, h.logger, "update vessel", err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.Fail(w, h.logger, "delete vessel", err)
		return
	}
	httpx.NoContent(w)
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
	v, err := h.service.SetStatus(r.Context(), id, StatusInput{Status: req.Status, Date: req.date().TimePtr()})
	if err != nil {
		httpx.Fail(w, h.logger, "set vessel status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) listManifest(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.ListManifest(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "list manifest", err)
		return
	}
	if items == nil {
		items = []ManifestItem{}
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req manifestRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.AddItem(r.Context(), id, req.input())
	if err != nil {
		httpx.Fail(w, h.logger, "add manifest item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, itemID, err := manifestIDs(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req manifestRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.UpdateItem(r.Context(), id, itemID, req.input())
	if err != nil {
		httpx.Fail(w, h.logger, "update manifest item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) setItemStatus(w http.ResponseWriter, r *http.Request) {
	id, itemID, err := manifestIDs(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req itemStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.SetItemStatus(r.Context(), id, itemID, req.Status)
	if err != nil {
		httpx.Fail(w, h.logger, "set manifest status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	id, itemID, err := manifestIDs(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteItem(r.Context(), id, itemID); err != nil {
		httpx.Fail(w, h.logger, "delete manifest item", err)
		return
	}
	httpx.NoContent(w)
}

func manifestIDs(r *http.Request) (int64, int64, error) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		return 0, 0, err
	}
	itemID, err := httpx.PathID(r, "itemID")
	if err != nil {
		return 0, 0, err
	}
	return id, itemID, nil
}
