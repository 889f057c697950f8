package registry

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/cargo-ledger/internal/platform/httpx"
)

// Handler wires HTTP endpoints for ports, free zones and customers.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs registry handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers registry routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/ports", func(r chi.Router) {
		r.Get("/", h.listPorts)
		r.Post("/", h.createPort)
		r.Get("/{id}", h.getPort)
		r.Put("/{id}", h.updatePort)
		r.Delete("/{id}", h.deletePort)
	})
	r.Route("/free-zones", func(r chi.Router) {
		r.Get("/", h.listFreeZones)
		r.Post("/", h.createFreeZone)
		r.Get("/{id}", h.getFreeZone)
		r.Put("/{id}", h.updateFreeZone)
		r.Delete("/{id}", h.deleteFreeZone)
	})
	r.Route("/customers", func(r chi.Router) {
		r.Get("/", h.listCustomers)
		r.Post("/", h.createCustomer)
		r.Get("/{id}", h.getCustomer)
		r.Put("/{id}", h.updateCustomer)
		r.Delete("/{id}", h.deleteCustomer)
	})
}

type portRequest struct {
	Name     string       `json:"name" validate:"required,max=200"`
	Code     string       `json:"code" validate:"max=20"`
	Country  string       `json:"country" validate:"max=100"`
	Capacity httpx.Number `json:"capacity"`
}

func (req portRequest) input() PortInput {
	return PortInput{Name: req.Name, Code: req.Code, Country: req.Country, Capacity: req.Capacity.Decimal}
}

type freeZoneRequest struct {
	Name       string       `json:"name" validate:"required,max=200"`
	Location   string       `json:"location" validate:"max=300"`
	Area       httpx.Number `json:"area"`
	RentalRate httpx.Number `json:"rental_rate"`
}

func (req freeZoneRequest) input() FreeZoneInput {
	return FreeZoneInput{Name: req.Name, Address: req.Location, Area: req.Area.Decimal, RentalRate: req.RentalRate.Decimal}
}

type customerRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone" validate:"max=50"`
	Address string `json:"address" validate:"max=300"`
}

func (req customerRequest) input() CustomerInput {
	return CustomerInput{Name: req.Name, Email: req.Email, Phone: req.Phone, Address: req.Address}
}

func listFilter(r *http.Request) ListFilter {
	return ListFilter{Search: r.URL.Query().Get("search"), Page: httpx.PageFromRequest(r)}
}

func (h *Handler) listPorts(w http.ResponseWriter, r *http.Request) {
	filter := listFilter(r)
	ports, total, err := h.service.ListPorts(r.Context(), filter)
	if err != nil {
		httpx.Fail(w, h.logger, "list ports", err)
		return
	}
	httpx.List(w, filter.Page, ports, total)
}

func (h *Handler) getPort(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.GetPort(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "get port", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) createPort(w http.ResponseWriter, r *http.Request) {
	var req portRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.CreatePort(r.Context(), req.input())
	if err != nil {
		httpx.Fail(w, h.logger, "create port", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) updatePort(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req portRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.UpdatePort(r.Context(), id, req.input())
	if err != nil {
		httpx.Fail(w, h.logger, "update port", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) deletePort(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeletePort(r.Context(), id); err != nil {
		httpx.Fail(w, h.logger, "delete port", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) listFreeZones(w http.ResponseWriter, r *http.Request) {
	filter := listFilter(r)
	zones, total, err := h.service.ListFreeZones(r.Context(), filter)
	if err != nil {
		httpx.Fail(w, h.logger, "list free zones", err)
		return
	}
	httpx.List(w, filter.Page, zones, total)
}

func (h *Handler) getFreeZone(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	z, err := h.service.GetFreeZone(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "get free zone", err)
		return
	}
	httpx.JSON(w, http.StatusOK, z)
}

func (h *Handler) createFreeZone(w http.ResponseWriter, r *http.Request) {
	var req freeZoneRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	z, err := h.service.CreateFreeZone(r.Context(), req.input())
	if err != nil {
		httpx.Fail(w, h.logger, "create free zone", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, z)
}

func (h *Handler) updateFreeZone(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req freeZoneRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	z, err := h.service.UpdateFreeZone(r.Context(), id, req.input())
	if err != nil {
		httpx.Fail(w, h.logger, "update free zone", err)
		return
	}
	httpx.JSON(w, http.StatusOK, z)
}

func (h *Handler) deleteFreeZone(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteFreeZone(r.Context(), id); err != nil {
		httpx.Fail(w, h.logger, "delete free zone", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	filter := listFilter(r)
	customers, total, err := h.service.ListCustomers(r.Context(), filter)
	if err != nil {
		httpx.Fail(w, h.logger, "list customers", err)
		return
	}
	httpx.List(w, filter.Page, customers, total)
}

func (h *Handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.GetCustomer(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "get customer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.CreateCustomer(r.Context(), req.input())
	if err != nil {
		httpx.Fail(w, h.logger, "create customer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) updateCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req customerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.UpdateCustomer(r.Context(), id, req.input())
	if err != nil {
		httpx.Fail(w, h.logger, "update customer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteCustomer(r.Context(), id); err != nil {
		httpx.Fail(w, h.logger, "delete customer", err)
		return
	}
	httpx.NoContent(w)
}
