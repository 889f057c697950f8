package settlement

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/cargo-ledger/internal/platform/httpx"
)

// Handler wires HTTP endpoints for invoices and payments.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs settlement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers invoice and payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Put("/", h.update)
			r.Delete("/", h.delete)
			r.Get("/payments", h.invoicePayments)
			r.Post("/payments", h.recordPayment)
			r.Post("/send", h.send)
			r.Post("/cancel", h.cancel)
		})
	})
	r.Route("/payments", func(r chi.Router) {
		r.Get("/", h.listPayments)
		r.Post("/", h.createPayment)
		r.Get("/{id}", h.getPayment)
		r.Put("/{id}", h.updatePayment)
		r.Delete("/{id}", h.deletePayment)
	})
}

type lineRequest struct {
	ID          httpx.ID     `json:"id"`
	ProductID   httpx.ID     `json:"product_id"`
	Description string       `json:"description" validate:"max=500"`
	Quantity    httpx.Number `json:"quantity"`
	UnitPrice   httpx.Number `json:"unit_price"`
}

type invoiceRequest struct {
	CustomerID httpx.ID      `json:"customer_id"`
	Number     string        `json:"pi_number" validate:"max=50"`
	IssueDate  *httpx.Date   `json:"issue_date"`
	DueDate    *httpx.Date   `json:"due_date"`
	Currency   string        `json:"currency" validate:"omitempty,len=3"`
	TaxAmount  httpx.Number  `json:"tax_amount"`
	Holded     httpx.Number  `json:"holded_amount"`
	Notes      string        `json:"notes" validate:"max=2000"`
	Items      []lineRequest `json:"items" validate:"required,min=1,dive"`
}

func (req invoiceRequest) input() InvoiceInput {
	in := InvoiceInput{
		CustomerID: int64(req.CustomerID),
		Number:     req.Number,
		DueDate:    req.DueDate.TimePtr(),
		Currency:   req.Currency,
		TaxAmount:  req.TaxAmount.Decimal,
		Holded:     req.Holded.Decimal,
		Notes:      req.Notes,
	}
	if t := req.IssueDate.TimePtr(); t != nil {
		in.IssueDate = *t
	}
	for _, l := range req.Items {
		in.Lines = append(in.Lines, LineInput{
			ID:          int64(l.ID),
			ProductID:   int64(l.ProductID),
			Description: l.Description,
			Quantity:    l.Quantity.Decimal,
			UnitPrice:   l.UnitPrice.Decimal,
		})
	}
	return in
}

type paymentRequest struct {
	InvoiceID         httpx.ID     `json:"invoice_id"`
	Amount            httpx.Number `json:"amount"`
	Method            Method       `json:"payment_method" validate:"required"`
	Reference         string       `json:"reference_number" validate:"max=100"`
	ReceiptURL        string       `json:"receipt_url" validate:"omitempty,url"`
	ReleaseNumber     string       `json:"release_number" validate:"max=100"`
	ReleaseReceiptURL string       `json:"release_receipt_url" validate:"omitempty,url"`
	PaymentDate       *httpx.Date  `json:"payment_date"`
	Notes             string       `json:"notes" validate:"max=2000"`
}

func (req paymentRequest) input() PaymentInput {
	in := PaymentInput{
		Amount:            req.Amount.Decimal,
		Method:            req.Method,
		Reference:         req.Reference,
		ReceiptURL:        req.ReceiptURL,
		ReleaseNumber:     req.ReleaseNumber,
		ReleaseReceiptURL: req.ReleaseReceiptURL,
		Notes:             req.Notes,
	}
	if t := req.PaymentDate.TimePtr(); t != nil {
		in.PaymentDate = *t
	}
	return in
}

type paymentResponse struct {
	Payment Payment `json:"payment"`
	Invoice Invoice `json:"invoice"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Search:     q.Get("search"),
		CustomerID: httpx.QueryInt64(r, "customer_id"),
		Status:     Status(q.Get("status")),
		Page:       httpx.PageFromRequest(r),
	}
	if filter.Status == "all" {
		filter.Status = ""
	}
	invoices, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.Fail(w, h.logger, "list invoices", err)
		return
	}
	httpx.List(w, filter.Page, invoices, total)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "get invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Create(r.Context(), req.input())
	if err != nil {
		httpx.Fail(w, h.logger, "create invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req invoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Update(r.Context(), id, req.input())
	if err != nil {
		httpx.Fail(w, h.logger, "update invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.Fail(w, h.logger, "delete invoice", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Send(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "send invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "cancel invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) invoicePayments(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payments, _, err := h.service.ListPayments(r.Context(), PaymentFilter{InvoiceID: id})
	if err != nil {
		httpx.Fail(w, h.logger, "list invoice payments", err)
		return
	}
	if payments == nil {
		payments = []Payment{}
	}
	httpx.JSON(w, http.StatusOK, payments)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.writePayment(w, r, id)
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	h.writePayment(w, r, 0)
}

func (h *Handler) writePayment(w http.ResponseWriter, r *http.Request, invoiceID int64) {
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if invoiceID == 0 {
		invoiceID = int64(req.InvoiceID)
	}
	if invoiceID <= 0 {
		httpx.RespondError(w, errMissingInvoice)
		return
	}
	payment, inv, err := h.service.RecordPayment(r.Context(), invoiceID, req.input())
	if err != nil {
		httpx.Fail(w, h.logger, "record payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, paymentResponse{Payment: payment, Invoice: inv})
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := PaymentFilter{
		Search:    q.Get("search"),
		InvoiceID: httpx.QueryInt64(r, "invoice_id"),
		Method:    Method(q.Get("payment_method")),
		Page:      httpx.PageFromRequest(r),
	}
	if filter.InvoiceID == 0 && q.Get("related_entity") == "invoice" {
		filter.InvoiceID, _ = strconv.ParseInt(q.Get("related_id"), 10, 64)
	}
	payments, total, err := h.service.ListPayments(r.Context(), filter)
	if err != nil {
		httpx.Fail(w, h.logger, "list payments", err)
		return
	}
	httpx.List(w, filter.Page, payments, total)
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.GetPayment(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "get payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) updatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Fail(w, h.logger, "update payment", h.service.UpdatePayment(r.Context(), id))
}

func (h *Handler) deletePayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Fail(w, h.logger, "delete payment", h.service.DeletePayment(r.Context(), id))
}
