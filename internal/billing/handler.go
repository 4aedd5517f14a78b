package billing

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/matices-erp/matices-pos/internal/observability"
	"github.com/matices-erp/matices-pos/internal/platform/httpx"
	"github.com/matices-erp/matices-pos/internal/shared"
)

// Handler wires HTTP endpoints for the billing module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	metrics   *observability.Metrics
	validator *validator.Validate
}

// NewHandler constructs billing handler. metrics may be nil.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, metrics: metrics, validator: validator.New()}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/invoices", h.listInvoices)
	r.Get("/invoices/{number}", h.getInvoice)
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(60, time.Minute))
		r.Post("/invoices", h.createInvoice)
		r.Post("/invoices/{number}/void", h.voidInvoice)
	})
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	req.ActorID = shared.ActorFromContext(r.Context())

	inv, err := h.service.CreateInvoice(r.Context(), req)
	if err != nil {
		h.logger.Error("create invoice", slog.Int64("branch_id", req.BranchID), slog.Any("error", err))
		h.metrics.CountInvoice("rejected")
		httpx.RespondError(w, err)
		return
	}
	h.metrics.CountInvoice("created")
	h.logger.Info("invoice created",
		slog.String("number", inv.Number),
		slog.Int64("branch_id", inv.BranchID),
		slog.Float64("total", inv.Total))
	httpx.JSON(w, http.StatusCreated, inv)
}

type voidRequest struct {
	Reason string `json:"reason" validate:"required,max=300"`
}

func (h *Handler) voidInvoice(w http.ResponseWriter, r *http.Request) {
	var req voidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	number := chi.URLParam(r, "number")

	void, inv, err := h.service.VoidInvoice(r.Context(), VoidInput{
		Number:  number,
		Reason:  req.Reason,
		ActorID: shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Error("void invoice", slog.String("number", number), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.metrics.CountInvoice("voided")
	h.logger.Info("invoice voided",
		slog.String("number", inv.Number),
		slog.Float64("total", void.Total))
	httpx.JSON(w, http.StatusOK, map[string]any{"void": void, "invoice": inv})
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	inv, err := h.service.GetInvoice(r.Context(), number)
	if err != nil {
		h.logger.Error("get invoice", slog.String("number", number), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

type listInvoicesResponse struct {
	Invoices   []Invoice         `json:"invoices"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := InvoiceFilter{}
	filter.BranchID, _ = strconv.ParseInt(q.Get("branch_id"), 10, 64)
	if raw := q.Get("status"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 16); err == nil {
			status := int16(v)
			filter.Status = &status
		}
	}
	if raw := q.Get("from"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			filter.From = &t
		}
	}
	if raw := q.Get("to"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			filter.To = &t
		}
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	invoices, pagination, err := h.service.ListInvoices(r.Context(), filter)
	if err != nil {
		h.logger.Error("list invoices", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listInvoicesResponse{Invoices: invoices, Pagination: pagination})
}
