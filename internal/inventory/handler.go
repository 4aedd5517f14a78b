package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/matices-erp/matices-pos/internal/platform/httpx"
	"github.com/matices-erp/matices-pos/internal/shared"
)

// Handler wires HTTP endpoints for the inventory module. Authentication
// and permission checks happen upstream; the actor id arrives on the
// request context.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/branches/{branchID}/stock", h.listBranchStock)
	r.Get("/lots/product/{productID}", h.listLotsForProduct)
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(60, time.Minute))
		r.Post("/lots", h.intakeLot)
		r.Post("/lots/distribute", h.distribute)
		r.Put("/stock-levels", h.setStockLevels)
	})
}

type listStockResponse struct {
	Entries    []InventoryDetail `json:"entries"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) listBranchStock(w http.ResponseWriter, r *http.Request) {
	branchID, err := strconv.ParseInt(chi.URLParam(r, "branchID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid branch id")
		return
	}
	q := r.URL.Query()
	filter := StockFilter{
		Search:       q.Get("search"),
		LowStockOnly: q.Get("low_stock") == "true",
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	entries, pagination, err := h.service.ListBranchStock(r.Context(), branchID, filter)
	if err != nil {
		h.logger.Error("list branch stock", slog.Int64("branch_id", branchID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listStockResponse{Entries: entries, Pagination: pagination})
}

func (h *Handler) listLotsForProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	lots, err := h.service.GetLotsForProduct(r.Context(), productID)
	if err != nil {
		h.logger.Error("list lots", slog.Int64("product_id", productID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lots": lots})
}

func (h *Handler) intakeLot(w http.ResponseWriter, r *http.Request) {
	var input IntakeInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input.ActorID = shared.ActorFromContext(r.Context())

	lot, err := h.service.IntakeLot(r.Context(), input)
	if err != nil {
		h.logger.Error("intake lot", slog.String("code", input.Code), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("lot registered",
		slog.Int64("lot_id", lot.ID),
		slog.String("code", lot.Code),
		slog.Int64("available", lot.QuantityAvailable))
	httpx.JSON(w, http.StatusCreated, lot)
}

func (h *Handler) distribute(w http.ResponseWriter, r *http.Request) {
	var input DistributeInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input.ActorID = shared.ActorFromContext(r.Context())

	dists, lot, err := h.service.Distribute(r.Context(), input)
	if err != nil {
		h.logger.Error("distribute lot", slog.Int64("lot_id", input.LotID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("lot distributed",
		slog.Int64("lot_id", lot.ID),
		slog.Int("lines", len(dists)),
		slog.Int64("remaining", lot.QuantityAvailable))
	httpx.JSON(w, http.StatusOK, map[string]any{"lot": lot, "distributions": dists})
}

func (h *Handler) setStockLevels(w http.ResponseWriter, r *http.Request) {
	var input SetLevelsInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.service.SetStockLevels(r.Context(), input)
	if err != nil {
		h.logger.Error("set stock levels", slog.Int64("branch_id", input.BranchID), slog.Int64("product_id", input.ProductID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}
