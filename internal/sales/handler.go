package sales

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/pharmaos/pharmaos/internal/ledger"
	"github.com/pharmaos/pharmaos/internal/platform/httpx"
)

// Handler wires HTTP endpoints for sales orders.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.showOrder)
	r.Post("/orders/{id}/dispatch", h.dispatch)
}

type orderItemRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	UnitPrice string `json:"unit_price"`
}

type createOrderRequest struct {
	CustomerName string             `json:"customer_name" validate:"required,max=200"`
	OrderNumber  string             `json:"order_number" validate:"omitempty,max=32"`
	Items        []orderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type orderResponse struct {
	Order  SalesOrder       `json:"order"`
	Report AllocationReport `json:"allocation"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateOrderInput{OrderNumber: req.OrderNumber, CustomerName: req.CustomerName}
	for _, it := range req.Items {
		price := decimal.Zero
		if it.UnitPrice != "" {
			var err error
			price, err = decimal.NewFromString(it.UnitPrice)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_price must be a decimal string")
				return
			}
		}
		input.Items = append(input.Items, OrderItemInput{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: price})
	}
	order, report, err := h.service.CreateOrder(r.Context(), input)
	if err != nil {
		h.respondError(w, "create order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, orderResponse{Order: order, Report: report})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	limit, offset := 100, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	orders, err := h.service.ListOrders(r.Context(), limit, offset)
	if err != nil {
		h.respondError(w, "list orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) showOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be a positive integer")
		return
	}
	order, items, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, "show order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": order, "items": items})
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be a positive integer")
		return
	}
	order, err := h.service.Dispatch(r.Context(), id)
	if err != nil {
		h.respondError(w, "dispatch order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrEmptyOrder), errors.Is(err, ledger.ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "unexpected error")
	}
}
