package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/pharmaos/pharmaos/internal/masterdata"
	"github.com/pharmaos/pharmaos/internal/platform/httpx"
	"github.com/pharmaos/pharmaos/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger.
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

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/inbound/receive", h.receive)
	r.Get("/stock/live", h.liveStock)
	r.Get("/stock/available", h.listAvailable)
	r.Post("/stock/{id}/quarantine", h.quarantine)
}

type receiveRequest struct {
	ProductID     int64   `json:"product_id" validate:"required,gt=0"`
	BatchNumber   string  `json:"batch_number" validate:"required,max=64"`
	ExpiryDate    string  `json:"expiry_date" validate:"required"`
	MfgDate       *string `json:"mfg_date"`
	MRP           string  `json:"mrp"`
	Quantity      int64   `json:"quantity" validate:"required,gt=0"`
	TargetBinCode string  `json:"target_bin_code" validate:"required,max=32"`
	RefID         string  `json:"ref_id" validate:"omitempty,uuid4"`
}

type quarantineRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	expiry, err := time.Parse("2006-01-02", req.ExpiryDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "expiry_date must be YYYY-MM-DD")
		return
	}
	var mfg *time.Time
	if req.MfgDate != nil {
		t, err := time.Parse("2006-01-02", *req.MfgDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "mfg_date must be YYYY-MM-DD")
			return
		}
		mfg = &t
	}
	mrp := decimal.Zero
	if req.MRP != "" {
		mrp, err = decimal.NewFromString(req.MRP)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "mrp must be a decimal string")
			return
		}
	}
	input := ReceiveInput{
		ProductID:     req.ProductID,
		BatchNumber:   req.BatchNumber,
		ExpiryDate:    expiry,
		MfgDate:       mfg,
		MRP:           mrp,
		Quantity:      req.Quantity,
		TargetBinCode: req.TargetBinCode,
		RefID:         req.RefID,
	}
	if actor := shared.ActorFromContext(r.Context()); actor != nil {
		input.ActorID = actor.ID
	}
	result, err := h.service.Receive(r.Context(), input)
	if err != nil {
		h.respondError(w, "receive stock", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) liveStock(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.LiveStock(r.Context())
	if err != nil {
		h.respondError(w, "live stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) listAvailable(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id must be a positive integer")
		return
	}
	rows, err := h.service.ListAvailable(r.Context(), productID)
	if err != nil {
		h.respondError(w, "list available", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) quarantine(w http.ResponseWriter, r *http.Request) {
	recordID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || recordID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be a positive integer")
		return
	}
	var req quarantineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.Quarantine(r.Context(), recordID, req.Reason); err != nil {
		h.respondError(w, "quarantine stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "quarantined"})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, masterdata.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "unexpected error")
	}
}
