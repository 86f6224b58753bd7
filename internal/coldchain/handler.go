package coldchain

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pharmaos/pharmaos/internal/masterdata"
	"github.com/pharmaos/pharmaos/internal/platform/httpx"
)

// Handler accepts IoT sensor readings.
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

// MountRoutes registers telemetry routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/iot/telemetry", h.ingest)
}

type telemetryRequest struct {
	BinCode     string   `json:"bin_code" validate:"required,max=32"`
	Temperature *float64 `json:"temperature" validate:"required"`
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	var req telemetryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.Evaluate(r.Context(), req.BinCode, *req.Temperature)
	if err != nil {
		if errors.Is(err, masterdata.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("telemetry", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "unexpected error")
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
