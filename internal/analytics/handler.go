package analytics

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"github.com/pharmaos/pharmaos/internal/platform/httpx"
)

// Handler serves the insights dashboard API.
type Handler struct {
	logger  *slog.Logger
	service *Service
	group   singleflight.Group
}

// NewHandler constructs the analytics HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers analytics routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/analytics/insights", h.insights)
}

// insights collapses concurrent cold-cache rebuilds into one evaluation.
// The rebuild runs on a detached context: its result is shared across
// collapsed callers, so one canceled request must not poison the rest.
func (h *Handler) insights(w http.ResponseWriter, r *http.Request) {
	result, err, _ := h.group.Do("insights", func() (interface{}, error) {
		return h.service.Insights(context.WithoutCancel(r.Context()))
	})
	if err != nil {
		h.logger.Error("insights", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "unexpected error")
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
