package trace

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pharmaos/pharmaos/internal/platform/httpx"
	"github.com/pharmaos/pharmaos/internal/shared"
)

// Handler wires trace and recall endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers trace routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/trace/{batchNumber}", h.traceBatch)
	r.Get("/recall/{batchNumber}/targets", h.recallTargets)
	r.Post("/recall/{batchNumber}", h.initiateRecall)
}

func (h *Handler) traceBatch(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.TraceBatch(r.Context(), chi.URLParam(r, "batchNumber"))
	if err != nil {
		h.respondError(w, "trace batch", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) recallTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := h.service.RecallTargets(r.Context(), chi.URLParam(r, "batchNumber"))
	if err != nil {
		h.respondError(w, "recall targets", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"targets": targets})
}

// initiateRecall is restricted to managers; the auth middleware supplies
// the actor, the gate lives here at the edge.
func (h *Handler) initiateRecall(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	if !shared.RoleAllowed(actor.Role, shared.RoleManager) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "recall initiation requires manager role")
		return
	}
	result, err := h.service.InitiateRecall(r.Context(), chi.URLParam(r, "batchNumber"))
	if err != nil {
		h.respondError(w, "initiate recall", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, result)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "unexpected error")
	}
}
