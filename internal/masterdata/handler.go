package masterdata

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pharmaos/pharmaos/internal/platform/httpx"
)

// Handler wires HTTP endpoints for master data.
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

// MountRoutes registers master data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/manufacturers", h.createManufacturer)
	r.Get("/manufacturers", h.listManufacturers)
	r.Post("/products", h.createProduct)
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.showProduct)
	r.Post("/warehouses", h.createWarehouse)
	r.Post("/bins", h.createBin)
}

type createManufacturerRequest struct {
	Name          string `json:"name" validate:"required,max=200"`
	Address       string `json:"address"`
	LicenseNumber string `json:"license_number"`
}

type createProductRequest struct {
	SKU               string   `json:"sku_code" validate:"required,max=64"`
	Name              string   `json:"name" validate:"required,max=200"`
	Composition       string   `json:"composition"`
	ManufacturerID    int64    `json:"manufacturer_id" validate:"required,gt=0"`
	BaseUOM           string   `json:"base_uom"`
	RequiresColdChain bool     `json:"requires_cold_chain"`
	MinTemp           *float64 `json:"min_temp"`
	MaxTemp           *float64 `json:"max_temp"`
	HSNCode           string   `json:"hsn_code"`
	ScheduleType      string   `json:"schedule_type"`
}

type createWarehouseRequest struct {
	Name         string `json:"name" validate:"required,max=200"`
	LocationCode string `json:"location_code" validate:"required,max=32"`
}

type createBinRequest struct {
	BinCode       string `json:"bin_code" validate:"required,max=32"`
	IsColdStorage bool   `json:"is_cold_storage"`
	WarehouseID   int64  `json:"warehouse_id" validate:"required,gt=0"`
}

func (h *Handler) createManufacturer(w http.ResponseWriter, r *http.Request) {
	var req createManufacturerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	m, err := h.service.CreateManufacturer(r.Context(), Manufacturer{
		Name:          req.Name,
		Address:       req.Address,
		LicenseNumber: req.LicenseNumber,
	})
	if err != nil {
		h.respondError(w, "create manufacturer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, m)
}

func (h *Handler) listManufacturers(w http.ResponseWriter, r *http.Request) {
	limit, offset := listParams(r)
	items, err := h.service.ListManufacturers(r.Context(), limit, offset)
	if err != nil {
		h.respondError(w, "list manufacturers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	p, err := h.service.CreateProduct(r.Context(), Product{
		SKU:               req.SKU,
		Name:              req.Name,
		Composition:       req.Composition,
		ManufacturerID:    req.ManufacturerID,
		BaseUOM:           req.BaseUOM,
		RequiresColdChain: req.RequiresColdChain,
		MinTemp:           req.MinTemp,
		MaxTemp:           req.MaxTemp,
		HSNCode:           req.HSNCode,
		ScheduleType:      req.ScheduleType,
	})
	if err != nil {
		h.respondError(w, "create product", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	limit, offset := listParams(r)
	items, err := h.service.ListProducts(r.Context(), limit, offset)
	if err != nil {
		h.respondError(w, "list products", err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) showProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "product id must be numeric")
		return
	}
	p, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.respondError(w, "show product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) createWarehouse(w http.ResponseWriter, r *http.Request) {
	var req createWarehouseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	wh, err := h.service.CreateWarehouse(r.Context(), Warehouse{Name: req.Name, LocationCode: req.LocationCode})
	if err != nil {
		h.respondError(w, "create warehouse", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, wh)
}

func (h *Handler) createBin(w http.ResponseWriter, r *http.Request) {
	var req createBinRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	b, err := h.service.CreateBin(r.Context(), Bin{
		BinCode:       req.BinCode,
		IsColdStorage: req.IsColdStorage,
		WarehouseID:   req.WarehouseID,
	})
	if err != nil {
		h.respondError(w, "create bin", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, b)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func listParams(r *http.Request) (limit, offset int) {
	limit = 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}
