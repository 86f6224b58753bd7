package masterdata

import (
	"errors"
	"time"
)

// ErrNotFound indicates a missing master data record.
var ErrNotFound = errors.New("masterdata: record not found")

// ErrDuplicate indicates a unique constraint violation (sku, bin code, name).
var ErrDuplicate = errors.New("masterdata: duplicate entry")

// Manufacturer is the licensed producer of one or more products.
type Manufacturer struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Address       string    `json:"address,omitempty"`
	LicenseNumber string    `json:"license_number,omitempty"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

// Product is an immutable catalog entry; stock and pricing live on batches.
type Product struct {
	ID                int64     `json:"id"`
	SKU               string    `json:"sku_code"`
	Name              string    `json:"name"`
	Composition       string    `json:"composition,omitempty"`
	ManufacturerID    int64     `json:"manufacturer_id"`
	BaseUOM           string    `json:"base_uom"`
	RequiresColdChain bool      `json:"requires_cold_chain"`
	MinTemp           *float64  `json:"min_temp,omitempty"`
	MaxTemp           *float64  `json:"max_temp,omitempty"`
	HSNCode           string    `json:"hsn_code,omitempty"`
	ScheduleType      string    `json:"schedule_type,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Warehouse groups bins under a single site.
type Warehouse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	LocationCode string `json:"location_code"`
}

// Bin is a physical storage location inside a warehouse.
type Bin struct {
	ID            int64  `json:"id"`
	BinCode       string `json:"bin_code"`
	IsColdStorage bool   `json:"is_cold_storage"`
	WarehouseID   int64  `json:"warehouse_id"`
}
