package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Batch is a manufactured lot of a product. Batch numbers are unique per
// product, not globally. Batches are never deleted (audit requirement).
type Batch struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	BatchNumber string          `json:"batch_number"`
	ExpiryDate  time.Time       `json:"expiry_date"`
	MfgDate     *time.Time      `json:"mfg_date,omitempty"`
	MRP         decimal.Decimal `json:"mrp"`
	CreatedAt   time.Time       `json:"created_at"`
}

// StockRecord is the mutable unit of the ledger, keyed by (batch, bin).
// Quantity never goes negative; records survive at zero quantity.
type StockRecord struct {
	ID               int64     `json:"id"`
	BatchID          int64     `json:"batch_id"`
	BinID            int64     `json:"bin_id"`
	Quantity         int64     `json:"quantity"`
	IsQuarantined    bool      `json:"is_quarantined"`
	QuarantineReason *string   `json:"quarantine_reason,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// AvailableStock is one eligible record in the allocation view: quantity > 0,
// not quarantined, joined with its batch for expiry ordering.
type AvailableStock struct {
	StockRecordID int64     `json:"stock_record_id"`
	BatchID       int64     `json:"batch_id"`
	BatchNumber   string    `json:"batch_number"`
	BinID         int64     `json:"bin_id"`
	Quantity      int64     `json:"quantity"`
	ExpiryDate    time.Time `json:"expiry_date"`
}

// BinStock describes a record currently sitting in a bin, resolved far
// enough for cold-chain evaluation.
type BinStock struct {
	StockRecordID int64
	BatchID       int64
	BatchNumber   string
	ProductID     int64
	Quantity      int64
	IsQuarantined bool
}

// StockView is a row of the live stock dashboard.
type StockView struct {
	ProductName   string    `json:"product_name"`
	SKU           string    `json:"sku"`
	BatchNumber   string    `json:"batch_number"`
	ExpiryDate    time.Time `json:"expiry_date"`
	BinCode       string    `json:"bin_code"`
	Quantity      int64     `json:"quantity"`
	IsColdChain   bool      `json:"is_cold_chain"`
	IsQuarantined bool      `json:"is_quarantined"`
}

// ReceiveInput carries an inbound receipt as scanned at the dock.
type ReceiveInput struct {
	ProductID     int64
	BatchNumber   string
	ExpiryDate    time.Time
	MfgDate       *time.Time
	MRP           decimal.Decimal
	Quantity      int64
	TargetBinCode string
	ActorID       int64
	// RefID ties the receipt to an upstream document for idempotent retries.
	RefID string
}

// ReceiveResult reports the state after an inbound receipt.
type ReceiveResult struct {
	BatchID       int64  `json:"batch_id"`
	StockRecordID int64  `json:"stock_record_id"`
	BinCode       string `json:"bin"`
	NewQuantity   int64  `json:"new_quantity"`
}

// ErrNotFound indicates an unknown batch or stock record.
var ErrNotFound = errors.New("ledger: record not found")

// ErrInsufficientStock is returned when a deduction exceeds the quantity
// available on the selected record. The record is left untouched.
var ErrInsufficientStock = errors.New("ledger: insufficient stock")

// ErrInvalidQuantity indicates a non-positive quantity.
var ErrInvalidQuantity = errors.New("ledger: quantity must be positive")
