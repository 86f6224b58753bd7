package trace

import (
	"errors"
	"time"
)

// Location is where trace currently finds a batch.
type Location struct {
	BinCode       string `json:"bin_code"`
	WarehouseName string `json:"warehouse"`
	Quantity      int64  `json:"quantity"`
	IsQuarantined bool   `json:"is_quarantined"`
}

// Sale is one historical dispatch of the batch.
type Sale struct {
	OrderID      int64     `json:"order_id"`
	OrderNumber  string    `json:"order_number"`
	CustomerName string    `json:"customer_name"`
	OrderedAt    time.Time `json:"ordered_at"`
	Quantity     int64     `json:"quantity"`
}

// BatchTrace is the full forward-and-backward picture of one batch.
type BatchTrace struct {
	BatchNumber string     `json:"batch_number"`
	ProductID   int64      `json:"product_id"`
	ProductName string     `json:"product_name"`
	ExpiryDate  time.Time  `json:"expiry_date"`
	MfgDate     *time.Time `json:"mfg_date,omitempty"`
	Locations   []Location `json:"locations"`
	Sales       []Sale     `json:"sales"`
}

// RecallNotice is the message handed to the notification queue when a
// recall is initiated.
type RecallNotice struct {
	BatchNumber string   `json:"batch_number"`
	ProductName string   `json:"product_name"`
	Recipients  []string `json:"recipients"`
	InitiatedBy string   `json:"initiated_by"`
}

// RecallResult reports what a recall initiation queued.
type RecallResult struct {
	BatchNumber string   `json:"batch_number"`
	Recipients  []string `json:"recipients"`
	Queued      bool     `json:"queued"`
}

// ErrNotFound indicates an unknown batch number.
var ErrNotFound = errors.New("trace: batch not found")
