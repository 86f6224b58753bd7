package sales

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of a sales order. Transitions only
// move forward: PENDING -> ALLOCATED -> DISPATCHED.
type OrderStatus string

const (
	StatusPending    OrderStatus = "PENDING"
	StatusAllocated  OrderStatus = "ALLOCATED"
	StatusDispatched OrderStatus = "DISPATCHED"
)

// SalesOrder is the order header.
type SalesOrder struct {
	ID           int64       `json:"id"`
	OrderNumber  string      `json:"order_number"`
	CustomerName string      `json:"customer_name"`
	Status       OrderStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
}

// SalesOrderItem is one line of an order. AllocatedBatchID is set exactly
// once, by allocation, and names the single batch covering the full line.
type SalesOrderItem struct {
	ID               int64           `json:"id"`
	OrderID          int64           `json:"order_id"`
	ProductID        int64           `json:"product_id"`
	Quantity         int64           `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	AllocatedBatchID *int64          `json:"allocated_batch_id,omitempty"`
}

// AllocationOutcome summarises an order-level allocation run.
type AllocationOutcome string

const (
	OutcomeFull    AllocationOutcome = "FULL"
	OutcomePartial AllocationOutcome = "PARTIAL"
	OutcomeNone    AllocationOutcome = "NONE"
)

// AllocationLine is the per-item result of an allocation run.
type AllocationLine struct {
	ItemID      int64  `json:"item_id"`
	ProductID   int64  `json:"product_id"`
	Requested   int64  `json:"requested"`
	Allocated   bool   `json:"allocated"`
	BatchID     int64  `json:"batch_id,omitempty"`
	BatchNumber string `json:"batch_number,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// AllocationReport is returned alongside the created order so callers can
// tell a fully allocated order from a partially covered one without
// re-reading the lines.
type AllocationReport struct {
	OrderID int64             `json:"order_id"`
	Outcome AllocationOutcome `json:"outcome"`
	Lines   []AllocationLine  `json:"lines"`
}

// ErrNotFound indicates a missing order.
var ErrNotFound = errors.New("sales: order not found")

// ErrOutOfStock is returned when a product has no eligible stock at all.
var ErrOutOfStock = errors.New("sales: out of stock")

// ErrInvalidState guards the forward-only order state machine.
var ErrInvalidState = errors.New("sales: invalid order state")

// ErrEmptyOrder is returned when an order carries no items.
var ErrEmptyOrder = errors.New("sales: order requires at least one item")
