package analytics

// InsightType classifies what an insight flags.
type InsightType string

const (
	// InsightStockoutRisk flags products projected to run out within a week.
	InsightStockoutRisk InsightType = "STOCKOUT_RISK"
	// InsightLowStock flags thin inventory with no sales history to project from.
	InsightLowStock InsightType = "LOW_STOCK"
	// InsightDeadStock flags large piles nobody is buying.
	InsightDeadStock InsightType = "DEAD_STOCK"
)

// burnWindowDays is the assumed age of the sales history when projecting
// daily burn from lifetime totals.
const burnWindowDays = 30.0

const (
	stockoutHorizonDays = 7.0
	lowStockThreshold   = 50
	deadStockThreshold  = 500
)

// ProductUsage is the raw material for insight evaluation: what is on
// hand and what has ever been sold, per product.
type ProductUsage struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	SKU         string `json:"sku"`
	OnHand      int64  `json:"on_hand"`
	TotalSold   int64  `json:"total_sold"`
}

// Insight is one actionable finding on the inventory dashboard.
type Insight struct {
	ProductID   int64       `json:"product_id"`
	ProductName string      `json:"product_name"`
	SKU         string      `json:"sku"`
	Type        InsightType `json:"type"`
	OnHand      int64       `json:"on_hand"`
	DaysOfCover *float64    `json:"days_of_cover,omitempty"`
	Message     string      `json:"message"`
}
