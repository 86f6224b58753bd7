package trace

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads the trace joins. Traceability is strictly read-only
// over ledger and sales tables.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a Repository backed by pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Locations lists bins currently holding a non-zero quantity of the batch.
func (r *Repository) Locations(ctx context.Context, batchID int64) ([]Location, error) {
	rows, err := r.pool.Query(ctx, `SELECT bn.bin_code, w.name, s.quantity, s.is_quarantined
FROM stock_records s
JOIN bins bn ON bn.id = s.bin_id
JOIN warehouses w ON w.id = bn.warehouse_id
WHERE s.batch_id = $1 AND s.quantity > 0
ORDER BY bn.bin_code`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.BinCode, &l.WarehouseName, &l.Quantity, &l.IsQuarantined); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Sales lists every order line allocated from the batch.
func (r *Repository) Sales(ctx context.Context, batchID int64) ([]Sale, error) {
	rows, err := r.pool.Query(ctx, `SELECT o.id, o.order_number, o.customer_name, o.created_at, i.quantity
FROM sales_order_items i
JOIN sales_orders o ON o.id = i.order_id
WHERE i.allocated_batch_id = $1
ORDER BY o.created_at, o.id`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Sale
	for rows.Next() {
		var s Sale
		if err := rows.Scan(&s.OrderID, &s.OrderNumber, &s.CustomerName, &s.OrderedAt, &s.Quantity); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
