package analytics

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository runs the read-only aggregation queries behind insights.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a Repository backed by pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ProductUsage sums on-hand quantity (quarantined stock excluded) and
// lifetime allocated sales per product.
func (r *Repository) ProductUsage(ctx context.Context) ([]ProductUsage, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.name, p.sku_code,
  COALESCE((SELECT SUM(s.quantity) FROM stock_records s
            JOIN batches b ON b.id = s.batch_id
            WHERE b.product_id = p.id AND NOT s.is_quarantined), 0) AS on_hand,
  COALESCE((SELECT SUM(i.quantity) FROM sales_order_items i
            JOIN batches b ON b.id = i.allocated_batch_id
            WHERE b.product_id = p.id), 0) AS total_sold
FROM products p
ORDER BY p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProductUsage
	for rows.Next() {
		var u ProductUsage
		if err := rows.Scan(&u.ProductID, &u.ProductName, &u.SKU, &u.OnHand, &u.TotalSold); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
