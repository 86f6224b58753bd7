package sales

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists sales orders in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a Repository backed by pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateOrder inserts the header and its items in one transaction and
// returns them with ids assigned.
func (r *Repository) CreateOrder(ctx context.Context, order SalesOrder, items []SalesOrderItem) (SalesOrder, []SalesOrderItem, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return SalesOrder{}, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `INSERT INTO sales_orders (order_number, customer_name, status, created_at)
VALUES ($1,$2,$3,NOW()) RETURNING id, created_at`, order.OrderNumber, order.CustomerName, order.Status).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return SalesOrder{}, nil, err
	}
	for i := range items {
		items[i].OrderID = order.ID
		err = tx.QueryRow(ctx, `INSERT INTO sales_order_items (order_id, product_id, quantity, unit_price)
VALUES ($1,$2,$3,$4) RETURNING id`, order.ID, items[i].ProductID, items[i].Quantity, items[i].UnitPrice).Scan(&items[i].ID)
		if err != nil {
			return SalesOrder{}, nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return SalesOrder{}, nil, err
	}
	return order, items, nil
}

// GetOrder fetches one order header.
func (r *Repository) GetOrder(ctx context.Context, id int64) (SalesOrder, error) {
	var o SalesOrder
	err := r.pool.QueryRow(ctx, `SELECT id, order_number, customer_name, status, created_at FROM sales_orders WHERE id=$1`, id).
		Scan(&o.ID, &o.OrderNumber, &o.CustomerName, &o.Status, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SalesOrder{}, ErrNotFound
	}
	return o, err
}

// ListOrders pages over order headers, newest first.
func (r *Repository) ListOrders(ctx context.Context, limit, offset int) ([]SalesOrder, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_number, customer_name, status, created_at
FROM sales_orders ORDER BY id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SalesOrder
	for rows.Next() {
		var o SalesOrder
		if err := rows.Scan(&o.ID, &o.OrderNumber, &o.CustomerName, &o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// GetOrderItems lists the lines of one order.
func (r *Repository) GetOrderItems(ctx context.Context, orderID int64) ([]SalesOrderItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, product_id, quantity, unit_price, allocated_batch_id
FROM sales_order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SalesOrderItem
	for rows.Next() {
		var it SalesOrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.AllocatedBatchID); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// SetItemAllocation binds a line to the batch that covers it.
func (r *Repository) SetItemAllocation(ctx context.Context, itemID, batchID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE sales_order_items SET allocated_batch_id=$2 WHERE id=$1 AND allocated_batch_id IS NULL`, itemID, batchID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// SetOrderStatus moves the header to a new state.
func (r *Repository) SetOrderStatus(ctx context.Context, orderID int64, status OrderStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE sales_orders SET status=$2 WHERE id=$1`, orderID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
