package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pharmaos/pharmaos/internal/platform/db"
)

// Repository persists the stock ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service. Row
// locks acquired here serialize concurrent receive/deduct/quarantine calls
// touching the same record.
type TxRepository interface {
	GetBatchByNumber(ctx context.Context, productID int64, batchNumber string) (Batch, error)
	InsertBatch(ctx context.Context, batch Batch) (int64, error)
	GetStockForUpdate(ctx context.Context, batchID, binID int64) (StockRecord, error)
	GetStockByIDForUpdate(ctx context.Context, id int64) (StockRecord, error)
	InsertStock(ctx context.Context, record StockRecord) (int64, error)
	SetStockQuantity(ctx context.Context, id, quantity int64) error
	SetStockQuarantine(ctx context.Context, id int64, reason string) error
	ListAvailableForUpdate(ctx context.Context, productID int64) ([]AvailableStock, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a row-locking transaction. Contended
// writers queue on FOR UPDATE locks instead of failing, so a losing deduct
// still observes the committed quantity and reports insufficiency itself.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetBatch resolves a batch by id.
func (r *Repository) GetBatch(ctx context.Context, id int64) (Batch, error) {
	return scanBatch(r.pool.QueryRow(ctx, `SELECT id, product_id, batch_number, expiry_date, mfg_date, mrp, created_at
FROM batches WHERE id=$1`, id))
}

// GetBatchByNumber resolves a batch by its operator-facing number, across
// all products. Returns ErrNotFound when the number is unknown.
func (r *Repository) GetBatchByNumber(ctx context.Context, batchNumber string) (Batch, error) {
	return scanBatch(r.pool.QueryRow(ctx, `SELECT id, product_id, batch_number, expiry_date, mfg_date, mrp, created_at
FROM batches WHERE batch_number=$1 ORDER BY id ASC LIMIT 1`, batchNumber))
}

// ListAvailable returns the non-quarantined records with quantity > 0 for a
// product, soonest expiry first, record id as the deterministic tie-break.
func (r *Repository) ListAvailable(ctx context.Context, productID int64) ([]AvailableStock, error) {
	rows, err := r.pool.Query(ctx, availableQuery, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAvailable(rows)
}

// ListByBin returns every stock record currently in a bin, resolved for
// cold-chain evaluation.
func (r *Repository) ListByBin(ctx context.Context, binID int64) ([]BinStock, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.id, s.batch_id, b.batch_number, b.product_id, s.quantity, s.is_quarantined
FROM stock_records s
JOIN batches b ON b.id = s.batch_id
WHERE s.bin_id = $1
ORDER BY s.id ASC`, binID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []BinStock
	for rows.Next() {
		var bs BinStock
		if err := rows.Scan(&bs.StockRecordID, &bs.BatchID, &bs.BatchNumber, &bs.ProductID, &bs.Quantity, &bs.IsQuarantined); err != nil {
			return nil, err
		}
		result = append(result, bs)
	}
	return result, rows.Err()
}

// ListLiveStock returns the joined dashboard view of all records with
// quantity > 0.
func (r *Repository) ListLiveStock(ctx context.Context) ([]StockView, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.name, p.sku_code, b.batch_number, b.expiry_date, bn.bin_code, s.quantity, bn.is_cold_storage, s.is_quarantined
FROM stock_records s
JOIN batches b ON b.id = s.batch_id
JOIN products p ON p.id = b.product_id
JOIN bins bn ON bn.id = s.bin_id
WHERE s.quantity > 0
ORDER BY p.name ASC, b.expiry_date ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []StockView
	for rows.Next() {
		var v StockView
		if err := rows.Scan(&v.ProductName, &v.SKU, &v.BatchNumber, &v.ExpiryDate, &v.BinCode, &v.Quantity, &v.IsColdChain, &v.IsQuarantined); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

const availableQuery = `SELECT s.id, s.batch_id, b.batch_number, s.bin_id, s.quantity, b.expiry_date
FROM stock_records s
JOIN batches b ON b.id = s.batch_id
WHERE b.product_id = $1 AND s.quantity > 0 AND NOT s.is_quarantined
ORDER BY b.expiry_date ASC, s.id ASC`

func (r *txRepository) GetBatchByNumber(ctx context.Context, productID int64, batchNumber string) (Batch, error) {
	return scanBatch(r.tx.QueryRow(ctx, `SELECT id, product_id, batch_number, expiry_date, mfg_date, mrp, created_at
FROM batches WHERE product_id=$1 AND batch_number=$2`, productID, batchNumber))
}

func (r *txRepository) InsertBatch(ctx context.Context, batch Batch) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO batches (product_id, batch_number, expiry_date, mfg_date, mrp, created_at)
VALUES ($1,$2,$3,$4,$5,NOW()) RETURNING id`, batch.ProductID, batch.BatchNumber, batch.ExpiryDate, batch.MfgDate, batch.MRP).Scan(&id)
	return id, err
}

func (r *txRepository) GetStockForUpdate(ctx context.Context, batchID, binID int64) (StockRecord, error) {
	return scanStock(r.tx.QueryRow(ctx, `SELECT id, batch_id, bin_id, quantity, is_quarantined, quarantine_reason, updated_at
FROM stock_records WHERE batch_id=$1 AND bin_id=$2 FOR UPDATE`, batchID, binID))
}

func (r *txRepository) GetStockByIDForUpdate(ctx context.Context, id int64) (StockRecord, error) {
	return scanStock(r.tx.QueryRow(ctx, `SELECT id, batch_id, bin_id, quantity, is_quarantined, quarantine_reason, updated_at
FROM stock_records WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) InsertStock(ctx context.Context, record StockRecord) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_records (batch_id, bin_id, quantity, is_quarantined, quarantine_reason, updated_at)
VALUES ($1,$2,$3,FALSE,NULL,NOW()) RETURNING id`, record.BatchID, record.BinID, record.Quantity).Scan(&id)
	return id, err
}

func (r *txRepository) SetStockQuantity(ctx context.Context, id, quantity int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_records SET quantity=$2, updated_at=NOW() WHERE id=$1`, id, quantity)
	return err
}

func (r *txRepository) SetStockQuarantine(ctx context.Context, id int64, reason string) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_records SET is_quarantined=TRUE, quarantine_reason=$2, updated_at=NOW() WHERE id=$1`, id, reason)
	return err
}

func (r *txRepository) ListAvailableForUpdate(ctx context.Context, productID int64) ([]AvailableStock, error) {
	rows, err := r.tx.Query(ctx, availableQuery+` FOR UPDATE OF s`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAvailable(rows)
}

func scanBatch(row pgx.Row) (Batch, error) {
	var b Batch
	err := row.Scan(&b.ID, &b.ProductID, &b.BatchNumber, &b.ExpiryDate, &b.MfgDate, &b.MRP, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, ErrNotFound
		}
		return Batch{}, err
	}
	return b, nil
}

func scanStock(row pgx.Row) (StockRecord, error) {
	var s StockRecord
	err := row.Scan(&s.ID, &s.BatchID, &s.BinID, &s.Quantity, &s.IsQuarantined, &s.QuarantineReason, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockRecord{}, ErrNotFound
		}
		return StockRecord{}, err
	}
	return s, nil
}

func collectAvailable(rows pgx.Rows) ([]AvailableStock, error) {
	var result []AvailableStock
	for rows.Next() {
		var a AvailableStock
		if err := rows.Scan(&a.StockRecordID, &a.BatchID, &a.BatchNumber, &a.BinID, &a.Quantity, &a.ExpiryDate); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
