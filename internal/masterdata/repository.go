package masterdata

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists master data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ProductReader is the id-based lookup surface other modules depend on.
type ProductReader interface {
	GetProduct(ctx context.Context, id int64) (Product, error)
}

// BinReader resolves bins by id or operator-scanned code.
type BinReader interface {
	GetBin(ctx context.Context, id int64) (Bin, error)
	GetBinByCode(ctx context.Context, code string) (Bin, error)
}

func (r *Repository) CreateManufacturer(ctx context.Context, m Manufacturer) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO manufacturers (name, address, license_number, is_active, created_at)
VALUES ($1,$2,$3,TRUE,NOW()) RETURNING id`, m.Name, m.Address, m.LicenseNumber).Scan(&id)
	return id, mapPgError(err)
}

func (r *Repository) GetManufacturer(ctx context.Context, id int64) (Manufacturer, error) {
	var m Manufacturer
	err := r.pool.QueryRow(ctx, `SELECT id, name, address, license_number, is_active, created_at
FROM manufacturers WHERE id=$1`, id).Scan(&m.ID, &m.Name, &m.Address, &m.LicenseNumber, &m.IsActive, &m.CreatedAt)
	if err != nil {
		return Manufacturer{}, mapPgError(err)
	}
	return m, nil
}

func (r *Repository) ListManufacturers(ctx context.Context, limit, offset int) ([]Manufacturer, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, address, license_number, is_active, created_at
FROM manufacturers ORDER BY name ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Manufacturer
	for rows.Next() {
		var m Manufacturer
		if err := rows.Scan(&m.ID, &m.Name, &m.Address, &m.LicenseNumber, &m.IsActive, &m.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (r *Repository) CreateProduct(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO products (sku_code, name, composition, manufacturer_id, base_uom, requires_cold_chain, min_temp, max_temp, hsn_code, schedule_type, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW()) RETURNING id`,
		p.SKU, p.Name, p.Composition, p.ManufacturerID, p.BaseUOM, p.RequiresColdChain, p.MinTemp, p.MaxTemp, p.HSNCode, p.ScheduleType).Scan(&id)
	return id, mapPgError(err)
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, sku_code, name, composition, manufacturer_id, base_uom, requires_cold_chain, min_temp, max_temp, hsn_code, schedule_type, created_at
FROM products WHERE id=$1`, id).Scan(&p.ID, &p.SKU, &p.Name, &p.Composition, &p.ManufacturerID, &p.BaseUOM, &p.RequiresColdChain, &p.MinTemp, &p.MaxTemp, &p.HSNCode, &p.ScheduleType, &p.CreatedAt)
	if err != nil {
		return Product{}, mapPgError(err)
	}
	return p, nil
}

func (r *Repository) ListProducts(ctx context.Context, limit, offset int) ([]Product, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, sku_code, name, composition, manufacturer_id, base_uom, requires_cold_chain, min_temp, max_temp, hsn_code, schedule_type, created_at
FROM products ORDER BY sku_code ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Composition, &p.ManufacturerID, &p.BaseUOM, &p.RequiresColdChain, &p.MinTemp, &p.MaxTemp, &p.HSNCode, &p.ScheduleType, &p.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *Repository) CreateWarehouse(ctx context.Context, w Warehouse) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO warehouses (name, location_code) VALUES ($1,$2) RETURNING id`, w.Name, w.LocationCode).Scan(&id)
	return id, mapPgError(err)
}

func (r *Repository) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	var w Warehouse
	err := r.pool.QueryRow(ctx, `SELECT id, name, location_code FROM warehouses WHERE id=$1`, id).Scan(&w.ID, &w.Name, &w.LocationCode)
	if err != nil {
		return Warehouse{}, mapPgError(err)
	}
	return w, nil
}

func (r *Repository) CreateBin(ctx context.Context, b Bin) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO bins (bin_code, is_cold_storage, warehouse_id) VALUES ($1,$2,$3) RETURNING id`,
		b.BinCode, b.IsColdStorage, b.WarehouseID).Scan(&id)
	return id, mapPgError(err)
}

func (r *Repository) GetBin(ctx context.Context, id int64) (Bin, error) {
	var b Bin
	err := r.pool.QueryRow(ctx, `SELECT id, bin_code, is_cold_storage, warehouse_id FROM bins WHERE id=$1`, id).Scan(&b.ID, &b.BinCode, &b.IsColdStorage, &b.WarehouseID)
	if err != nil {
		return Bin{}, mapPgError(err)
	}
	return b, nil
}

func (r *Repository) GetBinByCode(ctx context.Context, code string) (Bin, error) {
	var b Bin
	err := r.pool.QueryRow(ctx, `SELECT id, bin_code, is_cold_storage, warehouse_id FROM bins WHERE bin_code=$1`, code).Scan(&b.ID, &b.BinCode, &b.IsColdStorage, &b.WarehouseID)
	if err != nil {
		return Bin{}, mapPgError(err)
	}
	return b, nil
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}
