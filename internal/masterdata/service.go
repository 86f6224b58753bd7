package masterdata

import (
	"context"
	"fmt"
)

// RepositoryPort is the storage surface the service needs.
type RepositoryPort interface {
	CreateManufacturer(ctx context.Context, m Manufacturer) (int64, error)
	GetManufacturer(ctx context.Context, id int64) (Manufacturer, error)
	ListManufacturers(ctx context.Context, limit, offset int) ([]Manufacturer, error)
	CreateProduct(ctx context.Context, p Product) (int64, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProducts(ctx context.Context, limit, offset int) ([]Product, error)
	CreateWarehouse(ctx context.Context, w Warehouse) (int64, error)
	GetWarehouse(ctx context.Context, id int64) (Warehouse, error)
	CreateBin(ctx context.Context, b Bin) (int64, error)
}

// Service wraps master data rules on top of the repository.
type Service struct {
	repo RepositoryPort
}

// NewService constructs Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

func (s *Service) CreateManufacturer(ctx context.Context, m Manufacturer) (Manufacturer, error) {
	id, err := s.repo.CreateManufacturer(ctx, m)
	if err != nil {
		return Manufacturer{}, fmt.Errorf("create manufacturer: %w", err)
	}
	return s.repo.GetManufacturer(ctx, id)
}

func (s *Service) ListManufacturers(ctx context.Context, limit, offset int) ([]Manufacturer, error) {
	return s.repo.ListManufacturers(ctx, limit, offset)
}

// CreateProduct verifies the manufacturer exists before inserting.
func (s *Service) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if _, err := s.repo.GetManufacturer(ctx, p.ManufacturerID); err != nil {
		return Product{}, fmt.Errorf("verify manufacturer: %w", err)
	}
	if p.BaseUOM == "" {
		p.BaseUOM = "STRIP"
	}
	id, err := s.repo.CreateProduct(ctx, p)
	if err != nil {
		return Product{}, fmt.Errorf("create product: %w", err)
	}
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) ListProducts(ctx context.Context, limit, offset int) ([]Product, error) {
	return s.repo.ListProducts(ctx, limit, offset)
}

func (s *Service) CreateWarehouse(ctx context.Context, w Warehouse) (Warehouse, error) {
	id, err := s.repo.CreateWarehouse(ctx, w)
	if err != nil {
		return Warehouse{}, fmt.Errorf("create warehouse: %w", err)
	}
	w.ID = id
	return w, nil
}

// CreateBin verifies the parent warehouse exists before inserting.
func (s *Service) CreateBin(ctx context.Context, b Bin) (Bin, error) {
	if _, err := s.repo.GetWarehouse(ctx, b.WarehouseID); err != nil {
		return Bin{}, fmt.Errorf("verify warehouse: %w", err)
	}
	id, err := s.repo.CreateBin(ctx, b)
	if err != nil {
		return Bin{}, fmt.Errorf("create bin: %w", err)
	}
	b.ID = id
	return b, nil
}
