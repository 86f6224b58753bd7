package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pharmaos/pharmaos/internal/ledger"
	"github.com/pharmaos/pharmaos/internal/shared"
)

// RepositoryPort abstracts order persistence for the service.
type RepositoryPort interface {
	CreateOrder(ctx context.Context, order SalesOrder, items []SalesOrderItem) (SalesOrder, []SalesOrderItem, error)
	GetOrder(ctx context.Context, id int64) (SalesOrder, error)
	ListOrders(ctx context.Context, limit, offset int) ([]SalesOrder, error)
	GetOrderItems(ctx context.Context, orderID int64) ([]SalesOrderItem, error)
	SetItemAllocation(ctx context.Context, itemID, batchID int64) error
	SetOrderStatus(ctx context.Context, orderID int64, status OrderStatus) error
}

// StockAllocator is the locked-transaction surface the ledger exposes for
// allocation runs.
type StockAllocator interface {
	Allocate(ctx context.Context, productID int64, fn func(context.Context, ledger.AllocationTx) error) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AllocationCounter counts failed order lines for observability.
type AllocationCounter interface {
	AllocationFailed()
}

// Service creates orders and reserves stock for them.
type Service struct {
	logger  *slog.Logger
	repo    RepositoryPort
	stock   StockAllocator
	audit   AuditPort
	metrics AllocationCounter
}

// SetMetrics attaches the allocation failure counter.
func (s *Service) SetMetrics(m AllocationCounter) { s.metrics = m }

// NewService builds Service.
func NewService(logger *slog.Logger, repo RepositoryPort, stock StockAllocator, audit AuditPort) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, repo: repo, stock: stock, audit: audit}
}

// OrderItemInput is one requested line.
type OrderItemInput struct {
	ProductID int64
	Quantity  int64
	UnitPrice decimal.Decimal
}

// CreateOrderInput carries a new order.
type CreateOrderInput struct {
	OrderNumber  string
	CustomerName string
	Items        []OrderItemInput
}

// allocateLine reserves stock for one line under the no-split policy: only
// the soonest-expiring eligible record is considered, and it must cover the
// full quantity on its own. Sufficient total stock spread across later
// batches still fails the line.
func (s *Service) allocateLine(ctx context.Context, productID, quantity int64) (batchID int64, batchNumber string, err error) {
	err = s.stock.Allocate(ctx, productID, func(ctx context.Context, tx ledger.AllocationTx) error {
		available, err := tx.ListAvailable(ctx)
		if err != nil {
			return err
		}
		if len(available) == 0 {
			return ErrOutOfStock
		}
		candidate := available[0]
		if candidate.Quantity < quantity {
			return fmt.Errorf("%w: batch %s holds %d, requested %d",
				ledger.ErrInsufficientStock, candidate.BatchNumber, candidate.Quantity, quantity)
		}
		if err := tx.Deduct(ctx, candidate.StockRecordID, quantity); err != nil {
			return err
		}
		batchID, batchNumber = candidate.BatchID, candidate.BatchNumber
		return nil
	})
	return batchID, batchNumber, err
}

// CreateOrder persists a PENDING order and walks its lines through
// allocation. Lines allocate independently: stock taken for an earlier line
// stays taken when a later line fails. The order moves to ALLOCATED only
// when every line got a batch.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (SalesOrder, AllocationReport, error) {
	if len(input.Items) == 0 {
		return SalesOrder{}, AllocationReport{}, ErrEmptyOrder
	}
	for _, it := range input.Items {
		if it.Quantity <= 0 {
			return SalesOrder{}, AllocationReport{}, ledger.ErrInvalidQuantity
		}
	}
	orderNumber := input.OrderNumber
	if orderNumber == "" {
		orderNumber = "SO-" + strings.ToUpper(uuid.NewString()[:8])
	}

	items := make([]SalesOrderItem, len(input.Items))
	for i, it := range input.Items {
		items[i] = SalesOrderItem{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}
	order, items, err := s.repo.CreateOrder(ctx, SalesOrder{
		OrderNumber:  orderNumber,
		CustomerName: input.CustomerName,
		Status:       StatusPending,
	}, items)
	if err != nil {
		return SalesOrder{}, AllocationReport{}, fmt.Errorf("create order: %w", err)
	}

	report := AllocationReport{OrderID: order.ID, Lines: make([]AllocationLine, 0, len(items))}
	allocated := 0
	for _, item := range items {
		line := AllocationLine{ItemID: item.ID, ProductID: item.ProductID, Requested: item.Quantity}
		batchID, batchNumber, err := s.allocateLine(ctx, item.ProductID, item.Quantity)
		switch {
		case err == nil:
			if err := s.repo.SetItemAllocation(ctx, item.ID, batchID); err != nil {
				return SalesOrder{}, AllocationReport{}, fmt.Errorf("bind allocation: %w", err)
			}
			line.Allocated = true
			line.BatchID = batchID
			line.BatchNumber = batchNumber
			allocated++
		case errors.Is(err, ErrOutOfStock), errors.Is(err, ledger.ErrInsufficientStock):
			line.Reason = err.Error()
			if s.metrics != nil {
				s.metrics.AllocationFailed()
			}
		default:
			return SalesOrder{}, AllocationReport{}, fmt.Errorf("allocate line: %w", err)
		}
		report.Lines = append(report.Lines, line)
	}

	switch {
	case allocated == len(items):
		report.Outcome = OutcomeFull
		if err := s.repo.SetOrderStatus(ctx, order.ID, StatusAllocated); err != nil {
			return SalesOrder{}, AllocationReport{}, fmt.Errorf("mark allocated: %w", err)
		}
		order.Status = StatusAllocated
	case allocated > 0:
		report.Outcome = OutcomePartial
	default:
		report.Outcome = OutcomeNone
	}

	s.record(ctx, "sales:create_order", order.ID, map[string]any{
		"order_number": order.OrderNumber,
		"outcome":      string(report.Outcome),
		"lines":        len(items),
	})
	return order, report, nil
}

// Dispatch moves an ALLOCATED order out of the warehouse.
func (s *Service) Dispatch(ctx context.Context, orderID int64) (SalesOrder, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return SalesOrder{}, err
	}
	if order.Status != StatusAllocated {
		return SalesOrder{}, fmt.Errorf("%w: cannot dispatch %s order", ErrInvalidState, order.Status)
	}
	if err := s.repo.SetOrderStatus(ctx, orderID, StatusDispatched); err != nil {
		return SalesOrder{}, err
	}
	order.Status = StatusDispatched
	s.record(ctx, "sales:dispatch", orderID, map[string]any{"order_number": order.OrderNumber})
	return order, nil
}

// GetOrder returns an order with its items.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (SalesOrder, []SalesOrderItem, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return SalesOrder{}, nil, err
	}
	items, err := s.repo.GetOrderItems(ctx, orderID)
	if err != nil {
		return SalesOrder{}, nil, err
	}
	return order, items, nil
}

// ListOrders pages over headers.
func (s *Service) ListOrders(ctx context.Context, limit, offset int) ([]SalesOrder, error) {
	return s.repo.ListOrders(ctx, limit, offset)
}

func (s *Service) record(ctx context.Context, action string, orderID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	var actorID int64
	if actor := shared.ActorFromContext(ctx); actor != nil {
		actorID = actor.ID
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "sales_order",
		EntityID: fmt.Sprintf("%d", orderID),
		Meta:     meta,
	})
}
