package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pharmaos/pharmaos/internal/masterdata"
	"github.com/pharmaos/pharmaos/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBatch(ctx context.Context, id int64) (Batch, error)
	GetBatchByNumber(ctx context.Context, batchNumber string) (Batch, error)
	ListAvailable(ctx context.Context, productID int64) ([]AvailableStock, error)
	ListByBin(ctx context.Context, binID int64) ([]BinStock, error)
	ListLiveStock(ctx context.Context) ([]StockView, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ChangeNotifier is told after every committed stock mutation so read-side
// caches can drop stale aggregates.
type ChangeNotifier interface {
	StockChanged(ctx context.Context)
}

// Service owns stock records and is the single point of truth for every
// quantity change and quarantine toggle.
type Service struct {
	repo        RepositoryPort
	products    masterdata.ProductReader
	bins        masterdata.BinReader
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	notifier    ChangeNotifier
}

// SetNotifier installs the post-commit change hook.
func (s *Service) SetNotifier(n ChangeNotifier) {
	s.notifier = n
}

func (s *Service) notifyChanged(ctx context.Context) {
	if s.notifier != nil {
		s.notifier.StockChanged(ctx)
	}
}

// NewService builds Service.
func NewService(repo RepositoryPort, products masterdata.ProductReader, bins masterdata.BinReader, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, products: products, bins: bins, audit: audit, idempotency: idem}
}

// Receive books an inbound receipt: the batch is created on first sight of
// (product, batch number), the stock record is created or incremented.
// An existing quarantine flag is left untouched; received stock does not
// launder a quarantined record.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (ReceiveResult, error) {
	if input.Quantity <= 0 {
		return ReceiveResult{}, ErrInvalidQuantity
	}
	if _, err := s.products.GetProduct(ctx, input.ProductID); err != nil {
		return ReceiveResult{}, fmt.Errorf("verify product: %w", err)
	}
	bin, err := s.bins.GetBinByCode(ctx, input.TargetBinCode)
	if err != nil {
		return ReceiveResult{}, fmt.Errorf("verify bin: %w", err)
	}

	insertedKey := false
	var key string
	if input.RefID != "" {
		if _, err := uuid.Parse(input.RefID); err != nil {
			return ReceiveResult{}, fmt.Errorf("ledger: invalid ref id: %w", err)
		}
		if s.idempotency != nil {
			key = fmt.Sprintf("receive:%s:%d:%s", input.RefID, input.ProductID, input.BatchNumber)
			if err := s.idempotency.CheckAndInsert(ctx, key, "ledger"); err != nil {
				return ReceiveResult{}, err
			}
			insertedKey = true
		}
	}

	var result ReceiveResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		batch, err := tx.GetBatchByNumber(ctx, input.ProductID, input.BatchNumber)
		if errors.Is(err, ErrNotFound) {
			id, err := tx.InsertBatch(ctx, Batch{
				ProductID:   input.ProductID,
				BatchNumber: input.BatchNumber,
				ExpiryDate:  input.ExpiryDate,
				MfgDate:     input.MfgDate,
				MRP:         input.MRP,
			})
			if err != nil {
				return err
			}
			batch = Batch{ID: id}
		} else if err != nil {
			return err
		}

		record, err := tx.GetStockForUpdate(ctx, batch.ID, bin.ID)
		switch {
		case errors.Is(err, ErrNotFound):
			id, err := tx.InsertStock(ctx, StockRecord{BatchID: batch.ID, BinID: bin.ID, Quantity: input.Quantity})
			if err != nil {
				return err
			}
			result = ReceiveResult{BatchID: batch.ID, StockRecordID: id, BinCode: bin.BinCode, NewQuantity: input.Quantity}
		case err != nil:
			return err
		default:
			newQty := record.Quantity + input.Quantity
			if err := tx.SetStockQuantity(ctx, record.ID, newQty); err != nil {
				return err
			}
			result = ReceiveResult{BatchID: batch.ID, StockRecordID: record.ID, BinCode: bin.BinCode, NewQuantity: newQty}
		}
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return ReceiveResult{}, err
	}

	s.record(ctx, input.ActorID, "ledger:receive", result.StockRecordID, map[string]any{
		"product_id":   input.ProductID,
		"batch_number": input.BatchNumber,
		"bin":          bin.BinCode,
		"qty":          input.Quantity,
	})
	s.notifyChanged(ctx)
	return result, nil
}

// Deduct atomically decrements a stock record. A deduction exceeding the
// available quantity fails with ErrInsufficientStock and leaves the record
// untouched.
func (s *Service) Deduct(ctx context.Context, stockRecordID, quantity int64) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		record, err := tx.GetStockByIDForUpdate(ctx, stockRecordID)
		if err != nil {
			return err
		}
		if record.Quantity < quantity {
			return fmt.Errorf("%w: requested %d, available %d", ErrInsufficientStock, quantity, record.Quantity)
		}
		return tx.SetStockQuantity(ctx, record.ID, record.Quantity-quantity)
	})
	if err != nil {
		return err
	}
	s.record(ctx, 0, "ledger:deduct", stockRecordID, map[string]any{"qty": quantity})
	s.notifyChanged(ctx)
	return nil
}

// Quarantine flags a record and records why. Quarantining an already
// quarantined record only replaces the reason.
func (s *Service) Quarantine(ctx context.Context, stockRecordID int64, reason string) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		record, err := tx.GetStockByIDForUpdate(ctx, stockRecordID)
		if err != nil {
			return err
		}
		return tx.SetStockQuarantine(ctx, record.ID, reason)
	})
	if err != nil {
		return err
	}
	s.record(ctx, 0, "ledger:quarantine", stockRecordID, map[string]any{"reason": reason})
	s.notifyChanged(ctx)
	return nil
}

// ListAvailable is the read view used by allocation and the API: eligible
// records in FEFO order. Quarantined stock never appears here.
func (s *Service) ListAvailable(ctx context.Context, productID int64) ([]AvailableStock, error) {
	return s.repo.ListAvailable(ctx, productID)
}

// ListByBin lists every record currently in a bin.
func (s *Service) ListByBin(ctx context.Context, binID int64) ([]BinStock, error) {
	return s.repo.ListByBin(ctx, binID)
}

// LiveStock returns the joined dashboard view.
func (s *Service) LiveStock(ctx context.Context) ([]StockView, error) {
	return s.repo.ListLiveStock(ctx)
}

// GetBatchByNumber resolves a batch for trace queries.
func (s *Service) GetBatchByNumber(ctx context.Context, batchNumber string) (Batch, error) {
	return s.repo.GetBatchByNumber(ctx, batchNumber)
}

// AllocationTx is the locked view of one product's stock handed to an
// allocation callback. Rows listed here stay locked until the callback
// returns, so a verify-then-deduct sequence cannot race another caller.
type AllocationTx interface {
	ListAvailable(ctx context.Context) ([]AvailableStock, error)
	Deduct(ctx context.Context, stockRecordID, quantity int64) error
}

type allocationTx struct {
	tx        TxRepository
	productID int64
}

func (a *allocationTx) ListAvailable(ctx context.Context) ([]AvailableStock, error) {
	return a.tx.ListAvailableForUpdate(ctx, a.productID)
}

func (a *allocationTx) Deduct(ctx context.Context, stockRecordID, quantity int64) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	record, err := a.tx.GetStockByIDForUpdate(ctx, stockRecordID)
	if err != nil {
		return err
	}
	if record.Quantity < quantity {
		return fmt.Errorf("%w: requested %d, available %d", ErrInsufficientStock, quantity, record.Quantity)
	}
	return a.tx.SetStockQuantity(ctx, record.ID, record.Quantity-quantity)
}

// Allocate runs fn against a locked allocation view for one product. The
// whole select-verify-deduct sequence commits or rolls back as a unit.
func (s *Service) Allocate(ctx context.Context, productID int64, fn func(context.Context, AllocationTx) error) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return fn(ctx, &allocationTx{tx: tx, productID: productID})
	})
	if err != nil {
		return err
	}
	s.notifyChanged(ctx)
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, recordID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if actor := shared.ActorFromContext(ctx); actor != nil && actorID == 0 {
		actorID = actor.ID
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_record",
		EntityID: fmt.Sprintf("%d", recordID),
		Meta:     meta,
	})
}
