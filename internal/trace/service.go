package trace

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/pharmaos/pharmaos/internal/ledger"
	"github.com/pharmaos/pharmaos/internal/masterdata"
	"github.com/pharmaos/pharmaos/internal/shared"
)

// RepositoryPort abstracts trace reads for the service.
type RepositoryPort interface {
	Locations(ctx context.Context, batchID int64) ([]Location, error)
	Sales(ctx context.Context, batchID int64) ([]Sale, error)
}

// BatchResolver maps operator-facing batch numbers to ledger batches.
type BatchResolver interface {
	GetBatchByNumber(ctx context.Context, batchNumber string) (ledger.Batch, error)
}

// NoticeEnqueuer hands recall notices to the background queue.
type NoticeEnqueuer interface {
	EnqueueRecallNotice(ctx context.Context, notice RecallNotice) error
}

// RecallCounter counts initiated recalls for observability.
type RecallCounter interface {
	RecallInitiated()
}

// Service answers trace queries and initiates recalls.
type Service struct {
	logger            *slog.Logger
	repo              RepositoryPort
	batches           BatchResolver
	products          masterdata.ProductReader
	queue             NoticeEnqueuer
	fallbackRecipient string
	metrics           RecallCounter
}

// SetMetrics attaches the recall counter.
func (s *Service) SetMetrics(m RecallCounter) { s.metrics = m }

// NewService builds Service. fallbackRecipient receives the notice when a
// batch was never sold to anyone.
func NewService(logger *slog.Logger, repo RepositoryPort, batches BatchResolver, products masterdata.ProductReader, queue NoticeEnqueuer, fallbackRecipient string) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, repo: repo, batches: batches, products: products, queue: queue, fallbackRecipient: fallbackRecipient}
}

func (s *Service) resolve(ctx context.Context, batchNumber string) (ledger.Batch, masterdata.Product, error) {
	batch, err := s.batches.GetBatchByNumber(ctx, batchNumber)
	if err != nil {
		return ledger.Batch{}, masterdata.Product{}, fmt.Errorf("%w: %q", ErrNotFound, batchNumber)
	}
	product, err := s.products.GetProduct(ctx, batch.ProductID)
	if err != nil {
		return ledger.Batch{}, masterdata.Product{}, fmt.Errorf("resolve product: %w", err)
	}
	return batch, product, nil
}

// TraceBatch answers "where is this batch now, and who received it".
func (s *Service) TraceBatch(ctx context.Context, batchNumber string) (BatchTrace, error) {
	batch, product, err := s.resolve(ctx, batchNumber)
	if err != nil {
		return BatchTrace{}, err
	}
	locations, err := s.repo.Locations(ctx, batch.ID)
	if err != nil {
		return BatchTrace{}, fmt.Errorf("trace locations: %w", err)
	}
	sales, err := s.repo.Sales(ctx, batch.ID)
	if err != nil {
		return BatchTrace{}, fmt.Errorf("trace sales: %w", err)
	}
	return BatchTrace{
		BatchNumber: batch.BatchNumber,
		ProductID:   product.ID,
		ProductName: product.Name,
		ExpiryDate:  batch.ExpiryDate,
		MfgDate:     batch.MfgDate,
		Locations:   locations,
		Sales:       sales,
	}, nil
}

// RecallTargets returns the deduplicated customers who received the batch,
// in stable order.
func (s *Service) RecallTargets(ctx context.Context, batchNumber string) ([]string, error) {
	batch, _, err := s.resolve(ctx, batchNumber)
	if err != nil {
		return nil, err
	}
	sales, err := s.repo.Sales(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var targets []string
	for _, sale := range sales {
		if sale.CustomerName == "" || seen[sale.CustomerName] {
			continue
		}
		seen[sale.CustomerName] = true
		targets = append(targets, sale.CustomerName)
	}
	sort.Strings(targets)
	return targets, nil
}

// InitiateRecall resolves the recipients and enqueues the recall notice.
// Delivery happens in the worker; this returns as soon as the job is
// queued. When nobody bought the batch the notice still goes out, to the
// fallback recipient.
func (s *Service) InitiateRecall(ctx context.Context, batchNumber string) (RecallResult, error) {
	_, product, err := s.resolve(ctx, batchNumber)
	if err != nil {
		return RecallResult{}, err
	}
	targets, err := s.RecallTargets(ctx, batchNumber)
	if err != nil {
		return RecallResult{}, err
	}
	if len(targets) == 0 && s.fallbackRecipient != "" {
		targets = []string{s.fallbackRecipient}
	}

	initiatedBy := ""
	if actor := shared.ActorFromContext(ctx); actor != nil {
		initiatedBy = actor.Name
	}
	notice := RecallNotice{
		BatchNumber: batchNumber,
		ProductName: product.Name,
		Recipients:  targets,
		InitiatedBy: initiatedBy,
	}
	if err := s.queue.EnqueueRecallNotice(ctx, notice); err != nil {
		return RecallResult{}, fmt.Errorf("enqueue recall notice: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecallInitiated()
	}
	s.logger.Info("recall initiated",
		slog.String("batch", batchNumber),
		slog.String("product", product.Name),
		slog.Int("recipients", len(targets)),
	)
	return RecallResult{BatchNumber: batchNumber, Recipients: targets, Queued: true}, nil
}
