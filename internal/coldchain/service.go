package coldchain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pharmaos/pharmaos/internal/ledger"
	"github.com/pharmaos/pharmaos/internal/masterdata"
)

// DefaultMaxTemp is the ceiling applied when a cold-chain product carries
// no max_temp of its own.
const DefaultMaxTemp = 8.0

// StockPort is the slice of the ledger the monitor needs: the contents of
// a bin and the quarantine switch.
type StockPort interface {
	ListByBin(ctx context.Context, binID int64) ([]ledger.BinStock, error)
	Quarantine(ctx context.Context, stockRecordID int64, reason string) error
}

// EvaluationResult reports one telemetry reading's effect.
type EvaluationResult struct {
	BinCode            string   `json:"bin_code"`
	Temperature        float64  `json:"temperature"`
	QuarantinedBatches []string `json:"quarantined_batches"`
}

// BreachCounter counts quarantine events for observability.
type BreachCounter interface {
	QuarantineEvent()
}

// Service turns temperature telemetry into quarantine decisions.
type Service struct {
	logger         *slog.Logger
	bins           masterdata.BinReader
	products       masterdata.ProductReader
	stock          StockPort
	defaultMaxTemp float64
	metrics        BreachCounter
}

// SetMetrics attaches the quarantine event counter.
func (s *Service) SetMetrics(m BreachCounter) { s.metrics = m }

// NewService builds Service. defaultMaxTemp <= 0 falls back to
// DefaultMaxTemp.
func NewService(logger *slog.Logger, bins masterdata.BinReader, products masterdata.ProductReader, stock StockPort, defaultMaxTemp float64) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultMaxTemp <= 0 {
		defaultMaxTemp = DefaultMaxTemp
	}
	return &Service{logger: logger, bins: bins, products: products, stock: stock, defaultMaxTemp: defaultMaxTemp}
}

// Evaluate applies one reading to every stock record in the bin. Records of
// cold-chain products whose ceiling the reading exceeds are quarantined;
// everything else is left alone. The returned batch numbers cover only
// records newly quarantined by this reading, deduplicated. A plain
// threshold check: no hysteresis, no breach history.
func (s *Service) Evaluate(ctx context.Context, binCode string, temperature float64) (EvaluationResult, error) {
	bin, err := s.bins.GetBinByCode(ctx, binCode)
	if err != nil {
		return EvaluationResult{}, fmt.Errorf("resolve bin: %w", err)
	}
	records, err := s.stock.ListByBin(ctx, bin.ID)
	if err != nil {
		return EvaluationResult{}, fmt.Errorf("list bin stock: %w", err)
	}

	result := EvaluationResult{BinCode: bin.BinCode, Temperature: temperature, QuarantinedBatches: []string{}}
	seen := map[string]bool{}
	for _, rec := range records {
		product, err := s.products.GetProduct(ctx, rec.ProductID)
		if err != nil {
			return EvaluationResult{}, fmt.Errorf("resolve product %d: %w", rec.ProductID, err)
		}
		if !product.RequiresColdChain {
			continue
		}
		limit := s.defaultMaxTemp
		if product.MaxTemp != nil {
			limit = *product.MaxTemp
		}
		if temperature <= limit {
			continue
		}
		if rec.IsQuarantined {
			continue
		}
		reason := fmt.Sprintf("Temp Spike: %.1f (Limit: %.1f)", temperature, limit)
		if err := s.stock.Quarantine(ctx, rec.StockRecordID, reason); err != nil {
			return EvaluationResult{}, fmt.Errorf("quarantine record %d: %w", rec.StockRecordID, err)
		}
		if s.metrics != nil {
			s.metrics.QuarantineEvent()
		}
		s.logger.Warn("cold chain breach",
			slog.String("bin", bin.BinCode),
			slog.String("batch", rec.BatchNumber),
			slog.Float64("temperature", temperature),
			slog.Float64("limit", limit),
		)
		if !seen[rec.BatchNumber] {
			seen[rec.BatchNumber] = true
			result.QuarantinedBatches = append(result.QuarantinedBatches, rec.BatchNumber)
		}
	}
	return result, nil
}
