package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
)

// RepositoryPort exposes the aggregation queries we rely on.
type RepositoryPort interface {
	ProductUsage(ctx context.Context) ([]ProductUsage, error)
}

// Service coordinates insight evaluation with the cache layer.
type Service struct {
	repo  RepositoryPort
	cache *Cache
}

// NewService wires a RepositoryPort with a Cache helper.
func NewService(repo RepositoryPort, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// Insights evaluates the insight rules over current usage, served from
// cache when warm.
func (s *Service) Insights(ctx context.Context) ([]Insight, error) {
	key, err := s.cache.BuildKey(ctx, "analytics", "insights")
	if err != nil {
		return nil, err
	}
	var insights []Insight
	err = s.cache.FetchJSON(ctx, key, &insights, func(ctx context.Context) (interface{}, error) {
		usage, err := s.repo.ProductUsage(ctx)
		if err != nil {
			return nil, err
		}
		return evaluate(usage), nil
	})
	if err != nil {
		return nil, err
	}
	return insights, nil
}

// Invalidate bumps the cache version after stock-changing operations.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// StockChanged is the hook the stock ledger calls after a committed
// mutation. A failed bump only costs one stale TTL window, so the error
// is logged rather than propagated into the write path.
func (s *Service) StockChanged(ctx context.Context) {
	if err := s.Invalidate(ctx); err != nil {
		slog.Default().Warn("analytics cache invalidate", slog.Any("error", err))
	}
}

// evaluate applies the rules in priority order, one insight per product:
// projected stockout first, then the no-history fallbacks.
func evaluate(usage []ProductUsage) []Insight {
	insights := make([]Insight, 0)
	for _, u := range usage {
		switch {
		case u.TotalSold > 0:
			burn := float64(u.TotalSold) / burnWindowDays
			cover := float64(u.OnHand) / burn
			if cover < stockoutHorizonDays {
				rounded := math.Round(cover*10) / 10
				insights = append(insights, Insight{
					ProductID:   u.ProductID,
					ProductName: u.ProductName,
					SKU:         u.SKU,
					Type:        InsightStockoutRisk,
					OnHand:      u.OnHand,
					DaysOfCover: &rounded,
					Message:     fmt.Sprintf("%s will run out in %.1f days at the current rate", u.ProductName, rounded),
				})
			}
		case u.OnHand > deadStockThreshold:
			insights = append(insights, Insight{
				ProductID:   u.ProductID,
				ProductName: u.ProductName,
				SKU:         u.SKU,
				Type:        InsightDeadStock,
				OnHand:      u.OnHand,
				Message:     fmt.Sprintf("%s holds %d units with no sales", u.ProductName, u.OnHand),
			})
		case u.OnHand < lowStockThreshold:
			insights = append(insights, Insight{
				ProductID:   u.ProductID,
				ProductName: u.ProductName,
				SKU:         u.SKU,
				Type:        InsightLowStock,
				OnHand:      u.OnHand,
				Message:     fmt.Sprintf("%s is down to %d units", u.ProductName, u.OnHand),
			})
		}
	}
	return insights
}
