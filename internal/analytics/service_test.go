package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type stubUsage struct {
	rows  []ProductUsage
	calls int
}

func (s *stubUsage) ProductUsage(ctx context.Context) ([]ProductUsage, error) {
	s.calls++
	return s.rows, nil
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestEvaluateRules(t *testing.T) {
	tests := []struct {
		name  string
		usage ProductUsage
		want  InsightType
		none  bool
	}{
		{
			name:  "stockout risk when cover under seven days",
			usage: ProductUsage{ProductID: 1, OnHand: 50, TotalSold: 300}, // 10/day -> 5 days
			want:  InsightStockoutRisk,
		},
		{
			name:  "healthy cover yields nothing",
			usage: ProductUsage{ProductID: 2, OnHand: 500, TotalSold: 300}, // 50 days
			none:  true,
		},
		{
			name:  "dead stock when huge pile never sells",
			usage: ProductUsage{ProductID: 3, OnHand: 600},
			want:  InsightDeadStock,
		},
		{
			name:  "low stock when thin with no history",
			usage: ProductUsage{ProductID: 4, OnHand: 10},
			want:  InsightLowStock,
		},
		{
			name:  "moderate unsold stock yields nothing",
			usage: ProductUsage{ProductID: 5, OnHand: 200},
			none:  true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := evaluate([]ProductUsage{tc.usage})
			if tc.none {
				require.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			require.Equal(t, tc.want, got[0].Type)
		})
	}
}

func TestEvaluateReportsDaysOfCover(t *testing.T) {
	got := evaluate([]ProductUsage{{ProductID: 1, ProductName: "Insulin Pen", OnHand: 30, TotalSold: 300}})
	require.Len(t, got, 1)
	require.NotNil(t, got[0].DaysOfCover)
	require.InDelta(t, 3.0, *got[0].DaysOfCover, 0.01)
}

func TestInsightsServedFromCache(t *testing.T) {
	repo := &stubUsage{rows: []ProductUsage{{ProductID: 1, ProductName: "X", OnHand: 10}}}
	svc := NewService(repo, newTestCache(t))
	ctx := context.Background()

	first, err := svc.Insights(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := svc.Insights(ctx)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, repo.calls)
}

func TestInvalidateForcesRebuild(t *testing.T) {
	repo := &stubUsage{rows: []ProductUsage{{ProductID: 1, ProductName: "X", OnHand: 10}}}
	svc := NewService(repo, newTestCache(t))
	ctx := context.Background()

	_, err := svc.Insights(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(ctx))

	_, err = svc.Insights(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, repo.calls)
}

func TestStockChangedDropsCachedInsights(t *testing.T) {
	repo := &stubUsage{rows: []ProductUsage{{ProductID: 1, ProductName: "X", OnHand: 10}}}
	svc := NewService(repo, newTestCache(t))
	ctx := context.Background()

	_, err := svc.Insights(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, repo.calls)

	svc.StockChanged(ctx)

	_, err = svc.Insights(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, repo.calls)
}
