package coldchain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pharmaos/pharmaos/internal/ledger"
	"github.com/pharmaos/pharmaos/internal/masterdata"
)

type stubBins map[string]masterdata.Bin

func (s stubBins) GetBinByCode(ctx context.Context, code string) (masterdata.Bin, error) {
	b, ok := s[code]
	if !ok {
		return masterdata.Bin{}, masterdata.ErrNotFound
	}
	return b, nil
}

func (s stubBins) GetBin(ctx context.Context, id int64) (masterdata.Bin, error) {
	for _, b := range s {
		if b.ID == id {
			return b, nil
		}
	}
	return masterdata.Bin{}, masterdata.ErrNotFound
}

type stubProducts map[int64]masterdata.Product

func (s stubProducts) GetProduct(ctx context.Context, id int64) (masterdata.Product, error) {
	p, ok := s[id]
	if !ok {
		return masterdata.Product{}, masterdata.ErrNotFound
	}
	return p, nil
}

type stubStock struct {
	records     map[int64][]ledger.BinStock // keyed by bin id
	quarantined map[int64]string            // record id -> reason
}

func (s *stubStock) ListByBin(ctx context.Context, binID int64) ([]ledger.BinStock, error) {
	return s.records[binID], nil
}

func (s *stubStock) Quarantine(ctx context.Context, stockRecordID int64, reason string) error {
	if s.quarantined == nil {
		s.quarantined = map[int64]string{}
	}
	s.quarantined[stockRecordID] = reason
	return nil
}

func temp(v float64) *float64 { return &v }

func coldFixture() (*Service, *stubStock) {
	bins := stubBins{"C-01-01": {ID: 1, BinCode: "C-01-01", IsColdStorage: true}}
	products := stubProducts{
		1: {ID: 1, Name: "Insulin Pen", RequiresColdChain: true},               // falls back to the default ceiling
		2: {ID: 2, Name: "Vaccine Vial", RequiresColdChain: true, MaxTemp: temp(5.0)},
		3: {ID: 3, Name: "Paracetamol", RequiresColdChain: false},
	}
	stock := &stubStock{records: map[int64][]ledger.BinStock{
		1: {
			{StockRecordID: 10, BatchNumber: "INS-1", ProductID: 1, Quantity: 40},
			{StockRecordID: 11, BatchNumber: "VAC-1", ProductID: 2, Quantity: 25},
			{StockRecordID: 12, BatchNumber: "PARA-1", ProductID: 3, Quantity: 100},
		},
	}}
	return NewService(nil, bins, products, stock, 0), stock
}

func TestEvaluateQuarantinesOnBreach(t *testing.T) {
	svc, stock := coldFixture()

	result, err := svc.Evaluate(context.Background(), "C-01-01", 12.0)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"INS-1", "VAC-1"}, result.QuarantinedBatches)

	require.Equal(t, "Temp Spike: 12.0 (Limit: 8.0)", stock.quarantined[10])
	require.Equal(t, "Temp Spike: 12.0 (Limit: 5.0)", stock.quarantined[11])
	_, touched := stock.quarantined[12]
	require.False(t, touched, "non-cold-chain stock must never be evaluated")
}

func TestEvaluateRespectsPerProductCeiling(t *testing.T) {
	svc, stock := coldFixture()

	// 6.0 exceeds the vaccine's 5.0 ceiling but not the 8.0 default.
	result, err := svc.Evaluate(context.Background(), "C-01-01", 6.0)
	require.NoError(t, err)
	require.Equal(t, []string{"VAC-1"}, result.QuarantinedBatches)
	require.Len(t, stock.quarantined, 1)
}

func TestEvaluateBelowThresholdTouchesNothing(t *testing.T) {
	svc, stock := coldFixture()

	result, err := svc.Evaluate(context.Background(), "C-01-01", 4.5)
	require.NoError(t, err)
	require.Empty(t, result.QuarantinedBatches)
	require.Empty(t, stock.quarantined)
}

func TestEvaluateSkipsAlreadyQuarantinedRecords(t *testing.T) {
	svc, stock := coldFixture()
	stock.records[1][0].IsQuarantined = true

	result, err := svc.Evaluate(context.Background(), "C-01-01", 12.0)
	require.NoError(t, err)
	require.Equal(t, []string{"VAC-1"}, result.QuarantinedBatches)
}

func TestEvaluateUnknownBin(t *testing.T) {
	svc, _ := coldFixture()

	_, err := svc.Evaluate(context.Background(), "Z-99-99", 10.0)
	require.ErrorIs(t, err, masterdata.ErrNotFound)
}
