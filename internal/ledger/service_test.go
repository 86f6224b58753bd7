package ledger

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pharmaos/pharmaos/internal/masterdata"
	_ "github.com/pharmaos/pharmaos/internal/testing/guard"
)

type memoryRepo struct {
	mu        sync.Mutex
	batches   map[int64]Batch
	stocks    map[int64]StockRecord
	nextBatch int64
	nextStock int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{batches: map[int64]Batch{}, stocks: map[int64]StockRecord{}}
}

// WithTx serialises callers on a mutex, standing in for row locks.
func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshotBatches := make(map[int64]Batch, len(m.batches))
	for k, v := range m.batches {
		snapshotBatches[k] = v
	}
	snapshotStocks := make(map[int64]StockRecord, len(m.stocks))
	for k, v := range m.stocks {
		snapshotStocks[k] = v
	}
	nb, ns := m.nextBatch, m.nextStock
	if err := fn(ctx, (*memoryTx)(m)); err != nil {
		m.batches, m.stocks = snapshotBatches, snapshotStocks
		m.nextBatch, m.nextStock = nb, ns
		return err
	}
	return nil
}

func (m *memoryRepo) GetBatch(ctx context.Context, id int64) (Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return Batch{}, ErrNotFound
	}
	return b, nil
}

func (m *memoryRepo) GetBatchByNumber(ctx context.Context, batchNumber string) (Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.batches {
		if b.BatchNumber == batchNumber {
			return b, nil
		}
	}
	return Batch{}, ErrNotFound
}

func (m *memoryRepo) availableLocked(productID int64) []AvailableStock {
	var out []AvailableStock
	for _, s := range m.stocks {
		b := m.batches[s.BatchID]
		if b.ProductID != productID || s.Quantity <= 0 || s.IsQuarantined {
			continue
		}
		out = append(out, AvailableStock{
			StockRecordID: s.ID,
			BatchID:       b.ID,
			BatchNumber:   b.BatchNumber,
			BinID:         s.BinID,
			Quantity:      s.Quantity,
			ExpiryDate:    b.ExpiryDate,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiryDate.Equal(out[j].ExpiryDate) {
			return out[i].ExpiryDate.Before(out[j].ExpiryDate)
		}
		return out[i].StockRecordID < out[j].StockRecordID
	})
	return out
}

func (m *memoryRepo) ListAvailable(ctx context.Context, productID int64) ([]AvailableStock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.availableLocked(productID), nil
}

func (m *memoryRepo) ListByBin(ctx context.Context, binID int64) ([]BinStock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []BinStock
	for _, s := range m.stocks {
		if s.BinID != binID {
			continue
		}
		b := m.batches[s.BatchID]
		out = append(out, BinStock{
			StockRecordID: s.ID,
			BatchID:       b.ID,
			BatchNumber:   b.BatchNumber,
			ProductID:     b.ProductID,
			Quantity:      s.Quantity,
			IsQuarantined: s.IsQuarantined,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StockRecordID < out[j].StockRecordID })
	return out, nil
}

func (m *memoryRepo) ListLiveStock(ctx context.Context) ([]StockView, error) {
	return nil, nil
}

type memoryTx memoryRepo

func (m *memoryTx) GetBatchByNumber(ctx context.Context, productID int64, batchNumber string) (Batch, error) {
	for _, b := range m.batches {
		if b.ProductID == productID && b.BatchNumber == batchNumber {
			return b, nil
		}
	}
	return Batch{}, ErrNotFound
}

func (m *memoryTx) InsertBatch(ctx context.Context, batch Batch) (int64, error) {
	m.nextBatch++
	batch.ID = m.nextBatch
	m.batches[batch.ID] = batch
	return batch.ID, nil
}

func (m *memoryTx) GetStockForUpdate(ctx context.Context, batchID, binID int64) (StockRecord, error) {
	for _, s := range m.stocks {
		if s.BatchID == batchID && s.BinID == binID {
			return s, nil
		}
	}
	return StockRecord{}, ErrNotFound
}

func (m *memoryTx) GetStockByIDForUpdate(ctx context.Context, id int64) (StockRecord, error) {
	s, ok := m.stocks[id]
	if !ok {
		return StockRecord{}, ErrNotFound
	}
	return s, nil
}

func (m *memoryTx) InsertStock(ctx context.Context, record StockRecord) (int64, error) {
	m.nextStock++
	record.ID = m.nextStock
	m.stocks[record.ID] = record
	return record.ID, nil
}

func (m *memoryTx) SetStockQuantity(ctx context.Context, id, quantity int64) error {
	s, ok := m.stocks[id]
	if !ok {
		return ErrNotFound
	}
	s.Quantity = quantity
	m.stocks[id] = s
	return nil
}

func (m *memoryTx) SetStockQuarantine(ctx context.Context, id int64, reason string) error {
	s, ok := m.stocks[id]
	if !ok {
		return ErrNotFound
	}
	s.IsQuarantined = true
	s.QuarantineReason = &reason
	m.stocks[id] = s
	return nil
}

func (m *memoryTx) ListAvailableForUpdate(ctx context.Context, productID int64) ([]AvailableStock, error) {
	return (*memoryRepo)(m).availableLocked(productID), nil
}

type stubProducts map[int64]masterdata.Product

func (s stubProducts) GetProduct(ctx context.Context, id int64) (masterdata.Product, error) {
	p, ok := s[id]
	if !ok {
		return masterdata.Product{}, masterdata.ErrNotFound
	}
	return p, nil
}

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

func testFixture() (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	products := stubProducts{1: {ID: 1, SKU: "PARA-500", Name: "Paracetamol 500mg"}}
	bins := stubBins{
		"A-01-01": {ID: 1, BinCode: "A-01-01"},
		"C-01-01": {ID: 2, BinCode: "C-01-01", IsColdStorage: true},
	}
	return NewService(repo, products, bins, nil, nil), repo
}

func day(offset int) time.Time {
	return time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func TestReceiveCreatesBatchAndStock(t *testing.T) {
	svc, repo := testFixture()
	ctx := context.Background()

	res, err := svc.Receive(ctx, ReceiveInput{
		ProductID:     1,
		BatchNumber:   "B-100",
		ExpiryDate:    day(90),
		MRP:           decimal.NewFromInt(20),
		Quantity:      50,
		TargetBinCode: "A-01-01",
	})
	require.NoError(t, err)
	require.Equal(t, int64(50), res.NewQuantity)

	batch, err := repo.GetBatchByNumber(ctx, "B-100")
	require.NoError(t, err)
	require.Equal(t, int64(1), batch.ProductID)
}

func TestReceiveAggregatesSameBatchAndBin(t *testing.T) {
	svc, _ := testFixture()
	ctx := context.Background()

	in := ReceiveInput{ProductID: 1, BatchNumber: "B-100", ExpiryDate: day(90), Quantity: 50, TargetBinCode: "A-01-01"}
	first, err := svc.Receive(ctx, in)
	require.NoError(t, err)
	second, err := svc.Receive(ctx, in)
	require.NoError(t, err)

	require.Equal(t, first.StockRecordID, second.StockRecordID)
	require.Equal(t, int64(100), second.NewQuantity)

	avail, err := svc.ListAvailable(ctx, 1)
	require.NoError(t, err)
	require.Len(t, avail, 1)
	require.Equal(t, int64(100), avail[0].Quantity)
}

func TestReceivePreservesQuarantineFlag(t *testing.T) {
	svc, repo := testFixture()
	ctx := context.Background()

	res, err := svc.Receive(ctx, ReceiveInput{ProductID: 1, BatchNumber: "B-100", ExpiryDate: day(90), Quantity: 50, TargetBinCode: "C-01-01"})
	require.NoError(t, err)
	require.NoError(t, svc.Quarantine(ctx, res.StockRecordID, "Temp Spike: 12.0 (Limit: 8.0)"))

	res, err = svc.Receive(ctx, ReceiveInput{ProductID: 1, BatchNumber: "B-100", ExpiryDate: day(90), Quantity: 25, TargetBinCode: "C-01-01"})
	require.NoError(t, err)
	require.Equal(t, int64(75), res.NewQuantity)

	record := repo.stocks[res.StockRecordID]
	require.True(t, record.IsQuarantined)
	require.NotNil(t, record.QuarantineReason)
}

func TestReceiveRejectsUnknownProductOrBin(t *testing.T) {
	svc, _ := testFixture()
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{ProductID: 99, BatchNumber: "B-1", ExpiryDate: day(30), Quantity: 10, TargetBinCode: "A-01-01"})
	require.ErrorIs(t, err, masterdata.ErrNotFound)

	_, err = svc.Receive(ctx, ReceiveInput{ProductID: 1, BatchNumber: "B-1", ExpiryDate: day(30), Quantity: 10, TargetBinCode: "Z-99-99"})
	require.ErrorIs(t, err, masterdata.ErrNotFound)
}

func TestReceiveRejectsNonPositiveQuantity(t *testing.T) {
	svc, _ := testFixture()
	_, err := svc.Receive(context.Background(), ReceiveInput{ProductID: 1, BatchNumber: "B-1", ExpiryDate: day(30), Quantity: 0, TargetBinCode: "A-01-01"})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestDeductInsufficientLeavesRecordUntouched(t *testing.T) {
	svc, repo := testFixture()
	ctx := context.Background()

	res, err := svc.Receive(ctx, ReceiveInput{ProductID: 1, BatchNumber: "B-100", ExpiryDate: day(90), Quantity: 30, TargetBinCode: "A-01-01"})
	require.NoError(t, err)

	err = svc.Deduct(ctx, res.StockRecordID, 31)
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, int64(30), repo.stocks[res.StockRecordID].Quantity)

	require.NoError(t, svc.Deduct(ctx, res.StockRecordID, 30))
	require.Equal(t, int64(0), repo.stocks[res.StockRecordID].Quantity)
}

func TestConcurrentDeductsNeverGoNegative(t *testing.T) {
	svc, repo := testFixture()
	ctx := context.Background()

	res, err := svc.Receive(ctx, ReceiveInput{ProductID: 1, BatchNumber: "B-100", ExpiryDate: day(90), Quantity: 10, TargetBinCode: "A-01-01"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.Deduct(ctx, res.StockRecordID, 1)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, ErrInsufficientStock)
		}
	}
	require.Equal(t, 10, succeeded)
	require.Equal(t, int64(0), repo.stocks[res.StockRecordID].Quantity)
}

func TestQuarantineExcludesStockFromAvailability(t *testing.T) {
	svc, _ := testFixture()
	ctx := context.Background()

	a, err := svc.Receive(ctx, ReceiveInput{ProductID: 1, BatchNumber: "B-100", ExpiryDate: day(30), Quantity: 40, TargetBinCode: "A-01-01"})
	require.NoError(t, err)
	_, err = svc.Receive(ctx, ReceiveInput{ProductID: 1, BatchNumber: "B-200", ExpiryDate: day(60), Quantity: 40, TargetBinCode: "A-01-01"})
	require.NoError(t, err)

	require.NoError(t, svc.Quarantine(ctx, a.StockRecordID, "damaged carton"))

	avail, err := svc.ListAvailable(ctx, 1)
	require.NoError(t, err)
	require.Len(t, avail, 1)
	require.Equal(t, "B-200", avail[0].BatchNumber)
}

func TestListAvailableOrdersByExpiryThenID(t *testing.T) {
	svc, _ := testFixture()
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{ProductID: 1, BatchNumber: "B-LATE", ExpiryDate: day(180), Quantity: 10, TargetBinCode: "A-01-01"})
	require.NoError(t, err)
	_, err = svc.Receive(ctx, ReceiveInput{ProductID: 1, BatchNumber: "B-EARLY", ExpiryDate: day(30), Quantity: 10, TargetBinCode: "A-01-01"})
	require.NoError(t, err)
	_, err = svc.Receive(ctx, ReceiveInput{ProductID: 1, BatchNumber: "B-MID", ExpiryDate: day(90), Quantity: 10, TargetBinCode: "A-01-01"})
	require.NoError(t, err)

	avail, err := svc.ListAvailable(ctx, 1)
	require.NoError(t, err)
	require.Len(t, avail, 3)
	require.Equal(t, "B-EARLY", avail[0].BatchNumber)
	require.Equal(t, "B-MID", avail[1].BatchNumber)
	require.Equal(t, "B-LATE", avail[2].BatchNumber)
}

func TestAllocateRollsBackOnCallbackError(t *testing.T) {
	svc, repo := testFixture()
	ctx := context.Background()

	res, err := svc.Receive(ctx, ReceiveInput{ProductID: 1, BatchNumber: "B-100", ExpiryDate: day(90), Quantity: 50, TargetBinCode: "A-01-01"})
	require.NoError(t, err)

	err = svc.Allocate(ctx, 1, func(ctx context.Context, tx AllocationTx) error {
		require.NoError(t, tx.Deduct(ctx, res.StockRecordID, 20))
		return ErrInsufficientStock
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, int64(50), repo.stocks[res.StockRecordID].Quantity)
}

type countingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (c *countingNotifier) StockChanged(context.Context) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *countingNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestCommittedMutationsFireChangeHook(t *testing.T) {
	svc, _ := testFixture()
	notifier := &countingNotifier{}
	svc.SetNotifier(notifier)
	ctx := context.Background()

	res, err := svc.Receive(ctx, ReceiveInput{ProductID: 1, BatchNumber: "B-100", ExpiryDate: day(90), Quantity: 10, TargetBinCode: "A-01-01"})
	require.NoError(t, err)
	require.Equal(t, 1, notifier.count())

	require.NoError(t, svc.Deduct(ctx, res.StockRecordID, 3))
	require.Equal(t, 2, notifier.count())

	require.NoError(t, svc.Quarantine(ctx, res.StockRecordID, "Temp Spike: 9.0 (Limit: 8.0)"))
	require.Equal(t, 3, notifier.count())
}

func TestFailedMutationsDoNotFireChangeHook(t *testing.T) {
	svc, _ := testFixture()
	notifier := &countingNotifier{}
	svc.SetNotifier(notifier)
	ctx := context.Background()

	res, err := svc.Receive(ctx, ReceiveInput{ProductID: 1, BatchNumber: "B-100", ExpiryDate: day(90), Quantity: 10, TargetBinCode: "A-01-01"})
	require.NoError(t, err)

	err = svc.Deduct(ctx, res.StockRecordID, 50)
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, 1, notifier.count(), "only the receipt fired the hook")

	err = svc.Allocate(ctx, 1, func(ctx context.Context, tx AllocationTx) error {
		return ErrInsufficientStock
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, 1, notifier.count())

	err = svc.Allocate(ctx, 1, func(ctx context.Context, tx AllocationTx) error {
		return tx.Deduct(ctx, res.StockRecordID, 5)
	})
	require.NoError(t, err)
	require.Equal(t, 2, notifier.count())
}
