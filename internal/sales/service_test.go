package sales

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pharmaos/pharmaos/internal/ledger"
)

type memoryOrderRepo struct {
	mu        sync.Mutex
	orders    map[int64]SalesOrder
	items     map[int64]SalesOrderItem
	nextOrder int64
	nextItem  int64
}

func newMemoryOrderRepo() *memoryOrderRepo {
	return &memoryOrderRepo{orders: map[int64]SalesOrder{}, items: map[int64]SalesOrderItem{}}
}

func (m *memoryOrderRepo) CreateOrder(ctx context.Context, order SalesOrder, items []SalesOrderItem) (SalesOrder, []SalesOrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextOrder++
	order.ID = m.nextOrder
	order.CreatedAt = time.Now()
	m.orders[order.ID] = order
	for i := range items {
		m.nextItem++
		items[i].ID = m.nextItem
		items[i].OrderID = order.ID
		m.items[items[i].ID] = items[i]
	}
	return order, items, nil
}

func (m *memoryOrderRepo) GetOrder(ctx context.Context, id int64) (SalesOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return SalesOrder{}, ErrNotFound
	}
	return o, nil
}

func (m *memoryOrderRepo) ListOrders(ctx context.Context, limit, offset int) ([]SalesOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SalesOrder
	for _, o := range m.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memoryOrderRepo) GetOrderItems(ctx context.Context, orderID int64) ([]SalesOrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SalesOrderItem
	for _, it := range m.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryOrderRepo) SetItemAllocation(ctx context.Context, itemID, batchID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[itemID]
	if !ok || it.AllocatedBatchID != nil {
		return ErrInvalidState
	}
	it.AllocatedBatchID = &batchID
	m.items[itemID] = it
	return nil
}

func (m *memoryOrderRepo) SetOrderStatus(ctx context.Context, orderID int64, status OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	m.orders[orderID] = o
	return nil
}

// fakeStock emulates the ledger's locked allocation transaction over an
// in-memory record set.
type fakeStock struct {
	mu      sync.Mutex
	records []ledger.AvailableStock
}

type fakeStockTx struct {
	stock     *fakeStock
	productID int64
	staged    map[int64]int64 // record id -> quantity after staged deducts
}

func (f *fakeStock) Allocate(ctx context.Context, productID int64, fn func(context.Context, ledger.AllocationTx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx := &fakeStockTx{stock: f, productID: productID, staged: map[int64]int64{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for i := range f.records {
		if qty, ok := tx.staged[f.records[i].StockRecordID]; ok {
			f.records[i].Quantity = qty
		}
	}
	return nil
}

func (t *fakeStockTx) ListAvailable(ctx context.Context) ([]ledger.AvailableStock, error) {
	var out []ledger.AvailableStock
	for _, rec := range t.stock.records {
		if qty, ok := t.staged[rec.StockRecordID]; ok {
			rec.Quantity = qty
		}
		if rec.Quantity > 0 {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiryDate.Equal(out[j].ExpiryDate) {
			return out[i].ExpiryDate.Before(out[j].ExpiryDate)
		}
		return out[i].StockRecordID < out[j].StockRecordID
	})
	return out, nil
}

func (t *fakeStockTx) Deduct(ctx context.Context, stockRecordID, quantity int64) error {
	for _, rec := range t.stock.records {
		if rec.StockRecordID != stockRecordID {
			continue
		}
		current := rec.Quantity
		if qty, ok := t.staged[stockRecordID]; ok {
			current = qty
		}
		if current < quantity {
			return ledger.ErrInsufficientStock
		}
		t.staged[stockRecordID] = current - quantity
		return nil
	}
	return ledger.ErrNotFound
}

func (f *fakeStock) quantity(recordID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.StockRecordID == recordID {
			return rec.Quantity
		}
	}
	return -1
}

func expiry(offset int) time.Time {
	return time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func fixture(records ...ledger.AvailableStock) (*Service, *memoryOrderRepo, *fakeStock) {
	repo := newMemoryOrderRepo()
	stock := &fakeStock{records: records}
	return NewService(nil, repo, stock, nil), repo, stock
}

func TestCreateOrderAllocatesFEFO(t *testing.T) {
	svc, repo, _ := fixture(
		ledger.AvailableStock{StockRecordID: 1, BatchID: 10, BatchNumber: "B-LATE", Quantity: 100, ExpiryDate: expiry(180)},
		ledger.AvailableStock{StockRecordID: 2, BatchID: 20, BatchNumber: "B-EARLY", Quantity: 100, ExpiryDate: expiry(30)},
	)

	order, report, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		CustomerName: "City Pharmacy",
		Items:        []OrderItemInput{{ProductID: 1, Quantity: 40}},
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeFull, report.Outcome)
	require.Equal(t, StatusAllocated, order.Status)
	require.Equal(t, "B-EARLY", report.Lines[0].BatchNumber)

	items, err := repo.GetOrderItems(context.Background(), order.ID)
	require.NoError(t, err)
	require.NotNil(t, items[0].AllocatedBatchID)
	require.Equal(t, int64(20), *items[0].AllocatedBatchID)
}

func TestCreateOrderNeverSplitsAcrossBatches(t *testing.T) {
	// 130 units exist in total but the soonest-expiring batch holds only 30.
	svc, repo, stock := fixture(
		ledger.AvailableStock{StockRecordID: 1, BatchID: 10, BatchNumber: "B-EARLY", Quantity: 30, ExpiryDate: expiry(30)},
		ledger.AvailableStock{StockRecordID: 2, BatchID: 20, BatchNumber: "B-LATE", Quantity: 100, ExpiryDate: expiry(180)},
	)

	order, report, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		CustomerName: "City Pharmacy",
		Items:        []OrderItemInput{{ProductID: 1, Quantity: 50}},
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeNone, report.Outcome)
	require.False(t, report.Lines[0].Allocated)
	require.Contains(t, report.Lines[0].Reason, "B-EARLY")

	o, err := repo.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, o.Status)
	require.Equal(t, int64(30), stock.quantity(1))
	require.Equal(t, int64(100), stock.quantity(2))
}

func TestCreateOrderOutOfStock(t *testing.T) {
	svc, _, _ := fixture()

	_, report, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		CustomerName: "City Pharmacy",
		Items:        []OrderItemInput{{ProductID: 1, Quantity: 10}},
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeNone, report.Outcome)
	require.Contains(t, report.Lines[0].Reason, "out of stock")
}

func TestCreateOrderPartialKeepsEarlierDeductions(t *testing.T) {
	svc, repo, stock := fixture(
		ledger.AvailableStock{StockRecordID: 1, BatchID: 10, BatchNumber: "B-100", Quantity: 60, ExpiryDate: expiry(30)},
	)

	order, report, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		CustomerName: "City Pharmacy",
		Items: []OrderItemInput{
			{ProductID: 1, Quantity: 40},
			{ProductID: 2, Quantity: 10},
		},
	})
	require.NoError(t, err)
	require.Equal(t, OutcomePartial, report.Outcome)
	require.True(t, report.Lines[0].Allocated)
	require.False(t, report.Lines[1].Allocated)

	// The first line's deduction survives the second line's failure.
	require.Equal(t, int64(20), stock.quantity(1))

	o, err := repo.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, o.Status)
}

func TestCreateOrderRejectsEmptyAndNonPositive(t *testing.T) {
	svc, _, _ := fixture()

	_, _, err := svc.CreateOrder(context.Background(), CreateOrderInput{CustomerName: "X"})
	require.ErrorIs(t, err, ErrEmptyOrder)

	_, _, err = svc.CreateOrder(context.Background(), CreateOrderInput{
		CustomerName: "X",
		Items:        []OrderItemInput{{ProductID: 1, Quantity: 0}},
	})
	require.ErrorIs(t, err, ledger.ErrInvalidQuantity)
}

func TestDispatchRequiresAllocatedOrder(t *testing.T) {
	svc, repo, _ := fixture(
		ledger.AvailableStock{StockRecordID: 1, BatchID: 10, BatchNumber: "B-100", Quantity: 50, ExpiryDate: expiry(30)},
	)
	ctx := context.Background()

	order, _, err := svc.CreateOrder(ctx, CreateOrderInput{
		CustomerName: "City Pharmacy",
		Items:        []OrderItemInput{{ProductID: 1, Quantity: 10}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusAllocated, order.Status)

	dispatched, err := svc.Dispatch(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDispatched, dispatched.Status)

	_, err = svc.Dispatch(ctx, order.ID)
	require.ErrorIs(t, err, ErrInvalidState)

	// A pending order cannot be dispatched either.
	require.NoError(t, repo.SetOrderStatus(ctx, order.ID, StatusPending))
	_, err = svc.Dispatch(ctx, order.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}
