package stock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mcclellann/imarisha/pkg/apperr"
	"github.com/mcclellann/imarisha/pkg/models"
	"github.com/mcclellann/imarisha/pkg/store"
	"github.com/mcclellann/imarisha/pkg/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const staff = int64(8)

func ptr(v int64) *int64 { return &v }

func newStock(t *testing.T) (*Ledger, *store.SQLStore) {
	s := storetest.New(t)
	return NewLedger(s, storetest.Logger()), s
}

// assertReplays checks that the product's movements sum to its stock.
func assertReplays(t *testing.T, s store.Store, productID int64) {
	t.Helper()
	ctx := context.Background()
	p, err := s.GetProduct(ctx, productID)
	require.NoError(t, err)
	mvs, err := s.ListMovements(ctx, store.MovementFilter{ProductID: productID, Cursor: store.Cursor{Limit: store.MaxPageSize}})
	require.NoError(t, err)
	var sum int64
	for _, m := range mvs {
		sum += m.Kind.Signed(m.Quantity)
	}
	assert.Equal(t, p.StockQuantity, sum, "movements should replay to stock")
	assert.GreaterOrEqual(t, p.StockQuantity, int64(0))
}

func TestMoveInAndOut(t *testing.T) {
	l, s := newStock(t)
	ctx := context.Background()
	p := storetest.NewProduct(t, s, "Solar lamp", "2000", 5)

	_, err := l.Move(ctx, MovementRequest{ProductID: p.ID, Kind: models.MovementIn, Quantity: 10, StaffID: staff})
	require.NoError(t, err)
	_, err = l.Move(ctx, MovementRequest{ProductID: p.ID, Kind: models.MovementOut, Quantity: 12, StaffID: staff})
	require.NoError(t, err)
	_, err = l.Move(ctx, MovementRequest{ProductID: p.ID, Kind: models.MovementAdjustment, Quantity: 2, Note: "count correction", StaffID: staff})
	require.NoError(t, err)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.StockQuantity)
	assertReplays(t, s, p.ID)
}

func TestOutboundBeyondStockFails(t *testing.T) {
	l, s := newStock(t)
	ctx := context.Background()
	p := storetest.NewProduct(t, s, "Radio", "1000", 3)

	for _, kind := range []models.MovementKind{models.MovementOut, models.MovementTransfer} {
		_, err := l.Move(ctx, MovementRequest{ProductID: p.ID, Kind: kind, Quantity: 4, StaffID: staff})
		assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	}

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.StockQuantity)
	assertReplays(t, s, p.ID)
}

func TestMoveValidation(t *testing.T) {
	l, s := newStock(t)
	ctx := context.Background()
	p := storetest.NewProduct(t, s, "Jiko", "1500", 3)

	_, err := l.Move(ctx, MovementRequest{ProductID: p.ID, Kind: "gift", Quantity: 1, StaffID: staff})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = l.Move(ctx, MovementRequest{ProductID: p.ID, Kind: models.MovementIn, Quantity: 0, StaffID: staff})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = l.Move(ctx, MovementRequest{ProductID: 404, Kind: models.MovementIn, Quantity: 1, StaffID: staff})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestBranchScopedMovement(t *testing.T) {
	l, s := newStock(t)
	ctx := context.Background()
	p := storetest.NewProduct(t, s, "Water tank", "9000", 20)
	branch := ptr(4)

	_, err := l.Move(ctx, MovementRequest{ProductID: p.ID, BranchID: branch, Kind: models.MovementOut, Quantity: 1, StaffID: staff})
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock, "no branch row yet")

	_, err = l.Move(ctx, MovementRequest{ProductID: p.ID, BranchID: branch, Kind: models.MovementIn, Quantity: 6, StaffID: staff})
	require.NoError(t, err)
	_, err = l.Move(ctx, MovementRequest{ProductID: p.ID, BranchID: branch, Kind: models.MovementOut, Quantity: 7, StaffID: staff})
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	_, err = l.Move(ctx, MovementRequest{ProductID: p.ID, BranchID: branch, Kind: models.MovementOut, Quantity: 2, StaffID: staff})
	require.NoError(t, err)

	inv, err := l.BranchInventory(ctx, 4)
	require.NoError(t, err)
	require.Len(t, inv, 1)
	assert.Equal(t, int64(4), inv[0].StockQuantity)
	assert.Equal(t, p.LowStockThreshold, inv[0].LowStockThreshold)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(24), got.StockQuantity)
	assertReplays(t, s, p.ID)

	mvs, err := l.Movements(ctx, store.MovementFilter{BranchID: 4})
	require.NoError(t, err)
	assert.Len(t, mvs, 2)
}

// assertAllocated checks that the product's branch rows never claim more
// than its total.
func assertAllocated(t *testing.T, s store.Store, productID int64) {
	t.Helper()
	ctx := context.Background()
	p, err := s.GetProduct(ctx, productID)
	require.NoError(t, err)
	allocated, err := s.AllocatedStock(ctx, productID)
	require.NoError(t, err)
	assert.LessOrEqual(t, allocated, p.StockQuantity, "branch rows exceed product total")
}

func TestUnscopedOutboundLeavesBranchStock(t *testing.T) {
	l, s := newStock(t)
	ctx := context.Background()
	p := storetest.NewProduct(t, s, "Maize sheller", "4000", 0)
	branch := ptr(1)

	_, err := l.Move(ctx, MovementRequest{ProductID: p.ID, BranchID: branch, Kind: models.MovementIn, Quantity: 10, StaffID: staff})
	require.NoError(t, err)
	assertAllocated(t, s, p.ID)

	_, err = l.Move(ctx, MovementRequest{ProductID: p.ID, Kind: models.MovementOut, Quantity: 10, StaffID: staff})
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock, "all stock is held by branch 1")
	assertAllocated(t, s, p.ID)

	_, err = l.Move(ctx, MovementRequest{ProductID: p.ID, Kind: models.MovementIn, Quantity: 5, StaffID: staff})
	require.NoError(t, err)
	_, err = l.Move(ctx, MovementRequest{ProductID: p.ID, Kind: models.MovementTransfer, Quantity: 6, StaffID: staff})
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	_, err = l.Move(ctx, MovementRequest{ProductID: p.ID, Kind: models.MovementOut, Quantity: 5, StaffID: staff})
	require.NoError(t, err)
	assertAllocated(t, s, p.ID)

	_, err = l.Move(ctx, MovementRequest{ProductID: p.ID, BranchID: branch, Kind: models.MovementOut, Quantity: 1, StaffID: staff})
	require.NoError(t, err)
	assertAllocated(t, s, p.ID)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.StockQuantity)
	row, err := s.GetBranchStock(ctx, 1, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9), row.StockQuantity)
	assertReplays(t, s, p.ID)
}

func TestConcurrentOutboundNeverGoesNegative(t *testing.T) {
	l, s := newStock(t)
	ctx := context.Background()
	p := storetest.NewProduct(t, s, "Bicycle", "12000", 6)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Move(ctx, MovementRequest{ProductID: p.ID, Kind: models.MovementOut, Quantity: 1, StaffID: staff})
		}()
	}
	wg.Wait()

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.StockQuantity)
	assertReplays(t, s, p.ID)
}

func TestRestock(t *testing.T) {
	l, s := newStock(t)
	ctx := context.Background()
	p := storetest.NewProduct(t, s, "Sewing machine", "15000", 0)
	l.SetClock(func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) })

	mv, err := l.Restock(ctx, RestockRequest{ProductID: p.ID, SupplierID: ptr(3), Quantity: 15, StaffID: staff})
	require.NoError(t, err)
	assert.Equal(t, models.MovementIn, mv.Kind)
	assert.Equal(t, "RESTOCK-20250102030405", mv.ReferenceNumber)
	require.NotNil(t, mv.SupplierID)
	assert.Equal(t, int64(3), *mv.SupplierID)
	assertReplays(t, s, p.ID)
}

func TestStockReports(t *testing.T) {
	l, s := newStock(t)
	ctx := context.Background()
	plenty := storetest.NewProduct(t, s, "Plenty", "100", 50)
	low := storetest.NewProduct(t, s, "Low", "100", 8)
	critical := storetest.NewProduct(t, s, "Critical", "100", 2)

	lows, err := l.LowStockReport(ctx, 0)
	require.NoError(t, err)
	levels := map[int64]Level{}
	for _, a := range lows {
		levels[a.Product.ID] = a.Level
	}
	assert.NotContains(t, levels, plenty.ID)
	assert.Equal(t, LevelLow, levels[low.ID])
	assert.Equal(t, LevelCritical, levels[critical.ID])

	crits, err := l.CriticalStockReport(ctx, 0)
	require.NoError(t, err)
	require.Len(t, crits, 1)
	assert.Equal(t, critical.ID, crits[0].Product.ID)
	assert.Equal(t, critical.CriticalStockThreshold, crits[0].Threshold)

	_, err = l.Move(ctx, MovementRequest{ProductID: plenty.ID, BranchID: ptr(2), Kind: models.MovementIn, Quantity: 3, StaffID: staff})
	require.NoError(t, err)
	branchLows, err := l.LowStockReport(ctx, 2)
	require.NoError(t, err)
	require.Len(t, branchLows, 1)
	assert.Equal(t, plenty.ID, branchLows[0].Product.ID)
	assert.Equal(t, LevelCritical, branchLows[0].Level)
	assert.Equal(t, int64(3), branchLows[0].Quantity)

	branchCrits, err := l.CriticalStockReport(ctx, 2)
	require.NoError(t, err)
	require.Len(t, branchCrits, 1)
	assert.Equal(t, plenty.ID, branchCrits[0].Product.ID)
	require.NotNil(t, branchCrits[0].BranchID)
	assert.Equal(t, int64(2), *branchCrits[0].BranchID)
}
