package inventory

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/meatshop-backend/internal/domain/product"
	"github.com/your-org/meatshop-backend/internal/pkg/apperr"
	"github.com/your-org/meatshop-backend/internal/pkg/clock"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var ledgerNow = time.Date(2026, 3, 14, 7, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T) (*Ledger, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&product.Category{}, &product.Product{}, &StockMovement{}, &StockAlert{}))

	logger, _ := test.NewNullLogger()
	return NewLedger(db, clock.NewManual(ledgerNow), logger), db
}

func seedProduct(t *testing.T, db *gorm.DB, sku string, stock int, tracked bool) *product.Product {
	t.Helper()
	p := &product.Product{
		SKU:               sku,
		Name:              "Product " + sku,
		Slug:              sku,
		Unit:              "kg",
		Price:             45000,
		IsActive:          true,
		TrackStock:        tracked,
		StockQuantity:     stock,
		LowStockThreshold: 2,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func stockOf(t *testing.T, db *gorm.DB, id uint) (int, int) {
	t.Helper()
	var p product.Product
	require.NoError(t, db.First(&p, id).Error)
	return p.StockQuantity, p.ReservedStock
}

func TestLedger_ReserveReducesAvailability(t *testing.T) {
	ledger, db := newTestLedger(t)
	ctx := context.Background()
	p := seedProduct(t, db, "BEEF-1", 10, true)

	require.NoError(t, ledger.Reserve(ctx, p.ID, 4))

	available, err := ledger.AvailableStock(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, available)

	stock, reserved := stockOf(t, db, p.ID)
	assert.Equal(t, 10, stock)
	assert.Equal(t, 4, reserved)
}

func TestLedger_ReserveInsufficient(t *testing.T) {
	ledger, db := newTestLedger(t)
	ctx := context.Background()
	p := seedProduct(t, db, "BEEF-2", 3, true)

	err := ledger.Reserve(ctx, p.ID, 5)

	var insufficient *apperr.InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, p.ID, insufficient.ProductID)
	assert.Equal(t, 5, insufficient.Requested)
	assert.Equal(t, 3, insufficient.Available)

	_, reserved := stockOf(t, db, p.ID)
	assert.Zero(t, reserved)
}

func TestLedger_RejectsNonPositiveQuantity(t *testing.T) {
	ledger, db := newTestLedger(t)
	ctx := context.Background()
	p := seedProduct(t, db, "BEEF-3", 3, true)

	var validation *apperr.ValidationError
	assert.True(t, errors.As(ledger.Reserve(ctx, p.ID, 0), &validation))
	assert.True(t, errors.As(ledger.Release(ctx, p.ID, -1), &validation))
	assert.True(t, errors.As(ledger.Commit(ctx, p.ID, 0), &validation))
}

func TestLedger_UnknownProduct(t *testing.T) {
	ledger, _ := newTestLedger(t)

	err := ledger.Reserve(context.Background(), 999, 1)
	assert.True(t, apperr.IsNotFound(err))
}

func TestLedger_UntrackedProductIsUnlimited(t *testing.T) {
	ledger, db := newTestLedger(t)
	ctx := context.Background()
	p := seedProduct(t, db, "LONGGANISA", 0, false)

	require.NoError(t, ledger.Reserve(ctx, p.ID, 500))
	require.NoError(t, ledger.Commit(ctx, p.ID, 500))

	available, err := ledger.AvailableStock(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, product.UnlimitedStock, available)

	ok, err := ledger.CanFulfill(ctx, p.ID, 1_000_000)
	require.NoError(t, err)
	assert.True(t, ok)

	stock, reserved := stockOf(t, db, p.ID)
	assert.Zero(t, stock)
	assert.Zero(t, reserved)
}

func TestLedger_ReleaseClampsAtZero(t *testing.T) {
	ledger, db := newTestLedger(t)
	ctx := context.Background()
	p := seedProduct(t, db, "PORK-1", 10, true)

	require.NoError(t, ledger.Reserve(ctx, p.ID, 2))
	require.NoError(t, ledger.Release(ctx, p.ID, 5))

	stock, reserved := stockOf(t, db, p.ID)
	assert.Equal(t, 10, stock)
	assert.Zero(t, reserved)
}

func TestLedger_CommitDeductsStockAndReservation(t *testing.T) {
	ledger, db := newTestLedger(t)
	ctx := context.Background()
	p := seedProduct(t, db, "PORK-2", 10, true)

	require.NoError(t, ledger.Reserve(ctx, p.ID, 3))
	require.NoError(t, ledger.Commit(ctx, p.ID, 3))

	stock, reserved := stockOf(t, db, p.ID)
	assert.Equal(t, 7, stock)
	assert.Zero(t, reserved)
}

func TestLedger_CommitBeyondReservation(t *testing.T) {
	ledger, db := newTestLedger(t)
	ctx := context.Background()
	p := seedProduct(t, db, "PORK-3", 10, true)

	require.NoError(t, ledger.Reserve(ctx, p.ID, 1))

	err := ledger.Commit(ctx, p.ID, 2)
	assert.ErrorIs(t, err, ErrReservationMismatch)

	stock, reserved := stockOf(t, db, p.ID)
	assert.Equal(t, 10, stock)
	assert.Equal(t, 1, reserved)
}

func TestLedger_CommitRaisesSingleLowStockAlert(t *testing.T) {
	ledger, db := newTestLedger(t)
	ctx := context.Background()
	p := seedProduct(t, db, "CHICKEN-1", 4, true)

	require.NoError(t, ledger.Reserve(ctx, p.ID, 2))
	require.NoError(t, ledger.Commit(ctx, p.ID, 2))
	require.NoError(t, ledger.Reserve(ctx, p.ID, 2))
	require.NoError(t, ledger.Commit(ctx, p.ID, 2))

	alerts, err := ledger.GetOpenAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, p.ID, alerts[0].ProductID)
	assert.Equal(t, AlertTypeLowStock, alerts[0].AlertType)
	assert.True(t, ledgerNow.Equal(alerts[0].CreatedAt))

	require.NoError(t, ledger.ResolveAlert(ctx, alerts[0].ID))
	assert.True(t, apperr.IsNotFound(ledger.ResolveAlert(ctx, alerts[0].ID)))

	var resolved StockAlert
	require.NoError(t, db.First(&resolved, alerts[0].ID).Error)
	assert.True(t, resolved.IsResolved)
	require.NotNil(t, resolved.ResolvedAt)
	assert.True(t, ledgerNow.Equal(*resolved.ResolvedAt))

	alerts, err = ledger.GetOpenAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestLedger_Adjust(t *testing.T) {
	ledger, db := newTestLedger(t)
	ctx := context.Background()
	p := seedProduct(t, db, "BEEF-4", 10, true)
	require.NoError(t, ledger.Reserve(ctx, p.ID, 4))

	t.Run("records inbound movement", func(t *testing.T) {
		movement, err := ledger.Adjust(ctx, p.ID, 5, "delivery", 1)
		require.NoError(t, err)
		assert.Equal(t, MovementTypeInbound, movement.MovementType)
		assert.Equal(t, 10, movement.PreviousQuantity)
		assert.Equal(t, 15, movement.NewQuantity)
		assert.Equal(t, 4, movement.ReservedQuantity)
	})

	t.Run("records outbound movement", func(t *testing.T) {
		movement, err := ledger.Adjust(ctx, p.ID, -3, "spoilage", 1)
		require.NoError(t, err)
		assert.Equal(t, MovementTypeOutbound, movement.MovementType)
		assert.Equal(t, 12, movement.NewQuantity)
	})

	t.Run("cannot drop below reserved", func(t *testing.T) {
		_, err := ledger.Adjust(ctx, p.ID, -9, "count correction", 1)
		var validation *apperr.ValidationError
		require.True(t, errors.As(err, &validation))

		stock, reserved := stockOf(t, db, p.ID)
		assert.Equal(t, 12, stock)
		assert.Equal(t, 4, reserved)
	})

	t.Run("requires delta and reason", func(t *testing.T) {
		_, err := ledger.Adjust(ctx, p.ID, 0, "noop", 1)
		assert.Error(t, err)
		_, err = ledger.Adjust(ctx, p.ID, 1, "", 1)
		assert.Error(t, err)
	})

	movements, err := ledger.GetMovements(ctx, p.ID, 10)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	assert.Equal(t, "spoilage", movements[0].Reason)
	assert.Equal(t, "delivery", movements[1].Reason)
}

func TestLedger_StockLevel(t *testing.T) {
	ledger, db := newTestLedger(t)
	ctx := context.Background()
	p := seedProduct(t, db, "BEEF-5", 5, true)
	require.NoError(t, ledger.Reserve(ctx, p.ID, 3))

	level, err := ledger.StockLevel(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, level.StockQuantity)
	assert.Equal(t, 3, level.ReservedStock)
	assert.Equal(t, 2, level.Available)
	assert.True(t, level.LowStock)
}

func TestLedger_ConcurrentReservationsNeverOversell(t *testing.T) {
	ledger, db := newTestLedger(t)
	ctx := context.Background()
	p := seedProduct(t, db, "BEEF-6", 5, true)

	const buyers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		refused   int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ledger.Reserve(ctx, p.ID, 1)
			mu.Lock()
			defer mu.Unlock()
			var insufficient *apperr.InsufficientStockError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &insufficient):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, buyers-5, refused)

	stock, reserved := stockOf(t, db, p.ID)
	assert.Equal(t, 5, stock)
	assert.Equal(t, 5, reserved)
}

func TestLedger_RandomSequenceKeepsInvariants(t *testing.T) {
	ledger, db := newTestLedger(t)
	ctx := context.Background()
	p := seedProduct(t, db, "PORK-4", 20, true)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		qty := rng.Intn(4) + 1
		switch rng.Intn(4) {
		case 0:
			_ = ledger.Reserve(ctx, p.ID, qty)
		case 1:
			_ = ledger.Release(ctx, p.ID, qty)
		case 2:
			_ = ledger.Commit(ctx, p.ID, qty)
		case 3:
			delta := qty
			if rng.Intn(2) == 0 {
				delta = -qty
			}
			_, _ = ledger.Adjust(ctx, p.ID, delta, "count", 1)
		}

		stock, reserved := stockOf(t, db, p.ID)
		require.GreaterOrEqual(t, stock, 0)
		require.GreaterOrEqual(t, reserved, 0)
		require.LessOrEqual(t, reserved, stock, "step %d", i)
	}
}
