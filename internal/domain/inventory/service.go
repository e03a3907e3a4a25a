// internal/domain/inventory/service.go
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/your-org/meatshop-backend/internal/domain/product"
	"github.com/your-org/meatshop-backend/internal/pkg/apperr"
	"github.com/your-org/meatshop-backend/internal/pkg/clock"
	"gorm.io/gorm"
)

// ErrReservationMismatch means a commit asked for more units than are reserved
var ErrReservationMismatch = errors.New("commit exceeds reserved stock")

// Ledger is the single writer of product stock columns.
//
// Every mutation is a conditional UPDATE, so the availability check and the
// increment happen in one statement and concurrent reservations on the same
// row serialize in the database. The mutating methods are not idempotent;
// callers gate them on order state.
type Ledger struct {
	db     *gorm.DB
	clock  clock.Clock
	logger logrus.FieldLogger
}

// NewLedger creates a new stock ledger
func NewLedger(db *gorm.DB, clk clock.Clock, logger logrus.FieldLogger) *Ledger {
	return &Ledger{
		db:     db,
		clock:  clk,
		logger: logger,
	}
}

// WithTx returns a ledger bound to an open transaction
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	return &Ledger{db: tx, clock: l.clock, logger: l.logger}
}

// AvailableStock returns stock_quantity - reserved_stock, or UnlimitedStock for untracked products
func (l *Ledger) AvailableStock(ctx context.Context, productID uint) (int, error) {
	p, err := l.loadProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	return p.AvailableStock(), nil
}

// CanFulfill checks whether qty more units can be promised right now
func (l *Ledger) CanFulfill(ctx context.Context, productID uint, qty int) (bool, error) {
	p, err := l.loadProduct(ctx, productID)
	if err != nil {
		return false, err
	}
	return p.CanFulfill(qty), nil
}

// StockLevel returns the current stock columns of a product
func (l *Ledger) StockLevel(ctx context.Context, productID uint) (*StockLevel, error) {
	p, err := l.loadProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &StockLevel{
		ProductID:     p.ID,
		TrackStock:    p.TrackStock,
		StockQuantity: p.StockQuantity,
		ReservedStock: p.ReservedStock,
		Available:     p.AvailableStock(),
		LowStock:      p.IsLowStock(),
	}, nil
}

// Reserve promises qty units of a tracked product
func (l *Ledger) Reserve(ctx context.Context, productID uint, qty int) error {
	if qty <= 0 {
		return apperr.Invalid("quantity", "must be greater than zero")
	}

	p, err := l.loadProduct(ctx, productID)
	if err != nil {
		return err
	}
	if !p.TrackStock {
		return nil
	}

	result := l.db.WithContext(ctx).Model(&product.Product{}).
		Where("id = ? AND stock_quantity - reserved_stock >= ?", productID, qty).
		UpdateColumn("reserved_stock", gorm.Expr("reserved_stock + ?", qty))
	if result.Error != nil {
		return fmt.Errorf("failed to reserve stock: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		// Lost to a concurrent reservation or never had enough; report the fresh figure
		current, err := l.loadProduct(ctx, productID)
		if err != nil {
			return err
		}
		return &apperr.InsufficientStockError{
			ProductID: productID,
			Requested: qty,
			Available: current.AvailableStock(),
		}
	}

	return nil
}

// Release withdraws up to qty reserved units; reserved_stock never goes negative
func (l *Ledger) Release(ctx context.Context, productID uint, qty int) error {
	if qty <= 0 {
		return apperr.Invalid("quantity", "must be greater than zero")
	}

	p, err := l.loadProduct(ctx, productID)
	if err != nil {
		return err
	}
	if !p.TrackStock {
		return nil
	}

	result := l.db.WithContext(ctx).Model(&product.Product{}).
		Where("id = ?", productID).
		UpdateColumn("reserved_stock", gorm.Expr("CASE WHEN reserved_stock < ? THEN 0 ELSE reserved_stock - ? END", qty, qty))
	if result.Error != nil {
		return fmt.Errorf("failed to release stock: %w", result.Error)
	}

	return nil
}

// Commit turns qty reserved units into a sale, deducting physical stock
func (l *Ledger) Commit(ctx context.Context, productID uint, qty int) error {
	if qty <= 0 {
		return apperr.Invalid("quantity", "must be greater than zero")
	}

	p, err := l.loadProduct(ctx, productID)
	if err != nil {
		return err
	}
	if !p.TrackStock {
		return nil
	}

	result := l.db.WithContext(ctx).Model(&product.Product{}).
		Where("id = ? AND reserved_stock >= ? AND stock_quantity >= ?", productID, qty, qty).
		UpdateColumns(map[string]interface{}{
			"stock_quantity": gorm.Expr("stock_quantity - ?", qty),
			"reserved_stock": gorm.Expr("reserved_stock - ?", qty),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to commit stock: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("product %d, quantity %d (reserved %d): %w", productID, qty, p.ReservedStock, ErrReservationMismatch)
	}

	l.checkLowStock(ctx, productID)
	return nil
}

// Adjust applies a manual correction to physical stock and records it for audit.
// Reservations are left untouched; stock may not drop below what is reserved.
func (l *Ledger) Adjust(ctx context.Context, productID uint, delta int, reason string, actorID uint) (*StockMovement, error) {
	if delta == 0 {
		return nil, apperr.Invalid("delta", "must not be zero")
	}
	if reason == "" {
		return nil, apperr.Invalid("reason", "is required")
	}

	var movement *StockMovement
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txLedger := l.WithTx(tx)

		before, err := txLedger.loadProduct(ctx, productID)
		if err != nil {
			return err
		}

		result := tx.Model(&product.Product{}).
			Where("id = ? AND stock_quantity + ? >= reserved_stock AND stock_quantity + ? >= 0", productID, delta, delta).
			UpdateColumn("stock_quantity", gorm.Expr("stock_quantity + ?", delta))
		if result.Error != nil {
			return fmt.Errorf("failed to adjust stock: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperr.Invalid("delta", fmt.Sprintf("stock of %d cannot drop below reserved quantity %d", before.StockQuantity, before.ReservedStock))
		}

		after, err := txLedger.loadProduct(ctx, productID)
		if err != nil {
			return err
		}

		movementType := MovementTypeInbound
		if delta < 0 {
			movementType = MovementTypeOutbound
		}

		movement = &StockMovement{
			ProductID:        productID,
			MovementType:     movementType,
			Reason:           reason,
			Delta:            delta,
			PreviousQuantity: after.StockQuantity - delta,
			NewQuantity:      after.StockQuantity,
			ReservedQuantity: after.ReservedStock,
			CreatedBy:        actorID,
			CreatedAt:        l.clock.Now(),
		}
		if err := tx.Create(movement).Error; err != nil {
			return fmt.Errorf("failed to record movement: %w", err)
		}

		if delta < 0 {
			txLedger.checkLowStock(ctx, productID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{
		"product_id": productID,
		"actor_id":   actorID,
		"delta":      delta,
		"before":     movement.PreviousQuantity,
		"after":      movement.NewQuantity,
		"reason":     reason,
	}).Info("Stock adjusted")

	return movement, nil
}

// GetMovements returns the adjustment history of a product, newest first
func (l *Ledger) GetMovements(ctx context.Context, productID uint, limit int) ([]StockMovement, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var movements []StockMovement
	if err := l.db.WithContext(ctx).Where("product_id = ?", productID).
		Order("created_at DESC, id DESC").Limit(limit).Find(&movements).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve stock movements: %w", err)
	}
	return movements, nil
}

// GetOpenAlerts returns unresolved stock alerts
func (l *Ledger) GetOpenAlerts(ctx context.Context) ([]StockAlert, error) {
	var alerts []StockAlert
	if err := l.db.WithContext(ctx).Where("is_resolved = ?", false).
		Order("created_at DESC, id DESC").Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve stock alerts: %w", err)
	}
	return alerts, nil
}

// ResolveAlert marks a stock alert as handled
func (l *Ledger) ResolveAlert(ctx context.Context, alertID uint) error {
	now := l.clock.Now()
	result := l.db.WithContext(ctx).Model(&StockAlert{}).
		Where("id = ? AND is_resolved = ?", alertID, false).
		Updates(map[string]interface{}{"is_resolved": true, "resolved_at": now})
	if result.Error != nil {
		return fmt.Errorf("failed to resolve alert: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("stock alert", alertID)
	}
	return nil
}

func (l *Ledger) loadProduct(ctx context.Context, productID uint) (*product.Product, error) {
	var p product.Product
	if err := l.db.WithContext(ctx).Where("id = ?", productID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("product", productID)
		}
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	return &p, nil
}

// checkLowStock raises one unresolved alert per product when stock runs low
func (l *Ledger) checkLowStock(ctx context.Context, productID uint) {
	p, err := l.loadProduct(ctx, productID)
	if err != nil || !p.IsLowStock() {
		return
	}

	var existing int64
	if err := l.db.WithContext(ctx).Model(&StockAlert{}).
		Where("product_id = ? AND is_resolved = ?", productID, false).
		Count(&existing).Error; err != nil || existing > 0 {
		return
	}

	now := l.clock.Now()
	alert := StockAlert{ProductID: productID, AlertType: AlertTypeLowStock, CreatedAt: now, UpdatedAt: now}
	if p.AvailableStock() == 0 {
		alert.AlertType = AlertTypeOutOfStock
		alert.Message = fmt.Sprintf("Product %s is out of stock", p.SKU)
	} else {
		alert.Message = fmt.Sprintf("Product %s is running low (Available: %d, Threshold: %d)", p.SKU, p.AvailableStock(), p.LowStockThreshold)
	}

	if err := l.db.WithContext(ctx).Create(&alert).Error; err != nil {
		l.logger.WithError(err).WithField("product_id", productID).Warn("Failed to create stock alert")
	}
}
