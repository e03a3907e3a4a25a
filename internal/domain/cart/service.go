// internal/domain/cart/service.go
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/meatshop-backend/internal/domain/product"
	"github.com/your-org/meatshop-backend/internal/pkg/apperr"
	"gorm.io/gorm"
)

// Reconciler keeps carts consistent with live stock. Carts never hold
// reservations; quantities are validated on write and clamped on read.
type Reconciler struct {
	db     *gorm.DB
	logger logrus.FieldLogger
}

// NewReconciler creates a new cart reconciler
func NewReconciler(db *gorm.DB, logger logrus.FieldLogger) *Reconciler {
	return &Reconciler{
		db:     db,
		logger: logger,
	}
}

// WithTx returns a reconciler bound to an open transaction
func (r *Reconciler) WithTx(tx *gorm.DB) *Reconciler {
	return &Reconciler{db: tx, logger: r.logger}
}

// AddToCartRequest represents add to cart request
type AddToCartRequest struct {
	ProductID uint   `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
	Notes     string `json:"notes" binding:"max=500"`
}

// UpdateCartItemRequest represents update cart item request
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

// List returns the owner's lines priced from the live catalog. Lines asking
// for more than is available are clamped and the clamp is persisted; a
// failed clamp leaves the line as stored.
func (r *Reconciler) List(ctx context.Context, owner Owner) ([]CartLine, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	var lines []CartLine
	if err := owner.scope(r.db.WithContext(ctx)).Preload("Product").
		Order("id ASC").Find(&lines).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve cart: %w", err)
	}

	result := make([]CartLine, 0, len(lines))
	for _, line := range lines {
		if line.Product != nil && !line.Product.CanFulfill(line.Quantity) {
			clamped, err := r.clamp(ctx, &line)
			if err != nil {
				r.logger.WithError(err).WithFields(logrus.Fields{
					"cart_line_id": line.ID,
					"product_id":   line.ProductID,
				}).Warn("Failed to clamp cart line")
			} else if !clamped {
				continue
			}
		}

		line.price()
		result = append(result, line)
	}

	return result, nil
}

// Add puts qty more units of a product in the cart, summing with an existing line
func (r *Reconciler) Add(ctx context.Context, owner Owner, req *AddToCartRequest) (*CartLine, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if req.Quantity <= 0 {
		return nil, apperr.Invalid("quantity", "must be greater than zero")
	}

	db := r.db.WithContext(ctx)

	prod, err := r.activeProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	var line CartLine
	err = owner.scope(db).Where("product_id = ?", req.ProductID).First(&line).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := checkQuantity(prod, req.Quantity); err != nil {
			return nil, err
		}
		line = *owner.newLine(req.ProductID, req.Quantity, req.Notes)
		createErr := db.Create(&line).Error
		if createErr == nil {
			line.Product = prod
			line.price()
			return &line, nil
		}
		// A concurrent add created the line first; fall through and sum onto it.
		if err := owner.scope(db).Where("product_id = ?", req.ProductID).First(&line).Error; err != nil {
			return nil, fmt.Errorf("failed to add cart line: %w", createErr)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to retrieve cart line: %w", err)
	}

	if err := r.increment(db, prod, &line, req); err != nil {
		return nil, err
	}

	line.Product = prod
	line.price()
	return &line, nil
}

// increment adds to the stored quantity in a single statement so concurrent
// adds never overwrite each other. The guard keeps the summed quantity within
// stock and the order limit.
func (r *Reconciler) increment(db *gorm.DB, prod *product.Product, line *CartLine, req *AddToCartRequest) error {
	ceiling := prod.AvailableStock()
	if !prod.TrackStock {
		ceiling = product.UnlimitedStock
	}
	if prod.MaxOrderQuantity > 0 && prod.MaxOrderQuantity < ceiling {
		ceiling = prod.MaxOrderQuantity
	}

	updates := map[string]interface{}{"quantity": gorm.Expr("quantity + ?", req.Quantity)}
	if req.Notes != "" {
		updates["notes"] = req.Notes
	}
	result := db.Model(&CartLine{}).
		Where("id = ? AND quantity + ? <= ?", line.ID, req.Quantity, ceiling).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update cart line: %w", result.Error)
	}

	if err := db.First(line, line.ID).Error; err != nil {
		return fmt.Errorf("failed to retrieve cart line: %w", err)
	}
	if result.RowsAffected == 0 {
		if err := checkQuantity(prod, line.Quantity+req.Quantity); err != nil {
			return err
		}
		return apperr.ErrConflict
	}
	return nil
}

// SetQuantity replaces a line's quantity; zero or less removes the line and returns nil
func (r *Reconciler) SetQuantity(ctx context.Context, owner Owner, productID uint, quantity int) (*CartLine, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, r.Remove(ctx, owner, productID)
	}

	db := r.db.WithContext(ctx)

	var line CartLine
	if err := owner.scope(db).Where("product_id = ?", productID).First(&line).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("cart line", productID)
		}
		return nil, fmt.Errorf("failed to retrieve cart line: %w", err)
	}

	prod, err := r.activeProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := checkQuantity(prod, quantity); err != nil {
		return nil, err
	}

	if err := db.Model(&line).Update("quantity", quantity).Error; err != nil {
		return nil, fmt.Errorf("failed to update cart line: %w", err)
	}

	line.Quantity = quantity
	line.Product = prod
	line.price()
	return &line, nil
}

// Remove deletes the line for a product
func (r *Reconciler) Remove(ctx context.Context, owner Owner, productID uint) error {
	if err := owner.Validate(); err != nil {
		return err
	}

	result := owner.scope(r.db.WithContext(ctx)).Where("product_id = ?", productID).Delete(&CartLine{})
	if result.Error != nil {
		return fmt.Errorf("failed to remove cart line: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("cart line", productID)
	}
	return nil
}

// Clear removes all lines from the cart
func (r *Reconciler) Clear(ctx context.Context, owner Owner) error {
	if err := owner.Validate(); err != nil {
		return err
	}

	if err := owner.scope(r.db.WithContext(ctx)).Delete(&CartLine{}).Error; err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

// Count returns the total number of units in the cart
func (r *Reconciler) Count(ctx context.Context, owner Owner) (int, error) {
	if err := owner.Validate(); err != nil {
		return 0, err
	}

	var total int64
	if err := owner.scope(r.db.WithContext(ctx).Model(&CartLine{})).
		Select("COALESCE(SUM(quantity), 0)").Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count cart: %w", err)
	}
	return int(total), nil
}

// MergeGuestIntoUser moves a guest session's lines into the user's cart.
// Quantities of shared products are summed and the user's note is kept when
// present. Every guest line of the session is gone afterwards, so running it
// again is a no-op.
func (r *Reconciler) MergeGuestIntoUser(ctx context.Context, sessionID string, userID uint) error {
	if sessionID == "" {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var guestLines []CartLine
		if err := tx.Where("session_id = ?", sessionID).Find(&guestLines).Error; err != nil {
			return fmt.Errorf("failed to retrieve guest cart: %w", err)
		}

		for _, guestLine := range guestLines {
			var userLine CartLine
			err := tx.Where("user_id = ? AND product_id = ?", userID, guestLine.ProductID).First(&userLine).Error

			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Re-own the guest row
				if err := tx.Model(&CartLine{}).Where("id = ?", guestLine.ID).
					Updates(map[string]interface{}{"user_id": userID, "session_id": nil}).Error; err != nil {
					return fmt.Errorf("failed to transfer cart line: %w", err)
				}
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to retrieve user cart line: %w", err)
			}

			updates := map[string]interface{}{"quantity": userLine.Quantity + guestLine.Quantity}
			if userLine.Notes == "" && guestLine.Notes != "" {
				updates["notes"] = guestLine.Notes
			}
			if err := tx.Model(&userLine).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to merge cart line: %w", err)
			}
		}

		if err := tx.Where("session_id = ?", sessionID).Delete(&CartLine{}).Error; err != nil {
			return fmt.Errorf("failed to delete guest cart: %w", err)
		}

		if len(guestLines) > 0 {
			r.logger.WithFields(logrus.Fields{
				"user_id": userID,
				"lines":   len(guestLines),
			}).Info("Merged guest cart into user cart")
		}
		return nil
	})
}

// PurgeGuestCarts deletes guest lines untouched since before
func (r *Reconciler) PurgeGuestCarts(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("session_id IS NOT NULL AND updated_at < ?", before).
		Delete(&CartLine{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge guest carts: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// clamp lowers a line to the available quantity. It reports false when
// nothing is available and the line was dropped.
func (r *Reconciler) clamp(ctx context.Context, line *CartLine) (bool, error) {
	available := line.Product.AvailableStock()
	db := r.db.WithContext(ctx)

	if available == 0 {
		if err := db.Delete(&CartLine{}, line.ID).Error; err != nil {
			return true, err
		}
		return false, nil
	}

	if err := db.Model(&CartLine{}).Where("id = ?", line.ID).Update("quantity", available).Error; err != nil {
		return true, err
	}
	line.Quantity = available
	return true, nil
}

func (r *Reconciler) activeProduct(ctx context.Context, productID uint) (*product.Product, error) {
	var prod product.Product
	if err := r.db.WithContext(ctx).Where("id = ? AND is_active = ?", productID, true).First(&prod).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("product", productID)
		}
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	return &prod, nil
}

func checkQuantity(prod *product.Product, quantity int) error {
	if prod.ExceedsOrderLimit(quantity) {
		return apperr.Invalid("quantity", fmt.Sprintf("at most %d %s per order", prod.MaxOrderQuantity, prod.Name))
	}
	if !prod.CanFulfill(quantity) {
		return &apperr.InsufficientStockError{
			ProductID: prod.ID,
			Requested: quantity,
			Available: prod.AvailableStock(),
		}
	}
	return nil
}

func (l *CartLine) price() {
	if l.Product == nil {
		return
	}
	l.UnitPrice = l.Product.Price
	l.Subtotal = l.Product.Price * int64(l.Quantity)
}
