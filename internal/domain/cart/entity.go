// internal/domain/cart/entity.go
package cart

import (
	"strings"
	"time"

	"github.com/your-org/meatshop-backend/internal/domain/product"
	"github.com/your-org/meatshop-backend/internal/pkg/apperr"
	"gorm.io/gorm"
)

// CartLine is one product in a cart. A line belongs to a user or to a guest
// session, never both.
type CartLine struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    *uint     `gorm:"uniqueIndex:idx_cart_user_product" json:"user_id,omitempty"`
	SessionID *string   `gorm:"size:64;uniqueIndex:idx_cart_session_product" json:"session_id,omitempty"`
	ProductID uint      `gorm:"not null;uniqueIndex:idx_cart_user_product;uniqueIndex:idx_cart_session_product" json:"product_id"`
	Quantity  int       `gorm:"not null" json:"quantity"`
	Notes     string    `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Product *product.Product `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE;" json:"product,omitempty"`

	// Filled at read time from the live product
	UnitPrice int64 `gorm:"-" json:"unit_price"`
	Subtotal  int64 `gorm:"-" json:"subtotal"`
}

// TableName overrides the table name
func (CartLine) TableName() string {
	return "cart_lines"
}

// CartTotals represents calculated cart totals
type CartTotals struct {
	ItemCount     int   `json:"item_count"`     // Number of unique items
	TotalQuantity int   `json:"total_quantity"` // Sum of all quantities
	SubTotal      int64 `json:"sub_total"`
}

// Owner identifies a cart: a signed-in user or a guest session
type Owner struct {
	UserID    *uint
	SessionID string
}

// UserOwner returns the owner key of an authenticated user's cart
func UserOwner(userID uint) Owner {
	return Owner{UserID: &userID}
}

// GuestOwner returns the owner key of a guest session's cart
func GuestOwner(sessionID string) Owner {
	return Owner{SessionID: strings.TrimSpace(sessionID)}
}

// Validate checks that exactly one of user and session is set
func (o Owner) Validate() error {
	hasUser := o.UserID != nil && *o.UserID != 0
	hasSession := o.SessionID != ""
	if hasUser == hasSession {
		return apperr.Invalid("owner", "cart must belong to either a user or a guest session")
	}
	return nil
}

// IsGuest reports whether the owner is a guest session
func (o Owner) IsGuest() bool {
	return o.UserID == nil
}

func (o Owner) scope(db *gorm.DB) *gorm.DB {
	if o.UserID != nil {
		return db.Where("user_id = ?", *o.UserID)
	}
	return db.Where("session_id = ?", o.SessionID)
}

func (o Owner) newLine(productID uint, quantity int, notes string) *CartLine {
	line := &CartLine{ProductID: productID, Quantity: quantity, Notes: notes}
	if o.UserID != nil {
		userID := *o.UserID
		line.UserID = &userID
	} else {
		sessionID := o.SessionID
		line.SessionID = &sessionID
	}
	return line
}

// Totals sums a list of priced lines
func Totals(lines []CartLine) CartTotals {
	var totals CartTotals
	totals.ItemCount = len(lines)
	for _, line := range lines {
		totals.TotalQuantity += line.Quantity
		totals.SubTotal += line.Subtotal
	}
	return totals
}
