// internal/domain/product/entity.go
package product

import (
	"math"
	"time"

	"gorm.io/gorm"
)

// UnlimitedStock is reported as the available quantity of untracked products
const UnlimitedStock = math.MaxInt32

// Product represents a sellable cut or pack. Stock columns are mutated by the
// inventory ledger only.
type Product struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	SKU               string         `gorm:"uniqueIndex;not null;size:100" json:"sku"`
	Name              string         `gorm:"not null;size:255" json:"name"`
	Slug              string         `gorm:"uniqueIndex;not null;size:255" json:"slug"`
	Description       string         `gorm:"type:text" json:"description"`
	Unit              string         `gorm:"size:20" json:"unit"`   // kg, pack, piece
	Price             int64          `gorm:"not null" json:"price"` // Price in cents
	CategoryID        *uint          `gorm:"index" json:"category_id"`
	IsActive          bool           `gorm:"not null" json:"is_active"`
	TrackStock        bool           `gorm:"not null" json:"track_stock"`
	StockQuantity     int            `gorm:"not null;default:0" json:"stock_quantity"`
	ReservedStock     int            `gorm:"not null;default:0" json:"reserved_stock"`
	MaxOrderQuantity  int            `gorm:"not null;default:0" json:"max_order_quantity"` // 0 means no limit
	LowStockThreshold int            `gorm:"not null;default:5" json:"low_stock_threshold"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`

	Category *Category `gorm:"foreignKey:CategoryID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"category,omitempty"`
}

// Category groups products (beef, pork, poultry, ...)
type Category struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"not null;size:255" json:"name"`
	Slug      string         `gorm:"uniqueIndex;not null;size:255" json:"slug"`
	SortOrder int            `gorm:"default:0" json:"sort_order"`
	IsActive  bool           `gorm:"not null" json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides
func (Product) TableName() string  { return "products" }
func (Category) TableName() string { return "categories" }

// AvailableStock returns how many more units can be promised
func (p *Product) AvailableStock() int {
	if !p.TrackStock {
		return UnlimitedStock
	}
	if available := p.StockQuantity - p.ReservedStock; available > 0 {
		return available
	}
	return 0
}

// CanFulfill checks whether qty more units can be promised
func (p *Product) CanFulfill(qty int) bool {
	return !p.TrackStock || qty <= p.AvailableStock()
}

// IsLowStock checks whether available stock is at or below the alert threshold
func (p *Product) IsLowStock() bool {
	return p.TrackStock && p.AvailableStock() <= p.LowStockThreshold
}

// ExceedsOrderLimit checks the per-order quantity cap for this product
func (p *Product) ExceedsOrderLimit(qty int) bool {
	return p.MaxOrderQuantity > 0 && qty > p.MaxOrderQuantity
}
