// internal/domain/inventory/entity.go
package inventory

import (
	"time"
)

// MovementType represents the type of stock movement
type MovementType string

const (
	MovementTypeInbound  MovementType = "inbound"  // Delivery, return, count increase
	MovementTypeOutbound MovementType = "outbound" // Spoilage, damage, count decrease
)

// AlertType represents the kind of stock alert
type AlertType string

const (
	AlertTypeLowStock   AlertType = "low_stock"
	AlertTypeOutOfStock AlertType = "out_of_stock"
)

// StockMovement is the audit record of a manual stock adjustment
type StockMovement struct {
	ID               uint         `gorm:"primaryKey" json:"id"`
	ProductID        uint         `gorm:"not null;index" json:"product_id"`
	MovementType     MovementType `gorm:"not null;size:20" json:"movement_type"`
	Reason           string       `gorm:"type:text" json:"reason"`
	Delta            int          `gorm:"not null" json:"delta"`
	PreviousQuantity int          `gorm:"not null" json:"previous_quantity"`
	NewQuantity      int          `gorm:"not null" json:"new_quantity"`
	ReservedQuantity int          `gorm:"not null" json:"reserved_quantity"`
	CreatedBy        uint         `gorm:"index" json:"created_by"`
	CreatedAt        time.Time    `json:"created_at"`
}

// StockAlert represents a low stock alert raised for the back office
type StockAlert struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	ProductID  uint       `gorm:"not null;index" json:"product_id"`
	AlertType  AlertType  `gorm:"not null;size:20" json:"alert_type"`
	Message    string     `gorm:"type:text" json:"message"`
	IsResolved bool       `gorm:"not null" json:"is_resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// StockLevel is a read-only view of a product's stock columns
type StockLevel struct {
	ProductID     uint `json:"product_id"`
	TrackStock    bool `json:"track_stock"`
	StockQuantity int  `json:"stock_quantity"`
	ReservedStock int  `json:"reserved_stock"`
	Available     int  `json:"available_stock"`
	LowStock      bool `json:"low_stock"`
}

// TableName overrides
func (StockMovement) TableName() string { return "stock_movements" }
func (StockAlert) TableName() string    { return "stock_alerts" }
