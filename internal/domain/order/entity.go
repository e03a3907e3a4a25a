// internal/domain/order/entity.go
package order

import (
	"fmt"
	"time"
)

// OrderStatus represents the order status
type OrderStatus string

const (
	OrderStatusPending          OrderStatus = "pending"
	OrderStatusAwaitingPayment  OrderStatus = "awaiting_payment"
	OrderStatusPaymentSubmitted OrderStatus = "payment_submitted"
	OrderStatusPaymentApproved  OrderStatus = "payment_approved"
	OrderStatusPaymentRejected  OrderStatus = "payment_rejected"
	OrderStatusConfirmed        OrderStatus = "confirmed"
	OrderStatusPreparing        OrderStatus = "preparing"
	OrderStatusReady            OrderStatus = "ready"
	OrderStatusCompleted        OrderStatus = "completed"
	OrderStatusCancelled        OrderStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// Valid reports whether s is a known status
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusAwaitingPayment, OrderStatusPaymentSubmitted,
		OrderStatusPaymentApproved, OrderStatusPaymentRejected, OrderStatusConfirmed,
		OrderStatusPreparing, OrderStatusReady, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// PaymentMethod represents how the customer pays
type PaymentMethod string

const (
	PaymentMethodQR   PaymentMethod = "qr"   // Bank/e-wallet QR transfer, proof reviewed by staff
	PaymentMethodCash PaymentMethod = "cash" // Paid on pickup or delivery
)

// PaymentStatus represents payment status
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSubmitted PaymentStatus = "submitted"
	PaymentStatusApproved  PaymentStatus = "approved"
	PaymentStatusRejected  PaymentStatus = "rejected"
)

// DiscountType represents the statutory discount a customer claims
type DiscountType string

const (
	DiscountTypeNone   DiscountType = ""
	DiscountTypeSenior DiscountType = "senior"
	DiscountTypePWD    DiscountType = "pwd"
)

// Order represents the order entity
type Order struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	OrderNumber string `gorm:"uniqueIndex;not null;size:50" json:"order_number"`
	UserID      uint   `gorm:"not null;index" json:"user_id"`

	// Customer Information
	CustomerName    string `gorm:"not null;size:255" json:"customer_name"`
	Email           string `gorm:"not null;size:255" json:"email"`
	Phone           string `gorm:"size:20" json:"phone"`
	DeliveryAddress string `gorm:"type:text" json:"delivery_address"`
	Notes           string `gorm:"type:text" json:"notes"`

	Status        OrderStatus   `gorm:"not null;size:30;index" json:"status"`
	PaymentMethod PaymentMethod `gorm:"not null;size:10" json:"payment_method"`
	PaymentStatus PaymentStatus `gorm:"not null;size:20" json:"payment_status"`

	// Payment Review
	PaymentProofRef        string     `gorm:"size:500" json:"payment_proof_ref,omitempty"`
	PaymentSubmittedAt     *time.Time `json:"payment_submitted_at,omitempty"`
	PaymentVerifiedAt      *time.Time `json:"payment_verified_at,omitempty"`
	PaymentVerifiedBy      *uint      `json:"payment_verified_by,omitempty"`
	PaymentRejectionReason string     `gorm:"type:text" json:"payment_rejection_reason,omitempty"`

	// Financial Information
	SubtotalAmount int64  `gorm:"not null" json:"subtotal_amount"` // In cents
	DiscountAmount int64  `gorm:"not null;default:0" json:"discount_amount"`
	TotalAmount    int64  `gorm:"not null" json:"total_amount"`
	Currency       string `gorm:"size:3" json:"currency"`
	IsBulkOrder    bool   `gorm:"not null" json:"is_bulk_order"`

	// Senior citizen / PWD discount
	IsSeniorDiscount   bool         `gorm:"not null" json:"is_senior_discount"`
	DiscountType       DiscountType `gorm:"size:10" json:"discount_type,omitempty"`
	SeniorIDRef        string       `gorm:"size:500" json:"senior_id_ref,omitempty"`
	SeniorIDVerified   bool         `gorm:"not null" json:"senior_id_verified"`
	DiscountVerifiedBy *uint        `json:"discount_verified_by,omitempty"`

	StockCommitted bool `gorm:"not null" json:"-"`
	Version        int  `gorm:"not null;default:1" json:"version"`

	// Timestamps
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy        *uint      `json:"cancelled_by,omitempty"`
	CancellationReason string     `gorm:"type:text" json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	// Relationships
	Items         []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items"`
	StatusHistory []OrderStatusHistory `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"status_history,omitempty"`
}

// OrderItem is a snapshot of a product line at order time
type OrderItem struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	OrderID    uint      `gorm:"not null;index" json:"order_id"`
	ProductID  uint      `gorm:"not null;index" json:"product_id"`
	SKU        string    `gorm:"not null;size:100" json:"sku"`
	Name       string    `gorm:"not null;size:255" json:"name"`
	Unit       string    `gorm:"size:20" json:"unit"`
	Quantity   int       `gorm:"not null" json:"quantity"`
	Price      int64     `gorm:"not null" json:"price"`       // Price per unit in cents
	TotalPrice int64     `gorm:"not null" json:"total_price"` // Quantity * Price
	Notes      string    `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// OrderStatusHistory tracks order status changes
type OrderStatusHistory struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	OrderID   uint        `gorm:"not null;index" json:"order_id"`
	Status    OrderStatus `gorm:"not null;size:30" json:"status"`
	Comment   string      `gorm:"type:text" json:"comment"`
	CreatedBy uint        `gorm:"index" json:"created_by"` // User ID who made the change
	CreatedAt time.Time   `json:"created_at"`
}

// TableName overrides
func (Order) TableName() string              { return "orders" }
func (OrderItem) TableName() string          { return "order_items" }
func (OrderStatusHistory) TableName() string { return "order_status_history" }

// Business methods for Order

// FormatOrderNumber formats the public order number. Format: ORD-YYYYMMDD-XXXXX
func FormatOrderNumber(createdAt time.Time, id uint) string {
	return fmt.Sprintf("ORD-%s-%05d", createdAt.Format("20060102"), id)
}

// IsTerminal checks if the order can no longer change
func (o *Order) IsTerminal() bool {
	return o.Status.IsTerminal()
}

// CustomerCanCancel checks the statuses in which the owner may still cancel
func (o *Order) CustomerCanCancel() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
}

// ItemsSubtotal sums the item snapshots
func (o *Order) ItemsSubtotal() int64 {
	var subtotal int64
	for _, item := range o.Items {
		subtotal += item.TotalPrice
	}
	return subtotal
}

// TotalQuantity sums the item quantities
func (o *Order) TotalQuantity() int {
	total := 0
	for _, item := range o.Items {
		total += item.Quantity
	}
	return total
}

// PayableAmount is the subtotal minus a verified discount
func (o *Order) PayableAmount() int64 {
	if o.IsSeniorDiscount && o.SeniorIDVerified {
		return o.SubtotalAmount - o.DiscountAmount
	}
	return o.SubtotalAmount
}

// IsOwnedBy checks the order belongs to userID
func (o *Order) IsOwnedBy(userID uint) bool {
	return o.UserID == userID
}
