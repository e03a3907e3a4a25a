// internal/domain/notification/entity.go
package notification

import "time"

// Type represents what a notification is about
type Type string

const (
	TypeOrderPlaced      Type = "order_placed"
	TypePaymentSubmitted Type = "payment_submitted"
	TypePaymentApproved  Type = "payment_approved"
	TypePaymentRejected  Type = "payment_rejected"
	TypeOrderStatus      Type = "order_status"
	TypeOrderCancelled   Type = "order_cancelled"
	TypeDiscount         Type = "discount"
)

// Notification is a user-visible message polled by the storefront
type Notification struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"not null;index:idx_notifications_user_read" json:"user_id"`
	Title     string     `gorm:"not null;size:255" json:"title"`
	Message   string     `gorm:"type:text" json:"message"`
	Type      Type       `gorm:"not null;size:30" json:"type"`
	OrderID   *uint      `gorm:"index" json:"order_id,omitempty"`
	ReadAt    *time.Time `gorm:"index:idx_notifications_user_read" json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// TableName overrides the table name
func (Notification) TableName() string {
	return "notifications"
}

// IsRead reports whether the user has seen the notification
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}
