// internal/domain/notification/service.go
package notification

import (
	"context"
	"fmt"

	"github.com/your-org/meatshop-backend/internal/domain/user"
	"github.com/your-org/meatshop-backend/internal/pkg/apperr"
	"github.com/your-org/meatshop-backend/internal/pkg/clock"
	"gorm.io/gorm"
)

// Dispatcher persists notifications for polling
type Dispatcher struct {
	db    *gorm.DB
	clock clock.Clock
}

// NewDispatcher creates a new notification dispatcher
func NewDispatcher(db *gorm.DB, clk clock.Clock) *Dispatcher {
	return &Dispatcher{
		db:    db,
		clock: clk,
	}
}

// Notify stores one notification for a user
func (d *Dispatcher) Notify(ctx context.Context, userID uint, title, message string, kind Type, orderID *uint) error {
	n := Notification{
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      kind,
		OrderID:   orderID,
		CreatedAt: d.clock.Now(),
	}
	if err := d.db.WithContext(ctx).Create(&n).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// NotifyAdmins stores one notification per active administrator
func (d *Dispatcher) NotifyAdmins(ctx context.Context, title, message string, kind Type, orderID *uint) error {
	var adminIDs []uint
	if err := d.db.WithContext(ctx).Model(&user.User{}).
		Where("is_admin = ? AND is_active = ?", true, true).
		Pluck("id", &adminIDs).Error; err != nil {
		return fmt.Errorf("failed to retrieve administrators: %w", err)
	}
	if len(adminIDs) == 0 {
		return nil
	}

	now := d.clock.Now()
	notifications := make([]Notification, len(adminIDs))
	for i, adminID := range adminIDs {
		notifications[i] = Notification{
			UserID:    adminID,
			Title:     title,
			Message:   message,
			Type:      kind,
			OrderID:   orderID,
			CreatedAt: now,
		}
	}

	if err := d.db.WithContext(ctx).Create(&notifications).Error; err != nil {
		return fmt.Errorf("failed to create admin notifications: %w", err)
	}
	return nil
}

// List returns a user's notifications, newest first
func (d *Dispatcher) List(ctx context.Context, userID uint, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := d.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("read_at IS NULL")
	}

	var notifications []Notification
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve notifications: %w", err)
	}
	return notifications, nil
}

// UnreadCount returns how many notifications the user has not read
func (d *Dispatcher) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var count int64
	if err := d.db.WithContext(ctx).Model(&Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return count, nil
}

// MarkRead marks one of the user's notifications as read
func (d *Dispatcher) MarkRead(ctx context.Context, userID, notificationID uint) error {
	var n Notification
	if err := d.db.WithContext(ctx).Where("id = ? AND user_id = ?", notificationID, userID).
		First(&n).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return apperr.NotFound("notification", notificationID)
		}
		return fmt.Errorf("failed to retrieve notification: %w", err)
	}
	if n.IsRead() {
		return nil
	}

	if err := d.db.WithContext(ctx).Model(&n).Update("read_at", d.clock.Now()).Error; err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

// MarkAllRead marks every unread notification of the user as read
func (d *Dispatcher) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	result := d.db.WithContext(ctx).Model(&Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", d.clock.Now())
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", result.Error)
	}
	return result.RowsAffected, nil
}
