// internal/domain/analytics/service.go
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/your-org/meatshop-backend/internal/domain/order"
	"github.com/your-org/meatshop-backend/internal/domain/product"
	"github.com/your-org/meatshop-backend/internal/pkg/clock"
	"gorm.io/gorm"
)

// Service builds back-office summaries from orders and stock
type Service struct {
	db    *gorm.DB
	clock clock.Clock
}

// NewService creates a new analytics service
func NewService(db *gorm.DB, clk clock.Clock) *Service {
	return &Service{
		db:    db,
		clock: clk,
	}
}

// DashboardStats is the back-office landing summary. Revenue counts
// completed orders only.
type DashboardStats struct {
	RevenueToday     int64 `json:"revenue_today"`      // In cents
	RevenueThisMonth int64 `json:"revenue_this_month"` // In cents
	CompletedToday   int64 `json:"completed_today"`
	AvgOrderValue    int64 `json:"avg_order_value"` // In cents, this month

	OrdersByStatus []StatusData `json:"orders_by_status"`

	// Work queues
	PaymentsAwaitingReview int64 `json:"payments_awaiting_review"`
	DiscountsAwaitingCheck int64 `json:"discounts_awaiting_check"`
	BulkOrdersOpen         int64 `json:"bulk_orders_open"`

	LowStockProducts   int64 `json:"low_stock_products"`
	OutOfStockProducts int64 `json:"out_of_stock_products"`
}

// StatusData counts orders in one status
type StatusData struct {
	Status order.OrderStatus `json:"status"`
	Count  int64             `json:"count"`
	Value  int64             `json:"value"`
}

// ProductSalesData is one row of the best sellers report
type ProductSalesData struct {
	ProductID  uint   `json:"product_id"`
	Name       string `json:"name"`
	SKU        string `json:"sku"`
	Unit       string `json:"unit"`
	TotalSold  int64  `json:"total_sold"`
	Revenue    int64  `json:"revenue"`
	OrderCount int64  `json:"order_count"`
}

// GetDashboardStats summarises today and the current month
func (s *Service) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	db := s.db.WithContext(ctx)
	now := s.clock.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	stats := &DashboardStats{}
	completed := func() *gorm.DB {
		return db.Model(&order.Order{}).Where("status = ?", order.OrderStatusCompleted)
	}

	if err := completed().Where("completed_at >= ?", today).
		Select("COALESCE(SUM(total_amount), 0)").Scan(&stats.RevenueToday).Error; err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}
	if err := completed().Where("completed_at >= ?", today).Count(&stats.CompletedToday).Error; err != nil {
		return nil, fmt.Errorf("failed to count completed orders: %w", err)
	}

	var monthCount int64
	if err := completed().Where("completed_at >= ?", thisMonth).
		Select("COALESCE(SUM(total_amount), 0)").Scan(&stats.RevenueThisMonth).Error; err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}
	if err := completed().Where("completed_at >= ?", thisMonth).Count(&monthCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count completed orders: %w", err)
	}
	if monthCount > 0 {
		stats.AvgOrderValue = stats.RevenueThisMonth / monthCount
	}

	if err := db.Model(&order.Order{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS value").
		Group("status").Order("status").
		Scan(&stats.OrdersByStatus).Error; err != nil {
		return nil, fmt.Errorf("failed to group orders by status: %w", err)
	}

	if err := db.Model(&order.Order{}).
		Where("status = ?", order.OrderStatusPaymentSubmitted).
		Count(&stats.PaymentsAwaitingReview).Error; err != nil {
		return nil, fmt.Errorf("failed to count payment reviews: %w", err)
	}
	if err := db.Model(&order.Order{}).
		Where("is_senior_discount = ? AND senior_id_verified = ? AND status NOT IN ?", true, false, terminalStatuses()).
		Count(&stats.DiscountsAwaitingCheck).Error; err != nil {
		return nil, fmt.Errorf("failed to count discount checks: %w", err)
	}
	if err := db.Model(&order.Order{}).
		Where("is_bulk_order = ? AND status NOT IN ?", true, terminalStatuses()).
		Count(&stats.BulkOrdersOpen).Error; err != nil {
		return nil, fmt.Errorf("failed to count bulk orders: %w", err)
	}

	tracked := func() *gorm.DB {
		return db.Model(&product.Product{}).Where("is_active = ? AND track_stock = ?", true, true)
	}
	if err := tracked().Where("stock_quantity - reserved_stock <= 0").
		Count(&stats.OutOfStockProducts).Error; err != nil {
		return nil, fmt.Errorf("failed to count out of stock products: %w", err)
	}
	if err := tracked().Where("stock_quantity - reserved_stock > 0 AND stock_quantity - reserved_stock <= low_stock_threshold").
		Count(&stats.LowStockProducts).Error; err != nil {
		return nil, fmt.Errorf("failed to count low stock products: %w", err)
	}

	return stats, nil
}

// GetTopProducts ranks products by revenue from orders completed in the last days
func (s *Service) GetTopProducts(ctx context.Context, days, limit int) ([]ProductSalesData, error) {
	if days <= 0 {
		days = 30
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	since := s.clock.Now().AddDate(0, 0, -days)

	var rows []ProductSalesData
	err := s.db.WithContext(ctx).
		Table("order_items AS oi").
		Select(`oi.product_id AS product_id,
			MAX(oi.name) AS name,
			MAX(oi.sku) AS sku,
			MAX(oi.unit) AS unit,
			COALESCE(SUM(oi.quantity), 0) AS total_sold,
			COALESCE(SUM(oi.total_price), 0) AS revenue,
			COUNT(DISTINCT oi.order_id) AS order_count`).
		Joins("JOIN orders o ON o.id = oi.order_id").
		Where("o.status = ? AND o.completed_at >= ?", order.OrderStatusCompleted, since).
		Group("oi.product_id").
		Order("revenue DESC, oi.product_id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to rank products: %w", err)
	}
	return rows, nil
}

func terminalStatuses() []order.OrderStatus {
	return []order.OrderStatus{order.OrderStatusCompleted, order.OrderStatusCancelled}
}
