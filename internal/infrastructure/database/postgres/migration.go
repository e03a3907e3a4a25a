// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/your-org/meatshop-backend/internal/domain/cart"
	"github.com/your-org/meatshop-backend/internal/domain/inventory"
	"github.com/your-org/meatshop-backend/internal/domain/notification"
	"github.com/your-org/meatshop-backend/internal/domain/order"
	"github.com/your-org/meatshop-backend/internal/domain/product"
	"github.com/your-org/meatshop-backend/internal/domain/user"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Models lists every persisted model in dependency order
func Models() []interface{} {
	return []interface{}{
		&user.User{},

		&product.Category{},
		&product.Product{},

		&inventory.StockMovement{},
		&inventory.StockAlert{},

		&cart.CartLine{},

		&order.Order{},
		&order.OrderItem{},
		&order.OrderStatusHistory{},

		&notification.Notification{},
	}
}

// Migration handles database migrations
type Migration struct {
	db     *gorm.DB
	logger logrus.FieldLogger
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB, logger logrus.FieldLogger) *Migration {
	return &Migration{
		db:     db,
		logger: logger,
	}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	m.logger.Info("🔄 Running database auto-migrations...")

	for _, model := range Models() {
		m.logger.Debugf("Migrating model: %T", model)
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	m.logger.Info("✅ Database auto-migrations completed successfully")
	return nil
}

// CreateIndexes creates the query and integrity indexes gorm tags cannot express
func (m *Migration) CreateIndexes() error {
	m.logger.Info("🔄 Creating additional database indexes...")

	indexes := []string{
		// Products
		"CREATE INDEX IF NOT EXISTS idx_products_category_active ON products(category_id, is_active)",
		"CREATE INDEX IF NOT EXISTS idx_products_low_stock ON products(track_stock, stock_quantity, reserved_stock)",

		// Stock integrity
		"ALTER TABLE products DROP CONSTRAINT IF EXISTS chk_products_stock",
		"ALTER TABLE products ADD CONSTRAINT chk_products_stock CHECK (reserved_stock >= 0 AND stock_quantity >= reserved_stock)",

		// Stock audit
		"CREATE INDEX IF NOT EXISTS idx_stock_movements_product_created ON stock_movements(product_id, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_stock_alerts_open ON stock_alerts(product_id, is_resolved)",

		// Carts
		"CREATE INDEX IF NOT EXISTS idx_cart_lines_session_updated ON cart_lines(session_id, updated_at)",

		// Orders
		"CREATE INDEX IF NOT EXISTS idx_orders_user_status ON orders(user_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders(status, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_orders_payment_status ON orders(payment_status)",
		"CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_order_status_history_order ON order_status_history(order_id, created_at DESC)",

		// Notifications
		"CREATE INDEX IF NOT EXISTS idx_notifications_user_unread ON notifications(user_id, read_at)",
	}

	failCount := 0
	for _, indexSQL := range indexes {
		if err := m.db.Exec(indexSQL).Error; err != nil {
			m.logger.WithError(err).Warn("⚠️ Failed to create index")
			failCount++
		}
	}

	m.logger.Infof("✅ Created %d indexes successfully (%d failed)", len(indexes)-failCount, failCount)
	return nil
}

// SeedInitialData inserts the development catalog and accounts
func (m *Migration) SeedInitialData() error {
	m.logger.Info("🌱 Seeding initial data...")

	if err := m.seedCategories(); err != nil {
		return fmt.Errorf("failed to seed categories: %w", err)
	}
	if err := m.seedProducts(); err != nil {
		return fmt.Errorf("failed to seed products: %w", err)
	}
	if err := m.seedUser("admin@meatshop.local", "Admin", "User", true); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}
	if err := m.seedUser("customer@meatshop.local", "Test", "Customer", false); err != nil {
		return fmt.Errorf("failed to seed test user: %w", err)
	}

	m.logger.Info("✅ Initial data seeded successfully")
	return nil
}

func (m *Migration) seedCategories() error {
	categories := []product.Category{
		{Name: "Beef", Slug: "beef", SortOrder: 1, IsActive: true},
		{Name: "Pork", Slug: "pork", SortOrder: 2, IsActive: true},
		{Name: "Poultry", Slug: "poultry", SortOrder: 3, IsActive: true},
		{Name: "Processed", Slug: "processed", SortOrder: 4, IsActive: true},
	}

	for _, category := range categories {
		created, err := firstOrCreate(m.db, &category, "slug = ?", category.Slug)
		if err != nil {
			return err
		}
		if created {
			m.logger.WithField("category", category.Name).Info("✅ Created category")
		}
	}
	return nil
}

func (m *Migration) seedProducts() error {
	type seed struct {
		category string
		product  product.Product
	}

	seeds := []seed{
		{"beef", product.Product{SKU: "BEEF-RIBEYE-1KG", Name: "Ribeye Steak", Slug: "ribeye-steak", Unit: "kg", Price: 120000, StockQuantity: 40, MaxOrderQuantity: 10, LowStockThreshold: 5}},
		{"beef", product.Product{SKU: "BEEF-GROUND-500G", Name: "Ground Beef", Slug: "ground-beef", Unit: "pack", Price: 26000, StockQuantity: 80, LowStockThreshold: 10}},
		{"pork", product.Product{SKU: "PORK-BELLY-1KG", Name: "Pork Belly", Slug: "pork-belly", Unit: "kg", Price: 38000, StockQuantity: 60, LowStockThreshold: 8}},
		{"pork", product.Product{SKU: "PORK-CHOP-1KG", Name: "Pork Chop", Slug: "pork-chop", Unit: "kg", Price: 34000, StockQuantity: 50, LowStockThreshold: 8}},
		{"poultry", product.Product{SKU: "CHKN-WHOLE", Name: "Whole Chicken", Slug: "whole-chicken", Unit: "piece", Price: 22000, StockQuantity: 30, LowStockThreshold: 5}},
		{"processed", product.Product{SKU: "PROC-LONGGANISA", Name: "Longganisa", Slug: "longganisa", Unit: "pack", Price: 18000, TrackStock: false}},
	}

	for _, s := range seeds {
		var category product.Category
		if err := m.db.Where("slug = ?", s.category).First(&category).Error; err != nil {
			return fmt.Errorf("category %s: %w", s.category, err)
		}

		p := s.product
		p.CategoryID = &category.ID
		p.IsActive = true
		if p.StockQuantity > 0 {
			p.TrackStock = true
		}

		created, err := firstOrCreate(m.db, &p, "sku = ?", p.SKU)
		if err != nil {
			return err
		}
		if created {
			m.logger.WithField("sku", p.SKU).Info("✅ Created product")
		}
	}
	return nil
}

// seedUser creates a development account whose password is "Password123"
func (m *Migration) seedUser(email, firstName, lastName string, isAdmin bool) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("Password123"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	account := user.User{
		Email:     email,
		Password:  string(hashedPassword),
		FirstName: firstName,
		LastName:  lastName,
		IsActive:  true,
		IsAdmin:   isAdmin,
	}

	created, err := firstOrCreate(m.db, &account, "email = ?", email)
	if err != nil {
		return err
	}
	if created {
		m.logger.WithFields(logrus.Fields{"email": email, "admin": isAdmin}).Info("✅ Created user")
	}
	return nil
}

// firstOrCreate inserts value unless a row matches the query
func firstOrCreate(db *gorm.DB, value interface{}, query string, args ...interface{}) (bool, error) {
	err := db.Model(value).Where(query, args...).Take(value).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	if err := db.Create(value).Error; err != nil {
		return false, err
	}
	return true, nil
}
