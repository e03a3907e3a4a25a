package product

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/meatshop-backend/internal/pkg/apperr"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&Category{}, &Product{}))
	return NewService(db), db
}

func seedCatalog(t *testing.T, s *Service, db *gorm.DB) (beef, pork *Category) {
	t.Helper()
	ctx := context.Background()

	beef = &Category{Name: "Beef", Slug: "beef", SortOrder: 1, IsActive: true}
	pork = &Category{Name: "Pork", Slug: "pork", SortOrder: 2, IsActive: true}
	require.NoError(t, db.Create(beef).Error)
	require.NoError(t, db.Create(pork).Error)

	for _, req := range []ProductCreateRequest{
		{SKU: "BEEF-SIRLOIN", Name: "Beef Sirloin", Unit: "kg", Price: 52000, CategoryID: &beef.ID, TrackStock: true, InitialStock: 20},
		{SKU: "BEEF-BRISKET", Name: "Beef Brisket", Unit: "kg", Price: 46000, CategoryID: &beef.ID, TrackStock: true, InitialStock: 10},
		{SKU: "PORK-BELLY", Name: "Pork Belly", Description: "Liempo cut", Unit: "kg", Price: 32000, CategoryID: &pork.ID, TrackStock: true, InitialStock: 30},
		{SKU: "LONGGANISA", Name: "Longganisa", Unit: "pack", Price: 18000, CategoryID: &pork.ID},
	} {
		req := req
		_, err := s.CreateProduct(ctx, &req)
		require.NoError(t, err)
	}
	return beef, pork
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "beef-sirloin", Slugify("Beef Sirloin"))
	assert.Equal(t, "pork-belly-liempo", Slugify("  Pork Belly (Liempo) "))
	assert.Equal(t, "chicken-thigh-1kg", Slugify("Chicken Thigh -- 1kg"))
}

func TestService_CreateProduct(t *testing.T) {
	s, db := newTestService(t)
	ctx := context.Background()
	seedCatalog(t, s, db)

	p, err := s.CreateProduct(ctx, &ProductCreateRequest{SKU: "BEEF-SIRLOIN-2", Name: "Beef Sirloin", Unit: "kg", Price: 55000, TrackStock: true})
	require.NoError(t, err)
	assert.Equal(t, "beef-sirloin-2", p.Slug)
	assert.True(t, p.IsActive)

	_, err = s.CreateProduct(ctx, &ProductCreateRequest{SKU: "PORK-BELLY", Name: "Another", Unit: "kg", Price: 1})
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)

	_, err = s.CreateProduct(ctx, &ProductCreateRequest{SKU: "TOCINO", Name: "Tocino", Unit: "pack", Price: 1, InitialStock: 5})
	var validation *apperr.ValidationError
	assert.True(t, errors.As(err, &validation))
}

func TestService_GetProducts(t *testing.T) {
	s, db := newTestService(t)
	ctx := context.Background()
	seedCatalog(t, s, db)

	all, err := s.GetProducts(ctx, &ProductListRequest{SortBy: "price", SortOrder: "desc"})
	require.NoError(t, err)
	require.Len(t, all.Products, 4)
	assert.Equal(t, "BEEF-SIRLOIN", all.Products[0].SKU)
	assert.Equal(t, "LONGGANISA", all.Products[3].SKU)
	require.NotNil(t, all.Products[0].Category)
	assert.Equal(t, "beef", all.Products[0].Category.Slug)

	pork, err := s.GetProducts(ctx, &ProductListRequest{Category: "pork"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), pork.Pagination.Total)

	search, err := s.GetProducts(ctx, &ProductListRequest{Search: "LIEMPO"})
	require.NoError(t, err)
	require.Len(t, search.Products, 1)
	assert.Equal(t, "PORK-BELLY", search.Products[0].SKU)

	priced, err := s.GetProducts(ctx, &ProductListRequest{MinPrice: 30000, MaxPrice: 50000})
	require.NoError(t, err)
	assert.Equal(t, int64(2), priced.Pagination.Total)

	paged, err := s.GetProducts(ctx, &ProductListRequest{Page: 2, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, paged.Products, 1)
	assert.True(t, paged.Pagination.HasPrev)
	assert.False(t, paged.Pagination.HasNext)
}

func TestService_InactiveProductsHiddenFromStorefront(t *testing.T) {
	s, db := newTestService(t)
	ctx := context.Background()
	seedCatalog(t, s, db)

	brisket, err := s.GetProductBySlug(ctx, "beef-brisket")
	require.NoError(t, err)

	inactive := false
	_, err = s.UpdateProduct(ctx, brisket.ID, &ProductUpdateRequest{IsActive: &inactive})
	require.NoError(t, err)

	storefront, err := s.GetProducts(ctx, &ProductListRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), storefront.Pagination.Total)

	admin, err := s.GetProducts(ctx, &ProductListRequest{IncludeInactive: true})
	require.NoError(t, err)
	assert.Equal(t, int64(4), admin.Pagination.Total)

	_, err = s.GetProductBySlug(ctx, "beef-brisket")
	assert.True(t, apperr.IsNotFound(err))
}

func TestService_UpdateProduct(t *testing.T) {
	s, db := newTestService(t)
	ctx := context.Background()
	seedCatalog(t, s, db)

	sirloin, err := s.GetProductBySlug(ctx, "beef-sirloin")
	require.NoError(t, err)

	price := int64(54000)
	limit := 5
	updated, err := s.UpdateProduct(ctx, sirloin.ID, &ProductUpdateRequest{Price: &price, MaxOrderQuantity: &limit})
	require.NoError(t, err)
	assert.Equal(t, price, updated.Price)
	assert.Equal(t, 5, updated.MaxOrderQuantity)
	assert.Equal(t, 20, updated.StockQuantity)

	zero := int64(0)
	_, err = s.UpdateProduct(ctx, sirloin.ID, &ProductUpdateRequest{Price: &zero})
	var validation *apperr.ValidationError
	assert.True(t, errors.As(err, &validation))

	_, err = s.UpdateProduct(ctx, 999, &ProductUpdateRequest{Price: &price})
	assert.True(t, apperr.IsNotFound(err))
}

func TestService_GetCategories(t *testing.T) {
	s, db := newTestService(t)
	seedCatalog(t, s, db)
	require.NoError(t, db.Create(&Category{Name: "Seafood", Slug: "seafood", SortOrder: 0}).Error)

	categories, err := s.GetCategories(context.Background())
	require.NoError(t, err)
	require.Len(t, categories, 2)
	assert.Equal(t, "beef", categories[0].Slug)
}

func TestProduct_StockRules(t *testing.T) {
	tracked := &Product{TrackStock: true, StockQuantity: 10, ReservedStock: 7, LowStockThreshold: 3, MaxOrderQuantity: 4}
	assert.Equal(t, 3, tracked.AvailableStock())
	assert.True(t, tracked.CanFulfill(3))
	assert.False(t, tracked.CanFulfill(4))
	assert.True(t, tracked.IsLowStock())
	assert.True(t, tracked.ExceedsOrderLimit(5))
	assert.False(t, tracked.ExceedsOrderLimit(4))

	oversold := &Product{TrackStock: true, StockQuantity: 2, ReservedStock: 5}
	assert.Zero(t, oversold.AvailableStock())

	untracked := &Product{}
	assert.Equal(t, UnlimitedStock, untracked.AvailableStock())
	assert.True(t, untracked.CanFulfill(1_000_000))
	assert.False(t, untracked.IsLowStock())
	assert.False(t, untracked.ExceedsOrderLimit(1_000_000))
}
