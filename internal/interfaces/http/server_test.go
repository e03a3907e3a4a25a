package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/meatshop-backend/internal/config"
	"github.com/your-org/meatshop-backend/internal/domain/analytics"
	"github.com/your-org/meatshop-backend/internal/domain/cart"
	"github.com/your-org/meatshop-backend/internal/domain/inventory"
	"github.com/your-org/meatshop-backend/internal/domain/notification"
	"github.com/your-org/meatshop-backend/internal/domain/order"
	"github.com/your-org/meatshop-backend/internal/domain/product"
	"github.com/your-org/meatshop-backend/internal/domain/throttle"
	"github.com/your-org/meatshop-backend/internal/domain/user"
	"github.com/your-org/meatshop-backend/internal/infrastructure/database/postgres"
	redisstore "github.com/your-org/meatshop-backend/internal/infrastructure/database/redis"
	"github.com/your-org/meatshop-backend/internal/interfaces/http/handlers"
	"github.com/your-org/meatshop-backend/internal/interfaces/http/routes"
	"github.com/your-org/meatshop-backend/internal/pkg/auth"
	"github.com/your-org/meatshop-backend/internal/pkg/clock"
	"github.com/your-org/meatshop-backend/internal/pkg/email"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const customerPassword = "Longganisa88"

type discardMailer struct{}

func (discardMailer) SendOrderEmail(context.Context, email.TemplateKey, *email.OrderContext) error {
	return nil
}

type testServer struct {
	handler http.Handler
	db      *gorm.DB
	sqlDown bool
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	logger, _ := test.NewNullLogger()
	require.NoError(t, postgres.NewMigration(db, logger).RunAutoMigrations())

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := &config.Config{
		App:    config.AppConfig{Name: "Meat Shop", Version: "test", Environment: "test"},
		Server: config.ServerConfig{Port: "0", WriteTimeout: 10 * time.Second},
		JWT: config.JWTConfig{
			Secret:             "0123456789abcdef0123456789abcdef",
			AccessTokenExpiry:  15 * time.Minute,
			RefreshTokenExpiry: time.Hour,
		},
		Security: config.SecurityConfig{
			BcryptCost:         bcrypt.MinCost,
			CORSAllowedOrigins: []string{"http://localhost:3000"},
		},
		Store: config.StoreConfig{
			Currency:              "PHP",
			SeniorDiscountPercent: 20,
			BulkOrderQuantity:     20,
			GuestSessionTTL:       24 * time.Hour,
		},
	}

	clk := clock.NewManual(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	ledger := inventory.NewLedger(db, clk, logger)
	carts := cart.NewReconciler(db, logger)
	dispatcher := notification.NewDispatcher(db, clk)
	workflow := order.NewWorkflow(db, cfg, ledger, carts, dispatcher, discardMailer{}, clk, logger)
	limiter := throttle.New(redisstore.NewCounterStore(client), throttle.DefaultPolicy(), clk)
	users := user.NewService(db, cfg, limiter, carts, clk, logger)

	s := &testServer{db: db}
	server := NewServer(cfg, logger, &routes.Handlers{
		Auth:         handlers.NewAuthHandler(users, cfg),
		Product:      handlers.NewProductHandler(product.NewService(db)),
		Inventory:    handlers.NewInventoryHandler(ledger),
		Cart:         handlers.NewCartHandler(carts, cfg),
		Order:        handlers.NewOrderHandler(workflow),
		Notification: handlers.NewNotificationHandler(dispatcher),
		Analytics:    handlers.NewAnalyticsHandler(analytics.NewService(db, clk)),
		JWT:          auth.NewJWTManager(cfg),
	}, HealthCheck{Name: "database", Check: func(ctx context.Context) error {
		if s.sqlDown {
			return context.DeadlineExceeded
		}
		return sqlDB.PingContext(ctx)
	}})
	s.handler = server.Handler()
	return s
}

type call struct {
	method  string
	path    string
	body    interface{}
	token   string
	cookies []*http.Cookie
}

func (s *testServer) do(t *testing.T, c call) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var body bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded), w.Body.String())
	}
	return w, decoded
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == "session_id" {
			return cookie
		}
	}
	t.Fatal("session_id cookie not set")
	return nil
}

func (s *testServer) seedCustomer(t *testing.T) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(customerPassword), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, s.db.Create(&user.User{
		Email:     "juan@example.com",
		Password:  string(hash),
		FirstName: "Juan",
		LastName:  "dela Cruz",
		IsActive:  true,
	}).Error)
}

func (s *testServer) seedProduct(t *testing.T, stock int) *product.Product {
	t.Helper()
	p := &product.Product{
		SKU:           "PORK-LIEMPO",
		Name:          "Pork Liempo",
		Slug:          "pork-liempo",
		Unit:          "kg",
		Price:         38000,
		IsActive:      true,
		TrackStock:    true,
		StockQuantity: stock,
	}
	require.NoError(t, s.db.Create(p).Error)
	return p
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	s.sqlDown = true
	w, body = s.do(t, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "database unavailable", body["error"])

	w, body = s.do(t, call{method: http.MethodGet, path: "/ready"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", body["status"])
}

func TestServer_GuestCartSurvivesLoginAndCheckout(t *testing.T) {
	s := newTestServer(t)
	s.seedCustomer(t)
	p := s.seedProduct(t, 5)

	w, _ := s.do(t, call{
		method: http.MethodPost,
		path:   "/api/v1/cart/items",
		body:   cart.AddToCartRequest{ProductID: p.ID, Quantity: 2, Notes: "thin slices"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	session := sessionCookie(t, w)

	w, body := s.do(t, call{
		method:  http.MethodPost,
		path:    "/api/v1/cart/items",
		body:    cart.AddToCartRequest{ProductID: p.ID, Quantity: 10},
		cookies: []*http.Cookie{session},
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, float64(p.ID), body["product_id"])

	w, body = s.do(t, call{
		method:  http.MethodPost,
		path:    "/api/v1/auth/login",
		body:    user.LoginRequest{Email: "juan@example.com", Password: customerPassword},
		cookies: []*http.Cookie{session},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, sessionCookie(t, w).MaxAge < 0, "guest cookie is cleared")
	token := body["data"].(map[string]interface{})["access_token"].(string)

	w, body = s.do(t, call{method: http.MethodGet, path: "/api/v1/cart", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	items := body["data"].(map[string]interface{})["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, float64(2), items[0].(map[string]interface{})["quantity"])

	w, body = s.do(t, call{
		method: http.MethodPost,
		path:   "/api/v1/orders",
		token:  token,
		body: order.CheckoutRequest{
			CustomerName:  "Juan dela Cruz",
			Email:         "juan@example.com",
			Phone:         "09171234567",
			PaymentMethod: order.PaymentMethodCash,
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := body["data"].(map[string]interface{})
	assert.Equal(t, "pending", created["status"])
	assert.True(t, strings.HasPrefix(created["order_number"].(string), "ORD-20260314-"))

	w, body = s.do(t, call{method: http.MethodGet, path: "/api/v1/cart/count", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body["data"].(map[string]interface{})["count"])

	var stocked product.Product
	require.NoError(t, s.db.First(&stocked, p.ID).Error)
	assert.Equal(t, 2, stocked.ReservedStock)

	w, _ = s.do(t, call{method: http.MethodGet, path: "/api/v1/admin/orders", token: token})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestServer_LoginLockout(t *testing.T) {
	s := newTestServer(t)
	s.seedCustomer(t)

	wrong := user.LoginRequest{Email: "juan@example.com", Password: "wrong-password"}
	for i := 1; i < throttle.DefaultPolicy().MaxAttempts; i++ {
		w, _ := s.do(t, call{method: http.MethodPost, path: "/api/v1/auth/login", body: wrong})
		require.Equal(t, http.StatusUnauthorized, w.Code, "attempt %d", i)
	}

	w, body := s.do(t, call{method: http.MethodPost, path: "/api/v1/auth/login", body: wrong})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	assert.Equal(t, float64(1), body["lockout_count"])

	right := user.LoginRequest{Email: "juan@example.com", Password: customerPassword}
	w, _ = s.do(t, call{method: http.MethodPost, path: "/api/v1/auth/login", body: right})
	assert.Equal(t, http.StatusTooManyRequests, w.Code, "locked even with the right password")
}

func TestServer_RequiresAuthentication(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/v1/orders", "/api/v1/notifications", "/api/v1/admin/analytics/dashboard"} {
		w, _ := s.do(t, call{method: http.MethodGet, path: path})
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}
