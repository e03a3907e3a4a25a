package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/meatshop-backend/internal/config"
	redisstore "github.com/your-org/meatshop-backend/internal/infrastructure/database/redis"
	"github.com/your-org/meatshop-backend/internal/pkg/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testJWT() *auth.JWTManager {
	return auth.NewJWTManager(&config.Config{
		App: config.AppConfig{Name: "Meat Shop"},
		JWT: config.JWTConfig{
			Secret:             "0123456789abcdef0123456789abcdef",
			AccessTokenExpiry:  time.Minute,
			RefreshTokenExpiry: time.Hour,
		},
	})
}

func perform(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	jwtManager := testJWT()
	customer, err := jwtManager.GenerateTokenPair(2, "juan@example.com", false)
	require.NoError(t, err)
	admin, err := jwtManager.GenerateTokenPair(1, "admin@meatshop.local", true)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", AuthMiddleware(jwtManager), func(c *gin.Context) {
		id, _ := GetUserIDFromContext(c)
		c.JSON(http.StatusOK, gin.H{"user_id": id})
	})
	r.GET("/admin", AuthMiddleware(jwtManager), AdminMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"missing header", "/me", "", http.StatusUnauthorized},
		{"wrong scheme", "/me", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "/me", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"refresh token", "/me", "Bearer " + customer.RefreshToken, http.StatusUnauthorized},
		{"customer", "/me", "Bearer " + customer.AccessToken, http.StatusOK},
		{"customer on admin route", "/admin", "Bearer " + customer.AccessToken, http.StatusForbidden},
		{"admin", "/admin", "Bearer " + admin.AccessToken, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			w := perform(r, http.MethodGet, tt.path, headers)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestOptionalAuthMiddleware(t *testing.T) {
	jwtManager := testJWT()
	pair, err := jwtManager.GenerateTokenPair(2, "juan@example.com", false)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/cart", OptionalAuthMiddleware(jwtManager), func(c *gin.Context) {
		_, ok := GetUserIDFromContext(c)
		c.JSON(http.StatusOK, gin.H{"signed_in": ok})
	})

	w := perform(r, http.MethodGet, "/cart", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"signed_in": false}`, w.Body.String())

	w = perform(r, http.MethodGet, "/cart", map[string]string{"Authorization": "Bearer expired.or.bad"})
	assert.JSONEq(t, `{"signed_in": false}`, w.Body.String())

	w = perform(r, http.MethodGet, "/cart", map[string]string{"Authorization": "Bearer " + pair.AccessToken})
	assert.JSONEq(t, `{"signed_in": true}`, w.Body.String())
}

func TestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	logger, _ := test.NewNullLogger()

	r := gin.New()
	r.POST("/login", RateLimit(redisstore.NewCounterStore(client), 3, logger), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 3; i++ {
		w := perform(r, http.MethodPost, "/login", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := perform(r, http.MethodPost, "/login", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	mr.FastForward(61 * time.Second)
	w = perform(r, http.MethodPost, "/login", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Remaining"))

	mr.Close()
	w = perform(r, http.MethodPost, "/login", nil)
	assert.Equal(t, http.StatusOK, w.Code, "fails open without redis")
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(RequestIDKey))
	})

	w := perform(r, http.MethodGet, "/", map[string]string{RequestIDHeader: "abc-123"})
	assert.Equal(t, "abc-123", w.Body.String())
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	w = perform(r, http.MethodGet, "/", nil)
	assert.Len(t, w.Body.String(), 36)
	assert.Equal(t, w.Body.String(), w.Header().Get(RequestIDHeader))
}
