package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/meatshop-backend/internal/config"
)

func testOrder() *OrderContext {
	return &OrderContext{
		OrderID:       7,
		OrderNumber:   "ORD-20260314-00007",
		CustomerName:  "Juan dela Cruz",
		CustomerEmail: "juan@example.com",
		Status:        "payment submitted",
		PaymentMethod: "qr",
		Items: []OrderLine{
			{Name: "Pork Belly", Unit: "kg", Quantity: 2, Price: 32000, Total: 64000},
		},
		Subtotal: 64000,
		Total:    64000,
		Currency: "PHP",
		Reason:   "reference number unreadable",
		PlacedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
}

func newTestService(t *testing.T, provider string) *Service {
	t.Helper()
	logger, _ := test.NewNullLogger()
	cfg := &config.Config{
		Email: config.EmailConfig{
			Provider:    provider,
			APIKey:      "test-key",
			FromEmail:   "orders@meatshop.local",
			FromName:    "Meat Shop",
			BaseURL:     "https://shop.example.com",
			TemplateDir: t.TempDir(),
		},
	}
	return NewService(cfg, logger)
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "PHP 450.00", FormatMoney(45000, "PHP"))
	assert.Equal(t, "PHP 0.05", FormatMoney(5, "PHP"))
	assert.Equal(t, "-PHP 12.50", FormatMoney(-1250, "PHP"))
}

func TestTemplateKey_Valid(t *testing.T) {
	for _, key := range TemplateKeys {
		assert.True(t, key.Valid(), key)
	}
	assert.False(t, TemplateKey("invoice").Valid())
}

func TestService_RenderFallbackTemplates(t *testing.T) {
	s := newTestService(t, "log")

	for _, key := range TemplateKeys {
		t.Run(string(key), func(t *testing.T) {
			html, err := s.Render(key, testOrder())
			require.NoError(t, err)
			assert.Contains(t, html, "ORD-20260314-00007")
			assert.Contains(t, html, "Pork Belly")
			assert.Contains(t, html, "PHP 640.00")
			assert.Contains(t, html, "https://shop.example.com/orders/7")
			assert.Contains(t, html, "reference number unreadable")
		})
	}

	_, err := s.Render(TemplateKey("invoice"), testOrder())
	assert.Error(t, err)
}

func TestService_SendOrderEmailRequiresRecipient(t *testing.T) {
	s := newTestService(t, "log")

	order := testOrder()
	order.CustomerEmail = ""
	assert.Error(t, s.SendOrderEmail(context.Background(), TemplateOrderPlaced, order))
	assert.Error(t, s.SendOrderEmail(context.Background(), TemplateOrderPlaced, nil))
	assert.NoError(t, s.SendOrderEmail(context.Background(), TemplateOrderPlaced, testOrder()))
}

func TestService_UnsupportedProvider(t *testing.T) {
	s := newTestService(t, "pigeon")
	assert.Error(t, s.SendOrderEmail(context.Background(), TemplateOrderPlaced, testOrder()))
}

func TestService_SendsThroughResend(t *testing.T) {
	var got resendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := newTestService(t, "resend")
	s.resendURL = server.URL

	require.NoError(t, s.SendOrderEmail(context.Background(), TemplatePaymentRejected, testOrder()))
	assert.Equal(t, []string{"juan@example.com"}, got.To)
	assert.Equal(t, "Payment Needs Attention - ORD-20260314-00007", got.Subject)
	assert.True(t, strings.HasPrefix(got.From, "Meat Shop"))
	assert.Contains(t, got.HTML, "Pork Belly")
}

func TestService_SendsThroughSendGrid(t *testing.T) {
	var got sendGridRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	s := newTestService(t, "sendgrid")
	s.sendGridURL = server.URL

	require.NoError(t, s.SendOrderEmail(context.Background(), TemplateOrderCancelled, testOrder()))
	require.Len(t, got.Personalizations, 1)
	assert.Equal(t, "juan@example.com", got.Personalizations[0].To[0].Email)
	assert.Equal(t, []string{"order_cancelled"}, got.Categories)
}

func TestService_ProviderErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	s := newTestService(t, "resend")
	s.resendURL = server.URL

	err := s.SendOrderEmail(context.Background(), TemplateOrderPlaced, testOrder())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
