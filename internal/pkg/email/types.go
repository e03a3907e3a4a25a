// internal/pkg/email/types.go
package email

import (
	"fmt"
	"time"
)

// TemplateKey names an order email template
type TemplateKey string

const (
	TemplateOrderPlaced       TemplateKey = "order_placed"
	TemplatePaymentSubmitted  TemplateKey = "payment_submitted"
	TemplatePaymentApproved   TemplateKey = "payment_approved"
	TemplatePaymentRejected   TemplateKey = "payment_rejected"
	TemplateOrderStatusUpdate TemplateKey = "order_status_update"
	TemplateOrderCancelled    TemplateKey = "order_cancelled"
)

// TemplateKeys lists every template the service loads
var TemplateKeys = []TemplateKey{
	TemplateOrderPlaced,
	TemplatePaymentSubmitted,
	TemplatePaymentApproved,
	TemplatePaymentRejected,
	TemplateOrderStatusUpdate,
	TemplateOrderCancelled,
}

// Valid reports whether k is a known template
func (k TemplateKey) Valid() bool {
	for _, key := range TemplateKeys {
		if key == k {
			return true
		}
	}
	return false
}

// Email represents an email message
type Email struct {
	To          []string    `json:"to"`
	Subject     string      `json:"subject"`
	HTMLContent string      `json:"html_content"`
	Template    TemplateKey `json:"template"`
}

// OrderContext is everything an order template may show
type OrderContext struct {
	OrderID       uint        `json:"order_id"`
	OrderNumber   string      `json:"order_number"`
	CustomerName  string      `json:"customer_name"`
	CustomerEmail string      `json:"customer_email"`
	Status        string      `json:"status"`
	PaymentMethod string      `json:"payment_method"`
	PaymentStatus string      `json:"payment_status"`
	Items         []OrderLine `json:"items"`
	Subtotal      int64       `json:"subtotal"` // In cents
	Discount      int64       `json:"discount"`
	Total         int64       `json:"total"`
	Currency      string      `json:"currency"`
	Reason        string      `json:"reason,omitempty"` // Rejection or cancellation reason
	PlacedAt      time.Time   `json:"placed_at"`
}

// OrderLine represents an item in the order
type OrderLine struct {
	Name     string `json:"name"`
	Unit     string `json:"unit"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
	Total    int64  `json:"total"`
}

// TemplateData wraps an order with site-wide fields
type TemplateData struct {
	SiteName   string
	SiteURL    string
	SupportURL string
	OrderURL   string
	Year       int
	Order      *OrderContext
}

// GetBaseTemplateData returns common template data
func GetBaseTemplateData(siteName, siteURL string, order *OrderContext) TemplateData {
	return TemplateData{
		SiteName:   siteName,
		SiteURL:    siteURL,
		SupportURL: siteURL + "/support",
		OrderURL:   fmt.Sprintf("%s/orders/%d", siteURL, order.OrderID),
		Year:       time.Now().Year(),
		Order:      order,
	}
}

// FormatMoney renders cents as a decimal amount with currency code
func FormatMoney(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%s %d.%02d", sign, currency, cents/100, cents%100)
}

func subjectFor(key TemplateKey, orderNumber string) string {
	switch key {
	case TemplateOrderPlaced:
		return fmt.Sprintf("Order Received - %s", orderNumber)
	case TemplatePaymentSubmitted:
		return fmt.Sprintf("Payment Proof Received - %s", orderNumber)
	case TemplatePaymentApproved:
		return fmt.Sprintf("Payment Approved - %s", orderNumber)
	case TemplatePaymentRejected:
		return fmt.Sprintf("Payment Needs Attention - %s", orderNumber)
	case TemplateOrderCancelled:
		return fmt.Sprintf("Order Cancelled - %s", orderNumber)
	default:
		return fmt.Sprintf("Order Update - %s", orderNumber)
	}
}
