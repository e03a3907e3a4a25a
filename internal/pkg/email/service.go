// internal/pkg/email/service.go
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/meatshop-backend/internal/config"
)

// Service renders order templates and hands them to the configured provider
type Service struct {
	config    *config.Config
	logger    logrus.FieldLogger
	templates map[TemplateKey]*template.Template
	client    *http.Client

	resendURL   string
	sendGridURL string
}

// NewService creates a new email service
func NewService(cfg *config.Config, logger logrus.FieldLogger) *Service {
	service := &Service{
		config:    cfg,
		logger:    logger,
		templates: make(map[TemplateKey]*template.Template),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		resendURL:   "https://api.resend.com/emails",
		sendGridURL: "https://api.sendgrid.com/v3/mail/send",
	}

	service.loadTemplates()
	return service
}

// SendOrderEmail renders the template for key and sends it to the order's customer
func (s *Service) SendOrderEmail(ctx context.Context, key TemplateKey, data *OrderContext) error {
	if data == nil || data.CustomerEmail == "" {
		return fmt.Errorf("order email %s has no recipient", key)
	}

	htmlContent, err := s.Render(key, data)
	if err != nil {
		return err
	}

	return s.SendEmail(ctx, &Email{
		To:          []string{data.CustomerEmail},
		Subject:     subjectFor(key, data.OrderNumber),
		HTMLContent: htmlContent,
		Template:    key,
	})
}

// SendEmail sends an email using the configured provider
func (s *Service) SendEmail(ctx context.Context, email *Email) error {
	switch s.config.Email.Provider {
	case "smtp":
		return s.sendSMTPEmail(email)
	case "resend":
		return s.sendResendEmail(ctx, email)
	case "sendgrid":
		return s.sendSendGridEmail(ctx, email)
	case "log":
		s.logger.WithFields(logrus.Fields{
			"to":       email.To,
			"subject":  email.Subject,
			"template": email.Template,
		}).Info("Email delivery skipped (log provider)")
		return nil
	default:
		return fmt.Errorf("unsupported email provider: %s", s.config.Email.Provider)
	}
}

// Render renders an order template with site-wide data
func (s *Service) Render(key TemplateKey, data *OrderContext) (string, error) {
	tmpl, exists := s.templates[key]
	if !exists {
		return "", fmt.Errorf("template %s not found", key)
	}

	templateData := GetBaseTemplateData(s.config.Email.FromName, s.config.Email.BaseURL, data)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, templateData); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", key, err)
	}

	return buf.String(), nil
}

// loadTemplates loads all email templates, falling back to a built-in layout
func (s *Service) loadTemplates() {
	templateDir := s.config.Email.TemplateDir
	if templateDir == "" {
		templateDir = "./templates/emails"
	}

	for _, key := range TemplateKeys {
		templatePath := filepath.Join(templateDir, string(key)+".html")
		tmpl, err := template.New(filepath.Base(templatePath)).Funcs(templateFuncs).ParseFiles(templatePath)
		if err != nil {
			s.logger.WithField("template", key).Debug("Using fallback email template")
			s.templates[key] = fallbackTemplate(key)
			continue
		}
		s.templates[key] = tmpl
	}
}

var templateFuncs = template.FuncMap{
	"money": FormatMoney,
}

var fallbackHeadings = map[TemplateKey]string{
	TemplateOrderPlaced:       "Thank you for your order!",
	TemplatePaymentSubmitted:  "We received your payment proof. Our staff will review it shortly.",
	TemplatePaymentApproved:   "Your payment has been approved and your order is confirmed.",
	TemplatePaymentRejected:   "We could not verify your payment. Please submit a new proof of payment.",
	TemplateOrderStatusUpdate: "Your order status has changed.",
	TemplateOrderCancelled:    "Your order has been cancelled.",
}

// fallbackTemplate creates a basic HTML template as fallback
func fallbackTemplate(key TemplateKey) *template.Template {
	basicTemplate := `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.SiteName}}</title>
</head>
<body style="font-family: Arial, sans-serif; margin: 0; padding: 20px; background-color: #f4f4f4;">
    <div style="max-width: 600px; margin: 0 auto; background-color: white; padding: 20px; border-radius: 8px;">
        <h1 style="color: #333;">{{.SiteName}}</h1>
        <p>Hello {{.Order.CustomerName}},</p>
        <p>` + fallbackHeadings[key] + `</p>
        <p><strong>Order:</strong> {{.Order.OrderNumber}}<br>
           <strong>Status:</strong> {{.Order.Status}}</p>
        {{if .Order.Reason}}<p><strong>Reason:</strong> {{.Order.Reason}}</p>{{end}}
        <table style="width: 100%; border-collapse: collapse;">
        {{range .Order.Items}}
            <tr><td>{{.Name}}</td><td>{{.Quantity}} {{.Unit}}</td><td style="text-align: right;">{{money .Total $.Order.Currency}}</td></tr>
        {{end}}
        </table>
        {{if .Order.Discount}}<p>Discount: {{money .Order.Discount .Order.Currency}}</p>{{end}}
        <p><strong>Total: {{money .Order.Total .Order.Currency}}</strong></p>
        <p><a href="{{.OrderURL}}">View your order</a></p>
        <p>Best regards,<br>{{.SiteName}} Team</p>
        <hr>
        <p style="font-size: 12px; color: #666;">
            &copy; {{.Year}} {{.SiteName}}. All rights reserved.
        </p>
    </div>
</body>
</html>`

	return template.Must(template.New(string(key)).Funcs(templateFuncs).Parse(basicTemplate))
}
