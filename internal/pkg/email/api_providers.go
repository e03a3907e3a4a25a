// internal/pkg/email/api_providers.go
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Resend API structures
type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	ReplyTo string   `json:"reply_to,omitempty"`
	Tags    []tag    `json:"tags,omitempty"`
}

type tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SendGrid API structures
type sendGridRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
	ReplyTo          *sendGridAddress          `json:"reply_to,omitempty"`
	Categories       []string                  `json:"categories,omitempty"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// sendResendEmail sends email using the Resend API
func (s *Service) sendResendEmail(ctx context.Context, email *Email) error {
	body := resendRequest{
		From:    s.fromAddress(),
		To:      email.To,
		Subject: email.Subject,
		HTML:    email.HTMLContent,
		ReplyTo: s.config.Email.ReplyTo,
		Tags:    []tag{{Name: "template", Value: string(email.Template)}},
	}
	return s.postJSON(ctx, "Resend", s.resendURL, body, http.StatusOK)
}

// sendSendGridEmail sends email using the SendGrid v3 API
func (s *Service) sendSendGridEmail(ctx context.Context, email *Email) error {
	to := make([]sendGridAddress, 0, len(email.To))
	for _, recipient := range email.To {
		to = append(to, sendGridAddress{Email: recipient})
	}

	var replyTo *sendGridAddress
	if s.config.Email.ReplyTo != "" {
		replyTo = &sendGridAddress{Email: s.config.Email.ReplyTo}
	}

	body := sendGridRequest{
		Personalizations: []sendGridPersonalization{{To: to}},
		From:             sendGridAddress{Email: s.config.Email.FromEmail, Name: s.config.Email.FromName},
		Subject:          email.Subject,
		Content:          []sendGridContent{{Type: "text/html", Value: email.HTMLContent}},
		ReplyTo:          replyTo,
		Categories:       []string{string(email.Template)},
	}
	return s.postJSON(ctx, "SendGrid", s.sendGridURL, body, http.StatusAccepted)
}

func (s *Service) postJSON(ctx context.Context, provider, url string, body interface{}, wantStatus int) error {
	if s.config.Email.APIKey == "" {
		return fmt.Errorf("%s API key not configured", provider)
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", provider, err)
	}
	req.Header.Set("Authorization", "Bearer "+s.config.Email.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s request: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return fmt.Errorf("%s API returned status %d", provider, resp.StatusCode)
	}
	return nil
}
