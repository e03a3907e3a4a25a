// internal/infrastructure/messaging/kafka/email_job.go
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/your-org/meatshop-backend/internal/pkg/email"
)

const headerEventType = "x-event-type"

// EmailJob is the queued form of one order email
type EmailJob struct {
	ID         string              `json:"id"`
	Template   email.TemplateKey   `json:"template"`
	Context    *email.OrderContext `json:"context"`
	EnqueuedAt time.Time           `json:"enqueued_at"`
}

// Publisher is satisfied by Producer
type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) error
}

// OrderEmailSender delivers a rendered order email
type OrderEmailSender interface {
	SendOrderEmail(ctx context.Context, key email.TemplateKey, data *email.OrderContext) error
}

// QueuedMailer enqueues order emails instead of sending them inline
type QueuedMailer struct {
	publisher Publisher
	logger    logrus.FieldLogger
}

// NewQueuedMailer creates a mailer that writes jobs to publisher
func NewQueuedMailer(publisher Publisher, logger logrus.FieldLogger) *QueuedMailer {
	return &QueuedMailer{publisher: publisher, logger: logger}
}

// SendOrderEmail publishes an EmailJob keyed by order number
func (m *QueuedMailer) SendOrderEmail(ctx context.Context, key email.TemplateKey, data *email.OrderContext) error {
	if !key.Valid() {
		return fmt.Errorf("unknown email template %q", key)
	}
	if data == nil {
		return fmt.Errorf("email job %s has no order context", key)
	}

	job := EmailJob{
		ID:         uuid.NewString(),
		Template:   key,
		Context:    data,
		EnqueuedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode email job: %w", err)
	}

	if err := m.publisher.Publish(ctx, []byte(data.OrderNumber), payload,
		kafka.Header{Key: headerEventType, Value: []byte("email." + string(key))},
	); err != nil {
		return err
	}

	m.logger.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"template": key,
		"order_id": data.OrderID,
	}).Debug("Email job queued")
	return nil
}

// EmailJobHandler decodes EmailJobs and hands them to sender. Malformed jobs
// are reported as ErrPoison so the consumer commits past them.
func EmailJobHandler(sender OrderEmailSender, logger logrus.FieldLogger) Handler {
	return func(ctx context.Context, m kafka.Message) error {
		var job EmailJob
		if err := json.Unmarshal(m.Value, &job); err != nil {
			return fmt.Errorf("%w: %v", ErrPoison, err)
		}
		if !job.Template.Valid() || job.Context == nil {
			return fmt.Errorf("%w: job %s has template %q", ErrPoison, job.ID, job.Template)
		}

		if err := sender.SendOrderEmail(ctx, job.Template, job.Context); err != nil {
			return fmt.Errorf("failed to deliver email job %s: %w", job.ID, err)
		}

		logger.WithFields(logrus.Fields{
			"job_id":   job.ID,
			"template": job.Template,
			"order_id": job.Context.OrderID,
		}).Info("Email job delivered")
		return nil
	}
}
