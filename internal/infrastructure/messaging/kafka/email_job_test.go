package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/your-org/meatshop-backend/internal/pkg/email"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendOrderEmail(ctx context.Context, key email.TemplateKey, data *email.OrderContext) error {
	args := m.Called(ctx, key, data)
	return args.Error(0)
}

func quietLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func sampleContext() *email.OrderContext {
	return &email.OrderContext{
		OrderID:       7,
		OrderNumber:   "ORD-20260101-00007",
		CustomerEmail: "ana@example.com",
		Total:         125000,
		Currency:      "PHP",
	}
}

func TestQueuedMailer_PublishesJobKeyedByOrderNumber(t *testing.T) {
	w := &recordingWriter{}
	mailer := NewQueuedMailer(&Producer{w: w}, quietLogger())

	err := mailer.SendOrderEmail(context.Background(), email.TemplateOrderPlaced, sampleContext())
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "ORD-20260101-00007", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "email.order_placed", string(msg.Headers[0].Value))

	var job EmailJob
	require.NoError(t, json.Unmarshal(msg.Value, &job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, email.TemplateOrderPlaced, job.Template)
	assert.Equal(t, uint(7), job.Context.OrderID)
	assert.Equal(t, int64(125000), job.Context.Total)
}

func TestQueuedMailer_RejectsUnknownTemplate(t *testing.T) {
	w := &recordingWriter{}
	mailer := NewQueuedMailer(&Producer{w: w}, quietLogger())

	err := mailer.SendOrderEmail(context.Background(), email.TemplateKey("welcome"), sampleContext())
	assert.Error(t, err)
	assert.Empty(t, w.msgs)
}

func TestQueuedMailer_SurfacesBrokerError(t *testing.T) {
	w := &recordingWriter{err: errors.New("leader not available")}
	mailer := NewQueuedMailer(&Producer{w: w}, quietLogger())

	err := mailer.SendOrderEmail(context.Background(), email.TemplateOrderCancelled, sampleContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestEmailJobHandler(t *testing.T) {
	valid, err := json.Marshal(EmailJob{ID: "job-1", Template: email.TemplatePaymentApproved, Context: sampleContext()})
	require.NoError(t, err)
	unknown, err := json.Marshal(EmailJob{ID: "job-2", Template: "newsletter", Context: sampleContext()})
	require.NoError(t, err)

	tests := []struct {
		name       string
		value      []byte
		senderErr  error
		wantPoison bool
		wantErr    bool
		wantSent   int
	}{
		{name: "delivers", value: valid, wantSent: 1},
		{name: "malformed json is poison", value: []byte("{"), wantErr: true, wantPoison: true},
		{name: "unknown template is poison", value: unknown, wantErr: true, wantPoison: true},
		{name: "sender failure is retryable", value: valid, senderErr: errors.New("smtp down"), wantErr: true, wantSent: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := new(mockSender)
			if tt.wantSent > 0 {
				sender.On("SendOrderEmail", mock.Anything, email.TemplatePaymentApproved, mock.AnythingOfType("*email.OrderContext")).
					Return(tt.senderErr)
			}
			h := EmailJobHandler(sender, quietLogger())

			err := h(context.Background(), kafka.Message{Value: tt.value})
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantPoison, errors.Is(err, ErrPoison))
			} else {
				require.NoError(t, err)
			}
			sender.AssertExpectations(t)
			sender.AssertNumberOfCalls(t, "SendOrderEmail", tt.wantSent)
		})
	}
}
