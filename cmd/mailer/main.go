// cmd/mailer/main.go
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/meatshop-backend/internal/config"
	"github.com/your-org/meatshop-backend/internal/infrastructure/messaging/kafka"
	"github.com/your-org/meatshop-backend/internal/pkg/email"
	"github.com/your-org/meatshop-backend/internal/pkg/logger"
)

func main() {
	testRecipient := flag.String("test-email", "", "send one sample order email to this address and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := logger.New(cfg)
	sender := email.NewService(cfg, log)

	if *testRecipient != "" {
		sendSample(sender, *testRecipient, cfg.Store.Currency, log)
		return
	}

	if !cfg.Kafka.Enabled {
		log.Fatal("KAFKA_ENABLED must be set to run the mailer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, cfg.Kafka.EmailTopic, cfg.Kafka.Workers, log)

	log.WithFields(logrus.Fields{
		"topic":    cfg.Kafka.EmailTopic,
		"group":    cfg.Kafka.ConsumerGroup,
		"workers":  cfg.Kafka.Workers,
		"provider": cfg.Email.Provider,
	}).Info("📨 Mailer consuming email jobs")

	if err := consumer.Start(ctx, kafka.EmailJobHandler(sender, log)); err != nil {
		log.WithError(err).Fatal("Email job consumer stopped")
	}

	log.Info("✅ Mailer shutdown completed")
}

// sendSample checks provider credentials end to end
func sendSample(sender *email.Service, to, currency string, log logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sample := &email.OrderContext{
		OrderNumber:   "ORD-TEST-00000",
		CustomerName:  "Test Customer",
		CustomerEmail: to,
		Status:        "pending",
		PaymentMethod: "cash",
		PaymentStatus: "pending",
		Items: []email.OrderLine{
			{Name: "Ribeye Steak", Unit: "kg", Quantity: 1, Price: 120000, Total: 120000},
		},
		Subtotal: 120000,
		Total:    120000,
		Currency: currency,
		PlacedAt: time.Now().UTC(),
	}

	if err := sender.SendOrderEmail(ctx, email.TemplateOrderPlaced, sample); err != nil {
		log.WithError(err).Fatal("Sample email failed")
	}
	log.WithField("to", to).Info("✅ Sample email sent")
}
