// cmd/api/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
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
	"github.com/your-org/meatshop-backend/internal/infrastructure/database/redis"
	"github.com/your-org/meatshop-backend/internal/infrastructure/messaging/kafka"
	"github.com/your-org/meatshop-backend/internal/interfaces/http"
	"github.com/your-org/meatshop-backend/internal/interfaces/http/handlers"
	"github.com/your-org/meatshop-backend/internal/interfaces/http/middleware"
	"github.com/your-org/meatshop-backend/internal/interfaces/http/routes"
	"github.com/your-org/meatshop-backend/internal/pkg/auth"
	"github.com/your-org/meatshop-backend/internal/pkg/clock"
	"github.com/your-org/meatshop-backend/internal/pkg/email"
	"github.com/your-org/meatshop-backend/internal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := logger.New(cfg)
	log.WithFields(logrus.Fields{
		"app":         cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	}).Info("🚀 Starting API")

	db, err := postgres.NewConnection(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	redisClient, err := redis.NewConnection(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	migration := postgres.NewMigration(db.GetDB(), log)
	if err := migration.RunAutoMigrations(); err != nil {
		log.WithError(err).Fatal("Database migration failed")
	}
	if err := migration.CreateIndexes(); err != nil {
		log.WithError(err).Warn("Index creation failed")
	}
	if cfg.IsDevelopment() {
		if err := migration.SeedInitialData(); err != nil {
			log.WithError(err).Warn("Data seeding failed")
		}
	}

	clk := clock.System()
	gdb := db.GetDB()

	var mailer order.Mailer = email.NewService(cfg, log)
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EmailTopic)
		mailer = kafka.NewQueuedMailer(producer, log)
		log.WithField("topic", cfg.Kafka.EmailTopic).Info("📨 Order emails are queued to Kafka")
	}

	ledger := inventory.NewLedger(gdb, clk, log)
	carts := cart.NewReconciler(gdb, log)
	dispatcher := notification.NewDispatcher(gdb, clk)
	workflow := order.NewWorkflow(gdb, cfg, ledger, carts, dispatcher, mailer, clk, log)

	counters := redisClient.Counters()
	loginThrottle := throttle.New(counters, throttle.PolicyFromConfig(cfg.Throttle), clk)
	users := user.NewService(gdb, cfg, loginThrottle, carts, clk, log)

	server := http.NewServer(cfg, log, &routes.Handlers{
		Auth:         handlers.NewAuthHandler(users, cfg),
		Product:      handlers.NewProductHandler(product.NewService(gdb)),
		Inventory:    handlers.NewInventoryHandler(ledger),
		Cart:         handlers.NewCartHandler(carts, cfg),
		Order:        handlers.NewOrderHandler(workflow),
		Notification: handlers.NewNotificationHandler(dispatcher),
		Analytics:    handlers.NewAnalyticsHandler(analytics.NewService(gdb, clk)),
		LoginLimiter: middleware.RateLimit(counters, cfg.Security.RateLimitPerMinute, log),
		JWT:          auth.NewJWTManager(cfg),
	},
		http.HealthCheck{Name: "database", Check: db.Health},
		http.HealthCheck{Name: "redis", Check: redisClient.Health},
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go purgeGuestCarts(ctx, carts, cfg.Store.GuestSessionTTL, clk, log)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("👋 Shutting down gracefully...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("Failed to shutdown HTTP server gracefully")
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.WithError(err).Error("Failed to flush Kafka producer")
		}
	}

	log.Info("✅ Server shutdown completed")
}

// purgeGuestCarts drops guest carts idle for longer than ttl, once an hour
func purgeGuestCarts(ctx context.Context, carts *cart.Reconciler, ttl time.Duration, clk clock.Clock, log logrus.FieldLogger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := carts.PurgeGuestCarts(ctx, clk.Now().Add(-ttl))
			if err != nil {
				log.WithError(err).Warn("Failed to purge guest carts")
				continue
			}
			if purged > 0 {
				log.WithField("lines", purged).Info("Purged stale guest cart lines")
			}
		}
	}
}
