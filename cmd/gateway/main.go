package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/api"
	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/audit"
	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/config"
	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/interfaces"
	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/ledger"
	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/provider"
	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/service"
	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/telemetry"
	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/webhook"
)

func main() {
	cfg := config.Load()

	if err := telemetry.InitTelemetry("payment-gateway"); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Payment Gateway")

	// Ledger backend: Postgres when configured, in-memory otherwise.
	var txLedger interfaces.TransactionLedger
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		pg := ledger.NewPostgresLedger(db)
		if err := pg.InitDB(); err != nil {
			telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
		}
		txLedger = pg
	} else {
		telemetry.Logger.Warn("DATABASE_URL not set, using in-memory ledger")
		txLedger = ledger.NewMemoryLedger()
	}

	// Webhook dedupe: Redis when configured so replicas share state.
	var dedupe interfaces.DedupeStore
	if cfg.RedisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		dedupe = webhook.NewRedisDedupeStore(redisClient)
	} else {
		dedupe = webhook.NewMemoryDedupeStore()
	}

	// Audit sink: Kafka when configured, structured log otherwise.
	var auditSink interfaces.AuditSink
	if cfg.KafkaBrokers != "" {
		kafkaSink := audit.NewKafkaSink(cfg.KafkaBrokers)
		defer kafkaSink.Close()
		auditSink = kafkaSink
	} else {
		auditSink = audit.NewLogSink()
	}

	adapters := map[string]interfaces.ProviderAdapter{
		"stripe": provider.NewStripeAdapter(cfg.StripeBaseURL, cfg.StripeSecretKey, cfg.StripeWebhookSecret, nil),
		"paypal": provider.NewPayPalAdapter(cfg.PayPalBaseURL, cfg.PayPalClientID, cfg.PayPalClientSecret, cfg.PayPalWebhookSecret, nil),
	}

	locks := ledger.NewKeyedLock()
	selector := service.NewProviderSelector(cfg.Providers, cfg.DefaultProvider)
	fees := service.NewFeeCalculator(cfg.Providers)
	ingestor := webhook.NewIngestor(adapters, txLedger, dedupe, auditSink, locks)
	gateway := service.NewGateway(txLedger, adapters, selector, fees, ingestor, auditSink, locks, cfg.MaxPaymentAmount)

	r := api.NewRouter(gateway)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		telemetry.Logger.Info("Payment Gateway starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
}
