package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/config"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/consumer"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/db"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/observability"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/publisher"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/readiness"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/reconciler"
	"go.uber.org/zap"
)

const (
	serviceName = "fulfillment-worker"
	prefetch    = 1
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetry, err := observability.Setup(ctx, serviceName, cfg.OtelExporterEndpoint)
	if err != nil {
		observability.NewLogger(serviceName, cfg.LogLevel, nil).Fatal("Failed to set up telemetry", zap.Error(err))
	}
	logger := observability.NewLogger(serviceName, cfg.LogLevel, telemetry.LoggerProvider)

	err = run(ctx, cfg, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		logger.Warn("⚠️ Failed to flush telemetry", zap.Error(err))
	}
	_ = logger.Sync()

	if err != nil {
		logger.Fatal("Fulfillment worker stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	// Connect to PostgreSQL
	database, err := readiness.Wait(ctx, "postgres", cfg.StartupTimeout, logger, func(ctx context.Context) (*db.PostgresDB, error) {
		return db.NewPostgresDB(ctx, db.Credentials{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			DBName:   cfg.DBName,
			URL:      cfg.DatabaseURL,
		}, logger)
	})
	if err != nil {
		return err
	}
	defer database.Close()

	if cfg.DBRunMigrations {
		if err := database.RunMigrations(); err != nil {
			return err
		}
	}

	// Connect to RabbitMQ
	rabbitMQ, err := readiness.Wait(ctx, "rabbitmq", cfg.StartupTimeout, logger, func(context.Context) (*messaging.RabbitMQ, error) {
		return messaging.NewRabbitMQ(cfg.RabbitMQHost, cfg.RabbitMQPort, cfg.RabbitMQUser, cfg.RabbitMQPass, logger)
	})
	if err != nil {
		return err
	}
	defer rabbitMQ.Close()

	// Declares the queue and its dead-letter queue; also used for retries.
	orderPublisher, err := publisher.NewOrderPublisher(rabbitMQ, cfg.OrderQueue)
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}

	orderRepo := db.NewOrderRepository(database)

	go reconciler.New(orderRepo, orderPublisher, cfg.ReconcileInterval, cfg.ReconcileStaleAfter, logger).Run(ctx)

	worker := consumer.NewFulfillmentWorker(
		orderRepo,
		consumer.SimulatedFulfiller{Min: cfg.FulfillmentMinDelay, Max: cfg.FulfillmentMaxDelay, Logger: logger},
		orderPublisher,
		logger,
		consumer.WithMaxRetries(cfg.WorkerMaxRetries),
		consumer.WithRetryDelay(cfg.WorkerRetryDelay),
	)

	hostname, _ := os.Hostname()
	deliveries, err := rabbitMQ.Consume(orderPublisher.Queue(), fmt.Sprintf("%s-%s-%d", serviceName, hostname, os.Getpid()), prefetch)
	if err != nil {
		return err
	}

	logger.Info("🚀 Fulfillment worker started", zap.String("queue", orderPublisher.Queue()))
	// A closed delivery channel means the broker connection is gone; exit so
	// the supervisor restarts the process.
	return worker.Run(ctx, deliveries)
}
