package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/cache"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/config"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/db"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/discovery"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/handlers"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/observability"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/publisher"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/readiness"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/service"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetry, err := observability.Setup(ctx, cfg.ServiceName, cfg.OtelExporterEndpoint)
	if err != nil {
		observability.NewLogger(cfg.ServiceName, cfg.LogLevel, nil).Fatal("Failed to set up telemetry", zap.Error(err))
	}
	logger := observability.NewLogger(cfg.ServiceName, cfg.LogLevel, telemetry.LoggerProvider)

	err = run(ctx, cfg, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		logger.Warn("⚠️ Failed to flush telemetry", zap.Error(err))
	}
	_ = logger.Sync()

	if err != nil {
		logger.Fatal("Order service stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

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
		logger.Info("✅ Migrations applied")
	}

	// Connect to Redis
	redisCache, err := readiness.Wait(ctx, "redis", cfg.StartupTimeout, logger, func(ctx context.Context) (*cache.RedisCache, error) {
		return cache.Connect(ctx, cfg.RedisHost, cfg.RedisPort, logger)
	})
	if err != nil {
		return err
	}
	defer redisCache.Close()

	// Connect to RabbitMQ
	rabbitMQ, err := readiness.Wait(ctx, "rabbitmq", cfg.StartupTimeout, logger, func(context.Context) (*messaging.RabbitMQ, error) {
		return messaging.NewRabbitMQ(cfg.RabbitMQHost, cfg.RabbitMQPort, cfg.RabbitMQUser, cfg.RabbitMQPass, logger)
	})
	if err != nil {
		return err
	}
	defer rabbitMQ.Close()

	orderPublisher, err := publisher.NewOrderPublisher(rabbitMQ, cfg.OrderQueue)
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}

	productRepo := db.NewProductRepository(database)
	catalog := db.NewCachedProductRepository(productRepo, redisCache, cfg.CacheTTL, logger)
	orderRepo := db.NewOrderRepository(database)

	orderService := service.NewOrderService(orderRepo, orderRepo, catalog, orderPublisher, logger,
		service.WithPlacementTimeout(cfg.PlacementTimeout))

	dependencies := map[string]readiness.Checker{
		"postgres": database,
		"redis":    redisCache,
		"rabbitmq": rabbitMQ,
	}
	router := handlers.NewRouter(
		handlers.NewOrderHandler(orderService, dependencies, cfg.ServiceName, logger),
		handlers.NewProductHandler(catalog, logger),
		logger,
		handlers.CORS(cfg.CORSAllowedOrigins),
	)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("🚀 Order service starting", zap.Int("port", cfg.HTTPPort), zap.String("queue", orderPublisher.Queue()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if cfg.ConsulEnabled {
		consul, err := discovery.NewConsulClient(ctx, cfg.ConsulHost, cfg.ConsulPort, logger)
		if err != nil {
			logger.Warn("⚠️ Consul unavailable, skipping registration", zap.Error(err))
		} else if err := consul.Register(discovery.ServiceConfig{
			Name: cfg.ServiceName,
			ID:   cfg.ServiceID,
			Port: cfg.HTTPPort,
			Tags: []string{"api", "orders", "products"},
		}); err != nil {
			logger.Warn("⚠️ Failed to register with Consul", zap.Error(err))
		} else {
			defer func() {
				if err := consul.Deregister(cfg.ServiceID); err != nil {
					logger.Warn("⚠️ Failed to deregister from Consul", zap.Error(err))
				}
			}()
		}
	}

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}
