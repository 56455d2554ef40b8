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
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/config"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/discovery"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/gateway"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/handlers"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/observability"
	"go.uber.org/zap"
)

const serviceName = "api-gateway"

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := observability.NewLogger(serviceName, cfg.LogLevel, nil)
	defer logger.Sync()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	var resolver gateway.Resolver
	if cfg.ConsulEnabled {
		consul, err := discovery.NewConsulClient(ctx, cfg.ConsulHost, cfg.ConsulPort, logger)
		if err != nil {
			logger.Warn("⚠️ Failed to connect to Consul, using DNS fallback", zap.Error(err))
		} else {
			resolver = consul
		}
	}

	gw := gateway.New(resolver, map[string]string{
		gateway.OrderService: cfg.OrderServiceFallbackURL,
	}, logger)
	gw.Discover(ctx)
	go gw.Watch(ctx)

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.GatewayPort),
		Handler: gw.Router(
			handlers.RequestID(), handlers.AccessLog(logger), handlers.Recovery(logger),
			handlers.CORS(cfg.CORSAllowedOrigins),
		),
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("⚠️ Failed to shut down gateway", zap.Error(err))
		}
	}()

	logger.Info("🚀 API Gateway starting", zap.Int("port", cfg.GatewayPort))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("API Gateway stopped", zap.Error(err))
	}
	<-drained
}
