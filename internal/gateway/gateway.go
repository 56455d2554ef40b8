// Package gateway proxies /api/* to the order service, resolving it through
// Consul with a fixed fallback URL.
package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	OrderService = "order-service"
	// PathPrefix is stripped before a request is forwarded.
	PathPrefix = "/api"

	refreshInterval = 10 * time.Second
	healthTimeout   = 2 * time.Second
)

type Resolver interface {
	ServiceURL(ctx context.Context, serviceName string) (string, error)
}

type Gateway struct {
	resolver  Resolver
	fallbacks map[string]string
	client    *http.Client
	logger    *zap.Logger

	mu       sync.RWMutex
	proxies  map[string]*httputil.ReverseProxy
	services map[string]string
}

// New builds a gateway for the services named in fallbacks. resolver may be
// nil, in which case only the fallback URLs are used.
func New(resolver Resolver, fallbacks map[string]string, logger *zap.Logger) *Gateway {
	return &Gateway{
		resolver:  resolver,
		fallbacks: fallbacks,
		client:    &http.Client{Timeout: healthTimeout},
		logger:    logger,
		proxies:   make(map[string]*httputil.ReverseProxy),
		services:  make(map[string]string),
	}
}

// Discover resolves every service once.
func (g *Gateway) Discover(ctx context.Context) {
	for svc, fallback := range g.fallbacks {
		target := fallback
		if g.resolver != nil {
			resolved, err := g.resolver.ServiceURL(ctx, svc)
			if err != nil {
				g.logger.Warn("⚠️ Service not found in Consul, using fallback",
					zap.String("service", svc), zap.String("fallback", fallback), zap.Error(err))
			} else {
				target = resolved
			}
		}
		g.updateProxy(svc, target)
	}
}

// Watch re-resolves services until ctx is done.
func (g *Gateway) Watch(ctx context.Context) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Discover(ctx)
		}
	}
}

func (g *Gateway) updateProxy(serviceName, serviceURL string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.services[serviceName] == serviceURL {
		return
	}

	target, err := url.Parse(serviceURL)
	if err != nil {
		g.logger.Error("❌ Invalid service URL", zap.String("service", serviceName), zap.Error(err))
		return
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		g.logger.Error("❌ Proxy error", zap.String("service", serviceName), zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `{"error":"upstream_unavailable","message":"`+serviceName+` unavailable"}`)
	}

	g.proxies[serviceName] = proxy
	g.services[serviceName] = serviceURL
	g.logger.Info("✅ Updated route", zap.String("service", serviceName), zap.String("target", serviceURL))
}

func (g *Gateway) proxy(serviceName string) *httputil.ReverseProxy {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.proxies[serviceName]
}

// Forward returns a handler proxying to serviceName with PathPrefix removed.
func (g *Gateway) Forward(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		proxy := g.proxy(serviceName)
		if proxy == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "upstream_unavailable",
				"message": serviceName + " unavailable",
			})
			return
		}

		req := c.Request.Clone(c.Request.Context())
		req.URL.Path = strings.TrimPrefix(req.URL.Path, PathPrefix)
		if req.URL.Path == "" {
			req.URL.Path = "/"
		}
		req.URL.RawPath = ""
		if c.Writer.Header().Get("Access-Control-Allow-Origin") != "" {
			// CORS was answered here; the upstream must not add its own headers.
			req.Header.Del("Origin")
		}

		g.logger.Debug("🔀 Routing request",
			zap.String("method", req.Method), zap.String("path", req.URL.Path), zap.String("service", serviceName))
		proxy.ServeHTTP(c.Writer, req)
	}
}

func (g *Gateway) HealthCheck(c *gin.Context) {
	g.mu.RLock()
	services := make(map[string]string, len(g.services))
	for name, u := range g.services {
		services[name] = u
	}
	g.mu.RUnlock()

	statuses := make(map[string]string, len(services))
	allHealthy := true
	for name, u := range services {
		if g.upstreamHealthy(c.Request.Context(), u) {
			statuses[name] = "healthy"
			continue
		}
		statuses[name] = "unhealthy"
		allHealthy = false
	}

	status := "healthy"
	if !allHealthy {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"service":  "api-gateway",
		"services": statuses,
	})
}

func (g *Gateway) upstreamHealthy(ctx context.Context, baseURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (g *Gateway) ListServices(c *gin.Context) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c.JSON(http.StatusOK, gin.H{"services": g.services})
}

// Router wires the gateway routes behind the given middleware.
func (g *Gateway) Router(middleware ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(middleware...)

	router.GET("/health", g.HealthCheck)
	router.GET("/services", g.ListServices)
	router.Any(PathPrefix+"/*path", g.Forward(OrderService))

	return router
}
