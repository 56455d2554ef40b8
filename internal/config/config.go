// Package config loads service settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServiceName string
	ServiceID   string
	HTTPPort    int

	DBHost          string
	DBPort          int
	DBUser          string
	DBPassword      string
	DBName          string
	DatabaseURL     string
	DBRunMigrations bool

	RedisHost string
	RedisPort int
	CacheTTL  time.Duration

	RabbitMQHost string
	RabbitMQPort int
	RabbitMQUser string
	RabbitMQPass string
	OrderQueue   string

	ConsulEnabled bool
	ConsulHost    string
	ConsulPort    int

	GatewayPort             int
	OrderServiceFallbackURL string
	CORSAllowedOrigins      []string

	FulfillmentMinDelay time.Duration
	FulfillmentMaxDelay time.Duration
	WorkerMaxRetries    int
	WorkerRetryDelay    time.Duration

	ReconcileInterval   time.Duration
	ReconcileStaleAfter time.Duration

	PlacementTimeout time.Duration
	StartupTimeout   time.Duration
	ShutdownTimeout  time.Duration

	LogLevel             string
	OtelExporterEndpoint string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolenv(key string, def bool) bool {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

// listenv splits a comma-separated value, dropping empty entries.
func listenv(key string, def []string) []string {
	var out []string
	for _, v := range strings.Split(getenv(key, ""), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// durenv accepts Go duration strings ("90s", "5m") or a bare number of seconds.
func durenv(key string, def time.Duration) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}

// Load collects configuration from environment with defaults.
func Load() Config {
	return Config{
		ServiceName: getenv("SERVICE_NAME", "order-service"),
		ServiceID:   getenv("SERVICE_ID", "order-service-1"),
		HTTPPort:    atoienv("HTTP_PORT", 8082),

		DBHost:          getenv("DB_HOST", "localhost"),
		DBPort:          atoienv("DB_PORT", 5432),
		DBUser:          getenv("DB_USER", "minisys"),
		DBPassword:      getenv("DB_PASSWORD", "minisys123"),
		DBName:          getenv("DB_NAME", "minisys"),
		DatabaseURL:     getenv("DATABASE_URL", ""),
		DBRunMigrations: boolenv("DB_RUN_MIGRATIONS", true),

		RedisHost: getenv("REDIS_HOST", "localhost"),
		RedisPort: atoienv("REDIS_PORT", 6379),
		CacheTTL:  durenv("CACHE_TTL", 300*time.Second),

		RabbitMQHost: getenv("RABBITMQ_HOST", "localhost"),
		RabbitMQPort: atoienv("RABBITMQ_PORT", 5672),
		RabbitMQUser: getenv("RABBITMQ_USER", getenv("RABBITMQ_DEFAULT_USER", "guest")),
		RabbitMQPass: getenv("RABBITMQ_PASS", getenv("RABBITMQ_DEFAULT_PASS", "guest")),
		OrderQueue:   getenv("ORDER_QUEUE", "orders"),

		ConsulEnabled: boolenv("CONSUL_ENABLED", false),
		ConsulHost:    getenv("CONSUL_HOST", "localhost"),
		ConsulPort:    atoienv("CONSUL_PORT", 8500),

		GatewayPort:             atoienv("GATEWAY_PORT", 8080),
		OrderServiceFallbackURL: getenv("ORDER_SERVICE_FALLBACK_URL", "http://order-service:8082"),
		CORSAllowedOrigins:      listenv("CORS_ALLOWED_ORIGINS", []string{"*"}),

		FulfillmentMinDelay: durenv("FULFILLMENT_MIN_DELAY", 5*time.Second),
		FulfillmentMaxDelay: durenv("FULFILLMENT_MAX_DELAY", 15*time.Second),
		WorkerMaxRetries:    atoienv("WORKER_MAX_RETRIES", 5),
		WorkerRetryDelay:    durenv("WORKER_RETRY_DELAY", time.Second),

		ReconcileInterval:   durenv("RECONCILE_INTERVAL", time.Minute),
		ReconcileStaleAfter: durenv("RECONCILE_STALE_AFTER", 5*time.Minute),

		PlacementTimeout: durenv("PLACEMENT_TIMEOUT", 10*time.Second),
		StartupTimeout:   durenv("STARTUP_TIMEOUT", 60*time.Second),
		ShutdownTimeout:  durenv("SHUTDOWN_TIMEOUT", 15*time.Second),

		LogLevel:             getenv("LOG_LEVEL", "info"),
		OtelExporterEndpoint: getenv("OTEL_EXPORTER_ENDPOINT", ""),
	}
}
