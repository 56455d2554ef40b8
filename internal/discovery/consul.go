// Package discovery registers services with Consul and resolves them.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

var ErrNoHealthyInstance = errors.New("no healthy instance")

type ConsulClient struct {
	client *api.Client
	logger *zap.Logger
}

type ServiceConfig struct {
	Name string
	ID   string
	// Address defaults to this host's outbound IP.
	Address string
	Port    int
	Tags    []string
	// HealthPath is polled by Consul over HTTP; defaults to /health.
	HealthPath string
}

func NewConsulClient(ctx context.Context, host string, port int, logger *zap.Logger) (*ConsulClient, error) {
	config := api.DefaultConfig()
	config.Address = fmt.Sprintf("%s:%d", host, port)

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Consul client: %w", err)
	}

	c := &ConsulClient{client: client, logger: logger}
	if err := c.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to Consul: %w", err)
	}

	logger.Info("✅ Connected to Consul", zap.String("address", config.Address))
	return c, nil
}

// Ping asks the agent for its leader.
func (c *ConsulClient) Ping(ctx context.Context) error {
	_, err := c.client.Status().LeaderWithQueryOptions((&api.QueryOptions{}).WithContext(ctx))
	return err
}

// outboundIP gets the preferred outbound IP of this machine
func outboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}

// Register registers a service with an HTTP health check.
func (c *ConsulClient) Register(cfg ServiceConfig) error {
	address := cfg.Address
	if address == "" {
		address = outboundIP()
	}
	healthPath := cfg.HealthPath
	if healthPath == "" {
		healthPath = "/health"
	}

	registration := &api.AgentServiceRegistration{
		ID:      cfg.ID,
		Name:    cfg.Name,
		Port:    cfg.Port,
		Address: address,
		Tags:    cfg.Tags,
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d%s", address, cfg.Port, healthPath),
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "30s",
		},
	}

	if err := c.client.Agent().ServiceRegister(registration); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	c.logger.Info("✅ Registered service",
		zap.String("name", cfg.Name),
		zap.String("id", cfg.ID),
		zap.String("address", fmt.Sprintf("%s:%d", address, cfg.Port)),
	)
	return nil
}

// Deregister removes a service from Consul
func (c *ConsulClient) Deregister(serviceID string) error {
	if err := c.client.Agent().ServiceDeregister(serviceID); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}

	c.logger.Info("✅ Deregistered service", zap.String("id", serviceID))
	return nil
}

// ServiceURL returns the base URL of the first healthy instance.
func (c *ConsulClient) ServiceURL(ctx context.Context, serviceName string) (string, error) {
	opts := (&api.QueryOptions{}).WithContext(ctx)
	services, _, err := c.client.Health().Service(serviceName, "", true, opts)
	if err != nil {
		return "", fmt.Errorf("failed to get service: %w", err)
	}

	if len(services) == 0 {
		return "", fmt.Errorf("%w of %s", ErrNoHealthyInstance, serviceName)
	}

	service := services[0].Service
	address := service.Address
	if address == "" {
		address = services[0].Node.Address
	}
	if address == "" {
		address = "localhost"
	}

	return fmt.Sprintf("http://%s:%d", address, service.Port), nil
}
