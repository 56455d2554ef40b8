package discovery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeAgent serves the handful of Consul endpoints the client uses.
func fakeAgent(t *testing.T, healthy []*api.ServiceEntry) (*httptest.Server, *[]api.AgentServiceRegistration) {
	t.Helper()
	var registered []api.AgentServiceRegistration

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/status/leader", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`"127.0.0.1:8300"`))
	})
	mux.HandleFunc("/v1/agent/service/register", func(w http.ResponseWriter, r *http.Request) {
		var reg api.AgentServiceRegistration
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reg))
		registered = append(registered, reg)
	})
	mux.HandleFunc("/v1/agent/service/deregister/", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/v1/health/service/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("passing"))
		_ = json.NewEncoder(w).Encode(healthy)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &registered
}

func connect(t *testing.T, srv *httptest.Server) *ConsulClient {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	c, err := NewConsulClient(context.Background(), u.Hostname(), port, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestRegister(t *testing.T) {
	srv, registered := fakeAgent(t, nil)
	c := connect(t, srv)

	err := c.Register(ServiceConfig{Name: "order-service", ID: "order-service-1", Address: "10.0.0.5", Port: 8082})
	require.NoError(t, err)

	require.Len(t, *registered, 1)
	reg := (*registered)[0]
	assert.Equal(t, "order-service-1", reg.ID)
	assert.Equal(t, "http://10.0.0.5:8082/health", reg.Check.HTTP)

	assert.NoError(t, c.Deregister("order-service-1"))
}

func TestServiceURL(t *testing.T) {
	srv, _ := fakeAgent(t, []*api.ServiceEntry{{
		Node:    &api.Node{Address: "10.0.0.1"},
		Service: &api.AgentService{Service: "order-service", Address: "10.0.0.5", Port: 8082},
	}})
	c := connect(t, srv)

	got, err := c.ServiceURL(context.Background(), "order-service")
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:8082", got)
}

func TestServiceURL_NoHealthyInstance(t *testing.T) {
	srv, _ := fakeAgent(t, []*api.ServiceEntry{})
	c := connect(t, srv)

	_, err := c.ServiceURL(context.Background(), "order-service")
	assert.ErrorIs(t, err, ErrNoHealthyInstance)
}
