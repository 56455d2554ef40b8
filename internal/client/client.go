// Package client talks to the order-service HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
)

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Category   string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Category == "" {
		return fmt.Sprintf("order service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("%s (%d): %s", e.Category, e.StatusCode, e.Message)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) ListProducts(ctx context.Context) ([]models.Product, error) {
	var body struct {
		Products []models.Product `json:"products"`
	}
	if err := c.do(ctx, http.MethodGet, "/products", nil, &body); err != nil {
		return nil, err
	}
	return body.Products, nil
}

func (c *Client) GetProduct(ctx context.Context, id int) (*models.Product, error) {
	var product models.Product
	if err := c.do(ctx, http.MethodGet, "/products/"+strconv.Itoa(id), nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

func (c *Client) PlaceOrder(ctx context.Context, req models.PlaceOrderRequest) (*models.PlaceOrderResponse, error) {
	var resp models.PlaceOrderResponse
	if err := c.do(ctx, http.MethodPost, "/orders", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetOrder(ctx context.Context, id int) (*models.Order, error) {
	var order models.Order
	if err := c.do(ctx, http.MethodGet, "/orders/"+strconv.Itoa(id), nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) ListOrders(ctx context.Context, limit int) ([]models.OrderSummary, error) {
	path := "/orders"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var body struct {
		Orders []models.OrderSummary `json:"orders"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &body); err != nil {
		return nil, err
	}
	return body.Orders, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call order service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
