// Command orderctl is a small client for the order service API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/client"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
	"github.com/urfave/cli/v2"
)

const defaultAddr = "http://localhost:8080/api"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "orderctl:", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "orderctl",
		Usage:     "place and inspect orders",
		Writer:    out,
		ErrWriter: io.Discard,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: defaultAddr, EnvVars: []string{"ORDERFLOW_URL"}, Usage: "order service base URL"},
			&cli.DurationFlag{Name: "timeout", Value: 10 * time.Second, Usage: "request timeout"},
		},
		Commands: []*cli.Command{
			{
				Name:  "products",
				Usage: "list the catalog",
				Action: func(c *cli.Context) error {
					return call(c, func(ctx context.Context, api *client.Client) (any, error) {
						return api.ListProducts(ctx)
					})
				},
			},
			{
				Name:  "place",
				Usage: "place an order",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true, Usage: "customer name"},
					&cli.StringFlag{Name: "email", Required: true, Usage: "customer email"},
					&cli.StringSliceFlag{Name: "item", Required: true, Usage: "product_id[:quantity], repeatable"},
				},
				Action: func(c *cli.Context) error {
					items, err := parseItems(c.StringSlice("item"))
					if err != nil {
						return err
					}
					req := models.PlaceOrderRequest{
						CustomerName:  c.String("name"),
						CustomerEmail: c.String("email"),
						Items:         items,
					}
					return call(c, func(ctx context.Context, api *client.Client) (any, error) {
						return api.PlaceOrder(ctx, req)
					})
				},
			},
			{
				Name:  "order",
				Usage: "show one order",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "id", Required: true, Usage: "order id"},
				},
				Action: func(c *cli.Context) error {
					return call(c, func(ctx context.Context, api *client.Client) (any, error) {
						return api.GetOrder(ctx, c.Int("id"))
					})
				},
			},
			{
				Name:  "orders",
				Usage: "list recent orders",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "maximum number of orders"},
				},
				Action: func(c *cli.Context) error {
					return call(c, func(ctx context.Context, api *client.Client) (any, error) {
						return api.ListOrders(ctx, c.Int("limit"))
					})
				},
			},
		},
	}
}

// call runs fn against the configured service and prints its result as JSON.
func call(c *cli.Context, fn func(ctx context.Context, api *client.Client) (any, error)) error {
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	api := client.New(strings.TrimRight(c.String("addr"), "/"))
	v, err := fn(ctx, api)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseItems reads product_id[:quantity] values; quantity defaults to 1.
func parseItems(values []string) ([]models.PlaceOrderItemRequest, error) {
	items := make([]models.PlaceOrderItemRequest, 0, len(values))
	for _, v := range values {
		id, qty, ok := strings.Cut(v, ":")
		if !ok {
			qty = "1"
		}
		productID, err := strconv.Atoi(id)
		if err != nil {
			return nil, fmt.Errorf("invalid product id %q", id)
		}
		quantity, err := strconv.Atoi(qty)
		if err != nil {
			return nil, fmt.Errorf("invalid quantity %q", qty)
		}
		items = append(items, models.PlaceOrderItemRequest{ProductID: productID, Quantity: quantity})
	}
	return items, nil
}
