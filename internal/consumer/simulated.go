package consumer

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
	"go.uber.org/zap"
)

// SimulatedFulfiller stands in for real fulfillment by waiting a random
// duration in [Min, Max].
type SimulatedFulfiller struct {
	Min    time.Duration
	Max    time.Duration
	Logger *zap.Logger
}

func (f SimulatedFulfiller) Fulfill(ctx context.Context, msg models.OrderPlacedMessage) error {
	d := f.Min
	if f.Max > f.Min {
		d += rand.N(f.Max - f.Min + 1)
	}
	if f.Logger != nil {
		f.Logger.Info("Simulating fulfillment", zap.Int("order_id", msg.OrderID), zap.Duration("duration", d))
	}
	return sleepContext(ctx, d)
}
