// Package reconciler re-enqueues orders that stayed pending for too long,
// covering placements whose queue publish was lost.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/db"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
	"go.uber.org/zap"
)

const defaultBatchSize = 100

type Publisher interface {
	PublishOrderPlaced(ctx context.Context, msg models.OrderPlacedMessage) error
}

type Reconciler struct {
	orders     db.StaleOrderFinder
	publisher  Publisher
	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
	logger     *zap.Logger
	now        func() time.Time
}

func New(orders db.StaleOrderFinder, publisher Publisher, interval, staleAfter time.Duration, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		orders:     orders,
		publisher:  publisher,
		interval:   interval,
		staleAfter: staleAfter,
		batchSize:  defaultBatchSize,
		logger:     logger,
		now:        time.Now,
	}
}

// Run reconciles every interval until ctx is done. A non-positive interval
// disables it.
func (r *Reconciler) Run(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Info("Reconciler disabled")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.ReconcileOnce(ctx); err != nil {
				r.logger.Error("❌ Reconciliation failed", zap.Error(err))
			}
		}
	}
}

// ReconcileOnce republishes one batch of stale pending orders and reports how
// many were enqueued.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.staleAfter)
	stale, err := r.orders.ListStalePending(ctx, cutoff, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale orders: %w", err)
	}

	published := 0
	for _, msg := range stale {
		if err := r.publisher.PublishOrderPlaced(ctx, msg); err != nil {
			r.logger.Warn("⚠️ Failed to republish stale order", zap.Int("order_id", msg.OrderID), zap.Error(err))
			continue
		}
		published++
	}

	if len(stale) > 0 {
		r.logger.Info("🔁 Republished stale pending orders",
			zap.Int("found", len(stale)), zap.Int("published", published))
	}
	return published, nil
}
