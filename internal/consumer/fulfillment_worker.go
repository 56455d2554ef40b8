package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/db"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultMaxRetries = 5
	defaultRetryDelay = time.Second
	maxRetryDelay     = 30 * time.Second
	storeTimeout      = 10 * time.Second
)

var ErrDeliveriesClosed = errors.New("delivery channel closed")

// Outcome records what the worker did with a delivery.
type Outcome int

const (
	// Completed: fulfilled, marked completed and acknowledged.
	Completed Outcome = iota
	// Skipped: the order was already terminal; acknowledged without work.
	Skipped
	// Retried: a copy was republished with a higher retry count and the
	// original acknowledged.
	Retried
	// Requeued: negatively acknowledged with requeue.
	Requeued
	// DeadLettered: rejected without requeue.
	DeadLettered
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Skipped:
		return "skipped"
	case Retried:
		return "retried"
	case Requeued:
		return "requeued"
	case DeadLettered:
		return "dead-lettered"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Fulfiller performs the work for one order.
type Fulfiller interface {
	Fulfill(ctx context.Context, msg models.OrderPlacedMessage) error
}

type Retrier interface {
	Republish(ctx context.Context, msg models.OrderPlacedMessage, attempt int) error
}

type FulfillmentWorker struct {
	orders     db.StatusUpdater
	fulfiller  Fulfiller
	retrier    Retrier
	logger     *zap.Logger
	tracer     trace.Tracer
	maxRetries int
	retryDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

type Option func(*FulfillmentWorker)

// WithMaxRetries sets how many times a failing order is retried before it is
// marked failed and dead-lettered.
func WithMaxRetries(n int) Option {
	return func(w *FulfillmentWorker) {
		if n >= 0 {
			w.maxRetries = n
		}
	}
}

// WithRetryDelay sets the base delay before a retry; it doubles per attempt.
func WithRetryDelay(d time.Duration) Option {
	return func(w *FulfillmentWorker) {
		if d >= 0 {
			w.retryDelay = d
		}
	}
}

func NewFulfillmentWorker(orders db.StatusUpdater, fulfiller Fulfiller, retrier Retrier, logger *zap.Logger, opts ...Option) *FulfillmentWorker {
	w := &FulfillmentWorker{
		orders:     orders,
		fulfiller:  fulfiller,
		retrier:    retrier,
		logger:     logger,
		tracer:     otel.Tracer("orderflow/consumer"),
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run handles deliveries one at a time until ctx is done or the channel
// closes.
func (w *FulfillmentWorker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	w.logger.Info("Worker started. Waiting for messages...")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Context done, stopping worker")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			w.Handle(ctx, d)
		}
	}
}

// Handle drives one order through processing and settles the delivery.
func (w *FulfillmentWorker) Handle(ctx context.Context, d amqp.Delivery) Outcome {
	logger := w.logger.With(zap.Uint64("delivery_tag", d.DeliveryTag))
	logger.Info("📥 Received order message", zap.ByteString("body", d.Body))

	var msg models.OrderPlacedMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		logger.Error("❌ Failed to parse message", zap.Error(err))
		return w.deadLetter(logger, d)
	}
	if err := msg.Validate(); err != nil {
		logger.Error("❌ Rejecting message", zap.Error(err))
		return w.deadLetter(logger, d)
	}

	logger = logger.With(zap.Int("order_id", msg.OrderID))
	ctx = messaging.ExtractTraceContext(ctx, d.Headers)
	ctx, span := w.tracer.Start(ctx, "Fulfill", trace.WithAttributes(
		attribute.Int("order.id", msg.OrderID),
		attribute.Int("messaging.retry_count", messaging.RetryCount(d.Headers)),
	))
	defer span.End()

	outcome := w.process(ctx, logger, d, msg)
	span.SetAttributes(attribute.String("fulfillment.outcome", outcome.String()))
	if outcome == DeadLettered || outcome == Requeued {
		span.SetStatus(codes.Error, outcome.String())
	}
	return outcome
}

func (w *FulfillmentWorker) process(ctx context.Context, logger *zap.Logger, d amqp.Delivery, msg models.OrderPlacedMessage) Outcome {
	if outcome, done := w.setStatus(ctx, logger, d, msg, models.OrderStatusProcessing); done {
		return outcome
	}

	logger.Info("📦 Processing order", zap.String("customer", msg.CustomerName))
	if err := w.fulfiller.Fulfill(ctx, msg); err != nil {
		if ctx.Err() != nil {
			// Shutting down: hand the message back untouched.
			logger.Warn("⚠️ Fulfillment interrupted, requeueing", zap.Error(err))
			return w.requeue(logger, d)
		}
		logger.Error("❌ Fulfillment failed", zap.Error(err))
		return w.retry(ctx, logger, d, msg)
	}

	if outcome, done := w.setStatus(ctx, logger, d, msg, models.OrderStatusCompleted); done {
		return outcome
	}

	if err := d.Ack(false); err != nil {
		logger.Error("❌ Failed to acknowledge message", zap.Error(err))
	}
	logger.Info("✅ Order completed")
	return Completed
}

// setStatus returns done == true when the delivery has been settled and
// processing must stop.
func (w *FulfillmentWorker) setStatus(ctx context.Context, logger *zap.Logger, d amqp.Delivery, msg models.OrderPlacedMessage, status models.OrderStatus) (Outcome, bool) {
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	changed, err := w.orders.UpdateStatus(storeCtx, msg.OrderID, status)
	if err == nil {
		if changed {
			logger.Info("Updated order status", zap.String("status", status.String()))
		}
		return 0, false
	}

	var transition *db.TransitionError
	switch {
	case errors.Is(err, db.ErrOrderNotFound):
		logger.Error("❌ Order does not exist", zap.Error(err))
		return w.deadLetter(logger, d), true
	case errors.As(err, &transition) && transition.From.IsTerminal():
		logger.Info("Order already finished, skipping duplicate delivery", zap.String("status", transition.From.String()))
		if err := d.Ack(false); err != nil {
			logger.Error("❌ Failed to acknowledge message", zap.Error(err))
		}
		return Skipped, true
	case errors.As(err, &transition):
		logger.Error("❌ Illegal status transition", zap.Error(err))
		return w.deadLetter(logger, d), true
	default:
		logger.Error("❌ Failed to update order status", zap.String("status", status.String()), zap.Error(err))
		return w.retry(ctx, logger, d, msg), true
	}
}

// retry republishes msg with an incremented retry count, or marks the order
// failed and dead-letters it once the ceiling is reached.
func (w *FulfillmentWorker) retry(ctx context.Context, logger *zap.Logger, d amqp.Delivery, msg models.OrderPlacedMessage) Outcome {
	attempt := messaging.RetryCount(d.Headers) + 1
	if attempt > w.maxRetries {
		logger.Error("❌ Retries exhausted, marking order failed", zap.Int("attempts", attempt-1))
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
		defer cancel()
		if _, err := w.orders.UpdateStatus(storeCtx, msg.OrderID, models.OrderStatusFailed); err != nil {
			var transition *db.TransitionError
			if !errors.Is(err, db.ErrOrderNotFound) && !errors.As(err, &transition) {
				// Keep the message so a later delivery can still record the failure.
				logger.Warn("⚠️ Failed to mark order failed, requeueing", zap.Error(err))
				_ = w.sleep(ctx, w.backoff(attempt))
				return w.requeue(logger, d)
			}
			logger.Error("❌ Failed to mark order failed", zap.Error(err))
		}
		return w.deadLetter(logger, d)
	}

	if err := w.sleep(ctx, w.backoff(attempt)); err != nil {
		return w.requeue(logger, d)
	}

	if err := w.retrier.Republish(context.WithoutCancel(ctx), msg, attempt); err != nil {
		logger.Warn("⚠️ Failed to republish for retry, requeueing", zap.Error(err))
		return w.requeue(logger, d)
	}
	if err := d.Ack(false); err != nil {
		logger.Error("❌ Failed to acknowledge message", zap.Error(err))
	}
	logger.Warn("⚠️ Order scheduled for retry", zap.Int("attempt", attempt), zap.Int("max_retries", w.maxRetries))
	return Retried
}

func (w *FulfillmentWorker) backoff(attempt int) time.Duration {
	d := w.retryDelay << (attempt - 1)
	if d > maxRetryDelay || d < 0 {
		return maxRetryDelay
	}
	return d
}

func (w *FulfillmentWorker) deadLetter(logger *zap.Logger, d amqp.Delivery) Outcome {
	if err := d.Nack(false, false); err != nil {
		logger.Error("❌ Failed to reject message", zap.Error(err))
	}
	return DeadLettered
}

func (w *FulfillmentWorker) requeue(logger *zap.Logger, d amqp.Delivery) Outcome {
	if err := d.Nack(false, true); err != nil {
		logger.Error("❌ Failed to requeue message", zap.Error(err))
	}
	return Requeued
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
