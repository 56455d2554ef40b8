package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

const DefaultOrderQueue = "orders"

// Broker is the part of the message broker the publisher needs.
type Broker interface {
	DeclareQueue(name string) error
	Publish(ctx context.Context, queue string, message []byte, headers amqp.Table) error
}

type OrderPublisher struct {
	mq    Broker
	queue string
}

func NewOrderPublisher(mq Broker, queue string) (*OrderPublisher, error) {
	if queue == "" {
		queue = DefaultOrderQueue
	}

	// Declare the queue
	if err := mq.DeclareQueue(queue); err != nil {
		return nil, err
	}

	return &OrderPublisher{mq: mq, queue: queue}, nil
}

func (p *OrderPublisher) Queue() string {
	return p.queue
}

// PublishOrderPlaced enqueues a newly placed order for fulfillment
func (p *OrderPublisher) PublishOrderPlaced(ctx context.Context, msg models.OrderPlacedMessage) error {
	return p.publish(ctx, msg, amqp.Table{})
}

// Republish enqueues msg again as retry number attempt.
func (p *OrderPublisher) Republish(ctx context.Context, msg models.OrderPlacedMessage, attempt int) error {
	return p.publish(ctx, msg, amqp.Table{messaging.RetryCountHeader: int32(attempt)})
}

func (p *OrderPublisher) publish(ctx context.Context, msg models.OrderPlacedMessage, headers amqp.Table) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	messaging.InjectTraceContext(ctx, headers)

	if err := p.mq.Publish(ctx, p.queue, data, headers); err != nil {
		return fmt.Errorf("failed to publish order %d: %w", msg.OrderID, err)
	}
	return nil
}
