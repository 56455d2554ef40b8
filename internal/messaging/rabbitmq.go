package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RetryCountHeader carries how many times a message has been retried.
const RetryCountHeader = "x-retry-count"

var ErrPublishNacked = errors.New("broker did not confirm message")

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	// mu serializes publishes so each one waits for its own confirmation.
	mu     sync.Mutex
	logger *zap.Logger
}

func NewRabbitMQ(host string, port int, user, password string, logger *zap.Logger) (*RabbitMQ, error) {
	return Dial(fmt.Sprintf("amqp://%s:%s@%s:%d/", user, password, host, port), logger)
}

// Dial connects to url and opens a channel in publisher-confirm mode.
func Dial(url string, logger *zap.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	logger.Info("✅ Connected to RabbitMQ")

	return &RabbitMQ{
		conn:    conn,
		channel: channel,
		logger:  logger,
	}, nil
}

// DeadLetterQueue names the queue that receives messages rejected from name.
func DeadLetterQueue(name string) string {
	return name + ".dead"
}

func deadLetterExchange(name string) string {
	return name + ".dlx"
}

// DeclareQueue creates a durable queue if it doesn't exist, together with
// its dead-letter exchange and queue.
func (r *RabbitMQ) DeclareQueue(name string) error {
	dlx := deadLetterExchange(name)
	dlq := DeadLetterQueue(name)

	err := r.channel.ExchangeDeclare(
		dlx,      // name
		"fanout", // kind
		true,     // durable
		false,    // auto-delete
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare dead-letter exchange: %w", err)
	}

	if _, err := r.channel.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead-letter queue: %w", err)
	}

	if err := r.channel.QueueBind(dlq, "", dlx, false, nil); err != nil {
		return fmt.Errorf("failed to bind dead-letter queue: %w", err)
	}

	_, err = r.channel.QueueDeclare(
		name,  // queue name
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqp.Table{"x-dead-letter-exchange": dlx},
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	r.logger.Info("✅ Queue declared", zap.String("queue", name), zap.String("dead_letter_queue", dlq))
	return nil
}

// Publish sends a persistent message to a queue and waits for the broker to
// confirm it
func (r *RabbitMQ) Publish(ctx context.Context, queue string, message []byte, headers amqp.Table) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	confirmation, err := r.channel.PublishWithDeferredConfirmWithContext(ctx,
		"",    // exchange
		queue, // routing key (queue name)
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now().UTC(),
			Headers:      headers,
			Body:         message,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to confirm message: %w", err)
	}
	if !acked {
		return ErrPublishNacked
	}

	r.logger.Debug("📤 Message published", zap.String("queue", queue))
	return nil
}

// Consume receives messages from a queue with manual acknowledgement and at
// most prefetch unacknowledged deliveries in flight
func (r *RabbitMQ) Consume(queue, consumerTag string, prefetch int) (<-chan amqp.Delivery, error) {
	if err := r.channel.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	messages, err := r.channel.Consume(
		queue,       // queue name
		consumerTag, // consumer tag
		false,       // auto-ack (false = manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	r.logger.Info("👂 Listening on queue", zap.String("queue", queue), zap.Int("prefetch", prefetch))
	return messages, nil
}

func (r *RabbitMQ) Ping(context.Context) error {
	if r.conn.IsClosed() || r.channel.IsClosed() {
		return amqp.ErrClosed
	}
	return nil
}

// Close closes the connection
func (r *RabbitMQ) Close() {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		r.conn.Close()
	}
}
