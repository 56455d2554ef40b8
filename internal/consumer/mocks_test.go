package consumer

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

// fakeAcknowledger records how a delivery was settled.
type fakeAcknowledger struct {
	mu      sync.Mutex
	acked   int
	nacked  int
	requeue bool
}

func (a *fakeAcknowledger) Ack(uint64, bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked++
	return nil
}

func (a *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked++
	a.requeue = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func delivery(t *testing.T, msg models.OrderPlacedMessage, retries int) (amqp.Delivery, *fakeAcknowledger) {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return rawDelivery(body, retries)
}

func rawDelivery(body []byte, retries int) (amqp.Delivery, *fakeAcknowledger) {
	ack := &fakeAcknowledger{}
	headers := amqp.Table{}
	if retries > 0 {
		headers["x-retry-count"] = int32(retries)
	}
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		Body:         body,
		Headers:      headers,
	}, ack
}

type fulfillerFunc func(ctx context.Context, msg models.OrderPlacedMessage) error

func (f fulfillerFunc) Fulfill(ctx context.Context, msg models.OrderPlacedMessage) error {
	return f(ctx, msg)
}

type republished struct {
	msg     models.OrderPlacedMessage
	attempt int
}

type fakeRetrier struct {
	err   error
	calls []republished
}

func (r *fakeRetrier) Republish(_ context.Context, msg models.OrderPlacedMessage, attempt int) error {
	r.calls = append(r.calls, republished{msg: msg, attempt: attempt})
	return r.err
}

func noSleep(context.Context, time.Duration) error { return nil }
