package messaging

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
)

// HeaderCarrier adapts AMQP headers to the OpenTelemetry TextMapCarrier.
type HeaderCarrier amqp.Table

func (c HeaderCarrier) Get(key string) string {
	v, ok := c[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (c HeaderCarrier) Set(key, value string) {
	c[key] = value
}

func (c HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// InjectTraceContext writes the span context of ctx into headers.
func InjectTraceContext(ctx context.Context, headers amqp.Table) {
	otel.GetTextMapPropagator().Inject(ctx, HeaderCarrier(headers))
}

// ExtractTraceContext returns ctx carrying the span context found in headers.
func ExtractTraceContext(ctx context.Context, headers amqp.Table) context.Context {
	if headers == nil {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, HeaderCarrier(headers))
}

// RetryCount reads RetryCountHeader, tolerating the integer types AMQP
// tables may decode to.
func RetryCount(headers amqp.Table) int {
	switch v := headers[RetryCountHeader].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	}
	return 0
}
