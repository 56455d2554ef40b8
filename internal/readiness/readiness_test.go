package readiness

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWait_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	v, err := Wait(context.Background(), "postgres", 10*time.Second, zap.NewNop(), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection refused")
		}
		return "connected", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "connected", v)
	assert.Equal(t, 3, calls)
}

func TestWait_GivesUpAfterTimeout(t *testing.T) {
	start := time.Now()
	_, err := Wait(context.Background(), "redis", 300*time.Millisecond, zap.NewNop(), func(context.Context) (int, error) {
		return 0, errors.New("connection refused")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis not ready")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestWait_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Wait(ctx, "rabbitmq", time.Minute, zap.NewNop(), func(context.Context) (int, error) {
		return 0, errors.New("connection refused")
	})
	require.Error(t, err)
}

func TestCheck(t *testing.T) {
	statuses, ok := Check(context.Background(), map[string]Checker{
		"postgres": CheckerFunc(func(context.Context) error { return nil }),
		"redis":    CheckerFunc(func(context.Context) error { return errors.New("dial tcp: refused") }),
	})

	assert.False(t, ok)
	assert.Equal(t, "up", statuses["postgres"])
	assert.Equal(t, "dial tcp: refused", statuses["redis"])
}
