package service

import (
	"context"
	"errors"
	"sync"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/db"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
)

type fakeInvalidator struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeInvalidator) Invalidate(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []models.OrderPlacedMessage
	err      error
}

func (f *fakePublisher) PublishOrderPlaced(_ context.Context, msg models.OrderPlacedMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return f.err
}

var errConnReset = errors.New("connection reset by peer")

// failingStore fails every transaction and read.
type failingStore struct{}

func (failingStore) WithTx(context.Context, func(tx db.Tx) error) error {
	return errConnReset
}

func (failingStore) GetByID(context.Context, int) (*models.Order, error) {
	return nil, errConnReset
}

func (failingStore) List(context.Context, int) ([]models.OrderSummary, error) {
	return nil, errConnReset
}

// recordingLister captures the limit it was asked for.
type recordingLister struct {
	failingStore
	limit int
}

func (r *recordingLister) List(_ context.Context, limit int) ([]models.OrderSummary, error) {
	r.limit = limit
	return nil, nil
}
