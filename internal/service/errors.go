package service

import (
	"errors"
	"fmt"
)

var (
	// ErrCache and ErrQueue mark side-effect failures that happen after an
	// order is committed. They are logged, never returned to callers.
	ErrCache = errors.New("cache unavailable")
	ErrQueue = errors.New("queue unavailable")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

type NotFoundError struct {
	Resource string
	ID       int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %d not found", e.Resource, e.ID)
}

type InsufficientStockError struct {
	ProductID int
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for product ID %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// StoreError wraps a persistence failure. Any transaction it came from has
// been rolled back.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
