package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// StoreError wraps a persistence failure with the operation that hit it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

type ShortageError struct {
	MedicineID int64
	Requested  int
	Allocated  int
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("medicine %d: requested %d, only %d available", e.MedicineID, e.Requested, e.Allocated)
}

func (e *ShortageError) Is(target error) bool {
	return target == ErrInsufficientStock
}
