package orders

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyOrder      = errors.New("order must contain at least one item")
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	ErrProductInUse    = errors.New("product is referenced by an order")
	ErrInvalidPrice    = errors.New("price must be greater than zero")
	ErrAmountTooLarge  = errors.New("order amount exceeds the supported range")
)

const (
	KindProduct = "product"
	KindOrder   = "order"
)

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func notFound(kind, id string) error { return &NotFoundError{Kind: kind, ID: id} }

type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

// TxFailureError wraps any storage failure that aborted an operation.
// Nothing from the aborted call is persisted.
type TxFailureError struct {
	Op  string
	Err error
}

func (e *TxFailureError) Error() string {
	return fmt.Sprintf("%s: transaction failed: %v", e.Op, e.Err)
}

func (e *TxFailureError) Unwrap() error { return e.Err }

// Retryable reports whether the underlying storage error is transient
// (serialization failure, deadlock, lock timeout).
func (e *TxFailureError) Retryable() bool {
	var r interface{ Retryable() bool }
	return errors.As(e.Err, &r) && r.Retryable()
}

// IsNotFound reports whether err is a NotFoundError, optionally of kind.
func IsNotFound(err error, kind string) bool {
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		return false
	}
	return kind == "" || nf.Kind == kind
}

// domainError reports errors that must reach the caller unwrapped.
func domainError(err error) bool {
	var nf *NotFoundError
	var is *InsufficientStockError
	return errors.As(err, &nf) || errors.As(err, &is) ||
		errors.Is(err, ErrEmptyOrder) || errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrProductInUse) || errors.Is(err, ErrInvalidPrice) ||
		errors.Is(err, ErrAmountTooLarge)
}

func txFailure(op string, err error) error {
	if err == nil || domainError(err) {
		return err
	}
	return &TxFailureError{Op: op, Err: err}
}
