package orders

import (
	"errors"
	"fmt"
)

// Store-level conditions. Services translate them into the domain errors below.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

var (
	ErrValidation             = errors.New("invalid request")
	ErrProductNotFound        = errors.New("product not found")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrUnknownPrincipal       = errors.New("unknown principal")
	ErrClientNotFound         = errors.New("client not found")
	ErrOrderNotFound          = errors.New("order not found")
	ErrNotOwner               = errors.New("order belongs to another client")
	ErrInvalidStateTransition = errors.New("invalid order state transition")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found: %s", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool { return target == ErrProductNotFound }

type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for product %s (%s): requested %d, available %d",
		e.ProductName, e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

type StateTransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("order %s cannot move from %s to %s", e.OrderID, e.From, e.To)
}

func (e *StateTransitionError) Is(target error) bool { return target == ErrInvalidStateTransition }
