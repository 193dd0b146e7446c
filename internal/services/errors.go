// internal/services/errors.go
package services

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/agribazaar/agribazaar-backend/internal/models"
)

// ValidationError reports malformed or missing input. It is raised before
// any store write happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Resource string
	ID       uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// InsufficientStockError reports a cart line that exceeds the currently
// available quantity. Requested and Available let the caller render the
// exact shortfall.
type InsufficientStockError struct {
	ProductID   uuid.UUID
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.ProductName, e.Requested, e.Available)
}

// ConcurrentModificationError reports a reservation that lost the race at
// write time. The operation left no side effects and can be retried with
// fresh stock data.
type ConcurrentModificationError struct {
	ProductID uuid.UUID
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("product %s was concurrently modified, retry the order", e.ProductID)
}

// InvalidStateError reports an operation that is illegal for the order's
// current status.
type InvalidStateError struct {
	OrderID uuid.UUID
	Status  models.OrderStatus
	Reason  string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("order %s is %s: %s", e.OrderID, e.Status, e.Reason)
}

// PaymentMismatchError reports a gateway-asserted amount that disagrees
// with the order's stored total.
type PaymentMismatchError struct {
	OrderID  uuid.UUID
	Expected float64
	Asserted float64
}

func (e *PaymentMismatchError) Error() string {
	return fmt.Sprintf("payment amount %.2f does not match order total %.2f for order %s",
		e.Asserted, e.Expected, e.OrderID)
}

// PermissionError reports an actor that may not act on the resource.
type PermissionError struct {
	Reason string
}

func (e *PermissionError) Error() string {
	return e.Reason
}
