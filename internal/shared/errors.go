package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the quotation or variant does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidAmount indicates a payment that does not match the outstanding balance.
	ErrInvalidAmount = errors.New("amount does not match outstanding balance")
	// ErrPreconditionFailed indicates a close attempt before the quotation is ready.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrOperatorRequired indicates a mutating call without an operator identity.
	ErrOperatorRequired = errors.New("operator id required")
)

// InvalidQuantityError reports a delivery value outside [0, ordered] for a line item.
type InvalidQuantityError struct {
	VariantID string
	Requested int
	Ordered   int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid delivered quantity %d for variant %s (ordered %d)", e.Requested, e.VariantID, e.Ordered)
}

// InsufficientStockError reports a delivery delta exceeding ledger availability.
type InsufficientStockError struct {
	VariantID string
	Requested int
	Available int
}

// Shortfall is the number of units missing to satisfy the request.
func (e *InsufficientStockError) Shortfall() int {
	return e.Requested - e.Available
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %s: requested %d, available %d", e.VariantID, e.Requested, e.Available)
}
