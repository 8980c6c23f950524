package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vendfleet/backend/internal/domain/shared"
)

// Error codes for ledger operations
const (
	ErrCodeInvalidQuantity        = "INVALID_QUANTITY"
	ErrCodeInsufficientStock      = "INSUFFICIENT_STOCK"
	ErrCodeInsufficientUnreserved = "INSUFFICIENT_UNRESERVED_STOCK"
	ErrCodeCapacityExceeded       = "CAPACITY_EXCEEDED"
	ErrCodeUnknownStockRecord     = "UNKNOWN_STOCK_RECORD"
	ErrCodeInvalidState           = "INVALID_STATE"
	ErrCodeIllegalLevelTransition = "ILLEGAL_LEVEL_TRANSITION"
	ErrCodeConcurrentModification = "CONCURRENT_MODIFICATION"
)

// NewInvalidQuantityError reports a zero or negative requested quantity
func NewInvalidQuantityError(qty decimal.Decimal) *shared.DomainError {
	return shared.NewDomainError(ErrCodeInvalidQuantity,
		fmt.Sprintf("quantity must be positive, got %s", qty))
}

// NewInsufficientStockError reports that on-hand stock cannot cover the debit
func NewInsufficientStockError(key RecordKey, requested, onHand decimal.Decimal) *shared.DomainError {
	return shared.NewDomainError(ErrCodeInsufficientStock,
		fmt.Sprintf("insufficient stock on %s: requested %s, on hand %s", key, requested, onHand))
}

// NewInsufficientUnreservedStockError reports that the unreserved portion
// of on-hand stock cannot cover the debit
func NewInsufficientUnreservedStockError(key RecordKey, requested, unreserved decimal.Decimal) *shared.DomainError {
	return shared.NewDomainError(ErrCodeInsufficientUnreserved,
		fmt.Sprintf("insufficient unreserved stock on %s: requested %s, unreserved %s", key, requested, unreserved))
}

// NewCapacityExceededError reports that a credit would push on-hand stock
// past the record's maximum capacity
func NewCapacityExceededError(key RecordKey, resulting, capacity decimal.Decimal) *shared.DomainError {
	return shared.NewDomainError(ErrCodeCapacityExceeded,
		fmt.Sprintf("capacity exceeded on %s: resulting %s, capacity %s", key, resulting, capacity))
}

// NewUnknownStockRecordError reports a missing source-side record
func NewUnknownStockRecordError(key RecordKey) *shared.DomainError {
	return shared.NewDomainError(ErrCodeUnknownStockRecord,
		fmt.Sprintf("stock record %s does not exist", key))
}

// NewInvalidStateError reports an operation applied to an entity in the
// wrong lifecycle state
func NewInvalidStateError(message string) *shared.DomainError {
	return shared.NewDomainError(ErrCodeInvalidState, message)
}

// NewIllegalLevelTransitionError reports a movement between levels the
// legality table forbids
func NewIllegalLevelTransitionError(source, destination *Level) *shared.DomainError {
	return shared.NewDomainError(ErrCodeIllegalLevelTransition,
		fmt.Sprintf("no movement type permits transition %s -> %s", levelLabel(source), levelLabel(destination)))
}

// NewConcurrentModificationError reports a lost optimistic-lock race.
// This is the only retryable ledger error.
func NewConcurrentModificationError(key RecordKey) *shared.DomainError {
	return shared.NewDomainError(ErrCodeConcurrentModification,
		fmt.Sprintf("stock record %s was modified concurrently", key))
}

// IsRetryable reports whether the caller may safely retry the operation
// that produced err. Only concurrent modification conflicts qualify.
func IsRetryable(err error) bool {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == ErrCodeConcurrentModification
	}
	return false
}

func levelLabel(l *Level) string {
	if l == nil {
		return "EXTERNAL"
	}
	return string(*l)
}
