package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vendfleet/backend/internal/domain/shared"
)

// StockRecord tracks the balance of one product at one owner on one
// level of the fleet. It is the aggregate root for all balance changes.
type StockRecord struct {
	shared.BaseAggregateRoot
	Level        Level            `gorm:"type:varchar(16);not null;uniqueIndex:idx_stock_record_key"`
	OwnerRef     uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_stock_record_key"`
	ProductID    uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_stock_record_key"`
	OnHand       decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0"`
	Reserved     decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0"`
	MinThreshold decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0"`
	MaxCapacity  *decimal.Decimal `gorm:"type:decimal(18,4)"`
}

// TableName returns the database table name
func (StockRecord) TableName() string {
	return "stock_records"
}

// NewStockRecord creates an empty stock record for the given key
func NewStockRecord(level Level, ownerRef, productID uuid.UUID) (*StockRecord, error) {
	if !level.IsValid() {
		return nil, NewInvalidStateError("unknown stock level: " + string(level))
	}
	return &StockRecord{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Level:             level,
		OwnerRef:          ownerRef,
		ProductID:         productID,
		OnHand:            decimal.Zero,
		Reserved:          decimal.Zero,
		MinThreshold:      decimal.Zero,
	}, nil
}

// Key returns the identifying key of the record
func (r *StockRecord) Key() RecordKey {
	return RecordKey{Level: r.Level, OwnerRef: r.OwnerRef, ProductID: r.ProductID}
}

// Available returns the unreserved portion of the on-hand balance
func (r *StockRecord) Available() decimal.Decimal {
	return r.OnHand.Sub(r.Reserved)
}

// Credit adds quantity to the on-hand balance, enforcing max capacity
func (r *StockRecord) Credit(quantity decimal.Decimal) error {
	if !quantity.IsPositive() {
		return NewInvalidQuantityError(quantity)
	}
	resulting := r.OnHand.Add(quantity)
	if r.MaxCapacity != nil && resulting.GreaterThan(*r.MaxCapacity) {
		return NewCapacityExceededError(r.Key(), resulting, *r.MaxCapacity)
	}
	r.OnHand = resulting
	return nil
}

// Debit removes quantity from the on-hand balance. Reserved stock is
// untouchable here; use ConsumeReserved to draw it down.
func (r *StockRecord) Debit(quantity decimal.Decimal) error {
	if !quantity.IsPositive() {
		return NewInvalidQuantityError(quantity)
	}
	if r.OnHand.LessThan(quantity) {
		return NewInsufficientStockError(r.Key(), quantity, r.OnHand)
	}
	if r.Available().LessThan(quantity) {
		return NewInsufficientUnreservedStockError(r.Key(), quantity, r.Available())
	}
	r.OnHand = r.OnHand.Sub(quantity)
	r.checkThreshold()
	return nil
}

// Reserve earmarks quantity of the on-hand balance
func (r *StockRecord) Reserve(quantity decimal.Decimal) error {
	if !quantity.IsPositive() {
		return NewInvalidQuantityError(quantity)
	}
	if r.Available().LessThan(quantity) {
		return NewInsufficientUnreservedStockError(r.Key(), quantity, r.Available())
	}
	r.Reserved = r.Reserved.Add(quantity)
	return nil
}

// ReleaseReserved returns earmarked quantity to the unreserved pool
func (r *StockRecord) ReleaseReserved(quantity decimal.Decimal) error {
	if !quantity.IsPositive() {
		return NewInvalidQuantityError(quantity)
	}
	if r.Reserved.LessThan(quantity) {
		return NewInvalidStateError("cannot release more than is reserved")
	}
	r.Reserved = r.Reserved.Sub(quantity)
	return nil
}

// ConsumeReserved removes earmarked quantity from both the reserved and
// on-hand balances. The unreserved check does not apply: the caller is
// drawing down stock it had previously earmarked.
func (r *StockRecord) ConsumeReserved(quantity decimal.Decimal) error {
	if !quantity.IsPositive() {
		return NewInvalidQuantityError(quantity)
	}
	if r.Reserved.LessThan(quantity) {
		return NewInvalidStateError("cannot consume more than is reserved")
	}
	if r.OnHand.LessThan(quantity) {
		return NewInsufficientStockError(r.Key(), quantity, r.OnHand)
	}
	r.Reserved = r.Reserved.Sub(quantity)
	r.OnHand = r.OnHand.Sub(quantity)
	r.checkThreshold()
	return nil
}

// SetThresholds updates the replenishment threshold and max capacity
func (r *StockRecord) SetThresholds(minThreshold decimal.Decimal, maxCapacity *decimal.Decimal) error {
	if minThreshold.IsNegative() {
		return NewInvalidQuantityError(minThreshold)
	}
	if maxCapacity != nil && !maxCapacity.IsPositive() {
		return NewInvalidQuantityError(*maxCapacity)
	}
	r.MinThreshold = minThreshold
	r.MaxCapacity = maxCapacity
	return nil
}

func (r *StockRecord) checkThreshold() {
	if r.MinThreshold.IsPositive() && r.OnHand.LessThan(r.MinThreshold) {
		r.AddDomainEvent(NewStockBelowThresholdEvent(r))
	}
}
