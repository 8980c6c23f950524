package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vendfleet/backend/internal/domain/shared"
)

// ReservationStatus is the lifecycle state of a reservation
type ReservationStatus string

const (
	ReservationActive   ReservationStatus = "ACTIVE"
	ReservationConsumed ReservationStatus = "CONSUMED"
	ReservationReleased ReservationStatus = "RELEASED"
	ReservationExpired  ReservationStatus = "EXPIRED"
)

// Reservation earmarks a quantity of stock for a future
// outbound movement. Exactly one terminal transition is allowed.
type Reservation struct {
	shared.BaseAggregateRoot
	StockRecordID uuid.UUID         `gorm:"type:uuid;not null;index"`
	ProductID     uuid.UUID         `gorm:"type:uuid;not null;index"`
	Quantity      decimal.Decimal   `gorm:"type:decimal(18,4);not null"`
	Status        ReservationStatus `gorm:"type:varchar(16);not null;default:'ACTIVE';index"`
	Reference     string            `gorm:"type:varchar(255)"`
	ExpiresAt     time.Time         `gorm:"not null;index"`
	ClosedAt      *time.Time
}

// TableName returns the database table name
func (Reservation) TableName() string {
	return "reservations"
}

// NewReservation creates an active reservation against a stock record
func NewReservation(stockRecordID, productID uuid.UUID, quantity decimal.Decimal, expiresAt time.Time, reference string) (*Reservation, error) {
	if !quantity.IsPositive() {
		return nil, NewInvalidQuantityError(quantity)
	}
	if !expiresAt.After(time.Now()) {
		return nil, NewInvalidStateError("reservation expiry must be in the future")
	}
	return &Reservation{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		StockRecordID:     stockRecordID,
		ProductID:         productID,
		Quantity:          quantity,
		Status:            ReservationActive,
		Reference:         reference,
		ExpiresAt:         expiresAt,
	}, nil
}

// IsActive reports whether the reservation can still be acted on
func (r *Reservation) IsActive() bool {
	return r.Status == ReservationActive
}

// IsDue reports whether an active reservation has passed its expiry
func (r *Reservation) IsDue(now time.Time) bool {
	return r.Status == ReservationActive && !now.Before(r.ExpiresAt)
}

// Consume marks the reservation as drawn down
func (r *Reservation) Consume() error {
	return r.transition(ReservationConsumed)
}

// Release marks the reservation as voluntarily given back
func (r *Reservation) Release() error {
	return r.transition(ReservationReleased)
}

// Expire marks the reservation as lapsed
func (r *Reservation) Expire() error {
	return r.transition(ReservationExpired)
}

func (r *Reservation) transition(to ReservationStatus) error {
	if r.Status != ReservationActive {
		return NewInvalidStateError("reservation is already " + string(r.Status))
	}
	now := time.Now()
	r.Status = to
	r.ClosedAt = &now
	return nil
}
