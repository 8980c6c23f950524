package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vendfleet/backend/internal/domain/shared"
)

// Event types published by the ledger
const (
	EventStockTransferred     = "ledger.stock.transferred"
	EventStockReserved        = "ledger.stock.reserved"
	EventReservationConsumed  = "ledger.reservation.consumed"
	EventReservationReleased  = "ledger.reservation.released"
	EventReservationExpired   = "ledger.reservation.expired"
	EventStockBelowThreshold  = "ledger.stock.below_threshold"
	EventBalanceDriftDetected = "ledger.balance.drift_detected"
)

const aggregateStockRecord = "StockRecord"
const aggregateReservation = "Reservation"

// StockTransferredEvent is published after a movement commits
type StockTransferredEvent struct {
	shared.BaseDomainEvent
	MovementType        MovementType    `json:"movement_type"`
	SourceRecordID      *uuid.UUID      `json:"source_record_id,omitempty"`
	DestinationRecordID *uuid.UUID      `json:"destination_record_id,omitempty"`
	ProductID           uuid.UUID       `json:"product_id"`
	Quantity            decimal.Decimal `json:"quantity"`
	CorrelationID       uuid.UUID       `json:"correlation_id"`
}

// NewStockTransferredEvent creates a stock transferred event
func NewStockTransferredEvent(movementType MovementType, sourceID, destinationID *uuid.UUID, productID uuid.UUID, quantity decimal.Decimal, correlationID uuid.UUID) *StockTransferredEvent {
	aggID := correlationID
	if destinationID != nil {
		aggID = *destinationID
	} else if sourceID != nil {
		aggID = *sourceID
	}
	return &StockTransferredEvent{
		BaseDomainEvent:     shared.NewBaseDomainEvent(EventStockTransferred, aggregateStockRecord, aggID),
		MovementType:        movementType,
		SourceRecordID:      sourceID,
		DestinationRecordID: destinationID,
		ProductID:           productID,
		Quantity:            quantity,
		CorrelationID:       correlationID,
	}
}

// StockReservedEvent is published when warehouse stock is earmarked
type StockReservedEvent struct {
	shared.BaseDomainEvent
	ReservationID uuid.UUID       `json:"reservation_id"`
	StockRecordID uuid.UUID       `json:"stock_record_id"`
	ProductID     uuid.UUID       `json:"product_id"`
	Quantity      decimal.Decimal `json:"quantity"`
}

// NewStockReservedEvent creates a stock reserved event
func NewStockReservedEvent(reservation *Reservation) *StockReservedEvent {
	return &StockReservedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventStockReserved, aggregateReservation, reservation.ID),
		ReservationID:   reservation.ID,
		StockRecordID:   reservation.StockRecordID,
		ProductID:       reservation.ProductID,
		Quantity:        reservation.Quantity,
	}
}

// ReservationClosedEvent is published when a reservation reaches a
// terminal state. The event type distinguishes consume, release and
// expiry.
type ReservationClosedEvent struct {
	shared.BaseDomainEvent
	ReservationID uuid.UUID         `json:"reservation_id"`
	StockRecordID uuid.UUID         `json:"stock_record_id"`
	ProductID     uuid.UUID         `json:"product_id"`
	Quantity      decimal.Decimal   `json:"quantity"`
	Status        ReservationStatus `json:"status"`
}

// NewReservationClosedEvent creates the terminal event for a reservation
func NewReservationClosedEvent(reservation *Reservation) *ReservationClosedEvent {
	eventType := EventReservationReleased
	switch reservation.Status {
	case ReservationConsumed:
		eventType = EventReservationConsumed
	case ReservationExpired:
		eventType = EventReservationExpired
	}
	return &ReservationClosedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, aggregateReservation, reservation.ID),
		ReservationID:   reservation.ID,
		StockRecordID:   reservation.StockRecordID,
		ProductID:       reservation.ProductID,
		Quantity:        reservation.Quantity,
		Status:          reservation.Status,
	}
}

// StockBelowThresholdEvent is published when a debit drops the on-hand
// balance below the record's replenishment threshold
type StockBelowThresholdEvent struct {
	shared.BaseDomainEvent
	StockRecordID uuid.UUID       `json:"stock_record_id"`
	Level         Level           `json:"level"`
	OwnerRef      uuid.UUID       `json:"owner_ref"`
	ProductID     uuid.UUID       `json:"product_id"`
	OnHand        decimal.Decimal `json:"on_hand"`
	MinThreshold  decimal.Decimal `json:"min_threshold"`
}

// NewStockBelowThresholdEvent creates a below-threshold event
func NewStockBelowThresholdEvent(record *StockRecord) *StockBelowThresholdEvent {
	return &StockBelowThresholdEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventStockBelowThreshold, aggregateStockRecord, record.ID),
		StockRecordID:   record.ID,
		Level:           record.Level,
		OwnerRef:        record.OwnerRef,
		ProductID:       record.ProductID,
		OnHand:          record.OnHand,
		MinThreshold:    record.MinThreshold,
	}
}

// BalanceDriftDetectedEvent is published when reconciliation finds a
// stored balance diverging from the movement log
type BalanceDriftDetectedEvent struct {
	shared.BaseDomainEvent
	StockRecordID uuid.UUID       `json:"stock_record_id"`
	Stored        decimal.Decimal `json:"stored"`
	Reconstructed decimal.Decimal `json:"reconstructed"`
}

// NewBalanceDriftDetectedEvent creates a drift detected event
func NewBalanceDriftDetectedEvent(recordID uuid.UUID, stored, reconstructed decimal.Decimal) *BalanceDriftDetectedEvent {
	return &BalanceDriftDetectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventBalanceDriftDetected, aggregateStockRecord, recordID),
		StockRecordID:   recordID,
		Stored:          stored,
		Reconstructed:   reconstructed,
	}
}
