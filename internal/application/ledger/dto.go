package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vendfleet/backend/internal/domain/ledger"
)

// RecordKeyInput identifies a stock record endpoint of a movement
type RecordKeyInput struct {
	Level    ledger.Level `json:"level"`
	OwnerRef uuid.UUID    `json:"owner_ref"`
}

// Key resolves the input into a full record key for a product
func (i *RecordKeyInput) Key(productID uuid.UUID) ledger.RecordKey {
	return ledger.RecordKey{Level: i.Level, OwnerRef: i.OwnerRef, ProductID: productID}
}

// TransferCommand requests a stock movement. Source and Destination may
// each be nil for boundary movements. Type may be left empty for
// internal movements, in which case it is inferred from the level pair.
type TransferCommand struct {
	Type           ledger.MovementType `json:"type"`
	Source         *RecordKeyInput     `json:"source"`
	Destination    *RecordKeyInput     `json:"destination"`
	ProductID      uuid.UUID           `json:"product_id"`
	Quantity       decimal.Decimal     `json:"quantity"`
	IdempotencyKey string              `json:"idempotency_key"`
	PerformedBy    string              `json:"performed_by"`
	Reference      string              `json:"reference"`
	Note           string              `json:"note"`
}

// TransferResult reports a committed (or replayed) movement
type TransferResult struct {
	CorrelationID      uuid.UUID           `json:"correlation_id"`
	Type               ledger.MovementType `json:"type"`
	Quantity           decimal.Decimal     `json:"quantity"`
	SourceBalance      *decimal.Decimal    `json:"source_balance,omitempty"`
	DestinationBalance *decimal.Decimal    `json:"destination_balance,omitempty"`
	Replayed           bool                `json:"replayed"`
}

// ReserveCommand earmarks stock for a future outbound movement. Level
// may be left empty and defaults to WAREHOUSE, the common hold.
type ReserveCommand struct {
	Level       ledger.Level    `json:"level"`
	OwnerRef    uuid.UUID       `json:"owner_ref"`
	ProductID   uuid.UUID       `json:"product_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	ExpiresAt   time.Time       `json:"expires_at"`
	PerformedBy string          `json:"performed_by"`
	Reference   string          `json:"reference"`
}

// ConsumeCommand draws down an active reservation. Destination names the
// record the reserved stock moves into; when nil the stock leaves the
// ledger through the level's outbound movement type.
type ConsumeCommand struct {
	ReservationID uuid.UUID       `json:"-"`
	Destination   *RecordKeyInput `json:"destination"`
	PerformedBy   string          `json:"performed_by"`
}

// ConsumeResult reports the closed reservation and the movement that
// consumed it
type ConsumeResult struct {
	Reservation *ReservationDTO `json:"reservation"`
	Movement    *TransferResult `json:"movement"`
}

// ReservationDTO is the outward representation of a reservation
type ReservationDTO struct {
	ID            uuid.UUID                `json:"id"`
	StockRecordID uuid.UUID                `json:"stock_record_id"`
	ProductID     uuid.UUID                `json:"product_id"`
	Quantity      decimal.Decimal          `json:"quantity"`
	Status        ledger.ReservationStatus `json:"status"`
	Reference     string                   `json:"reference"`
	ExpiresAt     time.Time                `json:"expires_at"`
	ClosedAt      *time.Time               `json:"closed_at,omitempty"`
	CreatedAt     time.Time                `json:"created_at"`
}

// StockRecordDTO is the outward representation of a stock record
type StockRecordDTO struct {
	ID           uuid.UUID        `json:"id"`
	Level        ledger.Level     `json:"level"`
	OwnerRef     uuid.UUID        `json:"owner_ref"`
	ProductID    uuid.UUID        `json:"product_id"`
	OnHand       decimal.Decimal  `json:"on_hand"`
	Reserved     decimal.Decimal  `json:"reserved"`
	Available    decimal.Decimal  `json:"available"`
	MinThreshold decimal.Decimal  `json:"min_threshold"`
	MaxCapacity  *decimal.Decimal `json:"max_capacity,omitempty"`
	Version      int              `json:"version"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// MovementEntryDTO is the outward representation of a log row
type MovementEntryDTO struct {
	ID                  uuid.UUID           `json:"id"`
	Type                ledger.MovementType `json:"type"`
	SourceRecordID      *uuid.UUID          `json:"source_record_id,omitempty"`
	DestinationRecordID *uuid.UUID          `json:"destination_record_id,omitempty"`
	ProductID           uuid.UUID           `json:"product_id"`
	Quantity            decimal.Decimal     `json:"quantity"`
	BalanceAfter        decimal.Decimal     `json:"balance_after"`
	CorrelationID       uuid.UUID           `json:"correlation_id"`
	PerformedBy         string              `json:"performed_by,omitempty"`
	Reference           string              `json:"reference,omitempty"`
	OccurredAt          time.Time           `json:"occurred_at"`
}

// DriftReport compares a stored balance against the movement log
type DriftReport struct {
	StockRecordID uuid.UUID       `json:"stock_record_id"`
	Stored        decimal.Decimal `json:"stored"`
	Reconstructed decimal.Decimal `json:"reconstructed"`
	Drift         decimal.Decimal `json:"drift"`
	Tolerance     decimal.Decimal `json:"tolerance"`
	HasDrift      bool            `json:"has_drift"`
}

func toStockRecordDTO(record *ledger.StockRecord) *StockRecordDTO {
	return &StockRecordDTO{
		ID:           record.ID,
		Level:        record.Level,
		OwnerRef:     record.OwnerRef,
		ProductID:    record.ProductID,
		OnHand:       record.OnHand,
		Reserved:     record.Reserved,
		Available:    record.Available(),
		MinThreshold: record.MinThreshold,
		MaxCapacity:  record.MaxCapacity,
		Version:      record.Version,
		UpdatedAt:    record.UpdatedAt,
	}
}

func toReservationDTO(reservation *ledger.Reservation) *ReservationDTO {
	return &ReservationDTO{
		ID:            reservation.ID,
		StockRecordID: reservation.StockRecordID,
		ProductID:     reservation.ProductID,
		Quantity:      reservation.Quantity,
		Status:        reservation.Status,
		Reference:     reservation.Reference,
		ExpiresAt:     reservation.ExpiresAt,
		ClosedAt:      reservation.ClosedAt,
		CreatedAt:     reservation.CreatedAt,
	}
}

func toMovementEntryDTO(entry *ledger.MovementEntry) *MovementEntryDTO {
	return &MovementEntryDTO{
		ID:                  entry.ID,
		Type:                entry.Type,
		SourceRecordID:      entry.SourceRecordID,
		DestinationRecordID: entry.DestinationRecordID,
		ProductID:           entry.ProductID,
		Quantity:            entry.Quantity,
		BalanceAfter:        entry.BalanceAfter,
		CorrelationID:       entry.CorrelationID,
		PerformedBy:         entry.PerformedBy,
		Reference:           entry.Reference,
		OccurredAt:          entry.OccurredAt,
	}
}
