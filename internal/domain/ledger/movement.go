package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vendfleet/backend/internal/domain/shared"
)

// MovementType classifies a stock movement between levels of the fleet
type MovementType string

const (
	// Boundary movements exchange stock with the outside world
	MovementWarehouseIn  MovementType = "WAREHOUSE_IN"
	MovementWarehouseOut MovementType = "WAREHOUSE_OUT"
	MovementMachineSale  MovementType = "MACHINE_SALE"
	MovementAdjustment   MovementType = "ADJUSTMENT"
	MovementWriteOff     MovementType = "WRITE_OFF"

	// Internal movements shift stock between adjacent levels
	MovementWarehouseToOperator MovementType = "WAREHOUSE_TO_OPERATOR"
	MovementOperatorToWarehouse MovementType = "OPERATOR_TO_WAREHOUSE"
	MovementOperatorToMachine   MovementType = "OPERATOR_TO_MACHINE"
	MovementMachineToOperator   MovementType = "MACHINE_TO_OPERATOR"

	// Instrumentation movements record reservation activity on warehouse
	// stock. They never change on-hand balances and are skipped when a
	// balance is reconstructed from the log.
	MovementWarehouseReservation MovementType = "WAREHOUSE_RESERVATION"
	MovementWarehouseRelease     MovementType = "WAREHOUSE_RELEASE"
)

// IsValid checks whether the movement type is known
func (t MovementType) IsValid() bool {
	switch t {
	case MovementWarehouseIn, MovementWarehouseOut, MovementMachineSale,
		MovementAdjustment, MovementWriteOff,
		MovementWarehouseToOperator, MovementOperatorToWarehouse,
		MovementOperatorToMachine, MovementMachineToOperator,
		MovementWarehouseReservation, MovementWarehouseRelease:
		return true
	}
	return false
}

// IsInstrumentation reports whether the movement only documents
// reservation activity rather than moving stock
func (t MovementType) IsInstrumentation() bool {
	return t == MovementWarehouseReservation || t == MovementWarehouseRelease
}

// ValidateTransition checks the movement type against its endpoints.
// A nil level stands for the world outside the ledger.
func (t MovementType) ValidateTransition(source, destination *Level) error {
	switch t {
	case MovementWarehouseIn:
		if source == nil && destination != nil && *destination == LevelWarehouse {
			return nil
		}
	case MovementWarehouseOut:
		if source != nil && *source == LevelWarehouse && destination == nil {
			return nil
		}
	case MovementWarehouseToOperator:
		if levelsAre(source, destination, LevelWarehouse, LevelOperator) {
			return nil
		}
	case MovementOperatorToWarehouse:
		if levelsAre(source, destination, LevelOperator, LevelWarehouse) {
			return nil
		}
	case MovementOperatorToMachine:
		if levelsAre(source, destination, LevelOperator, LevelMachine) {
			return nil
		}
	case MovementMachineToOperator:
		if levelsAre(source, destination, LevelMachine, LevelOperator) {
			return nil
		}
	case MovementMachineSale:
		if source != nil && *source == LevelMachine && destination == nil {
			return nil
		}
	case MovementAdjustment:
		if (source == nil) != (destination == nil) {
			return nil
		}
	case MovementWriteOff:
		if source != nil && destination == nil {
			return nil
		}
	case MovementWarehouseReservation, MovementWarehouseRelease:
		if source != nil && *source == LevelWarehouse && destination == nil {
			return nil
		}
	}
	return NewIllegalLevelTransitionError(source, destination)
}

// MovementTypeForTransition infers the movement type for a level pair.
// Boundary pairs that admit several types (inbound adjustment vs intake)
// cannot be inferred and must be named explicitly by the caller.
func MovementTypeForTransition(source, destination *Level) (MovementType, error) {
	if source != nil && destination != nil {
		switch {
		case *source == LevelWarehouse && *destination == LevelOperator:
			return MovementWarehouseToOperator, nil
		case *source == LevelOperator && *destination == LevelWarehouse:
			return MovementOperatorToWarehouse, nil
		case *source == LevelOperator && *destination == LevelMachine:
			return MovementOperatorToMachine, nil
		case *source == LevelMachine && *destination == LevelOperator:
			return MovementMachineToOperator, nil
		}
	}
	return "", NewIllegalLevelTransitionError(source, destination)
}

func levelsAre(source, destination *Level, wantSrc, wantDst Level) bool {
	return source != nil && destination != nil && *source == wantSrc && *destination == wantDst
}

// MovementEntry is one row of the append-only movement log. Entries are
// immutable once written; a transfer produces a debit row and a credit
// row sharing a correlation ID.
type MovementEntry struct {
	shared.BaseEntity
	Type                MovementType    `gorm:"type:varchar(32);not null;index"`
	SourceRecordID      *uuid.UUID      `gorm:"type:uuid;index"`
	DestinationRecordID *uuid.UUID      `gorm:"type:uuid;index"`
	ProductID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	Quantity            decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	BalanceAfter        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	CorrelationID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	IdempotencyKey      string          `gorm:"type:varchar(128);default:''"`
	PerformedBy         string          `gorm:"type:varchar(128)"`
	Reference           string          `gorm:"type:varchar(255)"`
	Note                string          `gorm:"type:text"`
	OccurredAt          time.Time       `gorm:"not null;index"`
}

// TableName returns the database table name
func (MovementEntry) TableName() string {
	return "movement_entries"
}

// IsDebit reports whether the entry removes stock from a record
func (e *MovementEntry) IsDebit() bool {
	return e.Quantity.IsNegative()
}

// IsCredit reports whether the entry adds stock to a record
func (e *MovementEntry) IsCredit() bool {
	return e.Quantity.IsPositive()
}

// newMovementEntry builds a single log row. Quantity carries the sign.
func newMovementEntry(movementType MovementType, productID uuid.UUID, sourceID, destinationID *uuid.UUID, quantity, balanceAfter decimal.Decimal, correlationID uuid.UUID, idempotencyKey string) *MovementEntry {
	return &MovementEntry{
		BaseEntity:          shared.NewBaseEntity(),
		Type:                movementType,
		SourceRecordID:      sourceID,
		DestinationRecordID: destinationID,
		ProductID:           productID,
		Quantity:            quantity,
		BalanceAfter:        balanceAfter,
		CorrelationID:       correlationID,
		IdempotencyKey:      idempotencyKey,
		OccurredAt:          time.Now(),
	}
}

// NewDebitEntry builds the negative half of a movement against the source
// record. balanceAfter is the source on-hand balance after the debit.
func NewDebitEntry(movementType MovementType, productID uuid.UUID, sourceID uuid.UUID, destinationID *uuid.UUID, quantity, balanceAfter decimal.Decimal, correlationID uuid.UUID, idempotencyKey string) *MovementEntry {
	return newMovementEntry(movementType, productID, &sourceID, destinationID, quantity.Neg(), balanceAfter, correlationID, idempotencyKey)
}

// NewCreditEntry builds the positive half of a movement against the
// destination record. balanceAfter is the destination on-hand balance
// after the credit.
func NewCreditEntry(movementType MovementType, productID uuid.UUID, sourceID *uuid.UUID, destinationID uuid.UUID, quantity, balanceAfter decimal.Decimal, correlationID uuid.UUID, idempotencyKey string) *MovementEntry {
	return newMovementEntry(movementType, productID, sourceID, &destinationID, quantity, balanceAfter, correlationID, idempotencyKey)
}

// NewInstrumentationEntry builds a reservation instrumentation row
// against a warehouse record. The quantity is informational only.
func NewInstrumentationEntry(movementType MovementType, productID uuid.UUID, recordID uuid.UUID, quantity, balanceAfter decimal.Decimal, correlationID uuid.UUID) *MovementEntry {
	return newMovementEntry(movementType, productID, &recordID, nil, quantity, balanceAfter, correlationID, "")
}
