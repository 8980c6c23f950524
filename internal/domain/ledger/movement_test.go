package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func levelPtr(l Level) *Level {
	return &l
}

func TestMovementTypeValidateTransition(t *testing.T) {
	tests := []struct {
		name         string
		movementType MovementType
		source       *Level
		destination  *Level
		wantErr      bool
	}{
		{"warehouse intake from outside", MovementWarehouseIn, nil, levelPtr(LevelWarehouse), false},
		{"warehouse intake into machine", MovementWarehouseIn, nil, levelPtr(LevelMachine), true},
		{"warehouse outbound", MovementWarehouseOut, levelPtr(LevelWarehouse), nil, false},
		{"warehouse to operator", MovementWarehouseToOperator, levelPtr(LevelWarehouse), levelPtr(LevelOperator), false},
		{"operator to warehouse", MovementOperatorToWarehouse, levelPtr(LevelOperator), levelPtr(LevelWarehouse), false},
		{"operator to machine", MovementOperatorToMachine, levelPtr(LevelOperator), levelPtr(LevelMachine), false},
		{"machine to operator", MovementMachineToOperator, levelPtr(LevelMachine), levelPtr(LevelOperator), false},
		{"sale from machine", MovementMachineSale, levelPtr(LevelMachine), nil, false},
		{"sale from warehouse", MovementMachineSale, levelPtr(LevelWarehouse), nil, true},
		{"inbound adjustment", MovementAdjustment, nil, levelPtr(LevelOperator), false},
		{"outbound adjustment", MovementAdjustment, levelPtr(LevelMachine), nil, false},
		{"internal adjustment", MovementAdjustment, levelPtr(LevelWarehouse), levelPtr(LevelOperator), true},
		{"write-off from any level", MovementWriteOff, levelPtr(LevelOperator), nil, false},
		{"write-off into a record", MovementWriteOff, levelPtr(LevelOperator), levelPtr(LevelWarehouse), true},
		{"reservation against warehouse", MovementWarehouseReservation, levelPtr(LevelWarehouse), nil, false},
		{"reservation against machine", MovementWarehouseReservation, levelPtr(LevelMachine), nil, true},
		{"direct warehouse to machine", MovementWarehouseToOperator, levelPtr(LevelWarehouse), levelPtr(LevelMachine), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.movementType.ValidateTransition(tt.source, tt.destination)
			if tt.wantErr {
				assertLedgerError(t, err, ErrCodeIllegalLevelTransition)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMovementTypeForTransition(t *testing.T) {
	t.Run("infers internal movement types", func(t *testing.T) {
		movementType, err := MovementTypeForTransition(levelPtr(LevelOperator), levelPtr(LevelMachine))

		require.NoError(t, err)
		assert.Equal(t, MovementOperatorToMachine, movementType)
	})

	t.Run("rejects warehouse to machine", func(t *testing.T) {
		_, err := MovementTypeForTransition(levelPtr(LevelWarehouse), levelPtr(LevelMachine))

		assertLedgerError(t, err, ErrCodeIllegalLevelTransition)
	})

	t.Run("rejects same-level pair", func(t *testing.T) {
		_, err := MovementTypeForTransition(levelPtr(LevelOperator), levelPtr(LevelOperator))

		assertLedgerError(t, err, ErrCodeIllegalLevelTransition)
	})

	t.Run("cannot infer boundary movements", func(t *testing.T) {
		_, err := MovementTypeForTransition(nil, levelPtr(LevelWarehouse))

		assertLedgerError(t, err, ErrCodeIllegalLevelTransition)
	})
}

func TestMovementEntryPair(t *testing.T) {
	t.Run("debit and credit carry opposite signs", func(t *testing.T) {
		productID := uuid.New()
		sourceID := uuid.New()
		destinationID := uuid.New()
		correlationID := uuid.New()
		qty := decimal.NewFromInt(5)

		debit := NewDebitEntry(MovementWarehouseToOperator, productID, sourceID, &destinationID, qty, decimal.NewFromInt(15), correlationID, "key-1")
		credit := NewCreditEntry(MovementWarehouseToOperator, productID, &sourceID, destinationID, qty, decimal.NewFromInt(5), correlationID, "key-1")

		assert.True(t, debit.IsDebit())
		assert.True(t, credit.IsCredit())
		assert.True(t, debit.Quantity.Equal(decimal.NewFromInt(-5)))
		assert.True(t, credit.Quantity.Equal(decimal.NewFromInt(5)))
		assert.NoError(t, CheckEntryPair(debit, credit))
	})

	t.Run("instrumentation entries are flagged", func(t *testing.T) {
		entry := NewInstrumentationEntry(MovementWarehouseReservation, uuid.New(), uuid.New(), decimal.NewFromInt(3), decimal.NewFromInt(10), uuid.New())

		assert.True(t, entry.Type.IsInstrumentation())
		assert.Nil(t, entry.DestinationRecordID)
	})
}
