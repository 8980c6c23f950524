package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vendfleet/backend/internal/domain/ledger"
	"github.com/vendfleet/backend/internal/domain/shared"
)

func intake(t *testing.T, f *fixture, ownerRef, productID uuid.UUID, quantity int64) {
	t.Helper()
	_, err := f.transferService().Transfer(context.Background(), TransferCommand{
		Type:        ledger.MovementWarehouseIn,
		Destination: &RecordKeyInput{Level: ledger.LevelWarehouse, OwnerRef: ownerRef},
		ProductID:   productID,
		Quantity:    decimal.NewFromInt(quantity),
	})
	require.NoError(t, err)
}

func storedRecord(t *testing.T, f *fixture, key ledger.RecordKey) *ledger.StockRecord {
	t.Helper()
	record, err := f.records.FindByKey(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, record)
	return record
}

func TestTransferWarehouseIntake(t *testing.T) {
	t.Run("creates the destination record lazily", func(t *testing.T) {
		f := newFixture()
		ownerRef, productID := uuid.New(), uuid.New()

		result, err := f.transferService().Transfer(context.Background(), TransferCommand{
			Type:        ledger.MovementWarehouseIn,
			Destination: &RecordKeyInput{Level: ledger.LevelWarehouse, OwnerRef: ownerRef},
			ProductID:   productID,
			Quantity:    decimal.NewFromInt(20),
		})

		require.NoError(t, err)
		require.NotNil(t, result.DestinationBalance)
		assert.True(t, result.DestinationBalance.Equal(decimal.NewFromInt(20)))
		assert.Nil(t, result.SourceBalance)
		assert.False(t, result.Replayed)

		record := storedRecord(t, f, ledger.RecordKey{Level: ledger.LevelWarehouse, OwnerRef: ownerRef, ProductID: productID})
		assert.True(t, record.OnHand.Equal(decimal.NewFromInt(20)))
	})

	t.Run("writes a single credit row", func(t *testing.T) {
		f := newFixture()
		ownerRef, productID := uuid.New(), uuid.New()
		intake(t, f, ownerRef, productID, 20)

		record := storedRecord(t, f, ledger.RecordKey{Level: ledger.LevelWarehouse, OwnerRef: ownerRef, ProductID: productID})
		entries, err := f.movements.FindAllByRecordID(context.Background(), record.ID)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, ledger.MovementWarehouseIn, entries[0].Type)
		assert.True(t, entries[0].IsCredit())
		assert.Nil(t, entries[0].SourceRecordID)
	})
}

func TestTransferInternal(t *testing.T) {
	t.Run("moves stock and writes a cancelling pair", func(t *testing.T) {
		f := newFixture()
		warehouseRef, operatorRef, productID := uuid.New(), uuid.New(), uuid.New()
		intake(t, f, warehouseRef, productID, 20)

		result, err := f.transferService().Transfer(context.Background(), TransferCommand{
			Type:        ledger.MovementWarehouseToOperator,
			Source:      &RecordKeyInput{Level: ledger.LevelWarehouse, OwnerRef: warehouseRef},
			Destination: &RecordKeyInput{Level: ledger.LevelOperator, OwnerRef: operatorRef},
			ProductID:   productID,
			Quantity:    decimal.NewFromInt(8),
		})

		require.NoError(t, err)
		assert.True(t, result.SourceBalance.Equal(decimal.NewFromInt(12)))
		assert.True(t, result.DestinationBalance.Equal(decimal.NewFromInt(8)))

		pair, err := f.movements.FindByCorrelationID(context.Background(), result.CorrelationID)
		require.NoError(t, err)
		require.Len(t, pair, 2)
		assert.True(t, pair[0].Quantity.Add(pair[1].Quantity).IsZero())
	})

	t.Run("infers the movement type for internal pairs", func(t *testing.T) {
		f := newFixture()
		warehouseRef, operatorRef, productID := uuid.New(), uuid.New(), uuid.New()
		intake(t, f, warehouseRef, productID, 20)

		result, err := f.transferService().Transfer(context.Background(), TransferCommand{
			Source:      &RecordKeyInput{Level: ledger.LevelWarehouse, OwnerRef: warehouseRef},
			Destination: &RecordKeyInput{Level: ledger.LevelOperator, OwnerRef: operatorRef},
			ProductID:   productID,
			Quantity:    decimal.NewFromInt(5),
		})

		require.NoError(t, err)
		assert.Equal(t, ledger.MovementWarehouseToOperator, result.Type)
	})

	t.Run("rejects direct warehouse to machine", func(t *testing.T) {
		f := newFixture()
		warehouseRef, machineRef, productID := uuid.New(), uuid.New(), uuid.New()
		intake(t, f, warehouseRef, productID, 20)

		_, err := f.transferService().Transfer(context.Background(), TransferCommand{
			Source:      &RecordKeyInput{Level: ledger.LevelWarehouse, OwnerRef: warehouseRef},
			Destination: &RecordKeyInput{Level: ledger.LevelMachine, OwnerRef: machineRef},
			ProductID:   productID,
			Quantity:    decimal.NewFromInt(5),
		})

		assertAppError(t, err, ledger.ErrCodeIllegalLevelTransition)
	})
}

func TestTransferValidation(t *testing.T) {
	t.Run("rejects non-positive quantity", func(t *testing.T) {
		f := newFixture()

		_, err := f.transferService().Transfer(context.Background(), TransferCommand{
			Type:        ledger.MovementWarehouseIn,
			Destination: &RecordKeyInput{Level: ledger.LevelWarehouse, OwnerRef: uuid.New()},
			ProductID:   uuid.New(),
			Quantity:    decimal.Zero,
		})

		assertAppError(t, err, ledger.ErrCodeInvalidQuantity)
	})

	t.Run("rejects missing source record", func(t *testing.T) {
		f := newFixture()

		_, err := f.transferService().Transfer(context.Background(), TransferCommand{
			Type:        ledger.MovementWarehouseToOperator,
			Source:      &RecordKeyInput{Level: ledger.LevelWarehouse, OwnerRef: uuid.New()},
			Destination: &RecordKeyInput{Level: ledger.LevelOperator, OwnerRef: uuid.New()},
			ProductID:   uuid.New(),
			Quantity:    decimal.NewFromInt(5),
		})

		assertAppError(t, err, ledger.ErrCodeUnknownStockRecord)
	})

	t.Run("rejects instrumentation movement types", func(t *testing.T) {
		f := newFixture()

		_, err := f.transferService().Transfer(context.Background(), TransferCommand{
			Type:      ledger.MovementWarehouseReservation,
			Source:    &RecordKeyInput{Level: ledger.LevelWarehouse, OwnerRef: uuid.New()},
			ProductID: uuid.New(),
			Quantity:  decimal.NewFromInt(5),
		})

		assertAppError(t, err, ledger.ErrCodeInvalidState)
	})
}

func TestTransferGuards(t *testing.T) {
	t.Run("insufficient stock leaves balances untouched", func(t *testing.T) {
		f := newFixture()
		warehouseRef, operatorRef, productID := uuid.New(), uuid.New(), uuid.New()
		intake(t, f, warehouseRef, productID, 3)

		_, err := f.transferService().Transfer(context.Background(), TransferCommand{
			Source:      &RecordKeyInput{Level: ledger.LevelWarehouse, OwnerRef: warehouseRef},
			Destination: &RecordKeyInput{Level: ledger.LevelOperator, OwnerRef: operatorRef},
			ProductID:   productID,
			Quantity:    decimal.NewFromInt(5),
		})

		assertAppError(t, err, ledger.ErrCodeInsufficientStock)
		record := storedRecord(t, f, ledger.RecordKey{Level: ledger.LevelWarehouse, OwnerRef: warehouseRef, ProductID: productID})
		assert.True(t, record.OnHand.Equal(decimal.NewFromInt(3)))
	})

	t.Run("reserved stock blocks ordinary debits", func(t *testing.T) {
		f := newFixture()
		warehouseRef, operatorRef, productID := uuid.New(), uuid.New(), uuid.New()
		intake(t, f, warehouseRef, productID, 10)
		_, err := f.reservationService().Reserve(context.Background(), ReserveCommand{
			OwnerRef:  warehouseRef,
			ProductID: productID,
			Quantity:  decimal.NewFromInt(7),
			ExpiresAt: futureExpiry(),
		})
		require.NoError(t, err)

		_, err = f.transferService().Transfer(context.Background(), TransferCommand{
			Source:      &RecordKeyInput{Level: ledger.LevelWarehouse, OwnerRef: warehouseRef},
			Destination: &RecordKeyInput{Level: ledger.LevelOperator, OwnerRef: operatorRef},
			ProductID:   productID,
			Quantity:    decimal.NewFromInt(5),
		})

		assertAppError(t, err, ledger.ErrCodeInsufficientUnreserved)
	})

	t.Run("destination capacity bounds the credit", func(t *testing.T) {
		f := newFixture()
		warehouseRef, machineRef, operatorRef, productID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
		intake(t, f, warehouseRef, productID, 50)

		machineKey := ledger.RecordKey{Level: ledger.LevelMachine, OwnerRef: machineRef, ProductID: productID}
		capacity := decimal.NewFromInt(10)
		_, err := f.recordService().SetThresholds(context.Background(), machineKey, decimal.Zero, &capacity)
		require.NoError(t, err)

		// Route the stock through the operator level first
		_, err = f.transferService().Transfer(context.Background(), TransferCommand{
			Source:      &RecordKeyInput{Level: ledger.LevelWarehouse, OwnerRef: warehouseRef},
			Destination: &RecordKeyInput{Level: ledger.LevelOperator, OwnerRef: operatorRef},
			ProductID:   productID,
			Quantity:    decimal.NewFromInt(30),
		})
		require.NoError(t, err)

		_, err = f.transferService().Transfer(context.Background(), TransferCommand{
			Source:      &RecordKeyInput{Level: ledger.LevelOperator, OwnerRef: operatorRef},
			Destination: &RecordKeyInput{Level: ledger.LevelMachine, OwnerRef: machineRef},
			ProductID:   productID,
			Quantity:    decimal.NewFromInt(15),
		})

		assertAppError(t, err, ledger.ErrCodeCapacityExceeded)
		operatorRecord := storedRecord(t, f, ledger.RecordKey{Level: ledger.LevelOperator, OwnerRef: operatorRef, ProductID: productID})
		assert.True(t, operatorRecord.OnHand.Equal(decimal.NewFromInt(30)))
	})

	t.Run("debit below threshold publishes an alert event", func(t *testing.T) {
		f := newFixture()
		warehouseRef, operatorRef, productID := uuid.New(), uuid.New(), uuid.New()
		intake(t, f, warehouseRef, productID, 10)

		warehouseKey := ledger.RecordKey{Level: ledger.LevelWarehouse, OwnerRef: warehouseRef, ProductID: productID}
		_, err := f.recordService().SetThresholds(context.Background(), warehouseKey, decimal.NewFromInt(5), nil)
		require.NoError(t, err)

		_, err = f.transferService().Transfer(context.Background(), TransferCommand{
			Source:      &RecordKeyInput{Level: ledger.LevelWarehouse, OwnerRef: warehouseRef},
			Destination: &RecordKeyInput{Level: ledger.LevelOperator, OwnerRef: operatorRef},
			ProductID:   productID,
			Quantity:    decimal.NewFromInt(8),
		})
		require.NoError(t, err)

		assert.Len(t, f.publisher.eventsOfType(ledger.EventStockBelowThreshold), 1)
	})
}

func TestTransferIdempotency(t *testing.T) {
	t.Run("a repeated key replays without moving stock again", func(t *testing.T) {
		f := newFixture()
		warehouseRef, operatorRef, productID := uuid.New(), uuid.New(), uuid.New()
		intake(t, f, warehouseRef, productID, 20)

		cmd := TransferCommand{
			Source:         &RecordKeyInput{Level: ledger.LevelWarehouse, OwnerRef: warehouseRef},
			Destination:    &RecordKeyInput{Level: ledger.LevelOperator, OwnerRef: operatorRef},
			ProductID:      productID,
			Quantity:       decimal.NewFromInt(8),
			IdempotencyKey: "restock-2026-08-24-001",
		}

		first, err := f.transferService().Transfer(context.Background(), cmd)
		require.NoError(t, err)
		second, err := f.transferService().Transfer(context.Background(), cmd)
		require.NoError(t, err)

		assert.False(t, first.Replayed)
		assert.True(t, second.Replayed)
		assert.Equal(t, first.CorrelationID, second.CorrelationID)
		assert.True(t, second.SourceBalance.Equal(*first.SourceBalance))

		record := storedRecord(t, f, ledger.RecordKey{Level: ledger.LevelWarehouse, OwnerRef: warehouseRef, ProductID: productID})
		assert.True(t, record.OnHand.Equal(decimal.NewFromInt(12)))
	})

	t.Run("a raced retry replays after acquiring the locks", func(t *testing.T) {
		f := newFixture()
		warehouseRef, operatorRef, productID := uuid.New(), uuid.New(), uuid.New()
		intake(t, f, warehouseRef, productID, 20)

		cmd := TransferCommand{
			Source:         &RecordKeyInput{Level: ledger.LevelWarehouse, OwnerRef: warehouseRef},
			Destination:    &RecordKeyInput{Level: ledger.LevelOperator, OwnerRef: operatorRef},
			ProductID:      productID,
			Quantity:       decimal.NewFromInt(8),
			IdempotencyKey: "restock-2026-08-24-002",
		}

		first, err := f.transferService().Transfer(context.Background(), cmd)
		require.NoError(t, err)

		// A concurrent writer's committed rows are invisible to the
		// pre-lock replay read and appear only once the locks are held.
		stale := &staleReplayMovements{memMovements: f.movements, misses: 1}
		scope := &NoOpTransactionScope{Repos: &TransactionalRepositories{
			StockRecords: f.records,
			Movements:    stale,
			Reservations: f.reservations,
		}}
		second, err := NewTransferService(scope, f.publisher, zap.NewNop()).Transfer(context.Background(), cmd)

		require.NoError(t, err)
		assert.True(t, second.Replayed)
		assert.Equal(t, first.CorrelationID, second.CorrelationID)

		record := storedRecord(t, f, ledger.RecordKey{Level: ledger.LevelWarehouse, OwnerRef: warehouseRef, ProductID: productID})
		assert.True(t, record.OnHand.Equal(decimal.NewFromInt(12)))
	})
}

// staleReplayMovements hides committed rows from the first replay reads,
// the way a READ COMMITTED snapshot taken before a competing commit does.
type staleReplayMovements struct {
	*memMovements
	misses int
}

func (m *staleReplayMovements) FindByIdempotencyKey(ctx context.Context, key string) ([]*ledger.MovementEntry, error) {
	if m.misses > 0 {
		m.misses--
		return nil, nil
	}
	return m.memMovements.FindByIdempotencyKey(ctx, key)
}

func TestTransferSerialization(t *testing.T) {
	t.Run("two overlapping transfers cannot jointly overdraw", func(t *testing.T) {
		f := newFixture()
		warehouseRef, operatorRef, productID := uuid.New(), uuid.New(), uuid.New()
		intake(t, f, warehouseRef, productID, 100)

		cmd := TransferCommand{
			Source:      &RecordKeyInput{Level: ledger.LevelWarehouse, OwnerRef: warehouseRef},
			Destination: &RecordKeyInput{Level: ledger.LevelOperator, OwnerRef: operatorRef},
			ProductID:   productID,
			Quantity:    decimal.NewFromInt(60),
		}

		// The raced writer read on-hand 100 but the competing transfer
		// commits first, so its guarded update fails the version check.
		f.records.saveConflicts = 1
		_, err := f.transferService().Transfer(context.Background(), cmd)
		assertAppError(t, err, ledger.ErrCodeConcurrentModification)
		assert.True(t, ledger.IsRetryable(err))

		winner, err := f.transferService().Transfer(context.Background(), cmd)
		require.NoError(t, err)
		assert.True(t, winner.SourceBalance.Equal(decimal.NewFromInt(40)))

		// The loser's retry sees the committed state and is rejected
		// outright rather than overdrawing the pool.
		_, err = f.transferService().Transfer(context.Background(), cmd)
		assertAppError(t, err, ledger.ErrCodeInsufficientStock)

		record := storedRecord(t, f, ledger.RecordKey{Level: ledger.LevelWarehouse, OwnerRef: warehouseRef, ProductID: productID})
		assert.True(t, record.OnHand.Equal(decimal.NewFromInt(40)))
	})
}

func TestTransferMachineSale(t *testing.T) {
	t.Run("sale debits the machine against the outside world", func(t *testing.T) {
		f := newFixture()
		warehouseRef, operatorRef, machineRef, productID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
		intake(t, f, warehouseRef, productID, 20)

		for _, step := range []TransferCommand{
			{
				Source:      &RecordKeyInput{Level: ledger.LevelWarehouse, OwnerRef: warehouseRef},
				Destination: &RecordKeyInput{Level: ledger.LevelOperator, OwnerRef: operatorRef},
				ProductID:   productID,
				Quantity:    decimal.NewFromInt(10),
			},
			{
				Source:      &RecordKeyInput{Level: ledger.LevelOperator, OwnerRef: operatorRef},
				Destination: &RecordKeyInput{Level: ledger.LevelMachine, OwnerRef: machineRef},
				ProductID:   productID,
				Quantity:    decimal.NewFromInt(10),
			},
		} {
			_, err := f.transferService().Transfer(context.Background(), step)
			require.NoError(t, err)
		}

		result, err := f.transferService().Transfer(context.Background(), TransferCommand{
			Type:      ledger.MovementMachineSale,
			Source:    &RecordKeyInput{Level: ledger.LevelMachine, OwnerRef: machineRef},
			ProductID: productID,
			Quantity:  decimal.NewFromInt(1),
		})

		require.NoError(t, err)
		assert.True(t, result.SourceBalance.Equal(decimal.NewFromInt(9)))
		assert.Nil(t, result.DestinationBalance)
	})
}

func assertAppError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, code, domainErr.Code)
}
