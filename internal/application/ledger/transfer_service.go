package ledger

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vendfleet/backend/internal/domain/ledger"
	"github.com/vendfleet/backend/internal/domain/shared"
)

// TransferService moves stock between records of the fleet. Every
// movement commits atomically: balance changes and log rows land in one
// transaction, with row locks taken in a fixed key order.
type TransferService struct {
	scope  TransactionScope
	events shared.EventPublisher
	logger *zap.Logger
}

// NewTransferService creates a transfer service
func NewTransferService(scope TransactionScope, events shared.EventPublisher, logger *zap.Logger) *TransferService {
	return &TransferService{
		scope:  scope,
		events: events,
		logger: logger,
	}
}

// Transfer executes a stock movement. A repeated idempotency key replays
// the originally committed result instead of moving stock again.
func (s *TransferService) Transfer(ctx context.Context, cmd TransferCommand) (*TransferResult, error) {
	if err := ledger.ValidateQuantity(cmd.Quantity); err != nil {
		return nil, err
	}
	movementType, err := s.resolveMovementType(cmd)
	if err != nil {
		return nil, err
	}

	var result *TransferResult
	var pending []shared.DomainEvent

	err = s.scope.Execute(ctx, func(ctx context.Context, repos *TransactionalRepositories) error {
		if cmd.IdempotencyKey != "" {
			replayed, err := s.findReplay(ctx, repos, cmd.IdempotencyKey)
			if err != nil {
				return err
			}
			if replayed != nil {
				result = replayed
				return nil
			}
		}

		source, destination, err := s.lockEndpoints(ctx, repos, cmd)
		if err != nil {
			return err
		}

		// A racing transfer with the same key may have committed between
		// the first replay check and lock acquisition; under the row
		// locks its rows are visible, so re-check before writing.
		if cmd.IdempotencyKey != "" {
			replayed, err := s.findReplay(ctx, repos, cmd.IdempotencyKey)
			if err != nil {
				return err
			}
			if replayed != nil {
				result = replayed
				return nil
			}
		}

		if source != nil {
			if err := source.Debit(cmd.Quantity); err != nil {
				return err
			}
		}
		if destination != nil {
			if err := destination.Credit(cmd.Quantity); err != nil {
				return err
			}
		}

		correlationID := uuid.New()
		entries, err := buildEntries(movementType, cmd, source, destination, correlationID)
		if err != nil {
			return err
		}

		for _, record := range []*ledger.StockRecord{source, destination} {
			if record == nil {
				continue
			}
			if err := ledger.CheckRecordInvariants(record); err != nil {
				return err
			}
			if err := repos.StockRecords.SaveWithLock(ctx, record); err != nil {
				return err
			}
			pending = append(pending, record.GetDomainEvents()...)
			record.ClearDomainEvents()
		}

		if err := repos.Movements.Create(ctx, entries...); err != nil {
			return err
		}

		result = buildResult(movementType, cmd.Quantity, correlationID, source, destination)
		pending = append(pending, ledger.NewStockTransferredEvent(
			movementType, recordIDPtr(source), recordIDPtr(destination),
			cmd.ProductID, cmd.Quantity, correlationID))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, pending)

	s.logger.Info("stock transferred",
		zap.String("movement_type", string(movementType)),
		zap.String("product_id", cmd.ProductID.String()),
		zap.String("quantity", cmd.Quantity.String()),
		zap.String("correlation_id", result.CorrelationID.String()),
		zap.Bool("replayed", result.Replayed))
	return result, nil
}

// resolveMovementType validates the named movement type against the
// endpoint levels, or infers it for internal level pairs
func (s *TransferService) resolveMovementType(cmd TransferCommand) (ledger.MovementType, error) {
	sourceLevel := endpointLevel(cmd.Source)
	destinationLevel := endpointLevel(cmd.Destination)

	if cmd.Type == "" {
		return ledger.MovementTypeForTransition(sourceLevel, destinationLevel)
	}
	if !cmd.Type.IsValid() || cmd.Type.IsInstrumentation() {
		return "", ledger.NewInvalidStateError("unknown movement type: " + string(cmd.Type))
	}
	if err := cmd.Type.ValidateTransition(sourceLevel, destinationLevel); err != nil {
		return "", err
	}
	return cmd.Type, nil
}

// findReplay rebuilds the result of a previously committed movement
// recorded under the same idempotency key
func (s *TransferService) findReplay(ctx context.Context, repos *TransactionalRepositories, key string) (*TransferResult, error) {
	entries, err := repos.Movements.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	result := &TransferResult{
		CorrelationID: entries[0].CorrelationID,
		Type:          entries[0].Type,
		Replayed:      true,
	}
	for _, entry := range entries {
		balance := entry.BalanceAfter
		if entry.IsDebit() {
			result.Quantity = entry.Quantity.Neg()
			result.SourceBalance = &balance
		} else {
			result.Quantity = entry.Quantity
			result.DestinationBalance = &balance
		}
	}
	return result, nil
}

// lockEndpoints loads the endpoint records under row locks, acquiring
// them in key order. The source must already exist; the destination is
// created lazily.
func (s *TransferService) lockEndpoints(ctx context.Context, repos *TransactionalRepositories, cmd TransferCommand) (source, destination *ledger.StockRecord, err error) {
	type endpoint struct {
		key      ledger.RecordKey
		isSource bool
	}
	var endpoints []endpoint
	if cmd.Source != nil {
		endpoints = append(endpoints, endpoint{key: cmd.Source.Key(cmd.ProductID), isSource: true})
	}
	if cmd.Destination != nil {
		endpoints = append(endpoints, endpoint{key: cmd.Destination.Key(cmd.ProductID)})
	}
	sort.Slice(endpoints, func(i, j int) bool {
		return endpoints[i].key.Less(endpoints[j].key)
	})

	for _, ep := range endpoints {
		if !ep.isSource {
			if _, err := repos.StockRecords.GetOrCreate(ctx, ep.key); err != nil {
				return nil, nil, err
			}
		}
		record, err := repos.StockRecords.FindByKeyForUpdate(ctx, ep.key)
		if err != nil {
			return nil, nil, err
		}
		if record == nil {
			return nil, nil, ledger.NewUnknownStockRecordError(ep.key)
		}
		if ep.isSource {
			source = record
		} else {
			destination = record
		}
	}
	return source, destination, nil
}

// buildEntries produces the log rows of a movement: a debit/credit pair
// for internal movements, a single row for boundary movements
func buildEntries(movementType ledger.MovementType, cmd TransferCommand, source, destination *ledger.StockRecord, correlationID uuid.UUID) ([]*ledger.MovementEntry, error) {
	switch {
	case source != nil && destination != nil:
		debit := ledger.NewDebitEntry(movementType, cmd.ProductID, source.ID, &destination.ID,
			cmd.Quantity, source.OnHand, correlationID, cmd.IdempotencyKey)
		credit := ledger.NewCreditEntry(movementType, cmd.ProductID, &source.ID, destination.ID,
			cmd.Quantity, destination.OnHand, correlationID, cmd.IdempotencyKey)
		debit.Reference, credit.Reference = cmd.Reference, cmd.Reference
		debit.Note, credit.Note = cmd.Note, cmd.Note
		debit.PerformedBy, credit.PerformedBy = cmd.PerformedBy, cmd.PerformedBy
		if err := ledger.CheckEntryPair(debit, credit); err != nil {
			return nil, err
		}
		return []*ledger.MovementEntry{debit, credit}, nil
	case source != nil:
		debit := ledger.NewDebitEntry(movementType, cmd.ProductID, source.ID, nil,
			cmd.Quantity, source.OnHand, correlationID, cmd.IdempotencyKey)
		debit.Reference, debit.Note = cmd.Reference, cmd.Note
		debit.PerformedBy = cmd.PerformedBy
		return []*ledger.MovementEntry{debit}, nil
	case destination != nil:
		credit := ledger.NewCreditEntry(movementType, cmd.ProductID, nil, destination.ID,
			cmd.Quantity, destination.OnHand, correlationID, cmd.IdempotencyKey)
		credit.Reference, credit.Note = cmd.Reference, cmd.Note
		credit.PerformedBy = cmd.PerformedBy
		return []*ledger.MovementEntry{credit}, nil
	}
	return nil, ledger.NewIllegalLevelTransitionError(nil, nil)
}

func buildResult(movementType ledger.MovementType, quantity decimal.Decimal, correlationID uuid.UUID, source, destination *ledger.StockRecord) *TransferResult {
	result := &TransferResult{
		CorrelationID: correlationID,
		Type:          movementType,
		Quantity:      quantity,
	}
	if source != nil {
		balance := source.OnHand
		result.SourceBalance = &balance
	}
	if destination != nil {
		balance := destination.OnHand
		result.DestinationBalance = &balance
	}
	return result
}

func (s *TransferService) publish(ctx context.Context, events []shared.DomainEvent) {
	if len(events) == 0 {
		return
	}
	if err := s.events.Publish(ctx, events...); err != nil {
		s.logger.Error("failed to publish ledger events", zap.Error(err))
	}
}

func endpointLevel(input *RecordKeyInput) *ledger.Level {
	if input == nil {
		return nil
	}
	level := input.Level
	return &level
}

func recordIDPtr(record *ledger.StockRecord) *uuid.UUID {
	if record == nil {
		return nil
	}
	id := record.ID
	return &id
}
