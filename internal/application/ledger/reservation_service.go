package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vendfleet/backend/internal/domain/ledger"
	"github.com/vendfleet/backend/internal/domain/shared"
)

// ReservationService manages the reservation lifecycle.
// Earmarking, drawing down and returning stock all run in the same
// transactional shape as transfers: row locks, invariant checks, and
// log rows committing together with balance changes.
type ReservationService struct {
	scope  TransactionScope
	events shared.EventPublisher
	logger *zap.Logger
}

// NewReservationService creates a reservation service
func NewReservationService(scope TransactionScope, events shared.EventPublisher, logger *zap.Logger) *ReservationService {
	return &ReservationService{
		scope:  scope,
		events: events,
		logger: logger,
	}
}

// Reserve earmarks stock and opens an active reservation. Warehouse
// earmarks are additionally documented in the movement log as an
// instrumentation row; holds at other levels stay unlogged.
func (s *ReservationService) Reserve(ctx context.Context, cmd ReserveCommand) (*ReservationDTO, error) {
	if err := ledger.ValidateQuantity(cmd.Quantity); err != nil {
		return nil, err
	}
	level := cmd.Level
	if level == "" {
		level = ledger.LevelWarehouse
	}
	if !level.IsValid() {
		return nil, ledger.NewInvalidStateError("unknown stock level: " + string(level))
	}

	var dto *ReservationDTO
	var pending []shared.DomainEvent

	err := s.scope.Execute(ctx, func(ctx context.Context, repos *TransactionalRepositories) error {
		key := ledger.RecordKey{Level: level, OwnerRef: cmd.OwnerRef, ProductID: cmd.ProductID}
		record, err := repos.StockRecords.FindByKeyForUpdate(ctx, key)
		if err != nil {
			return err
		}
		if record == nil {
			return ledger.NewUnknownStockRecordError(key)
		}

		if err := record.Reserve(cmd.Quantity); err != nil {
			return err
		}
		if err := ledger.CheckRecordInvariants(record); err != nil {
			return err
		}
		if err := repos.StockRecords.SaveWithLock(ctx, record); err != nil {
			return err
		}

		reservation, err := ledger.NewReservation(record.ID, cmd.ProductID, cmd.Quantity, cmd.ExpiresAt, cmd.Reference)
		if err != nil {
			return err
		}
		if err := repos.Reservations.Create(ctx, reservation); err != nil {
			return err
		}

		if record.Level == ledger.LevelWarehouse {
			entry := ledger.NewInstrumentationEntry(ledger.MovementWarehouseReservation,
				cmd.ProductID, record.ID, cmd.Quantity, record.OnHand, reservation.ID)
			entry.Reference = cmd.Reference
			entry.PerformedBy = cmd.PerformedBy
			if err := repos.Movements.Create(ctx, entry); err != nil {
				return err
			}
		}

		dto = toReservationDTO(reservation)
		pending = append(pending, ledger.NewStockReservedEvent(reservation))
		pending = append(pending, record.GetDomainEvents()...)
		record.ClearDomainEvents()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, pending)
	s.logger.Info("stock reserved",
		zap.String("reservation_id", dto.ID.String()),
		zap.String("product_id", cmd.ProductID.String()),
		zap.String("quantity", cmd.Quantity.String()))
	return dto, nil
}

// Consume draws down a reservation, moving the earmarked stock into the
// named destination record, or out of the ledger when no destination is
// given. The unreserved-stock check does not apply: the caller spends
// stock it had previously earmarked.
func (s *ReservationService) Consume(ctx context.Context, cmd ConsumeCommand) (*ConsumeResult, error) {
	var result *ConsumeResult
	var pending []shared.DomainEvent

	err := s.scope.Execute(ctx, func(ctx context.Context, repos *TransactionalRepositories) error {
		reservation, err := repos.Reservations.FindByIDForUpdate(ctx, cmd.ReservationID)
		if err != nil {
			return err
		}
		if reservation == nil {
			return shared.ErrNotFound
		}
		if reservation.IsDue(time.Now()) {
			return ledger.NewInvalidStateError("reservation has passed its expiry")
		}

		// The record key never changes, so an unlocked read is enough to
		// learn it and take the row locks in the fixed key order.
		preview, err := repos.StockRecords.FindByID(ctx, reservation.StockRecordID)
		if err != nil {
			return err
		}
		if preview == nil {
			return shared.ErrNotFound
		}
		sourceKey := preview.Key()

		var movementType ledger.MovementType
		var destinationKey *ledger.RecordKey
		if cmd.Destination != nil {
			destinationLevel := cmd.Destination.Level
			movementType, err = ledger.MovementTypeForTransition(&sourceKey.Level, &destinationLevel)
			if err != nil {
				return err
			}
			key := cmd.Destination.Key(reservation.ProductID)
			destinationKey = &key
		} else {
			movementType, err = outboundMovementType(sourceKey.Level)
			if err != nil {
				return err
			}
		}

		source, destination, err := s.lockConsumeEndpoints(ctx, repos, sourceKey, destinationKey)
		if err != nil {
			return err
		}

		if err := reservation.Consume(); err != nil {
			return err
		}
		if err := source.ConsumeReserved(reservation.Quantity); err != nil {
			return err
		}
		if destination != nil {
			if err := destination.Credit(reservation.Quantity); err != nil {
				return err
			}
		}

		correlationID := uuid.New()
		var entries []*ledger.MovementEntry
		if destination != nil {
			debit := ledger.NewDebitEntry(movementType, reservation.ProductID, source.ID, &destination.ID,
				reservation.Quantity, source.OnHand, correlationID, "")
			credit := ledger.NewCreditEntry(movementType, reservation.ProductID, &source.ID, destination.ID,
				reservation.Quantity, destination.OnHand, correlationID, "")
			if err := ledger.CheckEntryPair(debit, credit); err != nil {
				return err
			}
			entries = []*ledger.MovementEntry{debit, credit}
		} else {
			entries = []*ledger.MovementEntry{ledger.NewDebitEntry(movementType, reservation.ProductID,
				source.ID, nil, reservation.Quantity, source.OnHand, correlationID, "")}
		}
		for _, entry := range entries {
			entry.Reference = reservation.Reference
			entry.PerformedBy = cmd.PerformedBy
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
		if err := repos.Reservations.SaveWithLock(ctx, reservation); err != nil {
			return err
		}
		if err := repos.Movements.Create(ctx, entries...); err != nil {
			return err
		}

		result = &ConsumeResult{
			Reservation: toReservationDTO(reservation),
			Movement:    buildResult(movementType, reservation.Quantity, correlationID, source, destination),
		}
		pending = append(pending, ledger.NewReservationClosedEvent(reservation))
		pending = append(pending, ledger.NewStockTransferredEvent(
			movementType, recordIDPtr(source), recordIDPtr(destination),
			reservation.ProductID, reservation.Quantity, correlationID))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, pending)
	s.logger.Info("reservation consumed",
		zap.String("reservation_id", result.Reservation.ID.String()),
		zap.String("movement_type", string(result.Movement.Type)),
		zap.String("correlation_id", result.Movement.CorrelationID.String()))
	return result, nil
}

// outboundMovementType names the boundary outflow a destination-less
// consume documents. Operator stock has no outbound type of its own and
// must name a destination.
func outboundMovementType(level ledger.Level) (ledger.MovementType, error) {
	switch level {
	case ledger.LevelWarehouse:
		return ledger.MovementWarehouseOut, nil
	case ledger.LevelMachine:
		return ledger.MovementMachineSale, nil
	}
	return "", ledger.NewIllegalLevelTransitionError(&level, nil)
}

// lockConsumeEndpoints takes the row locks of a consume in the fixed key
// order. The destination, when named, is created lazily like a transfer
// destination.
func (s *ReservationService) lockConsumeEndpoints(ctx context.Context, repos *TransactionalRepositories, sourceKey ledger.RecordKey, destinationKey *ledger.RecordKey) (source, destination *ledger.StockRecord, err error) {
	lockSource := func() error {
		source, err = repos.StockRecords.FindByKeyForUpdate(ctx, sourceKey)
		if err != nil {
			return err
		}
		if source == nil {
			return shared.ErrNotFound
		}
		return nil
	}
	lockDestination := func() error {
		if destinationKey == nil {
			return nil
		}
		if _, err := repos.StockRecords.GetOrCreate(ctx, *destinationKey); err != nil {
			return err
		}
		destination, err = repos.StockRecords.FindByKeyForUpdate(ctx, *destinationKey)
		if err != nil {
			return err
		}
		if destination == nil {
			return ledger.NewUnknownStockRecordError(*destinationKey)
		}
		return nil
	}

	steps := []func() error{lockSource, lockDestination}
	if destinationKey != nil && destinationKey.Less(sourceKey) {
		steps[0], steps[1] = steps[1], steps[0]
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, nil, err
		}
	}
	return source, destination, nil
}

// Release voluntarily returns a reservation's stock to the unreserved
// pool
func (s *ReservationService) Release(ctx context.Context, reservationID uuid.UUID) (*ReservationDTO, error) {
	return s.close(ctx, reservationID, closeRelease)
}

// Expire lapses a reservation past its expiry, returning its stock to
// the unreserved pool
func (s *ReservationService) Expire(ctx context.Context, reservationID uuid.UUID) (*ReservationDTO, error) {
	return s.close(ctx, reservationID, closeExpire)
}

type closeMode int

const (
	closeRelease closeMode = iota
	closeExpire
)

func (s *ReservationService) close(ctx context.Context, reservationID uuid.UUID, mode closeMode) (*ReservationDTO, error) {
	var dto *ReservationDTO
	var pending []shared.DomainEvent

	err := s.scope.Execute(ctx, func(ctx context.Context, repos *TransactionalRepositories) error {
		reservation, err := repos.Reservations.FindByIDForUpdate(ctx, reservationID)
		if err != nil {
			return err
		}
		if reservation == nil {
			return shared.ErrNotFound
		}

		record, err := repos.StockRecords.FindByIDForUpdate(ctx, reservation.StockRecordID)
		if err != nil {
			return err
		}
		if record == nil {
			return shared.ErrNotFound
		}

		switch mode {
		case closeRelease:
			if err := reservation.Release(); err != nil {
				return err
			}
		case closeExpire:
			if err := reservation.Expire(); err != nil {
				return err
			}
		}
		if err := record.ReleaseReserved(reservation.Quantity); err != nil {
			return err
		}

		if err := ledger.CheckRecordInvariants(record); err != nil {
			return err
		}
		if err := repos.StockRecords.SaveWithLock(ctx, record); err != nil {
			return err
		}
		if err := repos.Reservations.SaveWithLock(ctx, reservation); err != nil {
			return err
		}
		if record.Level == ledger.LevelWarehouse {
			entry := ledger.NewInstrumentationEntry(ledger.MovementWarehouseRelease,
				reservation.ProductID, record.ID, reservation.Quantity.Neg(), record.OnHand, reservation.ID)
			entry.Reference = reservation.Reference
			if err := repos.Movements.Create(ctx, entry); err != nil {
				return err
			}
		}

		dto = toReservationDTO(reservation)
		pending = append(pending, ledger.NewReservationClosedEvent(reservation))
		pending = append(pending, record.GetDomainEvents()...)
		record.ClearDomainEvents()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, pending)
	s.logger.Info("reservation closed",
		zap.String("reservation_id", dto.ID.String()),
		zap.String("status", string(dto.Status)))
	return dto, nil
}

// Get returns a reservation by ID
func (s *ReservationService) Get(ctx context.Context, reservationID uuid.UUID) (*ReservationDTO, error) {
	var dto *ReservationDTO
	err := s.scope.Execute(ctx, func(ctx context.Context, repos *TransactionalRepositories) error {
		reservation, err := repos.Reservations.FindByID(ctx, reservationID)
		if err != nil {
			return err
		}
		if reservation == nil {
			return shared.ErrNotFound
		}
		dto = toReservationDTO(reservation)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

// List returns reservations matching the filter
func (s *ReservationService) List(ctx context.Context, filter shared.Filter) (shared.Paginated[*ReservationDTO], error) {
	var page shared.Paginated[*ReservationDTO]
	err := s.scope.Execute(ctx, func(ctx context.Context, repos *TransactionalRepositories) error {
		reservations, err := repos.Reservations.FindAll(ctx, filter)
		if err != nil {
			return err
		}
		dtos := make([]*ReservationDTO, 0, len(reservations.Items))
		for _, reservation := range reservations.Items {
			dtos = append(dtos, toReservationDTO(reservation))
		}
		page = shared.NewPaginated(dtos, reservations.Total, reservations.Page, reservations.PageSize)
		return nil
	})
	if err != nil {
		return shared.Paginated[*ReservationDTO]{}, err
	}
	return page, nil
}

func (s *ReservationService) publish(ctx context.Context, events []shared.DomainEvent) {
	if len(events) == 0 {
		return
	}
	if err := s.events.Publish(ctx, events...); err != nil {
		s.logger.Error("failed to publish ledger events", zap.Error(err))
	}
}
