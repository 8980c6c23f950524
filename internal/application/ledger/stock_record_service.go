package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vendfleet/backend/internal/domain/ledger"
	"github.com/vendfleet/backend/internal/domain/shared"
)

// StockRecordService answers read queries over records and the movement
// log, and maintains per-record thresholds
type StockRecordService struct {
	scope  TransactionScope
	logger *zap.Logger
}

// NewStockRecordService creates a stock record service
func NewStockRecordService(scope TransactionScope, logger *zap.Logger) *StockRecordService {
	return &StockRecordService{
		scope:  scope,
		logger: logger,
	}
}

// Get returns the record for a (level, owner, product) key
func (s *StockRecordService) Get(ctx context.Context, key ledger.RecordKey) (*StockRecordDTO, error) {
	var dto *StockRecordDTO
	err := s.scope.Execute(ctx, func(ctx context.Context, repos *TransactionalRepositories) error {
		record, err := repos.StockRecords.FindByKey(ctx, key)
		if err != nil {
			return err
		}
		if record == nil {
			return ledger.NewUnknownStockRecordError(key)
		}
		dto = toStockRecordDTO(record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

// List returns records matching the filter
func (s *StockRecordService) List(ctx context.Context, filter shared.Filter) (shared.Paginated[*StockRecordDTO], error) {
	var page shared.Paginated[*StockRecordDTO]
	err := s.scope.Execute(ctx, func(ctx context.Context, repos *TransactionalRepositories) error {
		records, err := repos.StockRecords.FindAll(ctx, filter)
		if err != nil {
			return err
		}
		dtos := make([]*StockRecordDTO, 0, len(records.Items))
		for _, record := range records.Items {
			dtos = append(dtos, toStockRecordDTO(record))
		}
		page = shared.NewPaginated(dtos, records.Total, records.Page, records.PageSize)
		return nil
	})
	if err != nil {
		return shared.Paginated[*StockRecordDTO]{}, err
	}
	return page, nil
}

// ListBelowThreshold returns records in need of replenishment
func (s *StockRecordService) ListBelowThreshold(ctx context.Context) ([]*StockRecordDTO, error) {
	var dtos []*StockRecordDTO
	err := s.scope.Execute(ctx, func(ctx context.Context, repos *TransactionalRepositories) error {
		records, err := repos.StockRecords.FindBelowThreshold(ctx)
		if err != nil {
			return err
		}
		dtos = make([]*StockRecordDTO, 0, len(records))
		for _, record := range records {
			dtos = append(dtos, toStockRecordDTO(record))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dtos, nil
}

// SetThresholds updates the replenishment threshold and max capacity of
// a record, creating the record if it does not exist yet
func (s *StockRecordService) SetThresholds(ctx context.Context, key ledger.RecordKey, minThreshold decimal.Decimal, maxCapacity *decimal.Decimal) (*StockRecordDTO, error) {
	var dto *StockRecordDTO
	err := s.scope.Execute(ctx, func(ctx context.Context, repos *TransactionalRepositories) error {
		if _, err := repos.StockRecords.GetOrCreate(ctx, key); err != nil {
			return err
		}
		record, err := repos.StockRecords.FindByKeyForUpdate(ctx, key)
		if err != nil {
			return err
		}
		if record == nil {
			return ledger.NewUnknownStockRecordError(key)
		}
		if err := record.SetThresholds(minThreshold, maxCapacity); err != nil {
			return err
		}
		if err := ledger.CheckRecordInvariants(record); err != nil {
			return err
		}
		if err := repos.StockRecords.SaveWithLock(ctx, record); err != nil {
			return err
		}
		dto = toStockRecordDTO(record)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("stock record thresholds updated",
		zap.String("record_id", dto.ID.String()),
		zap.String("min_threshold", dto.MinThreshold.String()))
	return dto, nil
}

// ListMovements returns the log rows touching a record, paginated
func (s *StockRecordService) ListMovements(ctx context.Context, recordID uuid.UUID, filter shared.Filter) (shared.Paginated[*MovementEntryDTO], error) {
	var page shared.Paginated[*MovementEntryDTO]
	err := s.scope.Execute(ctx, func(ctx context.Context, repos *TransactionalRepositories) error {
		entries, err := repos.Movements.FindByRecordID(ctx, recordID, filter)
		if err != nil {
			return err
		}
		dtos := make([]*MovementEntryDTO, 0, len(entries.Items))
		for _, entry := range entries.Items {
			dtos = append(dtos, toMovementEntryDTO(entry))
		}
		page = shared.NewPaginated(dtos, entries.Total, entries.Page, entries.PageSize)
		return nil
	})
	if err != nil {
		return shared.Paginated[*MovementEntryDTO]{}, err
	}
	return page, nil
}

// GetMovement returns the rows of one movement by correlation ID
func (s *StockRecordService) GetMovement(ctx context.Context, correlationID uuid.UUID) ([]*MovementEntryDTO, error) {
	var dtos []*MovementEntryDTO
	err := s.scope.Execute(ctx, func(ctx context.Context, repos *TransactionalRepositories) error {
		entries, err := repos.Movements.FindByCorrelationID(ctx, correlationID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return shared.ErrNotFound
		}
		dtos = make([]*MovementEntryDTO, 0, len(entries))
		for _, entry := range entries {
			dtos = append(dtos, toMovementEntryDTO(entry))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dtos, nil
}
