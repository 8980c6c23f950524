package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/vendfleet/backend/internal/domain/ledger"
	"github.com/vendfleet/backend/internal/domain/shared"
)

// GormMovementEntryRepository implements MovementEntryRepository using
// GORM. The movement log is append-only: the repository exposes no
// update or delete, and the database enforces immutability with a
// trigger.
type GormMovementEntryRepository struct {
	db *gorm.DB
}

// NewGormMovementEntryRepository creates a new GormMovementEntryRepository
func NewGormMovementEntryRepository(db *gorm.DB) *GormMovementEntryRepository {
	return &GormMovementEntryRepository{db: db}
}

// Create appends log rows
func (r *GormMovementEntryRepository) Create(ctx context.Context, entries ...*ledger.MovementEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(entries).Error
}

// FindByID finds a log row by ID
func (r *GormMovementEntryRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.MovementEntry, error) {
	var entry ledger.MovementEntry
	if err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// FindByCorrelationID returns all rows of one movement
func (r *GormMovementEntryRepository) FindByCorrelationID(ctx context.Context, correlationID uuid.UUID) ([]*ledger.MovementEntry, error) {
	var entries []*ledger.MovementEntry
	if err := r.db.WithContext(ctx).
		Where("correlation_id = ?", correlationID).
		Order("quantity ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// FindByIdempotencyKey returns rows recorded under a client retry key
func (r *GormMovementEntryRepository) FindByIdempotencyKey(ctx context.Context, key string) ([]*ledger.MovementEntry, error) {
	var entries []*ledger.MovementEntry
	if err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		Order("quantity ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// FindByRecordID returns rows touching a record, paginated
func (r *GormMovementEntryRepository) FindByRecordID(ctx context.Context, recordID uuid.UUID, filter shared.Filter) (shared.Paginated[*ledger.MovementEntry], error) {
	query := r.db.WithContext(ctx).Model(&ledger.MovementEntry{}).
		Where("source_record_id = ? OR destination_record_id = ?", recordID, recordID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return shared.Paginated[*ledger.MovementEntry]{}, err
	}

	var entries []*ledger.MovementEntry
	if err := applyPagination(query, filter, movementSortColumns).Find(&entries).Error; err != nil {
		return shared.Paginated[*ledger.MovementEntry]{}, err
	}
	return shared.NewPaginated(entries, total, filter.Page, filter.PageSize), nil
}

// FindAllByRecordID returns every row touching a record in order of
// occurrence, for balance reconstruction
func (r *GormMovementEntryRepository) FindAllByRecordID(ctx context.Context, recordID uuid.UUID) ([]*ledger.MovementEntry, error) {
	var entries []*ledger.MovementEntry
	if err := r.db.WithContext(ctx).
		Where("source_record_id = ? OR destination_record_id = ?", recordID, recordID).
		Order("occurred_at ASC, created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// SumByRecordID folds the signed quantities of non-instrumentation rows
// touching a record. Debits count against the source side, credits
// against the destination side.
func (r *GormMovementEntryRepository) SumByRecordID(ctx context.Context, recordID uuid.UUID) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	if err := r.db.WithContext(ctx).
		Model(&ledger.MovementEntry{}).
		Select("COALESCE(SUM(quantity), 0) as total").
		Where("type NOT IN ?", []ledger.MovementType{ledger.MovementWarehouseReservation, ledger.MovementWarehouseRelease}).
		Where("(source_record_id = ? AND quantity < 0) OR (destination_record_id = ? AND quantity > 0)", recordID, recordID).
		Scan(&result).Error; err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

var movementSortColumns = map[string]bool{
	"created_at":  true,
	"occurred_at": true,
	"quantity":    true,
}
