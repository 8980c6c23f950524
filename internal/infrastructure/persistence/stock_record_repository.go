package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vendfleet/backend/internal/domain/ledger"
	"github.com/vendfleet/backend/internal/domain/shared"
)

// GormStockRecordRepository implements StockRecordRepository using GORM
type GormStockRecordRepository struct {
	db *gorm.DB
}

// NewGormStockRecordRepository creates a new GormStockRecordRepository
func NewGormStockRecordRepository(db *gorm.DB) *GormStockRecordRepository {
	return &GormStockRecordRepository{db: db}
}

// FindByID finds a stock record by its ID
func (r *GormStockRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.StockRecord, error) {
	var record ledger.StockRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// FindByKey finds a stock record by its (level, owner, product) key
func (r *GormStockRecordRepository) FindByKey(ctx context.Context, key ledger.RecordKey) (*ledger.StockRecord, error) {
	var record ledger.StockRecord
	if err := r.db.WithContext(ctx).
		Where("level = ? AND owner_ref = ? AND product_id = ?", key.Level, key.OwnerRef, key.ProductID).
		First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// FindByKeyForUpdate finds a stock record by key holding a row lock
func (r *GormStockRecordRepository) FindByKeyForUpdate(ctx context.Context, key ledger.RecordKey) (*ledger.StockRecord, error) {
	var record ledger.StockRecord
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("level = ? AND owner_ref = ? AND product_id = ?", key.Level, key.OwnerRef, key.ProductID).
		First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// FindByIDForUpdate finds a stock record by ID holding a row lock
func (r *GormStockRecordRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*ledger.StockRecord, error) {
	var record ledger.StockRecord
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// GetOrCreate returns the record for key, creating an empty one if none
// exists yet. A concurrent insert of the same key is absorbed by the
// conflict clause on the unique key index.
func (r *GormStockRecordRepository) GetOrCreate(ctx context.Context, key ledger.RecordKey) (*ledger.StockRecord, error) {
	record, err := ledger.NewStockRecord(key.Level, key.OwnerRef, key.ProductID)
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "level"}, {Name: "owner_ref"}, {Name: "product_id"}},
			DoNothing: true,
		}).
		Create(record).Error; err != nil {
		return nil, err
	}
	return r.FindByKey(ctx, key)
}

// Save creates or updates a stock record
func (r *GormStockRecordRepository) Save(ctx context.Context, record *ledger.StockRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}

// SaveWithLock saves with an optimistic version check. The UPDATE only
// matches when nobody has bumped the version since the record was read;
// zero rows affected means the race was lost.
func (r *GormStockRecordRepository) SaveWithLock(ctx context.Context, record *ledger.StockRecord) error {
	result := r.db.WithContext(ctx).
		Model(record).
		Where("id = ? AND version = ?", record.ID, record.Version).
		Updates(map[string]interface{}{
			"on_hand":       record.OnHand,
			"reserved":      record.Reserved,
			"min_threshold": record.MinThreshold,
			"max_capacity":  record.MaxCapacity,
			"version":       record.Version + 1,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ledger.NewConcurrentModificationError(record.Key())
	}
	record.IncrementVersion()
	return nil
}

// FindAll returns stock records matching the filter
func (r *GormStockRecordRepository) FindAll(ctx context.Context, filter shared.Filter) (shared.Paginated[*ledger.StockRecord], error) {
	query := r.db.WithContext(ctx).Model(&ledger.StockRecord{})
	query = applyKeyFilters(query, filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return shared.Paginated[*ledger.StockRecord]{}, err
	}

	var records []*ledger.StockRecord
	if err := applyPagination(query, filter, stockRecordSortColumns).Find(&records).Error; err != nil {
		return shared.Paginated[*ledger.StockRecord]{}, err
	}
	return shared.NewPaginated(records, total, filter.Page, filter.PageSize), nil
}

// FindBelowThreshold returns records under their replenishment threshold
func (r *GormStockRecordRepository) FindBelowThreshold(ctx context.Context) ([]*ledger.StockRecord, error) {
	var records []*ledger.StockRecord
	if err := r.db.WithContext(ctx).
		Where("min_threshold > 0 AND on_hand < min_threshold").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

var stockRecordSortColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"level":      true,
	"on_hand":    true,
}

func applyKeyFilters(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if level, ok := filter.Filters["level"]; ok {
		query = query.Where("level = ?", level)
	}
	if ownerRef, ok := filter.Filters["owner_ref"]; ok {
		query = query.Where("owner_ref = ?", ownerRef)
	}
	if productID, ok := filter.Filters["product_id"]; ok {
		query = query.Where("product_id = ?", productID)
	}
	return query
}

// applyPagination applies ordering and paging. Order columns are
// whitelisted to keep user input out of the ORDER BY clause.
func applyPagination(query *gorm.DB, filter shared.Filter, sortColumns map[string]bool) *gorm.DB {
	orderBy := filter.OrderBy
	if !sortColumns[orderBy] {
		orderBy = "created_at"
	}
	direction := "DESC"
	if filter.OrderDir == "asc" {
		direction = "ASC"
	}
	query = query.Order(orderBy + " " + direction)

	if filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}
	return query
}
