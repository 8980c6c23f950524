package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vendfleet/backend/internal/domain/ledger"
	"github.com/vendfleet/backend/internal/domain/shared"
)

// GormReservationRepository implements ReservationRepository using GORM
type GormReservationRepository struct {
	db *gorm.DB
}

// NewGormReservationRepository creates a new GormReservationRepository
func NewGormReservationRepository(db *gorm.DB) *GormReservationRepository {
	return &GormReservationRepository{db: db}
}

// FindByID finds a reservation by ID
func (r *GormReservationRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Reservation, error) {
	var reservation ledger.Reservation
	if err := r.db.WithContext(ctx).First(&reservation, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reservation, nil
}

// FindByIDForUpdate finds a reservation by ID holding a row lock
func (r *GormReservationRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*ledger.Reservation, error) {
	var reservation ledger.Reservation
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&reservation, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reservation, nil
}

// Create persists a new reservation
func (r *GormReservationRepository) Create(ctx context.Context, reservation *ledger.Reservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

// Save persists a reservation
func (r *GormReservationRepository) Save(ctx context.Context, reservation *ledger.Reservation) error {
	return r.db.WithContext(ctx).Save(reservation).Error
}

// SaveWithLock saves with an optimistic version check
func (r *GormReservationRepository) SaveWithLock(ctx context.Context, reservation *ledger.Reservation) error {
	result := r.db.WithContext(ctx).
		Model(reservation).
		Where("id = ? AND version = ?", reservation.ID, reservation.Version).
		Updates(map[string]interface{}{
			"status":    reservation.Status,
			"closed_at": reservation.ClosedAt,
			"version":   reservation.Version + 1,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	reservation.IncrementVersion()
	return nil
}

// FindActiveByRecordID returns the active reservations against a record
func (r *GormReservationRepository) FindActiveByRecordID(ctx context.Context, recordID uuid.UUID) ([]*ledger.Reservation, error) {
	var reservations []*ledger.Reservation
	if err := r.db.WithContext(ctx).
		Where("stock_record_id = ? AND status = ?", recordID, ledger.ReservationActive).
		Find(&reservations).Error; err != nil {
		return nil, err
	}
	return reservations, nil
}

// FindDue returns active reservations whose expiry has passed
func (r *GormReservationRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*ledger.Reservation, error) {
	var reservations []*ledger.Reservation
	query := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", ledger.ReservationActive, now).
		Order("expires_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&reservations).Error; err != nil {
		return nil, err
	}
	return reservations, nil
}

// FindAll returns reservations matching the filter
func (r *GormReservationRepository) FindAll(ctx context.Context, filter shared.Filter) (shared.Paginated[*ledger.Reservation], error) {
	query := r.db.WithContext(ctx).Model(&ledger.Reservation{})
	if status, ok := filter.Filters["status"]; ok {
		query = query.Where("status = ?", status)
	}
	if productID, ok := filter.Filters["product_id"]; ok {
		query = query.Where("product_id = ?", productID)
	}
	if recordID, ok := filter.Filters["stock_record_id"]; ok {
		query = query.Where("stock_record_id = ?", recordID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return shared.Paginated[*ledger.Reservation]{}, err
	}

	var reservations []*ledger.Reservation
	if err := applyPagination(query, filter, reservationSortColumns).Find(&reservations).Error; err != nil {
		return shared.Paginated[*ledger.Reservation]{}, err
	}
	return shared.NewPaginated(reservations, total, filter.Page, filter.PageSize), nil
}

var reservationSortColumns = map[string]bool{
	"created_at": true,
	"expires_at": true,
	"status":     true,
}
