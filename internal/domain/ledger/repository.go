package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vendfleet/backend/internal/domain/shared"
)

// StockRecordRepository provides access to stock records
type StockRecordRepository interface {
	// FindByID finds a record by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*StockRecord, error)

	// FindByKey finds a record by its (level, owner, product) key
	FindByKey(ctx context.Context, key RecordKey) (*StockRecord, error)

	// FindByKeyForUpdate finds a record by key holding a row lock for
	// the duration of the surrounding transaction
	FindByKeyForUpdate(ctx context.Context, key RecordKey) (*StockRecord, error)

	// FindByIDForUpdate finds a record by ID holding a row lock
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*StockRecord, error)

	// GetOrCreate returns the record for key, creating an empty one if
	// none exists yet
	GetOrCreate(ctx context.Context, key RecordKey) (*StockRecord, error)

	// Save persists a record
	Save(ctx context.Context, record *StockRecord) error

	// SaveWithLock persists a record with an optimistic version check.
	// A lost race surfaces as a concurrent modification error.
	SaveWithLock(ctx context.Context, record *StockRecord) error

	// FindAll returns records matching the filter
	FindAll(ctx context.Context, filter shared.Filter) (shared.Paginated[*StockRecord], error)

	// FindBelowThreshold returns records whose on-hand balance is under
	// their replenishment threshold
	FindBelowThreshold(ctx context.Context) ([]*StockRecord, error)
}

// MovementEntryRepository provides access to the append-only movement log
type MovementEntryRepository interface {
	// Create appends log rows. Rows are never updated or deleted.
	Create(ctx context.Context, entries ...*MovementEntry) error

	// FindByID finds a log row by ID
	FindByID(ctx context.Context, id uuid.UUID) (*MovementEntry, error)

	// FindByCorrelationID returns all rows of one movement
	FindByCorrelationID(ctx context.Context, correlationID uuid.UUID) ([]*MovementEntry, error)

	// FindByIdempotencyKey returns rows recorded under a client retry key
	FindByIdempotencyKey(ctx context.Context, key string) ([]*MovementEntry, error)

	// FindByRecordID returns rows touching a record, paginated
	FindByRecordID(ctx context.Context, recordID uuid.UUID, filter shared.Filter) (shared.Paginated[*MovementEntry], error)

	// FindAllByRecordID returns every row touching a record, ordered by
	// occurrence, for balance reconstruction
	FindAllByRecordID(ctx context.Context, recordID uuid.UUID) ([]*MovementEntry, error)

	// SumByRecordID folds the signed quantities of non-instrumentation
	// rows touching a record, as a database-side reconstruction
	SumByRecordID(ctx context.Context, recordID uuid.UUID) (decimal.Decimal, error)
}

// ReservationRepository provides access to reservations
type ReservationRepository interface {
	// FindByID finds a reservation by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Reservation, error)

	// FindByIDForUpdate finds a reservation by ID holding a row lock
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Reservation, error)

	// Create persists a new reservation
	Create(ctx context.Context, reservation *Reservation) error

	// Save persists a reservation
	Save(ctx context.Context, reservation *Reservation) error

	// SaveWithLock persists a reservation with an optimistic version check
	SaveWithLock(ctx context.Context, reservation *Reservation) error

	// FindActiveByRecordID returns the active reservations against a record
	FindActiveByRecordID(ctx context.Context, recordID uuid.UUID) ([]*Reservation, error)

	// FindDue returns active reservations whose expiry has passed
	FindDue(ctx context.Context, now time.Time, limit int) ([]*Reservation, error)

	// FindAll returns reservations matching the filter
	FindAll(ctx context.Context, filter shared.Filter) (shared.Paginated[*Reservation], error)
}
