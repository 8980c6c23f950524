package persistence

import (
	"context"

	"gorm.io/gorm"

	appledger "github.com/vendfleet/backend/internal/application/ledger"
)

// GormTransactionScope implements the transaction scope over a GORM
// database. Repositories handed to the function are bound to the same
// transaction, so the balance change, the reservation transition and
// the log rows commit or roll back as one unit.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a transaction scope over the database
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs fn inside a database transaction
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(ctx context.Context, repos *appledger.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := &appledger.TransactionalRepositories{
			StockRecords: NewGormStockRecordRepository(tx),
			Movements:    NewGormMovementEntryRepository(tx),
			Reservations: NewGormReservationRepository(tx),
		}
		return fn(ctx, repos)
	})
}
