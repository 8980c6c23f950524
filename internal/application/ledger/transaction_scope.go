package ledger

import (
	"context"

	"github.com/vendfleet/backend/internal/domain/ledger"
)

// TransactionScope executes a function within a database transaction.
// Repositories handed to the function are bound to that transaction, so
// every read and write inside fn commits or rolls back together.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(ctx context.Context, repos *TransactionalRepositories) error) error
}

// TransactionalRepositories bundles the ledger repositories bound to
// one transaction
type TransactionalRepositories struct {
	StockRecords ledger.StockRecordRepository
	Movements    ledger.MovementEntryRepository
	Reservations ledger.ReservationRepository
}

// NoOpTransactionScope runs the function without transaction semantics.
// Used in tests with in-memory repositories.
type NoOpTransactionScope struct {
	Repos *TransactionalRepositories
}

// Execute runs fn against the configured repositories
func (s *NoOpTransactionScope) Execute(ctx context.Context, fn func(ctx context.Context, repos *TransactionalRepositories) error) error {
	return fn(ctx, s.Repos)
}
