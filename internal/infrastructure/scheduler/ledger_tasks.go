package scheduler

import (
	"context"

	"go.uber.org/zap"

	appledger "github.com/vendfleet/backend/internal/application/ledger"
)

// ReservationSweepTask lapses reservations past their expiry
type ReservationSweepTask struct {
	service *appledger.ReservationExpirationService
}

// NewReservationSweepTask creates the expiration sweep task
func NewReservationSweepTask(service *appledger.ReservationExpirationService) *ReservationSweepTask {
	return &ReservationSweepTask{service: service}
}

// Name identifies the task in logs
func (t *ReservationSweepTask) Name() string {
	return "reservation_expiration_sweep"
}

// Run executes one sweep
func (t *ReservationSweepTask) Run(ctx context.Context) error {
	_, err := t.service.ExpireDue(ctx)
	return err
}

// ReconciliationTask folds the movement log of every record and compares
// it against the stored balance
type ReconciliationTask struct {
	service *appledger.ReconciliationService
	logger  *zap.Logger
}

// NewReconciliationTask creates the drift check task
func NewReconciliationTask(service *appledger.ReconciliationService, logger *zap.Logger) *ReconciliationTask {
	return &ReconciliationTask{service: service, logger: logger}
}

// Name identifies the task in logs
func (t *ReconciliationTask) Name() string {
	return "balance_reconciliation"
}

// Run executes one full drift check
func (t *ReconciliationTask) Run(ctx context.Context) error {
	reports, err := t.service.CheckAll(ctx)
	if err != nil {
		return err
	}
	if len(reports) > 0 {
		t.logger.Warn("reconciliation found drifted records",
			zap.Int("drifted", len(reports)),
		)
	}
	return nil
}
