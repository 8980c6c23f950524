package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vendfleet/backend/internal/domain/ledger"
	"github.com/vendfleet/backend/internal/domain/shared"
)

// ReconciliationService audits stored balances against the append-only
// movement log. The log is the source of truth; a divergence means a
// balance row was corrupted and is reported as drift.
type ReconciliationService struct {
	scope  TransactionScope
	events shared.EventPublisher
	logger *zap.Logger
}

// NewReconciliationService creates a reconciliation service
func NewReconciliationService(scope TransactionScope, events shared.EventPublisher, logger *zap.Logger) *ReconciliationService {
	return &ReconciliationService{
		scope:  scope,
		events: events,
		logger: logger,
	}
}

// ReconstructBalance folds the movement log into the on-hand balance of
// one record, ignoring the stored balance entirely
func (s *ReconciliationService) ReconstructBalance(ctx context.Context, recordID uuid.UUID) (decimal.Decimal, error) {
	return s.ReconstructBalanceAsOf(ctx, recordID, time.Time{})
}

// ReconstructBalanceAsOf replays the log up to asOf, yielding the
// balance the record held at that point. A zero asOf replays everything.
func (s *ReconciliationService) ReconstructBalanceAsOf(ctx context.Context, recordID uuid.UUID, asOf time.Time) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.scope.Execute(ctx, func(ctx context.Context, repos *TransactionalRepositories) error {
		entries, err := repos.Movements.FindAllByRecordID(ctx, recordID)
		if err != nil {
			return err
		}
		balance = ledger.ReconstructBalanceAsOf(recordID, entries, asOf)
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// CheckDrift compares one record's stored balance against the log. A
// difference within tolerance is not reported as drift; the routine
// sweep uses zero tolerance.
func (s *ReconciliationService) CheckDrift(ctx context.Context, recordID uuid.UUID, tolerance decimal.Decimal) (*DriftReport, error) {
	if tolerance.IsNegative() {
		return nil, ledger.NewInvalidQuantityError(tolerance)
	}
	var report *DriftReport
	err := s.scope.Execute(ctx, func(ctx context.Context, repos *TransactionalRepositories) error {
		record, err := repos.StockRecords.FindByID(ctx, recordID)
		if err != nil {
			return err
		}
		if record == nil {
			return shared.ErrNotFound
		}
		reconstructed, err := repos.Movements.SumByRecordID(ctx, recordID)
		if err != nil {
			return err
		}
		report = buildDriftReport(record, reconstructed, tolerance)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.reportDrift(ctx, report)
	return report, nil
}

// CheckAll sweeps every stock record and returns the records whose
// stored balance diverges from the log
func (s *ReconciliationService) CheckAll(ctx context.Context) ([]*DriftReport, error) {
	var drifted []*DriftReport
	filter := shared.DefaultFilter()
	filter.PageSize = 200

	for {
		var page shared.Paginated[*ledger.StockRecord]
		err := s.scope.Execute(ctx, func(ctx context.Context, repos *TransactionalRepositories) error {
			records, err := repos.StockRecords.FindAll(ctx, filter)
			if err != nil {
				return err
			}
			for _, record := range records.Items {
				reconstructed, err := repos.Movements.SumByRecordID(ctx, record.ID)
				if err != nil {
					return err
				}
				if report := buildDriftReport(record, reconstructed, decimal.Zero); report.HasDrift {
					drifted = append(drifted, report)
				}
			}
			page = records
			return nil
		})
		if err != nil {
			return nil, err
		}
		if filter.Page >= page.TotalPages {
			break
		}
		filter.Page++
	}

	for _, report := range drifted {
		s.reportDrift(ctx, report)
	}
	return drifted, nil
}

func buildDriftReport(record *ledger.StockRecord, reconstructed, tolerance decimal.Decimal) *DriftReport {
	drift := record.OnHand.Sub(reconstructed)
	return &DriftReport{
		StockRecordID: record.ID,
		Stored:        record.OnHand,
		Reconstructed: reconstructed,
		Drift:         drift,
		Tolerance:     tolerance,
		HasDrift:      drift.Abs().GreaterThan(tolerance),
	}
}

func (s *ReconciliationService) reportDrift(ctx context.Context, report *DriftReport) {
	if !report.HasDrift {
		return
	}
	s.logger.Warn("balance drift detected",
		zap.String("stock_record_id", report.StockRecordID.String()),
		zap.String("stored", report.Stored.String()),
		zap.String("reconstructed", report.Reconstructed.String()))
	event := ledger.NewBalanceDriftDetectedEvent(report.StockRecordID, report.Stored, report.Reconstructed)
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish drift event", zap.Error(err))
	}
}
