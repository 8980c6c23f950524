package ledger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/vendfleet/backend/internal/domain/ledger"
	"github.com/vendfleet/backend/internal/domain/shared"
)

// ExpiredReservationStats summarizes one expiration sweep
type ExpiredReservationStats struct {
	Scanned   int `json:"scanned"`
	Expired   int `json:"expired"`
	Conflicts int `json:"conflicts"`
	Failures  int `json:"failures"`
}

// ReservationExpirationService sweeps reservations past their expiry
// and lapses them, returning the earmarked stock to the unreserved
// pool. Each reservation is expired in its own transaction, so one
// failure never blocks the rest of the batch.
type ReservationExpirationService struct {
	reservations *ReservationService
	repo         ledger.ReservationRepository
	batchSize    int
	logger       *zap.Logger
}

// NewReservationExpirationService creates an expiration sweep service
func NewReservationExpirationService(reservations *ReservationService, repo ledger.ReservationRepository, batchSize int, logger *zap.Logger) *ReservationExpirationService {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ReservationExpirationService{
		reservations: reservations,
		repo:         repo,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// ExpireDue lapses all active reservations whose expiry has passed.
// Lost races (a reservation consumed or released between the scan and
// the expiry) count as conflicts, not failures.
func (s *ReservationExpirationService) ExpireDue(ctx context.Context) (*ExpiredReservationStats, error) {
	due, err := s.repo.FindDue(ctx, time.Now(), s.batchSize)
	if err != nil {
		return nil, err
	}

	stats := &ExpiredReservationStats{Scanned: len(due)}
	for _, reservation := range due {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		_, err := s.reservations.Expire(ctx, reservation.ID)
		switch {
		case err == nil:
			stats.Expired++
		case isSweepConflict(err):
			stats.Conflicts++
		default:
			stats.Failures++
			s.logger.Error("failed to expire reservation",
				zap.String("reservation_id", reservation.ID.String()),
				zap.Error(err))
		}
	}

	if stats.Scanned > 0 {
		s.logger.Info("reservation expiration sweep finished",
			zap.Int("scanned", stats.Scanned),
			zap.Int("expired", stats.Expired),
			zap.Int("conflicts", stats.Conflicts),
			zap.Int("failures", stats.Failures))
	}
	return stats, nil
}

// isSweepConflict recognizes errors caused by another writer winning
// the race for the same reservation
func isSweepConflict(err error) bool {
	if ledger.IsRetryable(err) {
		return true
	}
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == ledger.ErrCodeInvalidState
	}
	return false
}
