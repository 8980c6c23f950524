package ledger

import (
	"context"

	"go.uber.org/zap"

	"github.com/vendfleet/backend/internal/domain/ledger"
	"github.com/vendfleet/backend/internal/domain/shared"
)

// LowStockAlertHandler raises an operational alert when a record drops
// below its replenishment threshold
type LowStockAlertHandler struct {
	logger *zap.Logger
}

// NewLowStockAlertHandler creates a low stock alert handler
func NewLowStockAlertHandler(logger *zap.Logger) *LowStockAlertHandler {
	return &LowStockAlertHandler{logger: logger}
}

// EventTypes returns the subscribed event types
func (h *LowStockAlertHandler) EventTypes() []string {
	return []string{ledger.EventStockBelowThreshold}
}

// Handle logs the replenishment alert
func (h *LowStockAlertHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	alert, ok := event.(*ledger.StockBelowThresholdEvent)
	if !ok {
		return nil
	}
	h.logger.Warn("stock below replenishment threshold",
		zap.String("stock_record_id", alert.StockRecordID.String()),
		zap.String("level", string(alert.Level)),
		zap.String("owner_ref", alert.OwnerRef.String()),
		zap.String("product_id", alert.ProductID.String()),
		zap.String("on_hand", alert.OnHand.String()),
		zap.String("min_threshold", alert.MinThreshold.String()))
	return nil
}

// DriftAlertHandler raises an operational alert when reconciliation
// finds a stored balance diverging from the movement log
type DriftAlertHandler struct {
	logger *zap.Logger
}

// NewDriftAlertHandler creates a drift alert handler
func NewDriftAlertHandler(logger *zap.Logger) *DriftAlertHandler {
	return &DriftAlertHandler{logger: logger}
}

// EventTypes returns the subscribed event types
func (h *DriftAlertHandler) EventTypes() []string {
	return []string{ledger.EventBalanceDriftDetected}
}

// Handle logs the drift alert
func (h *DriftAlertHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	alert, ok := event.(*ledger.BalanceDriftDetectedEvent)
	if !ok {
		return nil
	}
	h.logger.Error("stored balance diverges from movement log",
		zap.String("stock_record_id", alert.StockRecordID.String()),
		zap.String("stored", alert.Stored.String()),
		zap.String("reconstructed", alert.Reconstructed.String()))
	return nil
}
