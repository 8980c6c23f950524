package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	appledger "github.com/vendfleet/backend/internal/application/ledger"
	"github.com/vendfleet/backend/internal/domain/ledger"
)

// StockRecordHandler exposes stock record queries, threshold management
// and the reconciliation checks over HTTP
type StockRecordHandler struct {
	BaseHandler
	records        *appledger.StockRecordService
	reconciliation *appledger.ReconciliationService
}

// NewStockRecordHandler creates a new StockRecordHandler
func NewStockRecordHandler(records *appledger.StockRecordService, reconciliation *appledger.ReconciliationService) *StockRecordHandler {
	return &StockRecordHandler{
		records:        records,
		reconciliation: reconciliation,
	}
}

// RegisterRoutes registers stock record routes
func (h *StockRecordHandler) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group("/ledger/records")
	{
		group.GET("", h.List)
		group.GET("/lookup", h.Lookup)
		group.GET("/below-threshold", h.ListBelowThreshold)
		group.PUT("/thresholds", h.SetThresholds)
		group.GET("/:id/movements", h.ListMovements)
		group.GET("/:id/balance", h.ReconstructBalance)
		group.GET("/:id/reconcile", h.CheckDrift)
	}
	rg.POST("/ledger/reconcile", h.CheckAll)
}

// SetThresholdsRequest sets the replenishment threshold and capacity
// bound for one record key
type SetThresholdsRequest struct {
	Level        ledger.Level     `json:"level" binding:"required,stock_level"`
	OwnerRef     uuid.UUID        `json:"owner_ref" binding:"required"`
	ProductID    uuid.UUID        `json:"product_id" binding:"required"`
	MinThreshold decimal.Decimal  `json:"min_threshold"`
	MaxCapacity  *decimal.Decimal `json:"max_capacity"`
}

// List returns stock records matching the query filters
func (h *StockRecordHandler) List(c *gin.Context) {
	filter, err := bindListFilter(c, "level", "owner_ref", "product_id")
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	page, err := h.records.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, page.Items, page.Total, filter.Page, filter.PageSize)
}

// Lookup returns the record for one (level, owner, product) key
func (h *StockRecordHandler) Lookup(c *gin.Context) {
	key, ok := h.bindRecordKey(c)
	if !ok {
		return
	}

	record, err := h.records.Get(c.Request.Context(), key)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, record)
}

// ListBelowThreshold returns records under their replenishment threshold
func (h *StockRecordHandler) ListBelowThreshold(c *gin.Context) {
	records, err := h.records.ListBelowThreshold(c.Request.Context())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, records)
}

// SetThresholds updates a record's replenishment threshold and capacity
// bound, creating the record if it does not exist yet
func (h *StockRecordHandler) SetThresholds(c *gin.Context) {
	var req SetThresholdsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	key := ledger.RecordKey{Level: req.Level, OwnerRef: req.OwnerRef, ProductID: req.ProductID}
	record, err := h.records.SetThresholds(c.Request.Context(), key, req.MinThreshold, req.MaxCapacity)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, record)
}

// ListMovements returns the log rows touching one record, paginated
func (h *StockRecordHandler) ListMovements(c *gin.Context) {
	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid stock record ID format")
		return
	}

	filter, err := bindListFilter(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	page, err := h.records.ListMovements(c.Request.Context(), recordID, filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, page.Items, page.Total, filter.Page, filter.PageSize)
}

// ReconstructBalance replays the movement log of one record, optionally
// up to an as_of timestamp (RFC 3339), and returns the replayed balance
func (h *StockRecordHandler) ReconstructBalance(c *gin.Context) {
	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid stock record ID format")
		return
	}

	var asOf time.Time
	if raw := c.Query("as_of"); raw != "" {
		asOf, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			h.BadRequest(c, "Invalid as_of timestamp, expected RFC 3339")
			return
		}
	}

	balance, err := h.reconciliation.ReconstructBalanceAsOf(c.Request.Context(), recordID, asOf)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, gin.H{
		"stock_record_id": recordID,
		"balance":         balance,
		"as_of":           c.Query("as_of"),
	})
}

// CheckDrift folds the movement log of one record and compares it
// against the stored balance. An optional tolerance query parameter
// sets the difference below which no drift is reported.
func (h *StockRecordHandler) CheckDrift(c *gin.Context) {
	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid stock record ID format")
		return
	}

	tolerance := decimal.Zero
	if raw := c.Query("tolerance"); raw != "" {
		tolerance, err = decimal.NewFromString(raw)
		if err != nil {
			h.BadRequest(c, "Invalid tolerance, expected a decimal")
			return
		}
	}

	report, err := h.reconciliation.CheckDrift(c.Request.Context(), recordID, tolerance)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, report)
}

// CheckAll runs the drift check across every record and returns the
// records whose stored balance disagrees with the log
func (h *StockRecordHandler) CheckAll(c *gin.Context) {
	reports, err := h.reconciliation.CheckAll(c.Request.Context())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, reports)
}

func (h *StockRecordHandler) bindRecordKey(c *gin.Context) (ledger.RecordKey, bool) {
	level := ledger.Level(c.Query("level"))
	if !level.IsValid() {
		h.BadRequest(c, "Invalid or missing level")
		return ledger.RecordKey{}, false
	}

	ownerRef, err := uuid.Parse(c.Query("owner_ref"))
	if err != nil {
		h.BadRequest(c, "Invalid owner_ref format")
		return ledger.RecordKey{}, false
	}

	productID, err := uuid.Parse(c.Query("product_id"))
	if err != nil {
		h.BadRequest(c, "Invalid product_id format")
		return ledger.RecordKey{}, false
	}

	return ledger.RecordKey{Level: level, OwnerRef: ownerRef, ProductID: productID}, true
}
