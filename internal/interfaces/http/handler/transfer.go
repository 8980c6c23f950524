package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appledger "github.com/vendfleet/backend/internal/application/ledger"
)

// TransferHandler exposes the transfer engine over HTTP
type TransferHandler struct {
	BaseHandler
	transfers *appledger.TransferService
	records   *appledger.StockRecordService
}

// NewTransferHandler creates a new TransferHandler
func NewTransferHandler(transfers *appledger.TransferService, records *appledger.StockRecordService) *TransferHandler {
	return &TransferHandler{
		transfers: transfers,
		records:   records,
	}
}

// RegisterRoutes registers transfer routes
func (h *TransferHandler) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group("/ledger")
	{
		group.POST("/transfers", h.Transfer)
		group.GET("/movements/:correlation_id", h.GetMovement)
	}
}

// Transfer executes a stock movement between two record endpoints.
// Clients may supply an idempotency key; a retried request with the
// same key replays the original result instead of moving stock twice.
func (h *TransferHandler) Transfer(c *gin.Context) {
	var cmd appledger.TransferCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.transfers.Transfer(c.Request.Context(), cmd)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	if result.Replayed {
		h.Success(c, result)
		return
	}
	h.Created(c, result)
}

// GetMovement returns the log rows recorded under one correlation ID
func (h *TransferHandler) GetMovement(c *gin.Context) {
	correlationID, err := uuid.Parse(c.Param("correlation_id"))
	if err != nil {
		h.BadRequest(c, "Invalid correlation ID format")
		return
	}

	entries, err := h.records.GetMovement(c.Request.Context(), correlationID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, entries)
}
