package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	appledger "github.com/vendfleet/backend/internal/application/ledger"
)

// SystemHandler exposes service-level endpoints
type SystemHandler struct {
	BaseHandler
	expiration *appledger.ReservationExpirationService
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(expiration *appledger.ReservationExpirationService) *SystemHandler {
	return &SystemHandler{expiration: expiration}
}

// RegisterRoutes registers system routes
func (h *SystemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group("/system")
	{
		group.GET("/ping", h.Ping)
		group.POST("/reservations/sweep", h.SweepReservations)
	}
}

// Ping reports service liveness
func (h *SystemHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
		"time":    time.Now().Format(time.RFC3339),
	})
}

// SweepReservations triggers an expiration sweep outside the scheduled
// interval. Useful for operational runbooks and tests.
func (h *SystemHandler) SweepReservations(c *gin.Context) {
	stats, err := h.expiration.ExpireDue(c.Request.Context())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, stats)
}
