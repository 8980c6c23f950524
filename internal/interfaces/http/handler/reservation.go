package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appledger "github.com/vendfleet/backend/internal/application/ledger"
)

// ReservationHandler exposes the reservation lifecycle over HTTP
type ReservationHandler struct {
	BaseHandler
	reservations      *appledger.ReservationService
	defaultExpiration time.Duration
}

// NewReservationHandler creates a new ReservationHandler. defaultExpiration
// is applied to reserve requests that name no expiry.
func NewReservationHandler(reservations *appledger.ReservationService, defaultExpiration time.Duration) *ReservationHandler {
	return &ReservationHandler{
		reservations:      reservations,
		defaultExpiration: defaultExpiration,
	}
}

// RegisterRoutes registers reservation routes
func (h *ReservationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group("/ledger/reservations")
	{
		group.POST("", h.Reserve)
		group.GET("", h.List)
		group.GET("/:id", h.Get)
		group.POST("/:id/consume", h.Consume)
		group.POST("/:id/release", h.Release)
	}
}

// Reserve earmarks stock until the reservation is consumed, released
// or expires
func (h *ReservationHandler) Reserve(c *gin.Context) {
	var cmd appledger.ReserveCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	if cmd.ExpiresAt.IsZero() {
		cmd.ExpiresAt = time.Now().Add(h.defaultExpiration)
	}

	reservation, err := h.reservations.Reserve(c.Request.Context(), cmd)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, reservation)
}

// Get returns a reservation by ID
func (h *ReservationHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid reservation ID format")
		return
	}

	reservation, err := h.reservations.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, reservation)
}

// List returns reservations matching the query filters
func (h *ReservationHandler) List(c *gin.Context) {
	filter, err := bindListFilter(c, "status", "product_id", "stock_record_id")
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	page, err := h.reservations.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, page.Items, page.Total, filter.Page, filter.PageSize)
}

// Consume fulfills an active reservation, moving the earmarked stock to
// the destination named in the body, or out of the ledger when the body
// is empty
func (h *ReservationHandler) Consume(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid reservation ID format")
		return
	}

	var cmd appledger.ConsumeCommand
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&cmd); err != nil {
			h.BadRequest(c, err.Error())
			return
		}
	}
	cmd.ReservationID = id

	result, err := h.reservations.Consume(c.Request.Context(), cmd)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// Release cancels an active reservation, returning the earmarked stock
// to the unreserved pool
func (h *ReservationHandler) Release(c *gin.Context) {
	h.transition(c, h.reservations.Release)
}

func (h *ReservationHandler) transition(c *gin.Context, fn func(ctx context.Context, id uuid.UUID) (*appledger.ReservationDTO, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid reservation ID format")
		return
	}

	reservation, err := fn(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, reservation)
}
