package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/service"
)

// TicketService is the reservation surface behind the ticket endpoints.
type TicketService interface {
	Reserve(ctx context.Context, actor service.Actor, cmd service.ReserveCommand) (*service.Reservation, error)
	Cancel(ctx context.Context, actor service.Actor, ticketID string) (*model.Ticket, error)
	Use(ctx context.Context, actor service.Actor, ticketID string) (*model.Ticket, error)
	ValidateProof(ctx context.Context, actor service.Actor, token string) (*model.Ticket, error)
	Proof(ctx context.Context, actor service.Actor, ticketID string) (service.Proof, error)
}

// UserTicketLister lists a buyer's tickets.
type UserTicketLister interface {
	ListByUser(ctx context.Context, userID uint64) ([]repository.TicketDetail, error)
}

// HeaderIdempotencyKey deduplicates retried reservation requests.
const HeaderIdempotencyKey = "Idempotency-Key"

type TicketHandler struct {
	Tickets TicketService
	Lister  UserTicketLister
	Log     *zap.Logger
	// Timeout bounds each reservation; a request that runs out maps to 503.
	Timeout time.Duration
}

func NewTicketHandler(tickets TicketService, lister UserTicketLister, timeout time.Duration, log *zap.Logger) *TicketHandler {
	return &TicketHandler{Tickets: tickets, Lister: lister, Timeout: timeout, Log: log.Named("tickets")}
}

type bookReq struct {
	EventID    uint64 `json:"event_id" validate:"required"`
	SeatNumber int    `json:"seat_number" validate:"required,min=1"`
	BuyerID    uint64 `json:"buyer_id"`
}

type checkoutReq struct {
	bookReq
	AmountCents int64  `json:"amount_cents" validate:"gte=0"`
	CardLast4   string `json:"card_last4" validate:"required,len=4,numeric"`
}

type proofReq struct {
	Token string `json:"token" validate:"required"`
}

// Book: POST /v1/tickets/book reserves a seat without payment.
func (h *TicketHandler) Book(c echo.Context) error {
	var req bookReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	return h.reserve(c, req, nil)
}

// Checkout: POST /v1/tickets/checkout reserves a seat against a payment
// confirmation whose amount must equal the event price.
func (h *TicketHandler) Checkout(c echo.Context) error {
	var req checkoutReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	return h.reserve(c, req.bookReq, &service.PaymentConfirmation{
		AmountCents: req.AmountCents,
		CardLast4:   req.CardLast4,
	})
}

func (h *TicketHandler) reserve(c echo.Context, req bookReq, pay *service.PaymentConfirmation) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	key := strings.TrimSpace(c.Request().Header.Get(HeaderIdempotencyKey))
	if len(key) > 128 {
		return respondError(c, h.Log, badRequest("Idempotency-Key too long"))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	res, err := h.Tickets.Reserve(ctx, actor, service.ReserveCommand{
		EventID:        req.EventID,
		SeatNumber:     req.SeatNumber,
		BuyerID:        req.BuyerID,
		Payment:        pay,
		IdempotencyKey: key,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Mine: GET /v1/tickets/mine
func (h *TicketHandler) Mine(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	items, err := h.Lister.ListByUser(c.Request().Context(), actor.ID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if items == nil {
		items = []repository.TicketDetail{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Cancel: PUT /v1/tickets/:id/cancel
func (h *TicketHandler) Cancel(c echo.Context) error {
	return h.transition(c, h.Tickets.Cancel)
}

// Use: PUT /v1/tickets/:id/use
func (h *TicketHandler) Use(c echo.Context) error {
	return h.transition(c, h.Tickets.Use)
}

func (h *TicketHandler) transition(c echo.Context, op func(context.Context, service.Actor, string) (*model.Ticket, error)) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := ticketID(c)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	t, err := op(ctx, actor, id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, t)
}

// ValidateProof: POST /v1/tickets/validate-proof checks a ticket in from
// the token the attendee presents.
func (h *TicketHandler) ValidateProof(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req proofReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	t, err := h.Tickets.ValidateProof(ctx, actor, strings.TrimSpace(req.Token))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"valid": true, "ticket": t})
}

// Proof: GET /v1/tickets/:id/proof re-issues the proof of a live ticket.
func (h *TicketHandler) Proof(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := ticketID(c)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	p, err := h.Tickets.Proof(c.Request().Context(), actor, id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, p)
}

func ticketID(c echo.Context) (string, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return "", badRequest("invalid ticket id")
	}
	return id.String(), nil
}
