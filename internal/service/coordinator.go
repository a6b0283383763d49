package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/queue"
)

// Actor is the authenticated caller of a coordinator operation.
type Actor struct {
	ID   uint64
	Role string
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool { return a.Role == model.RoleAdmin }

// ReserveCommand is a booking or checkout request. BuyerID defaults to the
// actor.
type ReserveCommand struct {
	EventID        uint64
	SeatNumber     int
	BuyerID        uint64
	Payment        *PaymentConfirmation
	IdempotencyKey string
}

// Policy switches optional booking rules.
type Policy struct {
	// BlockCreatorBooking rejects bookings by the event's creator.
	BlockCreatorBooking bool
}

// Coordinator is the request-facing entry point for ticket operations. It
// authorizes the actor, deduplicates retried requests and announces
// completed transitions. The engine does the consistency work.
type Coordinator struct {
	engine    *Engine
	events    EventStore
	ledger    TicketLedger
	publisher Publisher
	idem      IdempotencyStore
	policy    Policy
	log       *zap.Logger

	publishTimeout time.Duration
}

// NewCoordinator wires a coordinator. publisher and idem may be nil.
func NewCoordinator(engine *Engine, events EventStore, ledger TicketLedger, publisher Publisher, idem IdempotencyStore, policy Policy, log *zap.Logger) *Coordinator {
	return &Coordinator{
		engine:         engine,
		events:         events,
		ledger:         ledger,
		publisher:      publisher,
		idem:           idem,
		policy:         policy,
		log:            log.Named("coordinator"),
		publishTimeout: 2 * time.Second,
	}
}

// Reserve books a seat for the buyer. Only the buyer or an admin may
// reserve on the buyer's behalf.
func (c *Coordinator) Reserve(ctx context.Context, actor Actor, cmd ReserveCommand) (*Reservation, error) {
	buyer := cmd.BuyerID
	if buyer == 0 {
		buyer = actor.ID
	}
	if buyer == 0 || (actor.ID != buyer && !actor.IsAdmin()) {
		return nil, model.ErrNotAuthorized
	}

	if c.policy.BlockCreatorBooking {
		ev, err := c.events.GetByID(ctx, cmd.EventID)
		if err != nil {
			return nil, err
		}
		if ev.CreatedBy == buyer {
			return nil, model.ErrCreatorBooking
		}
	}

	key := ""
	if cmd.IdempotencyKey != "" && c.idem != nil {
		key = "buyer:" + strconv.FormatUint(buyer, 10) + ":" + cmd.IdempotencyKey
		res, done, err := c.replay(ctx, key)
		if err != nil || done {
			return res, err
		}
	}

	res, err := c.engine.Reserve(ctx, ReserveInput{
		EventID:    cmd.EventID,
		SeatNumber: cmd.SeatNumber,
		BuyerID:    buyer,
		Payment:    cmd.Payment,
	})
	if key != "" {
		c.finishKey(ctx, key, res, err)
	}
	if err != nil {
		return nil, err
	}

	c.publish(ctx, queue.TicketReserved, res.Ticket, res.EventTitle)
	return res, nil
}

// replay claims an idempotency key. done is true when the request was
// already answered, in which case res and err are the answer.
func (c *Coordinator) replay(ctx context.Context, key string) (res *Reservation, done bool, err error) {
	ticketID, started, err := c.idem.Begin(ctx, key)
	if err != nil {
		// Without the store the request still runs; only dedup is lost.
		c.log.Warn("idempotency store unavailable", zap.Error(err))
		return nil, false, nil
	}
	if started {
		return nil, false, nil
	}
	if ticketID == "" {
		return nil, true, model.ErrRequestInProgress
	}

	t, err := c.ledger.GetByID(ctx, ticketID)
	if err != nil {
		return nil, true, err
	}
	res = &Reservation{Ticket: t}
	if ev, err := c.events.GetByID(ctx, t.EventID); err == nil {
		res.EventTitle = ev.Title
	}
	// A cancelled or used ticket gets no fresh proof.
	if t.Status != model.TicketBooked {
		return res, true, nil
	}
	if res.Proof, err = c.engine.IssueProof(t); err != nil {
		return nil, true, err
	}
	return res, true, nil
}

func (c *Coordinator) finishKey(ctx context.Context, key string, res *Reservation, err error) {
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		if aerr := c.idem.Abandon(ctx, key); aerr != nil {
			c.log.Warn("release idempotency key", zap.String("key", key), zap.Error(aerr))
		}
		return
	}
	if cerr := c.idem.Complete(ctx, key, res.Ticket.ID); cerr != nil {
		c.log.Warn("complete idempotency key", zap.String("key", key), zap.Error(cerr))
	}
}

// Cancel cancels the actor's own ticket.
func (c *Coordinator) Cancel(ctx context.Context, actor Actor, ticketID string) (*model.Ticket, error) {
	t, err := c.engine.Cancel(ctx, ticketID, actor.ID)
	if err != nil {
		return nil, err
	}
	c.publish(ctx, queue.TicketCancelled, t, "")
	return t, nil
}

// Use checks a ticket in by id. Admin only.
func (c *Coordinator) Use(ctx context.Context, actor Actor, ticketID string) (*model.Ticket, error) {
	if !actor.IsAdmin() {
		return nil, model.ErrNotAuthorized
	}
	t, err := c.engine.MarkUsed(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	c.publish(ctx, queue.TicketUsed, t, "")
	return t, nil
}

// ValidateProof checks a ticket in from its proof. Admin only.
func (c *Coordinator) ValidateProof(ctx context.Context, actor Actor, token string) (*model.Ticket, error) {
	if !actor.IsAdmin() {
		return nil, model.ErrNotAuthorized
	}
	t, err := c.engine.UseByProof(ctx, token)
	if err != nil {
		return nil, err
	}
	c.publish(ctx, queue.TicketUsed, t, "")
	return t, nil
}

// Proof re-issues the proof for a live ticket the actor owns.
func (c *Coordinator) Proof(ctx context.Context, actor Actor, ticketID string) (Proof, error) {
	t, err := c.ledger.GetByID(ctx, ticketID)
	if err != nil {
		return Proof{}, err
	}
	if t.UserID != actor.ID && !actor.IsAdmin() {
		return Proof{}, model.ErrNotAuthorized
	}
	if t.Status != model.TicketBooked {
		return Proof{}, model.ErrInvalidState
	}
	return c.engine.IssueProof(t)
}

// publish is fire-and-forget: a broker failure never fails the request.
func (c *Coordinator) publish(ctx context.Context, typ queue.TicketEventType, t *model.Ticket, title string) {
	if c.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.publishTimeout)
	defer cancel()

	err := c.publisher.Publish(ctx, queue.TicketEvent{
		Type:        typ,
		TicketID:    t.ID,
		EventID:     t.EventID,
		EventTitle:  title,
		UserID:      t.UserID,
		SeatNumber:  t.SeatNumber,
		AmountCents: t.AmountCents,
		OccurredAt:  time.Now().UTC(),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		c.log.Warn("publish ticket event failed", zap.String("type", string(typ)), zap.String("ticket_id", t.ID), zap.Error(err))
	}
}
