// Package service holds the reservation workflow: the engine that keeps the
// seat inventory and ticket ledger consistent, the coordinator that applies
// access policy around it, and the background reconciler.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// PaymentConfirmation is what the checkout flow asserts was paid.
type PaymentConfirmation struct {
	AmountCents int64
	CardLast4   string
}

// ReserveInput asks the engine for one seat.
type ReserveInput struct {
	EventID    uint64
	SeatNumber int
	BuyerID    uint64
	Payment    *PaymentConfirmation
}

// Reservation is the result of a successful Reserve.
type Reservation struct {
	Ticket     *model.Ticket `json:"ticket"`
	EventTitle string        `json:"event_title"`
	Proof      Proof         `json:"proof,omitzero"`
}

// EngineConfig tunes compensation retries.
type EngineConfig struct {
	ReleaseAttempts        uint
	ReleaseInitialInterval time.Duration
	ReleaseTimeout         time.Duration
}

// DefaultEngineConfig returns the retry settings used in production.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ReleaseAttempts:        5,
		ReleaseInitialInterval: 50 * time.Millisecond,
		ReleaseTimeout:         5 * time.Second,
	}
}

// Engine is the only path that creates tickets. It claims the seat first,
// then writes the ledger, and releases the seat whenever a later step
// fails.
type Engine struct {
	events    EventStore
	inventory SeatInventory
	ledger    TicketLedger
	proofs    *ProofIssuer
	log       *zap.Logger
	cfg       EngineConfig

	now   func() time.Time
	newID func() string
}

// NewEngine wires an engine.
func NewEngine(events EventStore, inventory SeatInventory, ledger TicketLedger, proofs *ProofIssuer, log *zap.Logger, cfg EngineConfig) *Engine {
	if cfg.ReleaseAttempts == 0 {
		cfg.ReleaseAttempts = 1
	}
	if cfg.ReleaseTimeout <= 0 {
		cfg.ReleaseTimeout = 5 * time.Second
	}
	return &Engine{
		events:    events,
		inventory: inventory,
		ledger:    ledger,
		proofs:    proofs,
		log:       log.Named("engine"),
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// Reserve claims a seat and records a booked ticket for the buyer.
// A failure before the claim leaves no state behind. A failure after the
// claim releases the seat before returning, unless the ticket may have been
// written; then the seat stays booked for the reconciler to judge.
func (e *Engine) Reserve(ctx context.Context, in ReserveInput) (*Reservation, error) {
	if in.SeatNumber < 1 {
		return nil, model.ErrSeatOutOfRange
	}

	ev, err := e.events.GetByID(ctx, in.EventID)
	if err != nil {
		return nil, err
	}
	if in.Payment != nil && in.Payment.AmountCents != ev.PriceCents {
		return nil, model.ErrAmountMismatch
	}

	observed := model.SeatStatus("")
	if s, ok := ev.SeatAt(in.SeatNumber); ok {
		observed = s.Status
	}
	if err := e.inventory.TryClaim(ctx, ev.ID, in.SeatNumber, observed); err != nil {
		return nil, err
	}

	t := &model.Ticket{
		ID:          e.newID(),
		EventID:     ev.ID,
		UserID:      in.BuyerID,
		SeatNumber:  in.SeatNumber,
		Status:      model.TicketBooked,
		AmountCents: ev.PriceCents,
		BookingDate: e.now(),
	}

	proof, err := e.proofs.Issue(t)
	if err != nil {
		e.compensate(ctx, t, err)
		return nil, err
	}

	if err := e.ledger.Insert(ctx, t); err != nil {
		if errors.Is(err, model.ErrDuplicateLiveTicket) {
			// The inventory granted a seat the ledger already holds.
			e.log.Error("ledger rejected a claimed seat; inventory and ledger disagree",
				zap.Uint64("event_id", t.EventID), zap.Int("seat", t.SeatNumber), zap.Error(err))
			e.compensate(ctx, t, err)
			return nil, model.ErrReservationFailed
		}
		// The insert may have committed even though we saw an error. The
		// seat is released only once the ticket is known to be absent.
		stored, gerr := e.ledger.GetByID(context.WithoutCancel(ctx), t.ID)
		switch {
		case gerr == nil && stored != nil:
			e.log.Warn("ticket insert reported an error but the row exists", zap.String("ticket_id", t.ID), zap.Error(err))
			return &Reservation{Ticket: stored, EventTitle: ev.Title, Proof: proof}, nil
		case errors.Is(gerr, model.ErrTicketNotFound):
			e.compensate(ctx, t, err)
		default:
			// Unknown outcome. The seat stays booked and the reconciler frees
			// it later if no live ticket turns up.
			e.log.Error("ticket insert outcome unknown; leaving seat booked",
				zap.String("ticket_id", t.ID), zap.Uint64("event_id", t.EventID), zap.Int("seat", t.SeatNumber),
				zap.Error(err), zap.NamedError("lookup_error", gerr))
		}
		return nil, fmt.Errorf("persist ticket: %w", err)
	}

	return &Reservation{Ticket: t, EventTitle: ev.Title, Proof: proof}, nil
}

// Cancel cancels a booked ticket owned by requesterID and frees its seat.
// The ledger is written first; a release that still fails after retries
// is left for the reconciler.
func (e *Engine) Cancel(ctx context.Context, ticketID string, requesterID uint64) (*model.Ticket, error) {
	t, err := e.ledger.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if t.UserID != requesterID {
		return nil, model.ErrNotAuthorized
	}
	if !t.Status.CanTransition(model.TicketCancelled) {
		return nil, model.ErrInvalidState
	}

	at := e.now()
	if err := e.ledger.Cancel(ctx, t.ID, at); err != nil {
		return nil, err
	}
	t.Status = model.TicketCancelled
	t.CancelledDate = &at

	if err := e.release(ctx, t.EventID, t.SeatNumber); err != nil && !errors.Is(err, model.ErrSeatNotBooked) {
		e.log.Error("seat release after cancel failed; reconciler will retry",
			zap.String("ticket_id", t.ID), zap.Uint64("event_id", t.EventID), zap.Int("seat", t.SeatNumber), zap.Error(err))
	}
	return t, nil
}

// MarkUsed checks a booked ticket in. The seat stays booked.
func (e *Engine) MarkUsed(ctx context.Context, ticketID string) (*model.Ticket, error) {
	t, err := e.ledger.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !t.Status.CanTransition(model.TicketUsed) {
		return nil, model.ErrInvalidState
	}
	at := e.now()
	if err := e.ledger.MarkUsed(ctx, t.ID, at); err != nil {
		return nil, err
	}
	t.Status = model.TicketUsed
	t.UsedDate = &at
	return t, nil
}

// RedeemProof verifies a proof without touching any state.
func (e *Engine) RedeemProof(token string) (ProofClaims, error) {
	return e.proofs.Redeem(token)
}

// IssueProof signs a fresh proof for an existing ticket.
func (e *Engine) IssueProof(t *model.Ticket) (Proof, error) {
	return e.proofs.Issue(t)
}

// UseByProof resolves the ticket a proof was issued for and checks it in.
// The live ticket for the proof's seat must be the one the proof names and
// belong to the proof's buyer.
func (e *Engine) UseByProof(ctx context.Context, token string) (*model.Ticket, error) {
	claims, err := e.proofs.Redeem(token)
	if err != nil {
		return nil, err
	}
	t, err := e.ledger.FindLive(ctx, claims.EventID, claims.SeatNumber)
	if err != nil {
		if errors.Is(err, model.ErrTicketNotFound) {
			return nil, model.ErrInvalidOrExpiredProof
		}
		return nil, err
	}
	if t.ID != claims.TicketID || t.UserID != claims.BuyerID {
		return nil, model.ErrInvalidOrExpiredProof
	}
	return e.MarkUsed(ctx, t.ID)
}

func (e *Engine) compensate(ctx context.Context, t *model.Ticket, cause error) {
	if err := e.release(ctx, t.EventID, t.SeatNumber); err != nil {
		e.log.Error("compensating release failed; reconciler will retry",
			zap.Uint64("event_id", t.EventID), zap.Int("seat", t.SeatNumber),
			zap.NamedError("cause", cause), zap.Error(err))
		return
	}
	e.log.Info("released seat after failed reservation",
		zap.Uint64("event_id", t.EventID), zap.Int("seat", t.SeatNumber), zap.NamedError("cause", cause))
}

// release retries Release with exponential backoff on a context detached
// from the caller, so a cancelled request still frees its seat.
func (e *Engine) release(ctx context.Context, eventID uint64, seat int) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.ReleaseTimeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	if e.cfg.ReleaseInitialInterval > 0 {
		b.InitialInterval = e.cfg.ReleaseInitialInterval
		b.MaxInterval = 16 * e.cfg.ReleaseInitialInterval
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := e.inventory.Release(ctx, eventID, seat)
		switch {
		case err == nil:
			return struct{}{}, nil
		case errors.Is(err, model.ErrSeatNotBooked), errors.Is(err, model.ErrSeatOutOfRange), model.IsNotFound(err):
			return struct{}{}, backoff.Permanent(err)
		default:
			return struct{}{}, err
		}
	}, backoff.WithBackOff(b), backoff.WithMaxTries(e.cfg.ReleaseAttempts))
	return err
}
