package service

import (
	"context"
	"time"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/queue"
)

// EventStore loads events together with their seat maps.
type EventStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Event, error)
}

// CatalogStore is the persistence the catalog service needs.
type CatalogStore interface {
	EventStore
	Create(ctx context.Context, ev *model.Event) error
	List(ctx context.Context, f model.EventFilter) ([]model.Event, int, error)
	UpdateCatalog(ctx context.Context, id uint64, u model.CatalogUpdate) error
	Delete(ctx context.Context, id uint64) error
}

// SeatInventory owns each event's seat map and available-seat counter.
// Every method is a single conditional write: it either applies fully or
// changes nothing and returns a typed error.
type SeatInventory interface {
	// TryClaim moves one seat from available to booked and decrements the
	// counter. observed is the seat status the caller last saw; it decides
	// between ErrConcurrentConflict and ErrSeatNotAvailable on failure.
	TryClaim(ctx context.Context, eventID uint64, seatNumber int, observed model.SeatStatus) error
	// Release moves a booked seat back to available.
	Release(ctx context.Context, eventID uint64, seatNumber int) error
	// Resize changes the event's capacity.
	Resize(ctx context.Context, eventID uint64, newTotal int) error
	// SetBlocked toggles a seat between available and blocked.
	SetBlocked(ctx context.Context, eventID uint64, seatNumber int, blocked bool) error
	// SeatMap returns the seats of an event ordered by number.
	SeatMap(ctx context.Context, eventID uint64) ([]model.Seat, error)
}

// OrphanSweeper finds and frees booked seats that no live ticket holds.
type OrphanSweeper interface {
	OrphanedClaims(ctx context.Context, claimedBefore time.Time, limit int) ([]model.SeatRef, error)
	// ReleaseOrphan releases the seat only if it is still booked, was
	// claimed before claimedBefore and has no live ticket.
	ReleaseOrphan(ctx context.Context, ref model.SeatRef, claimedBefore time.Time) (bool, error)
}

// TicketLedger is the durable record of issued tickets. At most one live
// ticket exists per (event, seat).
type TicketLedger interface {
	Insert(ctx context.Context, t *model.Ticket) error
	GetByID(ctx context.Context, id string) (*model.Ticket, error)
	FindLive(ctx context.Context, eventID uint64, seatNumber int) (*model.Ticket, error)
	// Cancel moves a booked ticket to cancelled. A ticket in any other
	// state yields ErrInvalidState.
	Cancel(ctx context.Context, id string, at time.Time) error
	// MarkUsed moves a booked ticket to used.
	MarkUsed(ctx context.Context, id string, at time.Time) error
}

// Publisher delivers ticket lifecycle events to the broker.
type Publisher interface {
	Publish(ctx context.Context, ev queue.TicketEvent) error
}

// IdempotencyStore remembers reservation requests by client key.
// Begin returns started=true when the caller owns the key. Otherwise
// ticketID holds the completed result, or is empty while the first
// request is still processing.
type IdempotencyStore interface {
	Begin(ctx context.Context, key string) (ticketID string, started bool, err error)
	Complete(ctx context.Context, key, ticketID string) error
	Abandon(ctx context.Context, key string) error
}
