package model

import "time"

// TicketStatus is the lifecycle state of a ledger entry.
type TicketStatus string

const (
	TicketBooked    TicketStatus = "booked"
	TicketUsed      TicketStatus = "used"
	TicketCancelled TicketStatus = "cancelled"
)

// IsLive reports whether a ticket in this state still holds its seat.
func (s TicketStatus) IsLive() bool { return s == TicketBooked || s == TicketUsed }

// CanTransition reports whether a ticket may move from s to next.
// booked -> used and booked -> cancelled are the only edges; used and
// cancelled are terminal.
func (s TicketStatus) CanTransition(next TicketStatus) bool {
	return s == TicketBooked && (next == TicketUsed || next == TicketCancelled)
}

// Ticket is one entry in the ticket ledger. EventID is a weak reference:
// the ticket row outlives the event it was sold for.
//
// Fields:
//
//	ID            – UUID assigned at reservation.
//	EventID       – event the seat belongs to.
//	UserID        – buyer.
//	SeatNumber    – 1-based seat in the event's seat map.
//	Status        – booked, used or cancelled.
//	AmountCents   – price paid, copied from the event at purchase time.
//	BookingDate   – when the reservation was made.
//	UsedDate      – set on the booked -> used transition.
//	CancelledDate – set on the booked -> cancelled transition.
type Ticket struct {
	ID            string       `json:"id"`             // tickets.id
	EventID       uint64       `json:"event_id"`       // tickets.event_id
	UserID        uint64       `json:"user_id"`        // tickets.user_id
	SeatNumber    int          `json:"seat_number"`    // tickets.seat_number
	Status        TicketStatus `json:"status"`         // tickets.status
	AmountCents   int64        `json:"amount_cents"`   // tickets.amount_cents
	BookingDate   time.Time    `json:"booking_date"`   // tickets.booking_date
	UsedDate      *time.Time   `json:"used_date"`      // tickets.used_date (nullable)
	CancelledDate *time.Time   `json:"cancelled_date"` // tickets.cancelled_date (nullable)
}
