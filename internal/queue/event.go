// Package queue defines message payloads exchanged over the message broker
// and the consumer that turns them into user notifications.
package queue

import "time"

// TicketEventsQueue is the durable queue ticket lifecycle events go to.
const TicketEventsQueue = "ticket.events"

// TicketEventType names a ticket lifecycle transition.
type TicketEventType string

const (
	TicketReserved  TicketEventType = "ticket.reserved"
	TicketCancelled TicketEventType = "ticket.cancelled"
	TicketUsed      TicketEventType = "ticket.used"
)

// TicketEvent is published after a ticket changes state. It carries enough
// for consumers to notify the buyer without querying the primary database.
type TicketEvent struct {
	Type        TicketEventType `json:"type"`
	TicketID    string          `json:"ticket_id"`
	EventID     uint64          `json:"event_id"`
	EventTitle  string          `json:"event_title,omitempty"`
	UserID      uint64          `json:"user_id"`
	SeatNumber  int             `json:"seat_number"`
	AmountCents int64           `json:"amount_cents"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
