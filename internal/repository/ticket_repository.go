package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// TicketRepo is the MySQL ticket ledger. The live_seat generated column
// is NULL for cancelled tickets, so UNIQUE(event_id, live_seat) allows
// any number of cancelled tickets per seat but only one live one.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a TicketRepo bound to db.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

const ticketColumns = "t.id, t.event_id, t.user_id, t.seat_number, t.status, t.amount_cents, t.booking_date, t.used_date, t.cancelled_date"

// Insert records a new booked ticket. A second live ticket for the same
// seat fails with model.ErrDuplicateLiveTicket.
func (r *TicketRepo) Insert(ctx context.Context, t *model.Ticket) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO tickets
		(id, event_id, user_id, seat_number, status, amount_cents, booking_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.EventID, t.UserID, t.SeatNumber, t.Status, t.AmountCents, t.BookingDate.UTC())
	if isDuplicateKey(err) {
		return model.ErrDuplicateLiveTicket
	}
	return err
}

// GetByID returns one ticket.
func (r *TicketRepo) GetByID(ctx context.Context, id string) (*model.Ticket, error) {
	return scanTicket(r.db.QueryRowContext(ctx, "SELECT "+ticketColumns+" FROM tickets t WHERE t.id = ?", id))
}

// FindLive returns the booked or used ticket holding a seat.
func (r *TicketRepo) FindLive(ctx context.Context, eventID uint64, seat int) (*model.Ticket, error) {
	return scanTicket(r.db.QueryRowContext(ctx,
		"SELECT "+ticketColumns+" FROM tickets t WHERE t.event_id = ? AND t.live_seat = ?", eventID, seat))
}

// Cancel moves a booked ticket to cancelled.
func (r *TicketRepo) Cancel(ctx context.Context, id string, at time.Time) error {
	return r.transition(ctx,
		"UPDATE tickets SET status = 'cancelled', cancelled_date = ? WHERE id = ? AND status = 'booked'", id, at)
}

// MarkUsed moves a booked ticket to used.
func (r *TicketRepo) MarkUsed(ctx context.Context, id string, at time.Time) error {
	return r.transition(ctx,
		"UPDATE tickets SET status = 'used', used_date = ? WHERE id = ? AND status = 'booked'", id, at)
}

func (r *TicketRepo) transition(ctx context.Context, q, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, q, at.UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return model.ErrInvalidState
}

// TicketDetail is a ticket with the event fields a buyer sees in listings.
type TicketDetail struct {
	model.Ticket
	EventTitle    string    `json:"event_title"`
	EventVenue    string    `json:"event_venue"`
	EventStartsAt time.Time `json:"event_starts_at"`
}

// ListByUser returns the user's tickets, newest first. Tickets whose event
// was deleted are still listed with empty event fields.
func (r *TicketRepo) ListByUser(ctx context.Context, userID uint64) ([]TicketDetail, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+ticketColumns+`,
			COALESCE(e.title, ''), COALESCE(e.venue, ''), e.starts_at
		FROM tickets t
		LEFT JOIN events e ON e.id = t.event_id
		WHERE t.user_id = ?
		ORDER BY t.booking_date DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []TicketDetail{}
	for rows.Next() {
		var (
			d        TicketDetail
			nulls    ticketNulls
			startsAt sql.NullTime
		)
		dest := append(ticketDest(&d.Ticket, &nulls), &d.EventTitle, &d.EventVenue, &startsAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		nulls.apply(&d.Ticket)
		d.EventStartsAt = startsAt.Time
		out = append(out, d)
	}
	return out, rows.Err()
}

// EventTicket is a ticket with the buyer fields an admin sees.
type EventTicket struct {
	model.Ticket
	BuyerEmail string `json:"buyer_email"`
	BuyerName  string `json:"buyer_name"`
}

// ListByEvent returns every ticket sold for an event ordered by seat.
func (r *TicketRepo) ListByEvent(ctx context.Context, eventID uint64) ([]EventTicket, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+ticketColumns+`,
			COALESCE(u.email, ''), COALESCE(u.name, '')
		FROM tickets t
		LEFT JOIN users u ON u.id = t.user_id
		WHERE t.event_id = ?
		ORDER BY t.seat_number, t.booking_date`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []EventTicket{}
	for rows.Next() {
		var d EventTicket
		nulls := &ticketNulls{}
		dest := append(ticketDest(&d.Ticket, nulls), &d.BuyerEmail, &d.BuyerName)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		nulls.apply(&d.Ticket)
		out = append(out, d)
	}
	return out, rows.Err()
}

type ticketNulls struct {
	used, cancelled sql.NullTime
}

func (n *ticketNulls) apply(t *model.Ticket) {
	if n.used.Valid {
		v := n.used.Time
		t.UsedDate = &v
	}
	if n.cancelled.Valid {
		v := n.cancelled.Time
		t.CancelledDate = &v
	}
}

func ticketDest(t *model.Ticket, n *ticketNulls) []any {
	return []any{&t.ID, &t.EventID, &t.UserID, &t.SeatNumber, &t.Status, &t.AmountCents, &t.BookingDate, &n.used, &n.cancelled}
}

func scanTicket(row *sql.Row) (*model.Ticket, error) {
	var (
		t     model.Ticket
		nulls ticketNulls
	)
	err := row.Scan(ticketDest(&t, &nulls)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	nulls.apply(&t)
	return &t, nil
}
