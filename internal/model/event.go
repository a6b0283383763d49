package model

import (
	"fmt"
	"time"
)

// EventStatus is the lifecycle label shown to clients.
type EventStatus string

const (
	EventUpcoming EventStatus = "upcoming"
	EventActive   EventStatus = "active"
	EventClosed   EventStatus = "closed"
)

// ActiveWindow is how long an event stays active after it starts.
const ActiveWindow = 24 * time.Hour

// Valid reports whether s is a known event status.
func (s EventStatus) Valid() bool {
	switch s {
	case EventUpcoming, EventActive, EventClosed:
		return true
	}
	return false
}

// Event is a sellable occasion with a fixed-capacity, numbered seat map.
// TotalSeats, AvailableSeats and Seats are owned by the seat inventory
// and only change through its conditional writes.
type Event struct {
	ID             uint64      `json:"id"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Category       string      `json:"category,omitempty"`
	Venue          string      `json:"venue"`
	ImageURL       string      `json:"image_url,omitempty"`
	StartsAt       time.Time   `json:"starts_at"`
	PriceCents     int64       `json:"price_cents"`
	TotalSeats     int         `json:"total_seats"`
	AvailableSeats int         `json:"available_seats"`
	PinnedStatus   EventStatus `json:"-"` // events.pinned_status; empty means derived from StartsAt
	Seats          []Seat      `json:"seat_map,omitempty"`
	CreatedBy      uint64      `json:"created_by"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Status returns the pinned status when set, otherwise the status derived
// from StartsAt: upcoming before the start, active for ActiveWindow after
// it and closed afterwards.
func (e *Event) Status(now time.Time) EventStatus {
	if e.PinnedStatus != "" {
		return e.PinnedStatus
	}
	switch {
	case now.Before(e.StartsAt):
		return EventUpcoming
	case now.Before(e.StartsAt.Add(ActiveWindow)):
		return EventActive
	default:
		return EventClosed
	}
}

// ClaimedSeats counts seats that are booked or blocked.
func (e *Event) ClaimedSeats() int { return e.TotalSeats - e.AvailableSeats }

// SeatAt returns the seat with the given 1-based number.
func (e *Event) SeatAt(number int) (Seat, bool) {
	if number < 1 || number > len(e.Seats) {
		return Seat{}, false
	}
	s := e.Seats[number-1]
	if s.Number != number {
		return Seat{}, false
	}
	return s, true
}

// CheckInventory verifies the counter and seat-map invariants on a fully
// loaded event. It returns nil when the event is consistent.
func (e *Event) CheckInventory() error {
	if e.TotalSeats < 1 {
		return fmt.Errorf("event %d: total seats %d < 1", e.ID, e.TotalSeats)
	}
	if e.AvailableSeats < 0 || e.AvailableSeats > e.TotalSeats {
		return fmt.Errorf("event %d: available seats %d outside [0,%d]", e.ID, e.AvailableSeats, e.TotalSeats)
	}
	if len(e.Seats) != e.TotalSeats {
		return fmt.Errorf("event %d: seat map has %d entries, want %d", e.ID, len(e.Seats), e.TotalSeats)
	}
	free := 0
	for i, s := range e.Seats {
		if s.Number != i+1 {
			return fmt.Errorf("event %d: seat at index %d numbered %d", e.ID, i, s.Number)
		}
		if !s.Status.Valid() {
			return fmt.Errorf("event %d: seat %d has status %q", e.ID, s.Number, s.Status)
		}
		if s.Status == SeatAvailable {
			free++
		}
	}
	if free != e.AvailableSeats {
		return fmt.Errorf("event %d: %d seats available in map, counter says %d", e.ID, free, e.AvailableSeats)
	}
	return nil
}

// EventFilter narrows catalog listings. Zero values mean "no filter".
type EventFilter struct {
	Search   string
	Category string
	Status   EventStatus
	MinPrice *int64
	MaxPrice *int64
	From     *time.Time
	To       *time.Time
	Sort     string
	Page     int
	Limit    int
}

// Normalize clamps paging to 1..100 per page and defaults page to 1.
func (f *EventFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 10
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
}

// CatalogUpdate carries the event fields an update may touch. Seat
// capacity and availability are absent; they change only
// through the seat inventory.
type CatalogUpdate struct {
	Title        *string
	Description  *string
	Category     *string
	Venue        *string
	ImageURL     *string
	StartsAt     *time.Time
	PriceCents   *int64
	PinnedStatus *EventStatus
}

// Empty reports whether the update sets nothing.
func (u CatalogUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Category == nil && u.Venue == nil &&
		u.ImageURL == nil && u.StartsAt == nil && u.PriceCents == nil && u.PinnedStatus == nil
}
