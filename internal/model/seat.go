package model

// SeatStatus is the inventory state of one seat in an event's seat map.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "available"
	SeatBooked    SeatStatus = "booked"
	SeatBlocked   SeatStatus = "blocked"
)

// Valid reports whether s is one of the known seat states.
func (s SeatStatus) Valid() bool {
	switch s {
	case SeatAvailable, SeatBooked, SeatBlocked:
		return true
	}
	return false
}

// Seat is one entry of an event's seat map. Numbers are 1-based.
type Seat struct {
	Number int        `json:"number"`
	Status SeatStatus `json:"status"`
}

// SeatRef identifies a seat across events.
type SeatRef struct {
	EventID    uint64
	SeatNumber int
}

// NewSeatMap returns total seats numbered 1..total, all available.
func NewSeatMap(total int) []Seat {
	if total <= 0 {
		return nil
	}
	seats := make([]Seat, total)
	for i := range seats {
		seats[i] = Seat{Number: i + 1, Status: SeatAvailable}
	}
	return seats
}

// CheckResize validates changing an event's capacity from total to newTotal
// given its current available counter. above holds the seats numbered
// above newTotal and is ignored when the event grows.
func CheckResize(total, available, newTotal int, above []Seat) error {
	if newTotal < 1 {
		return ErrInvalidTotalSeats
	}
	if newTotal >= total {
		return nil
	}
	if newTotal < total-available {
		return ErrSeatReductionBelowBooked
	}
	for _, s := range above {
		if s.Number > newTotal && s.Status != SeatAvailable {
			return ErrSeatReductionBlocked
		}
	}
	return nil
}
