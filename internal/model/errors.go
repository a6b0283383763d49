package model

import "errors"

// Errors returned by the seat inventory, the ticket ledger and the
// reservation engine. Handlers map them to HTTP statuses.
var (
	ErrEventNotFound            = errors.New("event not found")
	ErrTicketNotFound           = errors.New("ticket not found")
	ErrNotificationNotFound     = errors.New("notification not found")
	ErrSeatOutOfRange           = errors.New("seat number out of range")
	ErrSeatMapUninitialized     = errors.New("seat map does not match total seats")
	ErrSeatNotAvailable         = errors.New("seat is not available")
	ErrNoSeatsAvailable         = errors.New("no seats available")
	ErrConcurrentConflict       = errors.New("seat was claimed by a concurrent request")
	ErrSeatNotBooked            = errors.New("seat is not booked")
	ErrSeatNotBlocked           = errors.New("seat is not blocked")
	ErrSeatReductionBelowBooked = errors.New("cannot reduce seats below the number already booked")
	ErrSeatReductionBlocked     = errors.New("seats above the new total are booked or blocked")
	ErrInvalidTotalSeats        = errors.New("total seats must be at least 1")
	ErrAmountMismatch           = errors.New("payment amount does not match event price")
	ErrNotAuthorized            = errors.New("not authorized")
	ErrInvalidState             = errors.New("ticket is not in a state that allows this action")
	ErrInvalidOrExpiredProof    = errors.New("invalid or expired proof")
	ErrDuplicateLiveTicket      = errors.New("a live ticket already exists for this seat")
	ErrReservationFailed        = errors.New("reservation failed")
	ErrCreatorBooking           = errors.New("event creators cannot book their own events")
	ErrRequestInProgress        = errors.New("a request with this idempotency key is in progress")
	ErrEventHasTickets          = errors.New("event has live tickets")
)

// IsNotFound reports whether err refers to a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrTicketNotFound) ||
		errors.Is(err, ErrNotificationNotFound)
}

// IsContention reports whether err means another request won the seat.
// Callers may pick another seat or retry later.
func IsContention(err error) bool {
	return errors.Is(err, ErrSeatNotAvailable) ||
		errors.Is(err, ErrNoSeatsAvailable) ||
		errors.Is(err, ErrConcurrentConflict)
}

// IsPrecondition reports whether err is a rejected request that left no
// state behind.
func IsPrecondition(err error) bool {
	for _, target := range []error{
		ErrSeatOutOfRange, ErrSeatMapUninitialized, ErrSeatNotBooked, ErrSeatNotBlocked,
		ErrSeatReductionBelowBooked, ErrSeatReductionBlocked, ErrInvalidTotalSeats,
		ErrAmountMismatch, ErrNotAuthorized, ErrInvalidState, ErrInvalidOrExpiredProof,
		ErrCreatorBooking, ErrEventHasTickets,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
