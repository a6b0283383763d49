package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// InventoryRepo is the MySQL seat inventory. Every state change is a single
// conditional UPDATE joining events and event_seats, so the seat status and
// the available_seats counter move together or not at all. When the WHERE
// clause matches nothing the current row is read back to classify why.
type InventoryRepo struct {
	db *sql.DB
}

// NewInventoryRepo returns an InventoryRepo bound to db.
func NewInventoryRepo(db *sql.DB) *InventoryRepo { return &InventoryRepo{db: db} }

const claimSQL = `UPDATE events e
	JOIN event_seats s ON s.event_id = e.id
	SET s.status = 'booked', s.updated_at = UTC_TIMESTAMP(3), e.available_seats = e.available_seats - 1
	WHERE e.id = ? AND s.number = ? AND s.status = 'available' AND e.available_seats > 0`

const releaseSQL = `UPDATE events e
	JOIN event_seats s ON s.event_id = e.id
	SET s.status = 'available', s.updated_at = UTC_TIMESTAMP(3), e.available_seats = e.available_seats + 1
	WHERE e.id = ? AND s.number = ? AND s.status = 'booked'`

const blockSQL = `UPDATE events e
	JOIN event_seats s ON s.event_id = e.id
	SET s.status = 'blocked', s.updated_at = UTC_TIMESTAMP(3), e.available_seats = e.available_seats - 1
	WHERE e.id = ? AND s.number = ? AND s.status = 'available' AND e.available_seats > 0`

const unblockSQL = `UPDATE events e
	JOIN event_seats s ON s.event_id = e.id
	SET s.status = 'available', s.updated_at = UTC_TIMESTAMP(3), e.available_seats = e.available_seats + 1
	WHERE e.id = ? AND s.number = ? AND s.status = 'blocked'`

// TryClaim books one seat.
func (r *InventoryRepo) TryClaim(ctx context.Context, eventID uint64, seat int, observed model.SeatStatus) error {
	ok, err := r.conditional(ctx, claimSQL, eventID, seat)
	if err != nil || ok {
		return err
	}
	st, err := r.seatState(ctx, eventID, seat)
	if err != nil {
		return err
	}
	if err := st.checkSeat(seat); err != nil {
		return err
	}
	if st.status != model.SeatAvailable {
		if observed == model.SeatAvailable {
			return model.ErrConcurrentConflict
		}
		return model.ErrSeatNotAvailable
	}
	if st.available <= 0 {
		return model.ErrNoSeatsAvailable
	}
	// Free again by the time we looked: someone held it in between.
	return model.ErrConcurrentConflict
}

// Release frees a booked seat.
func (r *InventoryRepo) Release(ctx context.Context, eventID uint64, seat int) error {
	ok, err := r.conditional(ctx, releaseSQL, eventID, seat)
	if err != nil || ok {
		return err
	}
	st, err := r.seatState(ctx, eventID, seat)
	if err != nil {
		return err
	}
	if err := st.checkSeat(seat); err != nil {
		return err
	}
	return model.ErrSeatNotBooked
}

// SetBlocked moves a seat between available and blocked.
func (r *InventoryRepo) SetBlocked(ctx context.Context, eventID uint64, seat int, blocked bool) error {
	q := unblockSQL
	if blocked {
		q = blockSQL
	}
	ok, err := r.conditional(ctx, q, eventID, seat)
	if err != nil || ok {
		return err
	}
	st, err := r.seatState(ctx, eventID, seat)
	if err != nil {
		return err
	}
	if err := st.checkSeat(seat); err != nil {
		return err
	}
	if blocked {
		if st.status != model.SeatAvailable {
			return model.ErrSeatNotAvailable
		}
		return model.ErrNoSeatsAvailable
	}
	return model.ErrSeatNotBlocked
}

// Resize grows or shrinks the seat map under a row lock on the event.
// Shrinking removes only seats that are available.
func (r *InventoryRepo) Resize(ctx context.Context, eventID uint64, newTotal int) error {
	if newTotal < 1 {
		return model.ErrInvalidTotalSeats
	}
	return r.withDeadlockRetry(ctx, func() error { return r.resizeTx(ctx, eventID, newTotal) })
}

func (r *InventoryRepo) resizeTx(ctx context.Context, eventID uint64, newTotal int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var total, available int
	err = tx.QueryRowContext(ctx,
		"SELECT total_seats, available_seats FROM events WHERE id = ? FOR UPDATE", eventID).
		Scan(&total, &available)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrEventNotFound
	}
	if err != nil {
		return err
	}

	var above []model.Seat
	if newTotal < total {
		above, err = seatsAbove(ctx, tx, eventID, newTotal)
		if err != nil {
			return err
		}
	}
	if err := model.CheckResize(total, available, newTotal, above); err != nil {
		return err
	}

	switch {
	case newTotal > total:
		if err := insertSeats(ctx, tx, eventID, total+1, newTotal); err != nil {
			return err
		}
	case newTotal < total:
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM event_seats WHERE event_id = ? AND number > ?", eventID, newTotal); err != nil {
			return err
		}
	default:
		return nil
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE events SET total_seats = ?, available_seats = available_seats + ? WHERE id = ?",
		newTotal, newTotal-total, eventID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// SeatMap returns the event's seats ordered by number.
func (r *InventoryRepo) SeatMap(ctx context.Context, eventID uint64) ([]model.Seat, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM events WHERE id = ?", eventID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return querySeats(ctx, r.db, eventID)
}

// OrphanedClaims lists booked seats claimed before claimedBefore that no
// live ticket holds.
func (r *InventoryRepo) OrphanedClaims(ctx context.Context, claimedBefore time.Time, limit int) ([]model.SeatRef, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT s.event_id, s.number
		FROM event_seats s
		LEFT JOIN tickets t ON t.event_id = s.event_id AND t.live_seat = s.number
		WHERE s.status = 'booked' AND s.updated_at < ? AND t.id IS NULL
		ORDER BY s.updated_at
		LIMIT ?`, claimedBefore.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SeatRef
	for rows.Next() {
		var ref model.SeatRef
		if err := rows.Scan(&ref.EventID, &ref.SeatNumber); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// ReleaseOrphan frees the seat only while it still has no live ticket.
func (r *InventoryRepo) ReleaseOrphan(ctx context.Context, ref model.SeatRef, claimedBefore time.Time) (bool, error) {
	return r.conditional(ctx, `UPDATE events e
		JOIN event_seats s ON s.event_id = e.id
		SET s.status = 'available', s.updated_at = UTC_TIMESTAMP(3), e.available_seats = e.available_seats + 1
		WHERE e.id = ? AND s.number = ? AND s.status = 'booked' AND s.updated_at < ?
		  AND NOT EXISTS (SELECT 1 FROM tickets t WHERE t.event_id = s.event_id AND t.live_seat = s.number)`,
		ref.EventID, ref.SeatNumber, claimedBefore.UTC())
}

// conditional runs a guarded UPDATE and reports whether it matched.
func (r *InventoryRepo) conditional(ctx context.Context, q string, args ...any) (bool, error) {
	var n int64
	err := r.withDeadlockRetry(ctx, func() error {
		res, err := r.db.ExecContext(ctx, q, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// withDeadlockRetry reruns fn when InnoDB picks it as a deadlock victim.
// The victim's transaction is rolled back, so rerunning is safe.
func (r *InventoryRepo) withDeadlockRetry(ctx context.Context, fn func() error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := fn()
		if err != nil && !isDeadlock(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(3))
	return err
}

type seatState struct {
	total     int
	available int
	mapSize   int
	status    model.SeatStatus // empty when the seat row is missing
}

func (st seatState) checkSeat(seat int) error {
	if seat < 1 || seat > st.total {
		return model.ErrSeatOutOfRange
	}
	if st.mapSize != st.total || st.status == "" {
		return model.ErrSeatMapUninitialized
	}
	return nil
}

func (r *InventoryRepo) seatState(ctx context.Context, eventID uint64, seat int) (seatState, error) {
	var (
		st     seatState
		status sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `SELECT e.total_seats, e.available_seats,
			(SELECT COUNT(*) FROM event_seats c WHERE c.event_id = e.id),
			s.status
		FROM events e
		LEFT JOIN event_seats s ON s.event_id = e.id AND s.number = ?
		WHERE e.id = ?`, seat, eventID).Scan(&st.total, &st.available, &st.mapSize, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return st, model.ErrEventNotFound
	}
	if err != nil {
		return st, err
	}
	if status.Valid {
		st.status = model.SeatStatus(status.String)
	}
	return st, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func querySeats(ctx context.Context, q queryer, eventID uint64) ([]model.Seat, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT number, status FROM event_seats WHERE event_id = ? ORDER BY number", eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seats []model.Seat
	for rows.Next() {
		var s model.Seat
		if err := rows.Scan(&s.Number, &s.Status); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

func seatsAbove(ctx context.Context, tx *sql.Tx, eventID uint64, n int) ([]model.Seat, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT number, status FROM event_seats WHERE event_id = ? AND number > ? ORDER BY number FOR UPDATE",
		eventID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seats []model.Seat
	for rows.Next() {
		var s model.Seat
		if err := rows.Scan(&s.Number, &s.Status); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

// insertSeats adds available seats from..to inclusive, in chunks to stay
// under the placeholder limit.
func insertSeats(ctx context.Context, x execer, eventID uint64, from, to int) error {
	const chunk = 1000
	for start := from; start <= to; start += chunk {
		end := start + chunk - 1
		if end > to {
			end = to
		}
		var sb strings.Builder
		sb.WriteString("INSERT INTO event_seats (event_id, number, status) VALUES ")
		args := make([]any, 0, (end-start+1)*2)
		for n := start; n <= end; n++ {
			if n > start {
				sb.WriteString(",")
			}
			sb.WriteString("(?, ?, 'available')")
			args = append(args, eventID, n)
		}
		if _, err := x.ExecContext(ctx, sb.String(), args...); err != nil {
			return err
		}
	}
	return nil
}
