package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// EventRepo manages event rows. Seat rows are written here only when an
// event is created; every later seat change goes through InventoryRepo.
type EventRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewEventRepo returns an EventRepo bound to db.
func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// DB exposes the underlying sql.DB.
func (r *EventRepo) DB() *sql.DB { return r.db }

const eventColumns = `e.id, e.title, e.description, e.category, e.venue, e.image_url, e.starts_at,
	e.price_cents, e.total_seats, e.available_seats, e.pinned_status, e.created_by, e.created_at, e.updated_at`

// Create inserts the event and its full seat map in one transaction. On
// success the generated ID and timestamps are set on ev.
func (r *EventRepo) Create(ctx context.Context, ev *model.Event) error {
	if ev.TotalSeats < 1 {
		return model.ErrInvalidTotalSeats
	}
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

	res, err := tx.ExecContext(ctx, `INSERT INTO events
		(title, description, category, venue, image_url, starts_at, price_cents, total_seats, available_seats, pinned_status, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Title, ev.Description, ev.Category, ev.Venue, ev.ImageURL, ev.StartsAt.UTC(),
		ev.PriceCents, ev.TotalSeats, ev.TotalSeats, nullStatus(ev.PinnedStatus), ev.CreatedBy)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	ev.ID = uint64(id)

	if err := insertSeats(ctx, tx, ev.ID, 1, ev.TotalSeats); err != nil {
		return fmt.Errorf("insert seats: %w", err)
	}

	if err := scanEvent(tx.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events e WHERE e.id = ?", ev.ID), ev); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	ev.Seats = model.NewSeatMap(ev.TotalSeats)
	return nil
}

// GetByID returns the event with its seat map.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	var ev model.Event
	err := scanEvent(r.db.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events e WHERE e.id = ?", id), &ev)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	seats, err := querySeats(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	ev.Seats = seats
	return &ev, nil
}

var eventSorts = map[string]string{
	"date":       "e.starts_at ASC",
	"-date":      "e.starts_at DESC",
	"price":      "e.price_cents ASC",
	"-price":     "e.price_cents DESC",
	"created":    "e.created_at ASC",
	"-created":   "e.created_at DESC",
	"title":      "e.title ASC",
	"-available": "e.available_seats DESC",
}

// List returns one page of events without seat maps and the total number
// of matches.
func (r *EventRepo) List(ctx context.Context, f model.EventFilter) ([]model.Event, int, error) {
	f.Normalize()
	where := []string{}
	args := []any{}

	if f.Search != "" {
		where = append(where, "(LOWER(e.title) LIKE ? OR LOWER(e.description) LIKE ? OR LOWER(e.venue) LIKE ?)")
		like := "%" + strings.ToLower(f.Search) + "%"
		args = append(args, like, like, like)
	}
	if f.Category != "" {
		where = append(where, "e.category = ?")
		args = append(args, f.Category)
	}
	if f.MinPrice != nil {
		where = append(where, "e.price_cents >= ?")
		args = append(args, *f.MinPrice)
	}
	if f.MaxPrice != nil {
		where = append(where, "e.price_cents <= ?")
		args = append(args, *f.MaxPrice)
	}
	if f.From != nil {
		where = append(where, "e.starts_at >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		where = append(where, "e.starts_at <= ?")
		args = append(args, f.To.UTC())
	}
	if f.Status != "" {
		cond, sargs := statusCondition(f.Status, r.now())
		where = append(where, cond)
		args = append(args, sargs...)
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events e WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order, ok := eventSorts[f.Sort]
	if !ok {
		order = eventSorts["date"]
	}
	dataArgs := append(append([]any{}, args...), f.Limit, (f.Page-1)*f.Limit)
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events e WHERE "+cond+" ORDER BY "+order+", e.id ASC LIMIT ? OFFSET ?",
		dataArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Event, 0, f.Limit)
	for rows.Next() {
		var ev model.Event
		if err := scanEvent(rows, &ev); err != nil {
			return nil, 0, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// statusCondition mirrors Event.Status in SQL.
func statusCondition(s model.EventStatus, now time.Time) (string, []any) {
	activeFrom := now.Add(-model.ActiveWindow)
	switch s {
	case model.EventUpcoming:
		return "(e.pinned_status = 'upcoming' OR (e.pinned_status IS NULL AND e.starts_at > ?))", []any{now}
	case model.EventActive:
		return "(e.pinned_status = 'active' OR (e.pinned_status IS NULL AND e.starts_at <= ? AND e.starts_at > ?))", []any{now, activeFrom}
	default:
		return "(e.pinned_status = 'closed' OR (e.pinned_status IS NULL AND e.starts_at <= ?))", []any{activeFrom}
	}
}

// UpdateCatalog writes the fields set in u. Seat columns are never part of
// the statement.
func (r *EventRepo) UpdateCatalog(ctx context.Context, id uint64, u model.CatalogUpdate) error {
	sets := []string{}
	args := []any{}
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if u.Title != nil {
		add("title", *u.Title)
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if u.Category != nil {
		add("category", *u.Category)
	}
	if u.Venue != nil {
		add("venue", *u.Venue)
	}
	if u.ImageURL != nil {
		add("image_url", *u.ImageURL)
	}
	if u.StartsAt != nil {
		add("starts_at", u.StartsAt.UTC())
	}
	if u.PriceCents != nil {
		add("price_cents", *u.PriceCents)
	}
	if u.PinnedStatus != nil {
		add("pinned_status", nullStatus(*u.PinnedStatus))
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	res, err := r.db.ExecContext(ctx, "UPDATE events SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		err := r.db.QueryRowContext(ctx, "SELECT 1 FROM events WHERE id = ?", id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrEventNotFound
		}
		return err
	}
	return nil
}

// Delete removes an event and its seats unless a live ticket exists.
// Cancelled tickets stay in the ledger.
func (r *EventRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM events
		WHERE id = ? AND NOT EXISTS (SELECT 1 FROM tickets t WHERE t.event_id = ? AND t.live_seat IS NOT NULL)`,
		id, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var exists int
	err = r.db.QueryRowContext(ctx, "SELECT 1 FROM events WHERE id = ?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrEventNotFound
	}
	if err != nil {
		return err
	}
	return model.ErrEventHasTickets
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner, ev *model.Event) error {
	var (
		category, image sql.NullString
		pinned          sql.NullString
	)
	if err := row.Scan(&ev.ID, &ev.Title, &ev.Description, &category, &ev.Venue, &image, &ev.StartsAt,
		&ev.PriceCents, &ev.TotalSeats, &ev.AvailableSeats, &pinned, &ev.CreatedBy, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
		return err
	}
	ev.Category = category.String
	ev.ImageURL = image.String
	ev.PinnedStatus = model.EventStatus(pinned.String)
	return nil
}

func nullStatus(s model.EventStatus) any {
	if s == "" {
		return nil
	}
	return string(s)
}
