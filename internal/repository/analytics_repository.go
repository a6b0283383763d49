package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// dashboardListSize caps the recent and upcoming lists on the dashboard.
const dashboardListSize = 5

const liveTicket = "t.status IN ('booked','used')"

// AnalyticsRepo answers the admin reporting queries. Every figure is an
// aggregate over live tickets and their sold amount.
type AnalyticsRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewAnalyticsRepo(db *sql.DB) *AnalyticsRepo {
	return &AnalyticsRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Dashboard returns the overall counters plus the latest created and the
// next upcoming events.
func (r *AnalyticsRepo) Dashboard(ctx context.Context) (*model.DashboardStats, error) {
	var s model.DashboardStats
	err := r.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM events),
		(SELECT COUNT(*) FROM tickets t WHERE `+liveTicket+`),
		(SELECT COALESCE(SUM(t.amount_cents), 0) FROM tickets t WHERE `+liveTicket+`),
		(SELECT COUNT(*) FROM users WHERE role = 'ATTENDEE')`).
		Scan(&s.TotalEvents, &s.TicketsSold, &s.RevenueCents, &s.TotalAttendees)
	if err != nil {
		return nil, err
	}

	now := r.now()
	if s.RecentEvents, err = r.summaries(ctx, now,
		"1=1", "e.created_at DESC, e.id DESC"); err != nil {
		return nil, err
	}
	if s.UpcomingEvents, err = r.summaries(ctx, now,
		"e.starts_at >= ? AND (e.pinned_status IS NULL OR e.pinned_status <> 'closed')", "e.starts_at ASC, e.id ASC", now); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *AnalyticsRepo) summaries(ctx context.Context, now time.Time, where, order string, args ...any) ([]model.EventSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+eventColumns+", COALESCE(u.name, '') FROM events e LEFT JOIN users u ON u.id = e.created_by"+
			" WHERE "+where+" ORDER BY "+order+" LIMIT ?",
		append(args, dashboardListSize)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.EventSummary{}
	for rows.Next() {
		var (
			ev      model.Event
			creator string
		)
		if err := scanEvent(withExtra(rows, &creator), &ev); err != nil {
			return nil, err
		}
		out = append(out, model.EventSummary{
			ID:             ev.ID,
			Title:          ev.Title,
			Venue:          ev.Venue,
			StartsAt:       ev.StartsAt,
			Status:         ev.Status(now),
			AvailableSeats: ev.AvailableSeats,
			CreatedBy:      ev.CreatedBy,
			CreatorName:    creator,
			CreatedAt:      ev.CreatedAt,
		})
	}
	return out, rows.Err()
}

const eventStatsQuery = "SELECT " + eventColumns + ", COUNT(t.id), COALESCE(SUM(t.amount_cents), 0)" +
	" FROM events e LEFT JOIN tickets t ON t.event_id = e.id AND " + liveTicket

// PerEvent returns sales figures for every event ordered by start time.
func (r *AnalyticsRepo) PerEvent(ctx context.Context) ([]model.EventStats, error) {
	rows, err := r.db.QueryContext(ctx, eventStatsQuery+" GROUP BY e.id ORDER BY e.starts_at ASC, e.id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := r.now()
	out := []model.EventStats{}
	for rows.Next() {
		st, err := scanEventStats(rows, now)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// EventStats returns the sales figures of one event.
func (r *AnalyticsRepo) EventStats(ctx context.Context, id uint64) (*model.EventStats, error) {
	row := r.db.QueryRowContext(ctx, eventStatsQuery+" WHERE e.id = ? GROUP BY e.id", id)
	st, err := scanEventStats(row, r.now())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func scanEventStats(row rowScanner, now time.Time) (model.EventStats, error) {
	var (
		ev      model.Event
		sold    int
		revenue int64
	)
	if err := scanEvent(withExtra(row, &sold, &revenue), &ev); err != nil {
		return model.EventStats{}, err
	}
	return model.EventStats{
		ID:             ev.ID,
		Title:          ev.Title,
		Venue:          ev.Venue,
		StartsAt:       ev.StartsAt,
		Status:         ev.Status(now),
		PriceCents:     ev.PriceCents,
		TotalSeats:     ev.TotalSeats,
		AvailableSeats: ev.AvailableSeats,
		Sold:           sold,
		RevenueCents:   revenue,
		Occupancy:      model.OccupancyPercent(sold, ev.TotalSeats),
	}, nil
}

// Revenue buckets live-ticket revenue by booking day or month.
func (r *AnalyticsRepo) Revenue(ctx context.Context, q model.RevenueQuery) ([]model.RevenuePoint, error) {
	format := "%Y-%m-%d"
	if q.Granularity == model.ByMonth {
		format = "%Y-%m"
	}
	where := []string{liveTicket}
	args := []any{}
	if q.From != nil {
		where = append(where, "t.booking_date >= ?")
		args = append(args, q.From.UTC())
	}
	if q.To != nil {
		where = append(where, "t.booking_date <= ?")
		args = append(args, q.To.UTC())
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT DATE_FORMAT(t.booking_date, '"+format+"') AS period, COALESCE(SUM(t.amount_cents), 0), COUNT(*)"+
			" FROM tickets t WHERE "+strings.Join(where, " AND ")+
			" GROUP BY period ORDER BY period ASC",
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.RevenuePoint{}
	for rows.Next() {
		var p model.RevenuePoint
		if err := rows.Scan(&p.Period, &p.RevenueCents, &p.Tickets); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// extraScanner appends trailing columns after the ones its caller scans.
type extraScanner struct {
	row   rowScanner
	extra []any
}

func withExtra(row rowScanner, extra ...any) rowScanner {
	return extraScanner{row: row, extra: extra}
}

func (s extraScanner) Scan(dest ...any) error {
	return s.row.Scan(append(dest, s.extra...)...)
}
