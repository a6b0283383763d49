package repository

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/model"
)

// openTestDB connects to TEST_MYSQL_DSN and applies the schema. Tests using
// it are skipped when the variable is unset.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN not set")
	}
	ctx := context.Background()
	db, err := database.OpenDSN(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(ctx, db))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createEvent(t *testing.T, db *sql.DB, seats int) *model.Event {
	t.Helper()
	ev := &model.Event{
		Title:      "Integration " + uuid.NewString()[:8],
		Venue:      "Test Hall",
		StartsAt:   time.Now().Add(72 * time.Hour),
		PriceCents: 1500,
		TotalSeats: seats,
		CreatedBy:  1,
	}
	require.NoError(t, NewEventRepo(db).Create(context.Background(), ev))
	t.Cleanup(func() {
		_, _ = db.Exec("DELETE FROM tickets WHERE event_id = ?", ev.ID)
		_, _ = db.Exec("DELETE FROM events WHERE id = ?", ev.ID)
	})
	return ev
}

func assertConsistent(t *testing.T, db *sql.DB, id uint64) *model.Event {
	t.Helper()
	ev, err := NewEventRepo(db).GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, ev.CheckInventory())
	return ev
}

func TestInventoryClaimIsExclusive(t *testing.T) {
	db := openTestDB(t)
	ev := createEvent(t, db, 3)
	inv := NewInventoryRepo(db)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := inv.TryClaim(context.Background(), ev.ID, 2, model.SeatAvailable)
			if err == nil {
				wins.Add(1)
				return
			}
			assert.True(t, model.IsContention(err), "unexpected error: %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	got := assertConsistent(t, db, ev.ID)
	assert.Equal(t, 2, got.AvailableSeats)
}

func TestInventoryFailureClassification(t *testing.T) {
	db := openTestDB(t)
	ev := createEvent(t, db, 1)
	inv := NewInventoryRepo(db)
	ctx := context.Background()

	assert.ErrorIs(t, inv.TryClaim(ctx, ev.ID, 2, model.SeatAvailable), model.ErrSeatOutOfRange)
	assert.ErrorIs(t, inv.TryClaim(ctx, ev.ID+1_000_000, 1, model.SeatAvailable), model.ErrEventNotFound)
	require.NoError(t, inv.TryClaim(ctx, ev.ID, 1, model.SeatAvailable))
	assert.ErrorIs(t, inv.TryClaim(ctx, ev.ID, 1, model.SeatBooked), model.ErrSeatNotAvailable)
	assert.ErrorIs(t, inv.TryClaim(ctx, ev.ID, 1, model.SeatAvailable), model.ErrConcurrentConflict)

	require.NoError(t, inv.Release(ctx, ev.ID, 1))
	assert.ErrorIs(t, inv.Release(ctx, ev.ID, 1), model.ErrSeatNotBooked)
	assertConsistent(t, db, ev.ID)
}

func TestInventoryResize(t *testing.T) {
	db := openTestDB(t)
	ev := createEvent(t, db, 4)
	inv := NewInventoryRepo(db)
	ctx := context.Background()

	require.NoError(t, inv.TryClaim(ctx, ev.ID, 4, model.SeatAvailable))
	assert.ErrorIs(t, inv.Resize(ctx, ev.ID, 3), model.ErrSeatReductionBlocked)
	assert.ErrorIs(t, inv.Resize(ctx, ev.ID, 0), model.ErrInvalidTotalSeats)

	require.NoError(t, inv.Resize(ctx, ev.ID, 6))
	got := assertConsistent(t, db, ev.ID)
	assert.Equal(t, 6, got.TotalSeats)
	assert.Equal(t, 5, got.AvailableSeats)

	require.NoError(t, inv.Release(ctx, ev.ID, 4))
	require.NoError(t, inv.Resize(ctx, ev.ID, 2))
	got = assertConsistent(t, db, ev.ID)
	assert.Equal(t, 2, got.TotalSeats)
	assert.Len(t, got.Seats, 2)
}

func TestInventoryBlock(t *testing.T) {
	db := openTestDB(t)
	ev := createEvent(t, db, 2)
	inv := NewInventoryRepo(db)
	ctx := context.Background()

	require.NoError(t, inv.SetBlocked(ctx, ev.ID, 1, true))
	assert.ErrorIs(t, inv.TryClaim(ctx, ev.ID, 1, model.SeatBlocked), model.ErrSeatNotAvailable)
	assert.ErrorIs(t, inv.SetBlocked(ctx, ev.ID, 2, false), model.ErrSeatNotBlocked)
	require.NoError(t, inv.SetBlocked(ctx, ev.ID, 1, false))
	assert.Equal(t, 2, assertConsistent(t, db, ev.ID).AvailableSeats)
}

func TestTicketLedgerOneLivePerSeat(t *testing.T) {
	db := openTestDB(t)
	ev := createEvent(t, db, 1)
	tickets := NewTicketRepo(db)
	ctx := context.Background()

	newTicket := func() *model.Ticket {
		return &model.Ticket{ID: uuid.NewString(), EventID: ev.ID, UserID: 7, SeatNumber: 1,
			Status: model.TicketBooked, BookingDate: time.Now().UTC()}
	}
	first := newTicket()
	require.NoError(t, tickets.Insert(ctx, first))
	assert.ErrorIs(t, tickets.Insert(ctx, newTicket()), model.ErrDuplicateLiveTicket)

	live, err := tickets.FindLive(ctx, ev.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, live.ID)

	require.NoError(t, tickets.Cancel(ctx, first.ID, time.Now()))
	assert.ErrorIs(t, tickets.Cancel(ctx, first.ID, time.Now()), model.ErrInvalidState)
	assert.ErrorIs(t, tickets.MarkUsed(ctx, uuid.NewString(), time.Now()), model.ErrTicketNotFound)

	second := newTicket()
	require.NoError(t, tickets.Insert(ctx, second), "a cancelled ticket frees the seat")
}

func TestOrphanSweep(t *testing.T) {
	db := openTestDB(t)
	ev := createEvent(t, db, 2)
	inv := NewInventoryRepo(db)
	ctx := context.Background()

	require.NoError(t, inv.TryClaim(ctx, ev.ID, 1, model.SeatAvailable))
	require.NoError(t, inv.TryClaim(ctx, ev.ID, 2, model.SeatAvailable))
	require.NoError(t, NewTicketRepo(db).Insert(ctx, &model.Ticket{ID: uuid.NewString(), EventID: ev.ID, UserID: 7,
		SeatNumber: 2, Status: model.TicketBooked, BookingDate: time.Now().UTC()}))

	cutoff := time.Now().UTC().Add(time.Minute)
	refs, err := inv.OrphanedClaims(ctx, cutoff, 100)
	require.NoError(t, err)
	assert.Contains(t, refs, model.SeatRef{EventID: ev.ID, SeatNumber: 1})
	assert.NotContains(t, refs, model.SeatRef{EventID: ev.ID, SeatNumber: 2})

	ok, err := inv.ReleaseOrphan(ctx, model.SeatRef{EventID: ev.ID, SeatNumber: 2}, cutoff)
	require.NoError(t, err)
	assert.False(t, ok, "ticketed seat stays booked")

	ok, err = inv.ReleaseOrphan(ctx, model.SeatRef{EventID: ev.ID, SeatNumber: 1}, cutoff)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, assertConsistent(t, db, ev.ID).AvailableSeats)
}

func TestAnalyticsCountsLiveTickets(t *testing.T) {
	db := openTestDB(t)
	ev := createEvent(t, db, 4)
	tickets := NewTicketRepo(db)
	analytics := NewAnalyticsRepo(db)
	ctx := context.Background()

	before, err := analytics.Dashboard(ctx)
	require.NoError(t, err)

	day := func(m time.Month, d int) time.Time { return time.Date(2031, m, d, 12, 0, 0, 0, time.UTC) }
	booked := []struct {
		seat int
		at   time.Time
	}{{1, day(2, 3)}, {2, day(2, 3)}, {3, day(3, 9)}}
	var ids []string
	for _, b := range booked {
		tk := &model.Ticket{ID: uuid.NewString(), EventID: ev.ID, UserID: 7, SeatNumber: b.seat,
			Status: model.TicketBooked, AmountCents: 1500, BookingDate: b.at}
		require.NoError(t, tickets.Insert(ctx, tk))
		ids = append(ids, tk.ID)
	}
	require.NoError(t, tickets.MarkUsed(ctx, ids[0], time.Now()))
	require.NoError(t, tickets.Cancel(ctx, ids[2], time.Now()))

	st, err := analytics.EventStats(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Sold)
	assert.Equal(t, int64(3000), st.RevenueCents)
	assert.Equal(t, 50.0, st.Occupancy)

	_, err = analytics.EventStats(ctx, ev.ID+1_000_000)
	assert.ErrorIs(t, err, model.ErrEventNotFound)

	all, err := analytics.PerEvent(ctx)
	require.NoError(t, err)
	var found bool
	for _, s := range all {
		if s.ID == ev.ID {
			found = true
			assert.Equal(t, 2, s.Sold)
		}
	}
	assert.True(t, found)

	after, err := analytics.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.TicketsSold+2, after.TicketsSold)
	assert.Equal(t, before.RevenueCents+3000, after.RevenueCents)
	assert.LessOrEqual(t, len(after.RecentEvents), 5)

	from, to := day(1, 1), day(12, 31)
	points, err := analytics.Revenue(ctx, model.RevenueQuery{From: &from, To: &to, Granularity: model.ByDay})
	require.NoError(t, err)
	assert.Equal(t, []model.RevenuePoint{{Period: "2031-02-03", RevenueCents: 3000, Tickets: 2}}, points)

	monthly, err := analytics.Revenue(ctx, model.RevenueQuery{From: &from, To: &to, Granularity: model.ByMonth})
	require.NoError(t, err)
	assert.Equal(t, []model.RevenuePoint{{Period: "2031-02", RevenueCents: 3000, Tickets: 2}}, monthly)
}
