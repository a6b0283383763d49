package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/model"
)

func TestReconciler_RunOnce(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	eventID := s.addEvent(4, 1000, 1)
	e := newTestEngine(s, nil)

	// Seat 1 holds a live ticket.
	_, err := e.Reserve(ctx, ReserveInput{EventID: eventID, SeatNumber: 1, BuyerID: 2})
	require.NoError(t, err)
	// Seats 2 and 3 are claimed with no ticket; seat 3 only recently.
	require.NoError(t, s.TryClaim(ctx, eventID, 2, model.SeatAvailable))
	s.now = s.now.Add(10 * time.Minute)
	require.NoError(t, s.TryClaim(ctx, eventID, 3, model.SeatAvailable))

	r := NewReconciler(s, time.Minute, 5*time.Minute, zap.NewNop())
	r.now = func() time.Time { return s.now.Add(time.Minute) }

	n, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ev := s.snapshot(eventID)
	assert.Equal(t, model.SeatBooked, ev.Seats[0].Status)
	assert.Equal(t, model.SeatAvailable, ev.Seats[1].Status)
	assert.Equal(t, model.SeatBooked, ev.Seats[2].Status)
	assert.Equal(t, 2, ev.AvailableSeats)

	// Nothing left to do until seat 3 ages past the grace period.
	n, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	r.now = func() time.Time { return s.now.Add(6 * time.Minute) }
	n, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	requireConsistent(t, s, eventID)
}

func TestReconciler_RunStopsOnCancel(t *testing.T) {
	r := NewReconciler(newMemStore(), time.Millisecond, time.Minute, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}
