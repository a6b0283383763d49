package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/model"
)

var errTransient = errors.New("transient storage failure")

// memStore is an in-memory event store, seat inventory and ticket ledger.
// Each method holds the lock for its whole body, so its conditional writes
// are as atomic as the SQL statements they stand in for.
type memStore struct {
	mu        sync.Mutex
	events    map[uint64]*model.Event
	claimedAt map[model.SeatRef]time.Time
	tickets   map[string]*model.Ticket
	nextID    uint64
	now       time.Time

	insertErr     error
	updateErr     error
	releaseFail   int
	releaseCalls  int
	getEventCalls int
}

func newMemStore() *memStore {
	return &memStore{
		events:    map[uint64]*model.Event{},
		claimedAt: map[model.SeatRef]time.Time{},
		tickets:   map[string]*model.Ticket{},
		now:       time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) addEvent(total int, priceCents int64, createdBy uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.events[s.nextID] = &model.Event{
		ID:             s.nextID,
		Title:          "Event " + string(rune('A'+s.nextID-1)),
		Venue:          "Hall",
		StartsAt:       s.now.Add(72 * time.Hour),
		PriceCents:     priceCents,
		TotalSeats:     total,
		AvailableSeats: total,
		Seats:          model.NewSeatMap(total),
		CreatedBy:      createdBy,
	}
	return s.nextID
}

func copyEvent(ev *model.Event) *model.Event {
	out := *ev
	out.Seats = append([]model.Seat(nil), ev.Seats...)
	return &out
}

func (s *memStore) snapshot(id uint64) *model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyEvent(s.events[id])
}

// EventStore / CatalogStore

func (s *memStore) GetByID(_ context.Context, id uint64) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getEventCalls++
	ev, ok := s.events[id]
	if !ok {
		return nil, model.ErrEventNotFound
	}
	return copyEvent(ev), nil
}

func (s *memStore) Create(_ context.Context, ev *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	ev.ID = s.nextID
	s.events[ev.ID] = copyEvent(ev)
	return nil
}

func (s *memStore) List(_ context.Context, f model.EventFilter) ([]model.Event, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Event
	for _, ev := range s.events {
		if f.Search != "" && !strings.Contains(strings.ToLower(ev.Title), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, *copyEvent(ev))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (s *memStore) UpdateCatalog(_ context.Context, id uint64, u model.CatalogUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	ev, ok := s.events[id]
	if !ok {
		return model.ErrEventNotFound
	}
	if u.Title != nil {
		ev.Title = *u.Title
	}
	if u.PriceCents != nil {
		ev.PriceCents = *u.PriceCents
	}
	if u.Venue != nil {
		ev.Venue = *u.Venue
	}
	return nil
}

func (s *memStore) Delete(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return model.ErrEventNotFound
	}
	for _, t := range s.tickets {
		if t.EventID == id && t.Status.IsLive() {
			return model.ErrEventHasTickets
		}
	}
	delete(s.events, id)
	return nil
}

// SeatInventory

func (s *memStore) seat(eventID uint64, n int) (*model.Event, *model.Seat, error) {
	ev, ok := s.events[eventID]
	if !ok {
		return nil, nil, model.ErrEventNotFound
	}
	if n < 1 || n > ev.TotalSeats {
		return nil, nil, model.ErrSeatOutOfRange
	}
	if len(ev.Seats) != ev.TotalSeats {
		return nil, nil, model.ErrSeatMapUninitialized
	}
	return ev, &ev.Seats[n-1], nil
}

func (s *memStore) TryClaim(_ context.Context, eventID uint64, n int, observed model.SeatStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, seat, err := s.seat(eventID, n)
	if err != nil {
		return err
	}
	if seat.Status != model.SeatAvailable {
		if observed == model.SeatAvailable {
			return model.ErrConcurrentConflict
		}
		return model.ErrSeatNotAvailable
	}
	if ev.AvailableSeats <= 0 {
		return model.ErrNoSeatsAvailable
	}
	seat.Status = model.SeatBooked
	ev.AvailableSeats--
	s.claimedAt[model.SeatRef{EventID: eventID, SeatNumber: n}] = s.now
	return nil
}

func (s *memStore) Release(_ context.Context, eventID uint64, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseCalls++
	if s.releaseFail > 0 {
		s.releaseFail--
		return errTransient
	}
	return s.releaseLocked(eventID, n)
}

func (s *memStore) releaseLocked(eventID uint64, n int) error {
	ev, seat, err := s.seat(eventID, n)
	if err != nil {
		return err
	}
	if seat.Status != model.SeatBooked {
		return model.ErrSeatNotBooked
	}
	seat.Status = model.SeatAvailable
	ev.AvailableSeats++
	delete(s.claimedAt, model.SeatRef{EventID: eventID, SeatNumber: n})
	return nil
}

func (s *memStore) Resize(_ context.Context, eventID uint64, newTotal int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[eventID]
	if !ok {
		return model.ErrEventNotFound
	}
	var above []model.Seat
	if newTotal >= 0 && newTotal < len(ev.Seats) {
		above = ev.Seats[newTotal:]
	}
	if err := model.CheckResize(ev.TotalSeats, ev.AvailableSeats, newTotal, above); err != nil {
		return err
	}
	if newTotal > ev.TotalSeats {
		for n := ev.TotalSeats + 1; n <= newTotal; n++ {
			ev.Seats = append(ev.Seats, model.Seat{Number: n, Status: model.SeatAvailable})
		}
	} else {
		ev.Seats = ev.Seats[:newTotal]
	}
	ev.AvailableSeats += newTotal - ev.TotalSeats
	ev.TotalSeats = newTotal
	return nil
}

func (s *memStore) SetBlocked(_ context.Context, eventID uint64, n int, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, seat, err := s.seat(eventID, n)
	if err != nil {
		return err
	}
	if blocked {
		if seat.Status != model.SeatAvailable {
			return model.ErrSeatNotAvailable
		}
		seat.Status = model.SeatBlocked
		ev.AvailableSeats--
		return nil
	}
	if seat.Status != model.SeatBlocked {
		return model.ErrSeatNotBlocked
	}
	seat.Status = model.SeatAvailable
	ev.AvailableSeats++
	return nil
}

func (s *memStore) SeatMap(_ context.Context, eventID uint64) ([]model.Seat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[eventID]
	if !ok {
		return nil, model.ErrEventNotFound
	}
	return append([]model.Seat(nil), ev.Seats...), nil
}

// OrphanSweeper

func (s *memStore) hasLiveLocked(ref model.SeatRef) bool {
	for _, t := range s.tickets {
		if t.EventID == ref.EventID && t.SeatNumber == ref.SeatNumber && t.Status.IsLive() {
			return true
		}
	}
	return false
}

func (s *memStore) OrphanedClaims(_ context.Context, before time.Time, limit int) ([]model.SeatRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.SeatRef
	for ref, at := range s.claimedAt {
		if at.Before(before) && !s.hasLiveLocked(ref) {
			out = append(out, ref)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventID != out[j].EventID {
			return out[i].EventID < out[j].EventID
		}
		return out[i].SeatNumber < out[j].SeatNumber
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ReleaseOrphan(_ context.Context, ref model.SeatRef, before time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.claimedAt[ref]
	if !ok || !at.Before(before) || s.hasLiveLocked(ref) {
		return false, nil
	}
	if err := s.releaseLocked(ref.EventID, ref.SeatNumber); err != nil {
		if errors.Is(err, model.ErrSeatNotBooked) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// TicketLedger

func (s *memStore) Insert(_ context.Context, t *model.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	if s.hasLiveLocked(model.SeatRef{EventID: t.EventID, SeatNumber: t.SeatNumber}) {
		return model.ErrDuplicateLiveTicket
	}
	cp := *t
	s.tickets[t.ID] = &cp
	return nil
}

func (s *memStore) ticketByID(id string) *model.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tickets[id]; ok {
		cp := *t
		return &cp
	}
	return nil
}

func (s *memStore) FindLive(_ context.Context, eventID uint64, n int) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tickets {
		if t.EventID == eventID && t.SeatNumber == n && t.Status.IsLive() {
			cp := *t
			return &cp, nil
		}
	}
	return nil, model.ErrTicketNotFound
}

func (s *memStore) transition(id string, to model.TicketStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return model.ErrTicketNotFound
	}
	if !t.Status.CanTransition(to) {
		return model.ErrInvalidState
	}
	t.Status = to
	if to == model.TicketUsed {
		t.UsedDate = &at
	} else {
		t.CancelledDate = &at
	}
	return nil
}

func (s *memStore) Cancel(_ context.Context, id string, at time.Time) error {
	return s.transition(id, model.TicketCancelled, at)
}

func (s *memStore) MarkUsed(_ context.Context, id string, at time.Time) error {
	return s.transition(id, model.TicketUsed, at)
}

func (s *memStore) liveTickets(eventID uint64) []*model.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Ticket
	for _, t := range s.tickets {
		if t.EventID == eventID && t.Status.IsLive() {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out
}

// ledgerView wraps memStore so GetByID resolves tickets instead of events.
type ledgerView struct{ *memStore }

func (l ledgerView) GetByID(_ context.Context, id string) (*model.Ticket, error) {
	if t := l.memStore.ticketByID(id); t != nil {
		return t, nil
	}
	return nil, model.ErrTicketNotFound
}

// requireConsistent checks the counter and seat-map invariants, that each
// seat has at most one live ticket and that every live ticket's seat is
// booked.
func requireConsistent(t *testing.T, s *memStore, eventID uint64) {
	t.Helper()
	ev := s.snapshot(eventID)
	require.NoError(t, ev.CheckInventory())

	seen := map[int]bool{}
	for _, tk := range s.liveTickets(eventID) {
		require.False(t, seen[tk.SeatNumber], "two live tickets for seat %d", tk.SeatNumber)
		seen[tk.SeatNumber] = true
		seat, ok := ev.SeatAt(tk.SeatNumber)
		require.True(t, ok)
		require.Equal(t, model.SeatBooked, seat.Status, "live ticket %s on seat %d", tk.ID, tk.SeatNumber)
	}
}

func testEngineConfig() EngineConfig {
	return EngineConfig{ReleaseAttempts: 3, ReleaseInitialInterval: time.Millisecond, ReleaseTimeout: time.Second}
}

func newTestEngine(s *memStore, proofs *ProofIssuer) *Engine {
	if proofs == nil {
		proofs = NewProofIssuer("test-proof-secret", time.Hour)
	}
	e := NewEngine(s, s, ledgerView{s}, proofs, zap.NewNop(), testEngineConfig())
	e.now = func() time.Time { return s.now }
	return e
}
