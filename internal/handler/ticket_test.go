package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mw "github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/service"
)

type mockTickets struct{ mock.Mock }

func (m *mockTickets) Reserve(ctx context.Context, a service.Actor, cmd service.ReserveCommand) (*service.Reservation, error) {
	args := m.Called(ctx, a, cmd)
	res, _ := args.Get(0).(*service.Reservation)
	return res, args.Error(1)
}

func (m *mockTickets) Cancel(ctx context.Context, a service.Actor, id string) (*model.Ticket, error) {
	args := m.Called(ctx, a, id)
	t, _ := args.Get(0).(*model.Ticket)
	return t, args.Error(1)
}

func (m *mockTickets) Use(ctx context.Context, a service.Actor, id string) (*model.Ticket, error) {
	args := m.Called(ctx, a, id)
	t, _ := args.Get(0).(*model.Ticket)
	return t, args.Error(1)
}

func (m *mockTickets) ValidateProof(ctx context.Context, a service.Actor, token string) (*model.Ticket, error) {
	args := m.Called(ctx, a, token)
	t, _ := args.Get(0).(*model.Ticket)
	return t, args.Error(1)
}

func (m *mockTickets) Proof(ctx context.Context, a service.Actor, id string) (service.Proof, error) {
	args := m.Called(ctx, a, id)
	return args.Get(0).(service.Proof), args.Error(1)
}

type listerFunc func(ctx context.Context, userID uint64) ([]repository.TicketDetail, error)

func (f listerFunc) ListByUser(ctx context.Context, userID uint64) ([]repository.TicketDetail, error) {
	return f(ctx, userID)
}

func ticketServer(svc TicketService, lister UserTicketLister) *echo.Echo {
	h := NewTicketHandler(svc, lister, time.Second, zap.NewNop())
	e := newEcho()
	auth := mw.JWTAuth(testSecret)
	e.POST("/v1/tickets/book", h.Book, auth)
	e.POST("/v1/tickets/checkout", h.Checkout, auth)
	e.GET("/v1/tickets/mine", h.Mine, auth)
	e.PUT("/v1/tickets/:id/cancel", h.Cancel, auth)
	e.PUT("/v1/tickets/:id/use", h.Use, auth)
	e.POST("/v1/tickets/validate-proof", h.ValidateProof, auth)
	e.GET("/v1/tickets/:id/proof", h.Proof, auth)
	return e
}

func TestBook(t *testing.T) {
	svc := &mockTickets{}
	ticket := &model.Ticket{ID: uuid.NewString(), EventID: 3, UserID: 7, SeatNumber: 12, Status: model.TicketBooked}
	svc.On("Reserve", mock.Anything, service.Actor{ID: 7, Role: model.RoleAttendee}, service.ReserveCommand{
		EventID: 3, SeatNumber: 12, IdempotencyKey: "k-1",
	}).Return(&service.Reservation{Ticket: ticket, EventTitle: "Gig", Proof: service.Proof{Token: "p"}}, nil).Once()

	rec := do(t, ticketServer(svc, nil), call{
		method: http.MethodPost, path: "/v1/tickets/book", userID: 7,
		body:   `{"event_id":3,"seat_number":12}`,
		header: map[string]string{HeaderIdempotencyKey: "k-1"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got service.Reservation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, ticket.ID, got.Ticket.ID)
	assert.Equal(t, "p", got.Proof.Token)
	svc.AssertExpectations(t)
}

func TestBookErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"seat taken", `{"event_id":3,"seat_number":1}`, model.ErrSeatNotAvailable, http.StatusConflict},
		{"out of range", `{"event_id":3,"seat_number":999}`, model.ErrSeatOutOfRange, http.StatusBadRequest},
		{"unknown event", `{"event_id":4,"seat_number":1}`, model.ErrEventNotFound, http.StatusNotFound},
		{"other buyer", `{"event_id":3,"seat_number":1,"buyer_id":99}`, model.ErrNotAuthorized, http.StatusForbidden},
		{"timeout", `{"event_id":3,"seat_number":1}`, context.DeadlineExceeded, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockTickets{}
			svc.On("Reserve", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err).Once()
			rec := do(t, ticketServer(svc, nil), call{method: http.MethodPost, path: "/v1/tickets/book", userID: 7, body: tt.body})
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestBookValidation(t *testing.T) {
	svc := &mockTickets{}
	e := ticketServer(svc, nil)

	for _, body := range []string{`{"seat_number":1}`, `{"event_id":3,"seat_number":0}`, `not json`} {
		rec := do(t, e, call{method: http.MethodPost, path: "/v1/tickets/book", userID: 7, body: body})
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	rec := do(t, e, call{method: http.MethodPost, path: "/v1/tickets/book", body: `{"event_id":3,"seat_number":1}`})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	svc.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckoutPassesPayment(t *testing.T) {
	svc := &mockTickets{}
	svc.On("Reserve", mock.Anything, mock.Anything, mock.MatchedBy(func(cmd service.ReserveCommand) bool {
		return cmd.Payment != nil && cmd.Payment.AmountCents == 2500 && cmd.Payment.CardLast4 == "4242"
	})).Return(nil, model.ErrAmountMismatch).Once()

	rec := do(t, ticketServer(svc, nil), call{
		method: http.MethodPost, path: "/v1/tickets/checkout", userID: 7,
		body: `{"event_id":3,"seat_number":1,"amount_cents":2500,"card_last4":"4242"}`,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertExpectations(t)

	rec = do(t, ticketServer(svc, nil), call{
		method: http.MethodPost, path: "/v1/tickets/checkout", userID: 7,
		body: `{"event_id":3,"seat_number":1,"amount_cents":2500,"card_last4":"42"}`,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelAndUse(t *testing.T) {
	id := uuid.NewString()
	svc := &mockTickets{}
	svc.On("Cancel", mock.Anything, service.Actor{ID: 7, Role: model.RoleAttendee}, id).
		Return(&model.Ticket{ID: id, Status: model.TicketCancelled}, nil).Once()
	svc.On("Use", mock.Anything, service.Actor{ID: 1, Role: model.RoleAdmin}, id).
		Return(nil, model.ErrInvalidState).Once()
	e := ticketServer(svc, nil)

	rec := do(t, e, call{method: http.MethodPut, path: "/v1/tickets/" + id + "/cancel", userID: 7})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"cancelled"`)

	rec = do(t, e, call{method: http.MethodPut, path: "/v1/tickets/" + id + "/use", userID: 1, role: model.RoleAdmin})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, e, call{method: http.MethodPut, path: "/v1/tickets/not-a-uuid/cancel", userID: 7})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertExpectations(t)
}

func TestValidateProof(t *testing.T) {
	svc := &mockTickets{}
	svc.On("ValidateProof", mock.Anything, mock.Anything, "good").Return(&model.Ticket{ID: "t", Status: model.TicketUsed}, nil)
	svc.On("ValidateProof", mock.Anything, mock.Anything, "bad").Return(nil, model.ErrInvalidOrExpiredProof)
	e := ticketServer(svc, nil)

	rec := do(t, e, call{method: http.MethodPost, path: "/v1/tickets/validate-proof", userID: 1, role: model.RoleAdmin, body: `{"token":"good"}`})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"valid":true`)

	rec = do(t, e, call{method: http.MethodPost, path: "/v1/tickets/validate-proof", userID: 1, role: model.RoleAdmin, body: `{"token":"bad"}`})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMine(t *testing.T) {
	var gotUser uint64
	lister := listerFunc(func(_ context.Context, userID uint64) ([]repository.TicketDetail, error) {
		gotUser = userID
		return nil, nil
	})
	rec := do(t, ticketServer(&mockTickets{}, lister), call{method: http.MethodGet, path: "/v1/tickets/mine", userID: 5})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(5), gotUser)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
}

func TestProof(t *testing.T) {
	id := uuid.NewString()
	svc := &mockTickets{}
	svc.On("Proof", mock.Anything, mock.Anything, id).Return(service.Proof{Token: "tok"}, nil)

	rec := do(t, ticketServer(svc, nil), call{method: http.MethodGet, path: "/v1/tickets/" + id + "/proof", userID: 5})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"token":"tok"`)
}
