package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/config"
	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/utils"
)

const secret = "router-secret"

func newServer() *echo.Echo {
	log := zap.NewNop()
	e := echo.New()
	e.Validator = handler.NewValidator()
	RegisterRoutes(e, Handlers{
		Auth:          handler.NewAuthHandler(config.Config{JWTSecret: secret}, nil, nil, log),
		Events:        handler.NewEventHandler(nil, nil, log),
		Tickets:       handler.NewTicketHandler(nil, nil, time.Second, log),
		Notifications: handler.NewNotificationHandler(nil, log),
		Analytics:     handler.NewAnalyticsHandler(nil, log),
	}, Options{JWTSecret: secret, Log: log})
	return e
}

func TestRouteGuards(t *testing.T) {
	e := newServer()
	attendee, err := utils.NewAccessToken(secret, 5, model.RoleAttendee, 5)
	require.NoError(t, err)

	tests := []struct {
		method, path string
		token        string
		want         int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/v1/me", "", http.StatusUnauthorized},
		{http.MethodPost, "/v1/tickets/book", "", http.StatusUnauthorized},
		{http.MethodGet, "/v1/tickets/mine", "", http.StatusUnauthorized},
		{http.MethodPost, "/v1/events", attendee.Token, http.StatusForbidden},
		{http.MethodPatch, "/v1/events/1", attendee.Token, http.StatusForbidden},
		{http.MethodPut, "/v1/events/1/seats/total", attendee.Token, http.StatusForbidden},
		{http.MethodPut, "/v1/events/1/seats/2/block", attendee.Token, http.StatusForbidden},
		{http.MethodGet, "/v1/events/1/tickets", attendee.Token, http.StatusForbidden},
		{http.MethodPut, "/v1/tickets/x/use", attendee.Token, http.StatusForbidden},
		{http.MethodPost, "/v1/tickets/validate-proof", attendee.Token, http.StatusForbidden},
		{http.MethodPost, "/v1/notifications", attendee.Token, http.StatusForbidden},
		{http.MethodGet, "/v1/analytics/dashboard", "", http.StatusUnauthorized},
		{http.MethodGet, "/v1/analytics/dashboard", attendee.Token, http.StatusForbidden},
		{http.MethodGet, "/v1/analytics/per-event", attendee.Token, http.StatusForbidden},
		{http.MethodGet, "/v1/analytics/events/1", attendee.Token, http.StatusForbidden},
		{http.MethodGet, "/v1/analytics/revenue", attendee.Token, http.StatusForbidden},
		{http.MethodGet, "/v1/nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set(echo.HeaderAuthorization, "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
