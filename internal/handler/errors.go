package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	mw "github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/service"
)

// requestError is a client mistake caught before any service call.
type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error { return &requestError{msg: msg} }

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps domain errors to an HTTP status and a stable code.
func statusFor(err error) (int, string) {
	var re *requestError
	switch {
	case errors.As(err, &re):
		return http.StatusBadRequest, "bad_request"
	case model.IsNotFound(err), errors.Is(err, repository.ErrUserNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrNotAuthorized), errors.Is(err, model.ErrCreatorBooking):
		return http.StatusForbidden, "forbidden"
	case model.IsContention(err):
		return http.StatusConflict, "seat_conflict"
	case errors.Is(err, model.ErrRequestInProgress):
		return http.StatusConflict, "request_in_progress"
	case errors.Is(err, model.ErrEventHasTickets), errors.Is(err, model.ErrInvalidState):
		return http.StatusConflict, "conflict"
	case errors.Is(err, model.ErrInvalidOrExpiredProof):
		return http.StatusUnauthorized, "invalid_proof"
	case model.IsPrecondition(err):
		return http.StatusBadRequest, "precondition_failed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "timeout"
	}
	return http.StatusInternalServerError, "internal"
}

// respondError writes the JSON error for err. Server-side failures are
// logged and their detail hidden from the client.
func respondError(c echo.Context, log *zap.Logger, err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	status, code := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("path", c.Path()),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			zap.Error(err))
		if status == http.StatusInternalServerError {
			msg = "internal error"
			if errors.Is(err, model.ErrReservationFailed) {
				msg = model.ErrReservationFailed.Error()
			}
		} else {
			msg = "request timed out; retry with the same Idempotency-Key"
		}
	}
	return c.JSON(status, errorBody{Error: msg, Code: code})
}

func actorFrom(c echo.Context) (service.Actor, error) {
	id, ok := mw.UserID(c)
	if !ok {
		return service.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return service.Actor{ID: id, Role: mw.Role(c)}, nil
}

func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, badRequest("invalid " + name)
	}
	return id, nil
}

func pathInt(c echo.Context, name string) (int, error) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil {
		return 0, badRequest("invalid " + name)
	}
	return n, nil
}
