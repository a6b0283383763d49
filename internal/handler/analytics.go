package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// AnalyticsStore answers the admin reporting queries.
type AnalyticsStore interface {
	Dashboard(ctx context.Context) (*model.DashboardStats, error)
	PerEvent(ctx context.Context) ([]model.EventStats, error)
	EventStats(ctx context.Context, id uint64) (*model.EventStats, error)
	Revenue(ctx context.Context, q model.RevenueQuery) ([]model.RevenuePoint, error)
}

type AnalyticsHandler struct {
	Store AnalyticsStore
	Log   *zap.Logger
}

func NewAnalyticsHandler(store AnalyticsStore, log *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{Store: store, Log: log.Named("analytics")}
}

// Dashboard: GET /v1/analytics/dashboard
func (h *AnalyticsHandler) Dashboard(c echo.Context) error {
	s, err := h.Store.Dashboard(c.Request().Context())
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, s)
}

// PerEvent: GET /v1/analytics/per-event
func (h *AnalyticsHandler) PerEvent(c echo.Context) error {
	items, err := h.Store.PerEvent(c.Request().Context())
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"events": items})
}

// Event: GET /v1/analytics/events/:id
func (h *AnalyticsHandler) Event(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	s, err := h.Store.EventStats(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, s)
}

// Revenue: GET /v1/analytics/revenue?from=&to=&granularity=day|month
func (h *AnalyticsHandler) Revenue(c echo.Context) error {
	var (
		q   model.RevenueQuery
		err error
	)
	if q.Granularity, err = model.ParseGranularity(c.QueryParam("granularity")); err != nil {
		return respondError(c, h.Log, badRequest("granularity must be day or month"))
	}
	if q.From, err = queryTime(c, "from"); err != nil {
		return respondError(c, h.Log, err)
	}
	if q.To, err = queryTime(c, "to"); err != nil {
		return respondError(c, h.Log, err)
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return respondError(c, h.Log, badRequest("to must not be before from"))
	}

	points, err := h.Store.Revenue(c.Request().Context(), q)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"granularity": q.Granularity, "points": points})
}
