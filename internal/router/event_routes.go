package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/handler"
)

func registerEvents(v1 *echo.Group, h *handler.EventHandler, authed, admin []echo.MiddlewareFunc, cache echo.MiddlewareFunc) {
	// public browse, cached
	v1.GET("/events", h.List, cache)
	v1.GET("/events/:id", h.Get, cache)
	v1.GET("/events/:id/seats", h.Seats, cache)

	// catalog management
	v1.POST("/events", h.Create, admin...)
	v1.PATCH("/events/:id", h.Update, admin...)
	v1.DELETE("/events/:id", h.Delete, admin...)
	v1.PUT("/events/:id/seats/total", h.Resize, admin...)
	v1.PUT("/events/:id/seats/:number/block", h.Block, admin...)
	v1.DELETE("/events/:id/seats/:number/block", h.Unblock, admin...)
	v1.GET("/events/:id/tickets", h.Tickets, admin...)
}

func registerAnalytics(v1 *echo.Group, h *handler.AnalyticsHandler, admin []echo.MiddlewareFunc) {
	v1.GET("/analytics/dashboard", h.Dashboard, admin...)
	v1.GET("/analytics/per-event", h.PerEvent, admin...)
	v1.GET("/analytics/events/:id", h.Event, admin...)
	v1.GET("/analytics/revenue", h.Revenue, admin...)
}
