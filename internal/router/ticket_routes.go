package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/handler"
)

func registerTickets(v1 *echo.Group, h *handler.TicketHandler, authed, admin []echo.MiddlewareFunc, limiter echo.MiddlewareFunc) {
	booking := append(authed[:len(authed):len(authed)], limiter)

	v1.POST("/tickets/book", h.Book, booking...)
	v1.POST("/tickets/checkout", h.Checkout, booking...)
	v1.GET("/tickets/mine", h.Mine, authed...)
	v1.GET("/tickets/:id/proof", h.Proof, authed...)
	v1.PUT("/tickets/:id/cancel", h.Cancel, authed...)

	v1.PUT("/tickets/:id/use", h.Use, admin...)
	v1.POST("/tickets/validate-proof", h.ValidateProof, admin...)
}

func registerNotifications(v1 *echo.Group, h *handler.NotificationHandler, authed, admin []echo.MiddlewareFunc) {
	v1.GET("/notifications", h.List, authed...)
	v1.GET("/notifications/unread", h.Unread, authed...)
	v1.PUT("/notifications/read-all", h.MarkAllRead, authed...)
	v1.PUT("/notifications/:id/read", h.MarkRead, authed...)
	v1.POST("/notifications", h.Create, admin...)
}
