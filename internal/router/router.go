// Package router wires handlers and middleware onto echo routes.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/config"
	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/model"
)

// Handlers groups the HTTP handlers the router mounts.
type Handlers struct {
	Auth          *handler.AuthHandler
	Events        *handler.EventHandler
	Tickets       *handler.TicketHandler
	Notifications *handler.NotificationHandler
	Analytics     *handler.AnalyticsHandler
	DB            handler.Pinger
}

// Options carries the middleware settings. Redis may be nil, which turns
// rate limiting and caching into no-ops.
type Options struct {
	JWTSecret        string
	Redis            *redis.Client
	RateLimit        config.RateLimitConfig
	BookingRateLimit config.RateLimitConfig
	Cache            config.CacheConfig
	Log              *zap.Logger
}

// RegisterRoutes mounts the whole API. Middleware is attached per route
// rather than per group so that /v1 groups with different guards never
// shadow each other's not-found handling.
func RegisterRoutes(e *echo.Echo, h Handlers, o Options) {
	e.Use(middleware.NewTokenBucket(o.RateLimit, o.Redis, o.Log))
	e.GET("/healthz", handler.Health(h.DB))

	authed := []echo.MiddlewareFunc{middleware.JWTAuth(o.JWTSecret)}
	admin := append(authed[:len(authed):len(authed)], middleware.RequireRole(model.RoleAdmin))

	v1 := e.Group("/v1")
	registerAuth(v1, h.Auth, authed)
	registerEvents(v1, h.Events, authed, admin, middleware.NewRedisCache(o.Cache, o.Redis, o.Log))
	registerTickets(v1, h.Tickets, authed, admin, middleware.NewTokenBucket(o.BookingRateLimit, o.Redis, o.Log))
	registerNotifications(v1, h.Notifications, authed, admin)
	registerAnalytics(v1, h.Analytics, admin)
}

func registerAuth(v1 *echo.Group, a *handler.AuthHandler, authed []echo.MiddlewareFunc) {
	g := v1.Group("/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout, authed...)

	v1.GET("/me", a.Me, authed...)
}
