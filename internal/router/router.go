package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/event-seat-booking/internal/handler"
	"github.com/iliyamo/event-seat-booking/internal/middleware"
	"github.com/iliyamo/event-seat-booking/internal/model"
)

// RegisterRoutes registers the operational endpoints: the health check
// and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers authentication routes.  Register, login, refresh
// and logout live under /v1/auth without a session; /v1/me needs a valid
// access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	// logout takes a refresh token in the body or a bearer token, so it is
	// not behind JWTAuth
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me,
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleUser, model.RoleAdmin),
	)
}

// RegisterPublic registers the unauthenticated seat picker reads.  The
// layout is served through the response cache; booking writes invalidate
// it per event.
func RegisterPublic(e *echo.Echo, b *handler.BookingHandler, cache *middleware.ResponseCache) {
	e.GET("/v1/events/:id/availability", b.Availability)
	e.GET("/v1/events/:id/layout", b.Layout, cache.Middleware())
}
