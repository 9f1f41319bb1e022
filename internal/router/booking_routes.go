package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-seat-booking/internal/handler"
	"github.com/iliyamo/event-seat-booking/internal/middleware"
	"github.com/iliyamo/event-seat-booking/internal/model"
)

// RegisterBookings registers the attendee endpoints under /v1.  Every route
// needs a JWT with the USER or ADMIN role; writes additionally pass through
// the booking rate limiter since they take row locks.
func RegisterBookings(e *echo.Echo, h *handler.BookingHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleUser, model.RoleAdmin),
	)
	g.POST("/events/:id/bookings", h.Reserve, limit)
	g.GET("/events/:id/bookings/mine", h.Mine)
	g.GET("/events/:id/bookings/confirmed/:code", h.Confirmed)
	g.PATCH("/bookings/:id", h.Amend, limit)
	g.DELETE("/bookings/:id", h.Cancel, limit)
}

// RegisterAdmin registers operator endpoints under /v1/admin.  All routes
// require the ADMIN role.
func RegisterAdmin(e *echo.Echo, h *handler.BookingHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.POST("/events/:id/bookings", h.ManualReserve)
	g.GET("/events/:id/bookings", h.EventBookings)
	g.GET("/bookings/lookup", h.Lookup)
	g.PUT("/bookings/:id/pickup", h.Pickup)
	g.PATCH("/bookings/:id", h.Amend)
	g.DELETE("/bookings/:id", h.Cancel)
}
