package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Availability returns remaining capacity and the booked seat ids of an
// event.  No authentication is required.
func (h *BookingHandler) Availability(c echo.Context) error {
	eventID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	av, err := h.Bookings.Availability(ctx, eventID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, av)
}

// Layout returns the seats of the event's room grouped by block and row,
// each flagged booked or free.
func (h *BookingHandler) Layout(c echo.Context) error {
	eventID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	blocks, err := h.Bookings.Layout(ctx, eventID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"event_id": eventID, "blocks": blocks})
}
