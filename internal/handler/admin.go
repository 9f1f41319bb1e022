package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-seat-booking/internal/model"
)

type manualReq struct {
	SeatIDs []uint64 `json:"seat_ids" validate:"required,min=1,dive,required"`
	Name    string   `json:"name" validate:"required,max=255"`
	Comment *string  `json:"comment" validate:"omitempty,max=1000"`
	Type    string   `json:"type" validate:"omitempty,oneof=admin manual"`
}

type pickupReq struct {
	PickedUp *bool `json:"picked_up" validate:"required"`
}

// ManualReserve enters bookings for a guest at the box office.
func (h *BookingHandler) ManualReserve(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	eventID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	var req manualReq
	if err := bindValid(c, &req); err != nil {
		return badRequest(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	batch, err := h.Bookings.ManualReserve(ctx, p, eventID, req.SeatIDs, req.Name, req.Comment, model.EntryType(req.Type))
	if err != nil {
		return writeError(c, err)
	}
	h.invalidate(ctx, eventID)
	return c.JSON(http.StatusCreated, batch)
}

// EventBookings lists every booking of an event.
func (h *BookingHandler) EventBookings(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	eventID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	items, err := h.Bookings.EventBookings(ctx, p, eventID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": items})
}

// Lookup finds a batch by the code a guest reads out at the desk.
func (h *BookingHandler) Lookup(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	code := strings.TrimSpace(c.QueryParam("code"))
	if code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code required"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	batch, err := h.Bookings.LookupCode(ctx, p, code)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, batch)
}

// Pickup marks a booking's ticket as handed out, or undoes that.
func (h *BookingHandler) Pickup(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	var req pickupReq
	if err := bindValid(c, &req); err != nil {
		return badRequest(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	b, err := h.Bookings.SetPickup(ctx, p, id, *req.PickedUp)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}
