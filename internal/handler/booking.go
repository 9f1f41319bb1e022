package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/iliyamo/event-seat-booking/internal/model"
	"github.com/iliyamo/event-seat-booking/internal/service"
)

// Reservations is the booking surface the HTTP layer drives;
// *service.Coordinator implements it.
type Reservations interface {
	Reserve(ctx context.Context, p model.Principal, eventID uint64, selections []service.SeatSelection) (*service.BookingBatch, error)
	ManualReserve(ctx context.Context, operator model.Principal, eventID uint64, seatIDs []uint64, guestName string, comment *string, entry model.EntryType) (*service.BookingBatch, error)
	Amend(ctx context.Context, p model.Principal, bookingID uint64, a service.Amendment) error
	Cancel(ctx context.Context, p model.Principal, bookingID uint64) (*model.Booking, error)
	SetPickup(ctx context.Context, operator model.Principal, bookingID uint64, pickedUp bool) (*model.Booking, error)
	BookingsForPrincipal(ctx context.Context, p model.Principal, eventID uint64) ([]model.Booking, error)
	EventBookings(ctx context.Context, operator model.Principal, eventID uint64) ([]model.Booking, error)
	BatchByCode(ctx context.Context, p model.Principal, eventID uint64, code string) (*service.BookingBatch, error)
	LookupCode(ctx context.Context, operator model.Principal, code string) (*service.BookingBatch, error)
	Availability(ctx context.Context, eventID uint64) (*service.Availability, error)
	Layout(ctx context.Context, eventID uint64) ([]service.LayoutBlock, error)
}

var _ Reservations = (*service.Coordinator)(nil)

// BookingHandler serves the booking endpoints of users and admins.
type BookingHandler struct {
	Bookings Reservations
	Cache    Invalidator // may be nil
}

func NewBookingHandler(r Reservations, cache Invalidator) *BookingHandler {
	return &BookingHandler{Bookings: r, Cache: cache}
}

// ----- DTOs -----

type seatReq struct {
	SeatID  uint64  `json:"seat_id" validate:"required"`
	Name    string  `json:"name" validate:"required,max=255"`
	Comment *string `json:"comment" validate:"omitempty,max=1000"`
}

type reserveReq struct {
	Seats []seatReq `json:"seats" validate:"required,min=1,dive"`
}

type amendReq struct {
	Name    *string `json:"name" validate:"omitempty,max=255"`
	Comment *string `json:"comment" validate:"omitempty,max=1000"`
}

func (h *BookingHandler) invalidate(ctx context.Context, eventID uint64) {
	if h.Cache != nil {
		h.Cache.Invalidate(context.WithoutCancel(ctx), LayoutPath(eventID))
	}
}

// Reserve books the requested seats for the caller in one batch.
func (h *BookingHandler) Reserve(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	eventID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	var req reserveReq
	if err := bindValid(c, &req); err != nil {
		return badRequest(c, err)
	}
	selections := lo.Map(req.Seats, func(s seatReq, _ int) service.SeatSelection {
		return service.SeatSelection{SeatID: s.SeatID, Name: s.Name, Comment: s.Comment}
	})

	ctx, cancel := reqCtx(c)
	defer cancel()

	batch, err := h.Bookings.Reserve(ctx, p, eventID, selections)
	if err != nil {
		return writeError(c, err)
	}
	h.invalidate(ctx, eventID)
	return c.JSON(http.StatusCreated, batch)
}

// Mine lists the caller's bookings for an event.
func (h *BookingHandler) Mine(c echo.Context) error {
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

	items, err := h.Bookings.BookingsForPrincipal(ctx, p, eventID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": items})
}

// Confirmed returns the batch behind a booking code, as shown on the
// confirmation page.
func (h *BookingHandler) Confirmed(c echo.Context) error {
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

	batch, err := h.Bookings.BatchByCode(ctx, p, eventID, c.Param("code"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, batch)
}

// Amend changes the name or comment of a booking.
func (h *BookingHandler) Amend(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	var req amendReq
	if err := bindValid(c, &req); err != nil {
		return badRequest(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Bookings.Amend(ctx, p, id, service.Amendment{Name: req.Name, Comment: req.Comment}); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Cancel deletes a booking and frees its seat.
func (h *BookingHandler) Cancel(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	b, err := h.Bookings.Cancel(ctx, p, id)
	if err != nil {
		return writeError(c, err)
	}
	h.invalidate(ctx, b.EventID)
	return c.NoContent(http.StatusNoContent)
}
