package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/event-seat-booking/internal/service"
)

// writeError maps a service error to its HTTP response.
func writeError(c echo.Context, err error) error {
	var seatErr *service.SeatError
	if errors.As(err, &seatErr) {
		status := http.StatusConflict
		if !errors.Is(err, service.ErrSeatAlreadyBooked) {
			status = http.StatusUnprocessableEntity
		}
		return c.JSON(status, echo.Map{"error": seatErr.Kind.Error(), "seat_ids": seatErr.SeatIDs})
	}
	var quotaErr *service.QuotaError
	if errors.As(err, &quotaErr) {
		return c.JSON(http.StatusConflict, echo.Map{
			"error":     service.ErrQuotaExceeded.Error(),
			"limit":     quotaErr.Limit,
			"requested": quotaErr.Requested,
			"remaining": quotaErr.Remaining,
		})
	}

	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrReservationClosed),
		errors.Is(err, service.ErrAlreadyPickedUp):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrLockTimeout):
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrEventNotFound),
		errors.Is(err, service.ErrBookingNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	}

	log.WithError(err).WithField("path", c.Request().URL.Path).Error("request failed")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
