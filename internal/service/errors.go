package service

import (
	"errors"
	"fmt"
	"strings"
)

// Booking error taxonomy.  Handlers match these with errors.Is; the typed
// errors below carry the seats or limit involved and match the sentinel
// they belong to.
var (
	ErrInvalidRequest          = errors.New("invalid request")
	ErrReservationClosed       = errors.New("reservation window closed")
	ErrQuotaExceeded           = errors.New("quota exceeded")
	ErrSeatAlreadyBooked       = errors.New("seat already booked")
	ErrUnknownSeat             = errors.New("unknown seat")
	ErrSeatNotInRoom           = errors.New("seat not in event room")
	ErrLockTimeout             = errors.New("lock timeout")
	ErrCodeGenerationExhausted = errors.New("booking code space exhausted")
	ErrPersistence             = errors.New("persistence error")

	ErrEventNotFound   = errors.New("event not found")
	ErrBookingNotFound = errors.New("booking not found")
	ErrForbidden       = errors.New("forbidden")
	ErrAlreadyPickedUp = errors.New("booking already picked up")
)

// Limit names reported by QuotaError.
const (
	LimitPerUser  = "per_user"
	LimitCapacity = "capacity"
)

// SeatError reports the seats that caused a seat-level failure
// (ErrSeatAlreadyBooked, ErrUnknownSeat, ErrSeatNotInRoom).
type SeatError struct {
	Kind    error
	SeatIDs []uint64
}

func (e *SeatError) Error() string {
	ids := make([]string, len(e.SeatIDs))
	for i, id := range e.SeatIDs {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("%v: seats %s", e.Kind, strings.Join(ids, ","))
}

func (e *SeatError) Is(target error) bool { return target == e.Kind }

// QuotaError reports which limit a reservation would exceed.
type QuotaError struct {
	Limit     string // LimitPerUser or LimitCapacity
	Requested int
	Remaining int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%v: %s limit allows %d more seat(s), %d requested", ErrQuotaExceeded, e.Limit, e.Remaining, e.Requested)
}

func (e *QuotaError) Is(target error) bool { return target == ErrQuotaExceeded }

// invalid wraps ErrInvalidRequest with a reason.
func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// persistence wraps an unexpected storage failure.
func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}
