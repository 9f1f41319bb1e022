package repository

import (
	"context"
	"time"

	"github.com/iliyamo/event-seat-booking/internal/model"
)

// EventReader loads events for the booking rules.
type EventReader interface {
	GetByID(ctx context.Context, id uint64) (*model.Event, error)
}

// SeatReader resolves seats through row and block to their room.
type SeatReader interface {
	Placements(ctx context.Context, seatIDs []uint64) ([]model.SeatPlacement, error)
	CountByRoom(ctx context.Context, roomID uint64) (int, error)
	LayoutByRoom(ctx context.Context, roomID uint64) ([]model.SeatPlacement, error)
}

// BookingLedger is the durable store of committed bookings.  Reads outside
// WithinTx see committed state only.
type BookingLedger interface {
	// WithinTx runs fn in one storage transaction.  The transaction is
	// committed when fn returns nil and rolled back otherwise; every lock
	// taken through tx is released when WithinTx returns.
	WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error

	CountByEvent(ctx context.Context, eventID uint64) (int, error)
	CountByEventAndUser(ctx context.Context, eventID, userID uint64) (int, error)
	BookedSeatIDs(ctx context.Context, eventID uint64) ([]uint64, error)
	ListByEvent(ctx context.Context, eventID uint64) ([]model.Booking, error)
	ListByEventAndUser(ctx context.Context, eventID, userID uint64) ([]model.Booking, error)
	ListByCode(ctx context.Context, code string) ([]model.Booking, error)
}

// LedgerTx is the set of statements available inside a booking
// transaction.  Lock methods block until the rows are locked or the lock
// wait bound expires (ErrLockTimeout).
type LedgerTx interface {
	// LockEvent takes an exclusive lock on the event row.  Every writer
	// that re-counts an event's bookings locks it first.
	LockEvent(ctx context.Context, eventID uint64) error
	// LockSeats takes exclusive locks on the seat rows.  Callers pass ids
	// in ascending order.
	LockSeats(ctx context.Context, seatIDs []uint64) error
	// BookedAmong returns the subset of seatIDs already booked for the event.
	BookedAmong(ctx context.Context, eventID uint64, seatIDs []uint64) ([]uint64, error)
	CountByEvent(ctx context.Context, eventID uint64) (int, error)
	CountByEventAndUser(ctx context.Context, eventID, userID uint64) (int, error)
	// CodeInUse reports whether any booking carries the code, locking the
	// index range so no concurrent transaction can claim it before commit.
	CodeInUse(ctx context.Context, code string) (bool, error)
	// Insert stores b and fills in its ID.  A second booking for the same
	// (event, seat) fails with ErrDuplicateKey.
	Insert(ctx context.Context, b *model.Booking) error
	// LockBooking reads a booking with an exclusive row lock.
	LockBooking(ctx context.Context, bookingID uint64) (*model.LockedBooking, error)
	UpdateDetails(ctx context.Context, bookingID uint64, name string, comment *string) error
	SetPickedUp(ctx context.Context, bookingID uint64, at *time.Time) error
	Delete(ctx context.Context, bookingID uint64) error
}
