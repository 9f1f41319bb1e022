package model

import "time"

// EntryType records how a booking was created.
type EntryType string

const (
	EntryOnline EntryType = "online" // placed by the attendee
	EntryAdmin  EntryType = "admin"  // entered by an operator on a guest's behalf
	EntryManual EntryType = "manual" // entered at the box office
)

// Booking is one claim on one seat for one event.  At most one booking can
// exist per (event, seat) pair; the bookings table carries a unique key on
// exactly those columns.
//
// Fields:
//  ID          – primary key identifier.
//  EventID     – event the seat is booked for.
//  SeatID      – booked seat.
//  UserID      – owner; nil for operator entries.
//  Name        – name printed on the reservation.
//  Comment     – optional free text.
//  BookingCode – short code shared by a reservation batch (nullable).
//  Type        – entry type.
//  PickedUpAt  – set when the physical ticket was handed out.
type Booking struct {
	ID          uint64     `db:"id" json:"id"`                     // bookings.id
	EventID     uint64     `db:"event_id" json:"event_id"`         // bookings.event_id
	SeatID      uint64     `db:"seat_id" json:"seat_id"`           // bookings.seat_id
	UserID      *uint64    `db:"user_id" json:"user_id"`           // bookings.user_id (nullable)
	Name        string     `db:"name" json:"name"`                 // bookings.name
	Comment     *string    `db:"comment" json:"comment"`           // bookings.comment (nullable)
	BookingCode *string    `db:"booking_code" json:"booking_code"` // bookings.booking_code (nullable)
	Type        EntryType  `db:"type" json:"type"`                 // bookings.type
	PickedUpAt  *time.Time `db:"picked_up_at" json:"picked_up_at"` // bookings.picked_up_at (nullable)
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`     // bookings.created_at
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`     // bookings.updated_at
}

// OwnedBy reports whether the booking belongs to the given user.
func (b *Booking) OwnedBy(userID uint64) bool {
	return b.UserID != nil && *b.UserID == userID
}

// LockedBooking is a booking read under a row lock together with the
// reservation deadline of its event, so amend/cancel guards can be
// evaluated inside the same transaction.
type LockedBooking struct {
	Booking
	ReservationEndsAt *time.Time `db:"reservation_ends_at"`
}
