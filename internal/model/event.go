package model

import "time"

// Event is a bookable occasion seated in one room.  The reservation core
// only reads the capacity and window fields; events are maintained by the
// admin side.
//
// Fields:
//  ID                – primary key identifier.
//  RoomID            – room in which the event takes place.
//  Name              – display name.
//  StartsAt          – start of the event.
//  ReservationEndsAt – end of the reservation window (nil = no deadline).
//  Tickets           – legacy ticket limit (nullable).
//  MaxTickets        – ticket limit (nullable).
type Event struct {
	ID                uint64     `db:"id"`                  // events.id
	RoomID            uint64     `db:"room_id"`             // events.room_id
	Name              string     `db:"name"`                // events.name
	StartsAt          *time.Time `db:"starts_at"`           // events.starts_at
	ReservationEndsAt *time.Time `db:"reservation_ends_at"` // events.reservation_ends_at
	Tickets           *int       `db:"tickets"`             // events.tickets (nullable)
	MaxTickets        *int       `db:"max_tickets"`         // events.max_tickets (nullable)
}

// ConfiguredLimit returns the ticket limit set on the event: max_tickets,
// else tickets.  Zero and NULL both count as "not configured".
func (e *Event) ConfiguredLimit() (int, bool) {
	if e.MaxTickets != nil && *e.MaxTickets > 0 {
		return *e.MaxTickets, true
	}
	if e.Tickets != nil && *e.Tickets > 0 {
		return *e.Tickets, true
	}
	return 0, false
}

// WindowOpen reports whether ordinary principals may still create, amend or
// cancel bookings at the given instant.  The deadline itself is closed.
func (e *Event) WindowOpen(now time.Time) bool {
	if e.ReservationEndsAt == nil {
		return true
	}
	return now.Before(*e.ReservationEndsAt)
}
