// Package queue defines message payloads exchanged over the message broker,
// the publisher the booking service uses after commit and the consumer that
// journals them.
package queue

// Queue names.  Messages go through the default exchange, so the routing
// key equals the queue name.
const (
	QueueBookingConfirmed = "booking.confirmed"
	QueueEventSoldOut     = "event.sold_out"
	QueueWindowClosed     = "reservation.window_closed"
)

// Queues lists every queue the consumer drains.
var Queues = []string{QueueBookingConfirmed, QueueEventSoldOut, QueueWindowClosed}

// BookingConfirmedEvent is published when a booking batch commits.  It
// carries enough for downstream consumers to log or notify without querying
// the primary database.
type BookingConfirmedEvent struct {
	EventID     uint64   `json:"event_id"`
	EventName   string   `json:"event_name"`
	UserID      *uint64  `json:"user_id"`
	BookingCode *string  `json:"booking_code"`
	Type        string   `json:"type"`
	Names       []string `json:"names"`
	SeatIDs     []uint64 `json:"seat_ids"`
	SeatLabels  []string `json:"seats"`
	ConfirmedAt string   `json:"confirmed_at"`
}

// EventSoldOutEvent is published when a commit leaves an event with no
// remaining capacity.
type EventSoldOutEvent struct {
	EventID   uint64 `json:"event_id"`
	EventName string `json:"event_name"`
	RoomID    uint64 `json:"room_id"`
	Capacity  int    `json:"capacity"`
	SoldOutAt string `json:"sold_out_at"`
}

// WindowClosedEvent is published once the reservation window of an event
// has ended.
type WindowClosedEvent struct {
	EventID   uint64 `json:"event_id"`
	EventName string `json:"event_name"`
	RoomID    uint64 `json:"room_id"`
	Booked    int    `json:"booked"`
	ClosedAt  string `json:"closed_at"`
}
