package service

import (
	"context"
	"time"

	"github.com/iliyamo/event-seat-booking/internal/model"
)

// BatchCommitted describes a booking batch after its transaction committed.
type BatchCommitted struct {
	EventID     uint64
	EventName   string
	UserID      *uint64
	BookingCode *string
	Type        model.EntryType
	Names       []string
	Seats       []SeatDescription
	CommittedAt time.Time
}

// CapacityExhausted is raised when a commit leaves an event with no
// remaining capacity.
type CapacityExhausted struct {
	EventID   uint64
	EventName string
	RoomID    uint64
	Capacity  int
	Booked    int
	At        time.Time
}

// Notifier receives post-commit signals.  Calls happen off the request
// path; an error is logged and counted, never returned to the caller.
type Notifier interface {
	BatchCommitted(ctx context.Context, n BatchCommitted) error
	CapacityExhausted(ctx context.Context, n CapacityExhausted) error
}

// NopNotifier discards every signal.
type NopNotifier struct{}

func (NopNotifier) BatchCommitted(context.Context, BatchCommitted) error       { return nil }
func (NopNotifier) CapacityExhausted(context.Context, CapacityExhausted) error { return nil }
