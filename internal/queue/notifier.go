package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/iliyamo/event-seat-booking/internal/service"
)

// Notifier turns the booking service's post-commit signals into broker
// messages.
type Notifier struct {
	pub *Publisher
}

// NewNotifier returns a service.Notifier backed by pub.
func NewNotifier(pub *Publisher) *Notifier { return &Notifier{pub: pub} }

var _ service.Notifier = (*Notifier)(nil)

func (n *Notifier) BatchCommitted(ctx context.Context, b service.BatchCommitted) error {
	return n.pub.Publish(ctx, QueueBookingConfirmed, BookingConfirmedEvent{
		EventID:     b.EventID,
		EventName:   b.EventName,
		UserID:      b.UserID,
		BookingCode: b.BookingCode,
		Type:        string(b.Type),
		Names:       b.Names,
		SeatIDs:     lo.Map(b.Seats, func(s service.SeatDescription, _ int) uint64 { return s.SeatID }),
		SeatLabels:  lo.Map(b.Seats, func(s service.SeatDescription, _ int) string { return SeatLabel(s) }),
		ConfirmedAt: b.CommittedAt.UTC().Format(time.RFC3339),
	})
}

func (n *Notifier) CapacityExhausted(ctx context.Context, e service.CapacityExhausted) error {
	return n.pub.Publish(ctx, QueueEventSoldOut, EventSoldOutEvent{
		EventID:   e.EventID,
		EventName: e.EventName,
		RoomID:    e.RoomID,
		Capacity:  e.Capacity,
		SoldOutAt: e.At.UTC().Format(time.RFC3339),
	})
}

// SeatLabel renders a seat as "Block/Row/Label".
func SeatLabel(s service.SeatDescription) string {
	return fmt.Sprintf("%s/%s/%s", s.BlockName, s.RowName, s.Label)
}
