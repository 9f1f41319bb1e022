package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/event-seat-booking/internal/model"
)

// EventRepo reads events.  Events are maintained by the admin side; the
// booking service never writes them.
type EventRepo struct {
	db *sqlx.DB
}

// NewEventRepo returns an EventRepo bound to the given database.
func NewEventRepo(db *sqlx.DB) *EventRepo { return &EventRepo{db: db} }

const eventColumns = `id, room_id, name, starts_at, reservation_ends_at, tickets, max_tickets`

// GetByID fetches a single event.  It returns ErrEventNotFound when no row
// matches.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	var ev model.Event
	err := r.db.GetContext(ctx, &ev, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	if isNoRows(err) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// ListWindowClosedBetween returns events whose reservation window ended in
// (from, to], oldest first.
func (r *EventRepo) ListWindowClosedBetween(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	events := make([]model.Event, 0)
	err := r.db.SelectContext(ctx, &events,
		`SELECT `+eventColumns+` FROM events
		 WHERE reservation_ends_at > ? AND reservation_ends_at <= ?
		 ORDER BY reservation_ends_at`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	return events, nil
}
