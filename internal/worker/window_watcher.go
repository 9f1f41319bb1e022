// Package worker holds background jobs that run next to the HTTP server.
package worker

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/event-seat-booking/internal/config"
	"github.com/iliyamo/event-seat-booking/internal/model"
	"github.com/iliyamo/event-seat-booking/internal/queue"
)

// ClosedWindowLister finds events whose reservation window ended in
// (from, to].
type ClosedWindowLister interface {
	ListWindowClosedBetween(ctx context.Context, from, to time.Time) ([]model.Event, error)
}

// BookingCounter counts committed bookings of an event.
type BookingCounter interface {
	CountByEvent(ctx context.Context, eventID uint64) (int, error)
}

// Publisher sends a message to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, v any) error
}

// WindowWatcher reports events whose reservation window has just closed.
// Each scan looks back over the configured lookback, so an event is seen by
// several scans; the deduper makes sure it is published once.
type WindowWatcher struct {
	events  ClosedWindowLister
	counter BookingCounter
	pub     Publisher
	dedupe  *queue.Deduper
	cfg     config.WatcherConfig
	now     func() time.Time
	log     *log.Entry
}

// NewWindowWatcher wires a watcher.
func NewWindowWatcher(events ClosedWindowLister, counter BookingCounter, pub Publisher, dedupe *queue.Deduper, cfg config.WatcherConfig) *WindowWatcher {
	return &WindowWatcher{
		events:  events,
		counter: counter,
		pub:     pub,
		dedupe:  dedupe,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		log:     log.WithField("component", "window-watcher"),
	}
}

// Run scans once immediately and then on every interval until ctx is
// cancelled.
func (w *WindowWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.log.WithFields(log.Fields{"interval": w.cfg.Interval, "lookback": w.cfg.Lookback}).Info("starting")
	w.Scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Scan(ctx)
		}
	}
}

// Scan publishes a window closed message for every event whose window ended
// within the lookback and that was not reported before.  It returns how
// many messages were published.
func (w *WindowWatcher) Scan(ctx context.Context) int {
	to := w.now()
	events, err := w.events.ListWindowClosedBetween(ctx, to.Add(-w.cfg.Lookback), to)
	if err != nil {
		w.log.WithError(err).Error("list closed windows failed")
		return 0
	}
	sent := 0
	for _, ev := range events {
		published, err := w.report(ctx, ev)
		if err != nil {
			w.log.WithError(err).WithField("event_id", ev.ID).Warn("window closed notification failed")
			continue
		}
		if published {
			sent++
		}
	}
	return sent
}

func (w *WindowWatcher) report(ctx context.Context, ev model.Event) (bool, error) {
	first, err := w.dedupe.First(ctx, queue.KindWindowClosed, ev.ID)
	if err != nil || !first {
		return false, err
	}
	booked, err := w.counter.CountByEvent(ctx, ev.ID)
	if err == nil {
		msg := queue.WindowClosedEvent{EventID: ev.ID, EventName: ev.Name, RoomID: ev.RoomID, Booked: booked}
		if ev.ReservationEndsAt != nil {
			msg.ClosedAt = ev.ReservationEndsAt.UTC().Format(time.RFC3339)
		}
		err = w.pub.Publish(ctx, queue.QueueWindowClosed, msg)
	}
	if err != nil {
		// let the next scan retry
		if ferr := w.dedupe.Forget(ctx, queue.KindWindowClosed, ev.ID); ferr != nil {
			w.log.WithError(ferr).WithField("event_id", ev.ID).Warn("dedupe marker not cleared")
		}
		return false, err
	}
	w.log.WithFields(log.Fields{"event_id": ev.ID, "booked": booked}).Info("reservation window closed")
	return true, nil
}
