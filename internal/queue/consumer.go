package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

// Notification kinds used as dedupe keys.
const (
	KindSoldOut      = "sold_out"
	KindWindowClosed = "window_closed"
)

// Consumer drains the booking queues and appends one journal entry per
// message to <dir>/booking.log.  Sold-out messages are journaled once per
// event even when several commits race to report the last seat.
type Consumer struct {
	url     string
	dedupe  *Deduper
	journal *log.Logger
	file    *os.File
}

// NewConsumer opens the journal file under dir.
func NewConsumer(url, dir string, dedupe *Deduper) (*Consumer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "booking.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	journal := log.New()
	journal.SetOutput(f)
	journal.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339})
	return &Consumer{url: url, dedupe: dedupe, journal: journal, file: f}, nil
}

// Close closes the journal file.
func (c *Consumer) Close() error { return c.file.Close() }

// Run connects to the broker and consumes until ctx is cancelled.  Lost
// connections are retried with exponential backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
	logger := log.WithField("component", "booking-consumer")
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			logger.WithError(err).Warnf("failed to dial broker; retrying in %s", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.WithError(err).Warn("consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.WithError(err).Warn("booking-consumer: set QoS failed")
	}

	deliveries := make(chan amqp.Delivery)
	for _, q := range Queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", q, err)
		}
		msgs, err := ch.Consume(q, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", q, err)
		}
		go func(msgs <-chan amqp.Delivery) {
			for d := range msgs {
				select {
				case deliveries <- d:
				case <-ctx.Done():
					return
				}
			}
		}(msgs)
	}
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr != nil {
				return amqpErr
			}
			return errors.New("channel closed")
		case d := <-deliveries:
			if err := c.Handle(ctx, d.RoutingKey, d.Body); err != nil {
				log.WithError(err).WithField("queue", d.RoutingKey).Error("booking-consumer: handle message failed")
				// reject without requeue to avoid tight loops
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle journals one message from queue.
func (c *Consumer) Handle(ctx context.Context, queue string, body []byte) error {
	switch queue {
	case QueueBookingConfirmed:
		var ev BookingConfirmedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		fields := log.Fields{
			"event_id": ev.EventID, "event": ev.EventName, "type": ev.Type,
			"names": ev.Names, "seats": ev.SeatLabels, "confirmed_at": ev.ConfirmedAt,
		}
		if ev.UserID != nil {
			fields["user_id"] = *ev.UserID
		}
		if ev.BookingCode != nil {
			fields["code"] = *ev.BookingCode
		}
		c.journal.WithFields(fields).Info("Booking confirmed")
		return nil

	case QueueEventSoldOut:
		var ev EventSoldOutEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		first, err := c.dedupe.First(ctx, KindSoldOut, ev.EventID)
		if err != nil {
			return err
		}
		if !first {
			return nil
		}
		c.journal.WithFields(log.Fields{
			"event_id": ev.EventID, "event": ev.EventName, "room_id": ev.RoomID,
			"capacity": ev.Capacity, "sold_out_at": ev.SoldOutAt,
		}).Info("Event sold out")
		return nil

	case QueueWindowClosed:
		var ev WindowClosedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		c.journal.WithFields(log.Fields{
			"event_id": ev.EventID, "event": ev.EventName, "room_id": ev.RoomID,
			"booked": ev.Booked, "closed_at": ev.ClosedAt,
		}).Info("Reservation window closed")
		return nil
	}
	return fmt.Errorf("unknown queue %q", queue)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
