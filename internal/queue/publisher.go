package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// dialTimeout bounds the TCP connect to the broker.
const dialTimeout = 5 * time.Second

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("publisher closed")

// Publisher sends JSON messages to durable queues.  The broker connection
// is opened on first use and re-opened after it drops; a failed publish is
// returned to the caller, who decides whether it matters.  Dialing happens
// outside the publisher's lock, and callers waiting on it give up when
// their context ends.
type Publisher struct {
	url string

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	declared map[string]bool
	dialing  *dialAttempt
	closed   bool

	// dial opens a channel; replaced in tests.
	dial func() (channel, *amqp.Connection, error)
}

// dialAttempt is one in-flight connect shared by every waiting publisher.
type dialAttempt struct {
	done chan struct{}
	err  error
}

// NewPublisher returns a publisher for the broker at url.  No connection is
// made until the first Publish.
func NewPublisher(url string) *Publisher {
	p := &Publisher{url: url, declared: map[string]bool{}}
	p.dial = p.dialBroker
	return p
}

func (p *Publisher) dialBroker() (channel, *amqp.Connection, error) {
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("channel open: %w", err)
	}
	return ch, conn, nil
}

// Publish marshals v and sends it to queue as a persistent message.
func (p *Publisher) Publish(ctx context.Context, queue string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", queue, err)
	}

	ch, err := p.lockedChannel(ctx)
	if err != nil {
		return err
	}
	defer p.mu.Unlock()

	if !p.declared[queue] {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			p.reset()
			return fmt.Errorf("queue declare %s: %w", queue, err)
		}
		p.declared[queue] = true
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Type:         queue,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, msg); err != nil {
		p.reset()
		return fmt.Errorf("publish %s: %w", queue, err)
	}
	log.WithFields(log.Fields{"queue": queue, "message_id": msg.MessageId}).Debug("message published")
	return nil
}

// lockedChannel returns a live channel with p.mu held.  When there is none
// it joins (or starts) a dial and waits for it without holding the lock.
func (p *Publisher) lockedChannel(ctx context.Context) (channel, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPublisherClosed
		}
		if p.ch != nil && (p.conn == nil || !p.conn.IsClosed()) {
			return p.ch, nil
		}
		a := p.dialing
		if a == nil {
			p.reset()
			a = &dialAttempt{done: make(chan struct{})}
			p.dialing = a
			go p.connect(a)
		}
		p.mu.Unlock()

		select {
		case <-a.done:
			if a.err != nil {
				return nil, a.err
			}
		case <-ctx.Done():
			return nil, fmt.Errorf("dial: %w", ctx.Err())
		}
	}
}

func (p *Publisher) connect(a *dialAttempt) {
	ch, conn, err := p.dial()

	p.mu.Lock()
	switch {
	case err != nil:
		log.WithError(err).Warn("broker unreachable")
	case p.closed:
		_ = ch.Close()
		if conn != nil {
			_ = conn.Close()
		}
		err = ErrPublisherClosed
	default:
		p.ch, p.conn = ch, conn
	}
	a.err = err
	p.dialing = nil
	p.mu.Unlock()
	close(a.done)
}

// reset drops the cached channel so the next publish reconnects.
func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
	p.declared = map[string]bool{}
}

// Close releases the broker connection.  A dial still in flight is closed
// when it completes.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.reset()
	return nil
}
