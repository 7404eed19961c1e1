package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/movie-reservation/internal/logger"
	"github.com/iliyamo/movie-reservation/internal/model"
)

var (
	// ErrPublishQueueFull is returned when the outbound buffer is full and
	// the event was dropped.
	ErrPublishQueueFull = errors.New("queue: publish buffer full")
	// ErrPublisherClosed is returned after Close.
	ErrPublisherClosed = errors.New("queue: publisher closed")

	errBrokerBackoff = errors.New("broker unreachable, waiting before re-dial")
)

// Publisher publishes status-changed events to StatusChangedQueue.
// PublishStatusChanged only enqueues; a single goroutine owns the broker
// connection, dials it, publishes and re-dials with backoff after a
// failure.  While the broker is down events are dropped and logged.
type Publisher struct {
	url            string
	log            logger.Logger
	dialTimeout    time.Duration
	publishTimeout time.Duration
	closeTimeout   time.Duration

	events chan model.StatusChangedEvent
	done   chan struct{}

	mu     sync.RWMutex
	closed bool

	// owned by the run goroutine
	conn    *amqp.Connection
	ch      *amqp.Channel
	retry   *backoff.ExponentialBackOff
	retryAt time.Time
}

type PublisherOption func(*Publisher)

// WithBuffer sets how many events may wait for the broker.
func WithBuffer(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 {
			p.events = make(chan model.StatusChangedEvent, n)
		}
	}
}

func WithDialTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) { p.dialTimeout = d }
}

// WithCloseTimeout bounds how long Close waits for queued events.
func WithCloseTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) { p.closeTimeout = d }
}

// NewPublisher starts the publishing goroutine.  Call Close to flush and
// stop it.
func NewPublisher(url string, log logger.Logger, opts ...PublisherOption) *Publisher {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = time.Second
	retry.MaxInterval = 30 * time.Second
	p := &Publisher{
		url:            url,
		log:            log.With("component", "publisher"),
		dialTimeout:    5 * time.Second,
		publishTimeout: 5 * time.Second,
		closeTimeout:   5 * time.Second,
		events:         make(chan model.StatusChangedEvent, 1024),
		done:           make(chan struct{}),
		retry:          retry,
	}
	for _, o := range opts {
		o(p)
	}
	go p.run()
	return p
}

// PublishStatusChanged queues ev without waiting for the broker.
func (p *Publisher) PublishStatusChanged(ctx context.Context, ev model.StatusChangedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.events <- ev:
		return nil
	default:
		p.log.Warn("publish buffer full, event dropped",
			"event_id", ev.EventID, "reservation_id", ev.ReservationID, "to", ev.To)
		return ErrPublishQueueFull
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	defer p.closeConn()
	for ev := range p.events {
		if err := p.publish(ev); err != nil {
			p.log.Warn("event dropped", "event_id", ev.EventID, "reservation_id", ev.ReservationID, "error", err)
		}
	}
}

func (p *Publisher) publish(ev model.StatusChangedEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ch, err := p.channel()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.publishTimeout)
	defer cancel()
	err = ch.PublishWithContext(ctx,
		"",                 // default exchange
		StatusChangedQueue, // routing key = queue name
		false,              // mandatory
		false,              // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.EventID,
			Timestamp:    ev.OccurredAt,
			Type:         StatusChangedQueue,
			Body:         body,
		})
	if err != nil {
		// force a re-dial on the next event
		p.closeConn()
		return fmt.Errorf("publish %s: %w", ev.EventID, err)
	}
	p.log.Debug("event published", "event_id", ev.EventID, "reservation_id", ev.ReservationID, "to", ev.To)
	return nil
}

// channel returns an open channel, dialing and declaring the queue when
// needed.  After a failed dial it refuses to re-dial until the backoff
// delay has passed, so an outage drops events instead of stalling on
// every one of them.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.closeConn()
	if time.Now().Before(p.retryAt) {
		return nil, errBrokerBackoff
	}
	ch, err := p.dial()
	if err != nil {
		p.retryAt = time.Now().Add(p.retry.NextBackOff())
		return nil, err
	}
	p.retry.Reset()
	p.retryAt = time.Time{}
	return ch, nil
}

func (p *Publisher) dial() (*amqp.Channel, error) {
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(p.dialTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		StatusChangedQueue, // name
		true,               // durable
		false,              // autoDelete
		false,              // exclusive
		false,              // noWait
		nil,                // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// Close stops accepting events, waits up to the close timeout for the
// queued ones to go out and releases the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-time.After(p.closeTimeout):
		return fmt.Errorf("queue: %d events still pending after %s", len(p.events), p.closeTimeout)
	}
}

func (p *Publisher) closeConn() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
