package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/queue"
)

// ErrPublishBufferFull is returned when events arrive faster than the
// broker accepts them.
var ErrPublishBufferFull = errors.New("ticket event buffer full")

const (
	defaultPublishBuffer = 1024
	defaultDialTimeout   = 5 * time.Second
	defaultSendTimeout   = 5 * time.Second
	publishAttempts      = 3
)

// AMQPPublisher publishes ticket events to the durable ticket events queue.
// Publish only enqueues; Run delivers in the background, so a slow or
// unreachable broker never holds up a request. One connection and channel
// are kept open and redialed lazily after the broker drops them.
type AMQPPublisher struct {
	url         string
	log         *zap.Logger
	dialTimeout time.Duration
	sendTimeout time.Duration

	events chan queue.TicketEvent
	send   func(ctx context.Context, ev queue.TicketEvent) error

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPPublisher returns a publisher for url. Nothing is dialed until Run
// delivers the first event.
func NewAMQPPublisher(url string, log *zap.Logger) *AMQPPublisher {
	p := &AMQPPublisher{
		url:         url,
		log:         log.Named("amqp-publisher"),
		dialTimeout: defaultDialTimeout,
		sendTimeout: defaultSendTimeout,
		events:      make(chan queue.TicketEvent, defaultPublishBuffer),
	}
	p.send = p.publishNow
	return p
}

// Publish queues ev for delivery. It never blocks; a full buffer drops the
// event and returns ErrPublishBufferFull.
func (p *AMQPPublisher) Publish(_ context.Context, ev queue.TicketEvent) error {
	select {
	case p.events <- ev:
		return nil
	default:
		return ErrPublishBufferFull
	}
}

// Run delivers queued events until ctx is cancelled. Each event gets a few
// attempts with backoff before it is dropped.
func (p *AMQPPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if n := len(p.events); n > 0 {
				p.log.Warn("dropping undelivered ticket events", zap.Int("count", n))
			}
			return
		case ev := <-p.events:
			p.deliver(ctx, ev)
		}
	}
}

func (p *AMQPPublisher) deliver(ctx context.Context, ev queue.TicketEvent) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		sctx, cancel := context.WithTimeout(ctx, p.sendTimeout)
		defer cancel()
		return struct{}{}, p.send(sctx, ev)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(publishAttempts))
	if err != nil && !errors.Is(err, context.Canceled) {
		p.log.Warn("ticket event not delivered",
			zap.String("type", string(ev.Type)), zap.String("ticket_id", ev.TicketID), zap.Error(err))
	}
}

// publishNow sends ev as a persistent JSON message.
func (p *AMQPPublisher) publishNow(ctx context.Context, ev queue.TicketEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("marshal event: %w", err))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Type:         string(ev.Type),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",                      // default exchange
		queue.TicketEventsQueue, // routing key = queue name
		false,                   // mandatory
		false,                   // immediate
		pub,
	); err != nil {
		p.resetLocked()
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// channel returns an open channel, dialing when needed. The dial is bounded
// by dialTimeout and by ctx's deadline. Caller holds mu.
func (p *AMQPPublisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	p.resetLocked()

	if p.url == "" {
		return nil, backoff.Permanent(errors.New("rabbitmq url not configured"))
	}
	timeout := p.dialTimeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(queue.TicketEventsQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	p.log.Info("connected to broker")
	return ch, nil
}

func (p *AMQPPublisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}
