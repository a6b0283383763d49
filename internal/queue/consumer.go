package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// ErrMalformedEvent marks a message that can never be processed.
var ErrMalformedEvent = errors.New("malformed ticket event")

// NotificationWriter persists notifications produced from ticket events.
type NotificationWriter interface {
	Create(ctx context.Context, n *model.Notification) error
}

// Consumer reads ticket events from RabbitMQ, stores a notification for the
// buyer and appends one audit line per event.
type Consumer struct {
	url   string
	store NotificationWriter
	audit io.Writer
	log   *zap.Logger

	requeueDelay time.Duration
}

// NewConsumer builds a consumer. audit may be nil.
func NewConsumer(url string, store NotificationWriter, audit io.Writer, log *zap.Logger) *Consumer {
	if audit == nil {
		audit = io.Discard
	}
	return &Consumer{url: url, store: store, audit: audit, log: log.Named("ticket-consumer"), requeueDelay: time.Second}
}

// Run keeps a consumer attached to the ticket events queue, reconnecting
// with exponential backoff, until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 30 * time.Second

	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			wait := b.NextBackOff()
			c.log.Warn("failed to dial broker", zap.Error(err), zap.Duration("retry_in", wait))
			if !sleepCtx(ctx, wait) {
				return
			}
			continue
		}
		b.Reset()

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		c.log.Warn("consume loop ended; reconnecting", zap.Error(err))
		if !sleepCtx(ctx, 2*time.Second) {
			return
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("set QoS failed", zap.Error(err))
	}

	if _, err := ch.QueueDeclare(TicketEventsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(TicketEventsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.process(ctx, d)
		}
	}
}

// process handles one delivery and settles it. Malformed messages are
// dropped; anything else is requeued after requeueDelay so a store outage
// does not lose notifications.
func (c *Consumer) process(ctx context.Context, d amqp.Delivery) {
	err := c.Handle(ctx, d.Body)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, ErrMalformedEvent):
		c.log.Error("dropping malformed message", zap.Error(err))
		_ = d.Nack(false, false)
	default:
		c.log.Warn("handle message failed; requeueing", zap.Error(err))
		sleepCtx(ctx, c.requeueDelay)
		_ = d.Nack(false, true)
	}
}

// Handle processes one message body.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
	var ev TicketEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: unmarshal: %v", ErrMalformedEvent, err)
	}
	if ev.UserID == 0 || ev.TicketID == "" {
		return fmt.Errorf("%w: %q missing user or ticket id", ErrMalformedEvent, ev.Type)
	}

	n, err := notificationFor(ev)
	if err != nil {
		return err
	}
	if err := c.store.Create(ctx, n); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}

	_, _ = fmt.Fprintf(c.audit, "[%s] %s | ticket_id=%s | event_id=%d | user_id=%d | seat=%d | amount=%d cents\n",
		ev.OccurredAt.UTC().Format(time.RFC3339), ev.Type, ev.TicketID, ev.EventID, ev.UserID, ev.SeatNumber, ev.AmountCents)
	return nil
}

func notificationFor(ev TicketEvent) (*model.Notification, error) {
	what := ev.EventTitle
	if what == "" {
		what = fmt.Sprintf("event #%d", ev.EventID)
	}

	var title, msg string
	switch ev.Type {
	case TicketReserved:
		title = "Ticket booked"
		msg = fmt.Sprintf("Seat %d for %s is yours.", ev.SeatNumber, what)
	case TicketCancelled:
		title = "Ticket cancelled"
		msg = fmt.Sprintf("Your ticket for seat %d at %s was cancelled.", ev.SeatNumber, what)
	case TicketUsed:
		title = "Ticket used"
		msg = fmt.Sprintf("Your ticket for seat %d at %s was checked in.", ev.SeatNumber, what)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, ev.Type)
	}

	data, err := json.Marshal(map[string]any{
		"ticket_id": ev.TicketID,
		"event_id":  ev.EventID,
		"seat":      ev.SeatNumber,
	})
	if err != nil {
		return nil, err
	}
	uid := ev.UserID
	return &model.Notification{
		UserID:  &uid,
		Title:   title,
		Message: msg,
		Type:    model.NotifyTicket,
		Data:    data,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
