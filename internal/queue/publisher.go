package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// BookingQueue is the durable queue booking events are routed to.
const BookingQueue = "booking.events"

// Publisher sends booking events over a managed connection.
type Publisher struct {
	conns *ConnectionManager
	url   string
	log   zerolog.Logger
}

func NewPublisher(conns *ConnectionManager, url string, log zerolog.Logger) *Publisher {
	return &Publisher{conns: conns, url: url, log: log.With().Str("component", "publisher").Logger()}
}

// Publish marshals ev and sends it as a persistent message. Errors are
// logged and returned so callers may ignore them without failing the
// request that produced the event.
func (p *Publisher) Publish(ctx context.Context, ev BookingEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	conn, err := p.conns.Get(ctx, p.url)
	if err != nil {
		p.log.Warn().Err(err).Str("event", ev.Type).Msg("broker unavailable")
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn().Err(err).Msg("channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(BookingQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	err = ch.PublishWithContext(ctx, "", BookingQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		MessageId:    ev.BookingID + ":" + ev.Type,
		Body:         body,
	})
	if err != nil {
		p.log.Warn().Err(err).Str("event", ev.Type).Msg("publish failed")
		return err
	}
	return nil
}

// Handler processes one booking event.
type Handler func(ctx context.Context, ev BookingEvent) error

// Direct hands events to a handler in-process. It replaces the broker when
// none is configured.
type Direct struct {
	Handle Handler
}

func (d Direct) Publish(ctx context.Context, ev BookingEvent) error {
	return d.Handle(ctx, ev)
}
