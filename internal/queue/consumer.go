package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Consumer reads booking events from the broker and passes them to a
// handler, reconnecting with exponential backoff when the connection drops.
type Consumer struct {
	conns  *ConnectionManager
	url    string
	handle Handler
	log    zerolog.Logger

	// MaxBackoff caps the reconnect delay.
	MaxBackoff time.Duration
}

func NewConsumer(conns *ConnectionManager, url string, handle Handler, log zerolog.Logger) *Consumer {
	return &Consumer{
		conns:      conns,
		url:        url,
		handle:     handle,
		log:        log.With().Str("component", "booking-consumer").Logger(),
		MaxBackoff: 30 * time.Second,
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := c.conns.Get(ctx, c.url)
		if err == nil {
			backoff = time.Second
			err = c.consumeLoop(ctx, conn)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrManagerClosed) {
			return err
		}
		c.log.Warn().Err(err).Dur("retry_in", backoff).Msg("consume loop ended; reconnecting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < c.MaxBackoff {
			backoff *= 2
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn().Err(err).Msg("set QoS failed")
	}
	if _, err := ch.QueueDeclare(BookingQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(BookingQueue, "", false, false, false, false, nil)
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
			c.deliver(ctx, d)
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, d amqp.Delivery) {
	if err := c.Process(ctx, d.Body); err != nil {
		c.log.Error().Err(err).Str("message_id", d.MessageId).Msg("handle message failed")
		_ = d.Nack(false, false) // do not requeue to avoid tight loops
		return
	}
	_ = d.Ack(false)
}

// Process decodes one message body and runs the handler on it.
func (c *Consumer) Process(ctx context.Context, body []byte) error {
	var ev BookingEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.BookingID == "" || ev.Type == "" {
		return errors.New("event without booking id or type")
	}
	return c.handle(ctx, ev)
}
