package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// ErrManagerClosed is returned by Get after Close.
var ErrManagerClosed = errors.New("connection manager closed")

// Connection is the part of *amqp.Connection the queue code needs.
type Connection interface {
	Channel() (*amqp.Channel, error)
	IsClosed() bool
	Close() error
}

// DialFunc opens a broker connection for url.
type DialFunc func(url string) (Connection, error)

// Dial connects with a bounded handshake and heartbeats.
func Dial(url string) (Connection, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Dial:      amqp.DefaultDial(10 * time.Second),
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type dialCall struct {
	done chan struct{}
	conn Connection
	err  error
}

// ConnectionManager owns the broker connections of the process, one per
// URL. The first caller for a URL starts the dial; callers arriving while it
// is in flight wait for the same result. A connection the broker closed is
// dialed again on the next Get.
type ConnectionManager struct {
	dial DialFunc
	log  zerolog.Logger

	mu     sync.Mutex
	calls  map[string]*dialCall
	closed bool
}

// NewConnectionManager returns a manager using dial, or Dial when nil.
func NewConnectionManager(dial DialFunc, log zerolog.Logger) *ConnectionManager {
	if dial == nil {
		dial = Dial
	}
	return &ConnectionManager{
		dial:  dial,
		log:   log.With().Str("component", "amqp").Logger(),
		calls: make(map[string]*dialCall),
	}
}

// Get returns the shared connection for url, dialing at most once at a time.
// ctx bounds only the wait; a dial already started runs to completion for
// the other waiters.
func (m *ConnectionManager) Get(ctx context.Context, url string) (Connection, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	if c, ok := m.calls[url]; ok {
		select {
		case <-c.done:
			if c.err == nil && !c.conn.IsClosed() {
				m.mu.Unlock()
				return c.conn, nil
			}
		default:
			m.mu.Unlock()
			return wait(ctx, c)
		}
	}
	c := &dialCall{done: make(chan struct{})}
	m.calls[url] = c
	m.mu.Unlock()

	go m.run(url, c)
	return wait(ctx, c)
}

func (m *ConnectionManager) run(url string, c *dialCall) {
	conn, err := m.dial(url)

	m.mu.Lock()
	c.conn, c.err = conn, err
	closed := m.closed
	m.mu.Unlock()
	close(c.done)

	if err != nil {
		m.log.Warn().Err(err).Msg("broker dial failed")
		return
	}
	if closed {
		_ = conn.Close()
		return
	}
	m.log.Info().Msg("broker connected")
}

func wait(ctx context.Context, c *dialCall) (Connection, error) {
	select {
	case <-c.done:
		if c.err != nil {
			return nil, c.err
		}
		return c.conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close tears down every open connection. Dials still in flight close their
// connection as soon as they finish.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	calls := m.calls
	m.calls = map[string]*dialCall{}
	m.mu.Unlock()

	var errs []error
	for _, c := range calls {
		select {
		case <-c.done:
			if c.err == nil && !c.conn.IsClosed() {
				errs = append(errs, c.conn.Close())
			}
		default:
		}
	}
	return errors.Join(errs...)
}
