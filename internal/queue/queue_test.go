package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	closed atomic.Bool
}

func (f *fakeConn) Channel() (*amqp.Channel, error) { return nil, errors.New("no channel in tests") }
func (f *fakeConn) IsClosed() bool                   { return f.closed.Load() }
func (f *fakeConn) Close() error {
	f.closed.Store(true)
	return nil
}

func TestConnectionManager_SingleFlight(t *testing.T) {
	var dials atomic.Int32
	release := make(chan struct{})
	m := NewConnectionManager(func(string) (Connection, error) {
		dials.Add(1)
		<-release
		return &fakeConn{}, nil
	}, zerolog.Nop())

	const callers = 10
	var wg sync.WaitGroup
	got := make([]Connection, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := m.Get(context.Background(), "amqp://x")
			assert.NoError(t, err)
			got[i] = conn
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), dials.Load())
	for _, c := range got {
		assert.Same(t, got[0], c)
	}
}

func TestConnectionManager_RedialsClosedAndFailed(t *testing.T) {
	var dials atomic.Int32
	fail := atomic.Bool{}
	fail.Store(true)
	m := NewConnectionManager(func(string) (Connection, error) {
		dials.Add(1)
		if fail.Load() {
			return nil, errors.New("connection refused")
		}
		return &fakeConn{}, nil
	}, zerolog.Nop())
	ctx := context.Background()

	_, err := m.Get(ctx, "amqp://x")
	assert.ErrorContains(t, err, "connection refused")

	fail.Store(false)
	first, err := m.Get(ctx, "amqp://x")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := m.Get(ctx, "amqp://x")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, int32(3), dials.Load())

	other, err := m.Get(ctx, "amqp://y")
	require.NoError(t, err)
	assert.NotSame(t, second, other)
}

func TestConnectionManager_Close(t *testing.T) {
	m := NewConnectionManager(func(string) (Connection, error) { return &fakeConn{}, nil }, zerolog.Nop())
	conn, err := m.Get(context.Background(), "amqp://x")
	require.NoError(t, err)

	require.NoError(t, m.Close())
	assert.True(t, conn.IsClosed())
	_, err = m.Get(context.Background(), "amqp://x")
	assert.ErrorIs(t, err, ErrManagerClosed)
	require.NoError(t, m.Close())
}

func TestConnectionManager_WaitHonoursContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	m := NewConnectionManager(func(string) (Connection, error) {
		<-block
		return &fakeConn{}, nil
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := m.Get(ctx, "amqp://x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConsumer_Process(t *testing.T) {
	var seen []BookingEvent
	c := NewConsumer(nil, "", func(_ context.Context, ev BookingEvent) error {
		seen = append(seen, ev)
		return nil
	}, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, c.Process(ctx, []byte(`{"type":"booking.confirmed","booking_id":"b1","user_id":3}`)))
	require.Len(t, seen, 1)
	assert.Equal(t, uint64(3), seen[0].UserID)

	assert.Error(t, c.Process(ctx, []byte(`{not json`)))
	assert.Error(t, c.Process(ctx, []byte(`{"type":"booking.confirmed"}`)))
}

func TestConsumer_RunStopsOnCancel(t *testing.T) {
	m := NewConnectionManager(func(string) (Connection, error) { return &fakeConn{}, nil }, zerolog.Nop())
	c := NewConsumer(m, "amqp://x", func(context.Context, BookingEvent) error { return nil }, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDirectPublisher(t *testing.T) {
	var got BookingEvent
	d := Direct{Handle: func(_ context.Context, ev BookingEvent) error { got = ev; return nil }}
	require.NoError(t, d.Publish(context.Background(), BookingEvent{Type: EventCancelled, BookingID: "b9"}))
	assert.Equal(t, "b9", got.BookingID)
}
