package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/parking-lot-reservation/internal/model"
)

func bookingAt(status model.BookingStatus, total int64, start time.Time) *model.Booking {
	return &model.Booking{
		Status:    status,
		StartTime: start,
		EndTime:   start.Add(2 * time.Hour),
		Pricing:   model.Pricing{TotalAmount: total},
	}
}

func TestCanBeCancelled(t *testing.T) {
	now := at(8, 0)

	assert.True(t, CanBeCancelled(bookingAt(model.BookingPending, 100, now.Add(2*time.Hour)), now))
	assert.True(t, CanBeCancelled(bookingAt(model.BookingConfirmed, 100, now.Add(61*time.Minute)), now))
	assert.False(t, CanBeCancelled(bookingAt(model.BookingConfirmed, 100, now.Add(time.Hour)), now), "exactly one hour is not enough")
	assert.False(t, CanBeCancelled(bookingAt(model.BookingConfirmed, 100, now.Add(45*time.Minute)), now))
	assert.False(t, CanBeCancelled(bookingAt(model.BookingConfirmed, 100, now.Add(-time.Hour)), now))
	assert.False(t, CanBeCancelled(nil, now))

	for _, s := range []model.BookingStatus{
		model.BookingActive,
		model.BookingExtended,
		model.BookingCompleted,
		model.BookingCancelled,
		model.BookingNoShow,
	} {
		assert.False(t, CanBeCancelled(bookingAt(s, 100, now.Add(48*time.Hour)), now), s)
	}
}

func TestCalculateRefund(t *testing.T) {
	now := at(8, 0)

	t.Run("FullRefundBeyondADay", func(t *testing.T) {
		b := bookingAt(model.BookingConfirmed, 1000, now.Add(30*time.Hour))
		assert.Equal(t, int64(1000), CalculateRefund(b, now))
	})

	t.Run("HalfRefundWithinADay", func(t *testing.T) {
		b := bookingAt(model.BookingPending, 1000, now.Add(10*time.Hour))
		assert.Equal(t, int64(500), CalculateRefund(b, now))
	})

	t.Run("ExactlyADayIsHalf", func(t *testing.T) {
		b := bookingAt(model.BookingConfirmed, 1000, now.Add(24*time.Hour))
		assert.Equal(t, int64(500), CalculateRefund(b, now))
	})

	t.Run("HalfRoundsUp", func(t *testing.T) {
		b := bookingAt(model.BookingConfirmed, 261, now.Add(5*time.Hour))
		assert.Equal(t, int64(131), CalculateRefund(b, now))
	})

	t.Run("TooLateIsZero", func(t *testing.T) {
		b := bookingAt(model.BookingConfirmed, 1000, now.Add(45*time.Minute))
		assert.False(t, CanBeCancelled(b, now))
		assert.Equal(t, int64(0), CalculateRefund(b, now))
	})

	t.Run("TerminalIsZero", func(t *testing.T) {
		b := bookingAt(model.BookingCompleted, 1000, now.Add(48*time.Hour))
		assert.Equal(t, int64(0), CalculateRefund(b, now))
	})

	t.Run("AlwaysWithinBounds", func(t *testing.T) {
		statuses := []model.BookingStatus{
			model.BookingPending, model.BookingConfirmed, model.BookingActive,
			model.BookingCompleted, model.BookingCancelled, model.BookingNoShow, model.BookingExtended,
		}
		for _, s := range statuses {
			for _, total := range []int64{0, 1, 3, 999, 1000} {
				for offset := -2 * time.Hour; offset <= 50*time.Hour; offset += 17 * time.Minute {
					r := CalculateRefund(bookingAt(s, total, now.Add(offset)), now)
					assert.GreaterOrEqual(t, r, int64(0))
					assert.LessOrEqual(t, r, total)
				}
			}
		}
	})
}
