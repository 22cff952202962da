package booking

import (
	"time"

	"github.com/iliyamo/parking-lot-reservation/internal/model"
)

const (
	// CancellationCutoff is how long before the start a booking stops being
	// cancellable.
	CancellationCutoff = time.Hour
	// FullRefundNotice is the notice beyond which a cancellation is refunded
	// in full.
	FullRefundNotice = 24 * time.Hour
	// PartialRefundPercent applies between the cutoff and full-refund notice.
	PartialRefundPercent = 50
)

// CanBeCancelled reports whether b may still be cancelled at now: it must be
// pending or confirmed and start strictly more than an hour later.
func CanBeCancelled(b *model.Booking, now time.Time) bool {
	if b == nil {
		return false
	}
	if b.Status != model.BookingPending && b.Status != model.BookingConfirmed {
		return false
	}
	return b.StartTime.Sub(now) > CancellationCutoff
}

// CalculateRefund returns the amount that would be refunded if b were
// cancelled at now. The result is always between zero and the booking total.
func CalculateRefund(b *model.Booking, now time.Time) int64 {
	if !CanBeCancelled(b, now) {
		return 0
	}
	total := b.Pricing.TotalAmount
	if total <= 0 {
		return 0
	}
	notice := b.StartTime.Sub(now)
	switch {
	case notice > FullRefundNotice:
		return total
	case notice > CancellationCutoff:
		return percentOf(total, PartialRefundPercent)
	default:
		return 0
	}
}
