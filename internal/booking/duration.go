package booking

import (
	"time"

	"github.com/iliyamo/parking-lot-reservation/internal/model"
)

// ComputeDuration splits the window into whole hours and the remaining
// minutes. Seconds are truncated.
func ComputeDuration(start, end time.Time) (model.Duration, error) {
	if !end.After(start) {
		return model.Duration{}, ErrInvalidWindow
	}
	return splitMinutes(end.Sub(start)), nil
}

// Elapsed is ComputeDuration for already-validated spans such as an entry
// to exit interval; a non-positive span yields zero.
func Elapsed(from, to time.Time) model.Duration {
	if !to.After(from) {
		return model.Duration{}
	}
	return splitMinutes(to.Sub(from))
}

func splitMinutes(d time.Duration) model.Duration {
	total := int(d / time.Minute)
	return model.Duration{Hours: total / 60, Minutes: total % 60}
}
