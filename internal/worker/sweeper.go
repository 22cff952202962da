// Package worker runs periodic background jobs.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const sweepBatch = 100

// NoShowSweeper is implemented by service.BookingService.
type NoShowSweeper interface {
	SweepNoShows(ctx context.Context, grace time.Duration, batch int) (int, error)
}

// Sweeper marks bookings whose holders never arrived as no-shows.
type Sweeper struct {
	svc      NoShowSweeper
	interval time.Duration
	grace    time.Duration
	log      zerolog.Logger
}

func NewSweeper(svc NoShowSweeper, interval, grace time.Duration, log zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		svc:      svc,
		interval: interval,
		grace:    grace,
		log:      log.With().Str("component", "no-show-sweeper").Logger(),
	}
}

// Run sweeps once per interval until ctx is cancelled.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info().Dur("interval", w.interval).Dur("grace", w.grace).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep drains due bookings in batches and returns how many were moved.
func (w *Sweeper) Sweep(ctx context.Context) int {
	total := 0
	for ctx.Err() == nil {
		n, err := w.svc.SweepNoShows(ctx, w.grace, sweepBatch)
		total += n
		if err != nil {
			w.log.Error().Err(err).Msg("no-show sweep failed")
			break
		}
		if n < sweepBatch {
			break
		}
	}
	if total > 0 {
		w.log.Info().Int("count", total).Msg("bookings marked no-show")
	}
	return total
}
