package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "parking"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		},
		[]string{"route", "method", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	bookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transitions_total",
			Help:      "Booking status changes by resulting status.",
		},
		[]string{"status"},
	)

	bookingsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Bookings written.",
		},
	)

	bookingConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_conflicts_total",
			Help:      "Booking writes rejected for capacity, by reason.",
		},
		[]string{"reason"},
	)

	refundedAmount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunded_amount_total",
			Help:      "Sum of refunded amounts in currency units.",
		},
	)

	noShowsSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "no_show_swept_total",
			Help:      "Bookings marked no-show by the sweeper.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			bookingTransitions,
			bookingsCreated,
			bookingConflicts,
			refundedAmount,
			noShowsSwept,
		)
	})
}

// ObserveHTTP records one served request.
func ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// IncBookingCreated counts a written booking.
func IncBookingCreated() { bookingsCreated.Inc() }

// IncTransition counts a status change into status.
func IncTransition(status string) { bookingTransitions.WithLabelValues(status).Inc() }

// IncConflict counts a booking rejected for capacity.
func IncConflict(reason string) { bookingConflicts.WithLabelValues(reason).Inc() }

// AddRefund accumulates a refunded amount.
func AddRefund(amount int64) {
	if amount > 0 {
		refundedAmount.Add(float64(amount))
	}
}

// AddNoShows counts bookings swept to no-show.
func AddNoShows(n int) {
	if n > 0 {
		noShowsSwept.Add(float64(n))
	}
}
