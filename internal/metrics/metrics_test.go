package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		ObserveHTTP("/v1/lots", "GET", 200, 15*time.Millisecond)
	})

	before := testutil.ToFloat64(bookingTransitions.WithLabelValues("confirmed"))
	IncTransition("confirmed")
	assert.Equal(t, before+1, testutil.ToFloat64(bookingTransitions.WithLabelValues("confirmed")))

	refunds := testutil.ToFloat64(refundedAmount)
	AddRefund(500)
	AddRefund(-10)
	assert.Equal(t, refunds+500, testutil.ToFloat64(refundedAmount))

	swept := testutil.ToFloat64(noShowsSwept)
	AddNoShows(0)
	AddNoShows(3)
	assert.Equal(t, swept+3, testutil.ToFloat64(noShowsSwept))
}
