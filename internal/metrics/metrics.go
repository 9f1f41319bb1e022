package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values for ReservationAttempts.
const (
	OutcomeCommitted = "committed"
	OutcomeRejected  = "rejected"
	OutcomeConflict  = "conflict"
	OutcomeTimeout   = "lock_timeout"
	OutcomeFailed    = "failed"
)

var (
	ReservationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "reservation_attempts_total",
			Help:      "Reservation attempts by kind (online, manual) and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	SeatsBooked = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "seats_booked_total",
			Help:      "Seats committed to bookings.",
		},
	)

	CodeCollisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "code_collisions_total",
			Help:      "Booking code draws rejected because the code was in use.",
		},
	)

	TransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "booking",
			Name:      "transaction_duration_seconds",
			Help:      "Wall time of booking transactions including lock waits.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "notifications_failed_total",
			Help:      "Post-commit notifications that could not be published.",
		},
		[]string{"kind"},
	)
)
