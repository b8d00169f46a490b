package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReservationCreateDuration tracks how long reservation creation takes, by outcome kind.
	ReservationCreateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "reservation_create_duration_seconds",
			Help: "Duration of reservation creation in seconds",
			Buckets: []float64{
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
			},
		},
		[]string{"outcome"},
	)

	DiscountRedemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discount_redemptions_total",
			Help: "Guarded discount code redemptions by outcome",
		},
		[]string{"outcome"}, // redeemed, exhausted or error
	)

	PaymentTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_transitions_total",
			Help: "Payment status changes by target status",
		},
		[]string{"to"},
	)

	ClassDeletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "class_deletions_total",
			Help: "Deleted classes, split by forced cascade",
		},
		[]string{"forced"},
	)

	CompletedReservations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "completed_reservations_total",
			Help: "Reservations moved to COMPLETED after their class ended",
		},
	)
)

// RecordReservationCreate records the duration of one create call.
func RecordReservationCreate(outcome string, seconds float64) {
	ReservationCreateDuration.WithLabelValues(outcome).Observe(seconds)
}

func RecordRedemption(outcome string) {
	DiscountRedemptions.WithLabelValues(outcome).Inc()
}

func RecordPaymentTransition(to string) {
	PaymentTransitions.WithLabelValues(to).Inc()
}

func RecordClassDeletion(forced bool) {
	label := "false"
	if forced {
		label = "true"
	}
	ClassDeletions.WithLabelValues(label).Inc()
}

func RecordCompleted(n int) {
	CompletedReservations.Add(float64(n))
}
