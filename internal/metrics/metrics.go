package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	reservationCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adsched",
			Name:      "reservation_created_total",
			Help:      "Count of reservations created by initial status.",
		},
		[]string{"status"},
	)

	conflictDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "adsched",
			Name:      "conflict_detected_total",
			Help:      "Count of create/update attempts rejected by an overlap conflict.",
		},
	)

	statusTransition = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adsched",
			Name:      "status_transition_total",
			Help:      "Count of explicit status transitions by edge.",
		},
		[]string{"from", "to"},
	)

	autoAdvanced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adsched",
			Name:      "auto_advance_total",
			Help:      "Count of reservations promoted by the time sweep, by rule.",
		},
		[]string{"rule"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(reservationCreated, conflictDetected, statusTransition, autoAdvanced)
	})
}

func IncReservationCreated(status string) {
	reservationCreated.WithLabelValues(status).Inc()
}

func IncConflictDetected() {
	conflictDetected.Inc()
}

func IncTransition(from, to string) {
	statusTransition.WithLabelValues(from, to).Inc()
}

func AddAutoAdvanced(rule string, n float64) {
	autoAdvanced.WithLabelValues(rule).Add(n)
}
