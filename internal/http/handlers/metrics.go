// Domain-level Prometheus metrics. HTTP-level metrics (latency, status,
// sizes) live in the middleware package; these count business outcomes.
package handlers

import "github.com/prometheus/client_golang/prometheus"

var (
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_turns_total",
			Help: "Conversation turns by outcome.",
		},
		[]string{"outcome"},
	)

	invoicesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "invoices_created_total",
			Help: "Invoices persisted from completed conversations.",
		},
	)
)

func init() {
	prometheus.MustRegister(turnsTotal, invoicesCreated)
}
