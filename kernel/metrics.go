package kernel

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the Prometheus-backed counter set Center, Guide, the
// decks, and Execution feed. Registered once by New and served
// by cmd/monokerneld's /metrics endpoint.
type Metrics struct {
	EventsAccepted  prometheus.Counter
	EventsRejected  *prometheus.CounterVec // reason
	EventsDenied    prometheus.Counter
	RoutingFull     prometheus.Counter
	RoutingErrors   prometheus.Counter
	DeckProcessed   *prometheus.CounterVec // deck
	DeckFailed      *prometheus.CounterVec // deck
	ResponsesSent   prometheus.Counter
	RoutingTableLen prometheus.Gauge
}

// NewMetrics builds and registers a Metrics set against reg. Passing a
// fresh prometheus.NewRegistry() keeps each System's metrics isolated,
// which the test suite relies on to run several Systems in one process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "monokernel",
			Subsystem: "receiver",
			Name:      "events_accepted_total",
			Help:      "Events accepted by Receiver and forwarded to Center.",
		}),
		EventsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "monokernel",
			Subsystem: "receiver",
			Name:      "events_rejected_total",
			Help:      "Events rejected by Receiver's structural validation, by reason.",
		}, []string{"reason"}),
		EventsDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "monokernel",
			Subsystem: "center",
			Name:      "events_denied_total",
			Help:      "Events denied by Center's security check.",
		}),
		RoutingFull: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "monokernel",
			Subsystem: "routing",
			Name:      "bucket_full_total",
			Help:      "Insertions rejected because the target bucket was full.",
		}),
		RoutingErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "monokernel",
			Subsystem: "center",
			Name:      "routing_errors_total",
			Help:      "Events dropped because routing table insertion failed.",
		}),
		DeckProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "monokernel",
			Subsystem: "deck",
			Name:      "processed_total",
			Help:      "Routing steps completed successfully, by deck.",
		}, []string{"deck"}),
		DeckFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "monokernel",
			Subsystem: "deck",
			Name:      "failed_total",
			Help:      "Routing steps that ended in deck-reported failure, by deck.",
		}, []string{"deck"}),
		ResponsesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "monokernel",
			Subsystem: "execution",
			Name:      "responses_sent_total",
			Help:      "Responses pushed to the kernel-to-user ring.",
		}),
		RoutingTableLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "monokernel",
			Subsystem: "routing",
			Name:      "entries",
			Help:      "Current number of occupied routing-table entries.",
		}),
	}
	reg.MustRegister(
		m.EventsAccepted, m.EventsRejected, m.EventsDenied,
		m.RoutingFull, m.RoutingErrors,
		m.DeckProcessed, m.DeckFailed,
		m.ResponsesSent, m.RoutingTableLen,
	)
	return m
}
