// Package prometheusmetrics implements metrics.Store on top of
// prometheus/client_golang, mirroring the counters and gauge exposed by
// the message bus this project was distilled from: started/failed/closed
// transaction counters, an in-progress gauge, and a messages-processed
// counter labeled by name and version.
package prometheusmetrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghuser/txbus/metrics"
)

// Store is a prometheus-backed metrics.Store. New registers its
// collectors with the prometheus.Registerer it is given.
type Store struct {
	started   prometheus.Counter
	failed    prometheus.Counter
	closed    *prometheus.CounterVec
	inFlight  prometheus.Gauge
	processed *prometheus.CounterVec
}

// New creates and registers the bus metric collectors against reg.
func New(reg prometheus.Registerer) (*Store, error) {
	s := &Store{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messagebus_transactions_started_total",
			Help: "Total number of unit-of-work transactions begun.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messagebus_transactions_failed_total",
			Help: "Total number of unit-of-work transactions closed after a rollback.",
		}),
		closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messagebus_transactions_closed_total",
			Help: "Total number of unit-of-work transactions closed, by terminal status.",
		}, []string{"status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "messagebus_transactions_in_progress",
			Help: "Number of unit-of-work transactions currently open.",
		}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messagebus_messages_processed_total",
			Help: "Total number of messages dispatched, by message name and version.",
		}, []string{"name", "version"}),
	}
	for _, c := range []prometheus.Collector{s.started, s.failed, s.closed, s.inFlight, s.processed} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) IncTransactionsStarted() {
	s.started.Inc()
	s.inFlight.Inc()
}

func (s *Store) IncTransactionsClosed(status string) {
	s.closed.WithLabelValues(status).Inc()
	s.inFlight.Dec()
}

func (s *Store) IncTransactionsFailed() {
	s.failed.Inc()
}

func (s *Store) IncMessagesProcessed(name string, version int) {
	s.processed.WithLabelValues(name, strconv.Itoa(version)).Inc()
}

var _ metrics.Store = (*Store)(nil)
