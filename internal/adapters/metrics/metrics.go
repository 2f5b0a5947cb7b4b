// Package metrics exports protocol counters in the Prometheus format.
package metrics

import (
	"context"
	"net/http"

	"github.com/alejandrodnm/squadbid/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "squadbid"

// Metrics implementa ports.Publisher y ports.Notifier: cuenta eventos
// confirmados y lo que hace cada ciclo de los engines.
type Metrics struct {
	reg *prometheus.Registry

	events       *prometheus.CounterVec
	amounts      *prometheus.CounterVec
	lastSeq      prometheus.Gauge
	cycleActions *prometheus.CounterVec
	skipped      prometheus.Counter
	warnings     prometheus.Counter
}

// New crea un registry propio con los colectores del proceso y de Go.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_total",
			Help: "Committed ledger events by type.",
		}, []string{"type"}),
		amounts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "event_amount_total",
			Help: "Sum of amounts (minor units) carried by committed events, by type.",
		}, []string{"type"}),
		lastSeq: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_event_seq",
			Help: "Sequence number of the last published event.",
		}),
		cycleActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "actions_total",
			Help: "Transitions performed by the background engines.",
		}, []string{"action"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "skipped_total",
			Help: "Candidates the engines skipped after an expected rejection.",
		}),
		warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "warnings_total",
			Help: "Recoverable engine failures.",
		}),
	}
	m.reg.MustRegister(
		m.events, m.amounts, m.lastSeq, m.cycleActions, m.skipped, m.warnings,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Publish cuenta los eventos.
func (m *Metrics) Publish(events ...domain.Event) {
	for _, e := range events {
		m.events.WithLabelValues(string(e.Type)).Inc()
		if e.Amount > 0 {
			m.amounts.WithLabelValues(string(e.Type)).Add(float64(e.Amount))
		}
		m.lastSeq.Set(float64(e.Seq))
	}
}

// NotifyCycle cuenta las acciones de un ciclo.
func (m *Metrics) NotifyCycle(_ context.Context, rep domain.CycleReport) error {
	m.cycleActions.WithLabelValues("matched").Add(float64(len(rep.Matched)))
	m.cycleActions.WithLabelValues("settled").Add(float64(len(rep.Settled)))
	m.cycleActions.WithLabelValues("disputed").Add(float64(len(rep.Disputed)))
	m.cycleActions.WithLabelValues("swept").Add(float64(len(rep.Swept)))
	m.skipped.Add(float64(rep.Skipped))
	m.warnings.Add(float64(len(rep.Warnings)))
	return nil
}

// Handler sirve /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
