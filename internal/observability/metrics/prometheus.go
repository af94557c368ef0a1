// Package metrics provides Prometheus metrics for the claims service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics.
type Metrics struct {
	CycleClassifications   *prometheus.CounterVec
	ClassificationDuration prometheus.Histogram
	HIVChecks              *prometheus.CounterVec
	SubstitutionLookups    *prometheus.CounterVec
	TicketLookups          prometheus.Counter
}

// New creates and registers all metrics.
func New() *Metrics {
	m := &Metrics{
		CycleClassifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cycle_classifications_total",
			Help: "Treatment-cycle classifications by verdict",
		}, []string{"verdict"}),
		ClassificationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cycle_classification_duration_seconds",
			Help:    "Classification duration including collaborator reads",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		HIVChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hiv_checks_total",
			Help: "HIV medication registry checks by result",
		}, []string{"es_hiv"}),
		SubstitutionLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "substitution_lookups_total",
			Help: "Substitution table resolutions by result",
		}, []string{"result"}),
		TicketLookups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ticket_lookups_total",
			Help: "Total ticket lookups",
		}),
	}

	prometheus.MustRegister(
		m.CycleClassifications,
		m.ClassificationDuration,
		m.HIVChecks,
		m.SubstitutionLookups,
		m.TicketLookups,
	)

	return m
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
