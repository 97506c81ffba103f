package session

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are shared by all sessions of a process. Collectors are safe for
// concurrent use.
type Metrics struct {
	Sessions   *prometheus.CounterVec
	Accepted   *prometheus.CounterVec
	Dropped    *prometheus.CounterVec
	Enrichment *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricespread",
			Name:      "sessions_total",
			Help:      "Crawl sessions by marketplace and terminal outcome.",
		}, []string{"marketplace", "outcome"}),
		Accepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricespread",
			Name:      "products_accepted_total",
			Help:      "Candidates accepted into the price distributions.",
		}, []string{"marketplace"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricespread",
			Name:      "candidates_dropped_total",
			Help:      "Candidates dropped during parsing, by reason.",
		}, []string{"marketplace", "reason"}),
		Enrichment: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricespread",
			Name:      "enrichment_total",
			Help:      "Per-product enrichment attempts by result.",
		}, []string{"marketplace", "result"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pricespread",
			Name:      "session_duration_seconds",
			Help:      "Wall time of a crawl session.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"marketplace"}),
	}

	if reg != nil {
		reg.MustRegister(m.Sessions, m.Accepted, m.Dropped, m.Enrichment, m.Duration)
	}
	return m
}
