// Package metrics exports sync progress as Prometheus metrics. A run is a
// batch job, so the registry is pushed to a Pushgateway when it finishes.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/heartmarshall/eventsync/internal/sync"
)

const namespace = "eventsync"

// Recorder implements sync.Recorder on a private registry.
type Recorder struct {
	reg *prometheus.Registry

	pages         *prometheus.CounterVec
	rows          *prometheus.CounterVec
	enrichment    *prometheus.CounterVec
	sourceUp      *prometheus.GaugeVec
	duration      *prometheus.GaugeVec
	lastSuccessTS *prometheus.GaugeVec
}

// New creates a Recorder with all collectors registered.
func New() *Recorder {
	r := &Recorder{reg: prometheus.NewRegistry()}

	r.pages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pages_fetched_total",
		Help:      "Listing pages fetched per source",
	}, []string{"source"})
	r.rows = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_total",
		Help:      "Listing rows processed per source and result",
	}, []string{"source", "result"})
	r.enrichment = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enrichment_total",
		Help:      "Enrichment outcomes per source",
	}, []string{"source", "outcome"})
	r.sourceUp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "source_up",
		Help:      "1 if the last run of the source finished without a listing failure",
	}, []string{"source"})
	r.duration = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "source_duration_seconds",
		Help:      "Duration of the last run per source",
	}, []string{"source"})
	r.lastSuccessTS = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "source_last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful run per source",
	}, []string{"source"})

	r.reg.MustRegister(r.pages, r.rows, r.enrichment, r.sourceUp, r.duration, r.lastSuccessTS)
	return r
}

// Registry returns the registry holding every collector.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

func (r *Recorder) PageFetched(source string) {
	r.pages.WithLabelValues(source).Inc()
}

func (r *Recorder) RowProcessed(source string, result sync.RowResult) {
	r.rows.WithLabelValues(source, string(result)).Inc()
}

func (r *Recorder) EnrichmentDone(source string, outcome sync.Outcome) {
	r.enrichment.WithLabelValues(source, string(outcome)).Inc()
}

func (r *Recorder) SourceFinished(s sync.Summary) {
	r.duration.WithLabelValues(s.Source).Set(s.Duration.Seconds())
	if s.State == sync.StateFailed {
		r.sourceUp.WithLabelValues(s.Source).Set(0)
		return
	}
	r.sourceUp.WithLabelValues(s.Source).Set(1)
	r.lastSuccessTS.WithLabelValues(s.Source).Set(float64(s.StartedAt.Add(s.Duration).Unix()))
}

// Push sends the registry to the Pushgateway at url under job.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(r.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
