// Package metrics counts curation decisions with Prometheus collectors.
//
// A Recorder owns its registry so that batches (and tests) never share
// state. All methods are safe on a nil *Recorder, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the curation metrics of one process.
type Recorder struct {
	registry *prometheus.Registry

	rows            prometheus.Counter
	minted          *prometheus.CounterVec
	conflicts       *prometheus.CounterVec
	merges          *prometheus.CounterVec
	droppedValues   *prometheus.CounterVec
	lookups         *prometheus.CounterVec
	lookupErrors    *prometheus.CounterVec
	lookupDuration  *prometheus.HistogramVec
	batchDuration   prometheus.Histogram
	refusedReorders prometheus.Counter
}

// New creates a Recorder with a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bibmeta_rows_total",
			Help: "Citation rows curated",
		}),
		minted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bibmeta_minted_total",
			Help: "Canonical ids minted, by counter",
		}, []string{"counter"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bibmeta_conflicts_total",
			Help: "Conflict entities created, by entity kind",
		}, []string{"kind"}),
		merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bibmeta_merges_total",
			Help: "Provisional entities folded into another entity, by entity kind",
		}, []string{"kind"}),
		droppedValues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bibmeta_dropped_values_total",
			Help: "Malformed field values dropped, by column",
		}, []string{"column"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bibmeta_resolver_lookups_total",
			Help: "Knowledge store lookups, by method",
		}, []string{"method"}),
		lookupErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bibmeta_resolver_errors_total",
			Help: "Failed knowledge store lookups, by method",
		}, []string{"method"}),
		lookupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bibmeta_resolver_lookup_seconds",
			Help:    "Knowledge store lookup latency",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"method"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bibmeta_batch_seconds",
			Help:    "Wall time of a curation batch",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		refusedReorders: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bibmeta_refused_reorders_total",
			Help: "Contributor reorderings proposed by input and refused",
		}),
	}
	r.registry.MustRegister(
		r.rows, r.minted, r.conflicts, r.merges, r.droppedValues,
		r.lookups, r.lookupErrors, r.lookupDuration, r.batchDuration, r.refusedReorders,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) Rows(n int) {
	if r == nil {
		return
	}
	r.rows.Add(float64(n))
}

func (r *Recorder) Minted(counter string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.minted.WithLabelValues(counter).Add(float64(n))
}

func (r *Recorder) Conflict(kind string) {
	if r == nil {
		return
	}
	r.conflicts.WithLabelValues(kind).Inc()
}

func (r *Recorder) Merge(kind string) {
	if r == nil {
		return
	}
	r.merges.WithLabelValues(kind).Inc()
}

func (r *Recorder) Dropped(column string) {
	if r == nil {
		return
	}
	r.droppedValues.WithLabelValues(column).Inc()
}

func (r *Recorder) RefusedReorder() {
	if r == nil {
		return
	}
	r.refusedReorders.Inc()
}

// Lookup records one knowledge store call.
func (r *Recorder) Lookup(method string, d time.Duration, err error) {
	if r == nil {
		return
	}
	r.lookups.WithLabelValues(method).Inc()
	r.lookupDuration.WithLabelValues(method).Observe(d.Seconds())
	if err != nil {
		r.lookupErrors.WithLabelValues(method).Inc()
	}
}

// Batch records the wall time of a finished batch.
func (r *Recorder) Batch(d time.Duration) {
	if r == nil {
		return
	}
	r.batchDuration.Observe(d.Seconds())
}

// WriteTextfile writes every metric in the Prometheus text format, for the
// node exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
