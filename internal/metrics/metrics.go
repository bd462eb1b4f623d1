// Package metrics exposes Prometheus instrumentation for top ten runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/treefix50/topten/internal/topten"
)

// Recorder implements topten.MetricsRecorder.
type Recorder struct {
	runs               *prometheus.CounterVec
	phaseDuration      *prometheus.HistogramVec
	rankedItems        *prometheus.GaugeVec
	extractionFailures *prometheus.CounterVec
	collectionChanges  *prometheus.CounterVec
	lastSuccess        prometheus.Gauge
	configuredTopCount prometheus.Gauge
}

var _ topten.MetricsRecorder = (*Recorder)(nil)

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "topten_runs_total",
			Help: "Top ten runs by outcome",
		}, []string{"outcome"}), // one of the topten.Outcome constants
		phaseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "topten_phase_duration_seconds",
			Help:    "Duration of each run phase",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"phase"}),
		rankedItems: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "topten_ranked_items",
			Help: "Items ranked per kind in the last run",
		}, []string{"kind"}),
		extractionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "topten_extraction_failures_total",
			Help: "Extraction failures that degraded a ranking to empty",
		}, []string{"kind"}),
		collectionChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "topten_collection_changes_total",
			Help: "Collection members added or removed",
		}, []string{"op"}), // op=add|remove
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "topten_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run",
		}),
		configuredTopCount: f.NewGauge(prometheus.GaugeOpts{
			Name: "topten_configured_top_item_count",
			Help: "Top item count of the last run",
		}),
	}
}

func (r *Recorder) ObservePhase(phase topten.Phase, d time.Duration) {
	r.phaseDuration.WithLabelValues(phase.String()).Observe(d.Seconds())
}

func (r *Recorder) RecordRanked(kind topten.Kind, count int) {
	r.rankedItems.WithLabelValues(string(kind)).Set(float64(count))
}

func (r *Recorder) IncExtractionFailure(kind topten.Kind) {
	r.extractionFailures.WithLabelValues(string(kind)).Inc()
}

func (r *Recorder) RecordCollectionChanges(added, removed int) {
	if added > 0 {
		r.collectionChanges.WithLabelValues("add").Add(float64(added))
	}
	if removed > 0 {
		r.collectionChanges.WithLabelValues("remove").Add(float64(removed))
	}
}

func (r *Recorder) IncRun(outcome string) {
	r.runs.WithLabelValues(outcome).Inc()
	if outcome == topten.OutcomeSuccess {
		r.lastSuccess.SetToCurrentTime()
	}
}

// SetTopItemCount records the configured N for dashboards.
func (r *Recorder) SetTopItemCount(n int) {
	r.configuredTopCount.Set(float64(n))
}
