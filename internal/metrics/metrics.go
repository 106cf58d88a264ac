// Package metrics provides Prometheus metrics collection for the order ML
// pipeline. It defines the counters, gauges and histograms reported while
// loading warehouse data, preparing features, training and scoring models.
//
// The CLIs are short-lived, so instead of serving an endpoint they flush
// the registry to a node-exporter textfile on exit (see WriteToTextfile).
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	// Warehouse metrics
	QueryDuration prometheus.Histogram // Duration of warehouse queries
	QueryErrors   prometheus.Counter   // Warehouse queries that failed
	QueriesTotal  prometheus.Counter   // Warehouse queries issued

	// Feature preparation metrics
	RowsPrepared  prometheus.Counter // Rows turned into model inputs
	ImputedValues prometheus.Counter // Missing numeric values filled with a median

	// Prediction metrics
	Predictions        prometheus.Counter   // Rows scored
	PredictionBatches  prometheus.Counter   // Batches scored
	PredictionLatency  prometheus.Histogram // Scoring latency per call
	PredictionScores   prometheus.Histogram // Positive-class probabilities
	ProbaUnsupported   prometheus.Counter   // Calls against models without probabilities
	PredictionsStored  prometheus.Counter   // Predictions persisted to the run store
	PredictionFailures prometheus.Counter   // Scoring runs that failed

	// Training metrics
	TrainingRuns     prometheus.Counter
	TrainingDuration prometheus.Histogram
	ModelScore       *prometheus.GaugeVec // Held-out score by metric name

	gatherer prometheus.Gatherer
}

// New creates and registers all metrics on a fresh registry. Each CLI run
// owns its registry and flushes it with WriteToTextfile.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry creates metrics on the given registerer. When it is also
// a Gatherer (as *prometheus.Registry is) the metrics can be written out.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	m := &Metrics{
		QueryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "obtml_query_duration_seconds",
			Help:    "Duration of warehouse queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		QueryErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "obtml_query_errors_total",
			Help: "Total number of failed warehouse queries",
		}),
		QueriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "obtml_queries_total",
			Help: "Total number of warehouse queries issued",
		}),
		RowsPrepared: factory.NewCounter(prometheus.CounterOpts{
			Name: "obtml_rows_prepared_total",
			Help: "Total number of rows turned into model inputs",
		}),
		ImputedValues: factory.NewCounter(prometheus.CounterOpts{
			Name: "obtml_imputed_values_total",
			Help: "Total number of missing numeric values filled with the column median",
		}),
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "obtml_predictions_total",
			Help: "Total number of rows scored",
		}),
		PredictionBatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "obtml_prediction_batches_total",
			Help: "Total number of prediction batches",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "obtml_prediction_latency_seconds",
			Help:    "Prediction latency in seconds per call",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		PredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "obtml_prediction_scores",
			Help:    "Distribution of positive-class probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ProbaUnsupported: factory.NewCounter(prometheus.CounterOpts{
			Name: "obtml_proba_unsupported_total",
			Help: "Total number of probability requests against models without probability support",
		}),
		PredictionsStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "obtml_predictions_stored_total",
			Help: "Total number of predictions persisted to the run store",
		}),
		PredictionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "obtml_prediction_failures_total",
			Help: "Total number of failed scoring runs",
		}),
		TrainingRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "obtml_training_runs_total",
			Help: "Total number of completed training runs",
		}),
		TrainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "obtml_training_duration_seconds",
			Help:    "Model fitting time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}),
		ModelScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "obtml_model_score",
			Help: "Held-out score of the last trained model",
		}, []string{"metric"}),
	}
	if g, ok := registerer.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// QueryErrorRate returns failed queries over issued queries, or 0 before
// any query has run.
func (m *Metrics) QueryErrorRate() float64 {
	if m.gatherer == nil {
		return 0
	}
	families, err := m.gatherer.Gather()
	if err != nil {
		return 0
	}

	var total, failed float64
	for _, mf := range families {
		switch mf.GetName() {
		case "obtml_queries_total":
			for _, mm := range mf.Metric {
				total = mm.GetCounter().GetValue()
			}
		case "obtml_query_errors_total":
			for _, mm := range mf.Metric {
				failed = mm.GetCounter().GetValue()
			}
		}
	}
	if total == 0 {
		return 0
	}
	return failed / total
}

// WriteToTextfile writes every registered metric to path in the text
// exposition format read by the node exporter's textfile collector.
func (m *Metrics) WriteToTextfile(path string) error {
	if m.gatherer == nil {
		return fmt.Errorf("metrics registry cannot be gathered")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return prometheus.WriteToTextfile(path, m.gatherer)
}
