package metrics

import "github.com/prometheus/client_golang/prometheus"

// Interfaces for metrics to avoid circular imports
type MetricsCounter interface {
	Inc()
}

type MetricsGauge interface {
	Set(float64)
	Add(float64)
}

type MetricsHistogram interface {
	Observe(float64)
}

// MetricsWrapper adapts Metrics to the small interfaces declared by the
// warehouse, features and ml packages.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

// Metrics returns the wrapped metrics.
func (w *MetricsWrapper) Metrics() *Metrics { return w.m }

func (w *MetricsWrapper) QueriesTotal() MetricsCounter {
	return &CounterWrapper{w.m.QueriesTotal}
}

func (w *MetricsWrapper) PredictionsStored() MetricsCounter {
	return &CounterWrapper{w.m.PredictionsStored}
}

func (w *MetricsWrapper) PredictionFailures() MetricsCounter {
	return &CounterWrapper{w.m.PredictionFailures}
}

func (w *MetricsWrapper) QueryDuration() MetricsHistogram {
	return &HistogramWrapper{w.m.QueryDuration}
}

func (w *MetricsWrapper) ModelScore(metric string) MetricsGauge {
	return &GaugeWrapper{w.m.ModelScore.WithLabelValues(metric)}
}

// warehouse.MetricsInterface

func (w *MetricsWrapper) QueryDurationObserve(v float64) {
	w.m.QueriesTotal.Inc()
	w.m.QueryDuration.Observe(v)
}

func (w *MetricsWrapper) QueryErrorsInc() { w.m.QueryErrors.Inc() }

// features.MetricsInterface

func (w *MetricsWrapper) RowsPreparedAdd(v float64)  { w.m.RowsPrepared.Add(v) }
func (w *MetricsWrapper) ImputedValuesAdd(v float64) { w.m.ImputedValues.Add(v) }

// ml.MetricsInterface

func (w *MetricsWrapper) PredictionsAdd(v float64)           { w.m.Predictions.Add(v) }
func (w *MetricsWrapper) BatchesInc()                        { w.m.PredictionBatches.Inc() }
func (w *MetricsWrapper) PredictionLatencyObserve(v float64) { w.m.PredictionLatency.Observe(v) }
func (w *MetricsWrapper) PredictionScoreObserve(v float64)   { w.m.PredictionScores.Observe(v) }
func (w *MetricsWrapper) ProbaUnsupportedInc()               { w.m.ProbaUnsupported.Inc() }

// ml.TrainingMetrics

func (w *MetricsWrapper) TrainingRunsInc()                  { w.m.TrainingRuns.Inc() }
func (w *MetricsWrapper) TrainingDurationObserve(v float64) { w.m.TrainingDuration.Observe(v) }
func (w *MetricsWrapper) ModelScoreSet(metric string, v float64) {
	w.m.ModelScore.WithLabelValues(metric).Set(v)
}

type CounterWrapper struct {
	c prometheus.Counter
}

func (cw *CounterWrapper) Inc() {
	cw.c.Inc()
}

type GaugeWrapper struct {
	g prometheus.Gauge
}

func (gw *GaugeWrapper) Set(v float64) {
	gw.g.Set(v)
}

func (gw *GaugeWrapper) Add(v float64) {
	gw.g.Add(v)
}

type HistogramWrapper struct {
	h prometheus.Histogram
}

func (hw *HistogramWrapper) Observe(v float64) {
	hw.h.Observe(v)
}
