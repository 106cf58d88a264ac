package ml

import (
	"fmt"
	"time"

	"olist-ml/internal/dataset"

	"github.com/rs/zerolog/log"
)

// MetricsInterface defines metrics methods needed by the predictor
type MetricsInterface interface {
	PredictionsAdd(float64)
	BatchesInc()
	PredictionLatencyObserve(float64)
	PredictionScoreObserve(float64)
	ProbaUnsupportedInc()
}

// Predictor serves a trained classifier over prepared feature matrices.
// It is immutable once built and safe for concurrent use if the
// classifier is.
type Predictor struct {
	model    Classifier
	features []string
	path     string
	metrics  MetricsInterface
}

// Probabilities is the result of PredictProba. Available is false when the
// model cannot produce probabilities; Values is then nil.
type Probabilities struct {
	Available bool
	Values    [][]float64
}

// PredictionResult is the scored form of one row. When HasProbability is
// false, Confidence and Probabilities are absent.
type PredictionResult struct {
	Prediction     int       `json:"prediction"`
	Confidence     float64   `json:"confidence,omitempty"`
	Probabilities  []float64 `json:"probabilities,omitempty"`
	HasProbability bool      `json:"has_probability"`
}

// Positive returns P(class 1) when available.
func (r PredictionResult) Positive() (float64, bool) {
	if !r.HasProbability || len(r.Probabilities) < 2 {
		return 0, false
	}
	return r.Probabilities[1], true
}

// Load reads the model at path. A missing or undecodable file fails here
// with a *ModelNotLoadedError rather than on first use.
func Load(path string) (*Predictor, error) {
	return LoadWithMetrics(path, nil)
}

// LoadWithMetrics is Load with a metrics sink.
func LoadWithMetrics(path string, metrics MetricsInterface) (*Predictor, error) {
	a, err := LoadModel(path)
	if err != nil {
		log.Error().Err(err).Str("model_path", path).Msg("Failed to load model")
		return nil, err
	}
	est, err := a.Estimator()
	if err != nil {
		return nil, &ModelNotLoadedError{Path: path, Err: err}
	}
	p := NewPredictor(est, a.Features)
	p.path = path
	p.metrics = metrics
	return p, nil
}

// NewPredictor wraps an in-memory classifier. features is the column order
// the classifier expects; when empty, every numeric column of the input is
// used in its own order.
func NewPredictor(model Classifier, features []string) *Predictor {
	return &Predictor{model: model, features: append([]string(nil), features...)}
}

// WithMetrics sets the metrics sink and returns p.
func (p *Predictor) WithMetrics(m MetricsInterface) *Predictor {
	p.metrics = m
	return p
}

// Features returns the feature names the model was trained on.
func (p *Predictor) Features() []string { return p.features }

// Path returns the artifact path, empty for in-memory models.
func (p *Predictor) Path() string { return p.path }

// matrix aligns X to the model's features.
func (p *Predictor) matrix(X *dataset.Dataset) ([][]float64, error) {
	names := p.features
	if len(names) == 0 {
		names = X.NumericNames()
	}
	for _, name := range names {
		if !X.Has(name) {
			return nil, &dataset.MissingFeatureError{Feature: name, Available: X.Names()}
		}
	}
	return X.Matrix(names)
}

// Predict returns the model's class for every row.
func (p *Predictor) Predict(X *dataset.Dataset) ([]int, error) {
	if p == nil || p.model == nil {
		return nil, &ModelNotLoadedError{Err: fmt.Errorf("no model")}
	}
	m, err := p.matrix(X)
	if err != nil {
		return nil, err
	}
	return p.model.Predict(m), nil
}

// PredictProba returns per-class probabilities, or Available=false when the
// model has no probability support.
func (p *Predictor) PredictProba(X *dataset.Dataset) (Probabilities, error) {
	if p == nil || p.model == nil {
		return Probabilities{}, &ModelNotLoadedError{Err: fmt.Errorf("no model")}
	}
	pc, ok := p.model.(ProbabilisticClassifier)
	if !ok {
		log.Warn().Msg("Model does not support probability predictions")
		if p.metrics != nil {
			p.metrics.ProbaUnsupportedInc()
		}
		return Probabilities{}, nil
	}
	m, err := p.matrix(X)
	if err != nil {
		return Probabilities{}, err
	}
	return Probabilities{Available: true, Values: pc.PredictProba(m)}, nil
}

// PredictWithConfidence scores every row: the model's class, the maximum
// class probability as confidence, and the per-class probabilities.
//
// threshold is accepted for callers that branch on it but does not change
// the class, which always comes from the model's own decision rule.
func (p *Predictor) PredictWithConfidence(X *dataset.Dataset, threshold float64) ([]PredictionResult, error) {
	start := time.Now()
	labels, err := p.Predict(X)
	if err != nil {
		return nil, err
	}
	proba, err := p.PredictProba(X)
	if err != nil {
		return nil, err
	}
	if proba.Available && len(proba.Values) != len(labels) {
		return nil, fmt.Errorf("model returned %d probability rows for %d predictions", len(proba.Values), len(labels))
	}

	out := make([]PredictionResult, len(labels))
	for i, label := range labels {
		out[i].Prediction = label
		if !proba.Available {
			continue
		}
		row := proba.Values[i]
		best := row[0]
		for _, v := range row[1:] {
			if v > best {
				best = v
			}
		}
		out[i].Confidence = best
		out[i].Probabilities = row
		out[i].HasProbability = true
		if p.metrics != nil && len(row) > 1 {
			p.metrics.PredictionScoreObserve(row[1])
		}
	}

	if p.metrics != nil {
		p.metrics.PredictionsAdd(float64(len(out)))
		p.metrics.PredictionLatencyObserve(time.Since(start).Seconds())
	}
	return out, nil
}

// DefaultThreshold is the nominal decision threshold passed by callers.
const DefaultThreshold = 0.5

// BatchPredict scores X in contiguous chunks of batchSize rows, in order.
// The output is identical to a single PredictWithConfidence call.
func (p *Predictor) BatchPredict(X *dataset.Dataset, batchSize int) ([]PredictionResult, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	n := X.NumRows()
	batches := (n + batchSize - 1) / batchSize
	out := make([]PredictionResult, 0, n)
	for b, start := 0, 0; start < n; b, start = b+1, start+batchSize {
		end := start + batchSize
		if end > n {
			end = n
		}
		res, err := p.PredictWithConfidence(X.Slice(start, end), DefaultThreshold)
		if err != nil {
			return nil, fmt.Errorf("batch %d/%d: %w", b+1, batches, err)
		}
		out = append(out, res...)
		if p.metrics != nil {
			p.metrics.BatchesInc()
		}
		log.Debug().Int("batch", b+1).Int("batches", batches).Int("rows", end-start).Msg("Processed batch")
	}
	log.Info().Int("rows", n).Int("batches", batches).Msg("Batch prediction complete")
	return out, nil
}
