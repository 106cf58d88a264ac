// Package ml trains, persists and serves the binary classifiers of the order
// pipeline: delivery delay, churn and positive review.
package ml

import (
	"fmt"
	"time"
)

// Classifier assigns a class to each row of a feature matrix.
type Classifier interface {
	Predict(X [][]float64) []int
}

// ProbabilisticClassifier also reports per-class probabilities.
type ProbabilisticClassifier interface {
	Classifier
	PredictProba(X [][]float64) [][]float64
}

// Estimator is a classifier that can be trained.
type Estimator interface {
	ProbabilisticClassifier
	Fit(X [][]float64, y []int) error
	FeatureImportances() []float64
}

// ModelType names a supported estimator.
type ModelType string

const (
	GradientBoostingModel ModelType = "gradient_boosting"
	RandomForestModel     ModelType = "random_forest"
)

// ParseModelType validates a model type name.
func ParseModelType(s string) (ModelType, error) {
	switch ModelType(s) {
	case GradientBoostingModel, RandomForestModel:
		return ModelType(s), nil
	}
	return "", fmt.Errorf("unknown model type %q (want %s or %s)", s, GradientBoostingModel, RandomForestModel)
}

// Params overrides estimator hyperparameters by name.
type Params map[string]float64

// newEstimator builds an estimator of type t with the defaults overridden by params.
func newEstimator(t ModelType, params Params) (Estimator, error) {
	switch t {
	case GradientBoostingModel:
		g := NewGradientBoosting()
		for k, v := range params {
			switch k {
			case "n_estimators":
				g.NEstimators = int(v)
			case "learning_rate":
				g.LearningRate = v
			case "max_depth":
				g.MaxDepth = int(v)
			case "min_samples_split":
				g.MinSamplesSplit = int(v)
			case "min_samples_leaf":
				g.MinSamplesLeaf = int(v)
			case "subsample":
				g.Subsample = v
			default:
				return nil, fmt.Errorf("%s: unknown parameter %q", t, k)
			}
		}
		return g, nil
	case RandomForestModel:
		f := NewRandomForest()
		for k, v := range params {
			switch k {
			case "n_estimators":
				f.NEstimators = int(v)
			case "max_depth":
				f.MaxDepth = int(v)
			case "min_samples_split":
				f.MinSamplesSplit = int(v)
			case "min_samples_leaf":
				f.MinSamplesLeaf = int(v)
			case "max_features":
				f.MaxFeatures = int(v)
			case "bootstrap":
				f.Bootstrap = v != 0
			default:
				return nil, fmt.Errorf("%s: unknown parameter %q", t, k)
			}
		}
		return f, nil
	}
	return nil, fmt.Errorf("unknown model type %q", t)
}

// Artifact is the persisted form of a trained model: the estimator plus the
// ordered feature names it was trained on.
type Artifact struct {
	Kind      ModelType
	Features  []string
	TrainedAt time.Time
	Forest    *RandomForest
	Boosted   *GradientBoosting
}

// newArtifact wraps a trained estimator.
func newArtifact(t ModelType, est Estimator, features []string) (*Artifact, error) {
	a := &Artifact{Kind: t, Features: append([]string(nil), features...), TrainedAt: time.Now().UTC()}
	switch m := est.(type) {
	case *GradientBoosting:
		a.Boosted = m
	case *RandomForest:
		a.Forest = m
	default:
		return nil, fmt.Errorf("cannot persist estimator %T", est)
	}
	return a, nil
}

// Estimator returns the stored estimator.
func (a *Artifact) Estimator() (Estimator, error) {
	switch {
	case a.Kind == GradientBoostingModel && a.Boosted != nil:
		return a.Boosted, nil
	case a.Kind == RandomForestModel && a.Forest != nil:
		return a.Forest, nil
	}
	return nil, fmt.Errorf("artifact of kind %q carries no estimator", a.Kind)
}
