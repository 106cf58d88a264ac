package ml

import (
	"fmt"
	"math"
	"math/rand"
)

// RandomForest is a bagged ensemble of classification trees for binary
// labels. Leaves hold the fraction of positive samples.
type RandomForest struct {
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	// MaxFeatures is the number of features tried per split; 0 means sqrt(n).
	MaxFeatures int
	Bootstrap   bool
	Seed        int64

	Trees       []Tree
	NFeatures   int
	Importances []float64
}

// NewRandomForest returns a forest with the default configuration.
func NewRandomForest() *RandomForest {
	return &RandomForest{
		NEstimators:     100,
		MaxDepth:        10,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Bootstrap:       true,
		Seed:            DefaultSeed,
	}
}

// Fit trains the forest on X and binary labels y.
func (f *RandomForest) Fit(X [][]float64, y []int) error {
	target, nf, err := checkBinary(X, y)
	if err != nil {
		return err
	}
	if f.NEstimators < 1 {
		return fmt.Errorf("random forest needs at least one estimator, got %d", f.NEstimators)
	}

	maxFeatures := f.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Max(1, math.Floor(math.Sqrt(float64(nf)))))
	}
	rng := rand.New(rand.NewSource(f.Seed))
	b := newTreeBuilder(X, target, TreeParams{
		MaxDepth:        f.MaxDepth,
		MinSamplesSplit: f.MinSamplesSplit,
		MinSamplesLeaf:  f.MinSamplesLeaf,
		MaxFeatures:     maxFeatures,
	}, rng)

	f.Trees = make([]Tree, 0, f.NEstimators)
	for t := 0; t < f.NEstimators; t++ {
		idx := make([]int, len(X))
		for i := range idx {
			if f.Bootstrap {
				idx[i] = rng.Intn(len(X))
			} else {
				idx[i] = i
			}
		}
		f.Trees = append(f.Trees, b.build(idx))
	}
	f.NFeatures = nf
	f.Importances = normalize(b.importance)
	return nil
}

// PredictProba returns [P(0), P(1)] per row, averaged over trees.
func (f *RandomForest) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, x := range X {
		var p float64
		for t := range f.Trees {
			p += f.Trees[t].Eval(x)
		}
		p /= float64(len(f.Trees))
		out[i] = []float64{1 - p, p}
	}
	return out
}

// Predict returns the majority class; ties go to class 0.
func (f *RandomForest) Predict(X [][]float64) []int {
	return argmax(f.PredictProba(X))
}

// FeatureImportances returns the normalised impurity decrease per feature.
func (f *RandomForest) FeatureImportances() []float64 { return f.Importances }
