package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// DefaultSeed makes every training run reproducible.
const DefaultSeed = 42

// GradientBoosting is a binary classifier boosted on the log-loss with
// regression trees fitted to the residuals. Leaves hold a Newton step.
type GradientBoosting struct {
	NEstimators     int
	LearningRate    float64
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	// Subsample is the fraction of rows drawn for each stage; 1 uses all.
	Subsample float64
	Seed      int64

	Init        float64
	Trees       []Tree
	NFeatures   int
	Importances []float64
}

// NewGradientBoosting returns a booster with the default configuration.
func NewGradientBoosting() *GradientBoosting {
	return &GradientBoosting{
		NEstimators:     100,
		LearningRate:    0.1,
		MaxDepth:        6,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Subsample:       1,
		Seed:            DefaultSeed,
	}
}

// Fit trains the booster on X and binary labels y.
func (g *GradientBoosting) Fit(X [][]float64, y []int) error {
	target, nf, err := checkBinary(X, y)
	if err != nil {
		return err
	}
	if g.NEstimators < 1 {
		return fmt.Errorf("gradient boosting needs at least one stage, got %d", g.NEstimators)
	}
	if g.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %v", g.LearningRate)
	}

	var pos float64
	for _, v := range target {
		pos += v
	}
	prior := clamp(pos / float64(len(target)))
	g.Init = math.Log(prior / (1 - prior))

	F := make([]float64, len(X))
	for i := range F {
		F[i] = g.Init
	}
	p := make([]float64, len(X))
	residual := make([]float64, len(X))

	rng := rand.New(rand.NewSource(g.Seed))
	b := newTreeBuilder(X, residual, TreeParams{
		MaxDepth:        g.MaxDepth,
		MinSamplesSplit: g.MinSamplesSplit,
		MinSamplesLeaf:  g.MinSamplesLeaf,
	}, rng)
	b.leaf = func(idx []int) float64 {
		var num, den float64
		for _, i := range idx {
			num += residual[i]
			den += p[i] * (1 - p[i])
		}
		if den < 1e-12 {
			return 0
		}
		return num / den
	}

	all := make([]int, len(X))
	for i := range all {
		all[i] = i
	}

	g.Trees = make([]Tree, 0, g.NEstimators)
	for m := 0; m < g.NEstimators; m++ {
		for i := range F {
			p[i] = sigmoid(F[i])
			residual[i] = target[i] - p[i]
		}
		idx := all
		if g.Subsample > 0 && g.Subsample < 1 {
			n := int(math.Max(1, math.Round(g.Subsample*float64(len(X)))))
			idx = rng.Perm(len(X))[:n]
		}
		tree := b.build(idx)
		for i, x := range X {
			F[i] += g.LearningRate * tree.Eval(x)
		}
		g.Trees = append(g.Trees, tree)
	}
	g.NFeatures = nf
	g.Importances = normalize(b.importance)
	return nil
}

// DecisionFunction returns the raw log-odds per row.
func (g *GradientBoosting) DecisionFunction(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		f := g.Init
		for t := range g.Trees {
			f += g.LearningRate * g.Trees[t].Eval(x)
		}
		out[i] = f
	}
	return out
}

// PredictProba returns [P(0), P(1)] per row.
func (g *GradientBoosting) PredictProba(X [][]float64) [][]float64 {
	raw := g.DecisionFunction(X)
	out := make([][]float64, len(raw))
	for i, f := range raw {
		p := sigmoid(f)
		out[i] = []float64{1 - p, p}
	}
	return out
}

// Predict returns the most probable class; ties go to class 0.
func (g *GradientBoosting) Predict(X [][]float64) []int {
	return argmax(g.PredictProba(X))
}

// FeatureImportances returns the normalised impurity decrease per feature.
func (g *GradientBoosting) FeatureImportances() []float64 { return g.Importances }

// ErrSingleClass is returned when the training labels contain one class only.
var ErrSingleClass = errors.New("training labels contain a single class")

// checkBinary validates a training set and returns y as float64.
func checkBinary(X [][]float64, y []int) ([]float64, int, error) {
	if len(X) == 0 {
		return nil, 0, errors.New("empty training set")
	}
	if len(X) != len(y) {
		return nil, 0, fmt.Errorf("X has %d rows but y has %d", len(X), len(y))
	}
	nf := len(X[0])
	if nf == 0 {
		return nil, 0, errors.New("training set has no features")
	}
	target := make([]float64, len(y))
	seen := [2]bool{}
	for i, v := range y {
		if len(X[i]) != nf {
			return nil, 0, fmt.Errorf("row %d has %d features, expected %d", i, len(X[i]), nf)
		}
		if v != 0 && v != 1 {
			return nil, 0, fmt.Errorf("label %d at row %d is not binary", v, i)
		}
		seen[v] = true
		target[i] = float64(v)
	}
	if !seen[0] || !seen[1] {
		return nil, 0, ErrSingleClass
	}
	return target, nf, nil
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func clamp(p float64) float64 {
	const eps = 1e-15
	return math.Min(math.Max(p, eps), 1-eps)
}

func argmax(proba [][]float64) []int {
	out := make([]int, len(proba))
	for i, row := range proba {
		best := 0
		for c := 1; c < len(row); c++ {
			if row[c] > row[best] {
				best = c
			}
		}
		out[i] = best
	}
	return out
}
