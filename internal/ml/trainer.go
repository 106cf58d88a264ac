package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"olist-ml/internal/dataset"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"
)

// TrainingMetrics defines the metrics reported by the trainer.
type TrainingMetrics interface {
	TrainingRunsInc()
	TrainingDurationObserve(float64)
	ModelScoreSet(metric string, v float64)
}

// ErrNotTrained is returned by operations that need a fitted model.
var ErrNotTrained = errors.New("model has not been trained")

// Trainer fits, evaluates and persists one estimator type.
type Trainer struct {
	modelType ModelType
	params    Params
	est       Estimator
	features  []string
	metrics   TrainingMetrics
}

// NewTrainer returns a trainer for t with its default hyperparameters.
func NewTrainer(t ModelType) (*Trainer, error) {
	if _, err := newEstimator(t, nil); err != nil {
		return nil, err
	}
	return &Trainer{modelType: t}, nil
}

// WithParams overrides hyperparameters for the next Train call.
func (t *Trainer) WithParams(p Params) *Trainer {
	t.params = p
	return t
}

// WithMetrics sets the metrics sink and returns t.
func (t *Trainer) WithMetrics(m TrainingMetrics) *Trainer {
	t.metrics = m
	return t
}

// Type returns the estimator type.
func (t *Trainer) Type() ModelType { return t.modelType }

// Features returns the feature names of the fitted model.
func (t *Trainer) Features() []string { return t.features }

// Model returns the fitted estimator, or nil before training.
func (t *Trainer) Model() Estimator { return t.est }

// featureNames picks the model inputs of X: numeric and boolean columns.
func featureNames(X *dataset.Dataset) []string {
	names := X.NumericNames()
	if skipped := X.NumCols() - len(names); skipped > 0 {
		var dropped []string
		for _, n := range X.Names() {
			if c, _ := X.Column(n); c.Kind != dataset.KindNumeric && c.Kind != dataset.KindBool {
				dropped = append(dropped, n)
			}
		}
		log.Warn().Strs("columns", dropped).Msg("Ignoring non-numeric feature columns")
	}
	return names
}

// Train fits a new estimator on X and binary labels y.
func (t *Trainer) Train(X *dataset.Dataset, y []int) error {
	names := featureNames(X)
	m, err := X.Matrix(names)
	if err != nil {
		return err
	}
	est, err := newEstimator(t.modelType, t.params)
	if err != nil {
		return err
	}

	log.Info().Str("model", string(t.modelType)).Int("rows", len(m)).Int("features", len(names)).
		Msg("Training model")
	start := time.Now()
	if err := est.Fit(m, y); err != nil {
		return fmt.Errorf("train %s: %w", t.modelType, err)
	}
	elapsed := time.Since(start)
	log.Info().Str("model", string(t.modelType)).Dur("elapsed", elapsed).Msg("Training complete")

	t.est = est
	t.features = names
	if t.metrics != nil {
		t.metrics.TrainingRunsInc()
		t.metrics.TrainingDurationObserve(elapsed.Seconds())
	}
	return nil
}

// Evaluate scores the fitted model on a held-out set.
func (t *Trainer) Evaluate(X *dataset.Dataset, y []int) (Evaluation, error) {
	if t.est == nil {
		return Evaluation{}, ErrNotTrained
	}
	p := NewPredictor(t.est, t.features)
	pred, err := p.Predict(X)
	if err != nil {
		return Evaluation{}, err
	}
	proba, err := p.PredictProba(X)
	if err != nil {
		return Evaluation{}, err
	}
	var scores []float64
	if proba.Available {
		scores = make([]float64, len(proba.Values))
		for i, row := range proba.Values {
			scores[i] = row[1]
		}
	}
	e, err := Score(y, pred, scores)
	if err != nil {
		return Evaluation{}, err
	}

	log.Info().Float64("accuracy", e.Accuracy).Float64("precision", e.Precision).
		Float64("recall", e.Recall).Float64("f1_score", e.F1).Float64("roc_auc", e.ROCAUC).
		Msg("Model performance")
	log.Info().Interface("confusion_matrix", e.Confusion).Msg("Confusion matrix")
	for _, r := range e.Report {
		log.Info().Int("class", r.Class).Float64("precision", r.Precision).Float64("recall", r.Recall).
			Float64("f1_score", r.F1).Int("support", r.Support).Msg("Classification report")
	}
	if !e.HasROCAUC {
		log.Warn().Msg("ROC AUC undefined for this evaluation set")
	}
	if t.metrics != nil {
		for k, v := range e.Metrics() {
			t.metrics.ModelScoreSet(k, v)
		}
	}
	return e, nil
}

// FeatureScore is one feature's share of the model's impurity decrease.
type FeatureScore struct {
	Feature    string
	Importance float64
}

// FeatureImportance ranks the features of the fitted model, most important
// first. topN <= 0 returns all of them.
func (t *Trainer) FeatureImportance(topN int) ([]FeatureScore, error) {
	if t.est == nil {
		return nil, ErrNotTrained
	}
	imp := t.est.FeatureImportances()
	if len(imp) != len(t.features) {
		return nil, fmt.Errorf("model reports %d importances for %d features", len(imp), len(t.features))
	}
	out := make([]FeatureScore, len(imp))
	for i, v := range imp {
		out[i] = FeatureScore{Feature: t.features[i], Importance: v}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	if topN > 0 && topN < len(out) {
		out = out[:topN]
	}
	return out, nil
}

// ParamGrid lists candidate values per hyperparameter.
type ParamGrid map[string][]float64

// Combinations expands the grid in a stable order.
func (g ParamGrid) Combinations() []Params {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	combos := []Params{{}}
	for _, k := range keys {
		var next []Params
		for _, base := range combos {
			for _, v := range g[k] {
				p := make(Params, len(base)+1)
				for bk, bv := range base {
					p[bk] = bv
				}
				p[k] = v
				next = append(next, p)
			}
		}
		combos = next
	}
	return combos
}

// CVResult is the cross-validated ROC AUC of one parameter combination.
type CVResult struct {
	Params Params
	Scores []float64
	Mean   float64
}

// TuneResult is the outcome of a grid search.
type TuneResult struct {
	Best    CVResult
	Results []CVResult
}

// Tune grid-searches params with stratified k-fold cross-validation on ROC
// AUC, then refits the best combination on all of X.
func (t *Trainer) Tune(X *dataset.Dataset, y []int, grid ParamGrid, folds int) (TuneResult, error) {
	if folds < 2 {
		return TuneResult{}, fmt.Errorf("need at least 2 folds, got %d", folds)
	}
	names := featureNames(X)
	m, err := X.Matrix(names)
	if err != nil {
		return TuneResult{}, err
	}
	assignment, err := stratifiedFolds(y, folds, DefaultSeed)
	if err != nil {
		return TuneResult{}, err
	}

	var res TuneResult
	res.Best.Mean = math.Inf(-1)
	combos := grid.Combinations()
	log.Info().Int("candidates", len(combos)).Int("folds", folds).Msg("Starting hyperparameter tuning")
	for _, params := range combos {
		cv := CVResult{Params: params}
		for k := 0; k < folds; k++ {
			var trX, teX [][]float64
			var trY, teY []int
			for i, f := range assignment {
				if f == k {
					teX, teY = append(teX, m[i]), append(teY, y[i])
				} else {
					trX, trY = append(trX, m[i]), append(trY, y[i])
				}
			}
			est, err := newEstimator(t.modelType, params)
			if err != nil {
				return TuneResult{}, err
			}
			if err := est.Fit(trX, trY); err != nil {
				return TuneResult{}, fmt.Errorf("fold %d: %w", k+1, err)
			}
			proba := est.PredictProba(teX)
			scores := make([]float64, len(proba))
			for i, row := range proba {
				scores[i] = row[1]
			}
			auc, err := ROCAUC(teY, scores)
			if err != nil {
				return TuneResult{}, fmt.Errorf("fold %d: %w", k+1, err)
			}
			cv.Scores = append(cv.Scores, auc)
		}
		cv.Mean = stat.Mean(cv.Scores, nil)
		res.Results = append(res.Results, cv)
		if cv.Mean > res.Best.Mean {
			res.Best = cv
		}
	}
	if len(res.Results) == 0 {
		return TuneResult{}, errors.New("empty parameter grid")
	}

	log.Info().Interface("params", res.Best.Params).Float64("cv_roc_auc", res.Best.Mean).Msg("Best parameters")
	t.params = res.Best.Params
	if err := t.Train(X, y); err != nil {
		return TuneResult{}, err
	}
	return res, nil
}

// Save persists the fitted model with its metrics.
func (t *Trainer) Save(path string, metrics Metrics) error {
	if t.est == nil {
		return ErrNotTrained
	}
	a, err := newArtifact(t.modelType, t.est, t.features)
	if err != nil {
		return err
	}
	return SaveArtifact(path, a, metrics)
}

// stratifiedFolds assigns every row to one of k folds, keeping the class
// balance of y in each fold.
func stratifiedFolds(y []int, k int, seed int64) ([]int, error) {
	byClass := map[int][]int{}
	for i, c := range y {
		byClass[c] = append(byClass[c], i)
	}
	classes := make([]int, 0, len(byClass))
	for c, rows := range byClass {
		if len(rows) < k {
			return nil, fmt.Errorf("class %d has %d rows, fewer than %d folds", c, len(rows), k)
		}
		classes = append(classes, c)
	}
	sort.Ints(classes)

	rng := rand.New(rand.NewSource(seed))
	out := make([]int, len(y))
	for _, c := range classes {
		rows := byClass[c]
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		for n, row := range rows {
			out[row] = n % k
		}
	}
	return out, nil
}

// TrainTestSplit holds out testSize of the rows. With stratify, each class
// contributes the same share to the test set. Row order is preserved
// within each part.
func TrainTestSplit(X *dataset.Dataset, y []int, testSize float64, seed int64, stratify bool) (Xtrain, Xtest *dataset.Dataset, ytrain, ytest []int, err error) {
	if X.NumRows() != len(y) {
		return nil, nil, nil, nil, fmt.Errorf("X has %d rows but y has %d", X.NumRows(), len(y))
	}
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, nil, nil, fmt.Errorf("test size must be in (0, 1), got %v", testSize)
	}
	rng := rand.New(rand.NewSource(seed))

	groups := [][]int{}
	if stratify {
		byClass := map[int][]int{}
		for i, c := range y {
			byClass[c] = append(byClass[c], i)
		}
		classes := make([]int, 0, len(byClass))
		for c := range byClass {
			classes = append(classes, c)
		}
		sort.Ints(classes)
		for _, c := range classes {
			groups = append(groups, byClass[c])
		}
	} else {
		all := make([]int, len(y))
		for i := range all {
			all[i] = i
		}
		groups = append(groups, all)
	}

	isTest := make([]bool, len(y))
	for _, rows := range groups {
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		n := int(math.Round(testSize * float64(len(rows))))
		if n == 0 && len(rows) > 1 {
			n = 1
		}
		for _, r := range rows[:n] {
			isTest[r] = true
		}
	}

	var trainRows, testRows []int
	for i, t := range isTest {
		if t {
			testRows = append(testRows, i)
			ytest = append(ytest, y[i])
		} else {
			trainRows = append(trainRows, i)
			ytrain = append(ytrain, y[i])
		}
	}
	if len(trainRows) == 0 || len(testRows) == 0 {
		return nil, nil, nil, nil, fmt.Errorf("split of %d rows leaves an empty part", len(y))
	}
	return X.Take(trainRows), X.Take(testRows), ytrain, ytest, nil
}
