package ml

import (
	"math/rand"
	"testing"

	"olist-ml/internal/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syntheticSet returns n rows where the label is 1 exactly when signal > 0.
// noise is uniform and unrelated to the label; region is a string column
// the trainer must ignore.
func syntheticSet(n int, seed int64) (*dataset.Dataset, []int) {
	rng := rand.New(rand.NewSource(seed))
	signal := make([]float64, n)
	noise := make([]float64, n)
	region := make([]string, n)
	y := make([]int, n)
	for i := 0; i < n; i++ {
		signal[i] = rng.Float64()*2 - 1
		noise[i] = rng.Float64()
		region[i] = []string{"SP", "RJ", "MG"}[i%3]
		if signal[i] > 0 {
			y[i] = 1
		}
	}
	return dataset.MustNew(
		dataset.NewNumeric("signal", signal),
		dataset.NewNumeric("noise", noise),
		dataset.NewStrings("region", region),
	), y
}

func TestTrainer_Models(t *testing.T) {
	tests := []struct {
		name   string
		model  ModelType
		params Params
	}{
		{"gradient boosting", GradientBoostingModel, Params{"n_estimators": 20, "max_depth": 3}},
		{"random forest", RandomForestModel, Params{"n_estimators": 25, "max_depth": 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			X, y := syntheticSet(300, 1)
			Xtr, Xte, ytr, yte, err := TrainTestSplit(X, y, 0.2, DefaultSeed, true)
			require.NoError(t, err)

			metrics := &MockMetrics{}
			tr, err := NewTrainer(tt.model)
			require.NoError(t, err)
			tr.WithParams(tt.params).WithMetrics(metrics)
			require.NoError(t, tr.Train(Xtr, ytr))
			assert.Equal(t, []string{"signal", "noise"}, tr.Features())

			e, err := tr.Evaluate(Xte, yte)
			require.NoError(t, err)
			assert.Greater(t, e.Accuracy, 0.85)
			assert.True(t, e.HasROCAUC)
			assert.Greater(t, e.ROCAUC, 0.9)
			assert.Equal(t, len(yte), e.Confusion[0][0]+e.Confusion[0][1]+e.Confusion[1][0]+e.Confusion[1][1])

			assert.Equal(t, 1, metrics.trainingRuns)
			assert.Contains(t, metrics.modelScores, "roc_auc")
			assert.InDelta(t, e.Accuracy, metrics.modelScores["accuracy"], 1e-12)

			scores, err := tr.FeatureImportance(0)
			require.NoError(t, err)
			require.Len(t, scores, 2)
			assert.Equal(t, "signal", scores[0].Feature)
			assert.InDelta(t, 1.0, scores[0].Importance+scores[1].Importance, 1e-9)

			top, err := tr.FeatureImportance(1)
			require.NoError(t, err)
			assert.Len(t, top, 1)
		})
	}
}

func TestTrainer_Deterministic(t *testing.T) {
	X, y := syntheticSet(150, 3)
	run := func() [][]float64 {
		tr, err := NewTrainer(RandomForestModel)
		require.NoError(t, err)
		tr.WithParams(Params{"n_estimators": 10})
		require.NoError(t, tr.Train(X, y))
		m, err := X.Matrix(tr.Features())
		require.NoError(t, err)
		return tr.Model().PredictProba(m)
	}
	assert.Equal(t, run(), run())
}

func TestTrainer_Errors(t *testing.T) {
	_, err := NewTrainer("svm")
	assert.Error(t, err)

	_, err = ParseModelType("svm")
	assert.Error(t, err)
	mt, err := ParseModelType("random_forest")
	require.NoError(t, err)
	assert.Equal(t, RandomForestModel, mt)

	tr, err := NewTrainer(GradientBoostingModel)
	require.NoError(t, err)
	_, err = tr.FeatureImportance(5)
	assert.ErrorIs(t, err, ErrNotTrained)
	_, err = tr.Evaluate(dataset.Empty(nil, nil), nil)
	assert.ErrorIs(t, err, ErrNotTrained)
	assert.ErrorIs(t, tr.Save(t.TempDir()+"/m.gob", nil), ErrNotTrained)

	X, _ := syntheticSet(20, 1)
	ones := make([]int, 20)
	for i := range ones {
		ones[i] = 1
	}
	assert.ErrorIs(t, tr.Train(X, ones), ErrSingleClass)

	tr.WithParams(Params{"gamma": 1})
	_, y := syntheticSet(20, 1)
	assert.Error(t, tr.Train(X, y))
}

func TestParamGrid_Combinations(t *testing.T) {
	grid := ParamGrid{
		"n_estimators": {50, 100},
		"max_depth":    {3, 5, 7},
	}
	combos := grid.Combinations()
	require.Len(t, combos, 6)
	assert.Equal(t, Params{"max_depth": 3, "n_estimators": 50}, combos[0])
	assert.Equal(t, Params{"max_depth": 7, "n_estimators": 100}, combos[5])

	assert.Equal(t, []Params{{}}, ParamGrid{}.Combinations())
}

func TestTrainer_Tune(t *testing.T) {
	X, y := syntheticSet(150, 5)
	tr, err := NewTrainer(GradientBoostingModel)
	require.NoError(t, err)

	res, err := tr.Tune(X, y, ParamGrid{"n_estimators": {5, 15}, "max_depth": {2}}, 3)
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	for _, r := range res.Results {
		assert.Len(t, r.Scores, 3)
		assert.LessOrEqual(t, r.Mean, res.Best.Mean)
	}
	assert.Greater(t, res.Best.Mean, 0.9)
	assert.NotNil(t, tr.Model(), "best parameters are refit")

	_, err = tr.Tune(X, y, ParamGrid{"n_estimators": {5}}, 1)
	assert.Error(t, err)
}

func TestTrainTestSplit_Stratified(t *testing.T) {
	n := 200
	y := make([]int, n)
	ids := make([]float64, n)
	for i := range y {
		ids[i] = float64(i)
		if i%4 == 0 {
			y[i] = 1
		}
	}
	X := dataset.MustNew(dataset.NewNumeric("id", ids))

	Xtr, Xte, ytr, yte, err := TrainTestSplit(X, y, 0.2, DefaultSeed, true)
	require.NoError(t, err)
	assert.Equal(t, 160, Xtr.NumRows())
	assert.Equal(t, 40, Xte.NumRows())
	assert.Len(t, ytr, 160)
	assert.Len(t, yte, 40)

	pos := 0
	for _, v := range yte {
		pos += v
	}
	assert.Equal(t, 10, pos, "test set keeps the positive rate")

	// Labels stay aligned with their rows.
	col, _ := Xte.Column("id")
	for i, v := range yte {
		id, _ := col.Float(i)
		assert.Equal(t, y[int(id)], v)
	}

	_, _, _, _, err = TrainTestSplit(X, y, 0, DefaultSeed, true)
	assert.Error(t, err)
	_, _, _, _, err = TrainTestSplit(X, y[:10], 0.2, DefaultSeed, false)
	assert.Error(t, err)
}

func TestROCAUC(t *testing.T) {
	auc, err := ROCAUC([]int{0, 0, 1, 1}, []float64{0.1, 0.4, 0.35, 0.8})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, auc, 1e-12)

	auc, err = ROCAUC([]int{0, 1, 0, 1}, []float64{0.1, 0.9, 0.2, 0.8})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, auc, 1e-12)

	_, err = ROCAUC([]int{1, 1}, []float64{0.2, 0.3})
	assert.Error(t, err)
}

func TestScore(t *testing.T) {
	truth := []int{1, 1, 1, 0, 0, 0}
	pred := []int{1, 1, 0, 0, 0, 1}
	e, err := Score(truth, pred, nil)
	require.NoError(t, err)

	assert.InDelta(t, 4.0/6, e.Accuracy, 1e-12)
	assert.InDelta(t, 2.0/3, e.Precision, 1e-12)
	assert.InDelta(t, 2.0/3, e.Recall, 1e-12)
	assert.InDelta(t, 2.0/3, e.F1, 1e-12)
	assert.False(t, e.HasROCAUC)
	assert.Equal(t, [2][2]int{{2, 1}, {1, 2}}, e.Confusion)
	require.Len(t, e.Report, 2)
	assert.Equal(t, 3, e.Report[0].Support)
	assert.NotContains(t, e.Metrics(), "roc_auc")

	// No positive predictions: precision is reported as 0.
	e, err = Score([]int{1, 0}, []int{0, 0}, []float64{0.4, 0.3})
	require.NoError(t, err)
	assert.Zero(t, e.Precision)
	assert.True(t, e.HasROCAUC)

	_, err = Score([]int{1}, []int{1, 0}, nil)
	assert.Error(t, err)
	_, err = Score([]int{2}, []int{1}, nil)
	assert.Error(t, err)
}

func TestTree_Depth(t *testing.T) {
	X := [][]float64{{0}, {1}, {2}, {3}, {4}, {5}, {6}, {7}}
	y := []int{0, 0, 0, 0, 1, 1, 1, 1}

	g := NewGradientBoosting()
	g.NEstimators = 5
	g.MaxDepth = 2
	require.NoError(t, g.Fit(X, y))
	for _, tree := range g.Trees {
		assert.LessOrEqual(t, tree.Depth(), 2)
	}
	assert.Equal(t, y, g.Predict(X))

	proba := g.PredictProba([][]float64{{0.5}, {6.5}})
	assert.Less(t, proba[0][1], 0.5)
	assert.Greater(t, proba[1][1], 0.5)
	assert.InDelta(t, 1.0, proba[0][0]+proba[0][1], 1e-12)
}
