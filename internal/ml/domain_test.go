package ml

import (
	"context"
	"errors"
	"math"
	"testing"

	"olist-ml/internal/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	orders *dataset.Dataset
	latest *dataset.Dataset
	err    error
	ids    []string
}

func (f *fakeLoader) OrdersByID(_ context.Context, ids []string) (*dataset.Dataset, error) {
	f.ids = ids
	return f.orders, f.err
}

func (f *fakeLoader) LatestOrders(_ context.Context, ids []string) (*dataset.Dataset, error) {
	f.ids = ids
	return f.latest, f.err
}

func ordersFrame() *dataset.Dataset {
	return dataset.MustNew(
		dataset.NewStrings("ORDER_ID", []string{"o1", "o2", "o3", "o4", "o5"}),
		dataset.NewNumeric("score", []float64{0.2, 0.95, 0.75, 0.7, 0.5}),
		dataset.NewNumeric("IS_DELAYED", []float64{0, 1, 1, 0, 0}),
	)
}

func TestDeliveryDelay_PredictOrders(t *testing.T) {
	loader := &fakeLoader{orders: ordersFrame()}
	d := NewDeliveryDelayPredictor(NewPredictor(fixedProba{}, []string{"score"}), loader, nil, 2)

	got, err := d.PredictOrders(context.Background(), []string{"o1", "o2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"o1", "o2"}, loader.ids)
	require.Len(t, got, 5)

	assert.Equal(t, "o1", got[0].OrderID)
	assert.Equal(t, "Low Risk", got[0].RiskCategory)
	assert.InDelta(t, 0.8, got[0].ProbOnTime, 1e-12)
	assert.InDelta(t, 0.8, got[0].Confidence, 1e-12)

	assert.Equal(t, 1, got[1].WillBeDelayed)
	assert.Equal(t, "High Risk", got[1].RiskCategory)
	assert.Equal(t, "Medium Risk", got[4].RiskCategory)
	for _, p := range got {
		assert.True(t, p.HasProbability)
	}
}

func TestDeliveryDelay_HighRiskOrders(t *testing.T) {
	d := NewDeliveryDelayPredictor(NewPredictor(fixedProba{}, []string{"score"}), &fakeLoader{orders: ordersFrame()}, nil, 0)

	got, err := d.HighRiskOrders(context.Background(), DefaultHighRiskThreshold)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "o2", got[0].OrderID)
	assert.Equal(t, "o3", got[1].OrderID)
	assert.Equal(t, "o4", got[2].OrderID, "threshold is inclusive")
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].ProbDelayed, got[i].ProbDelayed)
	}
}

func TestDeliveryDelay_ProbaUnsupported(t *testing.T) {
	d := NewDeliveryDelayPredictor(NewPredictor(hardClassifier{}, []string{"score"}), &fakeLoader{orders: ordersFrame()}, nil, 0)

	all, err := d.PredictOrders(context.Background(), nil)
	require.NoError(t, err)
	for _, p := range all {
		assert.False(t, p.HasProbability)
		assert.Empty(t, p.RiskCategory)
	}

	_, err = d.HighRiskOrders(context.Background(), 0.7)
	assert.ErrorIs(t, err, ErrProbaUnsupported)
}

func TestDeliveryDelay_Errors(t *testing.T) {
	boom := errors.New("warehouse down")
	d := NewDeliveryDelayPredictor(NewPredictor(fixedProba{}, []string{"score"}), &fakeLoader{err: boom}, nil, 0)
	_, err := d.PredictOrders(context.Background(), nil)
	assert.ErrorIs(t, err, boom)

	noScore := dataset.MustNew(dataset.NewStrings("order_id", []string{"x"}))
	d = NewDeliveryDelayPredictor(NewPredictor(fixedProba{}, []string{"score"}), &fakeLoader{orders: noScore}, nil, 0)
	_, err = d.PredictOrders(context.Background(), nil)
	assert.ErrorIs(t, err, dataset.ErrMissingFeature)
}

func TestChurn_PredictCustomers(t *testing.T) {
	latest := dataset.MustNew(
		dataset.NewStrings("customer_id", []string{"c1", "c2", "c3"}),
		dataset.NewNumeric("days_since_last_order", []float64{200, 10, math.NaN()}),
		dataset.NewNumeric("score", []float64{0.9, 0.1, 0.4}),
	)
	loader := &fakeLoader{latest: latest}
	c := NewChurnPredictor(NewPredictor(fixedProba{}, []string{"score"}), loader, nil, 0)

	got, err := c.PredictCustomers(context.Background(), []string{"c1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, loader.ids)
	require.Len(t, got, 3)
	assert.Equal(t, "c1", got[0].CustomerID)
	assert.Equal(t, 1, got[0].WillChurn)
	assert.Equal(t, "High Priority", got[0].Priority)
	assert.InDelta(t, 0.9, got[1].RetentionProbability, 1e-12)
	assert.Equal(t, "Low Priority", got[1].Priority)
	assert.Equal(t, "Medium Priority", got[2].Priority)

	risky, err := c.AtRiskCustomers(context.Background(), DefaultAtRiskThreshold)
	require.NoError(t, err)
	require.Len(t, risky, 1)
	assert.Equal(t, "c1", risky[0].CustomerID)
}

func TestChurn_RowIndexIdentifiers(t *testing.T) {
	latest := dataset.MustNew(
		dataset.NewNumeric("days_since_last_order", []float64{100, 5}),
		dataset.NewNumeric("score", []float64{0.3, 0.8}),
	)
	c := NewChurnPredictor(NewPredictor(fixedProba{}, []string{"score"}), &fakeLoader{latest: latest}, nil, 0)

	got, err := c.PredictCustomers(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "0", got[0].CustomerID)
	assert.Equal(t, "1", got[1].CustomerID)
}

func TestChurn_RequiresRecency(t *testing.T) {
	latest := dataset.MustNew(dataset.NewNumeric("score", []float64{0.3}))
	c := NewChurnPredictor(NewPredictor(fixedProba{}, []string{"score"}), &fakeLoader{latest: latest}, nil, 0)

	_, err := c.PredictCustomers(context.Background(), nil)
	assert.ErrorIs(t, err, dataset.ErrMissingFeature)
}

func TestChurn_ProbaUnsupported(t *testing.T) {
	latest := dataset.MustNew(
		dataset.NewNumeric("days_since_last_order", []float64{100}),
		dataset.NewNumeric("score", []float64{0.3}),
	)
	c := NewChurnPredictor(NewPredictor(hardClassifier{}, []string{"score"}), &fakeLoader{latest: latest}, nil, 0)
	_, err := c.AtRiskCustomers(context.Background(), 0.6)
	assert.ErrorIs(t, err, ErrProbaUnsupported)
}

func TestPredictNewOrders(t *testing.T) {
	X := dataset.MustNew(
		dataset.NewNumeric("score", []float64{0.9, math.NaN(), 0.1}),
	)
	res, err := PredictNewOrders(X, NewPredictor(fixedProba{}, []string{"score"}))
	require.NoError(t, err)
	require.Len(t, res, 3)
	// The missing score is filled with the batch median of 0.9 and 0.1.
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, res[1].Probabilities, 1e-12)

	_, err = PredictNewOrders(dataset.MustNew(dataset.NewNumeric("score", []float64{math.NaN()})),
		NewPredictor(fixedProba{}, []string{"score"}))
	assert.ErrorIs(t, err, dataset.ErrAllMissing)
}
