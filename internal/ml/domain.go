package ml

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"olist-ml/internal/dataset"
	"olist-ml/internal/features"

	"github.com/rs/zerolog/log"
)

// Default thresholds of the high-risk and at-risk reports.
const (
	DefaultHighRiskThreshold = 0.7
	DefaultAtRiskThreshold   = 0.6
	DefaultBatchSize         = 1000
)

// ErrProbaUnsupported is returned by reports that filter on a probability
// the model cannot produce.
var ErrProbaUnsupported = errors.New("model does not support probability predictions")

// OrderLoader reads the rows scored by the domain predictors.
type OrderLoader interface {
	OrdersByID(ctx context.Context, ids []string) (*dataset.Dataset, error)
	LatestOrders(ctx context.Context, customerIDs []string) (*dataset.Dataset, error)
}

// DelayPrediction is one scored order.
type DelayPrediction struct {
	OrderID        string  `json:"order_id"`
	WillBeDelayed  int     `json:"will_be_delayed"`
	Confidence     float64 `json:"confidence"`
	ProbOnTime     float64 `json:"prob_on_time"`
	ProbDelayed    float64 `json:"prob_delayed"`
	RiskCategory   string  `json:"risk_category,omitempty"`
	HasProbability bool    `json:"has_probability"`
}

// DeliveryDelayPredictor scores orders for late delivery.
type DeliveryDelayPredictor struct {
	predictor *Predictor
	loader    OrderLoader
	preparer  *features.Preparer
	batchSize int
}

// NewDeliveryDelayPredictor combines a loaded model with an order source.
func NewDeliveryDelayPredictor(p *Predictor, loader OrderLoader, preparer *features.Preparer, batchSize int) *DeliveryDelayPredictor {
	if preparer == nil {
		preparer = features.NewPreparer(nil)
	}
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &DeliveryDelayPredictor{predictor: p, loader: loader, preparer: preparer, batchSize: batchSize}
}

// PredictOrders scores the given orders, or every order when ids is empty.
func (d *DeliveryDelayPredictor) PredictOrders(ctx context.Context, ids []string) ([]DelayPrediction, error) {
	ds, err := d.loader.OrdersByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	keys := identifiers(ds, dataset.FieldOrderID)
	scored, err := d.score(ds)
	if err != nil {
		return nil, err
	}

	out := make([]DelayPrediction, len(scored))
	for i, r := range scored {
		out[i] = DelayPrediction{OrderID: keys[i], WillBeDelayed: r.Prediction}
		if p1, ok := r.Positive(); ok {
			out[i].HasProbability = true
			out[i].Confidence = r.Confidence
			out[i].ProbOnTime = r.Probabilities[0]
			out[i].ProbDelayed = p1
			if out[i].RiskCategory, err = DelayRiskBuckets.Assign(p1); err != nil {
				return nil, fmt.Errorf("order %s: %w", keys[i], err)
			}
		}
	}
	return out, nil
}

// HighRiskOrders returns every order whose delay probability is at least
// threshold, most likely first.
func (d *DeliveryDelayPredictor) HighRiskOrders(ctx context.Context, threshold float64) ([]DelayPrediction, error) {
	all, err := d.PredictOrders(ctx, nil)
	if err != nil {
		return nil, err
	}
	var out []DelayPrediction
	for _, p := range all {
		if !p.HasProbability {
			return nil, ErrProbaUnsupported
		}
		if p.ProbDelayed >= threshold {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ProbDelayed > out[j].ProbDelayed })
	log.Info().Int("orders", len(out)).Float64("threshold", threshold).Msg("Found high-risk orders")
	return out, nil
}

func (d *DeliveryDelayPredictor) score(ds *dataset.Dataset) ([]PredictionResult, error) {
	X, err := d.preparer.PrepareFeatures(ds)
	if err != nil {
		return nil, err
	}
	return d.predictor.BatchPredict(X, d.batchSize)
}

// ChurnPrediction is one scored customer.
type ChurnPrediction struct {
	CustomerID           string  `json:"customer_id"`
	WillChurn            int     `json:"will_churn"`
	ChurnProbability     float64 `json:"churn_probability"`
	RetentionProbability float64 `json:"retention_probability"`
	Priority             string  `json:"priority,omitempty"`
	HasProbability       bool    `json:"has_probability"`
}

// ChurnPredictor scores customers for churn from their latest order.
type ChurnPredictor struct {
	predictor *Predictor
	loader    OrderLoader
	preparer  *features.Preparer
	batchSize int
}

// NewChurnPredictor combines a loaded model with an order source.
func NewChurnPredictor(p *Predictor, loader OrderLoader, preparer *features.Preparer, batchSize int) *ChurnPredictor {
	if preparer == nil {
		preparer = features.NewPreparer(nil)
	}
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &ChurnPredictor{predictor: p, loader: loader, preparer: preparer, batchSize: batchSize}
}

// PredictCustomers scores the given customers, or every customer when ids
// is empty. Customers are identified by row index when the data carries no
// customer id column.
func (c *ChurnPredictor) PredictCustomers(ctx context.Context, ids []string) ([]ChurnPrediction, error) {
	ds, err := c.loader.LatestOrders(ctx, ids)
	if err != nil {
		return nil, err
	}
	// The label is derived so it is excluded like in training, even though
	// scoring does not use it.
	if ds, err = features.WithChurnLabel(ds); err != nil {
		return nil, err
	}
	keys := identifiers(ds, dataset.FieldCustomerID)
	X, err := c.preparer.PrepareFeatures(ds)
	if err != nil {
		return nil, err
	}
	scored, err := c.predictor.BatchPredict(X, c.batchSize)
	if err != nil {
		return nil, err
	}

	out := make([]ChurnPrediction, len(scored))
	for i, r := range scored {
		out[i] = ChurnPrediction{CustomerID: keys[i], WillChurn: r.Prediction}
		if p1, ok := r.Positive(); ok {
			out[i].HasProbability = true
			out[i].ChurnProbability = p1
			out[i].RetentionProbability = r.Probabilities[0]
			if out[i].Priority, err = ChurnPriorityBuckets.Assign(p1); err != nil {
				return nil, fmt.Errorf("customer %s: %w", keys[i], err)
			}
		}
	}
	return out, nil
}

// AtRiskCustomers returns every customer whose churn probability is at
// least threshold, most likely first.
func (c *ChurnPredictor) AtRiskCustomers(ctx context.Context, threshold float64) ([]ChurnPrediction, error) {
	all, err := c.PredictCustomers(ctx, nil)
	if err != nil {
		return nil, err
	}
	var out []ChurnPrediction
	for _, p := range all {
		if !p.HasProbability {
			return nil, ErrProbaUnsupported
		}
		if p.ChurnProbability >= threshold {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChurnProbability > out[j].ChurnProbability })
	log.Info().Int("customers", len(out)).Float64("threshold", threshold).Msg("Found at-risk customers")
	return out, nil
}

// PredictNewOrders scores an ad-hoc feature set. Missing numeric values are
// filled with the batch's own medians; no columns are removed.
func PredictNewOrders(X *dataset.Dataset, p *Predictor) ([]PredictionResult, error) {
	filled, _, err := features.ImputeMedian(X)
	if err != nil {
		return nil, err
	}
	res, err := p.PredictWithConfidence(filled, DefaultThreshold)
	if err != nil {
		return nil, err
	}
	log.Info().Int("orders", len(res)).Msg("Predictions made for new orders")
	return res, nil
}

// identifiers returns the row keys from the field's column, falling back
// to the row index when the column is absent.
func identifiers(ds *dataset.Dataset, field string) []string {
	keys := make([]string, ds.NumRows())
	name, ok := dataset.NewResolver(ds).Lookup(field)
	if !ok {
		for i := range keys {
			keys[i] = strconv.Itoa(i)
		}
		return keys
	}
	col, _ := ds.Column(name)
	for i := range keys {
		keys[i] = col.String(i)
	}
	return keys
}
