package features

import (
	"fmt"
	"math"

	"olist-ml/internal/dataset"

	"github.com/rs/zerolog/log"
)

// Fixed label rules.
const (
	// ChurnDays is the inactivity after which a customer counts as churned.
	ChurnDays = 90
	// PositiveReviewMinScore is the lowest review score counted as positive.
	PositiveReviewMinScore = 4
)

// Label is the training target aligned row-for-row with a feature matrix.
type Label struct {
	Name   string
	Column *dataset.Column
}

// Len returns the number of labelled rows.
func (l Label) Len() int {
	if l.Column == nil {
		return 0
	}
	return l.Column.Len()
}

// Ints converts the label to integer classes. Bools map to 0/1; numerics
// must be whole numbers. Missing labels are an error.
func (l Label) Ints() ([]int, error) {
	out := make([]int, l.Len())
	for i := range out {
		f, ok := l.Column.Float(i)
		if !ok {
			return nil, fmt.Errorf("label %q row %d is missing or not numeric", l.Name, i)
		}
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("label %q row %d is not a class value: %v", l.Name, i, f)
		}
		out[i] = int(f)
	}
	return out, nil
}

// Counts returns the class distribution; missing labels count under -1.
func (l Label) Counts() map[int]int {
	counts := make(map[int]int)
	for i := 0; i < l.Len(); i++ {
		f, ok := l.Column.Float(i)
		if !ok {
			counts[-1]++
			continue
		}
		counts[int(f)]++
	}
	return counts
}

// DeriveChurn computes is_churned = days_since_last_order > ChurnDays.
func DeriveChurn(ds *dataset.Dataset) (*dataset.Column, error) {
	src, err := requireSource(ds, dataset.FieldDaysSinceLastOrder)
	if err != nil {
		return nil, err
	}
	return threshold(dataset.FieldIsChurned, src, func(v float64) bool { return v > ChurnDays }), nil
}

// DerivePositiveReview computes positive_review = review_score >= 4, reading
// target_review_score when present and review_score otherwise.
//
// The review score is only known after delivery, so this label leaks if it is
// used to predict satisfaction before a review exists.
func DerivePositiveReview(ds *dataset.Dataset) (*dataset.Column, error) {
	name, ok := dataset.NewResolver(ds).First(dataset.FieldTargetReviewScore, dataset.FieldReviewScore)
	if !ok {
		return nil, &dataset.MissingFeatureError{Feature: dataset.FieldReviewScore, Available: ds.Names()}
	}
	log.Warn().Str("column", name).Msg("positive_review is derived from a post-delivery review score; do not use it for pre-delivery prediction")
	src, _ := ds.Column(name)
	return threshold(dataset.FieldPositiveReview, src, func(v float64) bool { return v >= PositiveReviewMinScore }), nil
}

// WithLabel returns ds with label appended, replacing a column of the same name.
func WithLabel(ds *dataset.Dataset, label *dataset.Column) (*dataset.Dataset, error) {
	return ds.WithColumn(label)
}

// WithChurnLabel returns ds with an is_churned column appended.
func WithChurnLabel(ds *dataset.Dataset) (*dataset.Dataset, error) {
	label, err := DeriveChurn(ds)
	if err != nil {
		return nil, err
	}
	return WithLabel(ds, label)
}

// WithPositiveReviewLabel returns ds with a positive_review column appended.
func WithPositiveReviewLabel(ds *dataset.Dataset) (*dataset.Dataset, error) {
	label, err := DerivePositiveReview(ds)
	if err != nil {
		return nil, err
	}
	return WithLabel(ds, label)
}

func requireSource(ds *dataset.Dataset, field string) (*dataset.Column, error) {
	name, err := dataset.NewResolver(ds).Require(field)
	if err != nil {
		return nil, &dataset.MissingFeatureError{Feature: field, Available: ds.Names()}
	}
	col, _ := ds.Column(name)
	return col, nil
}

// threshold applies rule row by row. A missing source value yields 0: the
// comparison with an unknown value is false.
func threshold(name string, src *dataset.Column, rule func(float64) bool) *dataset.Column {
	values := make([]float64, src.Len())
	for i := range values {
		if f, ok := src.Float(i); ok && rule(f) {
			values[i] = 1
		}
	}
	return dataset.NewNumeric(name, values)
}
