package features

import (
	"sort"

	"olist-ml/internal/dataset"
)

// Median returns the median of the observed values, averaging the two middle
// values for even counts. ok is false when nothing was observed.
func Median(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], true
	}
	return (sorted[mid-1] + sorted[mid]) / 2, true
}

// Mode returns the most frequent observed bool; ties go to false. ok is
// false when nothing was observed.
func Mode(values []bool) (bool, bool) {
	trues := 0
	for _, v := range values {
		if v {
			trues++
		}
	}
	return 2*trues > len(values), len(values) > 0
}

// ImputeMedian returns a copy of ds whose numeric columns have every missing
// value replaced by that column's median. Bool columns, which the models read
// as 0/1, are filled with their mode. Columns without missing values are
// shared with ds. It fails if such a column has no observed value.
func ImputeMedian(ds *dataset.Dataset) (*dataset.Dataset, int, error) {
	out := ds
	imputed := 0
	for _, name := range ds.Names() {
		col, _ := ds.Column(name)
		if col.Kind != dataset.KindNumeric && col.Kind != dataset.KindBool {
			continue
		}
		missing := col.NullCount()
		if missing == 0 {
			continue
		}

		fill, ok := fillValue(col, missing)
		if !ok {
			return nil, 0, &dataset.AllMissingColumnError{Column: name}
		}

		filled := col.Clone()
		for i := range filled.Values {
			if filled.IsNull(i) {
				filled.Values[i] = fill
			}
		}
		var err error
		if out, err = out.WithColumn(filled); err != nil {
			return nil, 0, err
		}
		imputed += missing
	}
	return out, imputed, nil
}

func fillValue(col *dataset.Column, missing int) (any, bool) {
	if col.Kind == dataset.KindBool {
		observed := make([]bool, 0, col.Len()-missing)
		for _, v := range col.Values {
			if b, ok := v.(bool); ok {
				observed = append(observed, b)
			}
		}
		return Mode(observed)
	}

	observed := make([]float64, 0, col.Len()-missing)
	for i := range col.Values {
		if f, ok := col.Float(i); ok {
			observed = append(observed, f)
		}
	}
	return Median(observed)
}
