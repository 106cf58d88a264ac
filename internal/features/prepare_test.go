package features

import (
	"math"
	"sync"
	"testing"

	"olist-ml/internal/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockMetrics struct {
	mu       sync.Mutex
	rows     float64
	imputed  float64
	prepared int
}

func (m *mockMetrics) RowsPreparedAdd(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows += v
	m.prepared++
}

func (m *mockMetrics) ImputedValuesAdd(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.imputed += v
}

func deliveryRows() *dataset.Dataset {
	return dataset.MustNew(
		dataset.NewStrings("ORDER_ID", []string{"o1", "o2", "o3", "o4"}),
		dataset.NewStrings("CUSTOMER_ID", []string{"c1", "c2", "c3", "c4"}),
		dataset.NewNumeric("days_since_last_order", []float64{45, math.NaN(), 120, 30}),
		dataset.NewNumeric("FREIGHT_VALUE", []float64{10, 20, math.NaN(), 40}),
		dataset.NewNumeric("REVIEW_SCORE", []float64{5, 1, 4, 3}),
		dataset.NewStrings("ORDER_STATUS", []string{"delivered", "delivered", "shipped", "delivered"}),
		dataset.NewBools("IS_DELAYED", []bool{false, true, false, true}),
	)
}

func TestPrepare_DropsExcludedColumns(t *testing.T) {
	ds := deliveryRows()

	X, y, err := Prepare(ds, "IS_DELAYED")
	require.NoError(t, err)

	assert.Equal(t, []string{"days_since_last_order", "FREIGHT_VALUE"}, X.Names())
	assert.Equal(t, 4, X.NumRows())
	assert.Equal(t, "IS_DELAYED", y.Name)

	labels, err := y.Ints()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 0, 1}, labels)
	assert.Equal(t, map[int]int{0: 2, 1: 2}, y.Counts())
}

func TestPrepare_ImputesMedian(t *testing.T) {
	ds := deliveryRows()

	X, _, err := Prepare(ds, "IS_DELAYED")
	require.NoError(t, err)

	days, _ := X.Column("days_since_last_order")
	assert.Equal(t, 45.0, days.Values[1], "median of 30, 45, 120")

	freight, _ := X.Column("FREIGHT_VALUE")
	assert.Equal(t, 20.0, freight.Values[2], "median of 10, 20, 40")

	orig, _ := ds.Column("FREIGHT_VALUE")
	assert.True(t, orig.IsNull(2), "input must not be modified")
}

func TestPrepare_ImputesBoolMode(t *testing.T) {
	ds := dataset.MustNew(
		&dataset.Column{Name: "is_gift", Kind: dataset.KindBool, Values: []any{true, nil, true, false}},
		&dataset.Column{Name: "flag", Kind: dataset.KindBool, Values: []any{true, nil, false, nil}},
		dataset.NewNumeric("is_delayed", []float64{0, 1, 0, 1}),
	)

	X, _, err := Prepare(ds, "is_delayed")
	require.NoError(t, err)
	assert.Contains(t, X.NumericNames(), "flag")

	gift, _ := X.Column("is_gift")
	assert.Equal(t, 0, gift.NullCount())
	assert.Equal(t, true, gift.Values[1])

	flag, _ := X.Column("flag")
	assert.Equal(t, []any{true, false, false, false}, flag.Values, "ties fill with false")

	allMissing := dataset.MustNew(
		&dataset.Column{Name: "flag", Kind: dataset.KindBool, Values: []any{nil, nil}},
		dataset.NewNumeric("is_delayed", []float64{0, 1}),
	)
	_, _, err = Prepare(allMissing, "is_delayed")
	assert.ErrorIs(t, err, dataset.ErrAllMissing)
}

func TestPrepare_TargetSpellings(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   string
	}{
		{name: "exact", target: "IS_DELAYED", want: "IS_DELAYED"},
		{name: "lower case request", target: "is_delayed", want: "IS_DELAYED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, y, err := Prepare(deliveryRows(), tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, y.Name)
		})
	}
}

func TestPrepare_MissingTarget(t *testing.T) {
	_, _, err := Prepare(deliveryRows(), "is_canceled")
	require.Error(t, err)
	assert.ErrorIs(t, err, dataset.ErrMissingTarget)

	var mte *dataset.MissingTargetError
	require.ErrorAs(t, err, &mte)
	assert.Contains(t, mte.Available, "ORDER_ID")
}

func TestPrepare_AllMissingColumn(t *testing.T) {
	ds := dataset.MustNew(
		dataset.NewNumeric("x", []float64{math.NaN(), math.NaN()}),
		dataset.NewNumeric("is_delayed", []float64{0, 1}),
	)
	_, _, err := Prepare(ds, "is_delayed")
	require.Error(t, err)
	assert.ErrorIs(t, err, dataset.ErrAllMissing)
}

func TestPrepare_ExtraExclusions(t *testing.T) {
	X, _, err := Prepare(deliveryRows(), "IS_DELAYED", "FREIGHT_VALUE")
	require.NoError(t, err)
	assert.Equal(t, []string{"days_since_last_order"}, X.Names())
}

func TestPrepareFeatures_MatchesTrainingColumns(t *testing.T) {
	ds := deliveryRows()
	X, _, err := Prepare(ds, "IS_DELAYED")
	require.NoError(t, err)

	scoring, err := PrepareFeatures(ds.Drop("IS_DELAYED"))
	require.NoError(t, err)
	assert.Equal(t, X.Names(), scoring.Names())
}

func TestPrepare_Idempotent(t *testing.T) {
	first, _, err := Prepare(deliveryRows(), "IS_DELAYED")
	require.NoError(t, err)

	second, err := PrepareFeatures(first)
	require.NoError(t, err)
	assert.Equal(t, first.Names(), second.Names())
	for _, name := range first.Names() {
		a, _ := first.Column(name)
		b, _ := second.Column(name)
		assert.Equal(t, a.Values, b.Values)
	}
}

func TestPreparer_ReportsMetrics(t *testing.T) {
	m := &mockMetrics{}
	p := NewPreparer(m)

	_, _, err := p.Prepare(deliveryRows(), "IS_DELAYED")
	require.NoError(t, err)

	assert.Equal(t, 1, m.prepared)
	assert.Equal(t, 4.0, m.rows)
	assert.Equal(t, 2.0, m.imputed)
}

func TestExclusionSet(t *testing.T) {
	set := ExclusionSet("extra", "", "ORDER_ID")
	assert.Contains(t, set, "extra")
	assert.Contains(t, set, "order_id")
	assert.NotContains(t, set, "")

	seen := map[string]bool{}
	for _, s := range set {
		assert.False(t, seen[s], "duplicate %s", s)
		seen[s] = true
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
		ok     bool
	}{
		{name: "empty", values: nil, ok: false},
		{name: "odd", values: []float64{3, 1, 2}, want: 2, ok: true},
		{name: "even", values: []float64{4, 1, 3, 2}, want: 2.5, ok: true},
		{name: "single", values: []float64{7}, want: 7, ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Median(tt.values)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestMode(t *testing.T) {
	_, ok := Mode(nil)
	assert.False(t, ok)

	got, ok := Mode([]bool{true, true, false})
	assert.True(t, ok)
	assert.True(t, got)

	got, _ = Mode([]bool{true, false})
	assert.False(t, got)
}
