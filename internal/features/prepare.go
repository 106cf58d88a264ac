// Package features turns raw warehouse rows into model inputs: it removes
// identifier, target and leakage columns, imputes missing numerics with the
// column median and derives the binary labels used for training.
package features

import (
	"sort"

	"olist-ml/internal/dataset"

	"github.com/rs/zerolog/log"
)

// MetricsInterface defines the metrics the preparer reports.
type MetricsInterface interface {
	RowsPreparedAdd(float64)
	ImputedValuesAdd(float64)
}

// Preparer builds feature matrices. The zero value is ready to use.
type Preparer struct {
	metrics MetricsInterface
}

// NewPreparer returns a preparer that reports to m. m may be nil.
func NewPreparer(m MetricsInterface) *Preparer {
	return &Preparer{metrics: m}
}

// Prepare splits ds into a feature matrix and the target label.
//
// The target is matched exactly first, then through the catalog spellings
// of the same logical field. Identifier, target and leakage columns (every
// spelling), the resolved target and extra are removed from the features.
// Missing numeric values are replaced by the column's own median. ds is not
// modified; the returned matrix owns its imputed columns.
func (p *Preparer) Prepare(ds *dataset.Dataset, target string, extra ...string) (*dataset.Dataset, Label, error) {
	name, err := resolveTarget(ds, target)
	if err != nil {
		return nil, Label{}, err
	}
	col, _ := ds.Column(name)
	label := Label{Name: name, Column: col.Clone()}

	X, err := p.features(ds, append([]string{name, target}, extra...))
	if err != nil {
		return nil, Label{}, err
	}

	log.Info().Int("features", X.NumCols()).Int("rows", X.NumRows()).Msg("Prepared feature matrix")
	log.Info().Str("target", name).Int("samples", label.Len()).
		Interface("distribution", label.Counts()).Msg("Target distribution")
	return X, label, nil
}

// PrepareFeatures is the scoring path: the same exclusions and imputation
// as Prepare, without a target.
func (p *Preparer) PrepareFeatures(ds *dataset.Dataset, extra ...string) (*dataset.Dataset, error) {
	X, err := p.features(ds, extra)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("features", X.NumCols()).Int("rows", X.NumRows()).Msg("Prepared scoring matrix")
	return X, nil
}

// Prepare uses a preparer without metrics.
func Prepare(ds *dataset.Dataset, target string, extra ...string) (*dataset.Dataset, Label, error) {
	return (&Preparer{}).Prepare(ds, target, extra...)
}

// PrepareFeatures uses a preparer without metrics.
func PrepareFeatures(ds *dataset.Dataset, extra ...string) (*dataset.Dataset, error) {
	return (&Preparer{}).PrepareFeatures(ds, extra...)
}

// ExclusionSet returns the deduplicated, sorted list of column names that
// never reach a model, plus extra.
func ExclusionSet(extra ...string) []string {
	seen := make(map[string]struct{})
	for _, s := range dataset.ExcludedSpellings() {
		seen[s] = struct{}{}
	}
	for _, s := range extra {
		if s != "" {
			seen[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (p *Preparer) features(ds *dataset.Dataset, extra []string) (*dataset.Dataset, error) {
	X := ds.Drop(ExclusionSet(extra...)...)
	X, imputed, err := ImputeMedian(X)
	if err != nil {
		return nil, err
	}
	if p.metrics != nil {
		p.metrics.RowsPreparedAdd(float64(X.NumRows()))
		p.metrics.ImputedValuesAdd(float64(imputed))
	}
	return X, nil
}

func resolveTarget(ds *dataset.Dataset, target string) (string, error) {
	if ds.Has(target) {
		return target, nil
	}
	candidates := dataset.Spellings(target)
	if f, ok := dataset.FieldOf(target); ok {
		candidates = f.Spellings
	}
	name, ok, _ := dataset.Resolve(ds.Names(), target, candidates, false)
	if !ok {
		return "", &dataset.MissingTargetError{Target: target, Available: ds.Names()}
	}
	return name, nil
}
