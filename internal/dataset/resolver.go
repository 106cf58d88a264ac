package dataset

// Resolve returns the first candidate spelling present in columns,
// preserving the caller's priority order. When none is present it returns
// a *ColumnNotFoundError if required, or ok=false otherwise.
func Resolve(columns []string, field string, candidates []string, required bool) (name string, ok bool, err error) {
	present := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		present[c] = struct{}{}
	}
	for _, c := range candidates {
		if _, hit := present[c]; hit {
			return c, true, nil
		}
	}
	if required {
		return "", false, &ColumnNotFoundError{Field: field, Candidates: candidates, Available: columns}
	}
	return "", false, nil
}

// Resolver maps logical field names to the physical spelling used by one
// dataset. Build it once per dataset.
type Resolver struct {
	columns []string
	present map[string]struct{}
}

// NewResolver indexes the column names of ds.
func NewResolver(ds *Dataset) *Resolver {
	names := ds.Names()
	present := make(map[string]struct{}, len(names))
	for _, n := range names {
		present[n] = struct{}{}
	}
	return &Resolver{columns: names, present: present}
}

// Lookup resolves an optional field through its catalog spellings.
func (r *Resolver) Lookup(field string) (string, bool) {
	for _, s := range Spellings(field) {
		if _, ok := r.present[s]; ok {
			return s, true
		}
	}
	return "", false
}

// Require resolves a required field through its catalog spellings.
func (r *Resolver) Require(field string) (string, error) {
	if name, ok := r.Lookup(field); ok {
		return name, nil
	}
	return "", &ColumnNotFoundError{Field: field, Candidates: Spellings(field), Available: r.columns}
}

// First resolves the first field, in order, that has any spelling present.
func (r *Resolver) First(fields ...string) (string, bool) {
	for _, f := range fields {
		if name, ok := r.Lookup(f); ok {
			return name, true
		}
	}
	return "", false
}

// Columns returns the dataset's column names.
func (r *Resolver) Columns() []string { return r.columns }
