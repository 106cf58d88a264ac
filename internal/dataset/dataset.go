// Package dataset provides the in-memory tabular model shared by the warehouse
// readers, the feature preparation pipeline and the model trainer.
//
// A Dataset is an ordered set of named columns of equal length. Values are
// stored as float64 (numeric), string, bool or time.Time; nil marks a missing
// value regardless of the column kind.
package dataset

import (
	"fmt"
	"math"
	"time"
)

// Kind is the declared scalar type of a column.
type Kind int

const (
	KindNumeric Kind = iota
	KindString
	KindBool
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	default:
		return "unknown"
	}
}

// Column is a named sequence of values of a single kind.
type Column struct {
	Name   string
	Kind   Kind
	Values []any
}

// NewNumeric builds a numeric column. NaN entries are stored as missing.
func NewNumeric(name string, values []float64) *Column {
	out := make([]any, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		out[i] = v
	}
	return &Column{Name: name, Kind: KindNumeric, Values: out}
}

// NewStrings builds a string column.
func NewStrings(name string, values []string) *Column {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return &Column{Name: name, Kind: KindString, Values: out}
}

// NewBools builds a bool column.
func NewBools(name string, values []bool) *Column {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return &Column{Name: name, Kind: KindBool, Values: out}
}

// Len returns the number of rows in the column.
func (c *Column) Len() int { return len(c.Values) }

// IsNull reports whether row i is missing. NaN numerics count as missing.
func (c *Column) IsNull(i int) bool {
	v := c.Values[i]
	if v == nil {
		return true
	}
	if f, ok := v.(float64); ok && math.IsNaN(f) {
		return true
	}
	return false
}

// NullCount returns the number of missing values.
func (c *Column) NullCount() int {
	n := 0
	for i := range c.Values {
		if c.IsNull(i) {
			n++
		}
	}
	return n
}

// Float returns row i as a float64. Bools map to 0/1 and times to unix
// seconds. ok is false for missing or non-convertible values.
func (c *Column) Float(i int) (float64, bool) {
	switch v := c.Values[i].(type) {
	case float64:
		return v, !math.IsNaN(v)
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case time.Time:
		return float64(v.Unix()), true
	default:
		return 0, false
	}
}

// Floats returns the column as float64s with NaN for missing values.
func (c *Column) Floats() []float64 {
	out := make([]float64, len(c.Values))
	for i := range c.Values {
		if f, ok := c.Float(i); ok {
			out[i] = f
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// String returns row i formatted for display; missing values render empty.
func (c *Column) String(i int) string {
	if c.IsNull(i) {
		return ""
	}
	switch v := c.Values[i].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

// Clone returns a deep copy of the column's value slice.
func (c *Column) Clone() *Column {
	values := make([]any, len(c.Values))
	copy(values, c.Values)
	return &Column{Name: c.Name, Kind: c.Kind, Values: values}
}

func (c *Column) slice(start, end int) *Column {
	values := make([]any, end-start)
	copy(values, c.Values[start:end])
	return &Column{Name: c.Name, Kind: c.Kind, Values: values}
}

func (c *Column) take(rows []int) *Column {
	values := make([]any, len(rows))
	for i, r := range rows {
		values[i] = c.Values[r]
	}
	return &Column{Name: c.Name, Kind: c.Kind, Values: values}
}

// Dataset is an ordered collection of equally sized columns.
type Dataset struct {
	columns []*Column
	index   map[string]int
	rows    int
}

// New validates and assembles a dataset. Column names must be unique and
// every column must have the same length.
func New(columns ...*Column) (*Dataset, error) {
	ds := &Dataset{index: make(map[string]int, len(columns))}
	for i, c := range columns {
		if c == nil {
			return nil, fmt.Errorf("column %d is nil", i)
		}
		if _, dup := ds.index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		if i == 0 {
			ds.rows = c.Len()
		} else if c.Len() != ds.rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", c.Name, c.Len(), ds.rows)
		}
		ds.index[c.Name] = i
		ds.columns = append(ds.columns, c)
	}
	return ds, nil
}

// MustNew is New for fixtures and literals; it panics on invalid input.
func MustNew(columns ...*Column) *Dataset {
	ds, err := New(columns...)
	if err != nil {
		panic(err)
	}
	return ds
}

// Empty returns a zero-row dataset with the given schema.
func Empty(names []string, kinds []Kind) *Dataset {
	cols := make([]*Column, len(names))
	for i, n := range names {
		cols[i] = &Column{Name: n, Kind: kinds[i], Values: []any{}}
	}
	return MustNew(cols...)
}

// NumRows returns the row count.
func (d *Dataset) NumRows() int { return d.rows }

// NumCols returns the column count.
func (d *Dataset) NumCols() int { return len(d.columns) }

// Names returns the column names in order.
func (d *Dataset) Names() []string {
	names := make([]string, len(d.columns))
	for i, c := range d.columns {
		names[i] = c.Name
	}
	return names
}

// Has reports whether a column with the exact name exists.
func (d *Dataset) Has(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Column returns the column with the exact name.
func (d *Dataset) Column(name string) (*Column, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return d.columns[i], true
}

// ColumnAt returns the i-th column.
func (d *Dataset) ColumnAt(i int) *Column { return d.columns[i] }

// Drop returns a new dataset without the named columns. Unknown names are
// ignored. Column values are shared with the receiver.
func (d *Dataset) Drop(names ...string) *Dataset {
	skip := make(map[string]struct{}, len(names))
	for _, n := range names {
		skip[n] = struct{}{}
	}
	kept := make([]*Column, 0, len(d.columns))
	for _, c := range d.columns {
		if _, ok := skip[c.Name]; !ok {
			kept = append(kept, c)
		}
	}
	out := MustNew(kept...)
	if len(kept) == 0 {
		out.rows = d.rows
	}
	return out
}

// Select returns a new dataset with the named columns in the given order.
func (d *Dataset) Select(names ...string) (*Dataset, error) {
	cols := make([]*Column, 0, len(names))
	for _, n := range names {
		c, ok := d.Column(n)
		if !ok {
			return nil, fmt.Errorf("column %q not found", n)
		}
		cols = append(cols, c)
	}
	return New(cols...)
}

// WithColumn returns a new dataset with c appended, or replacing an
// existing column of the same name.
func (d *Dataset) WithColumn(c *Column) (*Dataset, error) {
	cols := make([]*Column, 0, len(d.columns)+1)
	replaced := false
	for _, existing := range d.columns {
		if existing.Name == c.Name {
			cols = append(cols, c)
			replaced = true
			continue
		}
		cols = append(cols, existing)
	}
	if !replaced {
		cols = append(cols, c)
	}
	if len(d.columns) > 0 && c.Len() != d.rows {
		return nil, fmt.Errorf("column %q has %d rows, expected %d", c.Name, c.Len(), d.rows)
	}
	return New(cols...)
}

// Slice returns rows [start, end) as a new dataset.
func (d *Dataset) Slice(start, end int) *Dataset {
	if start < 0 {
		start = 0
	}
	if end > d.rows {
		end = d.rows
	}
	if start > end {
		start = end
	}
	cols := make([]*Column, len(d.columns))
	for i, c := range d.columns {
		cols[i] = c.slice(start, end)
	}
	out := MustNew(cols...)
	out.rows = end - start
	return out
}

// Take returns the given rows, in order, as a new dataset.
func (d *Dataset) Take(rows []int) *Dataset {
	cols := make([]*Column, len(d.columns))
	for i, c := range d.columns {
		cols[i] = c.take(rows)
	}
	out := MustNew(cols...)
	out.rows = len(rows)
	return out
}

// Clone returns a deep copy.
func (d *Dataset) Clone() *Dataset {
	cols := make([]*Column, len(d.columns))
	for i, c := range d.columns {
		cols[i] = c.Clone()
	}
	out := MustNew(cols...)
	out.rows = d.rows
	return out
}

// Matrix returns the named columns as a row-major float64 matrix with NaN
// for missing or non-numeric values.
func (d *Dataset) Matrix(names []string) ([][]float64, error) {
	cols := make([]*Column, len(names))
	for j, n := range names {
		c, ok := d.Column(n)
		if !ok {
			return nil, fmt.Errorf("column %q not found", n)
		}
		cols[j] = c
	}
	out := make([][]float64, d.rows)
	for i := 0; i < d.rows; i++ {
		row := make([]float64, len(cols))
		for j, c := range cols {
			if f, ok := c.Float(i); ok {
				row[j] = f
			} else {
				row[j] = math.NaN()
			}
		}
		out[i] = row
	}
	return out, nil
}

// NumericNames returns the names of columns usable as model inputs:
// numeric and bool columns.
func (d *Dataset) NumericNames() []string {
	var names []string
	for _, c := range d.columns {
		if c.Kind == KindNumeric || c.Kind == KindBool {
			names = append(names, c.Name)
		}
	}
	return names
}
