// Package warehouse reads rectangular results from the gold layer of the
// order warehouse, either through database/sql or the Snowflake SQL API.
package warehouse

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"olist-ml/internal/dataset"
)

// Source runs queries and returns their results as datasets. A failed query
// returns an error; a query that matched nothing returns a zero-row dataset
// carrying the result schema. Implementations are not safe for concurrent use.
type Source interface {
	Query(ctx context.Context, q Query) (*dataset.Dataset, error)
	Close() error
}

// MetricsInterface defines the metrics a source reports.
type MetricsInterface interface {
	QueryDurationObserve(seconds float64)
	QueryErrorsInc()
}

// kindOf maps a warehouse type name to a column kind. ok is false when the
// name is unknown and the kind must be inferred from the values.
func kindOf(typeName string) (dataset.Kind, bool) {
	t := strings.ToUpper(strings.TrimSpace(typeName))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	switch {
	case t == "":
		return 0, false
	case strings.HasPrefix(t, "TIMESTAMP"), t == "DATE", t == "DATETIME":
		return dataset.KindTime, true
	case t == "BOOLEAN", t == "BOOL":
		return dataset.KindBool, true
	}
	switch t {
	case "FIXED", "REAL", "NUMBER", "DECIMAL", "NUMERIC", "INT", "INTEGER", "BIGINT", "SMALLINT",
		"TINYINT", "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "DOUBLE PRECISION", "INT2", "INT4", "INT8":
		return dataset.KindNumeric, true
	case "TEXT", "VARCHAR", "CHAR", "STRING", "BPCHAR", "VARIANT", "UUID":
		return dataset.KindString, true
	}
	return 0, false
}

// inferKind guesses a kind from the first non-null value.
func inferKind(values []any) dataset.Kind {
	for _, v := range values {
		switch v.(type) {
		case nil:
			continue
		case int64, int32, int, float64, float32:
			return dataset.KindNumeric
		case bool:
			return dataset.KindBool
		case time.Time:
			return dataset.KindTime
		default:
			return dataset.KindString
		}
	}
	return dataset.KindString
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// convert coerces a driver value into the representation used by kind.
func convert(v any, kind dataset.Kind) (any, error) {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		return nil, nil
	}
	switch kind {
	case dataset.KindNumeric:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case int32:
			return float64(x), nil
		case int:
			return float64(x), nil
		case bool:
			if x {
				return 1.0, nil
			}
			return 0.0, nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return nil, fmt.Errorf("parse numeric %q: %w", x, err)
			}
			return f, nil
		}
	case dataset.KindBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case float64:
			return x != 0, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(x))
			if err != nil {
				return nil, fmt.Errorf("parse bool %q: %w", x, err)
			}
			return b, nil
		}
	case dataset.KindTime:
		switch x := v.(type) {
		case time.Time:
			return x, nil
		case string:
			for _, layout := range timeLayouts {
				if t, err := time.Parse(layout, x); err == nil {
					return t, nil
				}
			}
			return nil, fmt.Errorf("parse time %q", x)
		}
	case dataset.KindString:
		switch x := v.(type) {
		case string:
			return x, nil
		case time.Time:
			return x.Format(time.RFC3339), nil
		}
		return fmt.Sprint(v), nil
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, kind)
}

// assemble builds a dataset from column-major raw values.
func assemble(names []string, kinds []dataset.Kind, known []bool, raw [][]any) (*dataset.Dataset, error) {
	cols := make([]*dataset.Column, len(names))
	for j, name := range names {
		kind := kinds[j]
		if !known[j] {
			kind = inferKind(raw[j])
		}
		values := make([]any, len(raw[j]))
		for i, v := range raw[j] {
			cv, err := convert(v, kind)
			if err != nil {
				return nil, fmt.Errorf("column %s row %d: %w", name, i, err)
			}
			values[i] = cv
		}
		cols[j] = &dataset.Column{Name: name, Kind: kind, Values: values}
	}
	return dataset.New(cols...)
}
