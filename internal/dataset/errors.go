package dataset

import (
	"errors"
	"fmt"
	"strings"
)

// ErrColumnNotFound is the errors.Is target for every failed column lookup.
var ErrColumnNotFound = errors.New("column not found")

// ColumnNotFoundError reports a required logical field that none of its
// spellings could satisfy.
type ColumnNotFoundError struct {
	Field      string
	Candidates []string
	Available  []string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column %q not found (tried %s); available columns: [%s]",
		e.Field, strings.Join(e.Candidates, ", "), strings.Join(e.Available, ", "))
}

func (e *ColumnNotFoundError) Unwrap() error { return ErrColumnNotFound }

var (
	// ErrMissingTarget marks a training target that could not be resolved.
	ErrMissingTarget = errors.New("missing target column")
	// ErrMissingFeature marks a required input column that could not be resolved.
	ErrMissingFeature = errors.New("missing feature column")
	// ErrAllMissing marks a numeric column with no observed values, whose
	// median is undefined.
	ErrAllMissing = errors.New("column has no observed values")
)

// MissingTargetError is returned when the requested target is absent under
// every known spelling.
type MissingTargetError struct {
	Target    string
	Available []string
}

func (e *MissingTargetError) Error() string {
	return fmt.Sprintf("target column %q not found in dataset; available columns: [%s]",
		e.Target, strings.Join(e.Available, ", "))
}

func (e *MissingTargetError) Unwrap() error { return ErrMissingTarget }

// MissingFeatureError is returned when a column needed to derive a label or
// feed a model is absent.
type MissingFeatureError struct {
	Feature   string
	Available []string
}

func (e *MissingFeatureError) Error() string {
	return fmt.Sprintf("column %q not found in dataset; available columns: [%s]",
		e.Feature, strings.Join(e.Available, ", "))
}

func (e *MissingFeatureError) Unwrap() error { return ErrMissingFeature }

// AllMissingColumnError reports a numeric feature that is entirely null.
type AllMissingColumnError struct {
	Column string
}

func (e *AllMissingColumnError) Error() string {
	return fmt.Sprintf("numeric column %q has no observed values; median is undefined", e.Column)
}

func (e *AllMissingColumnError) Unwrap() error { return ErrAllMissing }
