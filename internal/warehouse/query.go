package warehouse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Op is a filter comparison.
type Op string

const (
	OpEq  Op = "="
	OpGte Op = ">="
	OpLte Op = "<="
	OpLt  Op = "<"
	OpIn  Op = "IN"
)

// Filter restricts a relation on one column. Values are always bound.
type Filter struct {
	Column string
	Op     Op
	Values []any
}

func Eq(column string, v any) Filter  { return Filter{Column: column, Op: OpEq, Values: []any{v}} }
func Gte(column string, v any) Filter { return Filter{Column: column, Op: OpGte, Values: []any{v}} }
func Lte(column string, v any) Filter { return Filter{Column: column, Op: OpLte, Values: []any{v}} }
func Lt(column string, v any) Filter  { return Filter{Column: column, Op: OpLt, Values: []any{v}} }

// In matches any of values. An empty list matches nothing.
func In(column string, values ...any) Filter {
	return Filter{Column: column, Op: OpIn, Values: values}
}

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// Query describes a read against the warehouse: either a relation with
// filters, or a raw statement with bind arguments.
type Query struct {
	Relation string
	Columns  []string
	Filters  []Filter
	OrderBy  []Order
	Limit    int

	SQL  string
	Args []any
}

// Table starts a query over relation.
func Table(relation string, filters ...Filter) Query {
	return Query{Relation: relation, Filters: filters}
}

// Raw wraps a statement that uses ? placeholders.
func Raw(sql string, args ...any) Query {
	return Query{SQL: sql, Args: args}
}

// Placeholder selects the bind marker style of a driver.
type Placeholder int

const (
	// Question uses ? markers (Snowflake, SQLite, MySQL).
	Question Placeholder = iota
	// Dollar uses $1, $2, ... markers (Postgres).
	Dollar
)

// ErrInvalidQuery is returned for queries that cannot be rendered safely.
var ErrInvalidQuery = errors.New("invalid query")

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

func checkIdent(kind, name string) error {
	if !identRE.MatchString(name) {
		return fmt.Errorf("%w: %s %q is not a plain identifier", ErrInvalidQuery, kind, name)
	}
	return nil
}

// Build renders q as a statement and its arguments.
func (q Query) Build(ph Placeholder) (string, []any, error) {
	if q.SQL != "" {
		if q.Relation != "" {
			return "", nil, fmt.Errorf("%w: both relation and raw SQL set", ErrInvalidQuery)
		}
		return rebind(q.SQL, ph), q.Args, nil
	}
	if err := checkIdent("relation", q.Relation); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if len(q.Columns) == 0 {
		b.WriteString("*")
	} else {
		for i, c := range q.Columns {
			if err := checkIdent("column", c); err != nil {
				return "", nil, err
			}
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(c)
		}
	}
	b.WriteString(" FROM ")
	b.WriteString(q.Relation)

	var args []any
	for i, f := range q.Filters {
		if err := checkIdent("column", f.Column); err != nil {
			return "", nil, err
		}
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		switch f.Op {
		case OpEq, OpGte, OpLte, OpLt:
			if len(f.Values) != 1 {
				return "", nil, fmt.Errorf("%w: %s %s takes one value", ErrInvalidQuery, f.Column, f.Op)
			}
			fmt.Fprintf(&b, "%s %s ?", f.Column, f.Op)
			args = append(args, f.Values[0])
		case OpIn:
			if len(f.Values) == 0 {
				b.WriteString("1 = 0")
				continue
			}
			b.WriteString(f.Column)
			b.WriteString(" IN (")
			b.WriteString(strings.TrimSuffix(strings.Repeat("?, ", len(f.Values)), ", "))
			b.WriteString(")")
			args = append(args, f.Values...)
		default:
			return "", nil, fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, f.Op)
		}
	}

	for i, o := range q.OrderBy {
		if err := checkIdent("column", o.Column); err != nil {
			return "", nil, err
		}
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(o.Column)
		if o.Desc {
			b.WriteString(" DESC")
		}
	}

	if q.Limit < 0 {
		return "", nil, fmt.Errorf("%w: negative limit", ErrInvalidQuery)
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(q.Limit))
	}
	return rebind(b.String(), ph), args, nil
}

// String renders the query for logs.
func (q Query) String() string {
	s, _, err := q.Build(Question)
	if err != nil {
		return fmt.Sprintf("<invalid: %v>", err)
	}
	return s
}

// rebind rewrites ? markers outside string literals for ph.
func rebind(sql string, ph Placeholder) string {
	if ph == Question {
		return sql
	}
	var b strings.Builder
	n := 0
	quoted := false
	for _, r := range sql {
		switch {
		case r == '\'':
			quoted = !quoted
			b.WriteRune(r)
		case r == '?' && !quoted:
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
