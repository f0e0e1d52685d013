// Package querylang implements the structured filter query language:
// a source format, AND-ed filter clauses, and an optional count-by
// aggregation, written as pipe-separated stages:
//
//	json | level == "error" | service =~ "api.*"
//	logfmt | status >= 400 | count by (service) | top 5
//
// The same AST is reachable from an equivalent JSON form (see Def), so
// programmatic callers never have to compose query strings.
package querylang

import (
	"fmt"
	"strconv"
	"strings"
)

// Format selects how lines are parsed into fields before filter clauses run.
type Format int

const (
	// FormatPlain performs no field extraction. Filter clauses cannot match.
	FormatPlain Format = iota
	// FormatJSON parses lines as JSON objects, flattened to dot paths.
	FormatJSON
	// FormatLogfmt parses lines as key=value pairs.
	FormatLogfmt
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatLogfmt:
		return "logfmt"
	default:
		return "plain"
	}
}

// Op is a filter clause comparison operator.
type Op int

const (
	OpEq       Op = iota // ==
	OpNe                 // !=
	OpRegex              // =~
	OpNotRegex           // !~
	OpContains           // contains
	OpGt                 // >
	OpLt                 // <
	OpGte                // >=
	OpLte                // <=
)

func (op Op) String() string {
	switch op {
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	case OpRegex:
		return "=~"
	case OpNotRegex:
		return "!~"
	case OpContains:
		return "contains"
	case OpGt:
		return ">"
	case OpLt:
		return "<"
	case OpGte:
		return ">="
	case OpLte:
		return "<="
	default:
		return "?"
	}
}

// Filter is a single field comparison clause. All clauses in a query must
// match (AND); there is no OR or NOT.
type Filter struct {
	Field string
	Op    Op
	Value string
}

func (f Filter) String() string {
	return fmt.Sprintf("%s %s %s", f.Field, f.Op, strconv.Quote(f.Value))
}

// Aggregation is a trailing count-by clause grouping matched lines by the
// values of one or more fields. Limit > 0 keeps only the top N groups by
// descending count.
type Aggregation struct {
	Fields []string
	Limit  int
}

func (a *Aggregation) String() string {
	s := "count by (" + strings.Join(a.Fields, ", ") + ")"
	if a.Limit > 0 {
		s += fmt.Sprintf(" | top %d", a.Limit)
	}
	return s
}

// Query is the parsed form of a filter query: stages applied left to right.
type Query struct {
	Format    Format
	Filters   []Filter
	Aggregate *Aggregation
}

// String renders the query back into its canonical text form.
func (q *Query) String() string {
	parts := []string{q.Format.String()}
	for _, f := range q.Filters {
		parts = append(parts, f.String())
	}
	if q.Aggregate != nil {
		parts = append(parts, q.Aggregate.String())
	}
	return strings.Join(parts, " | ")
}
