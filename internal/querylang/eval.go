package querylang

import (
	"regexp"
	"strconv"
	"strings"

	"lazytail/internal/tokenizer"
)

// Outcome is the result of evaluating one line against a compiled query.
type Outcome struct {
	// Matched reports whether every filter clause held for the line.
	Matched bool
	// ParseFailed is set when a structured format could not parse the line.
	// Such lines never match; the count is reported separately and does not
	// abort a scan.
	ParseFailed bool
	// Fields holds the extracted field map when structured parsing
	// succeeded, for downstream aggregation. Nil otherwise.
	Fields map[string]string
}

// Evaluator is a compiled query: regex clauses are compiled once, then the
// evaluator is safe for concurrent use.
type Evaluator struct {
	query   *Query
	regexes []*regexp.Regexp
}

// Compile validates a query and precompiles its regex clauses. An invalid
// regex is rejected here, before any scan starts.
func Compile(q *Query) (*Evaluator, error) {
	ev := &Evaluator{query: q, regexes: make([]*regexp.Regexp, len(q.Filters))}
	for i, f := range q.Filters {
		if f.Op != OpRegex && f.Op != OpNotRegex {
			continue
		}
		re, err := regexp.Compile(f.Value)
		if err != nil {
			return nil, newParseError(0, i+1, ErrInvalidRegex,
				"invalid regex %q: %v", f.Value, err)
		}
		ev.regexes[i] = re
	}
	return ev, nil
}

// Query returns the compiled query's AST.
func (ev *Evaluator) Query() *Query {
	return ev.query
}

// Eval evaluates one line. For structured formats the line is parsed into a
// field map first; a parse failure fails every clause (a non-match, not an
// error). For the plain format no fields exist, so a query with filter
// clauses matches nothing and one without them matches everything.
func (ev *Evaluator) Eval(line []byte) Outcome {
	switch ev.query.Format {
	case FormatJSON:
		fields, ok := tokenizer.FlattenJSON(line)
		if !ok {
			return Outcome{ParseFailed: true}
		}
		return Outcome{Matched: ev.matchFields(fields), Fields: fields}
	case FormatLogfmt:
		fields := tokenizer.ExtractLogfmt(line)
		if fields == nil {
			return Outcome{ParseFailed: true}
		}
		return Outcome{Matched: ev.matchFields(fields), Fields: fields}
	default:
		return Outcome{Matched: len(ev.query.Filters) == 0}
	}
}

func (ev *Evaluator) matchFields(fields map[string]string) bool {
	for i, f := range ev.query.Filters {
		val, ok := fields[f.Field]
		if !ok {
			return false
		}
		if !ev.matchClause(i, f, val) {
			return false
		}
	}
	return true
}

func (ev *Evaluator) matchClause(i int, f Filter, val string) bool {
	switch f.Op {
	case OpEq:
		return val == f.Value
	case OpNe:
		return val != f.Value
	case OpContains:
		return strings.Contains(val, f.Value)
	case OpRegex:
		return ev.regexes[i].MatchString(val)
	case OpNotRegex:
		return !ev.regexes[i].MatchString(val)
	case OpGt:
		ord, ok := compareValues(val, f.Value)
		return ok && ord > 0
	case OpLt:
		ord, ok := compareValues(val, f.Value)
		return ok && ord < 0
	case OpGte:
		ord, ok := compareValues(val, f.Value)
		return ok && ord >= 0
	case OpLte:
		ord, ok := compareValues(val, f.Value)
		return ok && ord <= 0
	}
	return false
}

// compareValues orders two field values, numerically when both sides parse
// as numbers and lexically otherwise. The numeric-first rule is applied the
// same way regardless of operand order, so comparisons are deterministic.
func compareValues(a, b string) (int, bool) {
	af, aerr := strconv.ParseFloat(a, 64)
	bf, berr := strconv.ParseFloat(b, 64)
	if aerr == nil && berr == nil {
		if af != af || bf != bf { // NaN compares with nothing
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	return strings.Compare(a, b), true
}
