package querylang

// Def is the structured (JSON-friendly) form of a query. It parses to the
// same AST as the text form, so programmatic callers can submit queries
// without composing strings:
//
//	{
//	  "format": "json",
//	  "filters": [{"field": "level", "op": "eq", "value": "error"}],
//	  "aggregate": {"type": "count_by", "fields": ["service"], "limit": 5}
//	}
type Def struct {
	Format    string        `json:"format"`
	Filters   []FilterDef   `json:"filters,omitempty"`
	Aggregate *AggregateDef `json:"aggregate,omitempty"`
}

// FilterDef is one filter clause in structured form. Op is the snake_case
// operator name: eq, ne, regex, not_regex, contains, gt, lt, gte, lte.
type FilterDef struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value string `json:"value"`
}

// AggregateDef is the structured aggregation clause. Type must be
// "count_by"; Limit of zero means no top-N truncation.
type AggregateDef struct {
	Type   string   `json:"type"`
	Fields []string `json:"fields"`
	Limit  int      `json:"limit,omitempty"`
}

var opNames = map[Op]string{
	OpEq:       "eq",
	OpNe:       "ne",
	OpRegex:    "regex",
	OpNotRegex: "not_regex",
	OpContains: "contains",
	OpGt:       "gt",
	OpLt:       "lt",
	OpGte:      "gte",
	OpLte:      "lte",
}

var opsByName = map[string]Op{
	"eq":        OpEq,
	"ne":        OpNe,
	"regex":     OpRegex,
	"not_regex": OpNotRegex,
	"contains":  OpContains,
	"gt":        OpGt,
	"lt":        OpLt,
	"gte":       OpGte,
	"lte":       OpLte,
}

// AST validates the structured form and converts it to a Query.
func (d *Def) AST() (*Query, error) {
	q := &Query{}

	switch d.Format {
	case "", "plain", "raw":
		q.Format = FormatPlain
	case "json":
		q.Format = FormatJSON
	case "logfmt":
		q.Format = FormatLogfmt
	default:
		return nil, newParseError(0, 0, ErrUnknownFormat,
			"unknown format %q (want plain, json, or logfmt)", d.Format)
	}

	for i, f := range d.Filters {
		op, ok := opsByName[f.Op]
		if !ok {
			return nil, newParseError(0, i+1, ErrUnknownOperator,
				"unknown operator %q in filter %d", f.Op, i)
		}
		if f.Field == "" {
			return nil, newParseError(0, i+1, ErrExpectedField,
				"missing field in filter %d", i)
		}
		q.Filters = append(q.Filters, Filter{Field: f.Field, Op: op, Value: f.Value})
	}

	if d.Aggregate != nil {
		if d.Aggregate.Type != "" && d.Aggregate.Type != "count_by" {
			return nil, newParseError(0, len(d.Filters)+1, ErrBadAggregation,
				"unknown aggregation type %q", d.Aggregate.Type)
		}
		if len(d.Aggregate.Fields) == 0 {
			return nil, newParseError(0, len(d.Filters)+1, ErrBadAggregation,
				"aggregation needs at least one group-by field")
		}
		if d.Aggregate.Limit < 0 {
			return nil, newParseError(0, len(d.Filters)+1, ErrBadAggregation,
				"negative top limit %d", d.Aggregate.Limit)
		}
		q.Aggregate = &Aggregation{
			Fields: append([]string(nil), d.Aggregate.Fields...),
			Limit:  d.Aggregate.Limit,
		}
	}

	return q, nil
}

// Def converts a query back to its structured form.
func (q *Query) Def() *Def {
	d := &Def{Format: q.Format.String()}
	for _, f := range q.Filters {
		d.Filters = append(d.Filters, FilterDef{
			Field: f.Field,
			Op:    opNames[f.Op],
			Value: f.Value,
		})
	}
	if q.Aggregate != nil {
		d.Aggregate = &AggregateDef{
			Type:   "count_by",
			Fields: append([]string(nil), q.Aggregate.Fields...),
			Limit:  q.Aggregate.Limit,
		}
	}
	return d
}
