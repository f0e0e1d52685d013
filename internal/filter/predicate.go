// Package filter runs background, cancellable scans of an indexed log file,
// evaluating a predicate line by line and streaming incremental results.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"lazytail/internal/colindex"
	"lazytail/internal/querylang"
)

// Kind discriminates the closed set of predicate variants.
type Kind int

const (
	KindPlain Kind = iota
	KindRegex
	KindQuery
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindRegex:
		return "regex"
	case KindQuery:
		return "query"
	default:
		return "?"
	}
}

// Predicate is an immutable line matcher: a plain substring, a regex, or a
// compiled query. It lives for one filter session and is rebuilt whenever
// the user-facing filter text changes.
type Predicate struct {
	kind          Kind
	text          string // needle, pattern source, or canonical query text
	caseSensitive bool

	re *regexp.Regexp
	ev *querylang.Evaluator

	loweredNeedle string // plain case-insensitive matching
}

// Plain builds a substring predicate.
func Plain(needle string, caseSensitive bool) Predicate {
	p := Predicate{kind: KindPlain, text: needle, caseSensitive: caseSensitive}
	if !caseSensitive {
		p.loweredNeedle = strings.ToLower(needle)
	}
	return p
}

// Regex builds a regex predicate. The pattern is compiled here so an
// invalid one is rejected before any scan starts.
func Regex(pattern string, caseSensitive bool) (Predicate, error) {
	src := pattern
	if !caseSensitive {
		src = "(?i)" + pattern
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return Predicate{}, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	return Predicate{kind: KindRegex, text: pattern, caseSensitive: caseSensitive, re: re}, nil
}

// Query builds a predicate from a parsed query AST.
func Query(q *querylang.Query) (Predicate, error) {
	ev, err := querylang.Compile(q)
	if err != nil {
		return Predicate{}, err
	}
	return Predicate{kind: KindQuery, text: q.String(), caseSensitive: true, ev: ev}, nil
}

// ParseQuery builds a query predicate from query text.
func ParseQuery(text string) (Predicate, error) {
	q, err := querylang.Parse(text)
	if err != nil {
		return Predicate{}, err
	}
	return Query(q)
}

// Kind returns the predicate variant.
func (p Predicate) Kind() Kind { return p.kind }

// Query returns the underlying query AST for query predicates, or nil.
func (p Predicate) Query() *querylang.Query {
	if p.ev == nil {
		return nil
	}
	return p.ev.Query()
}

// Key identifies the predicate for incremental re-filtering: two predicates
// with the same key produce the same matches, so a finished job's cursor
// and matches can seed the next job after the file grows.
func (p Predicate) Key() string {
	return fmt.Sprintf("%s/%t/%s", p.kind, p.caseSensitive, p.text)
}

func (p Predicate) String() string {
	return fmt.Sprintf("%s(%s)", p.kind, p.text)
}

// Eval evaluates one line. Lines must already be valid UTF-8; the scan loop
// substitutes invalid bytes before calling.
func (p Predicate) Eval(line []byte) querylang.Outcome {
	switch p.kind {
	case KindPlain:
		if p.caseSensitive {
			return querylang.Outcome{Matched: strings.Contains(string(line), p.text)}
		}
		return querylang.Outcome{
			Matched: strings.Contains(strings.ToLower(string(line)), p.loweredNeedle),
		}
	case KindRegex:
		return querylang.Outcome{Matched: p.re.Match(line)}
	default:
		return p.ev.Eval(line)
	}
}

// Shortcut reports the severity bitmap this predicate is constrained to,
// if any. A query with an exact `level == <severity>` clause can have its
// candidate lines pre-intersected with the columnar index; classification
// guarantees every line whose level field equals that token is in the
// bitmap, so the intersection never loses a match.
func (p Predicate) Shortcut() (colindex.Severity, bool) {
	q := p.Query()
	if q == nil || q.Format == querylang.FormatPlain {
		return colindex.Unknown, false
	}
	for _, f := range q.Filters {
		if f.Field != "level" || f.Op != querylang.OpEq {
			continue
		}
		if sev, ok := colindex.ParseSeverity(f.Value); ok {
			return sev, true
		}
	}
	return colindex.Unknown, false
}
