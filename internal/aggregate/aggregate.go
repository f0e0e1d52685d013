// Package aggregate maintains running count-by groups over the stream of
// matched lines from a filter job. Counts update incrementally, so partial
// results are meaningful while a scan is still running.
package aggregate

import (
	"slices"
	"strings"
	"sync"

	"lazytail/internal/querylang"
)

// MaxGroupCardinality limits the number of distinct groups to prevent
// memory exhaustion. When a new group would exceed the cap, the current
// least-frequent group is evicted and the result is flagged, so high-count
// groups stay exact while the long tail becomes approximate.
const MaxGroupCardinality = 10_000

// Placeholders used as group values when a line has no real value for a
// group-by field.
const (
	// MissingValue groups lines that parsed but lack the field.
	MissingValue = "<missing>"
	// ParseFailedValue groups lines a structured format could not parse.
	ParseFailedValue = "<parse error>"
	// RawValue groups lines under the plain format, which extracts no fields.
	RawValue = "<raw>"
)

// Group is one group-by bucket: the tuple of field values and its count.
type Group struct {
	Values []string
	Count  int
}

// Result is a point-in-time snapshot of the aggregation.
type Result struct {
	// Fields are the group-by field names, in query order.
	Fields []string
	// Groups are sorted by descending count; equal counts keep first-seen
	// order. When the query has a top-N limit, only the top N appear.
	Groups []Group
	// Evicted reports that the cardinality cap forced evictions, making
	// low-count groups approximate.
	Evicted bool
}

type groupState struct {
	values []string
	count  int
}

// Aggregator accumulates matched lines into count-by groups. Safe for one
// writer and concurrent snapshot readers.
type Aggregator struct {
	fields []string
	limit  int
	cap    int

	mu       sync.Mutex
	state    map[string]*groupState
	keyOrder []string // insertion order; breaks count ties deterministically
	evicted  bool
}

// New creates an aggregator for the query's count-by clause.
// Returns nil if the query has no aggregation.
func New(q *querylang.Query) *Aggregator {
	if q.Aggregate == nil {
		return nil
	}
	return &Aggregator{
		fields: q.Aggregate.Fields,
		limit:  q.Aggregate.Limit,
		cap:    MaxGroupCardinality,
		state:  make(map[string]*groupState),
	}
}

// Add records one matched line. The outcome carries the extracted field map
// (or its absence) from predicate evaluation, so aggregation never re-reads
// or re-parses the line.
func (a *Aggregator) Add(out querylang.Outcome) {
	values := make([]string, len(a.fields))
	for i, f := range a.fields {
		switch {
		case out.ParseFailed:
			values[i] = ParseFailedValue
		case out.Fields == nil:
			values[i] = RawValue
		default:
			v, ok := out.Fields[f]
			if !ok {
				v = MissingValue
			}
			values[i] = v
		}
	}

	key := strings.Join(values, "\x00")

	a.mu.Lock()
	defer a.mu.Unlock()

	gs, exists := a.state[key]
	if !exists {
		if len(a.state) >= a.cap {
			a.evictLeastFrequent()
		}
		gs = &groupState{values: values}
		a.state[key] = gs
		a.keyOrder = append(a.keyOrder, key)
	}
	gs.count++
}

// evictLeastFrequent removes the group with the smallest count to make room
// for a new one. Among equal counts the newest group goes, so long-standing
// groups survive churn in the tail. Caller holds the lock.
func (a *Aggregator) evictLeastFrequent() {
	victim := -1
	for i, key := range a.keyOrder {
		if victim < 0 || a.state[key].count <= a.state[a.keyOrder[victim]].count {
			victim = i
		}
	}
	if victim < 0 {
		return
	}
	delete(a.state, a.keyOrder[victim])
	a.keyOrder = append(a.keyOrder[:victim], a.keyOrder[victim+1:]...)
	a.evicted = true
}

// Reset discards all groups, for a restart after supersession or truncation.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = make(map[string]*groupState)
	a.keyOrder = nil
	a.evicted = false
}

// Snapshot returns the current groups sorted by descending count, ties in
// first-seen order, truncated to the query's top-N limit if it has one.
func (a *Aggregator) Snapshot() *Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	groups := make([]Group, 0, len(a.keyOrder))
	for _, key := range a.keyOrder {
		gs := a.state[key]
		groups = append(groups, Group{
			Values: append([]string(nil), gs.values...),
			Count:  gs.count,
		})
	}

	// Stable sort keeps first-seen order within equal counts.
	slices.SortStableFunc(groups, func(gi, gj Group) int {
		return gj.Count - gi.Count
	})

	if a.limit > 0 && len(groups) > a.limit {
		groups = groups[:a.limit]
	}

	return &Result{
		Fields: append([]string(nil), a.fields...),
		Groups: groups,
		Evicted: a.evicted,
	}
}
