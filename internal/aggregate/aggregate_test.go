package aggregate

import (
	"fmt"
	"reflect"
	"testing"

	"lazytail/internal/querylang"
)

func mustAggregator(t *testing.T, query string) (*Aggregator, *querylang.Evaluator) {
	t.Helper()
	q, err := querylang.Parse(query)
	if err != nil {
		t.Fatalf("Parse(%q): %v", query, err)
	}
	ev, err := querylang.Compile(q)
	if err != nil {
		t.Fatalf("Compile(%q): %v", query, err)
	}
	agg := New(q)
	if agg == nil {
		t.Fatalf("New returned nil for %q", query)
	}
	return agg, ev
}

func feed(agg *Aggregator, ev *querylang.Evaluator, lines ...string) {
	for _, line := range lines {
		out := ev.Eval([]byte(line))
		if out.Matched {
			agg.Add(out)
		}
	}
}

func TestCountBySingleField(t *testing.T) {
	agg, ev := mustAggregator(t, `json | level == "error" | count by (service)`)
	feed(agg, ev,
		`{"level": "error", "service": "api"}`,
		`{"level": "error", "service": "api"}`,
		`{"level": "info", "service": "api"}`,
		`{"level": "error", "service": "api"}`,
	)

	res := agg.Snapshot()
	want := []Group{{Values: []string{"api"}, Count: 3}}
	if !reflect.DeepEqual(res.Groups, want) {
		t.Errorf("Groups = %+v, want %+v", res.Groups, want)
	}
	if !reflect.DeepEqual(res.Fields, []string{"service"}) {
		t.Errorf("Fields = %v", res.Fields)
	}
	if res.Evicted {
		t.Error("Evicted = true")
	}
}

func TestCountByMultipleFields(t *testing.T) {
	agg, ev := mustAggregator(t, `json | count by (service, level)`)
	feed(agg, ev,
		`{"service": "api", "level": "error"}`,
		`{"service": "api", "level": "info"}`,
		`{"service": "api", "level": "error"}`,
		`{"service": "web", "level": "error"}`,
	)

	res := agg.Snapshot()
	want := []Group{
		{Values: []string{"api", "error"}, Count: 2},
		{Values: []string{"api", "info"}, Count: 1},
		{Values: []string{"web", "error"}, Count: 1},
	}
	if !reflect.DeepEqual(res.Groups, want) {
		t.Errorf("Groups = %+v, want %+v", res.Groups, want)
	}
}

func TestCountBySortedByDescendingCount(t *testing.T) {
	agg, ev := mustAggregator(t, `logfmt | count by (host)`)
	feed(agg, ev,
		"host=a", "host=b", "host=b", "host=c", "host=b", "host=c",
	)

	res := agg.Snapshot()
	want := []Group{
		{Values: []string{"b"}, Count: 3},
		{Values: []string{"c"}, Count: 2},
		{Values: []string{"a"}, Count: 1},
	}
	if !reflect.DeepEqual(res.Groups, want) {
		t.Errorf("Groups = %+v, want %+v", res.Groups, want)
	}
}

func TestCountByTieBreaksFirstSeen(t *testing.T) {
	agg, ev := mustAggregator(t, `logfmt | count by (host)`)
	feed(agg, ev, "host=z", "host=a", "host=m")

	res := agg.Snapshot()
	want := []Group{
		{Values: []string{"z"}, Count: 1},
		{Values: []string{"a"}, Count: 1},
		{Values: []string{"m"}, Count: 1},
	}
	if !reflect.DeepEqual(res.Groups, want) {
		t.Errorf("equal counts should keep first-seen order: %+v", res.Groups)
	}
}

func TestCountByTopN(t *testing.T) {
	agg, ev := mustAggregator(t, `logfmt | count by (host) | top 2`)
	feed(agg, ev, "host=a", "host=b", "host=b", "host=c", "host=c", "host=c")

	res := agg.Snapshot()
	want := []Group{
		{Values: []string{"c"}, Count: 3},
		{Values: []string{"b"}, Count: 2},
	}
	if !reflect.DeepEqual(res.Groups, want) {
		t.Errorf("Groups = %+v, want %+v", res.Groups, want)
	}
}

func TestCountByMissingField(t *testing.T) {
	agg, ev := mustAggregator(t, `json | count by (service)`)
	feed(agg, ev,
		`{"service": "api"}`,
		`{"msg": "no service field"}`,
		`{"msg": "another"}`,
	)

	res := agg.Snapshot()
	want := []Group{
		{Values: []string{MissingValue}, Count: 2},
		{Values: []string{"api"}, Count: 1},
	}
	if !reflect.DeepEqual(res.Groups, want) {
		t.Errorf("Groups = %+v, want %+v", res.Groups, want)
	}
}

func TestCountByPlainFormat(t *testing.T) {
	agg, ev := mustAggregator(t, `plain | count by (service)`)
	feed(agg, ev, "one line", "another line")

	res := agg.Snapshot()
	want := []Group{{Values: []string{RawValue}, Count: 2}}
	if !reflect.DeepEqual(res.Groups, want) {
		t.Errorf("Groups = %+v, want %+v", res.Groups, want)
	}
}

func TestIncrementalSnapshots(t *testing.T) {
	agg, ev := mustAggregator(t, `logfmt | count by (host)`)

	feed(agg, ev, "host=a", "host=a")
	res := agg.Snapshot()
	if len(res.Groups) != 1 || res.Groups[0].Count != 2 {
		t.Fatalf("partial snapshot = %+v", res.Groups)
	}

	feed(agg, ev, "host=b", "host=a")
	res = agg.Snapshot()
	want := []Group{
		{Values: []string{"a"}, Count: 3},
		{Values: []string{"b"}, Count: 1},
	}
	if !reflect.DeepEqual(res.Groups, want) {
		t.Errorf("Groups = %+v, want %+v", res.Groups, want)
	}
}

func TestReset(t *testing.T) {
	agg, ev := mustAggregator(t, `logfmt | count by (host)`)
	feed(agg, ev, "host=a")
	agg.Reset()

	if res := agg.Snapshot(); len(res.Groups) != 0 || res.Evicted {
		t.Errorf("Snapshot after Reset = %+v", res)
	}
}

func TestCardinalityCapEvictsLeastFrequent(t *testing.T) {
	agg, ev := mustAggregator(t, `logfmt | count by (host)`)
	agg.cap = 3

	// host=big dominates; the tail churns past the cap.
	feed(agg, ev, "host=big", "host=big", "host=big", "host=mid", "host=mid")
	feed(agg, ev, "host=t1", "host=t2")

	res := agg.Snapshot()
	if !res.Evicted {
		t.Fatal("Evicted = false after exceeding cap")
	}
	if len(res.Groups) != 3 {
		t.Fatalf("len(Groups) = %d, want cap 3", len(res.Groups))
	}
	if !reflect.DeepEqual(res.Groups[0], Group{Values: []string{"big"}, Count: 3}) {
		t.Errorf("dominant group disturbed: %+v", res.Groups[0])
	}
	if !reflect.DeepEqual(res.Groups[1], Group{Values: []string{"mid"}, Count: 2}) {
		t.Errorf("second group disturbed: %+v", res.Groups[1])
	}
}

func TestNewWithoutAggregation(t *testing.T) {
	q, err := querylang.Parse(`json | level == "error"`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if agg := New(q); agg != nil {
		t.Error("New returned an aggregator for a query without count by")
	}
}

func TestLargeGroupSpread(t *testing.T) {
	agg, ev := mustAggregator(t, `logfmt | count by (id) | top 5`)
	for i := 0; i < 100; i++ {
		feed(agg, ev, fmt.Sprintf("id=g%d", i%10))
	}

	res := agg.Snapshot()
	if len(res.Groups) != 5 {
		t.Fatalf("len(Groups) = %d, want 5", len(res.Groups))
	}
	for _, g := range res.Groups {
		if g.Count != 10 {
			t.Errorf("group %v count = %d, want 10", g.Values, g.Count)
		}
	}
	// All counts equal, so top 5 is the first five ids seen.
	for i, g := range res.Groups {
		if want := fmt.Sprintf("g%d", i); g.Values[0] != want {
			t.Errorf("Groups[%d] = %v, want %s", i, g.Values, want)
		}
	}
}
