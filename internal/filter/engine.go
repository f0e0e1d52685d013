package filter

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/time/rate"

	"lazytail/internal/aggregate"
	"lazytail/internal/colindex"
	"lazytail/internal/logging"
)

// DefaultBatchSize is how many lines a scan processes between cancellation
// checks and progress snapshots.
const DefaultBatchSize = 50_000

// defaultProgressInterval throttles intermediate snapshots; terminal
// snapshots are always published.
const defaultProgressInterval = 100 * time.Millisecond

// Source is the indexed log file a scan reads from. Len may grow while a
// scan runs; a scan re-reads it between batches to pick up appended lines.
type Source interface {
	// Len returns the number of indexed lines.
	Len() int
	// ReadLine returns the content of line n.
	ReadLine(n int) ([]byte, error)
	// SeverityBitmap returns the set of line numbers classified with the
	// given severity, plus the number of lines the classification covers.
	// Lines at or past that point must be scanned without the bitmap.
	SeverityBitmap(sev colindex.Severity) (*roaring.Bitmap, int)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = logging.Component(log, "filter-engine") }
}

// WithBatchSize overrides the scan batch size.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithProgressInterval overrides the minimum delay between intermediate
// progress snapshots.
func WithProgressInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.progressEvery = d
		}
	}
}

// Engine runs filter jobs against one source, at most one at a time. A new
// predicate supersedes the running job; re-starting an identical predicate
// after it finished resumes from its cursor instead of rescanning.
type Engine struct {
	src           Source
	log           *slog.Logger
	batchSize     int
	progressEvery time.Duration

	mu  sync.Mutex
	cur *Job
}

// NewEngine creates an engine for the given source.
func NewEngine(src Source, opts ...Option) *Engine {
	e := &Engine{
		src:           src,
		log:           logging.Discard(),
		batchSize:     DefaultBatchSize,
		progressEvery: defaultProgressInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start begins a background scan for the predicate and returns its job.
//
// If a job for an identical predicate is still running it is returned
// as-is; growth visible before it finishes is picked up by that job. If an
// identical predicate's job already completed, the new job resumes from its
// cursor and keeps its matches. Any other in-flight job is superseded and
// the new one scans from line zero.
func (e *Engine) Start(pred Predicate) *Job {
	e.mu.Lock()

	prev := e.cur
	if prev != nil && prev.pred.Key() == pred.Key() && !prev.State().Terminal() {
		e.mu.Unlock()
		return prev
	}

	var seed resumePoint
	var agg *aggregate.Aggregator
	if prev != nil && prev.pred.Key() == pred.Key() && prev.State() == Done {
		snap := prev.Snapshot()
		seed = resumePoint{
			from:          prev.id,
			cursor:        snap.Scanned,
			matched:       snap.Matched,
			parseFailures: snap.ParseFailures,
			decodeErrors:  snap.DecodeErrors,
		}
		agg = prev.agg
	} else {
		if prev != nil {
			prev.supersede()
		}
		agg = e.newAggregator(pred)
	}

	j := e.launch(pred, seed, agg)
	e.mu.Unlock()
	return j
}

// Restart cancels the current job and reruns its predicate from line zero
// with fresh state. Called after a truncation rebuild, when prior line
// numbers no longer mean anything.
func (e *Engine) Restart() *Job {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.cur
	if prev == nil {
		return nil
	}
	prev.supersede()

	j := e.launch(prev.pred, resumePoint{}, e.newAggregator(prev.pred))
	return j
}

// Current returns the most recently started job, or nil.
func (e *Engine) Current() *Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cur
}

// Close cancels any in-flight job.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur != nil {
		e.cur.Cancel()
	}
}

func (e *Engine) newAggregator(pred Predicate) *aggregate.Aggregator {
	if q := pred.Query(); q != nil {
		return aggregate.New(q)
	}
	return nil
}

// launch creates the job and starts its worker. Caller holds e.mu.
func (e *Engine) launch(pred Predicate, seed resumePoint, agg *aggregate.Aggregator) *Job {
	ctx, cancel := context.WithCancel(context.Background())
	j := newJob(pred, cancel, seed)
	j.agg = agg
	e.cur = j
	go e.runScan(ctx, j)
	return j
}

func (e *Engine) runScan(ctx context.Context, j *Job) {
	if !j.transition(Running) {
		return
	}

	start := time.Now()
	e.log.Debug("filter job started",
		"job", j.Name(),
		"predicate", j.pred.String(),
		"from", j.resume.cursor)

	var bm *roaring.Bitmap
	covered := 0
	if sev, ok := j.pred.Shortcut(); ok {
		bm, covered = e.src.SeverityBitmap(sev)
	}

	cur := j.resume.cursor
	matched := append([]int(nil), j.resume.matched...)
	parseFailures := j.resume.parseFailures
	decodeErrors := j.resume.decodeErrors

	limiter := rate.NewLimiter(rate.Every(e.progressEvery), 1)
	snapshot := func() Result {
		r := Result{
			Matched:       append([]int(nil), matched...),
			Scanned:       cur,
			ParseFailures: parseFailures,
			DecodeErrors:  decodeErrors,
		}
		if j.agg != nil {
			r.Agg = j.agg.Snapshot()
		}
		return r
	}

	for {
		// Re-reading the source length here is what lets a running job
		// pick up lines appended since it started.
		end := e.src.Len()
		if cur >= end {
			if j.finish(Done, snapshot()) {
				e.log.Debug("filter job done",
					"job", j.Name(),
					"scanned", cur,
					"matched", len(matched),
					"elapsed", time.Since(start))
			}
			return
		}

		batchEnd := min(cur+e.batchSize, end)
		for ; cur < batchEnd; cur++ {
			if bm != nil && cur < covered && !bm.Contains(uint32(cur)) {
				continue
			}

			line, err := e.src.ReadLine(cur)
			if err != nil {
				r := snapshot()
				r.Err = err
				if j.finish(Failed, r) {
					e.log.Warn("filter job failed",
						"job", j.Name(), "line", cur, "error", err)
				}
				return
			}

			if !utf8.Valid(line) {
				decodeErrors++
				line = bytes.ToValidUTF8(line, []byte("�"))
			}

			out := j.pred.Eval(line)
			if out.ParseFailed {
				parseFailures++
			}
			if out.Matched {
				matched = append(matched, cur)
			}
			// Parse failures still land in the aggregation, under the
			// parse-error placeholder group.
			if j.agg != nil && (out.Matched || out.ParseFailed) {
				j.agg.Add(out)
			}
		}

		if ctx.Err() != nil {
			e.log.Debug("filter job stopped",
				"job", j.Name(), "state", j.State().String(), "at", cur)
			return
		}
		if limiter.Allow() {
			j.publish(snapshot())
		}
	}
}
