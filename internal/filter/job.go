package filter

import (
	"sync"

	"github.com/google/uuid"

	petname "github.com/dustinkirkland/golang-petname"

	"lazytail/internal/aggregate"
)

// State is a filter job's lifecycle state.
type State int32

const (
	// Pending means the job was created but its worker has not started.
	Pending State = iota
	// Running means the worker is scanning.
	Running
	// Done means the scan reached the end of the indexed lines.
	Done
	// Cancelled means the caller cancelled the job.
	Cancelled
	// Superseded means a newer job for a different predicate (or a
	// truncation restart) replaced this one.
	Superseded
	// Failed means an I/O error aborted the scan; Result.Err has it.
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Cancelled:
		return "cancelled"
	case Superseded:
		return "superseded"
	case Failed:
		return "failed"
	default:
		return "?"
	}
}

// Terminal reports whether the job can make no further progress.
func (s State) Terminal() bool {
	return s == Done || s == Cancelled || s == Superseded || s == Failed
}

// Result is an immutable snapshot of a job's progress. Jobs emit a fresh
// snapshot periodically and a final one on termination.
type Result struct {
	// State the job was in when the snapshot was taken.
	State State
	// Matched holds matched line numbers in strictly increasing file order.
	Matched []int
	// Scanned is the number of lines the scan has moved past, including
	// lines skipped by a bitmap shortcut.
	Scanned int
	// ParseFailures counts lines a structured query format could not parse.
	ParseFailures int
	// DecodeErrors counts lines containing invalid UTF-8, matched against
	// their lossily substituted form.
	DecodeErrors int
	// Agg holds the aggregation result when the predicate's query ends in
	// a count by stage, nil otherwise.
	Agg *aggregate.Result
	// Err is set when State is Failed.
	Err error
}

// Job is one background filter scan. Consumers either poll Snapshot or
// receive from Updates; the worker never blocks on a slow consumer.
type Job struct {
	id   string
	name string
	pred Predicate
	agg  *aggregate.Aggregator

	cancel func()

	mu      sync.Mutex
	state   State
	latest  Result
	resume  resumePoint
	updates chan Result
}

// resumePoint carries a finished job's progress into a follow-up
// incremental job for the same predicate.
type resumePoint struct {
	from          string // ID of the job being resumed
	cursor        int
	matched       []int
	parseFailures int
	decodeErrors  int
}

func newJob(pred Predicate, cancel func(), seed resumePoint) *Job {
	j := &Job{
		id:     uuid.NewString(),
		name:   petname.Generate(2, "-"),
		pred:   pred,
		cancel: cancel,
		state:  Pending,
		// The mailbox holds only the latest snapshot; the worker drops
		// stale ones so a departed or slow consumer never blocks it.
		updates: make(chan Result, 1),
	}
	j.latest = Result{
		State:         Pending,
		Matched:       seed.matched,
		Scanned:       seed.cursor,
		ParseFailures: seed.parseFailures,
		DecodeErrors:  seed.decodeErrors,
	}
	j.resume = seed
	return j
}

// ID returns the job's unique identifier.
func (j *Job) ID() string { return j.id }

// Name returns the job's human-readable name, used in logs.
func (j *Job) Name() string { return j.name }

// Predicate returns the predicate this job evaluates.
func (j *Job) Predicate() Predicate { return j.pred }

// ResumedFrom returns the ID of the finished job this one resumed from, or
// an empty string when the scan started at line zero. Lets consumers tell
// an incremental continuation apart from a scan that started over.
func (j *Job) ResumedFrom() string { return j.resume.from }

// State returns the job's current lifecycle state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Snapshot returns the latest progress snapshot.
func (j *Job) Snapshot() Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.latest
}

// Updates returns a channel carrying progress snapshots. Only the most
// recent unconsumed snapshot is retained.
func (j *Job) Updates() <-chan Result {
	return j.updates
}

// Cancel stops the job at its next batch boundary. Safe to call more than
// once and after termination.
func (j *Job) Cancel() {
	j.transition(Cancelled)
	j.cancel()
}

// supersede marks the job replaced and stops it.
func (j *Job) supersede() {
	j.transition(Superseded)
	j.cancel()
}

// transition moves the job to a terminal or running state; once terminal
// it never changes again.
func (j *Job) transition(next State) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return false
	}
	j.state = next
	j.latest.State = next
	return true
}

// finish moves the job to a terminal state and stores its final snapshot in
// the same critical section, so an observer that sees the terminal state
// always sees the final cursor with it. Once terminal the snapshot never
// changes again. Returns false if the job already terminated.
func (j *Job) finish(next State, r Result) bool {
	j.mu.Lock()
	if j.state.Terminal() {
		j.mu.Unlock()
		return false
	}
	j.state = next
	r.State = next
	j.latest = r
	j.mu.Unlock()

	j.offer(r)
	return true
}

// publish stores an intermediate snapshot and offers it on the updates
// channel.
func (j *Job) publish(r Result) {
	j.mu.Lock()
	r.State = j.state
	j.latest = r
	j.mu.Unlock()

	j.offer(r)
}

// offer puts a snapshot in the mailbox, dropping the stale one if the
// consumer has not kept up.
func (j *Job) offer(r Result) {
	for {
		select {
		case j.updates <- r:
			return
		default:
		}
		select {
		case <-j.updates:
		default:
		}
	}
}
