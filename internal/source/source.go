// Package source binds the per-file indexes together: the line-offset index,
// the severity index derived from it, and the filter engine that scans
// through both. A Source is the unit the rest of the program talks to.
package source

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"

	"lazytail/internal/checkpoint"
	"lazytail/internal/colindex"
	"lazytail/internal/filter"
	"lazytail/internal/lineindex"
	"lazytail/internal/logging"
	"lazytail/internal/notify"
)

// defaultPollInterval is the watch fallback poll cadence, for filesystems
// where fsnotify events are unreliable or absent.
const defaultPollInterval = time.Second

// Line is one indexed line with its recorded severity and byte range.
type Line struct {
	Number   int
	Text     string
	Severity colindex.Severity
	Range    lineindex.Range
}

// Config configures a Source.
type Config struct {
	// Path of the log file to index.
	Path string

	// CheckpointPath, when set, persists the indexes across restarts.
	CheckpointPath string

	// PollInterval for the watch loop. Defaults to one second.
	PollInterval time.Duration

	// Logger for structured logging. If nil, logging is disabled.
	Logger *slog.Logger

	// FilterOptions are passed to the filter engine.
	FilterOptions []filter.Option
}

// Source is one indexed log file. All methods are safe for concurrent use.
type Source struct {
	id     string
	path   string
	cpPath string
	poll   time.Duration
	log    *slog.Logger

	lines   *lineindex.Index
	sevs    *colindex.Index
	eng     *filter.Engine
	changed *notify.Signal

	// syncMu serializes Sync and rebuild so the two indexes only ever
	// change in lockstep.
	syncMu sync.Mutex
}

// Open indexes the file at cfg.Path. When a valid checkpoint exists, both
// indexes are seeded from it and only the appended remainder is scanned;
// otherwise the whole file is scanned and a stale checkpoint is ignored.
func Open(cfg Config) (*Source, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	s := &Source{
		id:      uuid.NewString(),
		path:    cfg.Path,
		cpPath:  cfg.CheckpointPath,
		poll:    cfg.PollInterval,
		log:     logging.Component(cfg.Logger, "source").With("path", cfg.Path),
		sevs:    colindex.New(),
		changed: notify.NewSignal(),
	}

	onLine := lineindex.WithOnLine(func(n int, line []byte) {
		s.sevs.Add(uint32(n), line)
	})

	cp := s.loadCheckpoint()
	var (
		ix  *lineindex.Index
		err error
	)
	if cp != nil {
		for i, sev := range cp.Severities {
			s.sevs.Update(uint32(i), colindex.Severity(sev))
		}
		ix, err = lineindex.Restore(cfg.Path, cp.Offsets, cp.Scanned, onLine)
		if err != nil {
			// Seeding failed under our feet; fall back to a clean scan.
			s.log.Warn("checkpoint restore failed, rescanning", "error", err)
			s.sevs.Reset()
			ix, err = lineindex.Open(cfg.Path, onLine)
		}
	} else {
		ix, err = lineindex.Open(cfg.Path, onLine)
	}
	if err != nil {
		return nil, fmt.Errorf("indexing %s: %w", cfg.Path, err)
	}

	s.lines = ix
	s.eng = filter.NewEngine(s, append([]filter.Option{filter.WithLogger(cfg.Logger)}, cfg.FilterOptions...)...)
	s.log.Debug("source opened", "id", s.id, "lines", ix.Len(), "resumed", cp != nil)
	return s, nil
}

func (s *Source) loadCheckpoint() *checkpoint.Checkpoint {
	cp, err := checkpoint.Load(s.cpPath)
	if err != nil {
		s.log.Warn("failed to load checkpoint, starting fresh", "error", err)
		return nil
	}
	if cp == nil {
		return nil
	}
	if err := cp.Validate(s.path); err != nil {
		s.log.Info("discarding stale checkpoint", "reason", err)
		return nil
	}
	return cp
}

// ID returns the source's unique identifier.
func (s *Source) ID() string { return s.id }

// Path returns the indexed file's path.
func (s *Source) Path() string { return s.path }

// Len returns the number of indexed lines.
func (s *Source) Len() int { return s.lines.Len() }

// ReadLine returns the raw content of line n.
func (s *Source) ReadLine(n int) ([]byte, error) {
	return s.lines.ReadLine(n)
}

// Line returns line n with its severity and byte range in the file.
func (s *Source) Line(n int) (Line, error) {
	raw, err := s.lines.ReadLine(n)
	if err != nil {
		return Line{}, err
	}
	rng, err := s.lines.LineAt(n)
	if err != nil {
		return Line{}, err
	}
	return Line{
		Number:   n,
		Text:     string(raw),
		Severity: s.sevs.SeverityAt(uint32(n)),
		Range:    rng,
	}, nil
}

// Lines returns the half-open range [from, to) of lines.
func (s *Source) Lines(from, to int) ([]Line, error) {
	if from < 0 || to < from {
		return nil, fmt.Errorf("%w: [%d, %d)", lineindex.ErrOutOfRange, from, to)
	}
	out := make([]Line, 0, to-from)
	for n := from; n < to; n++ {
		l, err := s.Line(n)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// Histogram returns per-severity line counts.
func (s *Source) Histogram() map[colindex.Severity]uint64 {
	return s.sevs.Histogram()
}

// SeverityBitmap returns the line-number set recorded for one severity and
// the number of lines the severity index covers.
func (s *Source) SeverityBitmap(sev colindex.Severity) (*roaring.Bitmap, int) {
	return s.sevs.Bitmap(sev), int(s.sevs.Len())
}

// Filter starts (or resumes) a background filter job for the predicate.
func (s *Source) Filter(pred filter.Predicate) *filter.Job {
	return s.eng.Start(pred)
}

// FilterJob returns the most recently started filter job, or nil.
func (s *Source) FilterJob() *filter.Job {
	return s.eng.Current()
}

// Changed returns a channel that is closed the next time Sync changes the
// index. Callers re-arm by calling Changed again after each wakeup.
func (s *Source) Changed() <-chan struct{} {
	return s.changed.C()
}

// Sync brings the indexes up to date with the file. Appends are scanned
// incrementally; a truncation or file replacement rebuilds both indexes and
// restarts any active filter from line zero. Waiters on Changed are woken
// when the index changed.
func (s *Source) Sync() (lineindex.Outcome, error) {
	out, err := s.sync()
	if err == nil && (out.Truncated || out.NewLines > 0) {
		s.changed.Notify()
	}
	return out, err
}

func (s *Source) sync() (lineindex.Outcome, error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	out, err := s.lines.Sync()
	if err != nil {
		return out, err
	}
	if !out.Truncated {
		return out, nil
	}

	s.log.Info("file truncated or replaced, rebuilding index")
	if j := s.eng.Current(); j != nil {
		j.Cancel()
	}
	s.sevs.Reset()
	if err := s.lines.Rebuild(); err != nil {
		return out, fmt.Errorf("rebuilding %s: %w", s.path, err)
	}
	s.eng.Restart()
	return out, nil
}

// Checkpoint persists the current index state, if a checkpoint path was
// configured.
func (s *Source) Checkpoint() error {
	if s.cpPath == "" {
		return nil
	}
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	hash, n := s.lines.HeadHash()
	cp := &checkpoint.Checkpoint{
		HeadHash:   hash,
		HeadLen:    n,
		Scanned:    s.lines.Scanned(),
		Offsets:    s.lines.Offsets(),
		Severities: s.sevs.SeverityRun(),
	}
	return checkpoint.Save(s.cpPath, cp)
}

// Close stops any filter job, saves a checkpoint, and releases the file.
func (s *Source) Close() error {
	s.eng.Close()
	if err := s.Checkpoint(); err != nil {
		s.log.Warn("failed to save checkpoint", "error", err)
	}
	return s.lines.Close()
}
