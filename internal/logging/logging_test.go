package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestDiscard(t *testing.T) {
	logger := Discard()
	if logger == nil {
		t.Fatal("Discard() returned nil")
	}
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("discard logger should report disabled at every level")
	}
	logger.Info("dropped")
}

func TestDefault(t *testing.T) {
	if logger := Default(nil); logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("Default(nil) should return a discard logger")
	}

	var buf bytes.Buffer
	original := slog.New(slog.NewTextHandler(&buf, nil))
	if Default(original) != original {
		t.Error("Default should pass a non-nil logger through")
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	Component(base, "source").Info("opened")
	if got := buf.String(); !strings.Contains(got, "component=source") {
		t.Errorf("missing component attribute in %q", got)
	}

	// A nil logger yields a scoped discard logger, not a panic.
	Component(nil, "source").Info("dropped")
}

// captureHandler records everything it is handed. WithAttrs clones share
// the record storage so counts survive scoping.
type captureHandler struct {
	mu      *sync.Mutex
	records *[]slog.Record
	attrs   []slog.Attr
}

func newCaptureHandler() *captureHandler {
	var mu sync.Mutex
	var records []slog.Record
	return &captureHandler{mu: &mu, records: &records}
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	*h.records = append(*h.records, r)
	return nil
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &captureHandler{mu: h.mu, records: h.records, attrs: merged}
}

func (h *captureHandler) WithGroup(string) slog.Handler { return h }

func (h *captureHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(*h.records)
}

func TestComponentFilterDefaultLevel(t *testing.T) {
	capture := newCaptureHandler()
	filter := NewComponentFilterHandler(capture, slog.LevelInfo)
	logger := slog.New(filter)

	logger.Info("kept", "component", "source")
	logger.Debug("dropped", "component", "source")
	logger.Warn("kept", "component", "source")

	if got := capture.count(); got != 2 {
		t.Errorf("captured %d records, want 2", got)
	}
}

func TestComponentFilterOverride(t *testing.T) {
	capture := newCaptureHandler()
	filter := NewComponentFilterHandler(capture, slog.LevelInfo)
	logger := slog.New(filter)

	logger.Debug("dropped", "component", "filter-engine")
	if got := capture.count(); got != 0 {
		t.Fatalf("captured %d records before override, want 0", got)
	}

	filter.SetLevel("filter-engine", slog.LevelDebug)
	logger.Debug("kept", "component", "filter-engine")
	logger.Debug("dropped", "component", "source")
	if got := capture.count(); got != 1 {
		t.Errorf("captured %d records, want 1", got)
	}

	filter.ClearLevel("filter-engine")
	logger.Debug("dropped", "component", "filter-engine")
	if got := capture.count(); got != 1 {
		t.Errorf("captured %d records after clear, want 1", got)
	}
}

func TestComponentFilterLevelLookup(t *testing.T) {
	filter := NewComponentFilterHandler(nil, slog.LevelInfo)

	if got := filter.Level("source"); got != slog.LevelInfo {
		t.Errorf("Level(source) = %v, want INFO", got)
	}
	filter.SetLevel("source", slog.LevelDebug)
	if got := filter.Level("source"); got != slog.LevelDebug {
		t.Errorf("Level(source) = %v, want DEBUG", got)
	}
	if got := filter.DefaultLevel(); got != slog.LevelInfo {
		t.Errorf("DefaultLevel = %v, want INFO", got)
	}
	filter.ClearLevel("unseen") // no-op, must not panic
}

func TestComponentFilterScopedLogger(t *testing.T) {
	capture := newCaptureHandler()
	filter := NewComponentFilterHandler(capture, slog.LevelInfo)

	// Component is attached once via With, as components do at construction.
	logger := slog.New(filter).With("component", "source")

	filter.SetLevel("source", slog.LevelDebug)
	logger.Debug("kept")
	if got := capture.count(); got != 1 {
		t.Errorf("captured %d records, want 1", got)
	}
}

func TestComponentFilterNoComponent(t *testing.T) {
	capture := newCaptureHandler()
	filter := NewComponentFilterHandler(capture, slog.LevelInfo)
	logger := slog.New(filter)

	logger.Info("kept")
	logger.Debug("dropped")
	if got := capture.count(); got != 1 {
		t.Errorf("captured %d records, want 1", got)
	}
}

func TestComponentFilterWithGroup(t *testing.T) {
	capture := newCaptureHandler()
	filter := NewComponentFilterHandler(capture, slog.LevelInfo)
	logger := slog.New(filter.WithGroup("scan"))

	logger.Info("kept", "component", "source")
	logger.Debug("dropped", "component", "source")
	if got := capture.count(); got != 1 {
		t.Errorf("captured %d records, want 1", got)
	}
}

func TestComponentFilterConcurrent(t *testing.T) {
	capture := newCaptureHandler()
	filter := NewComponentFilterHandler(capture, slog.LevelInfo)
	logger := slog.New(filter)

	const goroutines = 10
	const iterations = 100

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				logger.Info("msg", "component", "source")
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				filter.SetLevel("source", slog.LevelDebug)
				filter.ClearLevel("source")
			}
		}()
	}
	wg.Wait()

	if got := capture.count(); got != goroutines*iterations {
		t.Errorf("captured %d records, want %d", got, goroutines*iterations)
	}
}

func TestComponentFilterEndToEnd(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	filter := NewComponentFilterHandler(base, slog.LevelInfo)
	logger := slog.New(filter)

	srcLogger := Component(logger, "source")
	engLogger := Component(logger, "filter-engine")

	srcLogger.Debug("source quiet")
	engLogger.Debug("engine quiet")
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}

	filter.SetLevel("source", slog.LevelDebug)
	srcLogger.Debug("source loud")
	engLogger.Debug("engine quiet still")

	out := buf.String()
	if !strings.Contains(out, "source loud") {
		t.Errorf("missing source debug line in %q", out)
	}
	if strings.Contains(out, "engine quiet") {
		t.Errorf("unexpected engine debug line in %q", out)
	}
}
