package logging

import (
	"context"
	"log/slog"
	"sync"
)

// componentKey is the attribute components attach with logger.With at
// construction time.
const componentKey = "component"

// ComponentFilterHandler filters records by per-component log level. The
// default level applies to records whose component has no override and to
// records without a component attribute. Levels can be changed at runtime;
// all clones created by WithAttrs and WithGroup share the same level table.
type ComponentFilterHandler struct {
	next     slog.Handler
	levels   *levelTable
	preAttrs []slog.Attr
}

type levelTable struct {
	def slog.Leveler

	mu        sync.RWMutex
	overrides map[string]slog.Level
}

// NewComponentFilterHandler wraps next with component-level filtering.
// defaultLevel may be a plain slog.Level or something dynamic like a
// slog.LevelVar.
func NewComponentFilterHandler(next slog.Handler, defaultLevel slog.Leveler) *ComponentFilterHandler {
	return &ComponentFilterHandler{
		next: next,
		levels: &levelTable{
			def:       defaultLevel,
			overrides: make(map[string]slog.Level),
		},
	}
}

// SetLevel overrides the level for one component.
func (h *ComponentFilterHandler) SetLevel(component string, level slog.Level) {
	h.levels.mu.Lock()
	h.levels.overrides[component] = level
	h.levels.mu.Unlock()
}

// ClearLevel removes a component's override, restoring the default level.
func (h *ComponentFilterHandler) ClearLevel(component string) {
	h.levels.mu.Lock()
	delete(h.levels.overrides, component)
	h.levels.mu.Unlock()
}

// Level returns the effective level for a component.
func (h *ComponentFilterHandler) Level(component string) slog.Level {
	h.levels.mu.RLock()
	defer h.levels.mu.RUnlock()
	if l, ok := h.levels.overrides[component]; ok {
		return l
	}
	return h.levels.def.Level()
}

// DefaultLevel returns the level used for components without an override.
func (h *ComponentFilterHandler) DefaultLevel() slog.Level {
	return h.levels.def.Level()
}

// Enabled always reports true; the component is only known at Handle time.
func (h *ComponentFilterHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

// Handle drops the record when it is below its component's level.
func (h *ComponentFilterHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level < h.Level(h.component(r)) {
		return nil
	}
	if h.next == nil {
		return nil
	}
	return h.next.Handle(ctx, r)
}

// component finds the component attribute, preferring the record's own
// attributes over those attached earlier with WithAttrs.
func (h *ComponentFilterHandler) component(r slog.Record) string {
	var comp string
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == componentKey {
			if s, ok := a.Value.Any().(string); ok {
				comp = s
				return false
			}
		}
		return true
	})
	if comp != "" {
		return comp
	}
	for _, a := range h.preAttrs {
		if a.Key == componentKey {
			if s, ok := a.Value.Any().(string); ok {
				return s
			}
		}
	}
	return ""
}

func (h *ComponentFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.next
	if next != nil {
		next = next.WithAttrs(attrs)
	}
	merged := make([]slog.Attr, len(h.preAttrs)+len(attrs))
	copy(merged, h.preAttrs)
	copy(merged[len(h.preAttrs):], attrs)
	return &ComponentFilterHandler{next: next, levels: h.levels, preAttrs: merged}
}

func (h *ComponentFilterHandler) WithGroup(name string) slog.Handler {
	next := h.next
	if next != nil {
		next = next.WithGroup(name)
	}
	return &ComponentFilterHandler{next: next, levels: h.levels, preAttrs: h.preAttrs}
}
