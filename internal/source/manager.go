package source

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"lazytail/internal/callgroup"
	"lazytail/internal/logging"
)

// ErrUnknownSource is returned for lookups of ids no open source has.
var ErrUnknownSource = errors.New("unknown source")

// Manager tracks open sources. Each file is indexed at most once; opening
// the same path twice returns the existing source.
type Manager struct {
	log *slog.Logger

	// opens collapses concurrent Open calls for the same path into one
	// index build.
	opens callgroup.Group[string]

	mu     sync.RWMutex
	byID   map[string]*Source
	byPath map[string]*Source
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		log:    logging.Component(logger, "source-manager"),
		byID:   make(map[string]*Source),
		byPath: make(map[string]*Source),
	}
}

// Open indexes cfg.Path and registers the source. If the path is already
// open its existing source is returned unchanged.
func (m *Manager) Open(cfg Config) (*Source, error) {
	err := m.opens.Do(cfg.Path, func() error {
		m.mu.RLock()
		existing := m.byPath[cfg.Path]
		m.mu.RUnlock()
		if existing != nil {
			return nil
		}

		src, err := Open(cfg)
		if err != nil {
			return err
		}

		m.mu.Lock()
		m.byID[src.ID()] = src
		m.byPath[cfg.Path] = src
		m.mu.Unlock()

		m.log.Debug("source registered", "id", src.ID(), "path", cfg.Path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.byPath[cfg.Path]
	if src == nil {
		// Closed between the build and this lookup; have the caller retry.
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, cfg.Path)
	}
	return src, nil
}

// Get returns the source with the given id.
func (m *Manager) Get(id string) (*Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}
	return src, nil
}

// List returns all open sources, ordered by path.
func (m *Manager) List() []*Source {
	m.mu.RLock()
	out := make([]*Source, 0, len(m.byID))
	for _, src := range m.byID {
		out = append(out, src)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Path() < out[j].Path() })
	return out
}

// Close closes and deregisters the source with the given id.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	src, ok := m.byID[id]
	if ok {
		delete(m.byID, id)
		delete(m.byPath, src.Path())
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}
	return src.Close()
}

// CloseAll closes every open source, joining any errors.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	sources := make([]*Source, 0, len(m.byID))
	for _, src := range m.byID {
		sources = append(sources, src)
	}
	m.byID = make(map[string]*Source)
	m.byPath = make(map[string]*Source)
	m.mu.Unlock()

	var errs []error
	for _, src := range sources {
		if err := src.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", src.Path(), err))
		}
	}
	return errors.Join(errs...)
}
