// Package logging wires structured logging through the module.
//
// Loggers are dependency-injected: main builds the base handler and hands
// a logger down, each component scopes it once at construction with a
// component attribute, and nothing touches slog's global state. Hot paths
// (line scanning, tokenization, bitmap updates) never log; lifecycle
// boundaries do.
package logging

import (
	"context"
	"log/slog"
)

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// Default returns logger if non-nil, otherwise a discard logger. Use it to
// make logger parameters optional.
func Default(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return Discard()
}

// Component scopes a possibly-nil logger to one named component. The
// component attribute is what ComponentFilterHandler keys its per-component
// levels on.
func Component(logger *slog.Logger, name string) *slog.Logger {
	return Default(logger).With("component", name)
}
