package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lazytail/internal/filter"
	"lazytail/internal/source"
)

func newFollowCmd(logger *slog.Logger) *cobra.Command {
	var (
		expr       string
		mode       string
		ignoreCase bool
		fromStart  bool
		poll       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "follow <file|glob>...",
		Short: "Watch files and stream new lines as they are appended",
		Long: `Watch files and stream new lines as they are appended.

With --filter only matching lines are printed; the filter re-runs
incrementally as the file grows, so each line is scanned once. On
truncation or rotation the file is re-indexed from the start.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				pred    filter.Predicate
				hasPred bool
			)
			if expr != "" {
				p, err := buildPredicate(mode, expr, ignoreCase)
				if err != nil {
					return err
				}
				pred, hasPred = p, true
			}

			paths, err := expandGlobs(args)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			var mu sync.Mutex // serializes output across files
			g, ctx := errgroup.WithContext(ctx)
			for _, path := range paths {
				path := path
				g.Go(func() error {
					return followFile(ctx, logger, cmd, &mu, path, pred, hasPred, fromStart, poll, len(paths) > 1)
				})
			}
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&expr, "filter", "f", "", "only print lines matching this expression")
	cmd.Flags().StringVar(&mode, "mode", "query", "expression mode: query, plain, or regex")
	cmd.Flags().BoolVarP(&ignoreCase, "ignore-case", "i", false, "case-insensitive matching (plain and regex modes)")
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "print existing content before following")
	cmd.Flags().DurationVar(&poll, "poll", time.Second, "fallback poll interval")
	return cmd
}

// matchTracker remembers how many matches of the current scan chain were
// already emitted. A job that neither is nor resumes from the previous one
// started over at line zero, so all of its matches are new; counting alone
// cannot tell that apart from growth when the rewritten file matches at
// least as often as the old one.
type matchTracker struct {
	jobID   string
	printed int
}

// fresh returns the not-yet-emitted tail of matched and advances the
// tracker.
func (t *matchTracker) fresh(id, resumedFrom string, matched []int) []int {
	if id != t.jobID && resumedFrom != t.jobID {
		t.printed = 0
	}
	t.jobID = id
	if t.printed > len(matched) {
		t.printed = len(matched)
	}
	out := matched[t.printed:]
	t.printed = len(matched)
	return out
}

// followFile streams one file until ctx is cancelled.
func followFile(ctx context.Context, logger *slog.Logger, cmd *cobra.Command, mu *sync.Mutex, path string, pred filter.Predicate, hasPred, fromStart bool, poll time.Duration, prefix bool) error {
	src, err := source.Open(source.Config{
		Path:         path,
		PollInterval: poll,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	emit := func(n int) error {
		raw, err := src.ReadLine(n)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		if prefix {
			fmt.Fprintf(cmd.OutOrStdout(), "%s:%s\n", path, raw)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", raw)
		}
		return nil
	}

	// cursor is the next line to consider; the tracker remembers which
	// matches were already emitted so an incremental re-filter never
	// repeats them.
	cursor := src.Len()
	var tracker matchTracker
	if fromStart {
		cursor = 0
	}

	drain := func() error {
		if hasPred {
			job := src.Filter(pred)
			r := awaitJob(ctx, job)
			if r.Err != nil {
				return fmt.Errorf("filtering %s: %w", path, r.Err)
			}
			for _, n := range tracker.fresh(job.ID(), job.ResumedFrom(), r.Matched) {
				if n < cursor {
					continue
				}
				if err := emit(n); err != nil {
					return err
				}
			}
			return nil
		}

		end := src.Len()
		if end < cursor {
			cursor = 0
		}
		for ; cursor < end; cursor++ {
			if err := emit(cursor); err != nil {
				return err
			}
		}
		return nil
	}

	if fromStart || hasPred {
		if err := drain(); err != nil {
			return err
		}
		if !fromStart {
			cursor = 0 // anything matched from here on is new
		}
	}

	watchCtx, stop := context.WithCancel(ctx)
	defer stop()
	watchDone := make(chan error, 1)
	go func() { watchDone <- src.Watch(watchCtx) }()

	// Arm the change channel before draining, so an append landing between
	// the two is never missed.
	for {
		changed := src.Changed()
		if err := drain(); err != nil {
			return err
		}
		select {
		case err := <-watchDone:
			return err
		case <-changed:
		}
	}
}
