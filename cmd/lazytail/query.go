package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lazytail/internal/aggregate"
	"lazytail/internal/filter"
	"lazytail/internal/source"
)

type fileResult struct {
	path   string
	src    *source.Source
	result filter.Result
}

func newQueryCmd(logger *slog.Logger) *cobra.Command {
	var (
		mode       string
		ignoreCase bool
		counts     bool
		cpDir      string
		maxJobs    int
		batchSize  int
	)

	cmd := &cobra.Command{
		Use:   "query <expression> <file|glob>...",
		Short: "Scan files and print the lines matching an expression",
		Long: `Scan files and print the lines matching an expression.

The default mode parses the expression as a filter pipeline:

    lazytail query 'json | level == "error" | count by (service)' app.log
    lazytail query 'logfmt | status >= "500" | msg contains "timeout"' '**/*.log'

Modes plain and regex match the raw line text instead.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pred, err := buildPredicate(mode, args[0], ignoreCase)
			if err != nil {
				return err
			}
			paths, err := expandGlobs(args[1:])
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			results, err := scanFiles(ctx, logger, paths, pred, resolveCheckpointDir(logger, cpDir), maxJobs, batchSize)
			if err != nil {
				return err
			}

			prefix := len(results) > 1
			for _, fr := range results {
				if err := printResult(cmd, fr, prefix, counts); err != nil {
					return err
				}
				_ = fr.src.Close()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "query", "expression mode: query, plain, or regex")
	cmd.Flags().BoolVarP(&ignoreCase, "ignore-case", "i", false, "case-insensitive matching (plain and regex modes)")
	cmd.Flags().BoolVar(&counts, "counts", false, "print scan statistics after the matches")
	cmd.Flags().StringVar(&cpDir, "checkpoint-dir", "auto", "where to persist indexes for repeat scans: auto, none, or a path")
	cmd.Flags().IntVar(&maxJobs, "max-jobs", 4, "files scanned concurrently")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "lines per scan batch (0 uses the engine default)")
	return cmd
}

// scanFiles indexes and filters every path concurrently, returning results
// ordered by path.
func scanFiles(ctx context.Context, logger *slog.Logger, paths []string, pred filter.Predicate, cpDir string, maxJobs, batchSize int) ([]fileResult, error) {
	var filterOpts []filter.Option
	if batchSize > 0 {
		filterOpts = append(filterOpts, filter.WithBatchSize(batchSize))
	}
	var mu sync.Mutex
	var results []fileResult

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(maxJobs, 1))
	for _, path := range paths {
		path := path
		g.Go(func() error {
			src, err := source.Open(source.Config{
				Path:           path,
				CheckpointPath: checkpointPath(cpDir, path),
				Logger:         logger,
				FilterOptions:  filterOpts,
			})
			if err != nil {
				return err
			}

			r := awaitJob(ctx, src.Filter(pred))
			if r.Err != nil {
				_ = src.Close()
				return fmt.Errorf("scanning %s: %w", path, r.Err)
			}

			mu.Lock()
			results = append(results, fileResult{path: path, src: src, result: r})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, fr := range results {
			_ = fr.src.Close()
		}
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].path < results[j].path })
	return results, nil
}

// awaitJob blocks until the job terminates or ctx is cancelled.
func awaitJob(ctx context.Context, j *filter.Job) filter.Result {
	for {
		select {
		case <-ctx.Done():
			j.Cancel()
			return j.Snapshot()
		case r := <-j.Updates():
			if r.State.Terminal() {
				return r
			}
		}
	}
}

func printResult(cmd *cobra.Command, fr fileResult, prefix, counts bool) error {
	out := cmd.OutOrStdout()

	if fr.result.Agg != nil {
		if prefix {
			fmt.Fprintf(out, "%s:\n", fr.path)
		}
		printAggregation(out, fr.result.Agg)
	} else {
		for _, n := range fr.result.Matched {
			raw, err := fr.src.ReadLine(n)
			if err != nil {
				return fmt.Errorf("reading %s line %d: %w", fr.path, n, err)
			}
			if prefix {
				fmt.Fprintf(out, "%s:%s\n", fr.path, raw)
			} else {
				fmt.Fprintf(out, "%s\n", raw)
			}
		}
	}

	if counts {
		r := fr.result
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d/%d matched, %d parse failures, %d decode errors\n",
			fr.path, len(r.Matched), r.Scanned, r.ParseFailures, r.DecodeErrors)
	}
	return nil
}

func printAggregation(out io.Writer, agg *aggregate.Result) {
	w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	fmt.Fprintf(w, "COUNT\t%s\n", strings.ToUpper(strings.Join(agg.Fields, "\t")))
	for _, g := range agg.Groups {
		fmt.Fprintf(w, "%d\t%s\n", g.Count, strings.Join(g.Values, "\t"))
	}
	_ = w.Flush()
	if agg.Evicted {
		fmt.Fprintln(out, "(group limit reached; low counts are approximate)")
	}
}
