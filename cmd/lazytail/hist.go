package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"lazytail/internal/colindex"
	"lazytail/internal/source"
)

// histOrder is the print order, most severe first.
var histOrder = []colindex.Severity{
	colindex.Fatal,
	colindex.Error,
	colindex.Warn,
	colindex.Info,
	colindex.Debug,
	colindex.Trace,
	colindex.Unknown,
}

func newHistCmd(logger *slog.Logger) *cobra.Command {
	var cpDir string

	cmd := &cobra.Command{
		Use:   "hist <file|glob>...",
		Short: "Print per-severity line counts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := expandGlobs(args)
			if err != nil {
				return err
			}
			dir := resolveCheckpointDir(logger, cpDir)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprint(w, "FILE\tLINES")
			for _, sev := range histOrder {
				fmt.Fprintf(w, "\t%s", sev)
			}
			fmt.Fprintln(w)

			for _, path := range paths {
				src, err := source.Open(source.Config{
					Path:           path,
					CheckpointPath: checkpointPath(dir, path),
					Logger:         logger,
				})
				if err != nil {
					return err
				}
				hist := src.Histogram()
				fmt.Fprintf(w, "%s\t%d", path, src.Len())
				for _, sev := range histOrder {
					fmt.Fprintf(w, "\t%d", hist[sev])
				}
				fmt.Fprintln(w)
				_ = src.Close()
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&cpDir, "checkpoint-dir", "auto", "where to persist indexes for repeat scans: auto, none, or a path")
	return cmd
}
