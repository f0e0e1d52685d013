// Command lazytail indexes large, growing log files and filters them with
// plain text, regular expressions, or a small pipeline query language.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
package main

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"lazytail/internal/filter"
	"lazytail/internal/home"
	"lazytail/internal/logging"
)

var version = "dev"

func main() {
	// The base handler allows everything; level filtering happens in the
	// component filter, whose default level tracks the --log-level flag.
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelWarn)
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(logging.NewComponentFilterHandler(baseHandler, lvl))

	var logLevel string
	rootCmd := &cobra.Command{
		Use:           "lazytail",
		Short:         "Indexed viewer and filter for growing log files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var l slog.Level
			if err := l.UnmarshalText([]byte(logLevel)); err != nil {
				return fmt.Errorf("invalid log level %q", logLevel)
			}
			lvl.Set(l)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(
		newQueryCmd(logger),
		newHistCmd(logger),
		newFollowCmd(logger),
		versionCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "lazytail:", err)
		os.Exit(1)
	}
}

// expandGlobs resolves each pattern with doublestar semantics (** crosses
// directories) and returns the union, sorted and deduplicated.
func expandGlobs(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, pat := range patterns {
		matches, err := doublestar.FilepathGlob(pat)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pat, err)
		}
		if len(matches) == 0 {
			// A literal path may name a file the shell never expanded.
			if _, statErr := os.Stat(pat); statErr == nil {
				matches = []string{pat}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no files match %v", patterns)
	}
	sort.Strings(out)
	return out, nil
}

// resolveCheckpointDir maps the --checkpoint-dir flag to a directory.
// "auto" uses the platform cache directory, "none" disables checkpoints,
// anything else is created and used as-is.
func resolveCheckpointDir(logger *slog.Logger, flag string) string {
	logger = logging.Default(logger)
	switch flag {
	case "", "none":
		return ""
	case "auto":
		d, err := home.Default()
		if err == nil {
			err = d.EnsureExists()
		}
		if err != nil {
			logger.Warn("checkpoints disabled", "error", err)
			return ""
		}
		return d.CheckpointsDir()
	default:
		if err := os.MkdirAll(flag, 0o750); err != nil {
			logger.Warn("checkpoints disabled", "dir", flag, "error", err)
			return ""
		}
		return flag
	}
}

// checkpointPath maps a log file to its checkpoint file inside dir.
func checkpointPath(dir, logPath string) string {
	if dir == "" {
		return ""
	}
	abs, err := filepath.Abs(logPath)
	if err != nil {
		abs = logPath
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(abs))
	return filepath.Join(dir, fmt.Sprintf("%s-%x.cp", filepath.Base(logPath), h.Sum64()))
}

// buildPredicate turns the expression into a predicate per mode.
func buildPredicate(mode, expr string, ignoreCase bool) (filter.Predicate, error) {
	switch mode {
	case "query":
		return filter.ParseQuery(expr)
	case "plain":
		return filter.Plain(expr, !ignoreCase), nil
	case "regex":
		return filter.Regex(expr, !ignoreCase)
	default:
		return filter.Predicate{}, fmt.Errorf("unknown mode %q (want query, plain, or regex)", mode)
	}
}
