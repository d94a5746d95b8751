package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/horizon/internal/engine"
	"github.com/roach88/horizon/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Store  StoreOptions
	Depth  int    // inline continuation depth, 0 for the engine default
	Jobs   int    // scenarios run concurrently
	Filter string // scenario filter (glob pattern)

	Metrics bool // print engine counters
	Trace   bool // print each scenario's trace
	Update  bool // regenerate golden files
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name    string   `json:"name"`
	File    string   `json:"file"`
	Pass    bool     `json:"pass"`
	Errors  []string `json:"errors,omitempty"`
	Trace   []string `json:"trace,omitempty"`
	Entries int      `json:"entries"`
	Golden  string   `json:"golden,omitempty"` // "match", "updated" or "mismatch"
}

// RunResult holds the overall run result.
type RunResult struct {
	Scenarios []ScenarioResult   `json:"scenarios"`
	Passed    int                `json:"passed"`
	Failed    int                `json:"failed"`
	Total     int                `json:"total"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario-file-or-dir>",
		Short: "Run plan scenarios",
		Long: `Run scenario files against fresh plans.

Each scenario declares resources, edits a plan and checks samples and
views. When a golden file exists next to the scenario (golden/<name>.golden)
the trace must match it as well.

With --db or --kv the history is loaded before each scenario and saved
after it, so repeated runs reuse earlier results.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, unreadable store, etc.)

Examples:
  horizon run ./scenarios
  horizon run ./scenarios --filter "battery-*" --trace
  horizon run ./scenarios --db ./history.db --metrics
  horizon run ./scenarios --kv ./history.kv --jobs 4
  horizon run ./scenarios --update`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Store.Database, "db", "", "SQLite history database")
	cmd.Flags().StringVar(&opts.Store.KVDir, "kv", "", "BadgerDB history directory")
	cmd.Flags().IntVar(&opts.Depth, "depth", 0, "inline continuation depth before spawning tasks")
	cmd.Flags().IntVar(&opts.Jobs, "jobs", 1, "scenarios to run concurrently")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print engine counters")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "print scenario traces")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.MarkFlagsMutuallyExclusive("db", "kv")

	return cmd
}

func runScenarios(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	if opts.Jobs < 1 {
		return NewExitError(ExitCommandError, "--jobs must be at least 1")
	}

	files, err := findScenarios(path, opts.Filter)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
		}
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	formatter.VerboseLog("Found %d scenario file(s) in %s", len(files), path)

	be, err := openBackend(opts.Store, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, "failed to open history store", err)
	}
	if be != nil {
		defer func() {
			if closeErr := be.Close(); closeErr != nil {
				logger.Error("error closing history store", "error", closeErr)
			}
		}()
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	hopts := harness.Options{
		Logger:      logger,
		DepthBudget: opts.Depth,
		Metrics:     engine.NewMetrics(reg),
	}
	if be != nil {
		hopts.Persister = be
	}

	result := RunResult{
		Scenarios: make([]ScenarioResult, len(files)),
		Total:     len(files),
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Jobs)
	for i, file := range files {
		g.Go(func() error {
			result.Scenarios[i] = runScenario(ctx, file, hopts, opts.Update)
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return WrapExitError(ExitCommandError, "run interrupted", err)
	}

	for _, sr := range result.Scenarios {
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}
	if opts.Metrics {
		if result.Metrics, err = gatherCounters(reg); err != nil {
			return WrapExitError(ExitCommandError, "failed to gather metrics", err)
		}
	}

	return reportRun(formatter, result, opts.Trace)
}

// runScenario loads and runs one scenario file.
func runScenario(ctx context.Context, file string, hopts harness.Options, update bool) ScenarioResult {
	sr := ScenarioResult{Name: filepath.Base(file), File: file}

	sc, err := harness.LoadScenario(file)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return sr
	}
	sr.Name = sc.Name

	result, err := harness.Run(ctx, sc, hopts)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return sr
	}
	sr.Pass = result.Pass
	sr.Errors = result.Errors
	sr.Trace = result.Trace
	sr.Entries = result.Entries

	trace := harness.FormatTrace(result)
	goldenPath := goldenFilePath(file)
	if update {
		if err := writeGolden(goldenPath, trace); err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, fmt.Sprintf("failed to update golden file: %v", err))
			return sr
		}
		sr.Golden = "updated"
		return sr
	}

	golden, err := os.ReadFile(goldenPath)
	switch {
	case os.IsNotExist(err):
		// No golden file: expectations only.
	case err != nil:
		sr.Pass = false
		sr.Errors = append(sr.Errors, fmt.Sprintf("golden comparison failed: %v", err))
	case string(golden) == trace:
		sr.Golden = "match"
	default:
		sr.Pass = false
		sr.Golden = "mismatch"
		sr.Errors = append(sr.Errors, "trace does not match golden file (run with --update to regenerate)")
	}
	return sr
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

func writeGolden(path, trace string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	return os.WriteFile(path, []byte(trace), 0644)
}

// gatherCounters sums every counter in reg by metric name.
func gatherCounters(reg *prometheus.Registry) (map[string]float64, error) {
	families, err := reg.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(families))
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			out[mf.GetName()] += m.GetCounter().GetValue()
		}
	}
	return out, nil
}

// reportRun writes the run result. A run with failed scenarios exits with
// ExitFailure in both formats.
func reportRun(f *OutputFormatter, result RunResult, trace bool) error {
	if !trace {
		for i := range result.Scenarios {
			result.Scenarios[i].Trace = nil
		}
	}
	if result.Failed == 0 {
		return f.Report(result, result.writeText)
	}
	msg := fmt.Sprintf("%d scenario(s) failed", result.Failed)
	if err := f.Partial(result, "E_RUN_FAILED", msg, result.writeText); err != nil {
		return err
	}
	return NewExitError(ExitFailure, msg)
}

func (result RunResult) writeText(w io.Writer) {
	for _, sr := range result.Scenarios {
		mark := "✓"
		if !sr.Pass {
			mark = "✗"
		}
		suffix := ""
		if sr.Golden == "updated" {
			suffix = " (golden updated)"
		}
		fmt.Fprintf(w, "%s %s%s\n", mark, sr.Name, suffix)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
		for _, line := range sr.Trace {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}

	if len(result.Metrics) > 0 {
		fmt.Fprintln(w)
		for _, name := range slices.Sorted(maps.Keys(result.Metrics)) {
			fmt.Fprintf(w, "%s %g\n", name, result.Metrics[name])
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	switch {
	case result.Failed > 0:
	case result.Total == 0:
		fmt.Fprintln(w, "No scenarios found.")
	default:
		fmt.Fprintln(w, "✓ All scenarios passed")
	}
}
