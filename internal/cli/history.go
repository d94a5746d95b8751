package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/horizon/internal/history"
	"github.com/roach88/horizon/internal/store"
	"github.com/roach88/horizon/internal/store/kv"
)

// HistoryOptions holds flags shared by history subcommands.
type HistoryOptions struct {
	*RootOptions
	Store StoreOptions
	Out   string // export destination, stdout when empty
}

// WriteTypeCount is the number of entries stored for one write type.
type WriteTypeCount struct {
	WriteType string `json:"write_type"`
	Entries   int    `json:"entries"`
}

// HistoryStats summarizes a history store.
type HistoryStats struct {
	Backend    string           `json:"backend"`
	Entries    int              `json:"entries"`
	WriteTypes []WriteTypeCount `json:"write_types"`
	Saves      []store.Save     `json:"saves,omitempty"`
}

// ExportFile is the JSON form of a snapshot: write type, then hash in hex,
// then the encoded value (base64 in JSON).
type ExportFile map[string]map[string][]byte

// NewHistoryCommand creates the history command group.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and move persisted simulation history",
		Long: `Inspect and move the simulation history saved by "horizon run --db" or
"horizon run --kv".

Examples:
  horizon history stats --db ./history.db
  horizon history export --kv ./history.kv --out history.json
  horizon history import --db ./other.db history.json`,
	}
	cmd.PersistentFlags().StringVar(&opts.Store.Database, "db", "", "SQLite history database")
	cmd.PersistentFlags().StringVar(&opts.Store.KVDir, "kv", "", "BadgerDB history directory")
	cmd.MarkFlagsMutuallyExclusive("db", "kv")

	stats := &cobra.Command{
		Use:           "stats",
		Short:         "Show entry counts per write type",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryStats(opts, cmd)
		},
	}

	export := &cobra.Command{
		Use:           "export",
		Short:         "Write the stored history as JSON",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryExport(opts, cmd)
		},
	}
	export.Flags().StringVar(&opts.Out, "out", "", "output file (default stdout)")

	imp := &cobra.Command{
		Use:           "import <file>",
		Short:         "Merge an exported history into the store",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryImport(opts, args[0], cmd)
		},
	}

	cmd.AddCommand(stats, export, imp)
	return cmd
}

// withBackend opens the selected store, runs fn and closes the store.
func withBackend(opts *HistoryOptions, cmd *cobra.Command, fn func(context.Context, backend) error) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	if !opts.Store.Enabled() {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, "one of --db or --kv is required", nil)
	}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	be, err := openBackend(opts.Store, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, "failed to open history store", err)
	}
	defer closeBackend(be, logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, be)
}

func closeBackend(be backend, logger *slog.Logger) {
	if err := be.Close(); err != nil {
		logger.Error("error closing history store", "error", err)
	}
}

func runHistoryStats(opts *HistoryOptions, cmd *cobra.Command) error {
	return withBackend(opts, cmd, func(ctx context.Context, be backend) error {
		snap, err := be.LoadHistory(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read history", err)
		}

		stats := HistoryStats{WriteTypes: []WriteTypeCount{}}
		for _, wt := range snap.WriteTypes() {
			stats.WriteTypes = append(stats.WriteTypes, WriteTypeCount{WriteType: wt, Entries: len(snap[wt])})
		}
		switch st := be.(type) {
		case *store.Store:
			stats.Backend = "sqlite"
			summary, err := st.Stats(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read history", err)
			}
			stats.Entries = summary.Entries
			if stats.Saves, err = st.Saves(ctx); err != nil {
				return WrapExitError(ExitCommandError, "failed to read history", err)
			}
		case *kv.Store:
			stats.Backend = "badger"
			if stats.Entries, err = st.Len(); err != nil {
				return WrapExitError(ExitCommandError, "failed to read history", err)
			}
		}

		return newFormatter(opts.RootOptions, cmd).Report(stats, stats.writeText)
	})
}

func (st HistoryStats) writeText(w io.Writer) {
	fmt.Fprintf(w, "backend: %s\n", st.Backend)
	fmt.Fprintf(w, "entries: %d\n", st.Entries)
	for _, wt := range st.WriteTypes {
		fmt.Fprintf(w, "  %s: %d\n", wt.WriteType, wt.Entries)
	}
	if len(st.Saves) > 0 {
		fmt.Fprintf(w, "saves: %d\n", len(st.Saves))
		for _, sv := range st.Saves {
			fmt.Fprintf(w, "  #%d %s entries=%d added=%d\n", sv.Seq, sv.ID, sv.Entries, sv.Added)
		}
	}
}

func runHistoryExport(opts *HistoryOptions, cmd *cobra.Command) error {
	return withBackend(opts, cmd, func(ctx context.Context, be backend) error {
		snap, err := be.LoadHistory(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read history", err)
		}
		data, err := json.MarshalIndent(toExport(snap), "", "  ")
		if err != nil {
			return err
		}
		data = append(data, '\n')

		if opts.Out == "" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(opts.Out, data, 0644); err != nil {
			return WrapExitError(ExitCommandError, ErrCodeWriteFailed+": failed to write export", err)
		}
		if opts.Verbose {
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d entries to %s\n", snap.Len(), opts.Out)
		}
		return nil
	})
}

func runHistoryImport(opts *HistoryOptions, path string, cmd *cobra.Command) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, ErrCodeNotFound+": failed to read export", err)
	}
	var file ExportFile
	if err := json.Unmarshal(data, &file); err != nil {
		return WrapExitError(ExitCommandError, ErrCodeLoadFailed+": invalid export", err)
	}
	snap, err := fromExport(file)
	if err != nil {
		return WrapExitError(ExitCommandError, ErrCodeLoadFailed+": invalid export", err)
	}

	return withBackend(opts, cmd, func(ctx context.Context, be backend) error {
		if err := be.SaveHistory(ctx, snap); err != nil {
			return WrapExitError(ExitCommandError, "failed to write history", err)
		}
		n := snap.Len()
		return newFormatter(opts.RootOptions, cmd).Report(map[string]int{"entries": n}, func(w io.Writer) {
			fmt.Fprintf(w, "imported %d entries\n", n)
		})
	})
}

func toExport(snap history.Snapshot) ExportFile {
	out := make(ExportFile, len(snap))
	for wt, entries := range snap {
		m := make(map[string][]byte, len(entries))
		for h, v := range entries {
			m[fmt.Sprintf("%016x", h)] = v
		}
		out[wt] = m
	}
	return out
}

func fromExport(file ExportFile) (history.Snapshot, error) {
	snap := make(history.Snapshot, len(file))
	for wt, entries := range file {
		m := make(map[uint64][]byte, len(entries))
		for hex, v := range entries {
			h, err := strconv.ParseUint(hex, 16, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: hash %q: %w", wt, hex, err)
			}
			m[h] = v
		}
		snap[wt] = m
	}
	return snap, nil
}
