package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bepsel/internal/driver"
	"github.com/roach88/bepsel/internal/selector"
	"github.com/roach88/bepsel/internal/store"
)

// CheckpointOptions holds flags shared by checkpoint subcommands.
type CheckpointOptions struct {
	*RootOptions
	Database string
	Stream   string
}

// CheckpointInfo describes the latest checkpoint of a stream.
type CheckpointInfo struct {
	ID      int64          `json:"id"`
	RunID   string         `json:"run_id"`
	Stream  string         `json:"stream"`
	Seq     int64          `json:"seq"`
	Digest  string         `json:"digest"`
	Bytes   int            `json:"bytes"`
	Kind    string         `json:"kind"`
	Version int            `json:"version"`
	Stats   selector.Stats `json:"stats"`
}

// String renders the checkpoint for text output.
func (c CheckpointInfo) String() string {
	return fmt.Sprintf("checkpoint %d (stream %s, run %s, seq %d)\n  kind: %s v%d\n  bytes: %d\n  digest: %s\n  pending %d, resolved %d, consumed %d",
		c.ID, c.Stream, c.RunID, c.Seq,
		c.Kind, c.Version, c.Bytes, c.Digest,
		c.Stats.Pending, c.Stats.Resolved, c.Stats.Consumed)
}

// RunList is the output of checkpoint runs.
type RunList struct {
	Stream string      `json:"stream"`
	Runs   []store.Run `json:"runs"`
}

// String renders the run list for text output.
func (l RunList) String() string {
	if len(l.Runs) == 0 {
		return fmt.Sprintf("No runs recorded for stream %s.", l.Stream)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d run(s) for stream %s", len(l.Runs), l.Stream)
	for _, r := range l.Runs {
		if r.ResumedFrom != 0 {
			fmt.Fprintf(&b, "\n  %s (resumed from checkpoint %d)", r.ID, r.ResumedFrom)
		} else {
			fmt.Fprintf(&b, "\n  %s", r.ID)
		}
	}
	return b.String()
}

// NewCheckpointCommand creates the checkpoint command and its subcommands.
func NewCheckpointCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckpointOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect stored checkpoints and runs",
		Long: `Inspect the checkpoints and runs a select --db invocation stored.

Examples:
  bepsel checkpoint show --db ./bepsel.db --stream ci
  bepsel checkpoint runs --db ./bepsel.db --stream ci --format json`,
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.PersistentFlags().StringVar(&opts.Stream, "stream", driver.DefaultStream, "stream name")
	_ = cmd.MarkPersistentFlagRequired("db")

	show := &cobra.Command{
		Use:           "show",
		Short:         "Show the latest checkpoint of a stream",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckpointShow(opts, cmd)
		},
	}

	runs := &cobra.Command{
		Use:           "runs",
		Short:         "List the runs recorded for a stream",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckpointRuns(opts, cmd)
		},
	}

	cmd.AddCommand(show, runs)
	return cmd
}

// withStore opens the database, calls fn and closes it.
func withStore(path string, fn func(*store.Store) error) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	return fn(st)
}

func runCheckpointShow(opts *CheckpointOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmdContext(cmd)

	var (
		cp    store.CheckpointRecord
		found bool
	)
	err := withStore(opts.Database, func(st *store.Store) error {
		var err error
		cp, found, err = st.LatestCheckpoint(ctx, opts.Stream)
		return err
	})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to read checkpoint", err)
	}
	if !found {
		return formatter.Fail(ExitFailure, ErrCodeNotFound,
			fmt.Sprintf("no checkpoint for stream %s", opts.Stream), nil)
	}

	env, err := selector.Inspect(cp.Data)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeCheckpoint, "checkpoint cannot be decoded", err)
	}

	info := CheckpointInfo{
		ID:      cp.ID,
		RunID:   cp.RunID,
		Stream:  cp.Stream,
		Seq:     cp.Seq,
		Digest:  cp.Digest,
		Bytes:   len(cp.Data),
		Kind:    env.Kind,
		Version: env.Version,
	}
	if env.Kind == selector.AspectKind {
		sel := selector.NewAspectSelector(selector.DefaultOptions())
		if err := sel.Deserialize(cp.Data); err != nil {
			return formatter.Fail(ExitFailure, ErrCodeCheckpoint, "checkpoint cannot be restored", err)
		}
		info.Stats = sel.Stats()
	}
	return formatter.Success(info)
}

func runCheckpointRuns(opts *CheckpointOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmdContext(cmd)

	list := RunList{Stream: opts.Stream}
	err := withStore(opts.Database, func(st *store.Store) error {
		var err error
		list.Runs, err = st.ListRuns(ctx, opts.Stream)
		return err
	})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to list runs", err)
	}
	return formatter.Success(list)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
