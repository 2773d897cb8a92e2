package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/bepsel/internal/bep"
	"github.com/roach88/bepsel/internal/config"
	"github.com/roach88/bepsel/internal/driver"
	"github.com/roach88/bepsel/internal/selector"
	"github.com/roach88/bepsel/internal/store"
)

// SelectOptions holds flags for the select command.
type SelectOptions struct {
	*RootOptions
	Config          string
	Stream          string
	CheckpointEvery int
	Database        string
	Resume          bool
	MetricsFile     string
}

// SelectResult is the output of a select run.
type SelectResult struct {
	RunID     string              `json:"run_id"`
	Stream    string              `json:"stream"`
	Resumed   bool                `json:"resumed"`
	Events    int64               `json:"events"`
	Artifacts []selector.Artifact `json:"artifacts"`
	Stats     selector.Stats      `json:"stats"`
}

// String renders the result for text output.
func (r SelectResult) String() string {
	var b strings.Builder
	for _, a := range r.Artifacts {
		fmt.Fprintf(&b, "%s\n", a.Label)
		for _, f := range a.Files {
			fmt.Fprintf(&b, "  %s\t%s\n", f.LocalPath, f.URI)
		}
	}
	fmt.Fprintf(&b, "%d artifacts from %d events (pending %d, resolved %d, consumed %d)",
		len(r.Artifacts), r.Events, r.Stats.Pending, r.Stats.Resolved, r.Stats.Consumed)
	return b.String()
}

// NewSelectCommand creates the select command.
func NewSelectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SelectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "select [events.json|-]",
		Short: "Select artifacts from a BEP JSON stream",
		Long: `Read newline-delimited BEP JSON events and print the artifacts they produce.

With --db, artifacts and checkpoints are stored in SQLite; --resume restores
the latest checkpoint of --stream before reading, so a stream split across
several invocations still joins correctly.

Exit codes:
  0 - Stream processed
  1 - Driver or resume failure
  2 - Command error (bad config, unreadable or malformed input)

Examples:
  bepsel select build_events.json
  bazel-bep-tail | bepsel select - --db ./bepsel.db --stream ci --resume
  bepsel select events.json --config bepsel.cue --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			input := "-"
			if len(args) == 1 {
				input = args[0]
			}
			return runSelect(opts, input, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to CUE config file")
	cmd.Flags().StringVar(&opts.Stream, "stream", driver.DefaultStream, "stream name checkpoints are filed under")
	cmd.Flags().IntVar(&opts.CheckpointEvery, "checkpoint-every", 0, "events between checkpoints (0 = only at end)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().BoolVar(&opts.Resume, "resume", false, "restore the latest checkpoint for --stream (requires --db)")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file")

	return cmd
}

func runSelect(opts *SelectOptions, input string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	setupLogging(cmd.ErrOrStderr(), opts.Verbose)

	cfg, err := loadSelectConfig(opts, cmd)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidConfig, "invalid configuration", err)
	}
	if opts.Resume && opts.Database == "" {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "--resume requires --db", nil)
	}

	selOpts, err := cfg.SelectorOptions()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidConfig, "invalid selector patterns", err)
	}
	aspect := selector.NewAspectSelector(selOpts)
	sel := selector.Own(aspect)
	defer sel.Close()

	r, closeInput, err := openInput(input, cmd.InOrStdin())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "cannot read events", err)
	}
	defer closeInput()

	var artifacts []selector.Artifact
	driverOpts := append(cfg.DriverOptions(), driver.WithHooks(driver.Hooks{
		OnArtifact: func(_ int64, a selector.Artifact) {
			artifacts = append(artifacts, a)
		},
	}))

	var reg *prometheus.Registry
	if opts.MetricsFile != "" {
		reg = prometheus.NewRegistry()
		driverOpts = append(driverOpts, driver.WithHooks(driver.NewMetrics(reg).Hooks()))
	}

	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		driverOpts = append(driverOpts, driver.WithSink(st), driver.WithCheckpointStore(st))
	}

	d := driver.New(sel, driverOpts...)

	ctx, stop := signalContext(cmd)
	defer stop()

	resumed := false
	if opts.Resume {
		resumed, err = d.Resume(ctx)
		if err != nil {
			code := ErrCodeStore
			switch {
			case selector.IsVersionError(err):
				code = ErrCodeCheckpointVer
			case selector.IsDecodeError(err):
				code = ErrCodeCheckpoint
			}
			return formatter.Fail(ExitFailure, code, "failed to resume", err)
		}
	}

	feedErr := make(chan error, 1)
	go func() {
		feedErr <- d.Feed(ctx, bep.NewDecoder(r))
	}()

	if err := d.Run(ctx); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeDriver, "driver stopped", err)
	}
	if err := <-feedErr; err != nil && !errors.Is(err, driver.ErrStopped) {
		return formatter.Fail(ExitCommandError, ErrCodeBadEvents, "failed to decode events", err)
	}

	if reg != nil {
		if err := prometheus.WriteToTextfile(opts.MetricsFile, reg); err != nil {
			slog.Error("failed to write metrics", "path", opts.MetricsFile, "error", err)
		}
	}

	stats := d.Stats()
	result := SelectResult{
		RunID:     d.RunID(),
		Stream:    d.Stream(),
		Resumed:   resumed,
		Events:    stats.Processed,
		Artifacts: artifacts,
		Stats:     aspect.Stats(),
	}
	if result.Artifacts == nil {
		result.Artifacts = []selector.Artifact{}
	}
	return formatter.Success(result)
}

// loadSelectConfig loads --config (or defaults) and applies flag overrides.
func loadSelectConfig(opts *SelectOptions, cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("stream") {
		cfg.Driver.Stream = opts.Stream
	}
	if cmd.Flags().Changed("checkpoint-every") {
		cfg.Driver.CheckpointEvery = opts.CheckpointEvery
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openInput opens path, or returns stdin for "-".
func openInput(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

// signalContext derives a context from the command's that is cancelled on
// SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
}
