package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/bepsel/internal/selector"
	"github.com/roach88/bepsel/internal/store"
	"github.com/roach88/bepsel/internal/testutil"
)

// Harness executes scenario steps against an AspectSelector.
//
// Artifacts and checkpoints go through a private in-memory store, so a
// scenario also exercises the persistence path the driver uses.
type Harness struct {
	store  *store.Store
	sel    *selector.AspectSelector
	opts   selector.Options
	clock  *testutil.DeterministicClock
	runID  string
	stream string
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. Expect mismatches and
// failed assertions are reported in Result.Errors; the returned error is
// reserved for scenarios that cannot be executed at all.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with step logging sent to logger.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	opts, err := scenario.SelectorOptions()
	if err != nil {
		return nil, fmt.Errorf("selector options: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		sel:    selector.NewAspectSelector(opts),
		opts:   opts,
		clock:  testutil.NewDeterministicClock(),
		runID:  testutil.FixedRunID(scenario.RunID).Generate(),
		stream: scenario.Name,
		logger: logger,
	}

	ctx := context.Background()
	if err := st.BeginRun(ctx, store.Run{ID: h.runID, Stream: h.stream}); err != nil {
		return nil, err
	}

	result := NewResult()
	result.RunID = h.runID
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}
	result.Stats = h.sel.Stats()

	actx := &AssertionContext{Store: st, Ctx: ctx, RunID: h.runID}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// executeStep runs one step. Every step takes exactly one seq.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	seq := h.clock.Next()

	if step.Checkpoint {
		restored, err := h.checkpoint(ctx, seq)
		if err != nil {
			return err
		}
		h.sel = restored
		result.AddCheckpointTrace(seq, h.sel.Stats())
		h.logger.Info("checkpoint restored", "step", index, "seq", seq, "stats", h.sel.Stats())
		return nil
	}

	ev, _ := step.Event()
	art, ok := h.sel.Select(ev)

	var emitted *selector.Artifact
	if ok {
		emitted = &art
		rec := store.ArtifactRecord{RunID: h.runID, Seq: seq, Artifact: art}
		if err := h.store.WriteArtifact(ctx, rec); err != nil {
			return err
		}
	}
	result.AddEventTrace(seq, ev.Kind().String(), ev.Summary(), emitted)

	if step.Expect != nil {
		if msg := checkExpect(index, step.Expect, emitted); msg != "" {
			result.AddError(msg)
		}
	}

	h.logger.Info("step completed",
		"step", index,
		"seq", seq,
		"event", ev.Summary(),
		"artifact", ok,
	)
	return nil
}

// checkpoint stores the selector's state and returns a fresh selector
// restored from the stored bytes. An empty selector stores nothing.
func (h *Harness) checkpoint(ctx context.Context, seq int64) (*selector.AspectSelector, error) {
	fresh := selector.NewAspectSelector(h.opts)

	data, err := h.sel.Serialize()
	if err != nil {
		return nil, fmt.Errorf("serialize: %w", err)
	}
	if data == nil {
		return fresh, nil
	}

	cp := store.CheckpointRecord{RunID: h.runID, Stream: h.stream, Seq: seq, Data: data}
	if _, err := h.store.WriteCheckpoint(ctx, cp); err != nil {
		return nil, err
	}
	stored, found, err := h.store.LatestCheckpoint(ctx, h.stream)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("checkpoint at seq %d not found after write", seq)
	}
	if err := fresh.Deserialize(stored.Data); err != nil {
		return nil, fmt.Errorf("deserialize: %w", err)
	}
	return fresh, nil
}

// checkExpect compares a step's outcome with its expect clause.
// Returns an empty string on match.
func checkExpect(index int, want *Expect, got *selector.Artifact) string {
	switch {
	case want.None && got != nil:
		return fmt.Sprintf("step %d: expected no artifact, got %s with %d files", index, got.Label, len(got.Files))
	case want.None:
		return ""
	case got == nil:
		return fmt.Sprintf("step %d: expected artifact %s, got none", index, want.Label)
	case got.Label != want.Label:
		return fmt.Sprintf("step %d: expected label %s, got %s", index, want.Label, got.Label)
	case !filesEqual(want.Files, got.Files):
		return fmt.Sprintf("step %d: files for %s: expected %v, got %v", index, want.Label, want.Files, got.Files)
	}
	return ""
}

// filesEqual compares file lists in order; nil and empty are equal.
func filesEqual(a, b []selector.File) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
