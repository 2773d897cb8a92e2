package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/bepsel/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		switch {
		case ev.Type == TraceCheckpointType:
			fmt.Fprintf(&buf, "  [%d] checkpoint\n", ev.Seq)
		case ev.Artifact != nil:
			fmt.Fprintf(&buf, "  [%d] %s -> %s (%d files)\n", ev.Seq, ev.Event, ev.Artifact.Label, len(ev.Artifact.Files))
		default:
			fmt.Fprintf(&buf, "  [%d] %s\n", ev.Seq, ev.Event)
		}
	}
	return buf.String()
}

// AssertionContext gives assertions access to the run's store.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
	RunID string
}

func assertArtifactCount(result *Result, a Assertion) error {
	if got := len(result.Artifacts); got != a.Count {
		return &AssertionError{
			Type:     AssertArtifactCount,
			Expected: fmt.Sprintf("%d artifacts", a.Count),
			Actual:   fmt.Sprintf("%d artifacts", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertArtifactOrder(result *Result, a Assertion) error {
	labels := make([]string, len(result.Artifacts))
	for i, art := range result.Artifacts {
		labels[i] = art.Label
	}
	if !slices.Equal(labels, a.Labels) {
		return &AssertionError{
			Type:     AssertArtifactOrder,
			Expected: fmt.Sprintf("labels %v", a.Labels),
			Actual:   fmt.Sprintf("labels %v", labels),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertArtifactFiles(result *Result, a Assertion) error {
	for _, art := range result.Artifacts {
		if art.Label != a.Label {
			continue
		}
		if filesEqual(a.Files, art.Files) {
			return nil
		}
		return &AssertionError{
			Type:     AssertArtifactFiles,
			Expected: fmt.Sprintf("%s with files %v", a.Label, a.Files),
			Actual:   fmt.Sprintf("files %v", art.Files),
			Trace:    result.Trace,
		}
	}
	return &AssertionError{
		Type:     AssertArtifactFiles,
		Expected: fmt.Sprintf("artifact for %s", a.Label),
		Actual:   "not emitted",
		Trace:    result.Trace,
	}
}

func assertFinalStats(result *Result, a Assertion) error {
	if result.Stats != *a.Stats {
		return &AssertionError{
			Type:     AssertFinalStats,
			Expected: fmt.Sprintf("%+v", *a.Stats),
			Actual:   fmt.Sprintf("%+v", result.Stats),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertStoredCount(actx *AssertionContext, result *Result, a Assertion) error {
	records, err := actx.Store.ReadArtifacts(actx.Ctx, actx.RunID)
	if err != nil {
		return fmt.Errorf("stored_count: %w", err)
	}
	if len(records) != a.Count {
		return &AssertionError{
			Type:     AssertStoredCount,
			Expected: fmt.Sprintf("%d stored artifacts", a.Count),
			Actual:   fmt.Sprintf("%d stored artifacts", len(records)),
			Trace:    result.Trace,
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns one message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertArtifactCount:
			err = assertArtifactCount(result, a)
		case AssertArtifactOrder:
			err = assertArtifactOrder(result, a)
		case AssertArtifactFiles:
			err = assertArtifactFiles(result, a)
		case AssertFinalStats:
			if a.Stats == nil {
				err = fmt.Errorf("assertion[%d]: final_stats requires stats", i)
			} else {
				err = assertFinalStats(result, a)
			}
		case AssertStoredCount:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: stored_count requires database context", i)
			} else {
				err = assertStoredCount(actx, result, a)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
