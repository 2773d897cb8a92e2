package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/bepsel/internal/canon"
	"github.com/roach88/bepsel/internal/selector"
)

// TraceSnapshot captures the trace of a scenario execution.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts the snapshot to values canon.Marshal accepts.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"seq":  ev.Seq,
			"type": ev.Type,
		}
		if ev.Kind != "" {
			m["kind"] = ev.Kind
		}
		if ev.Event != "" {
			m["event"] = ev.Event
		}
		if ev.Artifact != nil {
			m["artifact"] = artifactValue(*ev.Artifact)
		}
		if ev.Stats != nil {
			m["stats"] = map[string]any{
				"pending":  ev.Stats.Pending,
				"resolved": ev.Stats.Resolved,
				"consumed": ev.Stats.Consumed,
			}
		}
		traceList[i] = m
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
}

func artifactValue(a selector.Artifact) map[string]any {
	files := make([]any, len(a.Files))
	for i, f := range a.Files {
		files[i] = map[string]any{"local_path": f.LocalPath, "uri": f.URI}
	}
	return map[string]any{"label": a.Label, "files": files}
}

// MarshalTrace returns the canonical JSON of a scenario's trace.
func MarshalTrace(name string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: name, Trace: result.Trace}
	return canon.Marshal(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result's trace against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
