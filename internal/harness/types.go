package harness

import "github.com/roach88/bepsel/internal/selector"

// Trace event types.
const (
	TraceEventType      = "event"
	TraceCheckpointType = "checkpoint"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Type string `json:"type"` // "event" or "checkpoint"

	// Kind and Event describe an event step.
	Kind  string `json:"kind,omitempty"`
	Event string `json:"event,omitempty"`

	// Artifact is set when the event step emitted one.
	Artifact *selector.Artifact `json:"artifact,omitempty"`

	// Stats is the restored selector's state after a checkpoint step.
	Stats *selector.Stats `json:"stats,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace     []TraceEvent        `json:"trace"`
	Artifacts []selector.Artifact `json:"artifacts"`

	// Stats is the selector state after the last step.
	Stats selector.Stats `json:"stats"`

	// RunID is the run the artifacts were stored under.
	RunID string `json:"run_id"`

	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEvent{},
		Artifacts: []selector.Artifact{},
		Errors:    []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEventTrace records an event step and the artifact it emitted, if any.
func (r *Result) AddEventTrace(seq int64, kind, summary string, art *selector.Artifact) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:      seq,
		Type:     TraceEventType,
		Kind:     kind,
		Event:    summary,
		Artifact: art,
	})
	if art != nil {
		r.Artifacts = append(r.Artifacts, *art)
	}
}

// AddCheckpointTrace records a checkpoint round trip.
func (r *Result) AddCheckpointTrace(seq int64, st selector.Stats) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:   seq,
		Type:  TraceCheckpointType,
		Stats: &st,
	})
}
