// Package bep models the subset of Bazel Build Event Protocol records that
// the artifact selector reads, and decodes them from the JSON stream written
// by `bazel build --build_event_json_file`.
//
// Only the fields listed here are decoded. Everything else in a record is
// ignored so newer Bazel versions keep decoding.
package bep

// Kind classifies an event by the id it carries.
type Kind int

const (
	// KindOther is any event the selector does not understand.
	KindOther Kind = iota
	// KindTargetCompleted is a target (or aspect) completion record.
	KindTargetCompleted
	// KindNamedSet is a named set of files record.
	KindNamedSet
)

// String returns a short name for the kind, used in logs and traces.
func (k Kind) String() string {
	switch k {
	case KindTargetCompleted:
		return "target_completed"
	case KindNamedSet:
		return "named_set"
	default:
		return "other"
	}
}

// Event is one build event record.
//
// Exactly one of the id variants is set for events the selector handles.
// Completed is only meaningful for target completions and NamedSetOfFiles
// only for named sets.
type Event struct {
	ID              EventID          `json:"id"`
	Completed       *TargetComplete  `json:"completed,omitempty"`
	NamedSetOfFiles *NamedSetOfFiles `json:"namedSetOfFiles,omitempty"`
}

// EventID is the tagged union identifying an event.
type EventID struct {
	TargetCompleted *TargetCompletedID `json:"targetCompleted,omitempty"`
	NamedSet        *NamedSetOfFilesID `json:"namedSet,omitempty"`
}

// TargetCompletedID identifies a completed target, optionally for an aspect.
type TargetCompletedID struct {
	Label  string `json:"label"`
	Aspect string `json:"aspect,omitempty"`
}

// NamedSetOfFilesID identifies a named file set.
type NamedSetOfFilesID struct {
	ID string `json:"id"`
}

// TargetComplete is the payload of a target completion.
type TargetComplete struct {
	Success     bool          `json:"success"`
	OutputGroup []OutputGroup `json:"outputGroup,omitempty"`
}

// OutputGroup lists the file sets a target produced for one group name.
type OutputGroup struct {
	Name     string              `json:"name"`
	FileSets []NamedSetOfFilesID `json:"fileSets,omitempty"`
}

// NamedSetOfFiles is the payload of a named set event.
type NamedSetOfFiles struct {
	Files []File `json:"files,omitempty"`
}

// File is one file in a named set.
type File struct {
	Name string `json:"name"`
	URI  string `json:"uri,omitempty"`
}

// Kind reports which id variant the event carries.
func (e *Event) Kind() Kind {
	switch {
	case e.ID.TargetCompleted != nil:
		return KindTargetCompleted
	case e.ID.NamedSet != nil:
		return KindNamedSet
	default:
		return KindOther
	}
}

// Summary returns a compact human-readable description of the event.
func (e *Event) Summary() string {
	switch e.Kind() {
	case KindTargetCompleted:
		id := e.ID.TargetCompleted
		if id.Aspect != "" {
			return id.Label + " (" + id.Aspect + ")"
		}
		return id.Label
	case KindNamedSet:
		return "named_set " + e.ID.NamedSet.ID
	default:
		return "other"
	}
}

// TargetCompleted builds a target completion event. Used by tests and the
// scenario harness.
func TargetCompleted(label, aspect string, success bool, groups ...OutputGroup) Event {
	return Event{
		ID: EventID{TargetCompleted: &TargetCompletedID{Label: label, Aspect: aspect}},
		Completed: &TargetComplete{
			Success:     success,
			OutputGroup: groups,
		},
	}
}

// Group builds an output group referencing the given file set ids.
func Group(name string, setIDs ...string) OutputGroup {
	g := OutputGroup{Name: name}
	for _, id := range setIDs {
		g.FileSets = append(g.FileSets, NamedSetOfFilesID{ID: id})
	}
	return g
}

// NamedSet builds a named set event carrying files.
func NamedSet(id string, files ...File) Event {
	return Event{
		ID:              EventID{NamedSet: &NamedSetOfFilesID{ID: id}},
		NamedSetOfFiles: &NamedSetOfFiles{Files: files},
	}
}
