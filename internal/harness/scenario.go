package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bepsel/internal/bep"
	"github.com/roach88/bepsel/internal/config"
	"github.com/roach88/bepsel/internal/selector"
)

// Scenario is a scripted event stream with expectations.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Selector overrides allowlists; omitted lists keep their defaults.
	Selector *SelectorLists `yaml:"selector,omitempty"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the full run after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// RunID fixes the recorded run id. Defaults to testutil.DefaultRunID.
	RunID string `yaml:"run_id,omitempty"`
}

// SelectorLists mirrors the selector section of the CUE config.
type SelectorLists struct {
	FileNameAllowlist     []string `yaml:"file_name_allowlist,omitempty"`
	OutputGroupAllowlist  []string `yaml:"output_group_allowlist,omitempty"`
	TargetAspectAllowlist []string `yaml:"target_aspect_allowlist,omitempty"`
}

// Step is one event, or a checkpoint round trip.
type Step struct {
	Target   *TargetStep   `yaml:"target,omitempty"`
	NamedSet *NamedSetStep `yaml:"named_set,omitempty"`

	// Other feeds an event of a kind the selector ignores, e.g. "started".
	Other string `yaml:"other,omitempty"`

	Checkpoint bool `yaml:"checkpoint,omitempty"`

	// Expect checks the Select result. Nil skips the check.
	Expect *Expect `yaml:"expect,omitempty"`
}

// TargetStep describes a TargetCompleted event.
type TargetStep struct {
	Label  string `yaml:"label"`
	Aspect string `yaml:"aspect,omitempty"`

	// Success defaults to true.
	Success      *bool       `yaml:"success,omitempty"`
	OutputGroups []GroupStep `yaml:"output_groups,omitempty"`
}

// GroupStep is one output group of a target.
type GroupStep struct {
	Name     string   `yaml:"name"`
	FileSets []string `yaml:"file_sets,omitempty"`
}

// NamedSetStep describes a NamedSetOfFiles event.
type NamedSetStep struct {
	ID    string     `yaml:"id"`
	Files []FileStep `yaml:"files,omitempty"`
}

// FileStep is one file of a named set.
type FileStep struct {
	Name string `yaml:"name"`
	URI  string `yaml:"uri,omitempty"`
}

// Expect is the expected Select outcome for a step.
type Expect struct {
	// None expects no artifact.
	None bool `yaml:"none,omitempty"`

	Label string          `yaml:"label,omitempty"`
	Files []selector.File `yaml:"files,omitempty"`
}

// Assertion validates the run as a whole.
type Assertion struct {
	Type   string          `yaml:"type"`
	Count  int             `yaml:"count,omitempty"`
	Labels []string        `yaml:"labels,omitempty"`
	Label  string          `yaml:"label,omitempty"`
	Files  []selector.File `yaml:"files,omitempty"`
	Stats  *selector.Stats `yaml:"stats,omitempty"`
}

// Assertion type constants.
const (
	AssertArtifactCount = "artifact_count"
	AssertArtifactOrder = "artifact_order"
	AssertArtifactFiles = "artifact_files"
	AssertFinalStats    = "final_stats"
	AssertStoredCount   = "stored_count"
)

// Event converts the step to a build event. Checkpoint steps have none.
func (s Step) Event() (bep.Event, bool) {
	switch {
	case s.Target != nil:
		success := true
		if s.Target.Success != nil {
			success = *s.Target.Success
		}
		groups := make([]bep.OutputGroup, len(s.Target.OutputGroups))
		for i, g := range s.Target.OutputGroups {
			groups[i] = bep.Group(g.Name, g.FileSets...)
		}
		return bep.TargetCompleted(s.Target.Label, s.Target.Aspect, success, groups...), true
	case s.NamedSet != nil:
		files := make([]bep.File, len(s.NamedSet.Files))
		for i, f := range s.NamedSet.Files {
			files[i] = bep.File{Name: f.Name, URI: f.URI}
		}
		return bep.NamedSet(s.NamedSet.ID, files...), true
	case s.Other != "":
		return bep.Event{}, true
	default:
		return bep.Event{}, false
	}
}

// SelectorOptions compiles the scenario's allowlists over the defaults.
func (s *Scenario) SelectorOptions() (selector.Options, error) {
	cfg := config.Default()
	if l := s.Selector; l != nil {
		if l.FileNameAllowlist != nil {
			cfg.Selector.FileNameAllowlist = l.FileNameAllowlist
		}
		if l.OutputGroupAllowlist != nil {
			cfg.Selector.OutputGroupAllowlist = l.OutputGroupAllowlist
		}
		if l.TargetAspectAllowlist != nil {
			cfg.Selector.TargetAspectAllowlist = l.TargetAspectAllowlist
		}
	}
	return cfg.SelectorOptions()
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s Step) error {
	kinds := 0
	for _, set := range []bool{s.Target != nil, s.NamedSet != nil, s.Other != "", s.Checkpoint} {
		if set {
			kinds++
		}
	}
	if kinds != 1 {
		return fmt.Errorf("steps[%d]: exactly one of target, named_set, other, checkpoint is required", index)
	}

	if s.Target != nil && s.Target.Label == "" {
		return fmt.Errorf("steps[%d].target: label is required", index)
	}
	if s.NamedSet != nil && s.NamedSet.ID == "" {
		return fmt.Errorf("steps[%d].named_set: id is required", index)
	}
	if s.Checkpoint && s.Expect != nil {
		return fmt.Errorf("steps[%d]: checkpoint steps take no expect", index)
	}
	if e := s.Expect; e != nil {
		if e.None && (e.Label != "" || len(e.Files) > 0) {
			return fmt.Errorf("steps[%d].expect: none excludes label and files", index)
		}
		if !e.None && e.Label == "" {
			return fmt.Errorf("steps[%d].expect: label or none is required", index)
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertArtifactCount, AssertStoredCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertArtifactOrder:
		if a.Labels == nil {
			return fmt.Errorf("assertions[%d]: labels list is required for artifact_order", index)
		}
	case AssertArtifactFiles:
		if a.Label == "" {
			return fmt.Errorf("assertions[%d]: label is required for artifact_files", index)
		}
	case AssertFinalStats:
		if a.Stats == nil {
			return fmt.Errorf("assertions[%d]: stats is required for final_stats", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
