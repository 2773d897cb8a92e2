package selector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/roach88/bepsel/internal/bep"
	"github.com/roach88/bepsel/internal/pattern"
)

// AspectKind tags checkpoints written by AspectSelector.
const AspectKind = "bepsel.aspect"

// Options configures an AspectSelector. A nil matcher accepts everything.
type Options struct {
	// FileNameAllowlist keeps only files whose local path matches.
	FileNameAllowlist pattern.Matcher

	// OutputGroupAllowlist selects which output groups of a completed target
	// are searched for file set references.
	OutputGroupAllowlist pattern.Matcher

	// TargetAspectAllowlist selects which aspects' completions are
	// considered. Plain targets have an empty aspect.
	TargetAspectAllowlist pattern.Matcher
}

// DefaultOptions selects .kzip files from any output group of any aspect.
func DefaultOptions() Options {
	return Options{
		FileNameAllowlist:     pattern.MustCompile(`\.kzip$`),
		OutputGroupAllowlist:  pattern.MustCompile(`.*`),
		TargetAspectAllowlist: pattern.MustCompile(`.*`),
	}
}

// Stats reports how many file set ids are in each correlation state.
// A Pending count that only grows usually means file sets that never arrive.
type Stats struct {
	Pending  int `json:"pending" yaml:"pending"`
	Resolved int `json:"resolved" yaml:"resolved"`
	Consumed int `json:"consumed" yaml:"consumed"`
}

// AspectSelector joins TargetCompleted and NamedSet events by file set id,
// in either arrival order, and emits at most one Artifact per id.
//
// INVARIANTS:
//   - an id is in at most one of pending, resolved, consumed
//   - a consumed id never leaves consumed
//   - state changes only inside Select and Deserialize
type AspectSelector struct {
	opts Options

	pending  map[string]string // file set id -> waiting target label
	resolved map[string][]File // file set id -> filtered files, no target yet
	consumed map[string]struct{}
}

// NewAspectSelector creates an empty selector with the given options.
func NewAspectSelector(opts Options) *AspectSelector {
	if opts.FileNameAllowlist == nil {
		opts.FileNameAllowlist = pattern.All
	}
	if opts.OutputGroupAllowlist == nil {
		opts.OutputGroupAllowlist = pattern.All
	}
	if opts.TargetAspectAllowlist == nil {
		opts.TargetAspectAllowlist = pattern.All
	}
	return &AspectSelector{
		opts:     opts,
		pending:  make(map[string]string),
		resolved: make(map[string][]File),
		consumed: make(map[string]struct{}),
	}
}

// Select implements Selector. Events that are neither target completions
// nor named sets are ignored.
func (s *AspectSelector) Select(ev bep.Event) (Artifact, bool) {
	switch ev.Kind() {
	case bep.KindTargetCompleted:
		return s.selectTarget(ev.ID.TargetCompleted, ev.Completed)
	case bep.KindNamedSet:
		return s.selectNamedSet(ev.ID.NamedSet.ID, ev.NamedSetOfFiles)
	default:
		return Artifact{}, false
	}
}

// selectTarget resolves the first referenced id whose files are already
// buffered. Ids scanned before that are registered as pending.
func (s *AspectSelector) selectTarget(id *bep.TargetCompletedID, done *bep.TargetComplete) (Artifact, bool) {
	if done == nil || !done.Success {
		return Artifact{}, false
	}
	if !s.opts.TargetAspectAllowlist.Matches(id.Aspect) {
		return Artifact{}, false
	}

	for _, group := range done.OutputGroup {
		if !s.opts.OutputGroupAllowlist.Matches(group.Name) {
			continue
		}
		for _, ref := range group.FileSets {
			if _, spent := s.consumed[ref.ID]; spent {
				continue
			}
			if files, ok := s.resolved[ref.ID]; ok {
				delete(s.resolved, ref.ID)
				s.consumed[ref.ID] = struct{}{}
				return Artifact{Label: id.Label, Files: files}, true
			}
			s.pending[ref.ID] = id.Label
		}
	}
	return Artifact{}, false
}

func (s *AspectSelector) selectNamedSet(setID string, set *bep.NamedSetOfFiles) (Artifact, bool) {
	if _, spent := s.consumed[setID]; spent {
		return Artifact{}, false
	}

	files := s.filterFiles(set)
	if label, ok := s.pending[setID]; ok {
		delete(s.pending, setID)
		s.consumed[setID] = struct{}{}
		return Artifact{Label: label, Files: files}, true
	}

	s.resolved[setID] = files
	return Artifact{}, false
}

// filterFiles keeps allowlisted files in event order. Never returns nil so
// an artifact whose files were all filtered still has an empty list.
func (s *AspectSelector) filterFiles(set *bep.NamedSetOfFiles) []File {
	files := []File{}
	if set == nil {
		return files
	}
	for _, f := range set.Files {
		if s.opts.FileNameAllowlist.Matches(f.Name) {
			files = append(files, File{LocalPath: f.Name, URI: f.URI})
		}
	}
	return files
}

// Stats returns the current size of each correlation state.
func (s *AspectSelector) Stats() Stats {
	return Stats{
		Pending:  len(s.pending),
		Resolved: len(s.resolved),
		Consumed: len(s.consumed),
	}
}

// aspectState is the decoded "state" object of an AspectSelector checkpoint.
type aspectState struct {
	Pending  map[string]string `json:"pending"`
	Resolved map[string][]File `json:"resolved"`
	Consumed []string          `json:"consumed"`
}

// Serialize implements Selector. Returns nil when the selector has never
// buffered or emitted anything. Ids, labels and paths are stored byte for
// byte; a string that is not valid UTF-8 cannot be stored and is an error.
func (s *AspectSelector) Serialize() ([]byte, error) {
	if len(s.pending) == 0 && len(s.resolved) == 0 && len(s.consumed) == 0 {
		return nil, nil
	}

	pending := make(map[string]any, len(s.pending))
	for id, label := range s.pending {
		pending[id] = label
	}

	resolved := make(map[string]any, len(s.resolved))
	for id, files := range s.resolved {
		list := make([]any, len(files))
		for i, f := range files {
			list[i] = map[string]any{"local_path": f.LocalPath, "uri": f.URI}
		}
		resolved[id] = list
	}

	consumed := make([]string, 0, len(s.consumed))
	for id := range s.consumed {
		consumed = append(consumed, id)
	}
	sort.Strings(consumed)

	return encodeEnvelope(AspectKind, map[string]any{
		"pending":  pending,
		"resolved": resolved,
		"consumed": consumed,
	})
}

// Deserialize implements Selector. The snapshot replaces all buffered state,
// including consumed ids. Nothing is modified unless decoding succeeds.
func (s *AspectSelector) Deserialize(data []byte) error {
	_, raw, err := decodeEnvelope(data, AspectKind)
	if err != nil {
		return err
	}

	var st aspectState
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&st); err != nil {
		return malformed("invalid aspect state", err)
	}

	pending := make(map[string]string, len(st.Pending))
	resolved := make(map[string][]File, len(st.Resolved))
	consumed := make(map[string]struct{}, len(st.Consumed))

	for _, id := range st.Consumed {
		if _, dup := consumed[id]; dup {
			return malformed(fmt.Sprintf("file set %q consumed twice", id), nil)
		}
		consumed[id] = struct{}{}
	}
	for id, label := range st.Pending {
		if _, spent := consumed[id]; spent {
			return malformed(fmt.Sprintf("file set %q both pending and consumed", id), nil)
		}
		pending[id] = label
	}
	for id, files := range st.Resolved {
		if _, spent := consumed[id]; spent {
			return malformed(fmt.Sprintf("file set %q both resolved and consumed", id), nil)
		}
		if _, waiting := pending[id]; waiting {
			return malformed(fmt.Sprintf("file set %q both resolved and pending", id), nil)
		}
		if files == nil {
			files = []File{}
		}
		resolved[id] = files
	}

	s.pending = pending
	s.resolved = resolved
	s.consumed = consumed
	return nil
}
