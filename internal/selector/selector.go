package selector

import "github.com/roach88/bepsel/internal/bep"

// File is one output file of an artifact.
type File struct {
	LocalPath string `json:"local_path" yaml:"local_path"`
	URI       string `json:"uri" yaml:"uri"`
}

// Artifact is the set of files selected for one successfully built target.
// Files keep the order of the NamedSet event that resolved them.
type Artifact struct {
	Label string `json:"label" yaml:"label"`
	Files []File `json:"files" yaml:"files"`
}

// Selector consumes build events and emits artifacts.
type Selector interface {
	// Select processes one event. Returns the artifact it resolved, if any.
	Select(ev bep.Event) (Artifact, bool)

	// Serialize snapshots buffered state. A nil slice with a nil error
	// means there is nothing to checkpoint.
	Serialize() ([]byte, error)

	// Deserialize replaces buffered state with a snapshot produced by
	// Serialize. On error the prior state is left unchanged.
	Deserialize(data []byte) error
}
