package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/bepsel/internal/canon"
	"github.com/roach88/bepsel/internal/selector"
)

// Run is one driver pass over an event stream.
type Run struct {
	ID     string `json:"id"`
	Stream string `json:"stream"`

	// ResumedFrom is the checkpoint id the run restored, or 0.
	ResumedFrom int64 `json:"resumed_from,omitempty"`
}

// CheckpointRecord is a stored selector snapshot.
type CheckpointRecord struct {
	ID     int64  `json:"id"`
	RunID  string `json:"run_id"`
	Stream string `json:"stream"`
	Seq    int64  `json:"seq"`
	Digest string `json:"digest"`
	Data   []byte `json:"-"`
}

// ArtifactRecord is an artifact emitted at seq during a run.
type ArtifactRecord struct {
	ID       int64             `json:"id"`
	RunID    string            `json:"run_id"`
	Seq      int64             `json:"seq"`
	Digest   string            `json:"digest"`
	Artifact selector.Artifact `json:"artifact"`
}

func filesValue(files []selector.File) []any {
	list := make([]any, len(files))
	for i, f := range files {
		list[i] = map[string]any{"local_path": f.LocalPath, "uri": f.URI}
	}
	return list
}

// marshalFiles converts an artifact's files to canonical JSON TEXT.
func marshalFiles(files []selector.File) (string, error) {
	data, err := canon.Marshal(filesValue(files))
	if err != nil {
		return "", fmt.Errorf("marshal files: %w", err)
	}
	return string(data), nil
}

func unmarshalFiles(text string) ([]selector.File, error) {
	files := []selector.File{}
	if err := json.Unmarshal([]byte(text), &files); err != nil {
		return nil, fmt.Errorf("unmarshal files: %w", err)
	}
	return files, nil
}

// ArtifactDigest is the content digest of an artifact's label and files.
func ArtifactDigest(a selector.Artifact) (string, error) {
	return canon.Digest(canon.DomainArtifact, map[string]any{
		"label": a.Label,
		"files": filesValue(a.Files),
	})
}

// CheckpointDigest is the content digest of a stored checkpoint blob.
func CheckpointDigest(data []byte) string {
	return canon.HashWithDomain(canon.DomainCheckpoint, data)
}
