package selector

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/bepsel/internal/canon"
)

// CheckpointVersion is the envelope schema version written by Serialize.
const CheckpointVersion = 1

// envelope is the on-the-wire form of a checkpoint:
//
//	{"digest":"<hex>","kind":"<selector kind>","state":{...},"version":1}
//
// The whole envelope is canonical JSON. The digest covers the canonical
// bytes of state, which appear verbatim inside the envelope.
type envelope struct {
	Kind    string          `json:"kind"`
	Version int             `json:"version"`
	Digest  string          `json:"digest"`
	State   json.RawMessage `json:"state"`
}

// Envelope describes a decoded checkpoint header. Returned by Inspect.
type Envelope struct {
	Kind    string
	Version int
	Digest  string
}

func encodeEnvelope(kind string, state map[string]any) ([]byte, error) {
	stateJSON, err := canon.MarshalExact(state)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint state: %w", err)
	}
	data, err := canon.MarshalExact(map[string]any{
		"kind":    kind,
		"version": CheckpointVersion,
		"digest":  canon.HashWithDomain(canon.DomainCheckpoint, stateJSON),
		"state":   state,
	})
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	return data, nil
}

// decodeEnvelope validates the envelope and returns the raw state bytes.
// wantKind may be empty to accept any kind.
func decodeEnvelope(data []byte, wantKind string) (Envelope, json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, nil, malformed("invalid envelope", err)
	}
	hdr := Envelope{Kind: env.Kind, Version: env.Version, Digest: env.Digest}
	if env.Version != CheckpointVersion {
		return hdr, nil, &DecodeError{
			Code:    ErrCodeUnsupportedVersion,
			Message: fmt.Sprintf("checkpoint version %d (want %d)", env.Version, CheckpointVersion),
		}
	}
	if wantKind != "" && env.Kind != wantKind {
		return hdr, nil, &DecodeError{
			Code:    ErrCodeKindMismatch,
			Message: fmt.Sprintf("checkpoint kind %q (want %q)", env.Kind, wantKind),
		}
	}
	state := bytes.TrimSpace(env.State)
	if len(state) == 0 || bytes.Equal(state, []byte("null")) {
		return hdr, nil, malformed("missing state", nil)
	}
	if got := canon.HashWithDomain(canon.DomainCheckpoint, state); got != env.Digest {
		return hdr, nil, &DecodeError{
			Code:    ErrCodeDigestMismatch,
			Message: fmt.Sprintf("state digest %s does not match %s", got, env.Digest),
		}
	}
	return hdr, state, nil
}

// Inspect decodes and verifies a checkpoint header without restoring it.
func Inspect(data []byte) (Envelope, error) {
	hdr, _, err := decodeEnvelope(data, "")
	return hdr, err
}
