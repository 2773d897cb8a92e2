package testutil

import (
	"github.com/roach88/bepsel/internal/bep"
	"github.com/roach88/bepsel/internal/selector"
)

// Call records one invocation on a RecordingSelector.
type Call struct {
	Method string // "Select", "Serialize", "Deserialize" or "Close"
	Event  bep.Event
	Data   []byte
}

// SelectResult is one scripted return value for Select.
type SelectResult struct {
	Artifact selector.Artifact
	OK       bool
}

// RecordingSelector is a selector.Selector test double. It records every
// call and returns scripted results; it performs no correlation.
//
// Not safe for concurrent use.
type RecordingSelector struct {
	// SelectResults are returned by successive Select calls. Once exhausted
	// Select returns no artifact.
	SelectResults []SelectResult

	SerializeData  []byte
	SerializeErr   error
	DeserializeErr error
	CloseErr       error

	Calls []Call
}

var _ selector.Selector = (*RecordingSelector)(nil)

// Select records the event and returns the next scripted result.
func (r *RecordingSelector) Select(ev bep.Event) (selector.Artifact, bool) {
	r.Calls = append(r.Calls, Call{Method: "Select", Event: ev})
	if len(r.SelectResults) == 0 {
		return selector.Artifact{}, false
	}
	res := r.SelectResults[0]
	r.SelectResults = r.SelectResults[1:]
	return res.Artifact, res.OK
}

// Serialize records the call and returns SerializeData, SerializeErr.
func (r *RecordingSelector) Serialize() ([]byte, error) {
	r.Calls = append(r.Calls, Call{Method: "Serialize"})
	return r.SerializeData, r.SerializeErr
}

// Deserialize records the bytes and returns DeserializeErr.
func (r *RecordingSelector) Deserialize(data []byte) error {
	r.Calls = append(r.Calls, Call{Method: "Deserialize", Data: data})
	return r.DeserializeErr
}

// Close records the call and returns CloseErr.
func (r *RecordingSelector) Close() error {
	r.Calls = append(r.Calls, Call{Method: "Close"})
	return r.CloseErr
}

// Methods returns the recorded method names in call order.
func (r *RecordingSelector) Methods() []string {
	out := make([]string, len(r.Calls))
	for i, c := range r.Calls {
		out[i] = c.Method
	}
	return out
}
