package bep

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Decoder reads a stream of JSON build events.
//
// Bazel writes one JSON object per line, but the decoder accepts any
// whitespace between objects.
type Decoder struct {
	dec   *json.Decoder
	index int
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: json.NewDecoder(r)}
}

// Next decodes the next event. Returns io.EOF when the stream is exhausted.
func (d *Decoder) Next() (Event, error) {
	var ev Event
	if err := d.dec.Decode(&ev); err != nil {
		if errors.Is(err, io.EOF) {
			return Event{}, io.EOF
		}
		return Event{}, fmt.Errorf("decode event %d: %w", d.index, err)
	}
	d.index++
	return ev, nil
}

// Count returns how many events have been decoded so far.
func (d *Decoder) Count() int {
	return d.index
}
