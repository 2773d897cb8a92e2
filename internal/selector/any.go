package selector

import (
	"io"

	"github.com/roach88/bepsel/internal/bep"
)

// Any holds some Selector and forwards every call to it unchanged.
//
// An Any either owns its selector (Own) or borrows one owned elsewhere
// (Borrow). A borrowed selector must stay usable for as long as the Any is;
// this is the caller's obligation and is not checked. The only behavioural
// difference is Close, which releases owned selectors only.
//
// The zero Any holds nothing: Select returns no artifact, Serialize
// returns nothing to checkpoint and Deserialize returns ErrNoSelector.
type Any struct {
	impl  Selector
	owned bool
}

// Own returns an Any that takes ownership of s.
func Own(s Selector) Any {
	return Any{impl: s, owned: true}
}

// Borrow returns an Any that refers to s without owning it.
func Borrow(s Selector) Any {
	return Any{impl: s}
}

// IsOwned reports whether the Any owns its selector.
func (a Any) IsOwned() bool {
	return a.owned
}

// Unwrap returns the held selector, or nil for the zero Any.
func (a Any) Unwrap() Selector {
	return a.impl
}

// Select forwards to the held selector.
func (a Any) Select(ev bep.Event) (Artifact, bool) {
	if a.impl == nil {
		return Artifact{}, false
	}
	return a.impl.Select(ev)
}

// Serialize forwards to the held selector.
func (a Any) Serialize() ([]byte, error) {
	if a.impl == nil {
		return nil, nil
	}
	return a.impl.Serialize()
}

// Deserialize forwards to the held selector.
func (a Any) Deserialize(data []byte) error {
	if a.impl == nil {
		return ErrNoSelector
	}
	return a.impl.Deserialize(data)
}

// Close closes an owned selector that implements io.Closer.
// Borrowed selectors are left for their owner to close.
func (a Any) Close() error {
	if !a.owned || a.impl == nil {
		return nil
	}
	if c, ok := a.impl.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
