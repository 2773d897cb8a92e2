package selector_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bepsel/internal/bep"
	"github.com/roach88/bepsel/internal/selector"
	"github.com/roach88/bepsel/internal/testutil"
)

func TestAny_CompatibleWithAspectSelector(t *testing.T) {
	var s selector.Selector = selector.Own(selector.NewAspectSelector(selector.DefaultOptions()))

	_, ok := s.Select(bep.TargetCompleted("//t:n", "//a:f%n", true, bep.Group("kythe_compilation_unit", "1")))
	assert.False(t, ok)

	got, ok := s.Select(bep.NamedSet("1", bep.File{Name: "path/file.kzip", URI: "file:///path/file.kzip"}))
	require.True(t, ok)
	assert.Equal(t, selector.Artifact{
		Label: "//t:n",
		Files: []selector.File{{LocalPath: "path/file.kzip", URI: "file:///path/file.kzip"}},
	}, got)
}

func TestAny_ForwardsFunctions(t *testing.T) {
	mock := &testutil.RecordingSelector{
		SelectResults: []testutil.SelectResult{{}},
	}

	s := selector.Borrow(mock)
	ev := bep.NamedSet("1")

	_, ok := s.Select(ev)
	assert.False(t, ok)

	data, err := s.Serialize()
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, s.Deserialize(nil))

	assert.Equal(t, []string{"Select", "Serialize", "Deserialize"}, mock.Methods())
	assert.Equal(t, ev, mock.Calls[0].Event)
}

func TestAny_ForwardsResultsVerbatim(t *testing.T) {
	want := selector.Artifact{Label: "//x", Files: []selector.File{{LocalPath: "x.kzip"}}}
	serErr := errors.New("serialize failed")
	desErr := errors.New("deserialize failed")

	mock := &testutil.RecordingSelector{
		SelectResults:  []testutil.SelectResult{{Artifact: want, OK: true}},
		SerializeData:  []byte("snapshot"),
		SerializeErr:   serErr,
		DeserializeErr: desErr,
	}
	s := selector.Own(mock)

	got, ok := s.Select(bep.Event{})
	require.True(t, ok)
	assert.Equal(t, want, got)

	data, err := s.Serialize()
	assert.Equal(t, []byte("snapshot"), data)
	assert.ErrorIs(t, err, serErr)

	assert.ErrorIs(t, s.Deserialize([]byte("bytes")), desErr)
	assert.Equal(t, []byte("bytes"), mock.Calls[2].Data)
}

func TestAny_BorrowSharesState(t *testing.T) {
	owner := selector.NewAspectSelector(selector.DefaultOptions())
	borrowed := selector.Borrow(owner)

	borrowed.Select(bep.NamedSet("1", bep.File{Name: "a.kzip"}))
	assert.Equal(t, selector.Stats{Resolved: 1}, owner.Stats())
	assert.False(t, borrowed.IsOwned())
}

func TestAny_CloseOnlyOwned(t *testing.T) {
	owned := &testutil.RecordingSelector{}
	require.NoError(t, selector.Own(owned).Close())
	assert.Equal(t, []string{"Close"}, owned.Methods())

	borrowed := &testutil.RecordingSelector{}
	require.NoError(t, selector.Borrow(borrowed).Close())
	assert.Empty(t, borrowed.Methods())

	// Owned selectors without Close are fine.
	require.NoError(t, selector.Own(selector.NewAspectSelector(selector.Options{})).Close())
}

func TestAny_Zero(t *testing.T) {
	var s selector.Any

	_, ok := s.Select(bep.NamedSet("1"))
	assert.False(t, ok)

	data, err := s.Serialize()
	assert.NoError(t, err)
	assert.Nil(t, data)

	assert.ErrorIs(t, s.Deserialize([]byte("{}")), selector.ErrNoSelector)
	assert.NoError(t, s.Close())
}

func TestAny_Nested(t *testing.T) {
	inner := &testutil.RecordingSelector{}
	outer := selector.Own(selector.Borrow(inner))

	outer.Select(bep.Event{})
	outer.Serialize()
	assert.Equal(t, []string{"Select", "Serialize"}, inner.Methods())
}

func TestAny_Unwrap(t *testing.T) {
	inner := selector.NewAspectSelector(selector.DefaultOptions())
	assert.Same(t, inner, selector.Own(inner).Unwrap())
	assert.Same(t, inner, selector.Borrow(inner).Unwrap())
	assert.Nil(t, selector.Any{}.Unwrap())
}
