package selector

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bepsel/internal/bep"
	"github.com/roach88/bepsel/internal/pattern"
)

const (
	testLabel  = "//path/to/target:name"
	testAspect = "//aspect:file.bzl%name"
	testGroup  = "kythe_compilation_unit"
)

func kzip(name string) bep.File {
	return bep.File{Name: name, URI: "file:///" + name}
}

func targetEvent(label string, setIDs ...string) bep.Event {
	return bep.TargetCompleted(label, testAspect, true, bep.Group(testGroup, setIDs...))
}

func wantArtifact(label string, names ...string) Artifact {
	a := Artifact{Label: label, Files: []File{}}
	for _, n := range names {
		a.Files = append(a.Files, File{LocalPath: n, URI: "file:///" + n})
	}
	return a
}

func TestAspectSelector_SelectsOutOfOrderFileSets(t *testing.T) {
	s := NewAspectSelector(DefaultOptions())

	_, ok := s.Select(targetEvent(testLabel, "1"))
	assert.False(t, ok)

	got, ok := s.Select(bep.NamedSet("1", kzip("path/to/file.kzip")))
	require.True(t, ok)
	assert.Equal(t, wantArtifact(testLabel, "path/to/file.kzip"), got)
}

func TestAspectSelector_SelectsMatchingTargetsOnce(t *testing.T) {
	s := NewAspectSelector(DefaultOptions())

	_, ok := s.Select(bep.NamedSet("1", kzip("path/to/file.kzip")))
	assert.False(t, ok)

	got, ok := s.Select(targetEvent(testLabel, "1"))
	require.True(t, ok)
	assert.Equal(t, wantArtifact(testLabel, "path/to/file.kzip"), got)

	// Same file set, different target.
	_, ok = s.Select(targetEvent("//path/to/new/target:name", "1"))
	assert.False(t, ok)
	assert.Equal(t, Stats{Consumed: 1}, s.Stats())
}

func TestAspectSelector_OrderIndependence(t *testing.T) {
	target := targetEvent(testLabel, "7")
	set := bep.NamedSet("7", kzip("a.kzip"), kzip("b.kzip"))

	forward := NewAspectSelector(DefaultOptions())
	_, ok := forward.Select(target)
	require.False(t, ok)
	fromForward, ok := forward.Select(set)
	require.True(t, ok)

	reverse := NewAspectSelector(DefaultOptions())
	_, ok = reverse.Select(set)
	require.False(t, ok)
	fromReverse, ok := reverse.Select(target)
	require.True(t, ok)

	assert.Equal(t, fromForward, fromReverse)
	assert.Equal(t, forward.Stats(), reverse.Stats())
}

func TestAspectSelector_InterleavedTargets(t *testing.T) {
	s := NewAspectSelector(DefaultOptions())

	events := []bep.Event{
		targetEvent("//a", "1"),
		bep.NamedSet("2", kzip("b.kzip")),
		{ID: bep.EventID{}}, // progress or other noise
		targetEvent("//b", "2"),
		bep.NamedSet("1", kzip("a.kzip")),
	}

	var got []Artifact
	for _, ev := range events {
		if a, ok := s.Select(ev); ok {
			got = append(got, a)
		}
	}

	assert.Equal(t, []Artifact{
		wantArtifact("//b", "b.kzip"),
		wantArtifact("//a", "a.kzip"),
	}, got)
	assert.Equal(t, Stats{Consumed: 2}, s.Stats())
}

func TestAspectSelector_AtMostOnce(t *testing.T) {
	s := NewAspectSelector(DefaultOptions())

	_, ok := s.Select(targetEvent(testLabel, "1"))
	require.False(t, ok)
	_, ok = s.Select(bep.NamedSet("1", kzip("x.kzip")))
	require.True(t, ok)

	tests := []struct {
		name string
		ev   bep.Event
	}{
		{"duplicate file set", bep.NamedSet("1", kzip("x.kzip"))},
		{"same target again", targetEvent(testLabel, "1")},
		{"other target", targetEvent("//other", "1")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := s.Select(tc.ev)
			assert.False(t, ok)
		})
	}
	assert.Equal(t, Stats{Consumed: 1}, s.Stats(), "spent id never re-enters pending or resolved")
}

func TestAspectSelector_FilterFidelity(t *testing.T) {
	s := NewAspectSelector(DefaultOptions())

	_, ok := s.Select(bep.NamedSet("1",
		bep.File{Name: "a.kzip", URI: "file:///a.kzip"},
		bep.File{Name: "b.txt", URI: "file:///b.txt"},
	))
	require.False(t, ok)

	got, ok := s.Select(targetEvent(testLabel, "1"))
	require.True(t, ok)
	assert.Equal(t, []File{{LocalPath: "a.kzip", URI: "file:///a.kzip"}}, got.Files)
}

func TestAspectSelector_FilesKeepEventOrder(t *testing.T) {
	s := NewAspectSelector(DefaultOptions())
	s.Select(targetEvent(testLabel, "1"))

	got, ok := s.Select(bep.NamedSet("1", kzip("z.kzip"), kzip("a.kzip"), kzip("m.kzip")))
	require.True(t, ok)
	assert.Equal(t, wantArtifact(testLabel, "z.kzip", "a.kzip", "m.kzip"), got)
}

func TestAspectSelector_EmptyAfterFilterStillEmitted(t *testing.T) {
	s := NewAspectSelector(DefaultOptions())
	s.Select(targetEvent(testLabel, "1"))

	got, ok := s.Select(bep.NamedSet("1", bep.File{Name: "only.txt"}))
	require.True(t, ok)
	assert.Equal(t, testLabel, got.Label)
	assert.NotNil(t, got.Files)
	assert.Empty(t, got.Files)
}

func TestAspectSelector_Gating(t *testing.T) {
	opts := Options{
		FileNameAllowlist:     pattern.MustCompile(`\.kzip$`),
		OutputGroupAllowlist:  pattern.MustCompile(`^kythe_compilation_unit$`),
		TargetAspectAllowlist: pattern.MustCompile(`%name$`),
	}

	tests := []struct {
		name   string
		target bep.Event
	}{
		{"failed target", bep.TargetCompleted(testLabel, testAspect, false, bep.Group(testGroup, "1"))},
		{"aspect mismatch", bep.TargetCompleted(testLabel, "//aspect:other.bzl%other", true, bep.Group(testGroup, "1"))},
		{"plain target without aspect", bep.TargetCompleted(testLabel, "", true, bep.Group(testGroup, "1"))},
		{"group mismatch", bep.TargetCompleted(testLabel, testAspect, true, bep.Group("default", "1"))},
		{"no completed payload", bep.Event{ID: bep.EventID{TargetCompleted: &bep.TargetCompletedID{Label: testLabel, Aspect: testAspect}}}},
	}

	for _, tc := range tests {
		t.Run(tc.name+"/target first", func(t *testing.T) {
			s := NewAspectSelector(opts)
			_, ok := s.Select(tc.target)
			assert.False(t, ok)
			_, ok = s.Select(bep.NamedSet("1", kzip("f.kzip")))
			assert.False(t, ok)
			assert.Equal(t, Stats{Resolved: 1}, s.Stats())
		})
		t.Run(tc.name+"/files first", func(t *testing.T) {
			s := NewAspectSelector(opts)
			_, ok := s.Select(bep.NamedSet("1", kzip("f.kzip")))
			assert.False(t, ok)
			_, ok = s.Select(tc.target)
			assert.False(t, ok)
			assert.Equal(t, Stats{Resolved: 1}, s.Stats())
		})
	}
}

func TestAspectSelector_FirstQualifyingGroupWins(t *testing.T) {
	opts := DefaultOptions()
	opts.OutputGroupAllowlist = pattern.MustCompile(`^kythe`)
	s := NewAspectSelector(opts)

	s.Select(bep.NamedSet("skip", kzip("skip.kzip")))
	s.Select(bep.NamedSet("second", kzip("second.kzip")))
	s.Select(bep.NamedSet("third", kzip("third.kzip")))

	got, ok := s.Select(bep.TargetCompleted(testLabel, testAspect, true,
		bep.Group("default", "skip"),
		bep.Group("kythe_a", "second"),
		bep.Group("kythe_b", "third"),
	))
	require.True(t, ok)
	assert.Equal(t, wantArtifact(testLabel, "second.kzip"), got)
	assert.Equal(t, Stats{Resolved: 2, Consumed: 1}, s.Stats())
}

func TestAspectSelector_FirstResolvableIDWins(t *testing.T) {
	s := NewAspectSelector(DefaultOptions())

	s.Select(bep.NamedSet("b", kzip("b.kzip")))
	s.Select(bep.NamedSet("c", kzip("c.kzip")))

	got, ok := s.Select(targetEvent(testLabel, "a", "b", "c"))
	require.True(t, ok)
	assert.Equal(t, wantArtifact(testLabel, "b.kzip"), got)

	// "a" was scanned before the hit and now waits; "c" was never visited.
	assert.Equal(t, Stats{Pending: 1, Resolved: 1, Consumed: 1}, s.Stats())

	got, ok = s.Select(bep.NamedSet("a", kzip("a.kzip")))
	require.True(t, ok)
	assert.Equal(t, wantArtifact(testLabel, "a.kzip"), got)
}

func TestAspectSelector_SkipsConsumedIDsInTarget(t *testing.T) {
	s := NewAspectSelector(DefaultOptions())
	s.Select(targetEvent("//first", "1"))
	_, ok := s.Select(bep.NamedSet("1", kzip("one.kzip")))
	require.True(t, ok)

	s.Select(bep.NamedSet("2", kzip("two.kzip")))
	got, ok := s.Select(targetEvent("//second", "1", "2"))
	require.True(t, ok)
	assert.Equal(t, wantArtifact("//second", "two.kzip"), got)
}

func TestAspectSelector_LaterTargetTakesPendingID(t *testing.T) {
	s := NewAspectSelector(DefaultOptions())
	s.Select(targetEvent("//first", "1"))
	s.Select(targetEvent("//second", "1"))

	got, ok := s.Select(bep.NamedSet("1", kzip("x.kzip")))
	require.True(t, ok)
	assert.Equal(t, "//second", got.Label)
}

func TestAspectSelector_IgnoresUnknownEvents(t *testing.T) {
	s := NewAspectSelector(DefaultOptions())
	_, ok := s.Select(bep.Event{})
	assert.False(t, ok)
	assert.Equal(t, Stats{}, s.Stats())
}

func TestAspectSelector_NilOptionsAcceptEverything(t *testing.T) {
	s := NewAspectSelector(Options{})
	s.Select(bep.TargetCompleted("//t", "", true, bep.Group("any", "1")))

	got, ok := s.Select(bep.NamedSet("1", bep.File{Name: "x.txt"}))
	require.True(t, ok)
	assert.Equal(t, []File{{LocalPath: "x.txt"}}, got.Files)
}

func TestAspectSelector_SerializeEmpty(t *testing.T) {
	s := NewAspectSelector(DefaultOptions())
	data, err := s.Serialize()
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestAspectSelector_CheckpointRoundTrip(t *testing.T) {
	original := NewAspectSelector(DefaultOptions())
	original.Select(targetEvent("//waiting", "1"))
	original.Select(bep.NamedSet("2", kzip("buffered.kzip"), bep.File{Name: "dropped.txt"}))
	original.Select(targetEvent("//done", "3"))
	_, ok := original.Select(bep.NamedSet("3", kzip("done.kzip")))
	require.True(t, ok)

	data, err := original.Serialize()
	require.NoError(t, err)
	require.NotNil(t, data)

	restored := NewAspectSelector(DefaultOptions())
	require.NoError(t, restored.Deserialize(data))
	assert.Equal(t, original.Stats(), restored.Stats())

	again, err := restored.Serialize()
	require.NoError(t, err)
	assert.Equal(t, data, again, "serialization is canonical")

	next := []bep.Event{
		bep.NamedSet("1", kzip("late.kzip")),
		targetEvent("//buffered", "2"),
		bep.NamedSet("3", kzip("done.kzip")),
		targetEvent("//other", "3"),
	}
	for _, ev := range next {
		wantA, wantOK := original.Select(ev)
		gotA, gotOK := restored.Select(ev)
		assert.Equal(t, wantOK, gotOK, ev.Summary())
		assert.Equal(t, wantA, gotA, ev.Summary())
	}
}

func TestAspectSelector_CheckpointKeepsStringsExact(t *testing.T) {
	// Decomposed (NFD) forms, as produced by macOS file systems.
	const (
		pendingID  = "cafe\u0301"
		bufferedID = "re\u0301sume\u0301"
		path       = "cafe\u0301.kzip"
	)

	original := NewAspectSelector(DefaultOptions())
	original.Select(targetEvent("//t:cafe\u0301", pendingID))
	original.Select(bep.NamedSet(bufferedID, kzip(path)))

	data, err := original.Serialize()
	require.NoError(t, err)

	restored := NewAspectSelector(DefaultOptions())
	require.NoError(t, restored.Deserialize(data))

	got, ok := restored.Select(bep.NamedSet(pendingID, kzip(path)))
	require.True(t, ok, "pending id must survive unchanged")
	assert.Equal(t, wantArtifact("//t:cafe\u0301", path), got)
	assert.Len(t, got.Files[0].LocalPath, len(path))

	got, ok = restored.Select(targetEvent("//t:resume", bufferedID))
	require.True(t, ok, "buffered id must survive unchanged")
	assert.Equal(t, wantArtifact("//t:resume", path), got)

	// The composed form is a different id.
	_, ok = restored.Select(bep.NamedSet("caf\u00e9", kzip(path)))
	assert.False(t, ok)
}

func TestAspectSelector_SerializeRejectsInvalidUTF8(t *testing.T) {
	s := NewAspectSelector(DefaultOptions())
	s.Select(bep.NamedSet("1", kzip("bad\xffname.kzip")))

	data, err := s.Serialize()
	require.Error(t, err)
	assert.Nil(t, data)
	assert.Contains(t, err.Error(), "not valid UTF-8")
	assert.Equal(t, Stats{Resolved: 1}, s.Stats(), "state is untouched")
}

func TestAspectSelector_DeserializeReplacesState(t *testing.T) {
	donor := NewAspectSelector(DefaultOptions())
	donor.Select(targetEvent("//donor", "1"))
	data, err := donor.Serialize()
	require.NoError(t, err)

	s := NewAspectSelector(DefaultOptions())
	s.Select(bep.NamedSet("9", kzip("nine.kzip")))
	require.NoError(t, s.Deserialize(data))
	assert.Equal(t, Stats{Pending: 1}, s.Stats())
}

func TestAspectSelector_DeserializeErrorsLeaveStateUnchanged(t *testing.T) {
	donor := NewAspectSelector(DefaultOptions())
	donor.Select(targetEvent("//t:n", "1"))
	good, err := donor.Serialize()
	require.NoError(t, err)

	overlapping, err := encodeEnvelope(AspectKind, map[string]any{
		"pending":  map[string]any{"1": "//t"},
		"resolved": map[string]any{},
		"consumed": []string{"1"},
	})
	require.NoError(t, err)

	unknownField, err := encodeEnvelope(AspectKind, map[string]any{
		"pending": map[string]any{},
		"extra":   "x",
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
		code DecodeErrorCode
	}{
		{"garbage", []byte("not json"), ErrCodeMalformed},
		{"empty", []byte{}, ErrCodeMalformed},
		{"future version", bytes.Replace(good, []byte(`"version":1`), []byte(`"version":2`), 1), ErrCodeUnsupportedVersion},
		{"missing version", bytes.Replace(good, []byte(`"version":1`), []byte(`"v":1`), 1), ErrCodeUnsupportedVersion},
		{"other kind", bytes.Replace(good, []byte(AspectKind), []byte("bepsel.other"), 1), ErrCodeKindMismatch},
		{"tampered state", bytes.Replace(good, []byte("//t:n"), []byte("//t:x"), 1), ErrCodeDigestMismatch},
		{"overlapping ids", overlapping, ErrCodeMalformed},
		{"unknown state field", unknownField, ErrCodeMalformed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewAspectSelector(DefaultOptions())
			s.Select(bep.NamedSet("keep", kzip("keep.kzip")))
			before := s.Stats()

			err := s.Deserialize(tc.data)
			require.Error(t, err)
			assert.True(t, IsDecodeError(err))
			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tc.code, de.Code)
			assert.Equal(t, before, s.Stats())

			// A failed restore is retryable with good bytes.
			require.NoError(t, s.Deserialize(good))
			assert.Equal(t, Stats{Pending: 1}, s.Stats())
		})
	}
}

func TestAspectSelector_ConsumedSurvivesRestart(t *testing.T) {
	s := NewAspectSelector(DefaultOptions())
	s.Select(bep.NamedSet("1", kzip("x.kzip")))
	_, ok := s.Select(targetEvent(testLabel, "1"))
	require.True(t, ok)

	data, err := s.Serialize()
	require.NoError(t, err)
	require.NotNil(t, data, "consumed ids alone are worth checkpointing")

	restored := NewAspectSelector(DefaultOptions())
	require.NoError(t, restored.Deserialize(data))
	_, ok = restored.Select(bep.NamedSet("1", kzip("x.kzip")))
	assert.False(t, ok)
	_, ok = restored.Select(targetEvent("//again", "1"))
	assert.False(t, ok)
}

func TestInspect(t *testing.T) {
	s := NewAspectSelector(DefaultOptions())
	s.Select(targetEvent(testLabel, "1"))
	data, err := s.Serialize()
	require.NoError(t, err)

	hdr, err := Inspect(data)
	require.NoError(t, err)
	assert.Equal(t, AspectKind, hdr.Kind)
	assert.Equal(t, CheckpointVersion, hdr.Version)
	assert.Len(t, hdr.Digest, 64)

	_, err = Inspect([]byte(`{"version":9}`))
	assert.True(t, IsVersionError(err))
}
