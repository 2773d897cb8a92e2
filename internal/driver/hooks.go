package driver

import (
	"github.com/roach88/bepsel/internal/bep"
	"github.com/roach88/bepsel/internal/selector"
)

// Hooks observe the driver loop. All callbacks run on the Run goroutine
// and must not block. Nil callbacks are skipped.
type Hooks struct {
	OnEvent         func(kind bep.Kind, emitted bool)
	OnArtifact      func(seq int64, a selector.Artifact)
	OnCheckpoint    func(bytes int)
	OnError         func(op string)
	OnSelectorStats func(st selector.Stats)
}

// merge returns hooks that call h first, then next.
func (h Hooks) merge(next Hooks) Hooks {
	return Hooks{
		OnEvent:         chain2(h.OnEvent, next.OnEvent),
		OnArtifact:      chain2(h.OnArtifact, next.OnArtifact),
		OnCheckpoint:    chain1(h.OnCheckpoint, next.OnCheckpoint),
		OnError:         chain1(h.OnError, next.OnError),
		OnSelectorStats: chain1(h.OnSelectorStats, next.OnSelectorStats),
	}
}

func chain1[A any](a, b func(A)) func(A) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(x A) {
		a(x)
		b(x)
	}
}

func chain2[A, B any](a, b func(A, B)) func(A, B) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(x A, y B) {
		a(x, y)
		b(x, y)
	}
}
