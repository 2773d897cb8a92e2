package driver

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/roach88/bepsel/internal/bep"
)

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	d := New(newAspect(),
		WithCheckpointStore(&memCheckpoints{}),
		WithHooks(m.Hooks()),
	)
	d.Enqueue(bep.Event{})
	d.Enqueue(targetEvent("1", "2"))
	d.Enqueue(bep.NamedSet("1", kzip))
	runClosed(t, d)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.EventsTotal.WithLabelValues("other")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.EventsTotal.WithLabelValues("target_completed")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.EventsTotal.WithLabelValues("named_set")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.ArtifactsTotal))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.CheckpointsTotal))

	assert.Equal(t, 1.0, promtest.ToFloat64(m.Correlation.WithLabelValues("pending")))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.Correlation.WithLabelValues("resolved")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Correlation.WithLabelValues("consumed")))

	assert.Equal(t, 2, promtest.CollectAndCount(m.ArtifactFiles)+promtest.CollectAndCount(m.CheckpointBytes))
}

func TestMetrics_ErrorsByOp(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	h := m.Hooks()

	h.OnError("write artifact")
	h.OnError("write artifact")
	h.OnError("checkpoint")

	assert.Equal(t, 2.0, promtest.ToFloat64(m.ErrorsTotal.WithLabelValues("write artifact")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.ErrorsTotal.WithLabelValues("checkpoint")))
}

func TestMetrics_RegisterTwicePanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}
